package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/teamflow/internal/metrics"
	"github.com/BaSui01/teamflow/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig Redis 历史存储配置
type RedisConfig struct {
	// Redis 地址
	Addr string

	// 密码
	Password string

	// 数据库编号
	DB int

	// 键前缀，完整键为 <prefix><task_id>
	KeyPrefix string

	// 每任务轨迹的过期时间，0 表示不过期
	TTL time.Duration

	// 最大重试次数
	MaxRetries int
}

// DefaultRedisConfig 返回默认 Redis 历史配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       "localhost:6379",
		KeyPrefix:  "teamflow:decisions:",
		TTL:        24 * time.Hour,
		MaxRetries: 3,
	}
}

// RedisStore Redis 决策历史
// 每个任务一个 LIST，RPUSH 追加保持发生顺序，TTL 在每次追加时续期。
type RedisStore struct {
	redis     *redis.Client
	config    RedisConfig
	collector *metrics.Collector
	logger    *zap.Logger
	mu        sync.RWMutex
	closed    bool
}

// RedisOption Redis 历史存储选项
type RedisOption func(*RedisStore)

// WithCollector 注入指标收集器
func WithCollector(c *metrics.Collector) RedisOption {
	return func(s *RedisStore) { s.collector = c }
}

// NewRedisStore 创建 Redis 历史存储并验证连接
func NewRedisStore(config RedisConfig, logger *zap.Logger, opts ...RedisOption) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		MaxRetries: config.MaxRetries,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := &RedisStore{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "history")),
	}
	for _, opt := range opts {
		opt(s)
	}

	logger.Info("redis history store initialized",
		zap.String("addr", config.Addr),
		zap.Duration("ttl", config.TTL),
	)

	return s, nil
}

// Append 追加一条决策
func (s *RedisStore) Append(ctx context.Context, taskID string, decision *types.RoutingDecision) error {
	if taskID == "" || decision == nil {
		return types.NewError(types.ErrInvalidState, "history append needs a task id and a decision")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.NewError(types.ErrInvalidState, "history store is closed")
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	key := s.config.KeyPrefix + taskID
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if s.config.TTL > 0 {
		pipe.Expire(ctx, key, s.config.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.recordOp("append", "error")
		s.logger.Error("history append failed", zap.String("task_id", taskID), zap.Error(err))
		return fmt.Errorf("history append failed: %w", err)
	}

	s.recordOp("append", "success")
	return nil
}

// History 返回任务的决策轨迹，任务未知时返回空切片
func (s *RedisStore) History(ctx context.Context, taskID string) ([]*types.RoutingDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.NewError(types.ErrInvalidState, "history store is closed")
	}

	key := s.config.KeyPrefix + taskID
	raw, err := s.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		s.recordOp("history", "error")
		return nil, fmt.Errorf("history read failed: %w", err)
	}

	out := make([]*types.RoutingDecision, 0, len(raw))
	for _, item := range raw {
		var d types.RoutingDecision
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			s.logger.Warn("skipping corrupt history entry",
				zap.String("task_id", taskID), zap.Error(err))
			continue
		}
		out = append(out, &d)
	}

	s.recordOp("history", "success")
	return out, nil
}

// Close 关闭 Redis 连接，幂等
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.redis.Close()
}

func (s *RedisStore) recordOp(operation, status string) {
	if s.collector == nil {
		return
	}
	s.collector.RecordHistoryOp("redis", operation, status)
}
