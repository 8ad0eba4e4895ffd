package history

import (
	"context"
	"sync"

	"github.com/BaSui01/teamflow/types"
)

// DefaultCapacity 内存后端每任务默认保留的决策条数
const DefaultCapacity = 100

// DecisionStore 决策历史存储
// Append 按发生顺序追加；History 按追加顺序返回。
type DecisionStore interface {
	Append(ctx context.Context, taskID string, decision *types.RoutingDecision) error
	History(ctx context.Context, taskID string) ([]*types.RoutingDecision, error)
	Close() error
}

// MemoryStore 进程内决策历史
// 每个任务一条环形队列，超过容量时丢弃最旧的记录。
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	records  map[string][]*types.RoutingDecision
}

// NewMemoryStore 创建内存历史存储；capacity ≤ 0 时使用 DefaultCapacity
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		records:  make(map[string][]*types.RoutingDecision),
	}
}

// Append 追加一条决策
func (s *MemoryStore) Append(_ context.Context, taskID string, decision *types.RoutingDecision) error {
	if taskID == "" || decision == nil {
		return types.NewError(types.ErrInvalidState, "history append needs a task id and a decision")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := *decision
	records := append(s.records[taskID], &d)
	if len(records) > s.capacity {
		records = records[len(records)-s.capacity:]
	}
	s.records[taskID] = records
	return nil
}

// History 返回任务的决策轨迹副本，任务未知时返回空切片
func (s *MemoryStore) History(_ context.Context, taskID string) ([]*types.RoutingDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.records[taskID]
	out := make([]*types.RoutingDecision, len(records))
	for i, d := range records {
		c := *d
		out[i] = &c
	}
	return out, nil
}

// Close 实现 DecisionStore，无需清理
func (s *MemoryStore) Close() error { return nil }
