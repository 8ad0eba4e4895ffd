package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
)

// DefaultHistoryWindow 性能历史窗口默认长度
const DefaultHistoryWindow = 100

// Registry Agent 能力注册表
// 负载与性能字段由注册表锁保护，多个并发任务可能竞争同一 agent 的计数。
type Registry struct {
	mu            sync.RWMutex
	agents        map[string]*types.AgentCapability
	order         []string // 注册顺序，用于稳定平局
	historyWindow int
	logger        *zap.Logger
}

// Option 注册表配置选项
type Option func(*Registry)

// WithHistoryWindow 设置性能历史窗口长度
func WithHistoryWindow(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.historyWindow = n
		}
	}
}

// New 创建注册表
func New(logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		agents:        make(map[string]*types.AgentCapability),
		historyWindow: DefaultHistoryWindow,
		logger:        logger.With(zap.String("component", "registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register 注册一个 agent，重复 ID 返回 DUPLICATE_AGENT
func (r *Registry) Register(cap types.AgentCapability) error {
	if cap.AgentID == "" {
		return types.NewError(types.ErrInvalidConfig, "agent id must not be empty")
	}
	if cap.MaxConcurrentTasks <= 0 {
		cap.MaxConcurrentTasks = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[cap.AgentID]; exists {
		return types.NewError(types.ErrDuplicateAgent,
			fmt.Sprintf("agent %q already registered", cap.AgentID))
	}

	stored := cap.Clone()
	r.agents[cap.AgentID] = &stored
	r.order = append(r.order, cap.AgentID)

	r.logger.Info("agent registered",
		zap.String("agent_id", cap.AgentID),
		zap.Strings("capabilities", cap.Capabilities),
		zap.Int("max_concurrent_tasks", stored.MaxConcurrentTasks),
	)
	return nil
}

// Get 按 ID 查找，返回拷贝
func (r *Registry) Get(agentID string) (types.AgentCapability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[agentID]
	if !ok {
		return types.AgentCapability{}, false
	}
	return a.Clone(), true
}

// Contains 判断 agent 是否已注册
func (r *Registry) Contains(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agentID]
	return ok
}

// Find 按谓词过滤，结果保持注册顺序
func (r *Registry) Find(pred func(types.AgentCapability) bool) []types.AgentCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.AgentCapability
	for _, id := range r.order {
		cp := r.agents[id].Clone()
		if pred == nil || pred(cp) {
			out = append(out, cp)
		}
	}
	return out
}

// List 返回全部 agent（注册顺序）
func (r *Registry) List() []types.AgentCapability {
	return r.Find(nil)
}

// Select 按 ID 集合批量取出，跳过未注册项，保持传入顺序
func (r *Registry) Select(agentIDs []string) []types.AgentCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.AgentCapability, 0, len(agentIDs))
	for _, id := range agentIDs {
		if a, ok := r.agents[id]; ok {
			out = append(out, a.Clone())
		}
	}
	return out
}

// AdjustLoad 调整 agent 负载，是 CurrentLoad 的唯一修改入口。
// 负载不允许为负，也不允许超过 MaxConcurrentTasks，违反返回 INVALID_STATE。
func (r *Registry) AdjustLoad(agentID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return types.NewError(types.ErrAgentNotFound,
			fmt.Sprintf("agent %q not registered", agentID)).WithTarget(agentID)
	}

	next := a.CurrentLoad + delta
	if next < 0 {
		return types.NewError(types.ErrInvalidState,
			fmt.Sprintf("load underflow for agent %q: %d%+d", agentID, a.CurrentLoad, delta)).
			WithTarget(agentID)
	}
	if next > a.MaxConcurrentTasks {
		return types.NewError(types.ErrInvalidState,
			fmt.Sprintf("load overflow for agent %q: %d%+d exceeds max %d",
				agentID, a.CurrentLoad, delta, a.MaxConcurrentTasks)).
			WithTarget(agentID)
	}

	a.CurrentLoad = next
	return nil
}

// RecordOutcome 追加一条执行结果，窗口外的最旧记录被裁剪
func (r *Registry) RecordOutcome(agentID, taskType string, success bool, latency time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return types.NewError(types.ErrAgentNotFound,
			fmt.Sprintf("agent %q not registered", agentID)).WithTarget(agentID)
	}

	a.PerformanceHistory = append(a.PerformanceHistory, types.OutcomeRecord{
		TaskType: taskType,
		Success:  success,
		Latency:  latency,
		At:       time.Now(),
	})
	if len(a.PerformanceHistory) > r.historyWindow {
		a.PerformanceHistory = a.PerformanceHistory[len(a.PerformanceHistory)-r.historyWindow:]
	}
	return nil
}

// Snapshot 导出全部 agent 的只读快照，供监控使用
func (r *Registry) Snapshot() []types.AgentCapability {
	return r.List()
}

// Size 返回已注册 agent 数量
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
