package team

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/internal/metrics"
	"github.com/BaSui01/teamflow/registry"
	"github.com/BaSui01/teamflow/routing"
	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
)

// recentDecisionWindow Status() 暴露的最近决策条数
const recentDecisionWindow = 20

// Executor 任务执行协作者
// 由调用方提供，把任务真正交给 agent 运行时执行。
type Executor interface {
	Execute(ctx context.Context, agentID string, task *types.Task) (*types.ExecutionResult, error)
}

// ExecutorFunc 函数适配器
type ExecutorFunc func(ctx context.Context, agentID string, task *types.Task) (*types.ExecutionResult, error)

// Execute 实现 Executor
func (f ExecutorFunc) Execute(ctx context.Context, agentID string, task *types.Task) (*types.ExecutionResult, error) {
	return f(ctx, agentID, task)
}

// Config 团队协调器配置
type Config struct {
	// SupervisorID 团队 supervisor 的 agent id
	SupervisorID string
	// WorkerIDs 团队 worker 的 agent id 列表
	WorkerIDs []string
	// Strategy 团队内路由策略
	Strategy routing.Strategy
	// ConfidenceThreshold 提交决策所需的最低分数
	ConfidenceThreshold float64
	// FallbackTarget 低于阈值时的兜底 worker
	FallbackTarget string
	// MaxRetries 升级前的最大路由重试次数
	MaxRetries int
	// FallbackToSupervisor 路由升级时是否由 supervisor 亲自处理
	FallbackToSupervisor bool
	// TaskTimeout 单次分发的超时
	TaskTimeout time.Duration
}

// Coordinator 团队协调器
// 路由、负载记账与结果回写的唯一入口；Handle 可被多个 goroutine
// 并发调用，共享状态都由 registry 与内部锁保护。
type Coordinator struct {
	name     string
	cfg      Config
	registry *registry.Registry
	engine   *routing.Engine
	executor Executor

	store     history.DecisionStore
	collector *metrics.Collector
	logger    *zap.Logger

	recentMu sync.Mutex
	recent   []*types.RoutingDecision
}

// Option 协调器选项
type Option func(*Coordinator)

// WithDecisionStore 注入决策历史存储
func WithDecisionStore(store history.DecisionStore) Option {
	return func(c *Coordinator) { c.store = store }
}

// WithCollector 注入指标收集器
func WithCollector(collector *metrics.Collector) Option {
	return func(c *Coordinator) { c.collector = collector }
}

// NewCoordinator 创建团队协调器
func NewCoordinator(name string, reg *registry.Registry, engine *routing.Engine, executor Executor, cfg Config, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		name:     name,
		cfg:      cfg,
		registry: reg,
		engine:   engine,
		executor: executor,
		logger: logger.With(
			zap.String("component", "team_coordinator"),
			zap.String("team", name),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name 返回团队名
func (c *Coordinator) Name() string { return c.name }

// Handle 处理一个任务：路由、占位、分发、记账。
//
// 路由循环受 MaxRetries 约束：无路可走与占位竞争失败都消耗重试
// 预算，超出即升级。引擎升级后若配置了 fallback_to_supervisor，
// 任务改由 supervisor 执行，否则返回 ESCALATION 错误交由上层
// （HierarchyCoordinator）处理。
func (c *Coordinator) Handle(ctx context.Context, task *types.Task) (*types.ExecutionResult, error) {
	candidates := c.registry.Select(c.cfg.WorkerIDs)
	if len(candidates) == 0 && !c.cfg.FallbackToSupervisor {
		return nil, types.NewError(types.ErrAgentNotFound,
			fmt.Sprintf("team %s has no registered workers", c.name))
	}

	for {
		if err := ctx.Err(); err != nil {
			task.Status = types.TaskStatusCancelled
			return nil, types.NewError(types.ErrInvalidState, "task handling aborted").WithCause(err)
		}

		d, err := c.engine.Route(ctx, task, candidates, routing.Config{
			Strategy:            c.cfg.Strategy,
			ConfidenceThreshold: c.cfg.ConfidenceThreshold,
			FallbackTarget:      c.cfg.FallbackTarget,
			MaxRetries:          c.cfg.MaxRetries,
			Scope:               c.name,
		})
		c.remember(task.ID, d)

		if err != nil {
			if types.IsCode(err, types.ErrNoRouteFound) {
				// 负载等注册表状态可能已变化，重新取候选再试
				candidates = c.registry.Select(c.cfg.WorkerIDs)
				continue
			}
			if types.IsCode(err, types.ErrEscalation) && c.cfg.FallbackToSupervisor {
				return c.supervisorTakeover(ctx, task)
			}
			return nil, err
		}

		// 占住执行槽位。并发任务可能在路由与占位之间抢走最后一个
		// 槽位，竞争失败计入重试预算后重新路由。
		if aerr := c.registry.AdjustLoad(d.Target, +1); aerr != nil {
			if !types.IsCode(aerr, types.ErrInvalidState) {
				return nil, aerr
			}
			task.RetryCount++
			if task.RetryCount > c.cfg.MaxRetries {
				if c.cfg.FallbackToSupervisor {
					return c.supervisorTakeover(ctx, task)
				}
				task.Status = types.TaskStatusEscalated
				return nil, types.NewError(types.ErrEscalation,
					fmt.Sprintf("task %s escalated: no dispatch capacity after %d attempts",
						task.ID, task.RetryCount)).WithCause(aerr)
			}
			candidates = c.registry.Select(c.cfg.WorkerIDs)
			continue
		}

		return c.dispatch(ctx, task, d.Target)
	}
}

// supervisorTakeover 升级后由 supervisor 亲自处理任务
func (c *Coordinator) supervisorTakeover(ctx context.Context, task *types.Task) (*types.ExecutionResult, error) {
	decision := &types.RoutingDecision{
		Target:       c.cfg.SupervisorID,
		Confidence:   0,
		StrategyUsed: routing.StrategyFallback,
		Reasoning:    "routing escalated, supervisor handling the task directly",
		Timestamp:    time.Now(),
	}
	task.RecordDecision(decision)
	task.Status = types.TaskStatusRouted
	c.remember(task.ID, decision)
	c.logger.Info("supervisor taking over escalated task",
		zap.String("task_id", task.ID),
		zap.String("supervisor_id", c.cfg.SupervisorID),
	)

	if err := c.registry.AdjustLoad(c.cfg.SupervisorID, +1); err != nil {
		return nil, err
	}
	return c.dispatch(ctx, task, c.cfg.SupervisorID)
}

// dispatch 把任务交给已占好槽位的 agent 执行。
// 调用方负责 +1，这里负责恰好一次 -1，无论成功、失败还是取消。
func (c *Coordinator) dispatch(ctx context.Context, task *types.Task, agentID string) (*types.ExecutionResult, error) {
	c.reportLoad(agentID)

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := c.registry.AdjustLoad(agentID, -1); err != nil {
			c.logger.Error("load release failed",
				zap.String("agent_id", agentID), zap.Error(err))
		}
		c.reportLoad(agentID)
	}
	defer release()

	task.Status = types.TaskStatusInProgress

	dispatchCtx := ctx
	cancel := context.CancelFunc(func() {})
	if c.cfg.TaskTimeout > 0 {
		dispatchCtx, cancel = context.WithTimeout(ctx, c.cfg.TaskTimeout)
	}
	defer cancel()

	started := time.Now()
	result, err := c.executor.Execute(dispatchCtx, agentID, task)
	latency := time.Since(started)

	release()

	if err != nil {
		task.Status = types.TaskStatusFailed
		c.registry.RecordOutcome(agentID, task.TaskType(), false, latency)
		c.recordDispatch(agentID, "failed", latency)
		c.logger.Warn("dispatch failed",
			zap.String("task_id", task.ID),
			zap.String("agent_id", agentID),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return nil, err
	}

	if result == nil {
		result = &types.ExecutionResult{Success: true}
	}
	result.AgentID = agentID
	result.Team = c.name
	result.Latency = latency
	task.Result = result

	if result.Success {
		task.Status = types.TaskStatusSucceeded
	} else {
		task.Status = types.TaskStatusFailed
	}
	c.registry.RecordOutcome(agentID, task.TaskType(), result.Success, latency)
	c.recordDispatch(agentID, string(task.Status), latency)

	c.logger.Debug("task dispatched",
		zap.String("task_id", task.ID),
		zap.String("agent_id", agentID),
		zap.Bool("success", result.Success),
		zap.Duration("latency", latency),
	)
	return result, nil
}

// HasMember 判断 agent 是否属于本团队（worker 或 supervisor）
func (c *Coordinator) HasMember(agentID string) bool {
	if agentID == c.cfg.SupervisorID {
		return true
	}
	for _, id := range c.cfg.WorkerIDs {
		if id == agentID {
			return true
		}
	}
	return false
}

// Assign 绕过路由，把任务直接派给指定成员。
// 占位与释放语义和 Handle 相同，决策以 manual 策略进审计轨迹。
func (c *Coordinator) Assign(ctx context.Context, task *types.Task, agentID string) (*types.ExecutionResult, error) {
	if !c.HasMember(agentID) {
		return nil, types.NewError(types.ErrAgentNotFound,
			fmt.Sprintf("agent %s is not a member of team %s", agentID, c.name)).WithTarget(agentID)
	}

	decision := &types.RoutingDecision{
		Target:       agentID,
		Confidence:   1,
		StrategyUsed: routing.StrategyManual,
		Reasoning:    "direct assignment bypassing routing",
		Timestamp:    time.Now(),
	}
	task.RecordDecision(decision)
	task.Status = types.TaskStatusRouted
	c.remember(task.ID, decision)

	if err := c.registry.AdjustLoad(agentID, +1); err != nil {
		return nil, err
	}
	return c.dispatch(ctx, task, agentID)
}

// Capability 聚合团队能力描述，供层级路由把团队当作候选
func (c *Coordinator) Capability() types.AgentCapability {
	members := c.registry.Select(c.cfg.WorkerIDs)

	capSet := make(map[string]struct{})
	kwSet := make(map[string]struct{})
	agg := types.AgentCapability{AgentID: c.name}
	for _, m := range members {
		for _, capability := range m.Capabilities {
			if _, ok := capSet[capability]; !ok {
				capSet[capability] = struct{}{}
				agg.Capabilities = append(agg.Capabilities, capability)
			}
		}
		for _, kw := range m.SpecializationKeywords {
			if _, ok := kwSet[kw]; !ok {
				kwSet[kw] = struct{}{}
				agg.SpecializationKeywords = append(agg.SpecializationKeywords, kw)
			}
		}
		agg.MaxConcurrentTasks += m.MaxConcurrentTasks
		agg.CurrentLoad += m.CurrentLoad
		agg.PerformanceHistory = append(agg.PerformanceHistory, m.PerformanceHistory...)
	}
	if agg.MaxConcurrentTasks == 0 {
		agg.MaxConcurrentTasks = 1
	}
	return agg
}

// WorkerInfo 一个成员的运行时状态
type WorkerInfo struct {
	AgentID      string  `json:"agent_id"`
	CurrentLoad  int     `json:"current_load"`
	MaxTasks     int     `json:"max_tasks"`
	Availability float64 `json:"availability"`
	SuccessRate  float64 `json:"success_rate"`
}

// Status 团队运行时状态
type Status struct {
	Name            string                   `json:"name"`
	SupervisorID    string                   `json:"supervisor_id"`
	Workers         []WorkerInfo             `json:"workers"`
	RecentDecisions []*types.RoutingDecision `json:"recent_decisions,omitempty"`
}

// Status 返回团队当前状态快照
func (c *Coordinator) Status() Status {
	members := c.registry.Select(c.cfg.WorkerIDs)
	workers := make([]WorkerInfo, 0, len(members))
	for _, m := range members {
		workers = append(workers, WorkerInfo{
			AgentID:      m.AgentID,
			CurrentLoad:  m.CurrentLoad,
			MaxTasks:     m.MaxConcurrentTasks,
			Availability: m.Availability(),
			SuccessRate:  m.SuccessRate("", routing.DefaultPerformanceDecay),
		})
	}

	c.recentMu.Lock()
	recent := make([]*types.RoutingDecision, len(c.recent))
	copy(recent, c.recent)
	c.recentMu.Unlock()

	return Status{
		Name:            c.name,
		SupervisorID:    c.cfg.SupervisorID,
		Workers:         workers,
		RecentDecisions: recent,
	}
}

// remember 记录最近决策并转发到历史存储
func (c *Coordinator) remember(taskID string, d *types.RoutingDecision) {
	if d == nil {
		return
	}

	c.recentMu.Lock()
	c.recent = append(c.recent, d)
	if len(c.recent) > recentDecisionWindow {
		c.recent = c.recent[len(c.recent)-recentDecisionWindow:]
	}
	c.recentMu.Unlock()

	if c.store != nil {
		if err := c.store.Append(context.Background(), taskID, d); err != nil {
			c.logger.Warn("decision history append failed",
				zap.String("task_id", taskID), zap.Error(err))
		}
	}
}

func (c *Coordinator) reportLoad(agentID string) {
	if c.collector == nil {
		return
	}
	if desc, ok := c.registry.Get(agentID); ok {
		c.collector.SetAgentLoad(c.name, agentID, desc.CurrentLoad)
	}
}

func (c *Coordinator) recordDispatch(agentID, status string, latency time.Duration) {
	if c.collector == nil {
		return
	}
	c.collector.RecordDispatch(c.name, agentID, status, latency)
}
