package hierarchy

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/registry"
	"github.com/BaSui01/teamflow/routing"
	"github.com/BaSui01/teamflow/team"
	"github.com/BaSui01/teamflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// hierarchyScope 层级决策在日志与指标里的范围标签
const hierarchyScope = "hierarchy"

// Config 层级协调器配置
type Config struct {
	// Name 协调器名称
	Name string
	// Strategy 团队级路由策略
	Strategy routing.Strategy
	// ConfidenceThreshold 团队路由的最低置信度
	ConfidenceThreshold float64
	// FallbackTeam 团队路由失败或团队升级时的兜底团队
	FallbackTeam string
	// MaxRetries 团队路由升级前的最大重试次数
	MaxRetries int
	// Flow 多阶段任务流配置
	Flow FlowConfig
}

// FlowConfig 任务流配置
type FlowConfig struct {
	// Type 流类型: sequential, parallel, pipeline, conditional
	Type string
	// MaxParallelTasks parallel/pipeline 流的最大并发阶段数
	MaxParallelTasks int
	// TimeoutPerTask 单阶段超时
	TimeoutPerTask time.Duration
	// Stages 阶段列表
	Stages []Stage
}

// Stage 任务流中的一个阶段
type Stage struct {
	// Team 承接阶段的团队名
	Team string
	// DependsOn sequential/pipeline 流的前置依赖（团队名）
	DependsOn []string
	// Description 阶段描述，拼入子任务描述
	Description string
}

// Coordinator 层级协调器
type Coordinator struct {
	cfg      Config
	registry *registry.Registry
	engine   *routing.Engine
	teams    map[string]*team.Coordinator
	order    []string // 团队声明顺序

	store  history.DecisionStore
	logger *zap.Logger
	tracer trace.Tracer
}

// Option 协调器选项
type Option func(*Coordinator)

// WithDecisionStore 注入决策历史存储
func WithDecisionStore(store history.DecisionStore) Option {
	return func(c *Coordinator) { c.store = store }
}

// NewCoordinator 创建层级协调器
func NewCoordinator(cfg Config, reg *registry.Registry, engine *routing.Engine, teams []*team.Coordinator, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		cfg:      cfg,
		registry: reg,
		engine:   engine,
		teams:    make(map[string]*team.Coordinator, len(teams)),
		logger: logger.With(
			zap.String("component", "hierarchy_coordinator"),
			zap.String("coordinator", cfg.Name),
		),
		tracer: otel.Tracer("github.com/BaSui01/teamflow/hierarchy"),
	}
	for _, tc := range teams {
		c.teams[tc.Name()] = tc
		c.order = append(c.order, tc.Name())
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Team 按名称取团队协调器
func (c *Coordinator) Team(name string) (*team.Coordinator, bool) {
	tc, ok := c.teams[name]
	return tc, ok
}

// Run 处理单个任务：先路由到团队，再交团队内部处理。
// 团队升级（ESCALATION）会向上传播：配置了兜底团队时改派一次，
// 仍失败则把升级错误返回给调用方。
func (c *Coordinator) Run(ctx context.Context, task *types.Task) (*types.ExecutionResult, error) {
	teamName, err := c.routeToTeam(ctx, task, c.order)
	if err != nil {
		return nil, err
	}

	result, err := c.runTeam(ctx, teamName, task)
	if err == nil {
		return result, nil
	}
	if !types.IsCode(err, types.ErrEscalation) {
		return nil, err
	}

	// 团队升级向上传播：尝试兜底团队
	if c.cfg.FallbackTeam != "" && c.cfg.FallbackTeam != teamName {
		c.logger.Warn("team escalated, rerouting to fallback team",
			zap.String("task_id", task.ID),
			zap.String("team", teamName),
			zap.String("fallback_team", c.cfg.FallbackTeam),
		)
		task.Status = types.TaskStatusPending
		task.RetryCount = 0
		decision := &types.RoutingDecision{
			Target:       c.cfg.FallbackTeam,
			Confidence:   0,
			StrategyUsed: routing.StrategyFallback,
			Reasoning:    fmt.Sprintf("team %s escalated, rerouting to fallback team", teamName),
			Timestamp:    time.Now(),
		}
		task.RecordDecision(decision)
		c.persist(task.ID, decision)
		return c.runTeam(ctx, c.cfg.FallbackTeam, task)
	}

	return nil, err
}

// RunTeam 绕过团队路由，把任务直接交给指定团队
func (c *Coordinator) RunTeam(ctx context.Context, teamName string, task *types.Task) (*types.ExecutionResult, error) {
	return c.runTeam(ctx, teamName, task)
}

// RunWorker 绕过所有路由，把任务直接派给指定 agent
func (c *Coordinator) RunWorker(ctx context.Context, agentID string, task *types.Task) (*types.ExecutionResult, error) {
	for _, name := range c.order {
		if tc := c.teams[name]; tc.HasMember(agentID) {
			return tc.Assign(ctx, task, agentID)
		}
	}
	return nil, types.NewError(types.ErrAgentNotFound,
		fmt.Sprintf("agent %s is not a member of any team", agentID)).WithTarget(agentID)
}

// routeToTeam 在候选团队间做一次团队级路由
func (c *Coordinator) routeToTeam(ctx context.Context, task *types.Task, teamNames []string) (string, error) {
	candidates := make([]types.AgentCapability, 0, len(teamNames))
	for _, name := range teamNames {
		tc, ok := c.teams[name]
		if !ok {
			return "", types.NewError(types.ErrTeamNotFound,
				fmt.Sprintf("team %q is not part of this hierarchy", name)).WithTarget(name)
		}
		candidates = append(candidates, tc.Capability())
	}

	decision, err := c.engine.Route(ctx, task, candidates, routing.Config{
		Strategy:            c.cfg.Strategy,
		ConfidenceThreshold: c.cfg.ConfidenceThreshold,
		FallbackTarget:      c.cfg.FallbackTeam,
		MaxRetries:          c.cfg.MaxRetries,
		Scope:               hierarchyScope,
	})
	c.persist(task.ID, decision)
	if err != nil {
		return "", err
	}

	c.logger.Info("task routed to team",
		zap.String("task_id", task.ID),
		zap.String("team", decision.Target),
		zap.Float64("confidence", decision.Confidence),
		zap.String("strategy", decision.StrategyUsed),
	)
	return decision.Target, nil
}

func (c *Coordinator) runTeam(ctx context.Context, teamName string, task *types.Task) (*types.ExecutionResult, error) {
	tc, ok := c.teams[teamName]
	if !ok {
		return nil, types.NewError(types.ErrTeamNotFound,
			fmt.Sprintf("team %q is not part of this hierarchy", teamName)).WithTarget(teamName)
	}
	return tc.Handle(ctx, task)
}

func (c *Coordinator) persist(taskID string, d *types.RoutingDecision) {
	if c.store == nil || d == nil {
		return
	}
	if err := c.store.Append(context.Background(), taskID, d); err != nil {
		c.logger.Warn("decision history append failed",
			zap.String("task_id", taskID), zap.Error(err))
	}
}

// TeamInfo 单个团队的概览
type TeamInfo struct {
	Name         string      `json:"name"`
	SupervisorID string      `json:"supervisor_id"`
	Workers      int         `json:"workers"`
	Status       team.Status `json:"status"`
}

// Info 层级概览
type Info struct {
	Name     string     `json:"name"`
	FlowType string     `json:"flow_type"`
	Teams    []TeamInfo `json:"teams"`
	Agents   int        `json:"agents"`
}

// Info 返回层级当前概览
func (c *Coordinator) Info() Info {
	info := Info{
		Name:     c.cfg.Name,
		FlowType: c.cfg.Flow.Type,
		Agents:   c.registry.Size(),
	}
	for _, name := range c.order {
		status := c.teams[name].Status()
		info.Teams = append(info.Teams, TeamInfo{
			Name:         name,
			SupervisorID: status.SupervisorID,
			Workers:      len(status.Workers),
			Status:       status,
		})
	}
	return info
}
