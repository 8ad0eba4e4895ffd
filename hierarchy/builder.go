package hierarchy

import (
	"fmt"

	"github.com/BaSui01/teamflow/config"
	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/internal/metrics"
	"github.com/BaSui01/teamflow/registry"
	"github.com/BaSui01/teamflow/routing"
	"github.com/BaSui01/teamflow/team"
	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
)

// Builder 从声明式配置组装完整层级：
// 注册表、路由策略、团队协调器、历史存储与指标都由此构建。
type Builder struct {
	cfg      *config.Config
	executor team.Executor
	logger   *zap.Logger

	model     routing.DecisionModel
	collector *metrics.Collector
	store     history.DecisionStore
}

// NewBuilder 创建构建器。executor 是把任务交给具体 agent 的回调。
func NewBuilder(cfg *config.Config, executor team.Executor, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg, executor: executor, logger: logger}
}

// WithDecisionModel 注入 llm_based 策略使用的外部决策模型
func (b *Builder) WithDecisionModel(model routing.DecisionModel) *Builder {
	b.model = model
	return b
}

// WithCollector 注入指标收集器，引擎与各团队共用
func (b *Builder) WithCollector(collector *metrics.Collector) *Builder {
	b.collector = collector
	return b
}

// WithDecisionStore 注入历史存储，覆盖配置里的 history 段
func (b *Builder) WithDecisionStore(store history.DecisionStore) *Builder {
	b.store = store
	return b
}

// Build 组装层级协调器。
// 配置应已通过 (*config.Config).Validate；这里只处理构建期才能
// 发现的问题（如 llm_based 策略缺少决策模型、Redis 不可达）。
func (b *Builder) Build() (*Coordinator, error) {
	if b.cfg == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "builder needs a config")
	}
	if b.executor == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "builder needs an executor")
	}

	reg := registry.New(b.logger)
	for _, tc := range b.cfg.Teams {
		if err := b.registerTeam(reg, tc); err != nil {
			return nil, err
		}
	}

	store, err := b.buildStore()
	if err != nil {
		return nil, err
	}

	var engineOpts []routing.EngineOption
	if b.collector != nil {
		engineOpts = append(engineOpts, routing.WithCollector(b.collector))
	}
	engine := routing.NewEngine(b.logger, engineOpts...)

	teams := make([]*team.Coordinator, 0, len(b.cfg.Teams))
	for _, tc := range b.cfg.Teams {
		strategy, err := b.buildStrategy(tc.Routing)
		if err != nil {
			return nil, fmt.Errorf("team %s: %w", tc.Name, err)
		}

		workerIDs := make([]string, 0, len(tc.Workers))
		for _, w := range tc.Workers {
			workerIDs = append(workerIDs, w.ID)
		}

		var teamOpts []team.Option
		if store != nil {
			teamOpts = append(teamOpts, team.WithDecisionStore(store))
		}
		if b.collector != nil {
			teamOpts = append(teamOpts, team.WithCollector(b.collector))
		}
		teams = append(teams, team.NewCoordinator(tc.Name, reg, engine, b.executor, team.Config{
			SupervisorID:         tc.Supervisor.ID,
			WorkerIDs:            workerIDs,
			Strategy:             strategy,
			ConfidenceThreshold:  tc.Routing.ConfidenceThreshold,
			FallbackTarget:       tc.Routing.FallbackTarget,
			MaxRetries:           tc.Routing.MaxRetries,
			FallbackToSupervisor: tc.FallbackToSupervisor,
			TaskTimeout:          tc.TaskTimeout,
		}, b.logger, teamOpts...))
	}

	coordStrategy, err := b.buildStrategy(b.cfg.Coordinator.Routing)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	var opts []Option
	if store != nil {
		opts = append(opts, WithDecisionStore(store))
	}
	return NewCoordinator(Config{
		Name:                b.cfg.Coordinator.Name,
		Strategy:            coordStrategy,
		ConfidenceThreshold: b.cfg.Coordinator.Routing.ConfidenceThreshold,
		FallbackTeam:        b.cfg.Coordinator.Routing.FallbackTarget,
		MaxRetries:          b.cfg.Coordinator.Routing.MaxRetries,
		Flow:                flowFromConfig(b.cfg.Coordinator.Flow),
	}, reg, engine, teams, b.logger, opts...), nil
}

// registerTeam 把团队的 supervisor 与 workers 写进注册表
func (b *Builder) registerTeam(reg *registry.Registry, tc config.TeamConfig) error {
	if err := reg.Register(types.AgentCapability{
		AgentID:            tc.Supervisor.ID,
		Capabilities:       tc.Supervisor.Capabilities,
		MaxConcurrentTasks: tc.Supervisor.MaxConcurrentTasks,
	}); err != nil {
		return fmt.Errorf("team %s supervisor: %w", tc.Name, err)
	}
	for _, w := range tc.Workers {
		if err := reg.Register(types.AgentCapability{
			AgentID:                w.ID,
			Capabilities:           w.Capabilities,
			SpecializationKeywords: w.Keywords,
			Priority:               w.Priority,
			MaxConcurrentTasks:     w.MaxConcurrentTasks,
		}); err != nil {
			return fmt.Errorf("team %s worker: %w", tc.Name, err)
		}
	}
	return nil
}

// buildStrategy 按配置构造路由策略实例
func (b *Builder) buildStrategy(rc config.RoutingConfig) (routing.Strategy, error) {
	switch rc.Strategy {
	case routing.StrategyKeyword, "":
		return routing.NewKeywordStrategy(), nil
	case routing.StrategyCapability:
		return routing.NewCapabilityStrategy(), nil
	case routing.StrategyWorkload:
		return routing.NewWorkloadStrategy(), nil
	case routing.StrategyPerformance:
		return routing.NewPerformanceStrategy(), nil
	case routing.StrategyRule:
		rules := make([]routing.Rule, 0, len(rc.Rules))
		for _, r := range rc.Rules {
			cond, err := config.CompileCondition(r.Condition)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", r.Name, err)
			}
			rules = append(rules, routing.Rule{
				Name:      r.Name,
				Condition: cond,
				Target:    r.Target,
				Reason:    r.Reason,
			})
		}
		return routing.NewRuleStrategy(rules), nil
	case routing.StrategyLLM:
		if b.model == nil {
			return nil, types.NewError(types.ErrInvalidConfig,
				"llm_based strategy requires a decision model, use WithDecisionModel")
		}
		var opts []routing.LLMOption
		if rc.MaxDecisionTime > 0 {
			opts = append(opts, routing.WithMaxDecisionTime(rc.MaxDecisionTime))
		}
		return routing.NewLLMStrategy(b.model, b.logger, opts...), nil
	case routing.StrategyHybrid:
		parts := make(map[routing.Strategy]float64, len(rc.HybridWeights))
		for name, weight := range rc.HybridWeights {
			sub, err := b.buildStrategy(config.RoutingConfig{
				Strategy:        name,
				MaxDecisionTime: rc.MaxDecisionTime,
				Rules:           rc.Rules,
			})
			if err != nil {
				return nil, fmt.Errorf("hybrid sub-strategy %q: %w", name, err)
			}
			parts[sub] = weight
		}
		return routing.NewHybridStrategy(parts, b.logger)
	default:
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("unknown routing strategy %q", rc.Strategy))
	}
}

// buildStore 按配置选择历史存储后端
func (b *Builder) buildStore() (history.DecisionStore, error) {
	if b.store != nil {
		return b.store, nil
	}

	switch b.cfg.History.Backend {
	case "memory", "":
		return history.NewMemoryStore(b.cfg.History.Capacity), nil
	case "redis":
		var opts []history.RedisOption
		if b.collector != nil {
			opts = append(opts, history.WithCollector(b.collector))
		}
		return history.NewRedisStore(history.RedisConfig{
			Addr:      b.cfg.History.Redis.Addr,
			Password:  b.cfg.History.Redis.Password,
			DB:        b.cfg.History.Redis.DB,
			KeyPrefix: b.cfg.History.Redis.KeyPrefix,
			TTL:       b.cfg.History.Redis.TTL,
		}, b.logger, opts...)
	default:
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("unknown history backend %q", b.cfg.History.Backend))
	}
}

// flowFromConfig 把配置里的 flow 段转成运行时结构
func flowFromConfig(fc config.TaskFlowConfig) FlowConfig {
	out := FlowConfig{
		Type:             fc.Type,
		MaxParallelTasks: fc.MaxParallelTasks,
		TimeoutPerTask:   fc.TimeoutPerTask,
	}
	for _, st := range fc.Stages {
		out.Stages = append(out.Stages, Stage{
			Team:        st.Team,
			DependsOn:   append([]string(nil), st.DependsOn...),
			Description: st.Description,
		})
	}
	return out
}
