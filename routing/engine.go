package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/teamflow/internal/metrics"
	"github.com/BaSui01/teamflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config 单次路由的引擎配置
type Config struct {
	// Strategy 本次路由使用的策略
	Strategy Strategy
	// ConfidenceThreshold 提交决策所需的最低分数
	ConfidenceThreshold float64
	// FallbackTarget 低于阈值时的兜底目标；必须出现在候选集中才生效
	FallbackTarget string
	// MaxRetries 升级前允许的最大重试次数
	MaxRetries int
	// Scope 决策范围标签（team 名或 "hierarchy"），仅用于日志与指标
	Scope string
}

// Engine 路由引擎
// 运行策略、套用阈值与 fallback、驱动重试/升级状态迁移。
// 引擎自身无全局可变状态，从不阻塞；等待与退避由调用方负责。
type Engine struct {
	logger    *zap.Logger
	collector *metrics.Collector
	tracer    trace.Tracer
}

// EngineOption 引擎选项
type EngineOption func(*Engine)

// WithCollector 注入指标收集器
func WithCollector(c *metrics.Collector) EngineOption {
	return func(e *Engine) { e.collector = c }
}

// NewEngine 创建路由引擎
func NewEngine(logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger: logger.With(zap.String("component", "routing_engine")),
		tracer: otel.Tracer("github.com/BaSui01/teamflow/routing"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Route 为任务选出目标。
//
// 算法：
//  1. 运行策略；策略失败转换为零置信度候选列表，统一走后续逻辑；
//  2. 最高分 ≥ 阈值 ⇒ 提交决策（任务进入 routed）；
//  3. 否则若配置了 fallback 且目标在候选集内 ⇒ 提交 strategy_used="fallback"
//     的决策，原始分数保留在 Confidence 供审计；
//  4. 否则 RetryCount+1；超过 MaxRetries ⇒ 任务升级（escalated），
//     返回空目标决策与 ESCALATION 错误；未超过 ⇒ NO_ROUTE_FOUND，
//     调用方可在注册表状态变化后重试。
//
// 每次尝试的决策都会追加到任务的审计轨迹。
func (e *Engine) Route(ctx context.Context, task *types.Task, candidates []types.AgentCapability, cfg Config) (*types.RoutingDecision, error) {
	ctx, span := e.tracer.Start(ctx, "routing.Route",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("routing.scope", cfg.Scope),
		))
	defer span.End()

	strategyName := StrategyNone
	var ranked []types.ScoredCandidate
	if cfg.Strategy == nil {
		ranked = zeroConfidence(candidates, "no strategy configured")
	} else {
		strategyName = cfg.Strategy.Name()
		span.SetAttributes(attribute.String("routing.strategy", strategyName))

		var err error
		ranked, err = cfg.Strategy.Score(ctx, task, candidates)
		if err != nil {
			// 策略失败不外泄：转换为零分候选，走 fallback/重试机制
			e.logger.Warn("strategy execution failed",
				zap.String("task_id", task.ID),
				zap.String("strategy", strategyName),
				zap.Error(err),
			)
			ranked = zeroConfidence(candidates, fmt.Sprintf("strategy failed: %v", err))
		}
	}

	var top types.ScoredCandidate
	if len(ranked) > 0 {
		top = ranked[0]
	}

	// 1. 达到阈值，提交决策
	if len(ranked) > 0 && top.Score >= cfg.ConfidenceThreshold {
		decision := e.commit(task, types.RoutingDecision{
			Target:       top.AgentID,
			Confidence:   top.Score,
			StrategyUsed: strategyName,
			Reasoning:    top.Reason,
			Alternatives: alternatives(ranked),
		})
		e.record(cfg, strategyName, "committed", decision.Confidence)
		span.SetAttributes(attribute.String("routing.target", decision.Target))
		return decision, nil
	}

	// 2. fallback 链
	if cfg.FallbackTarget != "" {
		for _, c := range candidates {
			if c.AgentID != cfg.FallbackTarget {
				continue
			}
			decision := e.commit(task, types.RoutingDecision{
				Target:       cfg.FallbackTarget,
				Confidence:   top.Score,
				StrategyUsed: StrategyFallback,
				Reasoning: fmt.Sprintf("top candidate %q scored %.2f below threshold %.2f, using fallback",
					top.AgentID, top.Score, cfg.ConfidenceThreshold),
				Alternatives: alternatives(ranked),
			})
			e.record(cfg, strategyName, "fallback", decision.Confidence)
			span.SetAttributes(attribute.String("routing.target", decision.Target))
			e.logger.Info("fallback route committed",
				zap.String("task_id", task.ID),
				zap.String("target", cfg.FallbackTarget),
				zap.Float64("original_score", top.Score),
			)
			return decision, nil
		}
	}

	// 3. 重试计数与升级
	task.RetryCount++
	noRoute := &types.RoutingDecision{
		Confidence:   0,
		StrategyUsed: strategyName,
		Reasoning: fmt.Sprintf("no candidate reached threshold %.2f and no usable fallback (attempt %d/%d)",
			cfg.ConfidenceThreshold, task.RetryCount, cfg.MaxRetries+1),
		Alternatives: alternatives(ranked),
		Timestamp:    time.Now(),
	}
	task.RecordDecision(noRoute)

	if task.RetryCount > cfg.MaxRetries {
		task.Status = types.TaskStatusEscalated
		e.record(cfg, strategyName, "escalated", 0)
		e.logger.Warn("task escalated, retries exhausted",
			zap.String("task_id", task.ID),
			zap.Int("retry_count", task.RetryCount),
			zap.Int("decisions", len(task.Decisions)),
		)
		return noRoute, types.NewError(types.ErrEscalation,
			fmt.Sprintf("task %s escalated after %d routing attempts", task.ID, task.RetryCount))
	}

	e.record(cfg, strategyName, "no_route", 0)
	return noRoute, types.NewError(types.ErrNoRouteFound,
		fmt.Sprintf("no route for task %s (attempt %d/%d)", task.ID, task.RetryCount, cfg.MaxRetries+1)).
		WithRetryable(true)
}

// commit 落定一个决策：写入时间戳、记录审计轨迹、推进任务状态
func (e *Engine) commit(task *types.Task, d types.RoutingDecision) *types.RoutingDecision {
	d.Timestamp = time.Now()
	decision := &d
	task.RecordDecision(decision)
	if !task.Status.IsTerminal() {
		task.Status = types.TaskStatusRouted
	}
	return decision
}

func (e *Engine) record(cfg Config, strategy, status string, confidence float64) {
	if e.collector == nil {
		return
	}
	e.collector.RecordRoutingDecision(cfg.Scope, strategy, status, confidence)
}

// alternatives 取排名第 2、3 位作为备选，供审计与测试
func alternatives(ranked []types.ScoredCandidate) []types.ScoredCandidate {
	if len(ranked) <= 1 {
		return nil
	}
	end := len(ranked)
	if end > 3 {
		end = 3
	}
	return append([]types.ScoredCandidate(nil), ranked[1:end]...)
}
