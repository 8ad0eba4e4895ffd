// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 路由指标
	routingDecisionsTotal *prometheus.CounterVec
	routingConfidence     *prometheus.HistogramVec

	// 分发指标
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	// 负载指标
	agentLoad *prometheus.GaugeVec

	// 升级指标
	escalationsTotal *prometheus.CounterVec

	// 历史存储指标
	historyOpsTotal *prometheus.CounterVec

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 路由指标
	c.routingDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Total number of routing decisions",
		},
		[]string{"scope", "strategy", "status"},
	)

	c.routingConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routing_confidence",
			Help:      "Confidence score distribution of committed routing decisions",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"scope", "strategy"},
	)

	// 分发指标
	c.dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_dispatches_total",
			Help:      "Total number of task dispatches to agents",
		},
		[]string{"team", "agent_id", "status"},
	)

	c.dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_dispatch_duration_seconds",
			Help:      "Task dispatch duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"team", "agent_id"},
	)

	// 负载指标
	c.agentLoad = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_current_load",
			Help:      "Number of tasks currently assigned to an agent",
		},
		[]string{"team", "agent_id"},
	)

	// 升级指标
	c.escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_escalations_total",
			Help:      "Total number of tasks escalated after exhausted retries",
		},
		[]string{"scope"},
	)

	// 历史存储指标
	c.historyOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_history_ops_total",
			Help:      "Total number of decision history store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🧭 路由指标记录
// =============================================================================

// RecordRoutingDecision 记录一次路由决策
func (c *Collector) RecordRoutingDecision(scope, strategy, status string, confidence float64) {
	c.routingDecisionsTotal.WithLabelValues(scope, strategy, status).Inc()
	if status == "committed" || status == "fallback" {
		c.routingConfidence.WithLabelValues(scope, strategy).Observe(confidence)
	}
	if status == "escalated" {
		c.escalationsTotal.WithLabelValues(scope).Inc()
	}
}

// =============================================================================
// 🚚 分发指标记录
// =============================================================================

// RecordDispatch 记录一次任务分发
func (c *Collector) RecordDispatch(team, agentID, status string, duration time.Duration) {
	c.dispatchTotal.WithLabelValues(team, agentID, status).Inc()
	c.dispatchDuration.WithLabelValues(team, agentID).Observe(duration.Seconds())
}

// SetAgentLoad 更新 Agent 当前负载
func (c *Collector) SetAgentLoad(team, agentID string, load int) {
	c.agentLoad.WithLabelValues(team, agentID).Set(float64(load))
}

// =============================================================================
// 🗄️ 历史存储指标记录
// =============================================================================

// RecordHistoryOp 记录决策历史读写
func (c *Collector) RecordHistoryOp(backend, operation, status string) {
	c.historyOpsTotal.WithLabelValues(backend, operation, status).Inc()
}
