package types

import "time"

// ScoredCandidate 策略打分后的候选项
type ScoredCandidate struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason,omitempty"`
}

// RoutingDecision 一次路由决策
// 决策一经产生即不可变；一个任务在多次重试中会积累多条决策。
type RoutingDecision struct {
	// Target 选中的 agent 或 team；无可用路由时为空串
	Target       string            `json:"target"`
	Confidence   float64           `json:"confidence"`
	StrategyUsed string            `json:"strategy_used"`
	Reasoning    string            `json:"reasoning,omitempty"`
	Alternatives []ScoredCandidate `json:"alternatives,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Resolved 判断决策是否选出了目标
func (d *RoutingDecision) Resolved() bool {
	return d != nil && d.Target != ""
}
