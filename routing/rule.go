package routing

import (
	"context"
	"fmt"

	"github.com/BaSui01/teamflow/types"
)

// Rule 一条路由规则：条件命中且目标在候选集内时直接选定目标
type Rule struct {
	Name      string
	Condition func(task *types.Task) bool
	Target    string
	Reason    string
}

// RuleStrategy 规则策略
// 按顺序匹配规则列表，第一条命中的规则目标得 1.0，其余候选得 0。
// 完全确定性：同一任务与规则列表两次运行结果一致。
type RuleStrategy struct {
	rules []Rule
}

// NewRuleStrategy 创建规则策略
func NewRuleStrategy(rules []Rule) *RuleStrategy {
	return &RuleStrategy{rules: rules}
}

func (s *RuleStrategy) Name() string { return StrategyRule }

func (s *RuleStrategy) Score(_ context.Context, task *types.Task, candidates []types.AgentCapability) ([]types.ScoredCandidate, error) {
	present := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		present[c.AgentID] = struct{}{}
	}

	for _, rule := range s.rules {
		if rule.Condition == nil || !rule.Condition(task) {
			continue
		}
		if _, ok := present[rule.Target]; !ok {
			// 目标不在候选集内的规则视为未命中，继续匹配下一条
			continue
		}

		reason := rule.Reason
		if reason == "" {
			reason = fmt.Sprintf("rule %q matched", rule.Name)
		}
		scores := make([]types.ScoredCandidate, 0, len(candidates))
		for _, c := range candidates {
			score := 0.0
			r := ""
			if c.AgentID == rule.Target {
				score = 1.0
				r = reason
			}
			scores = append(scores, types.ScoredCandidate{AgentID: c.AgentID, Score: score, Reason: r})
		}
		return rankCandidates(candidates, scores), nil
	}

	return zeroConfidence(candidates, "no rule matched"), nil
}
