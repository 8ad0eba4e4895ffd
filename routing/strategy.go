package routing

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/BaSui01/teamflow/types"
)

// 策略名称常量，与配置文件中的 strategy 字段对应
const (
	StrategyKeyword     = "keyword_based"
	StrategyCapability  = "capability_based"
	StrategyWorkload    = "workload_based"
	StrategyPerformance = "performance_based"
	StrategyRule        = "rule_based"
	StrategyLLM         = "llm_based"
	StrategyHybrid      = "hybrid"
	// StrategyFallback 标记经由 fallback 链产生的决策
	StrategyFallback = "fallback"
	// StrategyNone 标记未配置策略时产生的决策
	StrategyNone = "none"
	// StrategyManual 标记绕过路由的直接指派
	StrategyManual = "manual"
)

// Strategy 路由策略接口
// Score 对候选集打分并返回降序排列的结果；除显式的 registry 调用外
// 不得产生副作用。
type Strategy interface {
	// Name 返回策略名称
	Name() string
	// Score 打分。candidates 顺序即注册顺序，用于稳定平局。
	Score(ctx context.Context, task *types.Task, candidates []types.AgentCapability) ([]types.ScoredCandidate, error)
}

// tokenize 将文本转为小写 token 集合。
// 切分规则：任何非字母非数字的 rune 都是分隔符；不做词干化。
func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}

// rankCandidates 按分数降序排序，同分按 Priority 升序、再按候选顺序。
// 排序是稳定的：打分为注册顺序的输入保证平局结果可复现。
func rankCandidates(candidates []types.AgentCapability, scores []types.ScoredCandidate) []types.ScoredCandidate {
	priority := make(map[string]int, len(candidates))
	index := make(map[string]int, len(candidates))
	for i, c := range candidates {
		priority[c.AgentID] = c.Priority
		index[c.AgentID] = i
	}

	ranked := append([]types.ScoredCandidate(nil), scores...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		pi, pj := priority[ranked[i].AgentID], priority[ranked[j].AgentID]
		if pi != pj {
			return pi < pj
		}
		return index[ranked[i].AgentID] < index[ranked[j].AgentID]
	})
	return ranked
}

// zeroConfidence 为全部候选生成零分列表，用于策略失败时的统一降级
func zeroConfidence(candidates []types.AgentCapability, reason string) []types.ScoredCandidate {
	out := make([]types.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, types.ScoredCandidate{AgentID: c.AgentID, Score: 0, Reason: reason})
	}
	return out
}
