package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/teamflow/types"
)

// CapabilityStrategy 能力匹配策略
// 分数为任务所需能力集与 agent 能力集的 Jaccard 相似度。
// 任务未声明所需能力时所有候选得 1.0（无法区分）。
type CapabilityStrategy struct{}

// NewCapabilityStrategy 创建能力匹配策略
func NewCapabilityStrategy() *CapabilityStrategy {
	return &CapabilityStrategy{}
}

func (s *CapabilityStrategy) Name() string { return StrategyCapability }

func (s *CapabilityStrategy) Score(_ context.Context, task *types.Task, candidates []types.AgentCapability) ([]types.ScoredCandidate, error) {
	required := toSet(task.RequiredCapabilities)

	scores := make([]types.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if len(required) == 0 {
			scores = append(scores, types.ScoredCandidate{
				AgentID: c.AgentID,
				Score:   1.0,
				Reason:  "task declares no required capabilities",
			})
			continue
		}

		score := jaccard(required, toSet(c.Capabilities))
		scores = append(scores, types.ScoredCandidate{
			AgentID: c.AgentID,
			Score:   score,
			Reason:  fmt.Sprintf("capability similarity %.2f", score),
		})
	}
	return rankCandidates(candidates, scores), nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.ToLower(strings.TrimSpace(it))
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

// jaccard 计算两个集合的 Jaccard 相似度；两集合均空时定义为 0
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
