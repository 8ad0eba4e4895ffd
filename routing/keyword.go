package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/teamflow/types"
)

// KeywordStrategy 关键词匹配策略
// 分数 = agent 的专长关键词在任务描述 token 集中命中的比例。
// 全部命中得 1.0，零命中得 0；无关键词的 agent 无法被关键词区分，得 0。
type KeywordStrategy struct{}

// NewKeywordStrategy 创建关键词策略
func NewKeywordStrategy() *KeywordStrategy {
	return &KeywordStrategy{}
}

func (s *KeywordStrategy) Name() string { return StrategyKeyword }

func (s *KeywordStrategy) Score(_ context.Context, task *types.Task, candidates []types.AgentCapability) ([]types.ScoredCandidate, error) {
	tokens := tokenize(task.Description)

	scores := make([]types.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		matched := 0
		for _, kw := range c.SpecializationKeywords {
			if _, ok := tokens[normalizeKeyword(kw)]; ok {
				matched++
			}
		}

		var score float64
		if len(c.SpecializationKeywords) > 0 {
			score = float64(matched) / float64(len(c.SpecializationKeywords))
		}
		scores = append(scores, types.ScoredCandidate{
			AgentID: c.AgentID,
			Score:   score,
			Reason:  fmt.Sprintf("matched %d/%d keywords", matched, len(c.SpecializationKeywords)),
		})
	}
	return rankCandidates(candidates, scores), nil
}

// normalizeKeyword 关键词与 token 采用同一归一化规则（小写、去空白）
func normalizeKeyword(kw string) string {
	return strings.ToLower(strings.TrimSpace(kw))
}
