package routing

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
)

// HybridStrategy 混合策略
// 对一组子策略的分数做加权线性组合（权重和为 1）。
// 任一子策略失败时整体降级为 keyword_based 的排序结果。
type HybridStrategy struct {
	parts   []weightedStrategy
	keyword Strategy // 降级路径
	logger  *zap.Logger
}

type weightedStrategy struct {
	strategy Strategy
	weight   float64
}

// NewHybridStrategy 创建混合策略。
// weights 以策略实例为键给出权重；权重和必须为 1（配置层已校验，
// 这里再做一次防御性归一以吸收浮点误差）。
func NewHybridStrategy(parts map[Strategy]float64, logger *zap.Logger) (*HybridStrategy, error) {
	if len(parts) == 0 {
		return nil, types.NewError(types.ErrInvalidConfig, "hybrid strategy needs at least one sub-strategy")
	}

	var sum float64
	for _, w := range parts {
		if w < 0 {
			return nil, types.NewError(types.ErrInvalidConfig, "hybrid weight must not be negative")
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("hybrid weights must sum to 1, got %.4f", sum))
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	h := &HybridStrategy{
		keyword: NewKeywordStrategy(),
		logger:  logger.With(zap.String("component", "hybrid_strategy")),
	}
	for s, w := range parts {
		h.parts = append(h.parts, weightedStrategy{strategy: s, weight: w})
		if s.Name() == StrategyKeyword {
			h.keyword = s
		}
	}
	return h, nil
}

func (s *HybridStrategy) Name() string { return StrategyHybrid }

func (s *HybridStrategy) Score(ctx context.Context, task *types.Task, candidates []types.AgentCapability) ([]types.ScoredCandidate, error) {
	combined := make(map[string]float64, len(candidates))
	reasons := make(map[string][]string, len(candidates))
	for _, c := range candidates {
		combined[c.AgentID] = 0
	}

	for _, part := range s.parts {
		scores, err := part.strategy.Score(ctx, task, candidates)
		if err != nil {
			s.logger.Warn("sub-strategy failed, degrading to keyword ranking",
				zap.String("strategy", part.strategy.Name()),
				zap.Error(err),
			)
			return s.keyword.Score(ctx, task, candidates)
		}
		for _, sc := range scores {
			if _, ok := combined[sc.AgentID]; !ok {
				// workload_based 会剔除满负载候选；剔除项按 0 分计入组合
				continue
			}
			combined[sc.AgentID] += sc.Score * part.weight
			if sc.Score > 0 {
				reasons[sc.AgentID] = append(reasons[sc.AgentID],
					fmt.Sprintf("%s=%.2f", part.strategy.Name(), sc.Score))
			}
		}
	}

	scores := make([]types.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		scores = append(scores, types.ScoredCandidate{
			AgentID: c.AgentID,
			Score:   combined[c.AgentID],
			Reason:  strings.Join(reasons[c.AgentID], ", "),
		})
	}
	return rankCandidates(candidates, scores), nil
}
