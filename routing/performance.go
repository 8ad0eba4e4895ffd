package routing

import (
	"context"
	"fmt"

	"github.com/BaSui01/teamflow/types"
)

// DefaultPerformanceDecay 性能加权的默认衰减系数（每往前一条记录乘一次）
const DefaultPerformanceDecay = 0.9

// PerformanceStrategy 历史表现策略
// 分数为按时间衰减加权的近期成功率；任务带 task_type 时只统计同类型记录。
// 没有历史记录的 agent 得中性先验 0.5。
type PerformanceStrategy struct {
	// Decay 衰减系数，(0,1]；零值使用 DefaultPerformanceDecay
	Decay float64
	// FilterByTaskType 为 true 时按任务类型过滤历史
	FilterByTaskType bool
}

// NewPerformanceStrategy 创建历史表现策略
func NewPerformanceStrategy() *PerformanceStrategy {
	return &PerformanceStrategy{Decay: DefaultPerformanceDecay, FilterByTaskType: true}
}

func (s *PerformanceStrategy) Name() string { return StrategyPerformance }

func (s *PerformanceStrategy) Score(_ context.Context, task *types.Task, candidates []types.AgentCapability) ([]types.ScoredCandidate, error) {
	taskType := ""
	if s.FilterByTaskType {
		taskType = task.TaskType()
	}

	scores := make([]types.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		rate := c.SuccessRate(taskType, s.Decay)
		reason := fmt.Sprintf("weighted success rate %.2f over %d records", rate, len(c.PerformanceHistory))
		if len(c.PerformanceHistory) == 0 {
			reason = "no history, neutral prior"
		}
		scores = append(scores, types.ScoredCandidate{
			AgentID: c.AgentID,
			Score:   rate,
			Reason:  reason,
		})
	}
	return rankCandidates(candidates, scores), nil
}
