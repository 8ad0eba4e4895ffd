package routing

import (
	"context"
	"fmt"

	"github.com/BaSui01/teamflow/types"
)

// WorkloadStrategy 负载均衡策略
// 分数 = 1 − CurrentLoad/MaxConcurrentTasks。
// 满负载的 agent 被直接从候选列表剔除，而不是打 0 分。
type WorkloadStrategy struct{}

// NewWorkloadStrategy 创建负载策略
func NewWorkloadStrategy() *WorkloadStrategy {
	return &WorkloadStrategy{}
}

func (s *WorkloadStrategy) Name() string { return StrategyWorkload }

func (s *WorkloadStrategy) Score(_ context.Context, _ *types.Task, candidates []types.AgentCapability) ([]types.ScoredCandidate, error) {
	scores := make([]types.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.HasCapacity() {
			continue
		}
		avail := c.Availability()
		scores = append(scores, types.ScoredCandidate{
			AgentID: c.AgentID,
			Score:   avail,
			Reason:  fmt.Sprintf("load %d/%d", c.CurrentLoad, c.MaxConcurrentTasks),
		})
	}
	return rankCandidates(candidates, scores), nil
}
