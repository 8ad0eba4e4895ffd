package routing

import (
	"context"
	"strings"
	"testing"

	"github.com/BaSui01/teamflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func webCandidates() []types.AgentCapability {
	return []types.AgentCapability{
		{
			AgentID:                "web_searcher",
			Capabilities:           []string{"search", "scrape"},
			SpecializationKeywords: []string{"search", "web"},
			MaxConcurrentTasks:     2,
		},
		{
			AgentID:                "writer",
			Capabilities:           []string{"writing"},
			SpecializationKeywords: []string{"write", "article"},
			MaxConcurrentTasks:     2,
		},
	}
}

// --- keyword_based ---

func TestKeywordStrategy_FullMatch(t *testing.T) {
	s := NewKeywordStrategy()
	task := types.NewTask("search the web for AI news")

	scores, err := s.Score(context.Background(), task, webCandidates())
	require.NoError(t, err)
	require.Len(t, scores, 2)

	// 两个关键词全部命中
	assert.Equal(t, "web_searcher", scores[0].AgentID)
	assert.Equal(t, 1.0, scores[0].Score)
	assert.Equal(t, "writer", scores[1].AgentID)
	assert.Equal(t, 0.0, scores[1].Score)
}

func TestKeywordStrategy_PartialMatch(t *testing.T) {
	s := NewKeywordStrategy()
	task := types.NewTask("search for a restaurant")

	scores, err := s.Score(context.Background(), task, webCandidates())
	require.NoError(t, err)
	assert.Equal(t, "web_searcher", scores[0].AgentID)
	assert.Equal(t, 0.5, scores[0].Score)
}

func TestKeywordStrategy_CaseAndPunctuation(t *testing.T) {
	s := NewKeywordStrategy()
	task := types.NewTask("SEARCH, then more: Web!")

	scores, err := s.Score(context.Background(), task, webCandidates())
	require.NoError(t, err)
	assert.Equal(t, 1.0, scores[0].Score)
}

func TestKeywordStrategy_NoKeywords(t *testing.T) {
	s := NewKeywordStrategy()
	candidates := []types.AgentCapability{{AgentID: "bare", MaxConcurrentTasks: 1}}

	scores, err := s.Score(context.Background(), types.NewTask("anything"), candidates)
	require.NoError(t, err)
	assert.Equal(t, 0.0, scores[0].Score)
}

// Property: 往任务描述里加词不会降低任何候选的关键词得分。
func TestKeywordStrategy_MonotoneUnderDescriptionGrowth(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 1, 10).Draw(t, "words")
		extra := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 0, 5).Draw(t, "extra")
		keywords := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 1, 5).Draw(t, "keywords")

		candidates := []types.AgentCapability{{
			AgentID:                "a",
			SpecializationKeywords: keywords,
			MaxConcurrentTasks:     1,
		}}
		s := NewKeywordStrategy()

		base, err := s.Score(context.Background(),
			types.NewTask(strings.Join(words, " ")), candidates)
		if err != nil {
			t.Fatal(err)
		}
		grown, err := s.Score(context.Background(),
			types.NewTask(strings.Join(append(words, extra...), " ")), candidates)
		if err != nil {
			t.Fatal(err)
		}

		if grown[0].Score < base[0].Score {
			t.Fatalf("score dropped from %v to %v after adding words", base[0].Score, grown[0].Score)
		}
	})
}

// --- capability_based ---

func TestCapabilityStrategy_Jaccard(t *testing.T) {
	s := NewCapabilityStrategy()
	task := types.NewTask("t").WithCapabilities("search")

	scores, err := s.Score(context.Background(), task, webCandidates())
	require.NoError(t, err)

	// |{search} ∩ {search,scrape}| / |{search} ∪ {search,scrape}| = 1/2
	assert.Equal(t, "web_searcher", scores[0].AgentID)
	assert.Equal(t, 0.5, scores[0].Score)
	assert.Equal(t, 0.0, scores[1].Score)
}

func TestCapabilityStrategy_NoRequirements(t *testing.T) {
	s := NewCapabilityStrategy()

	scores, err := s.Score(context.Background(), types.NewTask("t"), webCandidates())
	require.NoError(t, err)
	for _, sc := range scores {
		assert.Equal(t, 1.0, sc.Score)
	}
}

// --- workload_based ---

func TestWorkloadStrategy_PrefersIdle(t *testing.T) {
	s := NewWorkloadStrategy()
	candidates := webCandidates()
	candidates[0].CurrentLoad = 1 // availability 0.5

	scores, err := s.Score(context.Background(), types.NewTask("t"), candidates)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "writer", scores[0].AgentID)
	assert.Equal(t, 1.0, scores[0].Score)
	assert.Equal(t, 0.5, scores[1].Score)
}

func TestWorkloadStrategy_ExcludesFullAgents(t *testing.T) {
	s := NewWorkloadStrategy()
	candidates := webCandidates()
	candidates[0].CurrentLoad = 2 // 满负载

	scores, err := s.Score(context.Background(), types.NewTask("t"), candidates)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, "writer", scores[0].AgentID)
}

// --- performance_based ---

func TestPerformanceStrategy_WeightsRecentOutcomes(t *testing.T) {
	s := NewPerformanceStrategy()
	candidates := []types.AgentCapability{
		{
			AgentID:            "flaky",
			MaxConcurrentTasks: 1,
			PerformanceHistory: []types.OutcomeRecord{
				{Success: true}, {Success: false}, {Success: false},
			},
		},
		{
			AgentID:            "solid",
			MaxConcurrentTasks: 1,
			PerformanceHistory: []types.OutcomeRecord{
				{Success: false}, {Success: true}, {Success: true},
			},
		},
	}

	scores, err := s.Score(context.Background(), types.NewTask("t"), candidates)
	require.NoError(t, err)
	assert.Equal(t, "solid", scores[0].AgentID)
	assert.Greater(t, scores[0].Score, scores[1].Score)
}

func TestPerformanceStrategy_NeutralPrior(t *testing.T) {
	s := NewPerformanceStrategy()
	candidates := []types.AgentCapability{{AgentID: "fresh", MaxConcurrentTasks: 1}}

	scores, err := s.Score(context.Background(), types.NewTask("t"), candidates)
	require.NoError(t, err)
	assert.Equal(t, 0.5, scores[0].Score)
}

func TestPerformanceStrategy_FiltersByTaskType(t *testing.T) {
	s := NewPerformanceStrategy()
	candidates := []types.AgentCapability{{
		AgentID:            "a",
		MaxConcurrentTasks: 1,
		PerformanceHistory: []types.OutcomeRecord{
			{TaskType: "research", Success: false},
			{TaskType: "writing", Success: true},
		},
	}}

	task := types.NewTask("t").WithContext("task_type", "writing")
	scores, err := s.Score(context.Background(), task, candidates)
	require.NoError(t, err)
	assert.Equal(t, 1.0, scores[0].Score, "only same-type records count")
}

// --- rule_based ---

func TestRuleStrategy_FirstMatchWins(t *testing.T) {
	s := NewRuleStrategy([]Rule{
		{
			Name:      "urgent_to_searcher",
			Condition: func(task *types.Task) bool { return strings.Contains(strings.ToLower(task.Description), "urgent") },
			Target:    "web_searcher",
		},
		{
			Name:      "everything_to_writer",
			Condition: func(*types.Task) bool { return true },
			Target:    "writer",
		},
	})

	scores, err := s.Score(context.Background(), types.NewTask("URGENT request"), webCandidates())
	require.NoError(t, err)
	assert.Equal(t, "web_searcher", scores[0].AgentID)
	assert.Equal(t, 1.0, scores[0].Score)

	scores, err = s.Score(context.Background(), types.NewTask("calm request"), webCandidates())
	require.NoError(t, err)
	assert.Equal(t, "writer", scores[0].AgentID)
	assert.Equal(t, 1.0, scores[0].Score)
}

func TestRuleStrategy_TargetNotCandidate(t *testing.T) {
	s := NewRuleStrategy([]Rule{
		{
			Name:      "to_ghost",
			Condition: func(*types.Task) bool { return true },
			Target:    "ghost",
		},
	})

	scores, err := s.Score(context.Background(), types.NewTask("t"), webCandidates())
	require.NoError(t, err)
	for _, sc := range scores {
		assert.Equal(t, 0.0, sc.Score)
	}
}

func TestRuleStrategy_Deterministic(t *testing.T) {
	s := NewRuleStrategy([]Rule{
		{
			Name:      "high_priority",
			Condition: func(task *types.Task) bool { return task.Priority >= 8 },
			Target:    "web_searcher",
		},
	})
	task := types.NewTask("t").WithPriority(9)

	first, err := s.Score(context.Background(), task, webCandidates())
	require.NoError(t, err)
	second, err := s.Score(context.Background(), task, webCandidates())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// --- 排序辅助 ---

func TestRankCandidates_TieBreaks(t *testing.T) {
	candidates := []types.AgentCapability{
		{AgentID: "late_low_priority", Priority: 5, MaxConcurrentTasks: 1},
		{AgentID: "high_priority", Priority: 1, MaxConcurrentTasks: 1},
		{AgentID: "same_priority", Priority: 1, MaxConcurrentTasks: 1},
	}
	scores := []types.ScoredCandidate{
		{AgentID: "late_low_priority", Score: 0.5},
		{AgentID: "high_priority", Score: 0.5},
		{AgentID: "same_priority", Score: 0.5},
	}

	ranked := rankCandidates(candidates, scores)
	// 同分：优先级小者在前；再同：候选顺序
	assert.Equal(t, "high_priority", ranked[0].AgentID)
	assert.Equal(t, "same_priority", ranked[1].AgentID)
	assert.Equal(t, "late_low_priority", ranked[2].AgentID)
}
