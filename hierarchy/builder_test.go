package hierarchy

import (
	"context"
	"testing"

	"github.com/BaSui01/teamflow/config"
	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/routing"
	"github.com/BaSui01/teamflow/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func builderConfig() *config.Config {
	return &config.Config{
		Coordinator: config.CoordinatorConfig{
			Name: "root",
			Routing: config.RoutingConfig{
				Strategy:            routing.StrategyKeyword,
				ConfidenceThreshold: 0.3,
				MaxRetries:          1,
			},
			Flow: config.TaskFlowConfig{
				Type:   FlowSequential,
				Stages: []config.StageConfig{{Team: "web"}},
			},
		},
		Teams: []config.TeamConfig{{
			Name:       "web",
			Supervisor: config.SupervisorConfig{ID: "web_lead", MaxConcurrentTasks: 1},
			Workers: []config.WorkerConfig{
				{ID: "web_searcher", Keywords: []string{"search", "web"}, MaxConcurrentTasks: 2},
			},
			Routing: config.RoutingConfig{
				Strategy:            routing.StrategyKeyword,
				ConfidenceThreshold: 0.3,
				MaxRetries:          1,
			},
		}},
		History: config.HistoryConfig{Backend: "memory", Capacity: 10},
	}
}

func TestBuilder_Build(t *testing.T) {
	exec := &recordingExecutor{}
	h, err := NewBuilder(builderConfig(), exec, zap.NewNop()).Build()
	require.NoError(t, err)

	result, err := h.Run(context.Background(), types.NewTask("search the web"))
	require.NoError(t, err)
	assert.Equal(t, "web_searcher", result.AgentID)
	assert.Equal(t, "web", result.Team)

	info := h.Info()
	assert.Equal(t, "root", info.Name)
	assert.Equal(t, 2, info.Agents)
	require.Len(t, info.Teams, 1)
	assert.Equal(t, "web_lead", info.Teams[0].SupervisorID)
}

func TestBuilder_NilConfig(t *testing.T) {
	_, err := NewBuilder(nil, &recordingExecutor{}, zap.NewNop()).Build()
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestBuilder_NilExecutor(t *testing.T) {
	_, err := NewBuilder(builderConfig(), nil, zap.NewNop()).Build()
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestBuilder_DuplicateAgentID(t *testing.T) {
	cfg := builderConfig()
	cfg.Teams = append(cfg.Teams, config.TeamConfig{
		Name:       "mirror",
		Supervisor: config.SupervisorConfig{ID: "mirror_lead"},
		Workers:    []config.WorkerConfig{{ID: "web_searcher"}},
		Routing:    config.RoutingConfig{Strategy: routing.StrategyKeyword},
	})

	_, err := NewBuilder(cfg, &recordingExecutor{}, zap.NewNop()).Build()
	require.Error(t, err)
	assert.Equal(t, types.ErrDuplicateAgent, types.GetErrorCode(err))
}

func TestBuilder_RuleStrategyFromConfig(t *testing.T) {
	cfg := builderConfig()
	cfg.Teams[0].Routing = config.RoutingConfig{
		Strategy:            routing.StrategyRule,
		ConfidenceThreshold: 0.5,
		Rules: []config.RuleConfig{{
			Name:      "urgent-to-searcher",
			Condition: "contains('urgent')",
			Target:    "web_searcher",
		}},
	}

	exec := &recordingExecutor{}
	h, err := NewBuilder(cfg, exec, zap.NewNop()).Build()
	require.NoError(t, err)

	// 层级路由仍走 keyword，团队内部由规则直接选定 worker
	result, err := h.Run(context.Background(), types.NewTask("urgent: search the web"))
	require.NoError(t, err)
	assert.Equal(t, "web_searcher", result.AgentID)
}

func TestBuilder_BadRuleCondition(t *testing.T) {
	cfg := builderConfig()
	cfg.Teams[0].Routing = config.RoutingConfig{
		Strategy: routing.StrategyRule,
		Rules:    []config.RuleConfig{{Name: "broken", Condition: "priority <=> 3", Target: "web_searcher"}},
	}

	_, err := NewBuilder(cfg, &recordingExecutor{}, zap.NewNop()).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestBuilder_HybridStrategyFromConfig(t *testing.T) {
	cfg := builderConfig()
	cfg.Teams[0].Routing = config.RoutingConfig{
		Strategy:            routing.StrategyHybrid,
		ConfidenceThreshold: 0.3,
		HybridWeights: map[string]float64{
			routing.StrategyKeyword:  0.6,
			routing.StrategyWorkload: 0.4,
		},
	}

	exec := &recordingExecutor{}
	h, err := NewBuilder(cfg, exec, zap.NewNop()).Build()
	require.NoError(t, err)

	result, err := h.Run(context.Background(), types.NewTask("search the web"))
	require.NoError(t, err)
	assert.Equal(t, "web_searcher", result.AgentID)
}

type stubDecisionModel struct{ decision *routing.ModelDecision }

func (m stubDecisionModel) Decide(context.Context, string, []types.AgentCapability) (*routing.ModelDecision, error) {
	return m.decision, nil
}

func TestBuilder_LLMStrategyNeedsModel(t *testing.T) {
	cfg := builderConfig()
	cfg.Teams[0].Routing.Strategy = routing.StrategyLLM

	_, err := NewBuilder(cfg, &recordingExecutor{}, zap.NewNop()).Build()
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestBuilder_LLMStrategyWithModel(t *testing.T) {
	cfg := builderConfig()
	cfg.Teams[0].Routing.Strategy = routing.StrategyLLM

	exec := &recordingExecutor{}
	model := stubDecisionModel{decision: &routing.ModelDecision{
		Target:     "web_searcher",
		Confidence: 0.9,
		Reasoning:  "only searcher available",
	}}
	h, err := NewBuilder(cfg, exec, zap.NewNop()).WithDecisionModel(model).Build()
	require.NoError(t, err)

	result, err := h.Run(context.Background(), types.NewTask("search the web"))
	require.NoError(t, err)
	assert.Equal(t, "web_searcher", result.AgentID)
}

func TestBuilder_UnknownStrategy(t *testing.T) {
	cfg := builderConfig()
	cfg.Teams[0].Routing.Strategy = "coin_flip"

	_, err := NewBuilder(cfg, &recordingExecutor{}, zap.NewNop()).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coin_flip")
}

func TestBuilder_UnknownHistoryBackend(t *testing.T) {
	cfg := builderConfig()
	cfg.History.Backend = "etcd"

	_, err := NewBuilder(cfg, &recordingExecutor{}, zap.NewNop()).Build()
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestBuilder_RedisHistoryBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := builderConfig()
	cfg.History = config.HistoryConfig{
		Backend: "redis",
		Redis:   config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:decisions:"},
	}

	exec := &recordingExecutor{}
	h, err := NewBuilder(cfg, exec, zap.NewNop()).Build()
	require.NoError(t, err)

	task := types.NewTask("search the web")
	_, err = h.Run(context.Background(), task)
	require.NoError(t, err)

	// 决策轨迹落进 Redis
	assert.True(t, mr.Exists("test:decisions:"+task.ID))
}

func TestBuilder_DecisionStoreOverride(t *testing.T) {
	store := history.NewMemoryStore(5)
	exec := &recordingExecutor{}
	h, err := NewBuilder(builderConfig(), exec, zap.NewNop()).WithDecisionStore(store).Build()
	require.NoError(t, err)

	task := types.NewTask("search the web")
	_, err = h.Run(context.Background(), task)
	require.NoError(t, err)

	trail, err := store.History(context.Background(), task.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, trail)
}
