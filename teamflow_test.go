package teamflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/teamflow/config"
	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/routing"
	"github.com/BaSui01/teamflow/team"
	"github.com/BaSui01/teamflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Coordinator: config.CoordinatorConfig{
			Name: "root",
			Routing: config.RoutingConfig{
				Strategy:            routing.StrategyKeyword,
				ConfidenceThreshold: 0.3,
				MaxRetries:          1,
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
			},
		}},
	}
}

func echoExecutor() team.Executor {
	return team.ExecutorFunc(func(_ context.Context, agentID string, _ *types.Task) (*types.ExecutionResult, error) {
		return &types.ExecutionResult{Output: agentID, Success: true}, nil
	})
}

func TestNew(t *testing.T) {
	h, err := New(testConfig(), echoExecutor())
	require.NoError(t, err)

	result, err := h.Run(context.Background(), types.NewTask("search the web"))
	require.NoError(t, err)
	assert.Equal(t, "web_searcher", result.AgentID)
}

func TestNew_WithDecisionStore(t *testing.T) {
	store := history.NewMemoryStore(5)
	h, err := New(testConfig(), echoExecutor(), WithDecisionStore(store))
	require.NoError(t, err)

	task := types.NewTask("search the web")
	_, err = h.Run(context.Background(), task)
	require.NoError(t, err)

	trail, err := store.History(context.Background(), task.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, trail)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "teams.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
coordinator:
  name: root
  routing:
    strategy: keyword_based
    confidence_threshold: 0.5
teams:
  - name: web
    supervisor:
      id: web_lead
    workers:
      - id: web_searcher
        keywords: [search, web]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.Coordinator.Name)
	require.Len(t, cfg.Teams, 1)
	assert.Equal(t, "web_searcher", cfg.Teams[0].Workers[0].ID)
}

func TestLoad_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "teams.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
coordinator:
  name: root
teams: []
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)

	var typed *types.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, types.ErrInvalidConfig, typed.Code)
}
