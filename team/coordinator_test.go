package team

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/registry"
	"github.com/BaSui01/teamflow/routing"
	"github.com/BaSui01/teamflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingExecutor 记录每次分发并返回预设结果
type recordingExecutor struct {
	mu      sync.Mutex
	calls   []string
	results map[string]*types.ExecutionResult
	errs    map[string]error
	block   chan struct{} // 非 nil 时阻塞到通道关闭或 ctx 结束
	onExec  func(agentID string)
}

func (e *recordingExecutor) Execute(ctx context.Context, agentID string, task *types.Task) (*types.ExecutionResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, agentID)
	e.mu.Unlock()

	if e.onExec != nil {
		e.onExec(agentID)
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := e.errs[agentID]; ok {
		return nil, err
	}
	if r, ok := e.results[agentID]; ok {
		return r, nil
	}
	return &types.ExecutionResult{Output: "done by " + agentID, Success: true}, nil
}

func (e *recordingExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func webTeamRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(zap.NewNop())
	require.NoError(t, reg.Register(types.AgentCapability{
		AgentID:                "web_searcher",
		Capabilities:           []string{"search", "scrape"},
		SpecializationKeywords: []string{"search", "web"},
		MaxConcurrentTasks:     2,
	}))
	require.NoError(t, reg.Register(types.AgentCapability{
		AgentID:                "writer",
		Capabilities:           []string{"writing"},
		SpecializationKeywords: []string{"write", "article"},
		MaxConcurrentTasks:     2,
	}))
	require.NoError(t, reg.Register(types.AgentCapability{
		AgentID:            "web_supervisor",
		Capabilities:       []string{"search", "writing"},
		MaxConcurrentTasks: 1,
	}))
	return reg
}

func newWebCoordinator(reg *registry.Registry, exec Executor, cfg Config, opts ...Option) *Coordinator {
	if cfg.SupervisorID == "" {
		cfg.SupervisorID = "web_supervisor"
	}
	if cfg.WorkerIDs == nil {
		cfg.WorkerIDs = []string{"web_searcher", "writer"}
	}
	if cfg.Strategy == nil {
		cfg.Strategy = routing.NewKeywordStrategy()
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	engine := routing.NewEngine(zap.NewNop())
	return NewCoordinator("web", reg, engine, exec, cfg, zap.NewNop(), opts...)
}

func TestHandle_RoutesToKeywordMatch(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	coord := newWebCoordinator(reg, exec, Config{})

	task := types.NewTask("search the web for AI news")
	result, err := coord.Handle(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, "web_searcher", result.AgentID)
	assert.Equal(t, "web", result.Team)
	assert.Equal(t, types.TaskStatusSucceeded, task.Status)
	require.NotEmpty(t, task.Decisions)
	assert.Equal(t, "web_searcher", task.Decisions[0].Target)
	assert.Equal(t, 1.0, task.Decisions[0].Confidence)
}

func TestHandle_LoadBalancedExactlyOnce(t *testing.T) {
	reg := webTeamRegistry(t)

	var loadDuring int
	exec := &recordingExecutor{}
	exec.onExec = func(agentID string) {
		if desc, ok := reg.Get(agentID); ok {
			loadDuring = desc.CurrentLoad
		}
	}
	coord := newWebCoordinator(reg, exec, Config{})

	_, err := coord.Handle(context.Background(), types.NewTask("search the web"))
	require.NoError(t, err)

	assert.Equal(t, 1, loadDuring, "load must be held during execution")
	desc, ok := reg.Get("web_searcher")
	require.True(t, ok)
	assert.Equal(t, 0, desc.CurrentLoad, "load must be released after execution")
	assert.Len(t, desc.PerformanceHistory, 1)
	assert.True(t, desc.PerformanceHistory[0].Success)
}

func TestHandle_LoadReleasedOnFailure(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{
		errs: map[string]error{"web_searcher": assert.AnError},
	}
	coord := newWebCoordinator(reg, exec, Config{})

	task := types.NewTask("search the web")
	_, err := coord.Handle(context.Background(), task)
	require.Error(t, err)

	assert.Equal(t, types.TaskStatusFailed, task.Status)
	desc, _ := reg.Get("web_searcher")
	assert.Equal(t, 0, desc.CurrentLoad)
	require.Len(t, desc.PerformanceHistory, 1)
	assert.False(t, desc.PerformanceHistory[0].Success)
}

func TestHandle_FallbackBelowThreshold(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	coord := newWebCoordinator(reg, exec, Config{
		ConfidenceThreshold: 0.8,
		FallbackTarget:      "writer",
	})

	// 只命中 web_searcher 两个关键词中的一个，得分 0.5 < 0.8
	task := types.NewTask("search for something")
	result, err := coord.Handle(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, "writer", result.AgentID)
	require.NotEmpty(t, task.Decisions)
	last := task.Decisions[len(task.Decisions)-1]
	assert.Equal(t, routing.StrategyFallback, last.StrategyUsed)
	assert.Equal(t, 0.5, last.Confidence, "original top score is preserved for audit")
}

func TestHandle_EscalatesAfterRetries(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	coord := newWebCoordinator(reg, exec, Config{
		ConfidenceThreshold: 0.9,
		MaxRetries:          2,
	})

	// 无任何关键词命中，永远到不了阈值，也没有 fallback
	task := types.NewTask("paint the fence")
	_, err := coord.Handle(context.Background(), task)
	require.Error(t, err)

	assert.Equal(t, types.ErrEscalation, types.GetErrorCode(err))
	assert.Equal(t, types.TaskStatusEscalated, task.Status)
	assert.Equal(t, 0, exec.callCount(), "no dispatch on escalation")
	// 路由尝试次数受 max_retries+1 约束
	assert.Len(t, task.Decisions, 3)
}

func TestHandle_SupervisorFallback(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	coord := newWebCoordinator(reg, exec, Config{
		ConfidenceThreshold:  0.9,
		MaxRetries:           1,
		FallbackToSupervisor: true,
	})

	task := types.NewTask("paint the fence")
	result, err := coord.Handle(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, "web_supervisor", result.AgentID)
	assert.Equal(t, types.TaskStatusSucceeded, task.Status)
	last := task.Decisions[len(task.Decisions)-1]
	assert.Equal(t, "web_supervisor", last.Target)
}

func TestHandle_TaskTimeout(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{block: make(chan struct{})}
	coord := newWebCoordinator(reg, exec, Config{
		TaskTimeout: 30 * time.Millisecond,
	})

	task := types.NewTask("search the web")
	_, err := coord.Handle(context.Background(), task)
	require.Error(t, err)

	assert.Equal(t, types.TaskStatusFailed, task.Status)
	desc, _ := reg.Get("web_searcher")
	assert.Equal(t, 0, desc.CurrentLoad, "load released after timeout")
}

func TestHandle_CancelledContext(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	coord := newWebCoordinator(reg, exec, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := types.NewTask("search the web")
	_, err := coord.Handle(ctx, task)
	require.Error(t, err)
	assert.Equal(t, types.TaskStatusCancelled, task.Status)
	assert.Equal(t, 0, exec.callCount())
}

func TestHandle_DecisionsForwardedToStore(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	store := history.NewMemoryStore(10)
	coord := newWebCoordinator(reg, exec, Config{}, WithDecisionStore(store))

	task := types.NewTask("search the web for AI news")
	_, err := coord.Handle(context.Background(), task)
	require.NoError(t, err)

	recorded, err := store.History(context.Background(), task.ID)
	require.NoError(t, err)
	require.NotEmpty(t, recorded)
	assert.Equal(t, "web_searcher", recorded[0].Target)
}

func TestHandle_ConcurrentTasksRespectCapacity(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{block: make(chan struct{})}
	coord := newWebCoordinator(reg, exec, Config{
		Strategy:            routing.NewWorkloadStrategy(),
		ConfidenceThreshold: 0.1,
		MaxRetries:          3,
	})

	// web_searcher 与 writer 各容量 2，4 个并发任务全部可被接住
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = coord.Handle(context.Background(), types.NewTask("crunch numbers"))
		}(i)
	}

	// 等所有任务进入执行后放行
	require.Eventually(t, func() bool { return exec.callCount() == 4 }, time.Second, 5*time.Millisecond)
	close(exec.block)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	for _, id := range []string{"web_searcher", "writer"} {
		desc, _ := reg.Get(id)
		assert.Equal(t, 0, desc.CurrentLoad, "all loads released for %s", id)
	}
}

func TestStatus(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	coord := newWebCoordinator(reg, exec, Config{})

	_, err := coord.Handle(context.Background(), types.NewTask("search the web for AI news"))
	require.NoError(t, err)

	status := coord.Status()
	assert.Equal(t, "web", status.Name)
	assert.Equal(t, "web_supervisor", status.SupervisorID)
	require.Len(t, status.Workers, 2)
	assert.NotEmpty(t, status.RecentDecisions)
}

func TestCapability_Aggregates(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	coord := newWebCoordinator(reg, exec, Config{})

	agg := coord.Capability()
	assert.Equal(t, "web", agg.AgentID)
	assert.ElementsMatch(t, []string{"search", "scrape", "writing"}, agg.Capabilities)
	assert.ElementsMatch(t, []string{"search", "web", "write", "article"}, agg.SpecializationKeywords)
	assert.Equal(t, 4, agg.MaxConcurrentTasks)
}

func TestAssign_BypassesRouting(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	coord := newWebCoordinator(reg, exec, Config{})

	// 描述与 writer 的关键词毫无交集，路由本会选别人
	task := types.NewTask("search the web for AI news")
	result, err := coord.Assign(context.Background(), task, "writer")
	require.NoError(t, err)

	assert.Equal(t, "writer", result.AgentID)
	require.Len(t, task.Decisions, 1)
	assert.Equal(t, routing.StrategyManual, task.Decisions[0].StrategyUsed)

	// 槽位已释放
	w, _ := reg.Get("writer")
	assert.Equal(t, 0, w.CurrentLoad)
}

func TestAssign_SupervisorIsAssignable(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	coord := newWebCoordinator(reg, exec, Config{})

	result, err := coord.Assign(context.Background(), types.NewTask("anything"), "web_supervisor")
	require.NoError(t, err)
	assert.Equal(t, "web_supervisor", result.AgentID)
}

func TestAssign_NonMemberRejected(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	coord := newWebCoordinator(reg, exec, Config{})

	_, err := coord.Assign(context.Background(), types.NewTask("anything"), "ghost")
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentNotFound, types.GetErrorCode(err))
	assert.Zero(t, exec.callCount())
}

func TestAssign_RespectsCapacity(t *testing.T) {
	reg := webTeamRegistry(t)
	exec := &recordingExecutor{}
	coord := newWebCoordinator(reg, exec, Config{})

	require.NoError(t, reg.AdjustLoad("web_supervisor", +1)) // 占满唯一槽位
	_, err := coord.Assign(context.Background(), types.NewTask("anything"), "web_supervisor")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidState, types.GetErrorCode(err))
	assert.Zero(t, exec.callCount())
}

func TestHasMember(t *testing.T) {
	reg := webTeamRegistry(t)
	coord := newWebCoordinator(reg, &recordingExecutor{}, Config{})

	assert.True(t, coord.HasMember("writer"))
	assert.True(t, coord.HasMember("web_supervisor"))
	assert.False(t, coord.HasMember("ghost"))
}

func TestStatus_IncludesSuccessRate(t *testing.T) {
	reg := webTeamRegistry(t)
	coord := newWebCoordinator(reg, &recordingExecutor{}, Config{})

	require.NoError(t, reg.RecordOutcome("writer", "", true, time.Millisecond))
	status := coord.Status()
	for _, w := range status.Workers {
		if w.AgentID == "writer" {
			assert.Equal(t, 1.0, w.SuccessRate)
		} else {
			assert.Equal(t, 0.5, w.SuccessRate, "empty history scores the neutral prior")
		}
	}
}
