package hierarchy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/teamflow/routing"
	"github.com/BaSui01/teamflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// 任务流类型
const (
	FlowSequential  = "sequential"
	FlowParallel    = "parallel"
	FlowPipeline    = "pipeline"
	FlowConditional = "conditional"
)

// 子任务上下文键
const (
	ctxParentTaskID   = "parent_task_id"
	ctxPreviousOutput = "previous_output"
	ctxStageOutputs   = "stage_outputs"
)

// StageResult 单个阶段的执行结果
type StageResult struct {
	Team   string                 `json:"team"`
	Task   *types.Task            `json:"task"`
	Result *types.ExecutionResult `json:"result,omitempty"`
	Err    error                  `json:"-"`
}

// FlowResult 一次多阶段任务流的汇总结果
type FlowResult struct {
	TaskID    string        `json:"task_id"`
	FlowType  string        `json:"flow_type"`
	Stages    []StageResult `json:"stages"`
	Output    string        `json:"output"`
	Completed bool          `json:"completed"`
}

// RunFlow 按配置的流类型执行多阶段任务。
// 返回的 FlowResult 总是携带已执行阶段的结果，即使流中途失败。
// 流的终局回写到入参任务的状态：成功 succeeded、阶段升级
// escalated、其余失败 failed。
func (c *Coordinator) RunFlow(ctx context.Context, task *types.Task) (*FlowResult, error) {
	if len(c.cfg.Flow.Stages) == 0 {
		return nil, types.NewError(types.ErrInvalidConfig, "task flow has no stages")
	}

	ctx, span := c.tracer.Start(ctx, "hierarchy.RunFlow",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("flow.type", c.cfg.Flow.Type),
			attribute.Int("flow.stages", len(c.cfg.Flow.Stages)),
		))
	defer span.End()

	c.logger.Info("task flow started",
		zap.String("task_id", task.ID),
		zap.String("flow_type", c.cfg.Flow.Type),
		zap.Int("stages", len(c.cfg.Flow.Stages)),
	)

	var fr *FlowResult
	var err error
	switch c.cfg.Flow.Type {
	case FlowSequential, "":
		fr, err = c.runSequential(ctx, task)
	case FlowParallel:
		fr, err = c.runParallel(ctx, task)
	case FlowPipeline:
		fr, err = c.runPipeline(ctx, task)
	case FlowConditional:
		fr, err = c.runConditional(ctx, task)
	default:
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("unknown flow type %q", c.cfg.Flow.Type))
	}

	// 阶段的终局同步到父任务，升级继续向上传播
	switch {
	case err == nil:
		task.Status = types.TaskStatusSucceeded
	case types.IsCode(err, types.ErrEscalation):
		task.Status = types.TaskStatusEscalated
	default:
		task.Status = types.TaskStatusFailed
	}
	return fr, err
}

// runSequential 按依赖序逐阶段执行，无 depends_on 时即声明顺序，
// 前一阶段输出注入下一阶段上下文。任一阶段失败（含升级）即中止，
// 后续阶段不再调度。
func (c *Coordinator) runSequential(ctx context.Context, task *types.Task) (*FlowResult, error) {
	fr := &FlowResult{TaskID: task.ID, FlowType: FlowSequential}

	stages, err := orderStages(c.cfg.Flow.Stages)
	if err != nil {
		return fr, err
	}

	var prev string
	for i, stage := range stages {
		sub := c.stageTask(task, stage)
		if i > 0 {
			sub.WithContext(ctxPreviousOutput, prev)
		}

		result, err := c.runStage(ctx, stage, sub)
		fr.Stages = append(fr.Stages, StageResult{Team: stage.Team, Task: sub, Result: result, Err: err})
		if err != nil {
			c.logger.Warn("sequential flow halted",
				zap.String("task_id", task.ID),
				zap.String("team", stage.Team),
				zap.Int("stage", i),
				zap.Error(err),
			)
			return fr, err
		}
		prev = result.Output
	}

	fr.Output = prev
	fr.Completed = true
	return fr, nil
}

// runParallel 并发执行所有阶段，受 max_parallel_tasks 约束。
// 各阶段互不依赖；失败的分支不取消其余分支，结果按声明顺序汇总。
func (c *Coordinator) runParallel(ctx context.Context, task *types.Task) (*FlowResult, error) {
	stages := c.cfg.Flow.Stages
	fr := &FlowResult{TaskID: task.ID, FlowType: FlowParallel, Stages: make([]StageResult, len(stages))}

	var g errgroup.Group
	if c.cfg.Flow.MaxParallelTasks > 0 {
		g.SetLimit(c.cfg.Flow.MaxParallelTasks)
	}
	for i, stage := range stages {
		i, stage := i, stage
		g.Go(func() error {
			sub := c.stageTask(task, stage)
			result, err := c.runStage(ctx, stage, sub)
			fr.Stages[i] = StageResult{Team: stage.Team, Task: sub, Result: result, Err: err}
			return nil // 分支失败不中断其余分支
		})
	}
	_ = g.Wait()

	var outputs []string
	var firstErr error
	for _, sr := range fr.Stages {
		if sr.Err != nil {
			if firstErr == nil {
				firstErr = sr.Err
			}
			continue
		}
		outputs = append(outputs, sr.Result.Output)
	}
	fr.Output = strings.Join(outputs, "\n\n")
	fr.Completed = firstErr == nil
	return fr, firstErr
}

// runPipeline 按 depends_on 构成的 DAG 执行：依赖全部成功的阶段才会
// 调度，依赖失败的阶段被跳过。同一就绪批次内并发执行，受信号量约束。
func (c *Coordinator) runPipeline(ctx context.Context, task *types.Task) (*FlowResult, error) {
	stages := c.cfg.Flow.Stages
	fr := &FlowResult{TaskID: task.ID, FlowType: FlowPipeline, Stages: make([]StageResult, len(stages))}

	limit := int64(c.cfg.Flow.MaxParallelTasks)
	if limit <= 0 {
		limit = int64(len(stages))
	}
	sem := semaphore.NewWeighted(limit)

	var mu sync.Mutex
	outputs := make(map[string]string, len(stages)) // 团队名 → 阶段输出
	failed := make(map[string]bool, len(stages))
	done := make(map[string]bool, len(stages))

	remaining := len(stages)
	started := make([]bool, len(stages))
	for remaining > 0 {
		var batch []int
		for i, stage := range stages {
			if started[i] {
				continue
			}
			ready, blocked := true, false
			for _, dep := range stage.DependsOn {
				if failed[dep] {
					blocked = true
					break
				}
				if !done[dep] {
					ready = false
				}
			}
			if blocked {
				// 依赖失败，阶段跳过
				started[i] = true
				remaining--
				failed[stage.Team] = true
				fr.Stages[i] = StageResult{
					Team: stage.Team,
					Err: types.NewError(types.ErrInvalidState,
						fmt.Sprintf("stage %s skipped: upstream dependency failed", stage.Team)).WithTarget(stage.Team),
				}
				continue
			}
			if ready {
				batch = append(batch, i)
			}
		}
		if len(batch) == 0 {
			if remaining > 0 {
				return fr, types.NewError(types.ErrDependencyCycle,
					"pipeline flow made no progress, stage dependencies form a cycle")
			}
			break
		}

		var g errgroup.Group
		for _, i := range batch {
			i := i
			stage := stages[i]
			started[i] = true
			remaining--

			sub := c.stageTask(task, stage)
			mu.Lock()
			depOut := make(map[string]string, len(stage.DependsOn))
			for _, dep := range stage.DependsOn {
				depOut[dep] = outputs[dep]
			}
			mu.Unlock()
			if len(depOut) > 0 {
				sub.WithContext(ctxStageOutputs, depOut)
			}

			g.Go(func() error {
				if err := sem.Acquire(ctx, 1); err != nil {
					mu.Lock()
					failed[stage.Team] = true
					fr.Stages[i] = StageResult{Team: stage.Team, Task: sub, Err: err}
					mu.Unlock()
					return nil
				}
				defer sem.Release(1)

				result, err := c.runStage(ctx, stage, sub)
				mu.Lock()
				fr.Stages[i] = StageResult{Team: stage.Team, Task: sub, Result: result, Err: err}
				if err != nil {
					failed[stage.Team] = true
				} else {
					done[stage.Team] = true
					outputs[stage.Team] = result.Output
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	var firstErr error
	for _, sr := range fr.Stages {
		if sr.Err != nil && firstErr == nil {
			firstErr = sr.Err
		}
	}

	// 终端阶段（无下游依赖者）的输出即流输出
	dependedOn := make(map[string]bool, len(stages))
	for _, stage := range stages {
		for _, dep := range stage.DependsOn {
			dependedOn[dep] = true
		}
	}
	var terminal []string
	for _, stage := range stages {
		if !dependedOn[stage.Team] && done[stage.Team] {
			terminal = append(terminal, outputs[stage.Team])
		}
	}
	fr.Output = strings.Join(terminal, "\n\n")
	fr.Completed = firstErr == nil
	return fr, firstErr
}

// runConditional 每轮用团队级策略在剩余阶段中挑选下一个团队：
// 路由依据是原始描述加上已累积的阶段输出。没有团队达到置信度
// 阈值时流提前收束，已有结果原样返回。
func (c *Coordinator) runConditional(ctx context.Context, task *types.Task) (*FlowResult, error) {
	fr := &FlowResult{TaskID: task.ID, FlowType: FlowConditional}

	remaining := make([]Stage, len(c.cfg.Flow.Stages))
	copy(remaining, c.cfg.Flow.Stages)

	accumulated := task.Description
	var outputs []string
	for len(remaining) > 0 {
		idx, err := c.selectNextStage(ctx, task, accumulated, remaining)
		if err != nil {
			if types.IsCode(err, types.ErrEscalation) || types.IsCode(err, types.ErrNoRouteFound) {
				// 无合格团队，提前收束
				c.logger.Info("conditional flow converged early",
					zap.String("task_id", task.ID),
					zap.Int("stages_run", len(fr.Stages)),
					zap.Int("stages_skipped", len(remaining)),
				)
				break
			}
			return fr, err
		}
		stage := remaining[idx]
		remaining = append(remaining[:idx], remaining[idx+1:]...)

		sub := c.stageTask(task, stage)
		if stage.Description == "" {
			// 无阶段描述时，阶段作用于累积输出而非原始请求
			sub.Description = accumulated
		}
		if len(outputs) > 0 {
			sub.WithContext(ctxPreviousOutput, outputs[len(outputs)-1])
		}
		result, err := c.runStage(ctx, stage, sub)
		fr.Stages = append(fr.Stages, StageResult{Team: stage.Team, Task: sub, Result: result, Err: err})
		if err != nil {
			return fr, err
		}
		outputs = append(outputs, result.Output)
		accumulated = accumulated + "\n\n" + result.Output
	}

	if len(outputs) > 0 {
		fr.Output = outputs[len(outputs)-1]
	}
	fr.Completed = true
	return fr, nil
}

// selectNextStage 基于累积输出对剩余阶段的团队做一次路由决策
func (c *Coordinator) selectNextStage(ctx context.Context, task *types.Task, description string, remaining []Stage) (int, error) {
	candidates := make([]types.AgentCapability, 0, len(remaining))
	for _, stage := range remaining {
		tc, ok := c.teams[stage.Team]
		if !ok {
			return 0, types.NewError(types.ErrTeamNotFound,
				fmt.Sprintf("team %q is not part of this hierarchy", stage.Team)).WithTarget(stage.Team)
		}
		candidates = append(candidates, tc.Capability())
	}

	// 每轮用独立的探测任务，避免污染调用方任务的状态与审计轨迹
	trial := types.NewTask(description).WithPriority(task.Priority)
	for k, v := range task.Context {
		trial.WithContext(k, v)
	}

	decision, err := c.engine.Route(ctx, trial, candidates, routing.Config{
		Strategy:            c.cfg.Strategy,
		ConfidenceThreshold: c.cfg.ConfidenceThreshold,
		MaxRetries:          0,
		Scope:               hierarchyScope,
	})
	if err != nil {
		return 0, err
	}
	c.persist(task.ID, decision)

	for i, stage := range remaining {
		if stage.Team == decision.Target {
			return i, nil
		}
	}
	return 0, types.NewError(types.ErrTeamNotFound,
		fmt.Sprintf("routing selected %q which is not a pending stage", decision.Target)).WithTarget(decision.Target)
}

// orderStages 按 depends_on 对阶段做稳定拓扑排序：同批就绪的阶段
// 保持声明顺序。依赖成环或悬空时返回 DEPENDENCY_CYCLE 错误。
func orderStages(stages []Stage) ([]Stage, error) {
	done := make(map[string]bool, len(stages))
	scheduled := make([]bool, len(stages))
	ordered := make([]Stage, 0, len(stages))

	for len(ordered) < len(stages) {
		progressed := false
		for i, stage := range stages {
			if scheduled[i] {
				continue
			}
			ready := true
			for _, dep := range stage.DependsOn {
				if !done[dep] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			scheduled[i] = true
			done[stage.Team] = true
			ordered = append(ordered, stage)
			progressed = true
		}
		if !progressed {
			return nil, types.NewError(types.ErrDependencyCycle,
				"flow stage dependencies form a cycle")
		}
	}
	return ordered, nil
}

// runStage 执行单个阶段：套上阶段超时后交给目标团队
func (c *Coordinator) runStage(ctx context.Context, stage Stage, sub *types.Task) (*types.ExecutionResult, error) {
	if c.cfg.Flow.TimeoutPerTask > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Flow.TimeoutPerTask)
		defer cancel()
	}

	start := time.Now()
	result, err := c.runTeam(ctx, stage.Team, sub)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("flow stage completed",
		zap.String("task_id", sub.ID),
		zap.String("team", stage.Team),
		zap.Duration("latency", time.Since(start)),
	)
	return result, nil
}

// stageTask 从父任务派生一个阶段子任务
func (c *Coordinator) stageTask(parent *types.Task, stage Stage) *types.Task {
	desc := stage.Description
	if desc == "" {
		desc = parent.Description
	}
	sub := types.NewTask(desc).WithPriority(parent.Priority)
	sub.RequiredCapabilities = append([]string(nil), parent.RequiredCapabilities...)
	for k, v := range parent.Context {
		sub.WithContext(k, v)
	}
	sub.WithContext(ctxParentTaskID, parent.ID)
	return sub
}
