// =============================================================================
// ✅ Teamflow 配置校验
// =============================================================================
package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/BaSui01/teamflow/types"
)

// 合法的策略与任务流类型
var (
	validStrategies = map[string]struct{}{
		"keyword_based":     {},
		"capability_based":  {},
		"workload_based":    {},
		"performance_based": {},
		"rule_based":        {},
		"llm_based":         {},
		"hybrid":            {},
	}
	validFlowTypes = map[string]struct{}{
		"sequential":  {},
		"parallel":    {},
		"pipeline":    {},
		"conditional": {},
	}
)

// Validate 校验配置。
// 聚合所有结构性错误后一次返回；阶段依赖图中的环单独以
// DEPENDENCY_CYCLE 报告，其余问题以 INVALID_CONFIG 报告。
func (c *Config) Validate() error {
	var errs []string

	if len(c.Teams) == 0 {
		errs = append(errs, "at least one team is required")
	}

	seenTeams := make(map[string]struct{}, len(c.Teams))
	seenAgents := make(map[string]struct{})
	for _, team := range c.Teams {
		if team.Name == "" {
			errs = append(errs, "team name must not be empty")
			continue
		}
		if _, dup := seenTeams[team.Name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate team name %q", team.Name))
		}
		seenTeams[team.Name] = struct{}{}

		if team.Supervisor.ID == "" {
			errs = append(errs, fmt.Sprintf("team %q: supervisor id must not be empty", team.Name))
		} else {
			if _, dup := seenAgents[team.Supervisor.ID]; dup {
				errs = append(errs, fmt.Sprintf("duplicate agent id %q", team.Supervisor.ID))
			}
			seenAgents[team.Supervisor.ID] = struct{}{}
		}

		if len(team.Workers) == 0 {
			errs = append(errs, fmt.Sprintf("team %q: at least one worker is required", team.Name))
		}
		workerIDs := make(map[string]struct{}, len(team.Workers))
		for _, w := range team.Workers {
			if w.ID == "" {
				errs = append(errs, fmt.Sprintf("team %q: worker id must not be empty", team.Name))
				continue
			}
			if _, dup := seenAgents[w.ID]; dup {
				errs = append(errs, fmt.Sprintf("duplicate agent id %q", w.ID))
			}
			seenAgents[w.ID] = struct{}{}
			workerIDs[w.ID] = struct{}{}
			if w.Priority < 0 {
				errs = append(errs, fmt.Sprintf("worker %q: priority must not be negative", w.ID))
			}
		}

		errs = append(errs, validateRouting(fmt.Sprintf("team %q", team.Name), team.Routing)...)

		// 团队内 fallback 必须指向团队成员
		if fb := team.Routing.FallbackTarget; fb != "" && fb != team.Supervisor.ID {
			if _, ok := workerIDs[fb]; !ok {
				errs = append(errs, fmt.Sprintf("team %q: fallback target %q is not a member", team.Name, fb))
			}
		}
	}

	errs = append(errs, validateRouting("coordinator", c.Coordinator.Routing)...)

	// 协调器级 fallback 必须指向已声明的团队
	if fb := c.Coordinator.Routing.FallbackTarget; fb != "" {
		if _, ok := seenTeams[fb]; !ok {
			errs = append(errs, fmt.Sprintf("coordinator: fallback target %q is not a declared team", fb))
		}
	}

	flow := c.Coordinator.Flow
	if _, ok := validFlowTypes[flow.Type]; !ok {
		errs = append(errs, fmt.Sprintf("unknown task flow type %q", flow.Type))
	}
	if flow.MaxParallelTasks <= 0 {
		errs = append(errs, "flow max_parallel_tasks must be positive")
	}
	for _, stage := range flow.Stages {
		if _, ok := seenTeams[stage.Team]; !ok {
			errs = append(errs, fmt.Sprintf("flow stage references unknown team %q", stage.Team))
		}
		// depends_on 只对按依赖序执行的流有意义
		if len(stage.DependsOn) > 0 && flow.Type != "pipeline" && flow.Type != "sequential" {
			errs = append(errs, fmt.Sprintf("flow stage %q: depends_on is not supported by %s flows", stage.Team, flow.Type))
		}
	}

	switch c.History.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown history backend %q", c.History.Backend))
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("config validation errors: %s", strings.Join(errs, "; ")))
	}

	// 环检测放在结构性校验之后，保证报告的是真正的环而非悬空引用
	if flow.Type == "pipeline" || flow.Type == "sequential" {
		if _, err := TopoSortStages(flow.Stages); err != nil {
			return err
		}
	}

	return nil
}

// validateRouting 校验一份路由配置，返回带定位前缀的错误列表
func validateRouting(scope string, r RoutingConfig) []string {
	var errs []string

	if _, ok := validStrategies[r.Strategy]; !ok {
		errs = append(errs, fmt.Sprintf("%s: unknown routing strategy %q", scope, r.Strategy))
	}
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Sprintf("%s: confidence_threshold must be in [0,1]", scope))
	}
	if r.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("%s: max_retries must not be negative", scope))
	}

	if r.Strategy == "hybrid" {
		if len(r.HybridWeights) == 0 {
			errs = append(errs, fmt.Sprintf("%s: hybrid strategy requires hybrid_weights", scope))
		}
		var sum float64
		for name, w := range r.HybridWeights {
			if _, ok := validStrategies[name]; !ok || name == "hybrid" {
				errs = append(errs, fmt.Sprintf("%s: hybrid weight references unknown strategy %q", scope, name))
			}
			if w < 0 {
				errs = append(errs, fmt.Sprintf("%s: hybrid weight for %q must not be negative", scope, name))
			}
			sum += w
		}
		if len(r.HybridWeights) > 0 && math.Abs(sum-1.0) > 1e-6 {
			errs = append(errs, fmt.Sprintf("%s: hybrid weights must sum to 1, got %.4f", scope, sum))
		}
	}

	if r.Strategy == "rule_based" && len(r.Rules) == 0 {
		errs = append(errs, fmt.Sprintf("%s: rule_based strategy requires at least one rule", scope))
	}
	for _, rule := range r.Rules {
		if rule.Target == "" {
			errs = append(errs, fmt.Sprintf("%s: rule %q has no target", scope, rule.Name))
		}
		if _, err := CompileCondition(rule.Condition); err != nil {
			errs = append(errs, fmt.Sprintf("%s: rule %q: %v", scope, rule.Name, err))
		}
	}

	return errs
}

// TopoSortStages 对任务流阶段做拓扑排序，返回依赖序的团队名。
// 依赖成环时返回 DEPENDENCY_CYCLE 错误。
func TopoSortStages(stages []StageConfig) ([]string, error) {
	indegree := make(map[string]int, len(stages))
	dependents := make(map[string][]string, len(stages))
	for _, s := range stages {
		if _, ok := indegree[s.Team]; !ok {
			indegree[s.Team] = 0
		}
		for _, dep := range s.DependsOn {
			indegree[s.Team]++
			dependents[dep] = append(dependents[dep], s.Team)
		}
	}

	// 就绪队列按声明顺序初始化，保证排序结果稳定
	var queue []string
	for _, s := range stages {
		if indegree[s.Team] == 0 {
			queue = append(queue, s.Team)
		}
	}

	order := make([]string, 0, len(stages))
	for len(queue) > 0 {
		team := queue[0]
		queue = queue[1:]
		order = append(order, team)
		for _, next := range dependents[team] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(indegree) {
		var stuck []string
		for team, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, team)
			}
		}
		return nil, types.NewError(types.ErrDependencyCycle,
			fmt.Sprintf("flow stages contain a dependency cycle involving: %s", strings.Join(stuck, ", ")))
	}
	return order, nil
}
