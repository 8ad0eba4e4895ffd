package types

import "time"

// OutcomeRecord 单次任务执行结果记录
type OutcomeRecord struct {
	TaskType string        `json:"task_type,omitempty"`
	Success  bool          `json:"success"`
	Latency  time.Duration `json:"latency"`
	At       time.Time     `json:"at"`
}

// AgentCapability 描述一个 agent 的能力与当前状态
// CurrentLoad 与 PerformanceHistory 只能通过 registry 修改。
type AgentCapability struct {
	AgentID                string   `json:"agent_id"`
	Capabilities           []string `json:"capabilities,omitempty"`
	SpecializationKeywords []string `json:"specialization_keywords,omitempty"`
	// Priority 越小越优先，用于同分打破平局
	Priority           int `json:"priority"`
	MaxConcurrentTasks int `json:"max_concurrent_tasks"`

	// 可变状态
	CurrentLoad        int             `json:"current_load"`
	PerformanceHistory []OutcomeRecord `json:"performance_history,omitempty"`
}

// Availability 计算可用度（0-1）
func (c *AgentCapability) Availability() float64 {
	if c.MaxConcurrentTasks <= 0 {
		return 0.0
	}
	avail := 1.0 - float64(c.CurrentLoad)/float64(c.MaxConcurrentTasks)
	if avail < 0 {
		return 0.0
	}
	return avail
}

// HasCapacity 判断是否还有空闲并发额度
func (c *AgentCapability) HasCapacity() bool {
	return c.CurrentLoad < c.MaxConcurrentTasks
}

// SuccessRate 返回按时间衰减加权的近期成功率。
// taskType 非空时只统计同类型记录；无可用历史时返回中性先验 0.5。
// 最近的记录权重最高，每往前一条按 decay 衰减一次。
func (c *AgentCapability) SuccessRate(taskType string, decay float64) float64 {
	if decay <= 0 || decay > 1 {
		decay = 0.9
	}

	weight := 1.0
	var weighted, total float64
	for i := len(c.PerformanceHistory) - 1; i >= 0; i-- {
		rec := c.PerformanceHistory[i]
		if taskType != "" && rec.TaskType != taskType {
			continue
		}
		if rec.Success {
			weighted += weight
		}
		total += weight
		weight *= decay
	}

	if total == 0 {
		return 0.5
	}
	return weighted / total
}

// Clone 返回深拷贝，registry 对外只暴露拷贝
func (c *AgentCapability) Clone() AgentCapability {
	cp := *c
	cp.Capabilities = append([]string(nil), c.Capabilities...)
	cp.SpecializationKeywords = append([]string(nil), c.SpecializationKeywords...)
	cp.PerformanceHistory = append([]OutcomeRecord(nil), c.PerformanceHistory...)
	return cp
}
