package types

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusRouted     TaskStatus = "routed"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusEscalated  TaskStatus = "escalated"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsTerminal 判断任务是否已进入终态
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusEscalated, TaskStatusCancelled:
		return true
	}
	return false
}

// Task 路由任务
// 由调用方创建并持有；RoutingEngine 只修改 Status 与 RetryCount，
// 执行结果由外部执行器写入 Result。
type Task struct {
	ID                   string         `json:"id"`
	Description          string         `json:"description"`
	RequiredCapabilities []string       `json:"required_capabilities,omitempty"`
	Priority             int            `json:"priority"`
	Context              map[string]any `json:"context,omitempty"`

	// 执行状态
	Status     TaskStatus        `json:"status"`
	RetryCount int               `json:"retry_count"`
	Result     *ExecutionResult  `json:"result,omitempty"`
	Decisions  []*RoutingDecision `json:"decisions,omitempty"` // 路由决策审计轨迹
	CreatedAt  time.Time         `json:"created_at"`
}

// NewTask 创建一个 pending 状态的新任务
func NewTask(description string) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Description: description,
		Context:     make(map[string]any),
		Status:      TaskStatusPending,
		CreatedAt:   time.Now(),
	}
}

// WithCapabilities 设置任务所需能力
func (t *Task) WithCapabilities(caps ...string) *Task {
	t.RequiredCapabilities = caps
	return t
}

// WithPriority 设置任务优先级
func (t *Task) WithPriority(priority int) *Task {
	t.Priority = priority
	return t
}

// WithContext 写入一个上下文键值
func (t *Task) WithContext(key string, value any) *Task {
	if t.Context == nil {
		t.Context = make(map[string]any)
	}
	t.Context[key] = value
	return t
}

// TaskType 从上下文提取任务类型标签，未设置时返回空串
func (t *Task) TaskType() string {
	if t.Context == nil {
		return ""
	}
	if v, ok := t.Context["task_type"].(string); ok {
		return v
	}
	return ""
}

// RecordDecision 追加一次路由决策到审计轨迹
func (t *Task) RecordDecision(d *RoutingDecision) {
	t.Decisions = append(t.Decisions, d)
}

// ExecutionResult 外部执行器返回的结果
type ExecutionResult struct {
	Output  string        `json:"output"`
	Success bool          `json:"success"`
	Latency time.Duration `json:"latency"`
	AgentID string        `json:"agent_id,omitempty"`
	Team    string        `json:"team,omitempty"`
}
