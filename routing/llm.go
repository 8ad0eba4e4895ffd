package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultMaxDecisionTime 外部决策调用的默认超时
const DefaultMaxDecisionTime = 30 * time.Second

// ModelDecision 外部模型返回的结构化决策
type ModelDecision struct {
	Target     string  `json:"target"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// DecisionModel 外部 LLM 路由协作者
// Decide 可能失败或返回不可解析的结果，二者都按策略失败处理。
type DecisionModel interface {
	Decide(ctx context.Context, taskDescription string, roster []types.AgentCapability) (*ModelDecision, error)
}

// LLMStrategy LLM 委托策略
// 把任务描述与候选名册交给外部模型，调用受超时与速率限制约束。
// 失败路径（超时、传输错误、未知目标）对引擎而言等价于低置信度结果。
type LLMStrategy struct {
	model           DecisionModel
	maxDecisionTime time.Duration
	limiter         *rate.Limiter
	logger          *zap.Logger
}

// LLMOption LLM 策略选项
type LLMOption func(*LLMStrategy)

// WithMaxDecisionTime 设置决策超时
func WithMaxDecisionTime(d time.Duration) LLMOption {
	return func(s *LLMStrategy) {
		if d > 0 {
			s.maxDecisionTime = d
		}
	}
}

// WithDecisionRateLimit 限制对外部模型的每秒决策次数
func WithDecisionRateLimit(perSecond float64, burst int) LLMOption {
	return func(s *LLMStrategy) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewLLMStrategy 创建 LLM 委托策略
func NewLLMStrategy(model DecisionModel, logger *zap.Logger, opts ...LLMOption) *LLMStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LLMStrategy{
		model:           model,
		maxDecisionTime: DefaultMaxDecisionTime,
		logger:          logger.With(zap.String("component", "llm_strategy")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LLMStrategy) Name() string { return StrategyLLM }

func (s *LLMStrategy) Score(ctx context.Context, task *types.Task, candidates []types.AgentCapability) ([]types.ScoredCandidate, error) {
	if s.model == nil {
		return nil, types.NewError(types.ErrStrategyExecution, "no decision model configured")
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrStrategyExecution, "rate limit wait aborted").WithCause(err)
		}
	}

	decideCtx, cancel := context.WithTimeout(ctx, s.maxDecisionTime)
	defer cancel()

	decision, err := s.model.Decide(decideCtx, task.Description, candidates)
	if err != nil {
		if decideCtx.Err() == context.DeadlineExceeded {
			return nil, types.NewError(types.ErrDecisionTimeout,
				fmt.Sprintf("decision model exceeded %s", s.maxDecisionTime)).WithCause(err)
		}
		return nil, types.NewError(types.ErrStrategyExecution, "decision model call failed").WithCause(err)
	}

	valid := false
	for _, c := range candidates {
		if c.AgentID == decision.Target {
			valid = true
			break
		}
	}
	if !valid {
		return nil, types.NewError(types.ErrStrategyExecution,
			fmt.Sprintf("decision model chose unknown target %q", decision.Target))
	}

	confidence := clamp01(decision.Confidence)
	scores := make([]types.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		score := 0.0
		reason := ""
		if c.AgentID == decision.Target {
			score = confidence
			reason = decision.Reasoning
		}
		scores = append(scores, types.ScoredCandidate{AgentID: c.AgentID, Score: score, Reason: reason})
	}
	return rankCandidates(candidates, scores), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CompletionFunc 纯文本补全函数，TextDecisionModel 的底层调用
type CompletionFunc func(ctx context.Context, prompt string) (string, error)

// TextDecisionModel 把文本补全协作者适配为 DecisionModel。
// 构造候选名册提示词，并从回复中解析 JSON 决策；支持 ```json 代码块包裹。
type TextDecisionModel struct {
	complete CompletionFunc
}

// NewTextDecisionModel 创建文本适配器
func NewTextDecisionModel(complete CompletionFunc) *TextDecisionModel {
	return &TextDecisionModel{complete: complete}
}

// Decide 实现 DecisionModel
func (m *TextDecisionModel) Decide(ctx context.Context, taskDescription string, roster []types.AgentCapability) (*ModelDecision, error) {
	if m.complete == nil {
		return nil, fmt.Errorf("completion function not configured")
	}

	raw, err := m.complete(ctx, buildDecisionPrompt(taskDescription, roster))
	if err != nil {
		return nil, err
	}

	decision := parseModelDecision(raw)
	if decision == nil {
		return nil, fmt.Errorf("unparseable decision output: %.120s", raw)
	}
	return decision, nil
}

// buildDecisionPrompt 生成包含候选名册的决策提示词
func buildDecisionPrompt(taskDescription string, roster []types.AgentCapability) string {
	var b strings.Builder
	b.WriteString("You are a task router. Choose the best agent for the task below.\n\n")
	b.WriteString("Task: ")
	b.WriteString(taskDescription)
	b.WriteString("\n\nCandidates:\n")
	for _, c := range roster {
		fmt.Fprintf(&b, "- %s: capabilities: %s; availability: %.2f\n",
			c.AgentID, strings.Join(c.Capabilities, ", "), c.Availability())
	}
	b.WriteString("\nRespond with a JSON object: {\"target\": \"<agent_id>\", \"confidence\": 0.0-1.0, \"reasoning\": \"...\"}\n")
	return b.String()
}

// parseModelDecision 解析模型输出。
// 依次尝试：1) 直接 JSON；2) ```json 代码块；3) 无语言标记的 ``` 代码块。
func parseModelDecision(content string) *ModelDecision {
	if d := tryParseDecisionJSON(content); d != nil {
		return d
	}

	if idx := strings.Index(content, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(content[start:], "```"); end != -1 {
			if d := tryParseDecisionJSON(strings.TrimSpace(content[start : start+end])); d != nil {
				return d
			}
		}
	}

	if idx := strings.Index(content, "```"); idx != -1 {
		start := idx + len("```")
		if nl := strings.Index(content[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(content[start:], "```"); end != -1 {
			if d := tryParseDecisionJSON(strings.TrimSpace(content[start : start+end])); d != nil {
				return d
			}
		}
	}

	return nil
}

func tryParseDecisionJSON(raw string) *ModelDecision {
	var d ModelDecision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil
	}
	if d.Target == "" {
		return nil
	}
	return &d
}
