// =============================================================================
// 📦 Teamflow 配置结构
// =============================================================================
// 层级结构（coordinator → teams → workers）的完整声明式配置。
// 加载优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"time"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 teamflow 的完整配置结构
type Config struct {
	// Coordinator 顶层协调器配置
	Coordinator CoordinatorConfig `yaml:"coordinator" env:"COORDINATOR"`

	// Teams 团队列表
	Teams []TeamConfig `yaml:"teams" env:"-"`

	// History 决策历史存储配置
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// CoordinatorConfig 顶层协调器配置
type CoordinatorConfig struct {
	// 名称
	Name string `yaml:"name" env:"NAME"`
	// 团队级路由配置
	Routing RoutingConfig `yaml:"routing" env:"ROUTING"`
	// 任务流配置
	Flow TaskFlowConfig `yaml:"flow" env:"FLOW"`
}

// RoutingConfig 路由配置（协调器与团队共用）
type RoutingConfig struct {
	// 策略: keyword_based, capability_based, workload_based,
	// performance_based, rule_based, llm_based, hybrid
	Strategy string `yaml:"strategy" env:"STRATEGY"`
	// 提交决策所需的最低置信度, [0,1]
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	// 低于阈值时的兜底目标（团队名或 worker id）
	FallbackTarget string `yaml:"fallback_target" env:"FALLBACK_TARGET"`
	// 升级前的最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// llm_based 策略的决策超时
	MaxDecisionTime time.Duration `yaml:"max_decision_time" env:"MAX_DECISION_TIME"`
	// hybrid 策略的子策略权重，键为策略名，和必须为 1
	HybridWeights map[string]float64 `yaml:"hybrid_weights" env:"-"`
	// rule_based 策略的规则列表，按声明顺序匹配
	Rules []RuleConfig `yaml:"rules" env:"-"`
}

// RuleConfig 一条声明式路由规则
type RuleConfig struct {
	// 规则名
	Name string `yaml:"name" env:"-"`
	// 条件表达式，见 CompileCondition
	Condition string `yaml:"condition" env:"-"`
	// 命中时的目标
	Target string `yaml:"target" env:"-"`
	// 决策理由（可选）
	Reason string `yaml:"reason" env:"-"`
}

// TaskFlowConfig 任务流配置
type TaskFlowConfig struct {
	// 类型: sequential, parallel, pipeline, conditional
	Type string `yaml:"type" env:"TYPE"`
	// parallel/pipeline 流的最大并发任务数
	MaxParallelTasks int `yaml:"max_parallel_tasks" env:"MAX_PARALLEL_TASKS"`
	// 单个子任务的超时
	TimeoutPerTask time.Duration `yaml:"timeout_per_task" env:"TIMEOUT_PER_TASK"`
	// 阶段列表，顺序即 sequential 流的执行顺序
	Stages []StageConfig `yaml:"stages" env:"-"`
}

// StageConfig 任务流中的一个阶段
type StageConfig struct {
	// 承接该阶段的团队名
	Team string `yaml:"team" env:"-"`
	// pipeline 流的前置依赖（阶段团队名）
	DependsOn []string `yaml:"depends_on" env:"-"`
	// 阶段描述，作为子任务描述的前缀（可选）
	Description string `yaml:"description" env:"-"`
}

// TeamConfig 团队配置
type TeamConfig struct {
	// 团队名，层级内唯一
	Name string `yaml:"name" env:"-"`
	// 描述
	Description string `yaml:"description" env:"-"`
	// supervisor 配置
	Supervisor SupervisorConfig `yaml:"supervisor" env:"-"`
	// worker 列表
	Workers []WorkerConfig `yaml:"workers" env:"-"`
	// 团队内路由配置
	Routing RoutingConfig `yaml:"routing" env:"-"`
	// 路由失败时是否回落到 supervisor 自行处理
	FallbackToSupervisor bool `yaml:"fallback_to_supervisor" env:"-"`
	// 单个任务的分发超时
	TaskTimeout time.Duration `yaml:"task_timeout" env:"-"`
}

// SupervisorConfig 团队 supervisor 配置
type SupervisorConfig struct {
	// Agent ID，层级内唯一
	ID string `yaml:"id" env:"-"`
	// 能力标签
	Capabilities []string `yaml:"capabilities" env:"-"`
	// 最大并发任务数
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks" env:"-"`
}

// WorkerConfig 团队 worker 配置
type WorkerConfig struct {
	// Agent ID，层级内唯一
	ID string `yaml:"id" env:"-"`
	// 能力标签
	Capabilities []string `yaml:"capabilities" env:"-"`
	// 专长关键词，keyword_based 策略使用
	Keywords []string `yaml:"keywords" env:"-"`
	// 优先级，同分时小者优先
	Priority int `yaml:"priority" env:"-"`
	// 最大并发任务数
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks" env:"-"`
}

// HistoryConfig 决策历史存储配置
type HistoryConfig struct {
	// 后端: memory, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// memory 后端每任务保留的决策条数
	Capacity int `yaml:"capacity" env:"CAPACITY"`
	// redis 后端配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 历史记录过期时间，0 表示不过期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}
