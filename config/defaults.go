// =============================================================================
// 📦 Teamflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Coordinator: DefaultCoordinatorConfig(),
		History:     DefaultHistoryConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultCoordinatorConfig 返回默认协调器配置
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Name:    "coordinator",
		Routing: DefaultRoutingConfig(),
		Flow:    DefaultTaskFlowConfig(),
	}
}

// DefaultRoutingConfig 返回默认路由配置
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		Strategy:            "capability_based",
		ConfidenceThreshold: 0.7,
		FallbackTarget:      "",
		MaxRetries:          3,
		MaxDecisionTime:     30 * time.Second,
	}
}

// DefaultTaskFlowConfig 返回默认任务流配置
func DefaultTaskFlowConfig() TaskFlowConfig {
	return TaskFlowConfig{
		Type:             "sequential",
		MaxParallelTasks: 4,
		TimeoutPerTask:   60 * time.Second,
	}
}

// DefaultHistoryConfig 返回默认历史存储配置
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Backend:  "memory",
		Capacity: 100,
		Redis:    DefaultRedisConfig(),
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		KeyPrefix: "teamflow:decisions:",
		TTL:       24 * time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "teamflow",
		SampleRate:   0.1,
	}
}
