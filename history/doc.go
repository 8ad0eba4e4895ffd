// Package history 持久化任务的路由决策审计轨迹。
// 提供进程内环形缓冲与 Redis 两种后端，供排障与性能策略回放使用。
package history
