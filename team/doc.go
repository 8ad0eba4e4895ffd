// Package team 实现 supervisor-worker 团队协调器。
// 协调器把任务路由到团队内的 worker，维护负载计数与表现历史，
// 路由升级时可回落到 supervisor 亲自处理。
package team
