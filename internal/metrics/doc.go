// 版权所有 2024 Teamflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的路由链路指标采集能力，覆盖
路由决策、任务分发、Agent 负载与升级事件四大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - 路由指标：决策总数与置信度分布，按 scope/strategy/status 分组，
    status 归类为 committed/fallback/no_route/escalated。
  - 分发指标：任务执行总数与执行耗时，按 team/agent_id/status 分组。
  - 负载指标：各 Agent 当前并发任务数 Gauge，按 team/agent_id 分组。
  - 升级指标：任务升级计数，按 scope 分组。
  - 历史存储指标：决策历史读写计数，按 backend/operation 分组。
*/
package metrics
