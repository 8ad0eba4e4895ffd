/*
Package routing 实现任务路由的核心决策机制。

# 概述

包内提供七种可互换的路由策略（keyword_based、capability_based、
workload_based、performance_based、rule_based、llm_based、hybrid），
每种策略都是对任务与候选集的纯打分函数，返回按分数降序的候选列表。
Engine 在策略之上套用置信度阈值、fallback 链与重试/升级机制，
产出不可变的 RoutingDecision。

# 决策语义

  - 分数在 [0,1]；同分按 Priority 升序、再按候选顺序稳定打破平局。
  - 策略内部失败（外部 LLM 超时、输出不可解析）被转换为零置信度
    候选列表，由统一的 fallback/重试逻辑处理，不会以异常形式外泄。
  - Engine 本身从不阻塞，重试节奏由调用方控制。

# 外部协作者

llm_based 策略通过 DecisionModel 接口委托外部文本生成服务，
调用受 max_decision_time 超时与速率限制约束。
*/
package routing
