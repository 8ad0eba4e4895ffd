/*
Package hierarchy 实现 coordinator → supervisor → worker 三层协调。

# 概述

HierarchyCoordinator 站在团队之上：把任务路由到合适的团队（团队能力
由其成员聚合而来），团队内部再由 team.Coordinator 路由到具体 worker。
团队路由升级会向上传播，层级可改派兜底团队或最终升级给调用方。

# 任务流

多阶段任务由四种流驱动：

  - sequential：按声明顺序依次执行，前一阶段输出注入下一阶段上下文；
  - parallel：各阶段独立并发执行，受 max_parallel_tasks 约束；
  - pipeline：按 depends_on 构成的 DAG 执行，依赖全部完成才调度；
  - conditional：每个阶段完成后根据其输出重新路由，决定下一个团队，
    无合格团队时提前收束。

Builder 从声明式配置组装完整层级，包括注册表、策略、历史存储与指标。
*/
package hierarchy
