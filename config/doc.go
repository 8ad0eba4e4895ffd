// 版权所有 2024 Teamflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供 teamflow 层级结构的声明式配置：
// 协调器、团队、worker、路由策略与任务流的加载、默认值与校验。
package config
