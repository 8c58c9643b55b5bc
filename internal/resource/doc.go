// Package resource 聚合 armory 可查询的资源类型（realm、character、guild 等），
// 并提供统一的注册入口。
//
// 每个资源需要：
//   1. 声明所属缓存分组与上游 API 方法；
//   2. 通过本包暴露的 Register 函数在 init() 中注册元数据；
//   3. 给出默认的缓存策略（TTL 系数与校验模式），配置文件可按资源覆盖。
package resource
