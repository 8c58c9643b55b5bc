package config

import (
	"github.com/armory-kit/armory/internal/resource"
)

// Strategies 合并资源默认策略与 [[Resource]] 覆盖项，返回每个已注册资源的最终策略。
// 假定 Validate 已经通过。
func (c *Config) Strategies() map[string]resource.Strategy {
	overrides := make(map[string]ResourceConfig, len(c.Resources))
	for _, rc := range c.Resources {
		if meta, ok := resource.Resolve(rc.Name); ok {
			overrides[meta.Key] = rc
		}
	}

	result := make(map[string]resource.Strategy)
	for _, meta := range resource.List() {
		rc, ok := overrides[meta.Key]
		if !ok {
			result[meta.Key] = meta.Strategy
			continue
		}
		result[meta.Key] = resource.ResolveStrategy(meta, rc.StrategyOverrides())
	}
	return result
}
