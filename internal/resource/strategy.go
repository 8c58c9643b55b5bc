package resource

import "time"

// StrategyOptions 描述来自配置文件 [[Resource]] 的覆盖项。
type StrategyOptions struct {
	TTLOverride        time.Duration
	ValidationOverride ValidationMode
}

// ResolveStrategy 将资源的默认策略与配置覆盖合并。
func ResolveStrategy(meta Metadata, opts StrategyOptions) Strategy {
	strategy := meta.Strategy
	if opts.TTLOverride > 0 {
		strategy.TTL = opts.TTLOverride
	}
	if opts.ValidationOverride != "" {
		strategy.ValidationMode = opts.ValidationOverride
	}
	return normalizeStrategy(strategy)
}

func normalizeStrategy(s Strategy) Strategy {
	if s.TTL < 0 {
		s.TTL = 0
	}
	if s.TTLScale < 0 {
		s.TTLScale = 0
	}
	if s.ValidationMode == "" {
		s.ValidationMode = ValidationModeLastModified
	}
	return s
}
