package resource

import (
	"math"
	"time"

	"github.com/armory-kit/armory/internal/cache"
)

// Regions 返回上游 API 支持的区域。
func Regions() []string {
	return []string{"us", "eu", "kr", "tw"}
}

// ValidationMode 描述缓存过期后的再验证方式。
type ValidationMode string

const (
	// ValidationModeLastModified 使用记录的 lastModified 发起条件请求。
	ValidationModeLastModified ValidationMode = "last-modified"
	// ValidationModeNever 总是无条件回源。
	ValidationModeNever ValidationMode = "never"
)

// ValidationModes 返回所有受支持的校验模式。
func ValidationModes() []ValidationMode {
	return []ValidationMode{ValidationModeLastModified, ValidationModeNever}
}

// Strategy 描述资源的缓存读写策略及其默认值。
type Strategy struct {
	// TTLScale 作用于全局 CacheTTL；realm 列表变化极少，拍卖数据变化极快。
	TTLScale       float64
	TTL            time.Duration
	ValidationMode ValidationMode
}

// Metadata 记录一个资源的静态信息，供配置校验和调用方使用。
type Metadata struct {
	Key         string
	Description string
	Group       cache.Group
	// Method 为 /api/wow/ 之后的路径前缀，例如 character、auction/data。
	Method   string
	Strategy Strategy
}

// EffectiveTTL 将策略作用于全局 TTL：显式 TTL 优先，其次按系数缩放。
func (s Strategy) EffectiveTTL(base time.Duration) time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	if s.TTLScale <= 0 {
		return base
	}
	return time.Duration(math.Round(float64(base) * s.TTLScale))
}
