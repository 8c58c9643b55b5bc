package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/armory-kit/armory/internal/cache"
	"github.com/armory-kit/armory/internal/resource"
	"github.com/armory-kit/armory/internal/upstream"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为与上游 API 的访问参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFormat       string   `mapstructure:"LogFormat"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	Region          string   `mapstructure:"Region"`
	UseSSL          bool     `mapstructure:"UseSSL"`
	BaseURL         string   `mapstructure:"BaseURL"`
	PublicKey       string   `mapstructure:"PublicKey"`
	PrivateKey      string   `mapstructure:"PrivateKey"`
	CacheTTL        Duration `mapstructure:"CacheTTL"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	CheckRealms     bool     `mapstructure:"CheckRealms"`
	// AdminToken 为空时不开放 /-/cache 管理接口。
	AdminToken string `mapstructure:"AdminToken"`
}

// CacheConfig 对应 [Cache] 表，选择缓存引擎及其连接参数。
type CacheConfig struct {
	Engine        string `mapstructure:"Engine"`
	File          string `mapstructure:"File"`
	RedisAddr     string `mapstructure:"RedisAddr"`
	RedisPassword string `mapstructure:"RedisPassword"`
	RedisDB       int    `mapstructure:"RedisDB"`
	DSN           string `mapstructure:"DSN"`
	TablePrefix   string `mapstructure:"TablePrefix"`
}

// ResourceConfig 对应 [[Resource]]，按资源覆盖缓存策略。
type ResourceConfig struct {
	Name           string   `mapstructure:"Name"`
	CacheTTL       Duration `mapstructure:"CacheTTL"`
	ValidationMode string   `mapstructure:"ValidationMode"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global    GlobalConfig     `mapstructure:",squash"`
	Cache     CacheConfig      `mapstructure:"Cache"`
	Resources []ResourceConfig `mapstructure:"Resource"`
}

// HasCredentials 表示是否配置了完整的 API 密钥对。
func (g GlobalConfig) HasCredentials() bool {
	return g.PublicKey != "" && g.PrivateKey != ""
}

// AuthMode 输出 `signed` 或 `anonymous`，供日志字段使用。
func (g GlobalConfig) AuthMode() string {
	if g.HasCredentials() {
		return "signed"
	}
	return "anonymous"
}

// Credentials 转换为签名器使用的凭证。
func (g GlobalConfig) Credentials() upstream.Credentials {
	return upstream.Credentials{PublicKey: g.PublicKey, PrivateKey: g.PrivateKey}
}

// CacheOptions 将配置映射为 cache.Open 的参数。
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		Engine:        c.Cache.Engine,
		TTL:           c.Global.CacheTTL.DurationValue(),
		File:          c.Cache.File,
		RedisAddr:     c.Cache.RedisAddr,
		RedisPassword: c.Cache.RedisPassword,
		RedisDB:       c.Cache.RedisDB,
		DSN:           c.Cache.DSN,
		TablePrefix:   c.Cache.TablePrefix,
	}
}

// StrategyOverrides 将资源级的 TTL/Validation 配置映射为策略覆盖项。
func (r ResourceConfig) StrategyOverrides() resource.StrategyOptions {
	opts := resource.StrategyOptions{
		TTLOverride: r.CacheTTL.DurationValue(),
	}
	if mode := strings.TrimSpace(r.ValidationMode); mode != "" {
		opts.ValidationOverride = resource.ValidationMode(mode)
	}
	return opts
}
