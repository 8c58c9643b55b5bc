package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/armory-kit/armory/internal/cache"
	"github.com/armory-kit/armory/internal/upstream"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyCacheDefaults(&cfg.Cache)
	for i := range cfg.Resources {
		applyResourceDefaults(&cfg.Resources[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Cache.File != "" {
		absFile, err := filepath.Abs(cfg.Cache.File)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存文件路径: %w", err)
		}
		cfg.Cache.File = absFile
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "json")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Region", "us")
	v.SetDefault("UseSSL", false)
	v.SetDefault("CheckRealms", false)
	v.SetDefault("AdminToken", "")
	v.SetDefault("CacheTTL", int(cache.DefaultTTL/time.Second))
	v.SetDefault("UpstreamTimeout", upstream.DefaultTimeout.String())
	v.SetDefault("Cache.Engine", cache.EngineMemory)
	v.SetDefault("Cache.TablePrefix", "wowapi_")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	g.Region = strings.ToLower(strings.TrimSpace(g.Region))
	if g.Region == "" {
		g.Region = "us"
	}
	g.LogFormat = strings.ToLower(strings.TrimSpace(g.LogFormat))
	if g.CacheTTL.DurationValue() == 0 {
		g.CacheTTL = Duration(cache.DefaultTTL)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(upstream.DefaultTimeout)
	}
	g.BaseURL = strings.TrimRight(strings.TrimSpace(g.BaseURL), "/")
}

func applyCacheDefaults(c *CacheConfig) {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	if c.Engine == "" {
		c.Engine = cache.EngineMemory
	}
	if c.File == "" {
		switch c.Engine {
		case cache.EngineFile:
			c.File = "./storage/armory-cache.json"
		case cache.EngineBolt:
			c.File = "./storage/armory-cache.db"
		}
	}
}

func applyResourceDefaults(r *ResourceConfig) {
	r.Name = strings.ToLower(strings.TrimSpace(r.Name))
	r.ValidationMode = strings.ToLower(strings.TrimSpace(r.ValidationMode))
	if r.CacheTTL.DurationValue() < 0 {
		r.CacheTTL = Duration(0)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
