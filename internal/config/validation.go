package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/armory-kit/armory/internal/cache"
	"github.com/armory-kit/armory/internal/resource"
	"github.com/armory-kit/armory/internal/upstream"
)

var supportedLogFormats = []string{"json", "text"}

const minAdminTokenLength = 8

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogFormat != "" && !slices.Contains(supportedLogFormats, g.LogFormat) {
		return newFieldError("Global.LogFormat", "仅支持 json/text")
	}
	if !slices.Contains(resource.Regions(), g.Region) {
		return newFieldError("Global.Region", "仅支持 "+strings.Join(resource.Regions(), "|"))
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError("Global.CacheTTL", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if (g.PublicKey == "") != (g.PrivateKey == "") {
		return newFieldError("Global.PublicKey/PrivateKey", "必须同时提供或同时留空")
	}
	if g.HasCredentials() {
		if _, err := upstream.NewSigner(g.Credentials()); err != nil {
			return fmt.Errorf("Global.PublicKey: %w", err)
		}
	}
	if g.AdminToken != "" && (len(g.AdminToken) < minAdminTokenLength || strings.ContainsAny(g.AdminToken, " \t\r\n")) {
		return newFieldError("Global.AdminToken", fmt.Sprintf("至少 %d 个字符且不能包含空白", minAdminTokenLength))
	}
	if g.BaseURL != "" {
		if err := validateBaseURL(g.BaseURL); err != nil {
			return fmt.Errorf("Global.BaseURL: %w", err)
		}
	}

	if err := c.Cache.validate(); err != nil {
		return err
	}

	seen := map[string]struct{}{}
	for i := range c.Resources {
		rc := &c.Resources[i]
		if rc.Name == "" {
			return newFieldError("Resource[].Name", "不能为空")
		}
		meta, ok := resource.Resolve(rc.Name)
		if !ok {
			return newFieldError(resourceField(rc.Name, "Name"), "仅支持 "+strings.Join(resource.Keys(), "|"))
		}
		if _, exists := seen[meta.Key]; exists {
			return newFieldError(resourceField(rc.Name, "Name"), "重复")
		}
		seen[meta.Key] = struct{}{}
		if rc.CacheTTL.DurationValue() < 0 {
			return newFieldError(resourceField(rc.Name, "CacheTTL"), "不能为负数")
		}
		if rc.ValidationMode != "" && !slices.Contains(resource.ValidationModes(), resource.ValidationMode(rc.ValidationMode)) {
			return newFieldError(resourceField(rc.Name, "ValidationMode"), "仅支持 last-modified/never")
		}
	}

	return nil
}

func (c CacheConfig) validate() error {
	if !slices.Contains(cache.Engines(), c.Engine) {
		return newFieldError("Cache.Engine", "仅支持 "+strings.Join(cache.Engines(), "|"))
	}
	switch c.Engine {
	case cache.EngineFile, cache.EngineBolt:
		if strings.TrimSpace(c.File) == "" {
			return newFieldError("Cache.File", "不能为空")
		}
	case cache.EngineRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return newFieldError("Cache.RedisAddr", "不能为空")
		}
		if c.RedisDB < 0 {
			return newFieldError("Cache.RedisDB", "不能为负数")
		}
	case cache.EngineSQLite, cache.EngineMySQL:
		if strings.TrimSpace(c.DSN) == "" {
			return newFieldError("Cache.DSN", "不能为空")
		}
	}
	for _, r := range c.TablePrefix {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return newFieldError("Cache.TablePrefix", "仅允许字母、数字与下划线")
		}
	}
	return nil
}

func validateBaseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}

// ResourceTTL 返回资源生效的 TTL：[[Resource]] 覆盖优先，其次资源自身的系数。
func (c *Config) ResourceTTL(name string) time.Duration {
	strategy, ok := c.Strategies()[name]
	if !ok {
		return c.Global.CacheTTL.DurationValue()
	}
	return strategy.EffectiveTTL(c.Global.CacheTTL.DurationValue())
}
