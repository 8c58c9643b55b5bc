package routes

import (
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/armory-kit/armory/internal/cache"
	"github.com/armory-kit/armory/internal/resource"
)

// RegisterResourceRoutes 暴露 /-/resources 诊断接口，查询各资源的缓存分组与生效策略。
func RegisterResourceRoutes(app *fiber.App, baseTTL time.Duration, strategies map[string]resource.Strategy) {
	if app == nil {
		return
	}

	// ?group=misc 只列出写入该缓存分组的资源
	app.Get("/-/resources", func(c fiber.Ctx) error {
		items := resource.List()
		if raw := strings.TrimSpace(c.Query("group")); raw != "" {
			group, err := cache.ParseGroup(raw)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_group"})
			}
			items = resource.InGroup(group)
		}
		return c.JSON(fiber.Map{
			"resources": encodeResources(items, baseTTL, strategies),
		})
	})

	app.Get("/-/resources/:key", func(c fiber.Ctx) error {
		key := strings.TrimSpace(c.Params("key"))
		if key == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "resource_key_required"})
		}
		meta, ok := resource.Resolve(key)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "resource_not_found"})
		}
		return c.JSON(encodeResource(meta, baseTTL, strategies))
	})
}

type resourcePayload struct {
	Key           string          `json:"key"`
	Description   string          `json:"description"`
	Group         string          `json:"group"`
	Method        string          `json:"method"`
	CacheStrategy strategyPayload `json:"cache_strategy"`
}

type strategyPayload struct {
	TTLSeconds     int64   `json:"ttl_seconds"`
	TTLScale       float64 `json:"ttl_scale,omitempty"`
	ValidationMode string  `json:"validation_mode"`
}

func encodeResources(items []resource.Metadata, baseTTL time.Duration, strategies map[string]resource.Strategy) []resourcePayload {
	if len(items) == 0 {
		return nil
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Key < items[j].Key
	})
	result := make([]resourcePayload, 0, len(items))
	for _, meta := range items {
		result = append(result, encodeResource(meta, baseTTL, strategies))
	}
	return result
}

func encodeResource(meta resource.Metadata, baseTTL time.Duration, strategies map[string]resource.Strategy) resourcePayload {
	strategy := meta.Strategy
	if s, ok := strategies[meta.Key]; ok {
		strategy = s
	}
	return resourcePayload{
		Key:         meta.Key,
		Description: meta.Description,
		Group:       string(meta.Group),
		Method:      meta.Method,
		CacheStrategy: strategyPayload{
			TTLSeconds:     int64(strategy.EffectiveTTL(baseTTL) / time.Second),
			TTLScale:       strategy.TTLScale,
			ValidationMode: string(strategy.ValidationMode),
		},
	}
}
