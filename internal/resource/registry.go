package resource

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/armory-kit/armory/internal/cache"
)

var globalRegistry = newRegistry()

// registry 按资源键保存元数据，同时维护 cache.Group → 资源键 的反向索引，
// 便于按分组列出会写入同一张表/bucket 的资源。
type registry struct {
	mu      sync.RWMutex
	byKey   map[string]Metadata
	byGroup map[cache.Group][]string
}

func newRegistry() *registry {
	return &registry{
		byKey:   make(map[string]Metadata),
		byGroup: make(map[cache.Group][]string),
	}
}

// Register 将资源元数据加入全局注册表。键重复、分组未知或 API 方法不合法都会返回错误。
func Register(meta Metadata) error {
	return globalRegistry.register(meta)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(meta Metadata) {
	if err := Register(meta); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的资源元数据；大小写不敏感，"arena-team" 与 "arena_team" 等价。
func Resolve(key string) (Metadata, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的资源元数据列表。
func List() []Metadata {
	return globalRegistry.list("")
}

// InGroup 返回写入指定缓存分组的资源，按键排序。
func InGroup(group cache.Group) []Metadata {
	return globalRegistry.list(group)
}

// Keys 返回所有已注册资源的键值。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, meta := range items {
		result[i] = meta.Key
	}
	return result
}

func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
}

// validateMethod 要求 API 方法是 /api/wow/ 之后的相对路径，例如 realm/status。
func validateMethod(method string) error {
	if method == "" {
		return fmt.Errorf("api method is required")
	}
	if strings.HasPrefix(method, "/") || strings.HasSuffix(method, "/") {
		return fmt.Errorf("api method %q must not start or end with '/'", method)
	}
	if strings.ContainsAny(method, "?# ") {
		return fmt.Errorf("api method %q must be a bare path", method)
	}
	return nil
}

func (r *registry) register(meta Metadata) error {
	key := normalizeKey(meta.Key)
	if key == "" {
		return fmt.Errorf("resource key is required")
	}
	if meta.Group == "" {
		return fmt.Errorf("resource %s: cache group is required", key)
	}
	if _, err := cache.ParseGroup(string(meta.Group)); err != nil {
		return fmt.Errorf("resource %s: %w", key, err)
	}
	if meta.Method != "" {
		if err := validateMethod(meta.Method); err != nil {
			return fmt.Errorf("resource %s: %w", key, err)
		}
	}
	if meta.Strategy.TTLScale < 0 {
		return fmt.Errorf("resource %s: ttl scale must not be negative", key)
	}
	meta.Key = key
	meta.Strategy = normalizeStrategy(meta.Strategy)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[key]; exists {
		return fmt.Errorf("resource %s already registered", key)
	}
	r.byKey[key] = meta
	r.byGroup[meta.Group] = append(r.byGroup[meta.Group], key)
	return nil
}

func (r *registry) resolve(key string) (Metadata, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return Metadata{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.byKey[normalized]
	return meta, ok
}

// list 返回全部资源；group 非空时只返回该分组下的资源。
func (r *registry) list(group cache.Group) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []string
	if group == "" {
		keys = make([]string, 0, len(r.byKey))
		for key := range r.byKey {
			keys = append(keys, key)
		}
	} else {
		keys = append(keys, r.byGroup[group]...)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	result := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.byKey[key])
	}
	return result
}
