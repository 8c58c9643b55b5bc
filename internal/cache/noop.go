package cache

import (
	"context"
	"time"
)

// noopStore 不保存任何数据：Store 成功但丢弃，Fetch 永远未命中。
type noopStore struct{}

// NewNoopStore 返回直通引擎，适合关闭缓存或尚未初始化的场景。
func NewNoopStore() Backend { return noopStore{} }

func (noopStore) Name() string { return EngineNone }

func (noopStore) Provision(ctx context.Context) error { return nil }

func (noopStore) Store(ctx context.Context, group Group, key string, payload []byte, ttl time.Duration) error {
	return validateKey(group, key)
}

func (noopStore) Fetch(ctx context.Context, group Group, key string) ([]byte, error) {
	if err := validateKey(group, key); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

func (noopStore) Peek(ctx context.Context, group Group, key string) (Entry, error) {
	if err := validateKey(group, key); err != nil {
		return Entry{}, err
	}
	return Entry{}, ErrNotFound
}

func (noopStore) Drop(ctx context.Context, group Group, key string) (bool, error) {
	return false, validateKey(group, key)
}

func (noopStore) FlushAll(ctx context.Context) error { return nil }

func (noopStore) Shutdown(ctx context.Context) error { return nil }
