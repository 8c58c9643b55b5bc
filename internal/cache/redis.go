package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore 每个条目占用一个 Redis key：<prefix><group>++<key>，值为 JSON 信封。
// 同时设置 Redis 原生 EXPIREAT，让服务端也能回收过期数据；有效性仍以信封中的
// expires_at 为准，保证与其它引擎一致。
type redisStore struct {
	client redis.UniversalClient
	prefix string
	clock  clock
}

// NewRedisStore 使用调用方提供的连接构建缓存，连接的生命周期由调用方管理。
func NewRedisStore(client redis.UniversalClient, opts Options) (Backend, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	// 前缀会出现在 FlushAll 的 SCAN 模式里，不能带 glob 元字符
	if !tablePrefixPattern.MatchString(opts.TablePrefix) {
		return nil, fmt.Errorf("invalid table prefix %q", opts.TablePrefix)
	}
	return &redisStore{
		client: client,
		prefix: opts.TablePrefix,
		clock:  newClock(opts.Now, opts.TTL),
	}, nil
}

func (s *redisStore) Name() string { return EngineRedis }

func (s *redisStore) redisKey(group Group, key string) string {
	return s.prefix + string(group) + "++" + key
}

// Provision 只需确认服务可达，Redis 不需要预先建表。
func (s *redisStore) Provision(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

func (s *redisStore) Store(ctx context.Context, group Group, key string, payload []byte, ttl time.Duration) error {
	if err := validateKey(group, key); err != nil {
		return err
	}
	entry := s.clock.newEntry(group, key, payload, ttl)
	raw, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	args := redis.SetArgs{ExpireAt: entry.ExpiresAt}
	if err := s.client.SetArgs(ctx, s.redisKey(group, key), raw, args).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// evictIfUnchanged 仅在 key 的值仍是读到的那份过期信封时才删除。
var evictIfUnchanged = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *redisStore) Fetch(ctx context.Context, group Group, key string) ([]byte, error) {
	if err := validateKey(group, key); err != nil {
		return nil, err
	}
	raw, err := s.get(ctx, group, key)
	if err != nil {
		return nil, err
	}
	entry, err := decodeEntry(group, key, raw)
	if err != nil {
		return nil, ErrNotFound
	}
	if !entry.Live(s.clock.now()) {
		if err := evictIfUnchanged.Run(ctx, s.client, []string{s.redisKey(group, key)}, raw).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis evict error: %w", err)
		}
		return nil, ErrNotFound
	}
	return entry.Payload, nil
}

func (s *redisStore) Peek(ctx context.Context, group Group, key string) (Entry, error) {
	if err := validateKey(group, key); err != nil {
		return Entry{}, err
	}
	raw, err := s.get(ctx, group, key)
	if err != nil {
		return Entry{}, err
	}
	entry, err := decodeEntry(group, key, raw)
	if err != nil {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func (s *redisStore) get(ctx context.Context, group Group, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.redisKey(group, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	return raw, nil
}

func (s *redisStore) Drop(ctx context.Context, group Group, key string) (bool, error) {
	if err := validateKey(group, key); err != nil {
		return false, err
	}
	n, err := s.client.Del(ctx, s.redisKey(group, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete error: %w", err)
	}
	return n > 0, nil
}

// FlushAll 只删除本前缀下六个分组的 key，不会 FLUSHDB 影响同库的其它数据。
func (s *redisStore) FlushAll(ctx context.Context) error {
	for _, g := range allGroups {
		pattern := s.prefix + string(g) + "++*"
		var cursor uint64
		for {
			keys, next, err := s.client.Scan(ctx, cursor, pattern, 500).Result()
			if err != nil {
				return fmt.Errorf("redis scan error: %w", err)
			}
			if len(keys) > 0 {
				if err := s.client.Del(ctx, keys...).Err(); err != nil {
					return fmt.Errorf("redis delete error: %w", err)
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	return s.Provision(ctx)
}

func (s *redisStore) Shutdown(ctx context.Context) error {
	return nil
}
