package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Group 对缓存键空间做分区，不同 Group 之间的 key 互不冲突。
type Group string

const (
	GroupRealms      Group = "realms"
	GroupCharacters  Group = "characters"
	GroupGuilds      Group = "guilds"
	GroupArenaTeams  Group = "arenaTeams"
	GroupAuctionData Group = "auctionData"
	GroupMisc        Group = "misc"
)

var allGroups = []Group{
	GroupRealms,
	GroupCharacters,
	GroupGuilds,
	GroupArenaTeams,
	GroupAuctionData,
	GroupMisc,
}

// Groups 返回全部六个分组，顺序固定，便于 Provision/FlushAll 遍历。
func Groups() []Group {
	return append([]Group(nil), allGroups...)
}

// ParseGroup 校验外部传入的分组名（大小写敏感，与表名/桶名一致）。
func ParseGroup(raw string) (Group, error) {
	for _, g := range allGroups {
		if string(g) == raw {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown cache group: %q", raw)
}

// Backend 是所有缓存引擎共享的契约。实现必须可被并发调用。
type Backend interface {
	// Name 返回引擎标识，例如 memory、redis，用于日志字段。
	Name() string

	// Provision 幂等地创建六个分组对应的容器（map、bucket 或表）。
	// 引擎不可达或配置错误时返回错误，属于启动期致命错误。
	Provision(ctx context.Context) error

	// Store 写入 payload，并以 now+ttl 计算绝对过期时间；ttl<=0 时使用默认 TTL。
	// 覆盖已有条目不视为错误。
	Store(ctx context.Context, group Group, key string, payload []byte, ttl time.Duration) error

	// Fetch 仅返回仍然有效的条目。条目存在但已过期时必须先删除再返回 ErrNotFound；
	// 无法解码的条目同样视为 ErrNotFound。
	Fetch(ctx context.Context, group Group, key string) ([]byte, error)

	// Peek 原样返回条目（包括已过期的），不触发淘汰。上游失败时用于回退；
	// 服务端自行回收过期数据的引擎（Redis）可能已经没有过期条目。
	Peek(ctx context.Context, group Group, key string) (Entry, error)

	// Drop 删除条目并返回删除前是否存在；删除不存在的 key 不是错误。
	Drop(ctx context.Context, group Group, key string) (bool, error)

	// FlushAll 清空所有分组并重新 Provision，结束后状态与刚初始化时一致。
	FlushAll(ctx context.Context) error

	// Shutdown 对快照型引擎持久化内存状态；连接型引擎无需任何动作。
	Shutdown(ctx context.Context) error
}

// Entry 描述一个缓存条目。ExpiresAt 恒等于 StoredAt + ttl。
type Entry struct {
	Group     Group     `json:"-"`
	Key       string    `json:"-"`
	Payload   []byte    `json:"payload"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Live 判断条目在 now 时刻是否仍然有效（now < ExpiresAt）。
func (e Entry) Live(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// ErrNotFound 表示缓存不存在、已过期或无法解码。
var ErrNotFound = errors.New("cache entry not found")

// ErrClosed 表示引擎已关闭，不再接受读写。
var ErrClosed = errors.New("cache backend closed")

// clock 封装 TTL 计算，所有引擎共享同一套 now+ttl 规则。
type clock struct {
	now        func() time.Time
	defaultTTL time.Duration
}

func newClock(now func() time.Time, defaultTTL time.Duration) clock {
	if now == nil {
		now = time.Now
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return clock{now: now, defaultTTL: defaultTTL}
}

// newEntry 以当前时间构造条目，payload 会被复制，调用方后续修改不影响缓存。
func (c clock) newEntry(group Group, key string, payload []byte, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	stored := c.now().UTC()
	return Entry{
		Group:     group,
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		StoredAt:  stored,
		ExpiresAt: stored.Add(ttl),
	}
}

// MaxKeyLength 与关系型引擎 key 列的 VARCHAR(255) 一致，所有引擎统一执行。
const MaxKeyLength = 255

func validateKey(group Group, key string) error {
	if _, err := ParseGroup(string(group)); err != nil {
		return err
	}
	if key == "" {
		return errors.New("cache key required")
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("cache key longer than %d bytes", MaxKeyLength)
	}
	return nil
}
