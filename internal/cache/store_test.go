package cache

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// engineCase 描述一个待测引擎：open 返回引擎实例与一个绕过过期判断的内部状态探针。
type engineCase struct {
	name string
	open func(t *testing.T, opts Options) (Backend, func(Group, string) bool)
}

func engineCases() []engineCase {
	return []engineCase{
		{
			name: EngineMemory,
			open: func(t *testing.T, opts Options) (Backend, func(Group, string) bool) {
				s := newMemoryStore(opts)
				return s, s.contains
			},
		},
		{
			name: EngineFile,
			open: func(t *testing.T, opts Options) (Backend, func(Group, string) bool) {
				opts.File = filepath.Join(t.TempDir(), "snapshot.json")
				b, err := NewFileStore(opts)
				if err != nil {
					t.Fatalf("open file store: %v", err)
				}
				return b, b.(*fileStore).contains
			},
		},
		{
			name: EngineBolt,
			open: func(t *testing.T, opts Options) (Backend, func(Group, string) bool) {
				opts.File = filepath.Join(t.TempDir(), "cache.bolt")
				b, err := NewBoltStore(opts)
				if err != nil {
					t.Fatalf("open bolt store: %v", err)
				}
				s := b.(*boltStore)
				t.Cleanup(func() { _ = s.close() })
				return s, s.contains
			},
		},
		{
			name: EngineSQLite,
			open: func(t *testing.T, opts Options) (Backend, func(Group, string) bool) {
				opts.Engine = EngineSQLite
				opts.DSN = filepath.Join(t.TempDir(), "cache.db")
				b, closeFn, err := Open(opts)
				if err != nil {
					t.Fatalf("open sqlite store: %v", err)
				}
				t.Cleanup(func() { _ = closeFn() })
				return b, b.(*sqlStore).contains
			},
		},
		{
			name: EngineRedis,
			open: func(t *testing.T, opts Options) (Backend, func(Group, string) bool) {
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = client.Close() })
				b, err := NewRedisStore(client, opts)
				if err != nil {
					t.Fatalf("open redis store: %v", err)
				}
				s := b.(*redisStore)
				return s, func(g Group, key string) bool { return mr.Exists(s.redisKey(g, key)) }
			},
		},
	}
}

func openProvisioned(t *testing.T, tc engineCase, clock *fakeClock) (Backend, func(Group, string) bool) {
	t.Helper()
	backend, has := tc.open(t, Options{TTL: 10 * time.Minute, TablePrefix: "wowapi_", Now: clock.Now})
	if err := backend.Provision(context.Background()); err != nil {
		t.Fatalf("provision error: %v", err)
	}
	// Provision 必须幂等
	if err := backend.Provision(context.Background()); err != nil {
		t.Fatalf("second provision error: %v", err)
	}
	return backend, has
}

func TestBackendStoreAndFetch(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			backend, _ := openProvisioned(t, tc, newFakeClock())

			payload := []byte(`{"name":"Name","lastModified":1356998400000}`)
			if err := backend.Store(ctx, GroupCharacters, "Realm/Name", payload, 0); err != nil {
				t.Fatalf("store error: %v", err)
			}
			got, err := backend.Fetch(ctx, GroupCharacters, "Realm/Name")
			if err != nil {
				t.Fatalf("fetch error: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("payload mismatch: %s", got)
			}

			// 同名 key 在其它分组中不可见
			if _, err := backend.Fetch(ctx, GroupGuilds, "Realm/Name"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound in other group, got %v", err)
			}
		})
	}
}

func TestBackendStoreOverwrites(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			backend, _ := openProvisioned(t, tc, newFakeClock())

			if err := backend.Store(ctx, GroupMisc, "k", []byte("one"), 0); err != nil {
				t.Fatalf("store error: %v", err)
			}
			if err := backend.Store(ctx, GroupMisc, "k", []byte("two"), 0); err != nil {
				t.Fatalf("overwrite should not fail: %v", err)
			}
			got, err := backend.Fetch(ctx, GroupMisc, "k")
			if err != nil {
				t.Fatalf("fetch error: %v", err)
			}
			if string(got) != "two" {
				t.Fatalf("expected overwritten payload, got %s", got)
			}
		})
	}
}

func TestBackendLazyEviction(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			backend, has := openProvisioned(t, tc, clock)

			if err := backend.Store(ctx, GroupCharacters, "Realm/Name", []byte("v"), 600*time.Second); err != nil {
				t.Fatalf("store error: %v", err)
			}

			clock.Advance(300 * time.Second)
			if _, err := backend.Fetch(ctx, GroupCharacters, "Realm/Name"); err != nil {
				t.Fatalf("expected hit at t=300, got %v", err)
			}

			clock.Advance(400 * time.Second)
			if !has(GroupCharacters, "Realm/Name") {
				t.Fatalf("entry should still be physically present before access")
			}
			if _, err := backend.Fetch(ctx, GroupCharacters, "Realm/Name"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound at t=700, got %v", err)
			}
			if has(GroupCharacters, "Realm/Name") {
				t.Fatalf("expired entry should be dropped by fetch")
			}
		})
	}
}

func TestBackendExpiryBoundary(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			backend, _ := openProvisioned(t, tc, clock)

			if err := backend.Store(ctx, GroupRealms, "us", []byte("v"), time.Minute); err != nil {
				t.Fatalf("store error: %v", err)
			}
			clock.Advance(time.Minute)
			if _, err := backend.Fetch(ctx, GroupRealms, "us"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("entry must be dead when now == expiresAt, got %v", err)
			}
		})
	}
}

func TestBackendDrop(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			backend, has := openProvisioned(t, tc, newFakeClock())

			existed, err := backend.Drop(ctx, GroupGuilds, "missing")
			if err != nil {
				t.Fatalf("drop absent key should not fail: %v", err)
			}
			if existed {
				t.Fatalf("drop absent key should report false")
			}

			if err := backend.Store(ctx, GroupGuilds, "Realm/Guild", []byte("g"), 0); err != nil {
				t.Fatalf("store error: %v", err)
			}
			existed, err = backend.Drop(ctx, GroupGuilds, "Realm/Guild")
			if err != nil || !existed {
				t.Fatalf("drop present key: existed=%v err=%v", existed, err)
			}
			if has(GroupGuilds, "Realm/Guild") {
				t.Fatalf("entry should be gone after drop")
			}
			if _, err := backend.Fetch(ctx, GroupGuilds, "Realm/Guild"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after drop, got %v", err)
			}
			existed, err = backend.Drop(ctx, GroupGuilds, "Realm/Guild")
			if err != nil || existed {
				t.Fatalf("second drop should be a no-op: existed=%v err=%v", existed, err)
			}
		})
	}
}

func TestBackendFlushAll(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			backend, _ := openProvisioned(t, tc, newFakeClock())

			for _, g := range Groups() {
				if err := backend.Store(ctx, g, "key", []byte(g), 0); err != nil {
					t.Fatalf("store %s error: %v", g, err)
				}
			}
			if err := backend.FlushAll(ctx); err != nil {
				t.Fatalf("flush error: %v", err)
			}
			for _, g := range Groups() {
				if _, err := backend.Fetch(ctx, g, "key"); !errors.Is(err, ErrNotFound) {
					t.Fatalf("group %s should be empty after flush, got %v", g, err)
				}
			}

			// flush 之后仍可直接使用
			if err := backend.Store(ctx, GroupMisc, "after", []byte("ok"), 0); err != nil {
				t.Fatalf("store after flush error: %v", err)
			}
			if _, err := backend.Fetch(ctx, GroupMisc, "after"); err != nil {
				t.Fatalf("fetch after flush error: %v", err)
			}
		})
	}
}

func TestBackendFetchReturnsCopy(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			backend, _ := openProvisioned(t, tc, newFakeClock())

			payload := []byte("abc")
			if err := backend.Store(ctx, GroupMisc, "copy", payload, 0); err != nil {
				t.Fatalf("store error: %v", err)
			}
			payload[0] = 'x'
			got, err := backend.Fetch(ctx, GroupMisc, "copy")
			if err != nil {
				t.Fatalf("fetch error: %v", err)
			}
			got[1] = 'y'
			again, _ := backend.Fetch(ctx, GroupMisc, "copy")
			if string(again) != "abc" {
				t.Fatalf("stored payload must be isolated from callers, got %s", again)
			}
		})
	}
}

func TestBackendRejectsUnknownGroup(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			backend, _ := openProvisioned(t, tc, newFakeClock())
			if err := backend.Store(context.Background(), Group("items"), "k", []byte("v"), 0); err == nil {
				t.Fatalf("unknown group should be rejected")
			}
		})
	}
}

func TestBackendConcurrentAccess(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			backend, _ := openProvisioned(t, tc, newFakeClock())

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					for j := 0; j < 20; j++ {
						_ = backend.Store(ctx, GroupMisc, "shared", []byte{byte(i)}, 0)
						_, _ = backend.Fetch(ctx, GroupMisc, "shared")
						if j%5 == 0 {
							_, _ = backend.Drop(ctx, GroupMisc, "shared")
						}
					}
				}(i)
			}
			wg.Wait()
		})
	}
}

func TestParseGroup(t *testing.T) {
	if g, err := ParseGroup("arenaTeams"); err != nil || g != GroupArenaTeams {
		t.Fatalf("unexpected parse result: %v %v", g, err)
	}
	if _, err := ParseGroup("arenateams"); err == nil {
		t.Fatalf("group names are case sensitive")
	}
	if len(Groups()) != 6 {
		t.Fatalf("expected six groups")
	}
}

func TestBackendPeekKeepsExpiredEntry(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			backend, has := openProvisioned(t, tc, clock)

			if err := backend.Store(ctx, GroupGuilds, "us/Realm/Guild", []byte("old"), time.Minute); err != nil {
				t.Fatalf("store error: %v", err)
			}
			clock.Advance(2 * time.Minute)

			entry, err := backend.Peek(ctx, GroupGuilds, "us/Realm/Guild")
			if err != nil {
				t.Fatalf("peek error: %v", err)
			}
			if string(entry.Payload) != "old" || entry.Live(clock.Now()) {
				t.Fatalf("expected expired entry, got %s live=%v", entry.Payload, entry.Live(clock.Now()))
			}
			if !has(GroupGuilds, "us/Realm/Guild") {
				t.Fatalf("peek must not evict")
			}

			if _, err := backend.Fetch(ctx, GroupGuilds, "us/Realm/Guild"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := backend.Peek(ctx, GroupGuilds, "us/Realm/Guild"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("fetch should have evicted the entry, got %v", err)
			}
		})
	}
}

func TestBackendEvictionKeepsConcurrentStore(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			backend, _ := openProvisioned(t, tc, clock)

			for i := 0; i < 200; i++ {
				if err := backend.Store(ctx, GroupCharacters, "Realm/Name", []byte("old"), time.Millisecond); err != nil {
					t.Fatalf("store error: %v", err)
				}
				clock.Advance(time.Second)

				var wg sync.WaitGroup
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, _ = backend.Fetch(ctx, GroupCharacters, "Realm/Name")
				}()
				go func() {
					defer wg.Done()
					if err := backend.Store(ctx, GroupCharacters, "Realm/Name", []byte("fresh"), time.Hour); err != nil {
						t.Errorf("store error: %v", err)
					}
				}()
				wg.Wait()

				got, err := backend.Fetch(ctx, GroupCharacters, "Realm/Name")
				if err != nil || string(got) != "fresh" {
					t.Fatalf("iteration %d: fresh entry lost: %s %v", i, got, err)
				}
			}
		})
	}
}

func TestBackendRejectsLongKey(t *testing.T) {
	for _, tc := range engineCases() {
		t.Run(tc.name, func(t *testing.T) {
			backend, _ := openProvisioned(t, tc, newFakeClock())
			long := strings.Repeat("k", MaxKeyLength+1)
			if err := backend.Store(context.Background(), GroupMisc, long, []byte("v"), 0); err == nil {
				t.Fatalf("expected error for %d byte key", len(long))
			}
			exact := strings.Repeat("k", MaxKeyLength)
			if err := backend.Store(context.Background(), GroupMisc, exact, []byte("v"), 0); err != nil {
				t.Fatalf("max length key should be accepted: %v", err)
			}
		})
	}
}
