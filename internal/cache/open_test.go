package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestOpenSelectsEngine(t *testing.T) {
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	testCases := []struct {
		opts Options
		name string
	}{
		{Options{}, EngineMemory},
		{Options{Engine: "MEMORY"}, EngineMemory},
		{Options{Engine: EngineNone}, EngineNone},
		{Options{Engine: EngineFile, File: filepath.Join(dir, "snap.json")}, EngineFile},
		{Options{Engine: EngineBolt, File: filepath.Join(dir, "cache.bolt")}, EngineBolt},
		{Options{Engine: EngineSQLite, DSN: filepath.Join(dir, "cache.db")}, EngineSQLite},
		{Options{Engine: EngineRedis, RedisAddr: mr.Addr()}, EngineRedis},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			backend, closeFn, err := Open(tc.opts)
			if err != nil {
				t.Fatalf("open error: %v", err)
			}
			defer closeFn()
			if backend.Name() != tc.name {
				t.Fatalf("expected engine %s, got %s", tc.name, backend.Name())
			}
			if err := backend.Provision(context.Background()); err != nil {
				t.Fatalf("provision error: %v", err)
			}
		})
	}
}

func TestOpenRejectsBadOptions(t *testing.T) {
	bad := []Options{
		{Engine: "apc"},
		{Engine: EngineRedis},
		{Engine: EngineSQLite},
		{Engine: EngineFile},
		{Engine: EngineSQLite, DSN: "x.db", TablePrefix: "bad-prefix;"},
	}
	for _, opts := range bad {
		if _, _, err := Open(opts); err == nil {
			t.Fatalf("expected error for %+v", opts)
		}
	}
}

func TestRedisProvisionFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	backend, closeFn, err := Open(Options{Engine: EngineRedis, RedisAddr: addr})
	if err != nil {
		t.Fatalf("open should defer connectivity checks to provision: %v", err)
	}
	defer closeFn()
	if err := backend.Provision(context.Background()); err == nil {
		t.Fatalf("provision against a closed server should fail")
	}
}

func TestNoopStoreNeverCaches(t *testing.T) {
	ctx := context.Background()
	backend := NewNoopStore()
	if err := backend.Store(ctx, GroupMisc, "k", []byte("v"), 0); err != nil {
		t.Fatalf("store error: %v", err)
	}
	if _, err := backend.Fetch(ctx, GroupMisc, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("noop fetch should miss, got %v", err)
	}
	if existed, err := backend.Drop(ctx, GroupMisc, "k"); err != nil || existed {
		t.Fatalf("noop drop should report false, got %v %v", existed, err)
	}
}

func TestRedisUndecodableEntryIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	backend, closeFn, err := Open(Options{Engine: EngineRedis, RedisAddr: mr.Addr(), TablePrefix: "wowapi_"})
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	defer closeFn()

	if err := mr.Set("wowapi_misc++broken", "not-an-envelope"); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	if _, err := backend.Fetch(context.Background(), GroupMisc, "broken"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("undecodable entry should surface as a miss, got %v", err)
	}
}

func TestRedisRejectsGlobPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	for _, prefix := range []string{"wow*", "a?b", "[x]", "wow api"} {
		if _, _, err := Open(Options{Engine: EngineRedis, RedisAddr: mr.Addr(), TablePrefix: prefix}); err == nil {
			t.Fatalf("expected error for prefix %q", prefix)
		}
	}
}

func TestNoopStorePeekMisses(t *testing.T) {
	if _, err := NewNoopStore().Peek(context.Background(), GroupMisc, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("noop peek should miss, got %v", err)
	}
}
