package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/armory-kit/armory/internal/cache"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("ARMORY_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsRejectsConflictingModes(t *testing.T) {
	if _, err := parseCLIFlags([]string{"-check-config", "-flush"}); err == nil {
		t.Fatalf("-check-config 与 -flush 同时出现应报错")
	}
	opts, err := parseCLIFlags([]string{"-flush"})
	if err != nil || !opts.flushCache {
		t.Fatalf("-flush 应被解析: %+v %v", opts, err)
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "加载配置失败") {
		t.Fatalf("应输出配置错误, got %s", stdErrBuffer().String())
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOut.(*bytes.Buffer).String(), "armory") {
		t.Fatalf("version 输出应包含 armory 标识")
	}
}

func TestRunFlushClearsSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "cache.json")
	ctx := context.Background()

	store, err := cache.NewFileStore(cache.Options{File: snapshot, TTL: time.Hour})
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	if err := store.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := store.Store(ctx, cache.GroupGuilds, "eu/Stormrage/Horde", []byte(`{}`), 0); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "error"

[Cache]
Engine = "file"
File = "%s"
`, snapshot))

	useBufferWriters(t)
	if code := run(cliOptions{configPath: configPath, flushCache: true}); code != 0 {
		t.Fatalf("flush 应成功，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}

	reopened, err := cache.NewFileStore(cache.Options{File: snapshot, TTL: time.Hour})
	if err != nil {
		t.Fatalf("reopen snapshot: %v", err)
	}
	if err := reopened.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if _, err := reopened.Fetch(ctx, cache.GroupGuilds, "eu/Stormrage/Horde"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("flush 后不应再命中, got %v", err)
	}
}
