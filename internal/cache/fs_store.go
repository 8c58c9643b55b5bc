package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// snapshotFile 是快照文件的整体结构：group -> key -> 条目。
type snapshotFile map[Group]map[string]Entry

// fileStore 在内存中维护全部条目，启动时整体读入快照文件，Shutdown 时整体写回。
type fileStore struct {
	*memoryStore
	path string
}

// NewFileStore 以 opts.File 为快照路径构建缓存；文件存在时整体加载，不存在则从空状态开始。
func NewFileStore(opts Options) (Backend, error) {
	if opts.File == "" {
		return nil, errors.New("snapshot file path required")
	}

	abs, err := filepath.Abs(opts.File)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	s := &fileStore{
		memoryStore: newMemoryStore(opts),
		path:        abs,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Name() string { return EngineFile }

func (s *fileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var snap snapshotFile
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for group, entries := range snap {
		if _, err := ParseGroup(string(group)); err != nil {
			continue
		}
		for key, entry := range entries {
			entry.Group = group
			entry.Key = key
			s.groups[group][key] = entry
		}
	}
	return nil
}

// FlushAll 删除快照文件并重建空分组。
func (s *fileStore) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	s.reset()
	return nil
}

// Shutdown 通过临时文件 + rename 原子写回快照，失败时清理临时文件。
func (s *fileStore) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	snap := make(snapshotFile, len(s.groups))
	for group, entries := range s.groups {
		copied := make(map[string]Entry, len(entries))
		for key, entry := range entries {
			copied[key] = entry
		}
		snap[group] = copied
	}
	s.mu.Unlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(raw)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, s.path); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}
