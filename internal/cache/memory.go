package cache

import (
	"context"
	"sync"
	"time"
)

// memoryStore 是进程内的快照引擎：六个分组各对应一张 map，整体由一把互斥锁保护。
// fileStore 复用同一结构，仅在 Shutdown/FlushAll 时多出磁盘读写。
type memoryStore struct {
	clock clock

	mu     sync.Mutex
	groups map[Group]map[string]Entry
}

// NewMemoryStore 构造进程内缓存，进程退出即丢失。
func NewMemoryStore(opts Options) Backend {
	return newMemoryStore(opts)
}

func newMemoryStore(opts Options) *memoryStore {
	s := &memoryStore{clock: newClock(opts.Now, opts.TTL)}
	s.reset()
	return s
}

func (s *memoryStore) Name() string { return EngineMemory }

// reset 重建空分组，调用方需持有锁或处于构造阶段。
func (s *memoryStore) reset() {
	s.groups = make(map[Group]map[string]Entry, len(allGroups))
	for _, g := range allGroups {
		s.groups[g] = make(map[string]Entry)
	}
}

func (s *memoryStore) Provision(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provisionLocked()
	return nil
}

func (s *memoryStore) provisionLocked() {
	if s.groups == nil {
		s.groups = make(map[Group]map[string]Entry, len(allGroups))
	}
	for _, g := range allGroups {
		if s.groups[g] == nil {
			s.groups[g] = make(map[string]Entry)
		}
	}
}

func (s *memoryStore) Store(ctx context.Context, group Group, key string, payload []byte, ttl time.Duration) error {
	if err := validateKey(group, key); err != nil {
		return err
	}
	entry := s.clock.newEntry(group, key, payload, ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.provisionLocked()
	s.groups[group][key] = entry
	return nil
}

func (s *memoryStore) Fetch(ctx context.Context, group Group, key string) ([]byte, error) {
	if err := validateKey(group, key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.groups[group][key]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.Live(s.clock.now()) {
		delete(s.groups[group], key)
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.Payload...), nil
}

func (s *memoryStore) Peek(ctx context.Context, group Group, key string) (Entry, error) {
	if err := validateKey(group, key); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.groups[group][key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry.Payload = append([]byte(nil), entry.Payload...)
	return entry, nil
}

func (s *memoryStore) Drop(ctx context.Context, group Group, key string) (bool, error) {
	if err := validateKey(group, key); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group][key]; !ok {
		return false, nil
	}
	delete(s.groups[group], key)
	return true, nil
}

func (s *memoryStore) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *memoryStore) Shutdown(ctx context.Context) error {
	return nil
}

// contains 仅供测试检查内部状态，不做过期判断。
func (s *memoryStore) contains(group Group, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.groups[group][key]
	return ok
}
