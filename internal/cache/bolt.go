package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// boltStore 把每个分组映射为一个 bbolt bucket，值为 JSON 信封。
// 并发控制交给 bbolt 自身的事务锁。
type boltStore struct {
	db     *bolt.DB
	prefix string
	clock  clock
}

// NewBoltStore 打开（或创建）opts.File 指向的 bbolt 文件。
func NewBoltStore(opts Options) (Backend, error) {
	if opts.File == "" {
		return nil, errors.New("bolt file path required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(opts.File, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt file: %w", err)
	}
	return &boltStore{
		db:     db,
		prefix: opts.TablePrefix,
		clock:  newClock(opts.Now, opts.TTL),
	}, nil
}

func (s *boltStore) Name() string { return EngineBolt }

func (s *boltStore) bucket(group Group) []byte {
	return []byte(s.prefix + string(group))
}

func (s *boltStore) Provision(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, g := range allGroups {
			if _, err := tx.CreateBucketIfNotExists(s.bucket(g)); err != nil {
				return fmt.Errorf("create bucket %s: %w", g, err)
			}
		}
		return nil
	})
}

func (s *boltStore) Store(ctx context.Context, group Group, key string, payload []byte, ttl time.Duration) error {
	if err := validateKey(group, key); err != nil {
		return err
	}
	raw, err := encodeEntry(s.clock.newEntry(group, key, payload, ttl))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket(group))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), raw)
	})
}

func (s *boltStore) Fetch(ctx context.Context, group Group, key string) ([]byte, error) {
	entry, err := s.Peek(ctx, group, key)
	if err != nil {
		return nil, err
	}
	if entry.Live(s.clock.now()) {
		return entry.Payload, nil
	}
	if err := s.evictExpired(group, key); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

func (s *boltStore) Peek(ctx context.Context, group Group, key string) (Entry, error) {
	if err := validateKey(group, key); err != nil {
		return Entry{}, err
	}

	var raw []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket(group))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return Entry{}, err
	}
	if raw == nil {
		return Entry{}, ErrNotFound
	}
	entry, err := decodeEntry(group, key, raw)
	if err != nil {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// evictExpired 在同一个写事务里重新读取并确认条目仍已过期后才删除，
// 并发 Store 写入的新值不会被误删。
func (s *boltStore) evictExpired(group Group, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket(group))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if entry, err := decodeEntry(group, key, raw); err == nil && entry.Live(s.clock.now()) {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *boltStore) Drop(ctx context.Context, group Group, key string) (bool, error) {
	if err := validateKey(group, key); err != nil {
		return false, err
	}
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket(group))
		if b == nil || b.Get([]byte(key)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(key))
	})
	return existed, err
}

func (s *boltStore) FlushAll(ctx context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, g := range allGroups {
			if err := tx.DeleteBucket(s.bucket(g)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.Provision(ctx)
}

// Shutdown 不做任何事：每次写入都已在事务中落盘。文件句柄由 Open 返回的 closer 释放。
func (s *boltStore) Shutdown(ctx context.Context) error {
	return nil
}

func (s *boltStore) close() error {
	return s.db.Close()
}

func (s *boltStore) contains(group Group, key string) bool {
	var ok bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(s.bucket(group)); b != nil {
			ok = b.Get([]byte(key)) != nil
		}
		return nil
	})
	return ok
}
