package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Dialect 描述不同关系型数据库之间仅有的差异：驱动名与 data 列类型。
// 其余 SQL（REPLACE INTO、反引号标识符、? 占位符）在 SQLite 与 MySQL 上通用。
type Dialect struct {
	Driver    string
	DataType  string
	TableOpts string
}

var (
	DialectSQLite = Dialect{Driver: "sqlite", DataType: "BLOB"}
	DialectMySQL  = Dialect{Driver: "mysql", DataType: "LONGBLOB", TableOpts: " ENGINE=InnoDB"}
)

var tablePrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// sqlStore 每个分组一张表：<prefix><group>(key, data, expires)，expires 为毫秒时间戳。
type sqlStore struct {
	db      *sql.DB
	dialect Dialect
	prefix  string
	clock   clock
}

// NewSQLStore 使用调用方打开的 *sql.DB 构建缓存，连接生命周期由调用方管理。
func NewSQLStore(db *sql.DB, dialect Dialect, opts Options) (Backend, error) {
	if db == nil {
		return nil, errors.New("sql db required")
	}
	if !tablePrefixPattern.MatchString(opts.TablePrefix) {
		return nil, fmt.Errorf("invalid table prefix %q", opts.TablePrefix)
	}
	return &sqlStore{
		db:      db,
		dialect: dialect,
		prefix:  opts.TablePrefix,
		clock:   newClock(opts.Now, opts.TTL),
	}, nil
}

func (s *sqlStore) Name() string { return s.dialect.Driver }

func (s *sqlStore) table(group Group) string {
	return "`" + s.prefix + string(group) + "`"
}

func (s *sqlStore) Provision(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s db: %w", s.dialect.Driver, err)
	}
	for _, g := range allGroups {
		stmt := fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (`key` VARCHAR(255) NOT NULL, `data` %s, `expires` BIGINT NOT NULL, PRIMARY KEY (`key`))%s",
			s.table(g), s.dialect.DataType, s.dialect.TableOpts,
		)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", g, err)
		}
	}
	return nil
}

func (s *sqlStore) Store(ctx context.Context, group Group, key string, payload []byte, ttl time.Duration) error {
	if err := validateKey(group, key); err != nil {
		return err
	}
	entry := s.clock.newEntry(group, key, payload, ttl)
	stmt := fmt.Sprintf("REPLACE INTO %s (`key`, `data`, `expires`) VALUES (?, ?, ?)", s.table(group))
	if _, err := s.db.ExecContext(ctx, stmt, key, entry.Payload, entry.ExpiresAt.UnixMilli()); err != nil {
		return fmt.Errorf("store %s/%s: %w", group, key, err)
	}
	return nil
}

func (s *sqlStore) Fetch(ctx context.Context, group Group, key string) ([]byte, error) {
	entry, err := s.Peek(ctx, group, key)
	if err != nil {
		return nil, err
	}
	now := s.clock.now()
	if entry.Live(now) {
		return entry.Payload, nil
	}
	// 只删除仍然过期的行，并发写入的新值保持不变
	stmt := fmt.Sprintf("DELETE FROM %s WHERE `key` = ? AND `expires` <= ?", s.table(group))
	if _, err := s.db.ExecContext(ctx, stmt, key, now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("evict %s/%s: %w", group, key, err)
	}
	return nil, ErrNotFound
}

func (s *sqlStore) Peek(ctx context.Context, group Group, key string) (Entry, error) {
	if err := validateKey(group, key); err != nil {
		return Entry{}, err
	}
	var (
		data    []byte
		expires int64
	)
	stmt := fmt.Sprintf("SELECT `data`, `expires` FROM %s WHERE `key` = ?", s.table(group))
	err := s.db.QueryRowContext(ctx, stmt, key).Scan(&data, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("fetch %s/%s: %w", group, key, err)
	}
	return Entry{Group: group, Key: key, Payload: data, ExpiresAt: time.UnixMilli(expires).UTC()}, nil
}

func (s *sqlStore) Drop(ctx context.Context, group Group, key string) (bool, error) {
	if err := validateKey(group, key); err != nil {
		return false, err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE `key` = ?", s.table(group))
	res, err := s.db.ExecContext(ctx, stmt, key)
	if err != nil {
		return false, fmt.Errorf("drop %s/%s: %w", group, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FlushAll 清空全部六张表（包括 misc），随后重新 Provision。
func (s *sqlStore) FlushAll(ctx context.Context) error {
	for _, g := range allGroups {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table(g)); err != nil {
			return fmt.Errorf("flush %s: %w", g, err)
		}
	}
	return s.Provision(ctx)
}

func (s *sqlStore) Shutdown(ctx context.Context) error {
	return nil
}

func (s *sqlStore) contains(group Group, key string) bool {
	var n int
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE `key` = ?", s.table(group))
	if err := s.db.QueryRow(stmt, key).Scan(&n); err != nil {
		return false
	}
	return n > 0
}
