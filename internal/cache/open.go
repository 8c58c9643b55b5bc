package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

// 支持的引擎名称，与配置文件中的 Cache.Engine 对应。
const (
	EngineMemory = "memory"
	EngineFile   = "file"
	EngineBolt   = "bolt"
	EngineRedis  = "redis"
	EngineSQLite = "sqlite"
	EngineMySQL  = "mysql"
	EngineNone   = "none"
)

// DefaultTTL 在未配置 TTL 时使用。
const DefaultTTL = time.Hour

// Options 汇总各引擎的连接参数；未使用的字段会被忽略。
type Options struct {
	Engine string
	TTL    time.Duration

	// File 用于 file（快照）与 bolt 引擎。
	File string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// DSN 用于 sqlite/mysql 引擎。
	DSN string

	// TablePrefix 为 SQL 表、bolt bucket 与 Redis key 加命名空间。
	TablePrefix string

	// Now 允许测试注入时钟，默认 time.Now。
	Now func() time.Time
}

// Engines 返回所有受支持的引擎名，供配置校验使用。
func Engines() []string {
	return []string{EngineMemory, EngineFile, EngineBolt, EngineRedis, EngineSQLite, EngineMySQL, EngineNone}
}

// Open 根据 opts.Engine 一次性选定引擎实现，并返回用于释放底层连接的 closer。
// Provision 不在这里执行，由 pipeline 初始化时调用。
func Open(opts Options) (Backend, func() error, error) {
	noClose := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(opts.Engine)) {
	case "", EngineMemory:
		return NewMemoryStore(opts), noClose, nil
	case EngineNone:
		return NewNoopStore(), noClose, nil
	case EngineFile:
		backend, err := NewFileStore(opts)
		if err != nil {
			return nil, nil, err
		}
		return backend, noClose, nil
	case EngineBolt:
		backend, err := NewBoltStore(opts)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.(*boltStore).close, nil
	case EngineRedis:
		if opts.RedisAddr == "" {
			return nil, nil, errors.New("redis address required")
		}
		client := redis.NewClient(&redis.Options{
			Addr:         opts.RedisAddr,
			Password:     opts.RedisPassword,
			DB:           opts.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		})
		backend, err := NewRedisStore(client, opts)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return backend, client.Close, nil
	case EngineSQLite:
		return openSQL(DialectSQLite, opts)
	case EngineMySQL:
		return openSQL(DialectMySQL, opts)
	default:
		return nil, nil, fmt.Errorf("unsupported cache engine: %q", opts.Engine)
	}
}

func openSQL(dialect Dialect, opts Options) (Backend, func() error, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, nil, fmt.Errorf("%s dsn required", dialect.Driver)
	}
	db, err := sql.Open(dialect.Driver, opts.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s db: %w", dialect.Driver, err)
	}
	if dialect.Driver == DialectSQLite.Driver {
		db.SetMaxOpenConns(1)
	}
	backend, err := NewSQLStore(db, dialect, opts)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return backend, db.Close, nil
}

// Describe 返回一个便于日志输出的引擎摘要，不包含密码。
func Describe(opts Options) string {
	switch strings.ToLower(opts.Engine) {
	case EngineFile, EngineBolt:
		return fmt.Sprintf("%s:%s", opts.Engine, opts.File)
	case EngineRedis:
		return fmt.Sprintf("redis:%s/%d", opts.RedisAddr, opts.RedisDB)
	case EngineSQLite, EngineMySQL:
		return opts.Engine
	case "":
		return EngineMemory
	default:
		return opts.Engine
	}
}
