package revalidate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/armory-kit/armory/internal/cache"
	"github.com/armory-kit/armory/internal/logging"
	"github.com/armory-kit/armory/internal/upstream"
)

// Fetcher 是 Pipeline 依赖的上游拉取能力，测试中可替换。
type Fetcher interface {
	Fetch(ctx context.Context, r upstream.Request) (*upstream.Response, error)
}

// Options 控制 Pipeline 的默认行为。
type Options struct {
	TTL    time.Duration
	Logger *logrus.Logger
	Now    func() time.Time
}

// Pipeline 负责 orchestrate “缓存命中 → 条件回源 → 写缓存” 的全流程。
// 每个实例独占一个 cache.Backend，多个实例之间互不影响。
type Pipeline struct {
	fetcher Fetcher
	logger  *logrus.Logger
	ttl     time.Duration
	now     func() time.Time

	mu          sync.RWMutex
	backend     cache.Backend
	initialized bool

	// validators 只记录来自响应头的 Last-Modified（记录正文里没有 lastModified 时），
	// key: group::key, value: time.Time。正文本身只保存在缓存后端。
	validators sync.Map
}

// New 构造尚未初始化的 Pipeline；初始化前的行为等同 none 引擎（从不缓存）。
func New(fetcher Fetcher, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		fetcher: fetcher,
		logger:  logger,
		ttl:     opts.TTL,
		now:     now,
		backend: cache.NewNoopStore(),
	}
}

// Init 一次性装配缓存后端并执行 Provision。重复调用返回 ErrAlreadyInitialized，
// 且不会触碰已有后端；Provision 失败时 Pipeline 保持未初始化。
func (p *Pipeline) Init(ctx context.Context, backend cache.Backend) error {
	if backend == nil {
		return errors.New("cache backend required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return ErrAlreadyInitialized
	}
	if err := backend.Provision(ctx); err != nil {
		return fmt.Errorf("provision %s cache: %w", backend.Name(), err)
	}
	p.backend = backend
	p.initialized = true
	return nil
}

// Engine 返回当前后端名称。
func (p *Pipeline) Engine() string {
	return p.current().Name()
}

func (p *Pipeline) current() cache.Backend {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.backend
}

// Revalidate 返回 (group, key) 最新可用的值，每次调用至多发起一次上游请求。
func (p *Pipeline) Revalidate(ctx context.Context, d Descriptor) (Result, error) {
	if err := d.validate(); err != nil {
		return Result{}, err
	}
	started := p.now()
	res, err := p.revalidate(ctx, d)
	p.logResult(d, res, started, err)
	return res, err
}

func (p *Pipeline) revalidate(ctx context.Context, d Descriptor) (Result, error) {
	backend := p.current()
	memoKey := validatorKey(d.Group, d.Key)

	// held 是后端里现存的值（可能已过期），必须在 Fetch 触发淘汰之前读取
	held := p.peek(ctx, backend, d)
	cached := p.fetchLive(ctx, backend, d)
	if cached != nil {
		held = cached
	}

	if cached != nil && !d.Force && len(missingFields(cached, d.Fields)) == 0 {
		value, decodeErr := d.decode(cached)
		if decodeErr == nil {
			return Result{
				Value:        value,
				Raw:          cached,
				Source:       SourceCache,
				LastModified: p.knownLastModified(memoKey, cached, d),
			}, nil
		}
		// 无法解码的缓存等同未命中
		_, _ = backend.Drop(ctx, d.Group, d.Key)
		held = nil
	}

	// 缺字段的旧记录既不能作为条件请求的依据，也不能作为回退值：
	// 只能完整回源一次
	if held != nil {
		if missing := missingFields(held, d.Fields); len(missing) > 0 {
			fields := logging.LookupFields(string(d.Group), d.Key, backend.Name(), "")
			fields["missing_fields"] = missing
			p.logger.WithFields(fields).Debug("cache_partial_hit")
			held = nil
		}
	}

	lastModified := d.LastModified
	if lastModified.IsZero() {
		if v, ok := p.validators.Load(memoKey); ok {
			lastModified = v.(time.Time)
		}
	}
	if lastModified.IsZero() && held != nil {
		lastModified = d.lastModified(held, time.Time{})
	}

	req := upstream.Request{URL: d.URL, Signed: d.Signed}
	if !d.Unconditional && held != nil && !lastModified.IsZero() {
		req.IfModifiedSince = lastModified
	}

	resp, fetchErr := p.fetcher.Fetch(ctx, req)
	if fetchErr != nil {
		if errors.Is(fetchErr, upstream.ErrInvalidCredentials) {
			return Result{}, fetchErr
		}
		return p.fallback(d, held, lastModified, fetchErr)
	}

	if resp.NotModified {
		if held == nil {
			return Result{}, fmt.Errorf("%w: upstream reported not modified without a cached value", ErrUnavailable)
		}
		value, err := d.decode(held)
		if err != nil {
			return Result{}, fmt.Errorf("%w: decode cached value: %w", ErrUnavailable, err)
		}
		// 上游确认未变化：原样写回并重新计时
		p.store(ctx, backend, d, held, SourceNotModified)
		return Result{Value: value, Raw: held, Source: SourceNotModified, LastModified: lastModified}, nil
	}

	if len(resp.Body) == 0 {
		return p.fallback(d, held, lastModified, errors.New("upstream returned an empty body"))
	}
	value, err := d.decode(resp.Body)
	if err != nil {
		return p.fallback(d, held, lastModified, fmt.Errorf("decode upstream body: %w", err))
	}

	stored := p.store(ctx, backend, d, resp.Body, SourceFetched)

	fresh := d.lastModified(resp.Body, resp.LastModified)
	if stored && d.lastModified(resp.Body, time.Time{}).IsZero() && !fresh.IsZero() {
		p.validators.Store(memoKey, fresh)
	} else {
		p.validators.Delete(memoKey)
	}

	return Result{Value: value, Raw: resp.Body, Source: SourceFetched, LastModified: fresh}, nil
}

func (p *Pipeline) peek(ctx context.Context, backend cache.Backend, d Descriptor) []byte {
	entry, err := backend.Peek(ctx, d.Group, d.Key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			p.logger.WithError(err).
				WithFields(logging.LookupFields(string(d.Group), d.Key, backend.Name(), "")).
				Warn("cache_get_failed")
		}
		return nil
	}
	return entry.Payload
}

func (p *Pipeline) fetchLive(ctx context.Context, backend cache.Backend, d Descriptor) []byte {
	cached, err := backend.Fetch(ctx, d.Group, d.Key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			p.logger.WithError(err).
				WithFields(logging.LookupFields(string(d.Group), d.Key, backend.Name(), "")).
				Warn("cache_get_failed")
		}
		return nil
	}
	return cached
}

// store 写入缓存；none 引擎或写入失败时返回 false。
func (p *Pipeline) store(ctx context.Context, backend cache.Backend, d Descriptor, payload []byte, source Source) bool {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = p.ttl
	}
	if err := backend.Store(ctx, d.Group, d.Key, payload, ttl); err != nil {
		p.logger.WithError(err).
			WithFields(logging.LookupFields(string(d.Group), d.Key, backend.Name(), string(source))).
			Warn("cache_store_failed")
		return false
	}
	return backend.Name() != cache.EngineNone
}

// fallback 在上游不可用时返回旧值（即使已过期）；没有旧值时返回 ErrUnavailable。
func (p *Pipeline) fallback(d Descriptor, held []byte, lastModified time.Time, cause error) (Result, error) {
	if held == nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, cause)
	}
	value, err := d.decode(held)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, cause)
	}
	p.logger.WithError(cause).
		WithFields(logging.LookupFields(string(d.Group), d.Key, p.Engine(), string(SourceStale))).
		Warn("revalidate_stale_fallback")
	return Result{Value: value, Raw: held, Source: SourceStale, LastModified: lastModified}, nil
}

func (p *Pipeline) knownLastModified(memoKey string, raw []byte, d Descriptor) time.Time {
	if v, ok := p.validators.Load(memoKey); ok {
		return v.(time.Time)
	}
	return d.lastModified(raw, time.Time{})
}

// Drop 删除单个条目并忘记其校验信息，下一次查找将无条件回源。
func (p *Pipeline) Drop(ctx context.Context, group cache.Group, key string) (bool, error) {
	p.validators.Delete(validatorKey(group, key))
	return p.current().Drop(ctx, group, key)
}

// FlushAll 清空所有分组并重新 Provision，同时清空校验信息。
func (p *Pipeline) FlushAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forgetValidators()
	return p.backend.FlushAll(ctx)
}

// Shutdown 让快照型引擎落盘，然后回到未初始化状态，可再次 Init。
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil
	}
	err := p.backend.Shutdown(ctx)
	p.backend = cache.NewNoopStore()
	p.initialized = false
	p.forgetValidators()
	return err
}

func (p *Pipeline) forgetValidators() {
	p.validators.Range(func(key, _ any) bool {
		p.validators.Delete(key)
		return true
	})
}

func (p *Pipeline) logResult(d Descriptor, res Result, started time.Time, err error) {
	fields := logging.LookupFields(string(d.Group), d.Key, p.Engine(), string(res.Source))
	fields["action"] = "revalidate"
	fields["url"] = d.URL
	fields["forced"] = d.Force
	fields["elapsed_ms"] = p.now().Sub(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		p.logger.WithFields(fields).Error("revalidate_failed")
		return
	}
	p.logger.WithFields(fields).Debug("revalidate_complete")
}

func validatorKey(group cache.Group, key string) string {
	return string(group) + "::" + key
}
