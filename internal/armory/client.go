package armory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/armory-kit/armory/internal/cache"
	"github.com/armory-kit/armory/internal/resource"
	"github.com/armory-kit/armory/internal/revalidate"
)

var (
	// ErrUnknownRealm 表示请求的 realm 不在当前区域的 realm 列表中。
	ErrUnknownRealm = errors.New("realm does not exist")
	// ErrInvalidTeamSize 表示竞技场队伍规模不是 2v2/3v3/5v5。
	ErrInvalidTeamSize = errors.New("arena team size must be 2v2, 3v3 or 5v5")
)

// Revalidator 是 Client 依赖的查找能力，由 *revalidate.Pipeline 实现。
type Revalidator interface {
	Revalidate(ctx context.Context, d revalidate.Descriptor) (revalidate.Result, error)
}

// Options 描述访问哪个区域以及如何访问。
type Options struct {
	Region string
	UseSSL bool
	// BaseURL 覆盖 http(s)://<region>.battle.net，便于指向镜像或测试服务。
	BaseURL string
	// Signed 为 true 时所有请求携带 BNET 签名。
	Signed bool
	// TTL 为全局缓存时长，资源策略在此基础上缩放。
	TTL time.Duration
	// Strategies 为按资源键合并后的策略；缺省使用注册表默认值。
	Strategies map[string]resource.Strategy
	// CheckRealms 开启后，按 realm 查询前先确认 realm 存在于 realm 列表。
	CheckRealms bool
}

// Lookup 是单次查询的可选参数。
type Lookup struct {
	Fields  []string
	Refresh bool
}

// Client 将资源查询翻译为 revalidate.Descriptor。
type Client struct {
	pipeline Revalidator
	opts     Options
}

// New 校验区域并构造 Client。
func New(pipeline Revalidator, opts Options) (*Client, error) {
	if pipeline == nil {
		return nil, errors.New("revalidator required")
	}
	opts.Region = strings.ToLower(strings.TrimSpace(opts.Region))
	if !slices.Contains(resource.Regions(), opts.Region) {
		return nil, fmt.Errorf("unsupported region %q", opts.Region)
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.TTL <= 0 {
		opts.TTL = cache.DefaultTTL
	}
	return &Client{pipeline: pipeline, opts: opts}, nil
}

// Region 返回当前区域。
func (c *Client) Region() string {
	return c.opts.Region
}

func (c *Client) strategy(meta resource.Metadata) resource.Strategy {
	if s, ok := c.opts.Strategies[meta.Key]; ok {
		return s
	}
	return meta.Strategy
}

// descriptor 按资源元数据组装查找描述。
func (c *Client) descriptor(key string, cacheKey string, segments []string, lookup Lookup) revalidate.Descriptor {
	meta, ok := resource.Resolve(key)
	if !ok {
		panic("armory: unregistered resource " + key)
	}
	strategy := c.strategy(meta)
	return revalidate.Descriptor{
		Group:         meta.Group,
		Key:           cacheKey,
		URL:           c.apiURL(meta.Method, segments, lookup.Fields),
		Fields:        lookup.Fields,
		TTL:           strategy.EffectiveTTL(c.opts.TTL),
		Force:         lookup.Refresh,
		Unconditional: strategy.ValidationMode == resource.ValidationModeNever,
		Signed:        c.opts.Signed,
	}
}

// ensureRealm 在 CheckRealms 打开时确认 realm 存在，匹配不区分大小写。
func (c *Client) ensureRealm(ctx context.Context, realm string) error {
	if strings.TrimSpace(realm) == "" {
		return fmt.Errorf("%w: empty realm", ErrUnknownRealm)
	}
	if !c.opts.CheckRealms {
		return nil
	}
	names, err := c.RealmList(ctx, false)
	if err != nil {
		return err
	}
	for _, name := range names {
		if strings.EqualFold(name, realm) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownRealm, realm)
}
