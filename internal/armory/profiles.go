package armory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/armory-kit/armory/internal/resource"
	"github.com/armory-kit/armory/internal/revalidate"
)

// Character 返回角色资料，缓存键为 <region>/<realm>/<name>。
// 缓存中缺少 lookup.Fields 任一字段时会强制刷新一次。
func (c *Client) Character(ctx context.Context, realm, name string, lookup Lookup) (revalidate.Result, error) {
	return c.profile(ctx, resource.Character, realm, name, lookup)
}

// Guild 返回公会资料，缓存键为 <region>/<realm>/<name>。
func (c *Client) Guild(ctx context.Context, realm, name string, lookup Lookup) (revalidate.Result, error) {
	return c.profile(ctx, resource.Guild, realm, name, lookup)
}

func (c *Client) profile(ctx context.Context, key, realm, name string, lookup Lookup) (revalidate.Result, error) {
	if strings.TrimSpace(name) == "" {
		return revalidate.Result{}, fmt.Errorf("%s name required", key)
	}
	if err := c.ensureRealm(ctx, realm); err != nil {
		return revalidate.Result{}, err
	}
	d := c.descriptor(key, Key(c.opts.Region, realm, name), []string{realm, name}, lookup)
	return c.pipeline.Revalidate(ctx, d)
}

// NormalizeTeamSize 接受 2/3/5 或 2v2/3v3/5v5，返回标准写法。
func NormalizeTeamSize(size string) (string, error) {
	size = strings.ToLower(strings.TrimSpace(size))
	if n, err := strconv.Atoi(size); err == nil {
		size = fmt.Sprintf("%dv%d", n, n)
	}
	switch size {
	case "2v2", "3v3", "5v5":
		return size, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTeamSize, size)
	}
}

// ArenaTeam 返回竞技场队伍资料，缓存键为 <region>/<realm>/<size>/<name>。
func (c *Client) ArenaTeam(ctx context.Context, realm, size, name string, lookup Lookup) (revalidate.Result, error) {
	normalized, err := NormalizeTeamSize(size)
	if err != nil {
		return revalidate.Result{}, err
	}
	if strings.TrimSpace(name) == "" {
		return revalidate.Result{}, fmt.Errorf("arena team name required")
	}
	if err := c.ensureRealm(ctx, realm); err != nil {
		return revalidate.Result{}, err
	}
	d := c.descriptor(resource.ArenaTeam, Key(c.opts.Region, realm, normalized, name), []string{realm, normalized, name}, lookup)
	return c.pipeline.Revalidate(ctx, d)
}
