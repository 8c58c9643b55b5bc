package armory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/armory-kit/armory/internal/resource"
	"github.com/armory-kit/armory/internal/revalidate"
)

var (
	// ErrInvalidID 表示物品/任务 id 不是正整数。
	ErrInvalidID = errors.New("id must be a positive integer")
	// ErrInvalidDataResource 表示 data 资源名不是 character/races 这样的小写路径。
	ErrInvalidDataResource = errors.New("invalid data resource name")
)

var dataResourcePattern = regexp.MustCompile(`^[a-z0-9-]+(/[a-z0-9-]+)*$`)

// ArenaLadder 返回战斗组的竞技场天梯，缓存键为 <region>/ladder/<battlegroup>/<size>。
func (c *Client) ArenaLadder(ctx context.Context, battlegroup, size string, lookup Lookup) (revalidate.Result, error) {
	normalized, err := NormalizeTeamSize(size)
	if err != nil {
		return revalidate.Result{}, err
	}
	battlegroup = strings.TrimSpace(battlegroup)
	if battlegroup == "" {
		return revalidate.Result{}, errors.New("battlegroup required")
	}
	d := c.descriptor(resource.ArenaLadder, Key(c.opts.Region, "ladder", battlegroup, normalized), []string{battlegroup, normalized}, lookup)
	return c.pipeline.Revalidate(ctx, d)
}

// Item 返回物品信息，缓存键为 <region>/item/<id>。
func (c *Client) Item(ctx context.Context, id int, lookup Lookup) (revalidate.Result, error) {
	return c.byID(ctx, resource.Item, id, lookup)
}

// Quest 返回任务信息，缓存键为 <region>/quest/<id>。
func (c *Client) Quest(ctx context.Context, id int, lookup Lookup) (revalidate.Result, error) {
	return c.byID(ctx, resource.Quest, id, lookup)
}

func (c *Client) byID(ctx context.Context, key string, id int, lookup Lookup) (revalidate.Result, error) {
	if id <= 0 {
		return revalidate.Result{}, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	raw := strconv.Itoa(id)
	d := c.descriptor(key, Key(c.opts.Region, key, raw), []string{raw}, lookup)
	return c.pipeline.Revalidate(ctx, d)
}

// ParseID 解析路由参数中的 id。
func ParseID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return id, nil
}

// DataResource 返回 /api/wow/data/<name> 下的静态数据，例如 character/races，
// 缓存键为 <region>/data/<name>。
func (c *Client) DataResource(ctx context.Context, name string, lookup Lookup) (revalidate.Result, error) {
	name = strings.Trim(strings.ToLower(strings.TrimSpace(name)), "/")
	if !dataResourcePattern.MatchString(name) {
		return revalidate.Result{}, fmt.Errorf("%w: %q", ErrInvalidDataResource, name)
	}
	d := c.descriptor(resource.Data, Key(c.opts.Region, "data", name), strings.Split(name, "/"), lookup)
	return c.pipeline.Revalidate(ctx, d)
}
