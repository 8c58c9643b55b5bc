package armory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/armory-kit/armory/internal/resource"
	"github.com/armory-kit/armory/internal/revalidate"
)

// Realm 是 realm/status 中的单个条目。
type Realm struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Type       string `json:"type"`
	Status     bool   `json:"status"`
	Queue      bool   `json:"queue"`
	Population string `json:"population"`
}

// RealmStatus 是整个区域的 realm 状态。
type RealmStatus struct {
	Realms []Realm `json:"realms"`
}

// Find 按名称查找 realm，不区分大小写。
func (s RealmStatus) Find(name string) (Realm, bool) {
	for _, r := range s.Realms {
		if strings.EqualFold(r.Name, name) || strings.EqualFold(r.Slug, name) {
			return r, true
		}
	}
	return Realm{}, false
}

func decodeRealmStatus(raw []byte) (any, error) {
	var status RealmStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, err
	}
	if status.Realms == nil {
		return nil, fmt.Errorf("realm status without realms")
	}
	return status, nil
}

// decodeRealmNames 只投影出 realm 名称列表。
func decodeRealmNames(raw []byte) (any, error) {
	realms := gjson.GetBytes(raw, "realms")
	if !realms.IsArray() {
		return nil, fmt.Errorf("realm status without realms")
	}
	names := make([]string, 0, len(realms.Array()))
	for _, r := range realms.Array() {
		if name := r.Get("name").String(); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// RealmStatus 返回整个区域的 realm 状态，缓存于 realms/<region>。
// 传入 names 时只返回这些 realm（不存在的名称会被忽略）。
func (c *Client) RealmStatus(ctx context.Context, refresh bool, names ...string) (RealmStatus, revalidate.Source, error) {
	d := c.descriptor(resource.RealmStatus, c.opts.Region, nil, Lookup{Refresh: refresh})
	d.Decode = decodeRealmStatus
	res, err := c.pipeline.Revalidate(ctx, d)
	if err != nil {
		return RealmStatus{}, "", err
	}
	status := res.Value.(RealmStatus)
	if len(names) == 0 {
		return status, res.Source, nil
	}
	filtered := RealmStatus{Realms: make([]Realm, 0, len(names))}
	for _, name := range names {
		if r, ok := status.Find(name); ok {
			filtered.Realms = append(filtered.Realms, r)
		}
	}
	return filtered, res.Source, nil
}

// RealmList 返回区域内所有 realm 名称，缓存于 misc/realmlist_<region>，TTL 为全局的 20 倍。
func (c *Client) RealmList(ctx context.Context, refresh bool) ([]string, error) {
	d := c.descriptor(resource.RealmList, "realmlist_"+c.opts.Region, nil, Lookup{Refresh: refresh})
	d.Decode = decodeRealmNames
	res, err := c.pipeline.Revalidate(ctx, d)
	if err != nil {
		return nil, err
	}
	return res.Value.([]string), nil
}
