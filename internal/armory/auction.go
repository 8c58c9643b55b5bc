package armory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/armory-kit/armory/internal/resource"
	"github.com/armory-kit/armory/internal/revalidate"
)

// AuctionFile 指向一份拍卖行数据转储。
type AuctionFile struct {
	URL          string `json:"url"`
	LastModified int64  `json:"lastModified"`
}

// AuctionIndex 是 auction/data/<realm> 的返回，列出当前可用的转储文件。
type AuctionIndex struct {
	Files []AuctionFile `json:"files"`
}

func decodeAuctionIndex(raw []byte) (any, error) {
	var idx AuctionIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, err
	}
	if len(idx.Files) == 0 || idx.Files[0].URL == "" {
		return nil, fmt.Errorf("auction index without files")
	}
	return idx, nil
}

// auctionIndexModified 读取首个转储文件的 lastModified（毫秒）。
func auctionIndexModified(raw []byte) time.Time {
	ms := gjson.GetBytes(raw, "files.0.lastModified").Int()
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// AuctionData 返回 realm 的拍卖数据索引，TTL 为全局的十分之一。
func (c *Client) AuctionData(ctx context.Context, realm string, refresh bool) (AuctionIndex, revalidate.Source, error) {
	if err := c.ensureRealm(ctx, realm); err != nil {
		return AuctionIndex{}, "", err
	}
	d := c.descriptor(resource.Auction, Key(c.opts.Region, realm), []string{realm}, Lookup{Refresh: refresh})
	d.Decode = decodeAuctionIndex
	d.Validator = auctionIndexModified
	res, err := c.pipeline.Revalidate(ctx, d)
	if err != nil {
		return AuctionIndex{}, "", err
	}
	return res.Value.(AuctionIndex), res.Source, nil
}

// AuctionDump 先解析索引，再拉取其指向的转储文件。转储以索引中的 lastModified
// 作为条件请求的校验时间，缓存键为 <region>/<realm>/dump。
func (c *Client) AuctionDump(ctx context.Context, realm string, refresh bool) (revalidate.Result, error) {
	idx, _, err := c.AuctionData(ctx, realm, refresh)
	if err != nil {
		return revalidate.Result{}, err
	}
	file := idx.Files[0]

	d := c.descriptor(resource.Auction, Key(c.opts.Region, realm, "dump"), nil, Lookup{Refresh: refresh})
	d.URL = file.URL
	// 转储本身不带签名，地址由索引给出
	d.Signed = false
	if file.LastModified > 0 {
		d.LastModified = time.UnixMilli(file.LastModified).UTC()
	}
	return c.pipeline.Revalidate(ctx, d)
}
