package revalidate

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tidwall/gjson"

	"github.com/armory-kit/armory/internal/cache"
)

// Source 标识一次结果的来源，便于日志与调用方区分命中类型。
type Source string

const (
	SourceCache       Source = "cache"
	SourceFetched     Source = "fetched"
	SourceNotModified Source = "not_modified"
	SourceStale       Source = "stale"
)

// DecodeFunc 将原始响应体解码为结构化值。
type DecodeFunc func(raw []byte) (any, error)

// ValidatorFunc 从响应体中提取记录的最后修改时间；返回零值表示没有。
type ValidatorFunc func(raw []byte) time.Time

// Descriptor 描述一次查找：缓存位置、上游地址以及可选的新鲜度约束。
type Descriptor struct {
	Group cache.Group
	Key   string
	URL   string

	// Fields 为调用方要求的字段；缓存值缺少任一字段时直接完整回源，
	// 且这份缺字段的旧值不会用于条件请求或失败回退。
	Fields []string

	// TTL<=0 时使用 Pipeline 的默认 TTL。
	TTL time.Duration

	// LastModified 是调用方已知的校验时间，优先于 Pipeline 记住的值。
	LastModified time.Time

	// Force 跳过本地新鲜度判断，但仍会在已知校验时间时发起条件请求。
	Force bool

	// Unconditional 关闭条件请求，过期后总是完整回源。
	Unconditional bool

	Signed    bool
	Decode    DecodeFunc
	Validator ValidatorFunc
}

// Result 是一次查找的返回值。Raw 为缓存/上游的原始字节。
type Result struct {
	Value        any
	Raw          []byte
	Source       Source
	LastModified time.Time
}

var (
	// ErrAlreadyInitialized 表示 Init 被重复调用，已有状态保持不变。
	ErrAlreadyInitialized = errors.New("cache already initialized")

	// ErrUnavailable 表示上游失败且没有可回退的缓存值。
	ErrUnavailable = errors.New("record unavailable")
)

// DecodeJSON 是默认解码器，把响应体解析为通用 JSON 值。
func DecodeJSON(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// LastModifiedField 读取记录自带的 lastModified（毫秒时间戳）字段。
func LastModifiedField(raw []byte) time.Time {
	res := gjson.GetBytes(raw, "lastModified")
	if !res.Exists() || res.Int() <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(res.Int()).UTC()
}

// missingFields 返回缓存记录中缺失的字段名；只检查顶层键。
func missingFields(raw []byte, fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	var missing []string
	for _, field := range fields {
		if field == "" {
			continue
		}
		if !gjson.GetBytes(raw, field).Exists() {
			missing = append(missing, field)
		}
	}
	return missing
}

func (d Descriptor) validate() error {
	if _, err := cache.ParseGroup(string(d.Group)); err != nil {
		return err
	}
	if d.Key == "" {
		return errors.New("descriptor key required")
	}
	if d.URL == "" {
		return errors.New("descriptor url required")
	}
	return nil
}

func (d Descriptor) decode(raw []byte) (any, error) {
	if d.Decode != nil {
		return d.Decode(raw)
	}
	return DecodeJSON(raw)
}

func (d Descriptor) lastModified(raw []byte, header time.Time) time.Time {
	validator := d.Validator
	if validator == nil {
		validator = LastModifiedField
	}
	if lm := validator(raw); !lm.IsZero() {
		return lm
	}
	return header
}
