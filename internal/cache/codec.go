package cache

import (
	"encoding/json"
	"errors"
)

// encodeEntry 将条目序列化为 JSON 信封，供不支持结构化值的引擎（Redis、bbolt、快照文件）使用。
func encodeEntry(entry Entry) ([]byte, error) {
	return json.Marshal(entry)
}

// decodeEntry 解析 JSON 信封；任何格式错误都会被调用方当作缓存未命中处理。
func decodeEntry(group Group, key string, raw []byte) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, err
	}
	if entry.ExpiresAt.IsZero() {
		return Entry{}, errors.New("cache envelope missing expires_at")
	}
	entry.Group = group
	entry.Key = key
	return entry, nil
}
