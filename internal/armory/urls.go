package armory

import (
	"net/url"
	"strings"
)

const apiPath = "/api/wow/"

// Key 将各部分用 "/" 连接作为缓存键，空格替换为下划线。
func Key(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		cleaned = append(cleaned, strings.ReplaceAll(strings.TrimSpace(part), " ", "_"))
	}
	return strings.Join(cleaned, "/")
}

// baseURL 返回 http(s)://<region>.battle.net，配置了 BaseURL 时以其为准。
func (c *Client) baseURL() string {
	if c.opts.BaseURL != "" {
		return c.opts.BaseURL
	}
	scheme := "http"
	if c.opts.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + c.opts.Region + ".battle.net"
}

// apiURL 生成 <base>/api/wow/<method>/<segments...>?fields=a,b。
func (c *Client) apiURL(method string, segments []string, fields []string) string {
	var b strings.Builder
	b.WriteString(c.baseURL())
	b.WriteString(apiPath)
	b.WriteString(method)
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	if joined := joinFields(fields); joined != "" {
		b.WriteString("?fields=")
		b.WriteString(joined)
	}
	return b.String()
}

func joinFields(fields []string) string {
	cleaned := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			cleaned = append(cleaned, url.QueryEscape(f))
		}
	}
	return strings.Join(cleaned, ",")
}

// SplitFields 解析 "a,b, c" 形式的字段列表。
func SplitFields(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var fields []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
