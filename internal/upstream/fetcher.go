package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request 描述一次上游拉取。IfModifiedSince 非零时发起条件请求。
type Request struct {
	URL             string
	IfModifiedSince time.Time
	Signed          bool
}

// Response 是一次成功拉取的结果。NotModified 为 true 时 Body 恒为 nil，
// 与 "200 但正文为空"（Body 为非 nil 的空切片）区分开。
type Response struct {
	StatusCode   int
	Body         []byte
	NotModified  bool
	LastModified time.Time
}

// StatusError 表示上游返回了既非 2xx 也非 304 的状态码。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

// Fetcher 是条件拉取器，持有共享 http.Client 与可选的签名器。
type Fetcher struct {
	client    *http.Client
	signer    *Signer
	userAgent string
	now       func() time.Time
}

// FetcherOptions 控制 Fetcher 的可选行为。
type FetcherOptions struct {
	Signer    *Signer
	UserAgent string
}

// NewFetcher 构造拉取器；client 为空时使用 NewClient(DefaultTimeout)。
func NewFetcher(client *http.Client, opts FetcherOptions) *Fetcher {
	if client == nil {
		client = NewClient(DefaultTimeout)
	}
	return &Fetcher{
		client:    client,
		signer:    opts.Signer,
		userAgent: opts.UserAgent,
		now:       time.Now,
	}
}

// CanSign 表示是否配置了凭证。
func (f *Fetcher) CanSign() bool {
	return f.signer != nil
}

// Fetch 执行一次请求，不做任何重试。传输错误、非 2xx/304 状态都以 error 返回，
// 由调用方决定是否回退到旧缓存。
func (f *Fetcher) Fetch(ctx context.Context, r Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Signed && f.signer == nil {
		return nil, fmt.Errorf("%w: signed request without signer", ErrInvalidCredentials)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, http.NoBody)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/json")
	if !r.IfModifiedSince.IsZero() {
		req.Header.Set("If-Modified-Since", r.IfModifiedSince.UTC().Format(http.TimeFormat))
	}
	if r.Signed {
		if err := f.signer.Apply(req, f.now()); err != nil {
			return nil, err
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &Response{StatusCode: resp.StatusCode, NotModified: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: r.URL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if body == nil {
		body = []byte{}
	}
	return &Response{
		StatusCode:   resp.StatusCode,
		Body:         body,
		LastModified: extractModTime(resp.Header),
	}, nil
}

// extractModTime 解析 Last-Modified；缺失或格式错误时返回零值，表示没有可用的校验时间。
func extractModTime(header http.Header) time.Time {
	if last := header.Get("Last-Modified"); last != "" {
		if parsed, err := http.ParseTime(last); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
