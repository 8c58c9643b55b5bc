package upstream

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DateLayout 是签名与 Date 头共用的时间格式（RFC 2822，例如 "Tue, 01 Jan 2013 00:00:00 +0000"）。
const DateLayout = time.RFC1123Z

// ErrInvalidCredentials 表示凭证缺失或格式错误，请求不会被发送。
var ErrInvalidCredentials = errors.New("invalid api credentials")

// Credentials 是调用方在 Battle.net 申请的公私钥对。
type Credentials struct {
	PublicKey  string
	PrivateKey string
}

// Complete 表示是否同时提供了公钥与私钥。
func (c Credentials) Complete() bool {
	return c.PublicKey != "" && c.PrivateKey != ""
}

// Signer 为需要鉴权的请求生成 BNET Authorization 头。
type Signer struct {
	creds Credentials
}

// NewSigner 校验凭证格式；公钥中不允许出现冒号或空白，否则头部无法被服务端解析。
func NewSigner(creds Credentials) (*Signer, error) {
	if !creds.Complete() {
		return nil, fmt.Errorf("%w: public and private key required", ErrInvalidCredentials)
	}
	if strings.ContainsAny(creds.PublicKey, ": \t\r\n") {
		return nil, fmt.Errorf("%w: malformed public key", ErrInvalidCredentials)
	}
	return &Signer{creds: creds}, nil
}

// CanonicalPath 去掉 scheme、host 与查询串，只保留参与签名的路径部分。
func CanonicalPath(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	p := parsed.EscapedPath()
	if p == "" {
		p = "/"
	}
	return p, nil
}

// StringToSign 按 verb\nDATE\npath\n 拼接签名原文。
func StringToSign(verb, date, path string) string {
	return verb + "\n" + date + "\n" + path + "\n"
}

// Sign 返回 "BNET <public>:<digest>" 形式的头部值，digest 为 base64(HMAC-SHA1)。
// date 必须与请求 Date 头完全一致。
func (s *Signer) Sign(verb, rawURL, date string) (string, error) {
	if s == nil {
		return "", ErrInvalidCredentials
	}
	path, err := CanonicalPath(rawURL)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", rawURL, err)
	}
	mac := hmac.New(sha1.New, []byte(s.creds.PrivateKey))
	mac.Write([]byte(StringToSign(strings.ToUpper(verb), date, path)))
	digest := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return "BNET " + s.creds.PublicKey + ":" + digest, nil
}

// HeaderLine 渲染完整的 "Authorization: BNET ..." 头部行，主要用于诊断输出。
func (s *Signer) HeaderLine(verb, rawURL, date string) (string, error) {
	value, err := s.Sign(verb, rawURL, date)
	if err != nil {
		return "", err
	}
	return "Authorization: " + value, nil
}

// Apply 只取一次时间戳，同时写入 Date 与 Authorization，避免签名时间与发送时间不一致。
func (s *Signer) Apply(req *http.Request, now time.Time) error {
	date := now.UTC().Format(DateLayout)
	value, err := s.Sign(req.Method, req.URL.String(), date)
	if err != nil {
		return err
	}
	req.Header.Set("Date", date)
	req.Header.Set("Authorization", value)
	return nil
}
