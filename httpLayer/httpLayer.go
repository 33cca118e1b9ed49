/*
Package httpLayer 提供http层的一些方法和定义.

包括 有序的 HeaderMap, 代理客户端请求的解析, 以及 向 上游代理 或 源站 写请求头的 ForwardWriter.
*/
package httpLayer

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

const (
	H11_Str = "HTTP/1.1"
)

var ErrNotProxyRequest = errors.New("not an absolute-form proxy request")

// 逐跳头部, 不应转发给下一跳
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Upgrade",
}

// ProxyClientRequest 是 从客户端收到的 代理请求 的头部.
type ProxyClientRequest struct {
	Method  string
	URI     *url.URL //绝对形式
	Version string
	Headers *HeaderMap //已去掉逐跳头部
}

// NewProxyClientRequest 从 http.ReadRequest 读到的请求 生成 ProxyClientRequest.
func NewProxyClientRequest(r *http.Request) (*ProxyClientRequest, error) {
	if r.URL == nil || r.URL.Host == "" {
		return nil, ErrNotProxyRequest
	}

	h := r.Header.Clone()
	for _, conn := range h.Values("Connection") {
		for _, name := range strings.Split(conn, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}

	hm := HeaderMapFromHTTP(h)
	for _, te := range r.TransferEncoding {
		hm.Append("Transfer-Encoding", te)
	}

	u := *r.URL
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	ver := r.Proto
	if ver == "" {
		ver = H11_Str
	}

	return &ProxyClientRequest{
		Method:  r.Method,
		URI:     &u,
		Version: ver,
		Headers: hm,
	}, nil
}

// HostHeader 返回 请求目标的 host[:port]
func (r *ProxyClientRequest) HostHeader() string {
	return r.URI.Host
}

// OriginTarget 返回 origin-form 的请求目标, 如 /a/b?c=d
func (r *ProxyClientRequest) OriginTarget() string {
	t := r.URI.RequestURI()
	if t == "" {
		t = "/"
	}
	return t
}
