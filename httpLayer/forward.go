package httpLayer

import (
	"errors"
	"time"

	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/serve"
	"go.uber.org/atomic"
)

var ErrConnectionExpired = errors.New("connection has expired")

// PeerSharedConfig 被同一个 peer 的所有 writer 共享, 创建后不再修改.
type PeerSharedConfig struct {
	ExpireInstant     *time.Time //可为nil, 表示不过期
	AppendHTTPHeaders *HeaderMap //只有 代理形式 的writer 会追加
}

// Expired 当 过期时间点 早于 now 时返回true
func (c *PeerSharedConfig) Expired(now time.Time) bool {
	return c != nil && c.ExpireInstant != nil && c.ExpireInstant.Before(now)
}

// ForwardTaskRemoteStats 统计一个 http forward task 向上游写入的字节数.
type ForwardTaskRemoteStats struct {
	writeBytes atomic.Uint64
}

func (s *ForwardTaskRemoteStats) AddWrite(n int) {
	s.writeBytes.Add(uint64(n))
}

func (s *ForwardTaskRemoteStats) WriteBytes() uint64 {
	return s.writeBytes.Load()
}

// ForwardTaskRemoteWrapperStats 将写入字节数 同时计入 task 与 每个用户.
type ForwardTaskRemoteWrapperStats struct {
	task netLayer.WriteStats
	user []*serve.UserUpstreamTrafficStats
}

func NewForwardTaskRemoteWrapperStats(task netLayer.WriteStats) *ForwardTaskRemoteWrapperStats {
	return &ForwardTaskRemoteWrapperStats{task: task}
}

func (s *ForwardTaskRemoteWrapperStats) PushUserIOStats(all []*serve.UserUpstreamTrafficStats) {
	s.user = append(s.user, all...)
}

func (s *ForwardTaskRemoteWrapperStats) AddWrite(n int) {
	if s.task != nil {
		s.task.AddWrite(n)
	}
	for _, u := range s.user {
		u.AddWrite(n)
	}
}

// ForwardWriter 是 http forward 的上游写端.
type ForwardWriter interface {
	Write(p []byte) (int, error)
	Flush() error
	CloseWrite() error

	// PrepareNew 在每个新请求前调用
	PrepareNew(notes *serve.ServerTaskNotes, upstream *netLayer.Addr)

	// UpdateStats 完全替换 统计对象
	UpdateStats(task netLayer.WriteStats, user []*serve.UserUpstreamTrafficStats)

	SendRequestHeader(req *ProxyClientRequest) error
}

var (
	_ ForwardWriter = (*ProxyForwardWriter)(nil)
	_ ForwardWriter = (*OriginRequestWriter)(nil)
)

type limitedInner struct {
	config *PeerSharedConfig
	inner  *netLayer.LimitedWriter
}

func (l *limitedInner) Write(p []byte) (int, error) { return l.inner.Write(p) }
func (l *limitedInner) Flush() error               { return l.inner.Flush() }
func (l *limitedInner) CloseWrite() error          { return l.inner.CloseWrite() }

func (l *limitedInner) UpdateStats(task netLayer.WriteStats, user []*serve.UserUpstreamTrafficStats) {
	ws := NewForwardTaskRemoteWrapperStats(task)
	ws.PushUserIOStats(user)
	l.inner.ResetStats(ws)
}

func (l *limitedInner) checkExpire() error {
	if l.config.Expired(time.Now()) {
		return ErrConnectionExpired
	}
	return nil
}

// ProxyForwardWriter 用于 上游为代理 的情况, 请求行为 absolute-form 并追加配置的头部.
type ProxyForwardWriter struct {
	limitedInner
	upstream netLayer.Addr
}

func NewProxyForwardWriter(w *netLayer.LimitedWriter, config *PeerSharedConfig, upstream netLayer.Addr) *ProxyForwardWriter {
	return &ProxyForwardWriter{
		limitedInner: limitedInner{config: config, inner: w},
		upstream:     upstream,
	}
}

func (pw *ProxyForwardWriter) PrepareNew(_ *serve.ServerTaskNotes, upstream *netLayer.Addr) {
	pw.upstream = *upstream
}

func (pw *ProxyForwardWriter) SendRequestHeader(req *ProxyClientRequest) error {
	if err := pw.checkExpire(); err != nil {
		return err
	}
	var extra *HeaderMap
	if pw.config != nil {
		extra = pw.config.AppendHTTPHeaders
	}
	return SendReqHeaderViaProxy(pw.inner, req, &pw.upstream, extra)
}

// OriginRequestWriter 用于 直连源站 的情况, 请求行为 origin-form.
type OriginRequestWriter struct {
	limitedInner
}

func NewOriginRequestWriter(w *netLayer.LimitedWriter, config *PeerSharedConfig) *OriginRequestWriter {
	return &OriginRequestWriter{limitedInner{config: config, inner: w}}
}

func (ow *OriginRequestWriter) PrepareNew(*serve.ServerTaskNotes, *netLayer.Addr) {}

func (ow *OriginRequestWriter) SendRequestHeader(req *ProxyClientRequest) error {
	if err := ow.checkExpire(); err != nil {
		return err
	}
	return SendReqHeaderToOrigin(ow.inner, req)
}
