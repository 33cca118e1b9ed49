package audit

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/serve"
	"github.com/e1732a364fed/vs_inspect/stat/metrics"
	"github.com/e1732a364fed/vs_inspect/utils"
	"github.com/xtaci/smux"
	"go.uber.org/zap"
)

const defaultDetourDialTimeout = 5 * time.Second

// SmuxDetourClient 在一条 smux 会话上 复用所有 task 的 detour stream.
// 会话断开后, 下一次 DetourRelay 会重新拨号.
type SmuxDetourClient struct {
	Addr        string
	DialTimeout time.Duration
	Stats       *metrics.BackendStats //可为nil

	conf *smux.Config

	mu      sync.Mutex
	session *smux.Session
}

func NewSmuxDetourClient(addr string, stats *metrics.BackendStats) *SmuxDetourClient {
	conf := smux.DefaultConfig()
	conf.KeepAliveInterval = 10 * time.Second
	conf.KeepAliveTimeout = 30 * time.Second
	return &SmuxDetourClient{
		Addr:        addr,
		DialTimeout: defaultDetourDialTimeout,
		Stats:       stats,
		conf:        conf,
	}
}

func (c *SmuxDetourClient) getSession() (*smux.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && !c.session.IsClosed() {
		return c.session, nil
	}

	if c.Stats != nil {
		c.Stats.AddRefreshTotal()
	}
	conn, err := net.DialTimeout("tcp", c.Addr, c.DialTimeout)
	if err != nil {
		return nil, err
	}
	sess, err := smux.Client(conn, c.conf)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if c.Stats != nil {
		c.Stats.AddRefreshOk()
	}
	if ce := utils.CanLogInfo("detour session established"); ce != nil {
		ce.Write(zap.String("device", c.Addr))
	}
	c.session = sess
	return sess, nil
}

func (c *SmuxDetourClient) openStreams(ctx *StreamDetourContext) (north, south *smux.Stream, err error) {
	sess, err := c.getSession()
	if err != nil {
		return
	}
	north, err = sess.OpenStream()
	if err != nil {
		return
	}
	if err = WriteStreamHeader(north, ctx.Header(DirectionNorth)); err != nil {
		north.Close()
		return nil, nil, err
	}
	south, err = sess.OpenStream()
	if err != nil {
		north.Close()
		return nil, nil, err
	}
	if err = WriteStreamHeader(south, ctx.Header(DirectionSouth)); err != nil {
		north.Close()
		south.Close()
		return nil, nil, err
	}
	return
}

func (c *SmuxDetourClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// DetourRelay 阻塞, 直到 任意一个方向 结束.
//
//	client -> north -> 设备 -> north -> upstream
//	upstream -> south -> 设备 -> south -> client
func (c *SmuxDetourClient) DetourRelay(cltR io.Reader, cltW io.Writer, upsR io.Reader, upsW io.Writer, ctx *StreamDetourContext) error {
	if c.Stats != nil {
		c.Stats.AddRequestTotal()
	}
	north, south, err := c.openStreams(ctx)
	if err != nil {
		return serve.NewTaskError(serve.KindUpstreamAppError, "detour device unavailable", err)
	}
	if c.Stats != nil {
		c.Stats.AddRequestOk()
	}
	defer north.Close()
	defer south.Close()

	opts := netLayer.RelayOptions{Target: ctx.Upstream.String()}
	if ctx.ServerConfig != nil {
		opts.BufferSize = ctx.ServerConfig.TCPCopyBufferSize()
		opts.RateLimit = ctx.ServerConfig.TCPRateLimit()
	}
	if ctx.QuitPolicy != nil {
		opts.Quit = ctx.QuitPolicy.Done()
	}

	results := make(chan error, 2)
	go func() {
		// 客户端一侧: client -> north, south -> client
		results <- clientSideError(netLayer.RelayStreams(cltR, cltW, south, north, opts))
	}()
	go func() {
		// 上游一侧: north -> upstream, upstream -> south
		results <- upstreamSideError(netLayer.RelayStreams(north, south, upsR, upsW, opts))
	}()

	return <-results
}

func clientSideError(err error) error {
	switch err {
	case netLayer.ErrClosedByUpstream:
		return serve.NewTaskError(serve.KindUpstreamAppError, "detour device closed south stream", nil)
	}
	if ce, ok := err.(*netLayer.CopyError); ok && ce.Side == netLayer.SideUpstream {
		return serve.NewTaskError(serve.KindUpstreamAppError, "detour stream failed", ce.Err)
	}
	return serve.FromRelayError(err)
}

func upstreamSideError(err error) error {
	switch err {
	case netLayer.ErrClosedByClient:
		return serve.NewTaskError(serve.KindUpstreamAppError, "detour device closed north stream", nil)
	}
	if ce, ok := err.(*netLayer.CopyError); ok && ce.Side == netLayer.SideClient {
		return serve.NewTaskError(serve.KindUpstreamAppError, "detour stream failed", ce.Err)
	}
	return serve.FromRelayError(err)
}
