package main

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/e1732a364fed/vs_inspect/advLayer/ws"
	"github.com/e1732a364fed/vs_inspect/audit"
	"github.com/e1732a364fed/vs_inspect/config"
	"github.com/e1732a364fed/vs_inspect/httpLayer"
	"github.com/e1732a364fed/vs_inspect/inspect"
	"github.com/e1732a364fed/vs_inspect/inspect/smtp"
	"github.com/e1732a364fed/vs_inspect/inspect/websocket"
	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/serve"
	"github.com/e1732a364fed/vs_inspect/utils"
	"go.uber.org/zap"
)

const upstreamDialTimeout = 10 * time.Second

// inspectEnv 是所有 server 共享的 只读环境
type inspectEnv struct {
	quit      *serve.QuitPolicy
	audit     *audit.Handle
	blockList *netLayer.CIDRMatcher

	websocketPolicy inspect.Policy
	smtpPolicy      inspect.Policy
	depth           int
}

func (env *inspectEnv) newContext(sc serve.ServerConfig, notes *serve.ServerTaskNotes) *inspect.StreamInspectContext {
	ctx := inspect.NewStreamInspectContext(sc, env.quit, notes, env.audit)
	ctx.WebsocketPolicy = env.websocketPolicy
	ctx.SmtpPolicy = env.smtpPolicy
	ctx.InspectionDepth = env.depth
	ctx.BlockList = env.blockList
	return ctx
}

func startServer(env *inspectEnv, conf *config.Standard, sc *config.ServerConf) (io.Closer, error) {
	var acceptFunc func(net.Conn)

	switch sc.Protocol {
	case config.ProtocolSmtp, config.ProtocolWebsocket:
		upstream, err := sc.UpstreamAddr()
		if err != nil {
			return nil, err
		}
		if sc.Protocol == config.ProtocolSmtp {
			acceptFunc = func(c net.Conn) { env.serveSmtp(sc, upstream, c) }
		} else {
			acceptFunc = func(c net.Conn) { env.serveWebsocket(sc, upstream, c) }
		}

	case config.ProtocolHTTPForward:
		peer := conf.GetPeer(sc.Peer)
		fs := &forwardServer{env: env, sc: sc, peer: peer, shared: peer.SharedConfig()}
		acceptFunc = fs.serve

	case config.ProtocolUDPForward:
		return startUDPForward(env, sc, conf.GetPeer(sc.Peer))

	default:
		return nil, utils.ErrInErr{ErrDesc: "unsupported protocol", ErrDetail: utils.ErrWrongParameter, Data: sc.Protocol}
	}

	l, err := netLayer.ListenAndAccept("tcp", sc.Listen, sc.ProxyProtocol, acceptFunc)
	if err != nil {
		return nil, err
	}
	if ce := utils.CanLogInfo("server started"); ce != nil {
		ce.Write(
			zap.String("name", sc.Name()),
			zap.String("protocol", sc.Protocol),
			zap.String("listen", l.Addr().String()),
		)
	}
	return l, nil
}

// logTaskResult 会话正常结束 只在 debug 级别打印
func logTaskResult(notes *serve.ServerTaskNotes, err error) {
	if err == nil {
		return
	}
	te := serve.AsTaskError(err)
	if te != nil && te.IsSessionClosure() {
		if ce := utils.CanLogDebug("task finished"); ce != nil {
			ce.Write(zap.String("task_id", notes.IDStr()), zap.String("reason", te.Error()))
		}
		return
	}
	if ce := utils.CanLogWarn("task failed"); ce != nil {
		ce.Write(
			zap.String("task_id", notes.IDStr()),
			zap.Any("client", notes.ClientAddr),
			zap.Error(err),
		)
	}
}

func dialUpstream(upstream netLayer.Addr) (net.Conn, error) {
	return net.DialTimeout("tcp", upstream.String(), upstreamDialTimeout)
}

func (env *inspectEnv) serveSmtp(sc *config.ServerConf, upstream netLayer.Addr, c net.Conn) {
	defer c.Close()
	notes := serve.NewServerTaskNotes(c.RemoteAddr(), c.LocalAddr(), nil)

	ups, err := dialUpstream(upstream)
	if err != nil {
		logTaskResult(notes, serve.NewTaskError(serve.KindUpstreamAppError, "dial smtp upstream failed", err))
		return
	}
	defer ups.Close()

	obj := smtp.NewInterceptObject(env.newContext(sc, notes), upstream)
	logTaskResult(notes, obj.Intercept(inspect.StreamIO{CltR: c, CltW: c, UpsR: ups, UpsW: ups}))
}

func writeHTTPError(w io.Writer, code int) {
	resp := &http.Response{
		StatusCode: code,
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{"Connection": {"close"}},
	}
	resp.Write(w)
}

// serveWebsocket 先转发 升级握手, 上游同意升级后 再按策略处理 之后的 websocket 数据.
func (env *inspectEnv) serveWebsocket(sc *config.ServerConf, upstream netLayer.Addr, c net.Conn) {
	defer c.Close()
	notes := serve.NewServerTaskNotes(c.RemoteAddr(), c.LocalAddr(), nil)

	c.SetReadDeadline(time.Now().Add(sc.GreetingTimeout()))
	cltBr := bufio.NewReader(c)
	req, err := http.ReadRequest(cltBr)
	if err != nil {
		logTaskResult(notes, serve.NewTaskError(serve.KindClientTcpReadFailed, "read upgrade request failed", err))
		return
	}
	c.SetReadDeadline(time.Time{})

	if !ws.IsUpgradeRequest(req) {
		writeHTTPError(c, http.StatusBadRequest)
		logTaskResult(notes, serve.NewTaskError(serve.KindInternalAdapterError, "not a websocket upgrade request", nil))
		return
	}

	ups, err := dialUpstream(upstream)
	if err != nil {
		writeHTTPError(c, http.StatusBadGateway)
		logTaskResult(notes, serve.NewTaskError(serve.KindUpstreamAppError, "dial websocket upstream failed", err))
		return
	}
	defer ups.Close()

	req.Host = upstream.String()
	if err = req.Write(ups); err != nil {
		logTaskResult(notes, serve.NewTaskError(serve.KindUpstreamWriteFailed, "", err))
		return
	}

	ups.SetReadDeadline(time.Now().Add(sc.GreetingTimeout()))
	upsBr := bufio.NewReader(ups)
	resp, err := http.ReadResponse(upsBr, req)
	if err != nil {
		logTaskResult(notes, serve.NewTaskError(serve.KindUpstreamReadFailed, "read upgrade response failed", err))
		return
	}
	ups.SetReadDeadline(time.Time{})

	if err = resp.Write(c); err != nil {
		logTaskResult(notes, serve.NewTaskError(serve.KindClientTcpWriteFailed, "", err))
		return
	}
	if !ws.IsUpgradeResponse(resp) {
		logTaskResult(notes, serve.NewTaskError(serve.KindUpstreamAppError, "upstream refused websocket upgrade", nil))
		return
	}

	wsCtx := ws.NewContext(upstream.String(), req)
	wsCtx.SetResponse(resp)

	obj := websocket.NewH1WebsocketInterceptObject(env.newContext(sc, notes), upstream, wsCtx)
	logTaskResult(notes, obj.Intercept(inspect.StreamIO{CltR: cltBr, CltW: c, UpsR: upsBr, UpsW: ups}))
}

// forwardServer 把 客户端的代理请求 通过 peer 转发出去. peer 为 proxy 时使用 absolute-form, 为 origin 时直连源站.
type forwardServer struct {
	env    *inspectEnv
	sc     *config.ServerConf
	peer   *config.PeerConf
	shared *httpLayer.PeerSharedConfig

	stats httpLayer.ForwardTaskRemoteStats
}

func (fs *forwardServer) newWriter(ups net.Conn, target netLayer.Addr) httpLayer.ForwardWriter {
	lw := netLayer.NewLimitedWriter(ups, netLayer.NewRateLimiter(fs.peer.RateLimit), nil)
	if fs.peer.Type == config.PeerTypeOrigin {
		return httpLayer.NewOriginRequestWriter(lw, fs.shared)
	}
	return httpLayer.NewProxyForwardWriter(lw, fs.shared, target)
}

func (fs *forwardServer) serve(c net.Conn) {
	defer c.Close()
	notes := serve.NewServerTaskNotes(c.RemoteAddr(), c.LocalAddr(), nil)

	cltBr := bufio.NewReader(c)
	req, err := http.ReadRequest(cltBr)
	if err != nil {
		logTaskResult(notes, serve.NewTaskError(serve.KindClientTcpReadFailed, "read forward request failed", err))
		return
	}
	pcr, err := httpLayer.NewProxyClientRequest(req)
	if err != nil {
		writeHTTPError(c, http.StatusBadRequest)
		logTaskResult(notes, serve.NewTaskError(serve.KindInternalAdapterError, "", err))
		return
	}
	target, err := netLayer.NewAddrByHostPort(hostPortWithDefault(pcr))
	if err != nil {
		writeHTTPError(c, http.StatusBadRequest)
		logTaskResult(notes, serve.NewTaskError(serve.KindInternalAdapterError, "invalid forward target", err))
		return
	}

	dialAddr := fs.peer.Address
	if fs.peer.Type == config.PeerTypeOrigin {
		dialAddr = target.String()
	}
	ups, err := net.DialTimeout("tcp", dialAddr, upstreamDialTimeout)
	if err != nil {
		writeHTTPError(c, http.StatusBadGateway)
		logTaskResult(notes, serve.NewTaskError(serve.KindUpstreamAppError, "dial forward peer failed", err))
		return
	}
	defer ups.Close()

	fw := fs.newWriter(ups, target)
	fw.PrepareNew(notes, &target)
	fw.UpdateStats(&fs.stats, nil)

	if err = fw.SendRequestHeader(pcr); err != nil {
		if err == httpLayer.ErrConnectionExpired {
			writeHTTPError(c, http.StatusServiceUnavailable)
		}
		logTaskResult(notes, serve.NewTaskError(serve.KindUpstreamWriteFailed, "send request header failed", err))
		return
	}

	// 请求体 及 之后的数据 原样转发
	err = inspect.TransitTransparent(inspect.StreamIO{CltR: cltBr, CltW: c, UpsR: ups, UpsW: fw}, fs.sc, fs.env.quit, nil)
	logTaskResult(notes, err)

	if ce := utils.CanLogDebug("forward task finished"); ce != nil {
		ce.Write(
			zap.String("task_id", notes.IDStr()),
			zap.String("target", target.String()),
			zap.Uint64("peer total written", fs.stats.WriteBytes()),
		)
	}
}

func hostPortWithDefault(pcr *httpLayer.ProxyClientRequest) string {
	if pcr.URI.Port() != "" {
		return pcr.URI.Host
	}
	port := "80"
	if pcr.URI.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(pcr.URI.Hostname(), port)
}
