// Package websocket 处理 已完成 http1.1 升级握手 的 websocket 连接.
package websocket

import (
	"io"
	"time"

	"github.com/e1732a364fed/vs_inspect/advLayer/ws"
	"github.com/e1732a364fed/vs_inspect/inspect"
	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/serve"
	gobwas "github.com/gobwas/ws"
	"go.uber.org/zap"
)

const BlockedDesc = "websocket blocked by inspection policy"

var (
	serverCloseBytes = ws.ServerCloseFrame(gobwas.StatusGoingAway)
	clientCloseBytes = ws.ClientCloseFrame(gobwas.StatusGoingAway)
)

type H1WebsocketInterceptObject struct {
	ctx       *inspect.StreamInspectContext
	upstream  netLayer.Addr
	wsContext *ws.Context
}

func NewH1WebsocketInterceptObject(ctx *inspect.StreamInspectContext, upstream netLayer.Addr, wsCtx *ws.Context) *H1WebsocketInterceptObject {
	return &H1WebsocketInterceptObject{
		ctx:       ctx,
		upstream:  upstream,
		wsContext: wsCtx,
	}
}

// Intercept 按 websocket 策略 处理 sio, 阻塞直到连接结束. 无论成败都会打印一行日志.
func (o *H1WebsocketInterceptObject) Intercept(sio inspect.StreamIO) error {
	var err error
	switch o.ctx.WebsocketInspectPolicy() {
	case inspect.PolicyDetour:
		err = o.doDetour(sio)
	case inspect.PolicyBlock:
		err = o.doBlock(sio)
	case inspect.PolicyBypass:
		err = o.doBypass(sio)
	case inspect.PolicyIntercept:
		err = o.doIntercept(sio)
	default:
		err = inspect.InvalidPolicyError(o.ctx.WebsocketInspectPolicy())
	}

	msg := "finished"
	if err != nil {
		msg = err.Error()
	}
	o.ctx.InterceptLogger().Info(msg,
		zap.String("intercept_type", "H1Websocket"),
		zap.String("task_id", o.ctx.ServerTaskID()),
		zap.Int("depth", o.ctx.InspectionDepth),
		zap.String("upstream", o.upstream.String()),
	)
	return err
}

func (o *H1WebsocketInterceptObject) doDetour(sio inspect.StreamIO) error {
	client := o.ctx.DetourClient()
	if client == nil {
		return o.doBypass(sio)
	}

	dctx := o.ctx.DetourContext(o.upstream, inspect.ProtocolWebsocket)
	if o.wsContext != nil {
		dctx.SetPayload(o.wsContext.Serialize())
	}
	return client.DetourRelay(sio.CltR, sio.CltW, sio.UpsR, sio.UpsW, dctx)
}

func (o *H1WebsocketInterceptObject) doBypass(sio inspect.StreamIO) error {
	return inspect.TransitTransparent(sio, o.ctx.ServerConfig, o.ctx.QuitPolicy, o.ctx.User())
}

// 目前不解析帧内容, 与 bypass 一致
func (o *H1WebsocketInterceptObject) doIntercept(sio inspect.StreamIO) error {
	return inspect.TransitTransparent(sio, o.ctx.ServerConfig, o.ctx.QuitPolicy, o.ctx.User())
}

// 阻止时 写关闭帧 的超时, 只对支持 SetWriteDeadline 的 writer 有效
var blockWriteTimeout = 5 * time.Second

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

func writeCloseFrame(w io.Writer, frame []byte) {
	if d, ok := w.(writeDeadliner); ok {
		d.SetWriteDeadline(time.Now().Add(blockWriteTimeout))
	}
	netLayer.WriteFlushShutdown(w, frame)
}

// doBlock 向两端各发送一个 1001 关闭帧后返回 Blocked 错误, 写入错误全部忽略.
// 上游一侧在单独的 goroutine 中写入, 返回前等待其结束.
func (o *H1WebsocketInterceptObject) doBlock(sio inspect.StreamIO) error {
	upsW := sio.UpsW
	upsDone := make(chan struct{})
	go func() {
		defer close(upsDone)
		writeCloseFrame(upsW, clientCloseBytes)
	}()

	writeCloseFrame(sio.CltW, serverCloseBytes)
	<-upsDone

	return serve.NewTaskError(serve.KindBlocked, BlockedDesc, nil)
}
