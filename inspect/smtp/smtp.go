/*
Package smtp 处理 smtp 连接. 拦截时先转发并校验服务端的 greeting, 之后原样转发.

smtp 是服务端先发送数据的协议, greeting 形如

	220-mail.example.com ESMTP Postfix
	220 mail.example.com ready

第一行 220 之后, 第一个空格之前的部分 即为服务端的 host.
*/
package smtp

import (
	"fmt"
	"time"

	"github.com/e1732a364fed/vs_inspect/inspect"
	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/serve"
	"github.com/e1732a364fed/vs_inspect/utils"
	"go.uber.org/zap"
)

const BlockedDesc = "smtp blocked by inspection policy"

type InterceptObject struct {
	ctx      *inspect.StreamInspectContext
	upstream netLayer.Addr
}

func NewInterceptObject(ctx *inspect.StreamInspectContext, upstream netLayer.Addr) *InterceptObject {
	return &InterceptObject{ctx: ctx, upstream: upstream}
}

func (o *InterceptObject) Intercept(sio inspect.StreamIO) error {
	var err error
	switch o.ctx.SmtpInspectPolicy() {
	case inspect.PolicyDetour:
		err = o.doDetour(sio)
	case inspect.PolicyBlock:
		err = o.doBlock(sio)
	case inspect.PolicyBypass:
		err = o.doBypass(sio)
	case inspect.PolicyIntercept:
		err = o.doIntercept(sio)
	default:
		err = inspect.InvalidPolicyError(o.ctx.SmtpInspectPolicy())
	}

	msg := "finished"
	if err != nil {
		msg = err.Error()
	}
	o.ctx.InterceptLogger().Info(msg,
		zap.String("intercept_type", "Smtp"),
		zap.String("task_id", o.ctx.ServerTaskID()),
		zap.Int("depth", o.ctx.InspectionDepth),
		zap.String("upstream", o.upstream.String()),
	)
	return err
}

func (o *InterceptObject) doBypass(sio inspect.StreamIO) error {
	return inspect.TransitTransparent(sio, o.ctx.ServerConfig, o.ctx.QuitPolicy, o.ctx.User())
}

func (o *InterceptObject) doDetour(sio inspect.StreamIO) error {
	client := o.ctx.DetourClient()
	if client == nil {
		return o.doBypass(sio)
	}
	return client.DetourRelay(sio.CltR, sio.CltW, sio.UpsR, sio.UpsW, o.ctx.DetourContext(o.upstream, inspect.ProtocolSmtp))
}

func (o *InterceptObject) doBlock(sio inspect.StreamIO) error {
	rsp := fmt.Sprintf("554 %s No SMTP service here\r\n", serverIPStr(o.ctx.TaskNotes))
	netLayer.WriteFlushShutdown(sio.CltW, []byte(rsp))
	return serve.NewTaskError(serve.KindBlocked, BlockedDesc, nil)
}

func (o *InterceptObject) greetingTimeout() time.Duration {
	if o.ctx.ServerConfig != nil && o.ctx.ServerConfig.GreetingTimeout() > 0 {
		return o.ctx.ServerConfig.GreetingTimeout()
	}
	return serve.DefaultGreetingTimeout
}

func (o *InterceptObject) doIntercept(sio inspect.StreamIO) error {
	g := NewGreeting()
	upsR, err := g.Relay(sio.UpsR, sio.CltW, o.greetingTimeout())
	if err != nil {
		g.ReplyNoService(err, sio.CltW, o.ctx.TaskNotes)
		return err.(*GreetingError).ToTaskError()
	}

	if ce := utils.CanLogDebug("smtp greeting finished"); ce != nil {
		ce.Write(
			zap.String("task_id", o.ctx.ServerTaskID()),
			zap.Stringer("code", g.Code()),
			zap.Stringer("host", g.Host()),
		)
	}

	sio.UpsR = upsR
	return inspect.TransitTransparent(sio, o.ctx.ServerConfig, o.ctx.QuitPolicy, o.ctx.User())
}
