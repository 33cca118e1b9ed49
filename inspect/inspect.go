/*
Package inspect 为已识别出协议的连接 选择处理方式: 拦截, 透传, 阻断 或 转交检测设备 (detour).

每种协议在自己的子包中实现 InterceptObject, 见 inspect/websocket 与 inspect/smtp.
一个连接的 StreamIO 只会被一个处理分支使用一次; InterceptObject 不保存 StreamIO,
Intercept 方法按值接收它, 然后原样交给唯一一个分支函数.
*/
package inspect

import (
	"io"
	"strings"

	"github.com/e1732a364fed/vs_inspect/audit"
	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/serve"
	"github.com/e1732a364fed/vs_inspect/utils"
	"go.uber.org/zap"
)

type Policy int

const (
	PolicyIntercept Policy = iota
	PolicyBypass
	PolicyBlock
	PolicyDetour
)

func (p Policy) String() string {
	switch p {
	case PolicyIntercept:
		return "intercept"
	case PolicyBypass:
		return "bypass"
	case PolicyBlock:
		return "block"
	case PolicyDetour:
		return "detour"
	}
	return "unknown"
}

// InvalidPolicyError 用于 策略值不在已知范围内 的情况
func InvalidPolicyError(p Policy) *serve.TaskError {
	return serve.NewTaskError(serve.KindInternalAdapterError, "invalid inspection policy", utils.ErrInErr{ErrDesc: "unknown policy", ErrDetail: utils.ErrWrongParameter, Data: int(p)})
}

// UnmarshalText 使 Policy 可以直接写在 toml 配置里
func (p *Policy) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "intercept", "":
		*p = PolicyIntercept
	case "bypass":
		*p = PolicyBypass
	case "block":
		*p = PolicyBlock
	case "detour":
		*p = PolicyDetour
	default:
		return utils.ErrInErr{ErrDesc: "unknown inspection policy", ErrDetail: utils.ErrWrongParameter, Data: string(text)}
	}
	return nil
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// 传给 detour 设备的协议标签
const (
	ProtocolWebsocket = "websocket"
	ProtocolSmtp      = "smtp"
)

// StreamIO 是一个连接的四个读写端.
type StreamIO struct {
	CltR io.Reader
	CltW io.Writer
	UpsR io.Reader
	UpsW io.Writer
}

// StreamInspectContext 是 一个 task 在拦截阶段的上下文, 除 TaskNotes 外都由同一 server 的所有 task 共享.
type StreamInspectContext struct {
	ServerConfig serve.ServerConfig
	QuitPolicy   *serve.QuitPolicy
	TaskNotes    *serve.ServerTaskNotes
	AuditHandle  *audit.Handle //可为nil

	// InspectionDepth 为嵌套拦截的层数, 最外层为 0
	InspectionDepth int

	WebsocketPolicy Policy
	SmtpPolicy      Policy

	// 客户端ip 命中 BlockList 时, 所有协议都按 Block 处理
	BlockList *netLayer.CIDRMatcher

	logger *zap.Logger
}

func NewStreamInspectContext(sc serve.ServerConfig, quit *serve.QuitPolicy, notes *serve.ServerTaskNotes, ah *audit.Handle) *StreamInspectContext {
	return &StreamInspectContext{
		ServerConfig: sc,
		QuitPolicy:   quit,
		TaskNotes:    notes,
		AuditHandle:  ah,
	}
}

func (c *StreamInspectContext) User() *serve.User {
	if c.TaskNotes == nil {
		return nil
	}
	return c.TaskNotes.User
}

func (c *StreamInspectContext) ServerTaskID() string {
	if c.TaskNotes == nil {
		return ""
	}
	return c.TaskNotes.IDStr()
}

func (c *StreamInspectContext) InterceptLogger() *zap.Logger {
	if c.logger == nil {
		c.logger = utils.InterceptLogger()
	}
	return c.logger
}

// SetInterceptLogger 主要用于测试
func (c *StreamInspectContext) SetInterceptLogger(l *zap.Logger) {
	c.logger = l
}

func (c *StreamInspectContext) clientBlocked() bool {
	return c.TaskNotes != nil && c.BlockList.MatchAddr(c.TaskNotes.ClientAddr)
}

func (c *StreamInspectContext) WebsocketInspectPolicy() Policy {
	if c.clientBlocked() {
		return PolicyBlock
	}
	return c.WebsocketPolicy
}

func (c *StreamInspectContext) SmtpInspectPolicy() Policy {
	if c.clientBlocked() {
		return PolicyBlock
	}
	return c.SmtpPolicy
}

// DetourClient 未配置检测设备时返回 nil
func (c *StreamInspectContext) DetourClient() audit.StreamDetourClient {
	return c.AuditHandle.StreamDetourClient()
}

// DetourContext 为 detour 分支 构造上下文
func (c *StreamInspectContext) DetourContext(upstream netLayer.Addr, protocol string) *audit.StreamDetourContext {
	return audit.NewStreamDetourContext(c.ServerConfig, c.QuitPolicy, c.TaskNotes, upstream, protocol)
}

// TransitTransparent 在 客户端 与 上游 间 原样双向转发, 直到 任意一个方向结束.
// 用户设置了限速时 使用用户的限速, 否则使用 server 的限速.
func TransitTransparent(sio StreamIO, sc serve.ServerConfig, quit *serve.QuitPolicy, user *serve.User) error {
	var opts netLayer.RelayOptions
	if sc != nil {
		opts.BufferSize = sc.TCPCopyBufferSize()
		opts.RateLimit = sc.TCPRateLimit()
	}
	if user != nil && user.TCPRateLimit > 0 {
		opts.RateLimit = user.TCPRateLimit
	}
	if quit != nil {
		if quit.ForceQuitting() {
			return serve.ErrCanceledAsServerQuit
		}
		opts.Quit = quit.Done()
	}
	return serve.FromRelayError(netLayer.RelayStreams(sio.CltR, sio.CltW, sio.UpsR, sio.UpsW, opts))
}
