package ws

import (
	"net/http"

	"github.com/e1732a364fed/vs_inspect/utils"
	"google.golang.org/protobuf/encoding/protowire"
)

// Context 记录一次 websocket 握手的信息, 在 detour 时作为负载发往 检测设备.
type Context struct {
	Upstream     string //host:port
	ResourceName string
	Origin       string
	SubProtocol  string //上游选定的子协议
	Version      string
}

const (
	ctxFieldUpstream protowire.Number = iota + 1
	ctxFieldResourceName
	ctxFieldOrigin
	ctxFieldSubProtocol
	ctxFieldVersion
)

func NewContext(upstream string, r *http.Request) *Context {
	return &Context{
		Upstream:     upstream,
		ResourceName: r.URL.RequestURI(),
		Origin:       r.Header.Get("Origin"),
		Version:      r.Header.Get("Sec-WebSocket-Version"),
	}
}

// SetResponse 记录上游在 101 响应中选定的子协议
func (c *Context) SetResponse(resp *http.Response) {
	c.SubProtocol = resp.Header.Get("Sec-WebSocket-Protocol")
}

// Serialize 以 protobuf wire 格式编码, 空字段不写入
func (c *Context) Serialize() []byte {
	var b []byte
	appendStr := func(num protowire.Number, s string) {
		if s == "" {
			return
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	appendStr(ctxFieldUpstream, c.Upstream)
	appendStr(ctxFieldResourceName, c.ResourceName)
	appendStr(ctxFieldOrigin, c.Origin)
	appendStr(ctxFieldSubProtocol, c.SubProtocol)
	appendStr(ctxFieldVersion, c.Version)
	return b
}

// ParseContext 解析 Serialize 的结果. 未知字段会被跳过.
func ParseContext(b []byte) (*Context, error) {
	c := &Context{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, utils.ErrInErr{ErrDesc: "ws.ParseContext, bad tag", ErrDetail: protowire.ParseError(n)}
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, utils.ErrInErr{ErrDesc: "ws.ParseContext, bad field", ErrDetail: protowire.ParseError(n), Data: num}
			}
			b = b[n:]
			continue
		}

		s, n := protowire.ConsumeString(b)
		if n < 0 {
			return nil, utils.ErrInErr{ErrDesc: "ws.ParseContext, bad string", ErrDetail: protowire.ParseError(n), Data: num}
		}
		b = b[n:]

		switch num {
		case ctxFieldUpstream:
			c.Upstream = s
		case ctxFieldResourceName:
			c.ResourceName = s
		case ctxFieldOrigin:
			c.Origin = s
		case ctxFieldSubProtocol:
			c.SubProtocol = s
		case ctxFieldVersion:
			c.Version = s
		}
	}
	return c, nil
}
