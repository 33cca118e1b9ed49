/*
Package ws 提供 websocket 拦截 所需的 握手检测, 上下文编码 与 关闭帧.

# Reference

websocket rfc: https://datatracker.ietf.org/doc/html/rfc6455/

Below is a real websocket handshake progress:

Request

	GET /chat HTTP/1.1
	    Host: server.example.com
	    Upgrade: websocket
	    Connection: Upgrade
	    Sec-WebSocket-Key: x3JJHMbDL1EzLkh9GBhXDw==
	    Sec-WebSocket-Protocol: chat, superchat
	    Sec-WebSocket-Version: 13
	    Origin: http://example.com

Response

	HTTP/1.1 101 Switching Protocols
	    Upgrade: websocket
	    Connection: Upgrade
	    Sec-WebSocket-Accept: HSmrc0sMlYUkAGmm5OPpG2HaGWk=
	    Sec-WebSocket-Protocol: chat

We use gobwas/ws, 它只支持http1.1.
*/
package ws

import (
	"github.com/gobwas/ws"
)

// 不带原因的关闭帧, 负载只有2字节的状态码
const (
	ServerCloseFrameLen = 2 + 2
	ClientCloseFrameLen = 2 + 4 + 2
)

// ServerCloseFrame 返回 服务端发往客户端的 关闭帧, 不带掩码.
func ServerCloseFrame(code ws.StatusCode) []byte {
	f := ws.NewCloseFrame(ws.NewCloseFrameBody(code, ""))
	bs, err := ws.CompileFrame(f)
	if err != nil {
		panic(err)
	}
	return bs
}

// ClientCloseFrame 返回 客户端发往服务端的 关闭帧, 带随机掩码.
func ClientCloseFrame(code ws.StatusCode) []byte {
	f := ws.NewCloseFrame(ws.NewCloseFrameBody(code, ""))
	f = ws.MaskFrameInPlace(f)
	bs, err := ws.CompileFrame(f)
	if err != nil {
		panic(err)
	}
	return bs
}
