package ws_test

import (
	"bufio"
	"net/http"
	"strings"
	"testing"

	"github.com/e1732a364fed/vs_inspect/advLayer/ws"
	gobwas "github.com/gobwas/ws"
)

func TestCloseFrames(t *testing.T) {
	s := ws.ServerCloseFrame(gobwas.StatusGoingAway)
	if len(s) != ws.ServerCloseFrameLen {
		t.Log(s)
		t.FailNow()
	}
	// FIN + close opcode, 无掩码, 负载长度2, 状态码 1001
	if s[0] != 0x88 || s[1] != 0x02 || s[2] != 0x03 || s[3] != 0xe9 {
		t.Log(s)
		t.FailNow()
	}

	c := ws.ClientCloseFrame(gobwas.StatusGoingAway)
	if len(c) != ws.ClientCloseFrameLen {
		t.Log(c)
		t.FailNow()
	}
	if c[0] != 0x88 || c[1] != 0x82 {
		t.Log(c)
		t.FailNow()
	}
	mask := c[2:6]
	if c[6]^mask[0] != 0x03 || c[7]^mask[1] != 0xe9 {
		t.Log(c)
		t.FailNow()
	}
}

const rawUpgrade = "GET /chat?room=1 HTTP/1.1\r\n" +
	"Host: server.example.com\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: keep-alive, Upgrade\r\n" +
	"Sec-WebSocket-Key: x3JJHMbDL1EzLkh9GBhXDw==\r\n" +
	"Sec-WebSocket-Protocol: chat, superchat\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"Origin: http://example.com\r\n" +
	"\r\n"

const rawUpgradeResp = "HTTP/1.1 101 Switching Protocols\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Accept: HSmrc0sMlYUkAGmm5OPpG2HaGWk=\r\n" +
	"Sec-WebSocket-Protocol: chat\r\n" +
	"\r\n"

func TestUpgradeAndContext(t *testing.T) {
	r, err := http.ReadRequest(bufio.NewReader(strings.NewReader(rawUpgrade)))
	if err != nil {
		t.Fatal(err)
	}
	if !ws.IsUpgradeRequest(r) {
		t.FailNow()
	}
	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(rawUpgradeResp)), r)
	if err != nil {
		t.Fatal(err)
	}
	if !ws.IsUpgradeResponse(resp) {
		t.FailNow()
	}

	ctx := ws.NewContext("server.example.com:80", r)
	ctx.SetResponse(resp)

	got, err := ws.ParseContext(ctx.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if *got != *ctx {
		t.Log(got, ctx)
		t.FailNow()
	}
	if got.ResourceName != "/chat?room=1" || got.SubProtocol != "chat" || got.Version != "13" {
		t.Log(got)
		t.FailNow()
	}

	r.Header.Set("Connection", "keep-alive")
	if ws.IsUpgradeRequest(r) {
		t.FailNow()
	}
}
