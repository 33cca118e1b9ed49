package smtp

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/e1732a364fed/vs_inspect/inspect"
	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/serve"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestResponseParser(t *testing.T) {
	var p ResponseParser
	msg, err := p.FeedLine([]byte("250-mail.example.com\r\n"))
	if err != nil || string(msg) != "mail.example.com" || p.Finished() {
		t.FailNow()
	}
	msg, err = p.FeedLine([]byte("250 SIZE 10240000\r\n"))
	if err != nil || string(msg) != "SIZE 10240000" || !p.Finished() || p.Code() != 250 {
		t.FailNow()
	}

	cases := []struct {
		lines []string
		err   error
	}{
		{[]string{"220 ready"}, ErrNoTrailingSequence},
		{[]string{"22\r\n"}, ErrTooShort},
		{[]string{"2a0 ready\r\n"}, ErrInvalidReplyCode},
		{[]string{"620 ready\r\n"}, ErrInvalidReplyCode},
		{[]string{"220_ready\r\n"}, ErrInvalidDelimiter},
		{[]string{"220-a\r\n", "250 b\r\n"}, ErrReplyCodeChanged},
	}
	for _, c := range cases {
		var p ResponseParser
		var err error
		for _, l := range c.lines {
			if _, err = p.FeedLine([]byte(l)); err != nil {
				break
			}
		}
		if err != c.err {
			t.Log(c.lines, err)
			t.FailNow()
		}
	}

	p = ResponseParser{}
	msg, err = p.FeedLine([]byte("220\r\n"))
	if err != nil || len(msg) != 0 || !p.Finished() {
		t.FailNow()
	}
}

func TestParseHost(t *testing.T) {
	for _, s := range []string{"mail.example.com", "localhost", "[192.0.2.1]", "[IPv6:2001:db8::1]", "[ipv6:::1]"} {
		if _, ok := parseHost(s); !ok {
			t.Log(s)
			t.FailNow()
		}
	}
	for _, s := range []string{"[mail.example.com]", "[IPv6:192.0.2.1]", "[300.1.1.1]", "bad_host!", "[]"} {
		if _, ok := parseHost(s); ok {
			t.Log(s)
			t.FailNow()
		}
	}
	h, _ := parseHost("[IPv6:2001:db8::1]")
	if h.String() != "2001:db8::1" {
		t.FailNow()
	}
}

func TestGreetingHost(t *testing.T) {
	g := NewGreeting()
	var clt bytes.Buffer
	upsR, err := g.Relay(strings.NewReader("220 mail.example.com ESMTP ready\r\nEHLO-next"), &clt, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if g.Host().Domain != "mail.example.com" || g.Code() != ServiceReady {
		t.Log(g.Host())
		t.FailNow()
	}
	if clt.String() != "220 mail.example.com ESMTP ready\r\n" || g.TotalToWrite() != clt.Len() {
		t.Log(clt.String())
		t.FailNow()
	}

	rest, _ := io.ReadAll(upsR)
	if string(rest) != "EHLO-next" {
		t.Log(string(rest))
		t.FailNow()
	}
}

func TestGreetingMultiLine(t *testing.T) {
	g := NewGreeting()
	var clt bytes.Buffer
	banner := "220-[192.0.2.25] first\r\n220-second.example.com\r\n220 done\r\n"
	if _, err := g.Relay(strings.NewReader(banner), &clt, time.Second); err != nil {
		t.Fatal(err)
	}
	if g.Host().String() != "192.0.2.25" || clt.String() != banner {
		t.FailNow()
	}
}

func TestGreetingNoService(t *testing.T) {
	g := NewGreeting()
	var clt bytes.Buffer
	if _, err := g.Relay(strings.NewReader("554 no service\r\n"), &clt, time.Second); err != nil {
		t.Fatal(err)
	}
	if g.Code() != NoService || !g.Host().IsEmpty() {
		t.FailNow()
	}
}

func greetingErrKind(t *testing.T, input string) (*Greeting, *GreetingError) {
	g := NewGreeting()
	_, err := g.Relay(strings.NewReader(input), io.Discard, time.Second)
	var ge *GreetingError
	if !errors.As(err, &ge) {
		t.Log(err)
		t.FailNow()
	}
	return g, ge
}

func TestGreetingErrors(t *testing.T) {
	cases := map[string]GreetingErrorKind{
		"220 \r\n":                              GreetingNoHostField,
		"220 bad_host! hello\r\n":               GreetingUnsupportedHostFormat,
		"250 mail.example.com\r\n":              GreetingUnexpectedReplyCode,
		"220-mail.example.com\r\n":              GreetingUpstreamClosed,
		"220 mail.example.com\n":                GreetingInvalidResponseLine,
		"220 " + strings.Repeat("a", 4096):      GreetingTooLongResponseLine,
		"220-mail.example.com\r\n221 bye\r\n":   GreetingInvalidResponseLine,
		"220-mail.example.com\r\n554 close\r\n": GreetingInvalidResponseLine,
	}
	for input, kind := range cases {
		_, ge := greetingErrKind(t, input)
		if ge.Kind != kind {
			t.Log(input, ge)
			t.FailNow()
		}
	}

	_, ge := greetingErrKind(t, "250 mail.example.com\r\n")
	if ge.Code != 250 {
		t.FailNow()
	}
	if te := ge.ToTaskError(); te.Kind != serve.KindUpstreamAppError {
		t.FailNow()
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestGreetingClientWriteFailed(t *testing.T) {
	g := NewGreeting()
	banner := "220-mail.example.com " + strings.Repeat("a", 1100) + "\r\n220 done\r\n"
	_, err := g.Relay(strings.NewReader(banner), failWriter{}, time.Second)
	var ge *GreetingError
	if !errors.As(err, &ge) || ge.Kind != GreetingClientWriteFailed {
		t.Log(err)
		t.FailNow()
	}
	if ge.ToTaskError().Kind != serve.KindClientTcpWriteFailed {
		t.FailNow()
	}
}

func TestGreetingTimeout(t *testing.T) {
	upsLocal, upsRemote := net.Pipe()
	defer upsLocal.Close()
	defer upsRemote.Close()

	go func() {
		upsRemote.Write([]byte("220-mail.example.com\r\n"))
		// 每行都很快, 但总时间超过了限制
		for i := 0; i < 10; i++ {
			time.Sleep(30 * time.Millisecond)
			if _, err := upsRemote.Write([]byte("220-more\r\n")); err != nil {
				return
			}
		}
	}()

	g := NewGreeting()
	var clt bytes.Buffer
	start := time.Now()
	_, err := g.Relay(upsLocal, &clt, 100*time.Millisecond)
	var ge *GreetingError
	if !errors.As(err, &ge) || ge.Kind != GreetingTimeout {
		t.Log(err)
		t.FailNow()
	}
	if time.Since(start) > 500*time.Millisecond {
		t.FailNow()
	}

	// 超时前收到的行已经被 flush
	n := g.TotalToWrite()
	if n == 0 || clt.Len() != n || !strings.HasPrefix(clt.String(), "220-mail.example.com\r\n") {
		t.Log(clt.String())
		t.FailNow()
	}
	if ge.ToTaskError().Kind != serve.KindUpstreamAppTimeout {
		t.FailNow()
	}
}

type shutdownBuffer struct {
	bytes.Buffer
	shut bool
}

func (b *shutdownBuffer) CloseWrite() error {
	b.shut = true
	return nil
}

func TestReplyNoService(t *testing.T) {
	notes := serve.NewServerTaskNotes(nil, &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 25}, nil)

	g, ge := greetingErrKind(t, "")
	if ge.Kind != GreetingUpstreamClosed {
		t.FailNow()
	}
	var clt shutdownBuffer
	g.ReplyNoService(ge, &clt, notes)
	if clt.String() != "421 192.0.2.1 Service not available - connection closed\r\n" || !clt.shut {
		t.Log(clt.String())
		t.FailNow()
	}

	// 已经有数据发给客户端后, 不再伪造响应
	g, ge = greetingErrKind(t, "220-mail.example.com\r\n250 oops\r\n")
	clt = shutdownBuffer{}
	g.ReplyNoService(ge, &clt, notes)
	if clt.Len() != 0 || clt.shut {
		t.FailNow()
	}

	// 没有合适的原因时 也不发送
	g, ge = greetingErrKind(t, "220 "+strings.Repeat("a", 4096))
	clt = shutdownBuffer{}
	g.ReplyNoService(ge, &clt, notes)
	if clt.Len() != 0 {
		t.FailNow()
	}
}

func newTestContext(policy inspect.Policy) (*inspect.StreamInspectContext, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	notes := serve.NewServerTaskNotes(&net.TCPAddr{IP: net.IPv4(198, 51, 100, 7), Port: 40000}, &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 25}, nil)
	ctx := inspect.NewStreamInspectContext(nil, serve.NewQuitPolicy(), notes, nil)
	ctx.SmtpPolicy = policy
	ctx.SetInterceptLogger(zap.New(core))
	return ctx, logs
}

func TestInterceptBlock(t *testing.T) {
	ctx, logs := newTestContext(inspect.PolicyBlock)
	upstream, _ := netLayer.NewAddr("mx.example.com:25")

	var clt shutdownBuffer
	err := NewInterceptObject(ctx, upstream).Intercept(inspect.StreamIO{CltW: &clt})
	if !errors.Is(err, serve.ErrBlocked) {
		t.Log(err)
		t.FailNow()
	}
	if clt.String() != "554 192.0.2.1 No SMTP service here\r\n" || !clt.shut {
		t.Log(clt.String())
		t.FailNow()
	}

	entries := logs.All()
	if len(entries) != 1 || entries[0].Message != BlockedDesc || entries[0].ContextMap()["intercept_type"] != "Smtp" {
		t.Log(entries)
		t.FailNow()
	}
}

func TestInterceptInvalidPolicy(t *testing.T) {
	ctx, _ := newTestContext(inspect.Policy(9))
	var clt shutdownBuffer
	err := NewInterceptObject(ctx, netLayer.Addr{}).Intercept(inspect.StreamIO{
		CltW: &clt,
		UpsR: strings.NewReader("220 mx.example.com ESMTP\r\n"),
	})
	te := serve.AsTaskError(err)
	if te == nil || te.Kind != serve.KindInternalAdapterError || clt.Len() != 0 {
		t.Log(err)
		t.FailNow()
	}
}

func TestInterceptGreetingFailed(t *testing.T) {
	//第一行就无法解析, 还没有任何字节转发给客户端, 伪造 421
	ctx, _ := newTestContext(inspect.PolicyIntercept)
	var clt shutdownBuffer
	err := NewInterceptObject(ctx, netLayer.Addr{}).Intercept(inspect.StreamIO{
		CltW: &clt,
		UpsR: strings.NewReader("5x0 bad\r\n"),
	})
	te := serve.AsTaskError(err)
	if te == nil || te.Kind != serve.KindUpstreamAppError {
		t.Log(err)
		t.FailNow()
	}
	if clt.String() != "421 192.0.2.1 Service not available - invalid response\r\n" || !clt.shut {
		t.Log(clt.String())
		t.FailNow()
	}
}

func TestInterceptGreetingFailedAfterForward(t *testing.T) {
	//行已经转发给客户端, 不再伪造响应
	ctx, _ := newTestContext(inspect.PolicyIntercept)
	var clt shutdownBuffer
	err := NewInterceptObject(ctx, netLayer.Addr{}).Intercept(inspect.StreamIO{
		CltW: &clt,
		UpsR: strings.NewReader("500 what\r\n"),
	})
	te := serve.AsTaskError(err)
	if te == nil || te.Kind != serve.KindUpstreamAppError {
		t.Log(err)
		t.FailNow()
	}
	if clt.String() != "500 what\r\n" || clt.shut {
		t.Log(clt.String())
		t.FailNow()
	}
}

func TestInterceptRelay(t *testing.T) {
	ctx, logs := newTestContext(inspect.PolicyIntercept)

	cltLocal, cltRemote := net.Pipe()
	upsLocal, upsRemote := net.Pipe()
	defer cltLocal.Close()
	defer upsLocal.Close()

	done := make(chan error, 1)
	go func() {
		done <- NewInterceptObject(ctx, netLayer.Addr{}).Intercept(inspect.StreamIO{CltR: cltLocal, CltW: cltLocal, UpsR: upsLocal, UpsW: upsLocal})
	}()

	go upsRemote.Write([]byte("220 mx.example.com ESMTP\r\n"))
	line := make([]byte, len("220 mx.example.com ESMTP\r\n"))
	if _, err := io.ReadFull(cltRemote, line); err != nil || string(line) != "220 mx.example.com ESMTP\r\n" {
		t.Log(string(line), err)
		t.FailNow()
	}

	go cltRemote.Write([]byte("EHLO client\r\n"))
	cmd := make([]byte, len("EHLO client\r\n"))
	if _, err := io.ReadFull(upsRemote, cmd); err != nil || string(cmd) != "EHLO client\r\n" {
		t.Log(string(cmd), err)
		t.FailNow()
	}

	upsRemote.Close()
	select {
	case err := <-done:
		if !errors.Is(err, serve.ErrClosedByUpstream) {
			t.Log(err)
			t.FailNow()
		}
	case <-time.After(2 * time.Second):
		t.FailNow()
	}
	cltRemote.Close()

	if logs.Len() != 1 || logs.All()[0].Message != "closed by upstream" {
		t.FailNow()
	}
}
