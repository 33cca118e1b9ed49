package smtp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/serve"
)

type GreetingErrorKind int

const (
	GreetingTimeout GreetingErrorKind = iota
	GreetingInvalidResponseLine
	GreetingTooLongResponseLine
	GreetingUnexpectedReplyCode
	GreetingNoHostField
	GreetingUnsupportedHostFormat
	GreetingClientWriteFailed
	GreetingUpstreamReadFailed
	GreetingUpstreamClosed
)

type GreetingError struct {
	Kind GreetingErrorKind
	Code ReplyCode //仅 GreetingUnexpectedReplyCode
	Err  error
}

func (e *GreetingError) Error() string {
	switch e.Kind {
	case GreetingTimeout:
		return "greeting timeout"
	case GreetingInvalidResponseLine:
		return "invalid greeting response line: " + e.Err.Error()
	case GreetingTooLongResponseLine:
		return "response line too long"
	case GreetingUnexpectedReplyCode:
		return fmt.Sprintf("unexpected reply code %s in greeting stage", e.Code)
	case GreetingNoHostField:
		return "no host field in greeting message"
	case GreetingUnsupportedHostFormat:
		return "unsupported host format"
	case GreetingClientWriteFailed:
		return "write to client failed: " + e.Err.Error()
	case GreetingUpstreamReadFailed:
		return "read from upstream failed: " + e.Err.Error()
	case GreetingUpstreamClosed:
		return "upstream closed connection"
	}
	return "unknown greeting error"
}

func (e *GreetingError) Unwrap() error {
	return e.Err
}

// ToTaskError 把 greeting 错误 转换为 服务层的 task 错误
func (e *GreetingError) ToTaskError() *serve.TaskError {
	switch e.Kind {
	case GreetingTimeout:
		return serve.NewTaskError(serve.KindUpstreamAppTimeout, "smtp greeting timeout", nil)
	case GreetingInvalidResponseLine:
		return serve.NewTaskError(serve.KindUpstreamAppError, "invalid greeting response line", e.Err)
	case GreetingTooLongResponseLine:
		return serve.NewTaskError(serve.KindUpstreamAppError, "response line too long", nil)
	case GreetingUnexpectedReplyCode:
		return serve.NewTaskError(serve.KindUpstreamAppError, fmt.Sprintf("unknown reply code %s in greeting stage", e.Code), nil)
	case GreetingNoHostField:
		return serve.NewTaskError(serve.KindUpstreamAppError, "no host found in smtp greeting message", nil)
	case GreetingUnsupportedHostFormat:
		return serve.NewTaskError(serve.KindUpstreamAppError, "unsupported host in smtp greeting message", nil)
	case GreetingClientWriteFailed:
		return serve.NewTaskError(serve.KindClientTcpWriteFailed, "", e.Err)
	case GreetingUpstreamReadFailed:
		return serve.NewTaskError(serve.KindUpstreamReadFailed, "", e.Err)
	case GreetingUpstreamClosed:
		return serve.ErrClosedByUpstream
	}
	return serve.NewTaskError(serve.KindInternalAdapterError, "", e)
}

// 给客户端看的原因, 空字符串表示不应伪造响应
func (e *GreetingError) clientReason() string {
	switch e.Kind {
	case GreetingTimeout:
		return "read timeout"
	case GreetingInvalidResponseLine:
		return "invalid response"
	case GreetingUnexpectedReplyCode:
		return "unexpected reply code"
	case GreetingUpstreamReadFailed:
		return "read failed"
	case GreetingUpstreamClosed:
		return "connection closed"
	}
	return ""
}

const clientWriteBufferSize = 1024

// Greeting 转发 服务端的 greeting 响应 给客户端, 同时从中解析出 服务端的 host.
//
// Relay 的读循环在单独的 goroutine 中运行, 超时后该 goroutine 被放弃,
// 它在上游连接被关闭后退出, 且不会再写入客户端.
type Greeting struct {
	rsp ResponseParser

	mu                sync.Mutex
	host              Host
	totalToWrite      int
	clientWriteFailed bool
	abandoned         bool
}

func NewGreeting() *Greeting {
	return &Greeting{}
}

func (g *Greeting) Host() Host {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.host
}

// TotalToWrite 返回 已经转发给客户端 (含缓存中未flush) 的字节数
func (g *Greeting) TotalToWrite() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totalToWrite
}

// Code 仅在 Relay 成功后有意义
func (g *Greeting) Code() ReplyCode {
	return g.rsp.Code()
}

// Relay 在 timeout 内 完成整个 greeting, 超时时间 不因 收到新行 而重置.
// 成功时返回 上游的 reader, 它可能缓存了 greeting 之后的数据, 调用者应继续使用它 而不是原来的 upsR.
func (g *Greeting) Relay(upsR io.Reader, cltW io.Writer, timeout time.Duration) (io.Reader, error) {
	br := bufio.NewReaderSize(upsR, MaxLineSize)
	bw := bufio.NewWriterSize(cltW, clientWriteBufferSize)

	done := make(chan error, 1)
	go func() {
		done <- g.doRelay(br, bw)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		g.mu.Lock()
		defer g.mu.Unlock()
		if err != nil && g.clientWriteFailed {
			return nil, err
		}
		bw.Flush()
		if err != nil {
			return nil, err
		}
		return br, nil

	case <-timer.C:
		g.mu.Lock()
		defer g.mu.Unlock()
		g.abandoned = true
		if !g.clientWriteFailed {
			bw.Flush()
		}
		return nil, &GreetingError{Kind: GreetingTimeout}
	}
}

func (g *Greeting) doRelay(br *bufio.Reader, bw *bufio.Writer) error {
	for {
		line, err := br.ReadSlice('\n')
		if err != nil {
			switch err {
			case bufio.ErrBufferFull:
				return &GreetingError{Kind: GreetingTooLongResponseLine}
			case io.EOF:
				return &GreetingError{Kind: GreetingUpstreamClosed}
			}
			return &GreetingError{Kind: GreetingUpstreamReadFailed, Err: err}
		}

		msg, err := g.rsp.FeedLine(line)
		if err != nil {
			return &GreetingError{Kind: GreetingInvalidResponseLine, Err: err}
		}

		g.mu.Lock()
		if g.abandoned {
			g.mu.Unlock()
			return &GreetingError{Kind: GreetingTimeout}
		}
		g.totalToWrite += len(line)
		_, err = bw.Write(line)
		if err != nil {
			g.clientWriteFailed = true
		}
		g.mu.Unlock()
		if err != nil {
			return &GreetingError{Kind: GreetingClientWriteFailed, Err: err}
		}

		switch code := g.rsp.Code(); code {
		case ServiceReady:
			if err := g.setHost(msg); err != nil {
				return err
			}
			if g.rsp.Finished() {
				return nil
			}
		case NoService:
			if g.rsp.Finished() {
				return nil
			}
		default:
			return &GreetingError{Kind: GreetingUnexpectedReplyCode, Code: code}
		}
	}
}

// setHost 只在第一个 220 行 设置 host
func (g *Greeting) setHost(msg []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.host.IsEmpty() {
		return nil
	}
	if i := bytes.IndexByte(msg, ' '); i >= 0 {
		msg = msg[:i]
	}
	if len(msg) == 0 {
		return &GreetingError{Kind: GreetingNoHostField}
	}
	h, ok := parseHost(string(msg))
	if !ok {
		return &GreetingError{Kind: GreetingUnsupportedHostFormat}
	}
	g.host = h
	return nil
}

// ReplyNoService 在 Relay 失败后 向客户端 发送 421 响应, 然后半关闭客户端.
// 已有 greeting 数据 发往客户端 时, 或 错误不适合告知客户端时, 什么也不做.
func (g *Greeting) ReplyNoService(err error, cltW io.Writer, notes *serve.ServerTaskNotes) {
	if g.TotalToWrite() > 0 {
		return
	}
	ge, ok := err.(*GreetingError)
	if !ok {
		return
	}
	reason := ge.clientReason()
	if reason == "" {
		return
	}
	rsp := fmt.Sprintf("421 %s Service not available - %s\r\n", serverIPStr(notes), reason)
	netLayer.WriteFlushShutdown(cltW, []byte(rsp))
}

func serverIPStr(notes *serve.ServerTaskNotes) string {
	if notes != nil {
		if ip := notes.ServerIP(); ip != nil {
			return ip.String()
		}
	}
	return "0.0.0.0"
}
