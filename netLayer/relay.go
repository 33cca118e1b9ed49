package netLayer

import (
	"errors"
	"io"

	"github.com/e1732a364fed/vs_inspect/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type RelaySide int

const (
	SideClient RelaySide = iota
	SideUpstream
)

func (s RelaySide) String() string {
	if s == SideClient {
		return "client"
	}
	return "upstream"
}

var (
	ErrClosedByClient   = errors.New("closed by client")
	ErrClosedByUpstream = errors.New("closed by upstream")
	ErrRelayQuit        = errors.New("relay canceled by quit signal")
)

// CopyError 记录了是 哪一端 的 读 或 写 失败.
type CopyError struct {
	Side    RelaySide
	IsWrite bool
	Err     error
}

func (e *CopyError) Error() string {
	op := "read"
	if e.IsWrite {
		op = "write"
	}
	return e.Side.String() + " " + op + " failed: " + e.Err.Error()
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

type RelayOptions struct {
	BufferSize int

	// 每个方向 每秒字节数, 0 为不限速
	RateLimit int

	Quit <-chan struct{} //可为nil

	Target string //仅用于日志
}

type relayResult struct {
	fromClient bool
	n          int64
	err        *CopyError
}

// RelayStreams 在 client 与 upstream 之间双向拷贝数据, 阻塞.
//
// 第一个结束的方向决定返回值: 客户端EOF 返回 ErrClosedByClient, 上游EOF 返回 ErrClosedByUpstream,
// 读写错误返回 *CopyError. 结束的方向的写端会被半关闭.
// 另一个方向的 goroutine 在调用者关闭连接后退出.
func RelayStreams(cltR io.Reader, cltW io.Writer, upsR io.Reader, upsW io.Writer, opts RelayOptions) error {
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = utils.MaxBufLen
	}

	results := make(chan relayResult, 2)

	go func() {
		n, err := copyStream(upsW, cltR, make([]byte, bufSize), NewRateLimiter(opts.RateLimit), SideClient, SideUpstream)
		results <- relayResult{fromClient: true, n: n, err: err}
	}()
	go func() {
		n, err := copyStream(cltW, upsR, make([]byte, bufSize), NewRateLimiter(opts.RateLimit), SideUpstream, SideClient)
		results <- relayResult{n: n, err: err}
	}()

	var r relayResult
	select {
	case r = <-results:
	case <-opts.Quit:
		return ErrRelayQuit
	}

	if ce := utils.CanLogDebug("relay finished"); ce != nil {
		dir := "upstream->client"
		if r.fromClient {
			dir = "client->upstream"
		}
		fields := []zap.Field{
			zap.String("direction", dir),
			zap.String("target", opts.Target),
			zap.Int64("copied bytes", r.n),
		}
		if r.err != nil {
			fields = append(fields, zap.Error(r.err))
		}
		ce.Write(fields...)
	}

	if r.fromClient {
		CloseWrite(upsW)
		if r.err != nil {
			return r.err
		}
		return ErrClosedByClient
	}
	CloseWrite(cltW)
	if r.err != nil {
		return r.err
	}
	return ErrClosedByUpstream
}

// copyStream 读到 EOF 时返回 nil 错误
func copyStream(dst io.Writer, src io.Reader, buf []byte, limiter *rate.Limiter, srcSide, dstSide RelaySide) (written int64, cerr *CopyError) {
	for {
		nr, er := src.Read(buf)
		if nr > 0 {
			if e := waitN(limiter, nr); e != nil {
				return written, &CopyError{Side: dstSide, IsWrite: true, Err: e}
			}
			nw, ew := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if ew == nil && nw != nr {
				ew = io.ErrShortWrite
			}
			if ew == nil {
				ew = Flush(dst)
			}
			if ew != nil {
				return written, &CopyError{Side: dstSide, IsWrite: true, Err: ew}
			}
		}
		if er != nil {
			if er == io.EOF {
				return written, nil
			}
			return written, &CopyError{Side: srcSide, Err: er}
		}
	}
}
