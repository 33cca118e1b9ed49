package netLayer

import (
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// ErrWouldBlock 表示 非阻塞读取 时暂无数据
var ErrWouldBlock = errors.New("read would block")

// 用 读超时 模拟非阻塞读取时 等待的时长.
// 不能用过去的时间点, 那样 Read 会直接返回超时而不会读取已到达的数据.
const probeWaitDuration = time.Millisecond

type deadlineReader interface {
	Read(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
}

func probeByDeadline(c deadlineReader, buf []byte) (int, error) {
	if err := c.SetReadDeadline(time.Now().Add(probeWaitDuration)); err != nil {
		// 已关闭的连接 Read 会立即返回, 由 Read 区分 对端关闭(io.EOF) 与 本端关闭
		if !isClosedErr(err) {
			return 0, err
		}
		return c.Read(buf)
	}
	n, err := c.Read(buf)
	c.SetReadDeadline(time.Time{})

	if err != nil {
		if n > 0 {
			return n, nil
		}
		if IsTimeout(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}

// IsTimeout 判断 err 是否为 读写超时
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
