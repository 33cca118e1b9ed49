//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly
// +build linux darwin freebsd netbsd openbsd dragonfly

package netLayer

import (
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// ProbeRead 非阻塞地从 c 读取最多 len(buf) 个字节.
// 无数据时返回 ErrWouldBlock, 对端关闭时返回 io.EOF.
//
// 底层为socket时使用 MSG_DONTWAIT, 否则退化为 极短的读超时.
func ProbeRead(c net.Conn, buf []byte) (int, error) {
	rawConn := GetRawConn(c)
	if rawConn == nil {
		return probeByDeadline(c, buf)
	}

	var n int
	var readErr error
	err := rawConn.Read(func(fd uintptr) bool {
		n, _, readErr = unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		return 0, err
	}
	if readErr != nil {
		if readErr == unix.EAGAIN || readErr == unix.EWOULDBLOCK || readErr == unix.EINTR {
			return 0, ErrWouldBlock
		}
		return 0, readErr
	}
	if n == 0 && len(buf) > 0 {
		return 0, io.EOF
	}
	return n, nil
}
