//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)
// +build !linux,!darwin,!freebsd,!netbsd,!openbsd,!dragonfly

package netLayer

import (
	"net"
)

// ProbeRead 使用 极短的读超时 模拟非阻塞读取. 无数据时返回 ErrWouldBlock.
func ProbeRead(c net.Conn, buf []byte) (int, error) {
	return probeByDeadline(c, buf)
}
