//go:build !linux
// +build !linux

package netLayer

import "net"

const SystemCanBatchRecv = false

func NewBatchReader(conn net.PacketConn) BatchReader {
	return NewSingleBatchReader(conn)
}
