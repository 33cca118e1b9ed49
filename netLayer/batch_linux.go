//go:build linux
// +build linux

package netLayer

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const SystemCanBatchRecv = true

// ipv6.Message 与 ipv4.Message 均为 socket.Message 的别名, 所以 ipv6.PacketConn 也满足本接口
type batchConn interface {
	ReadBatch(ms []ipv4.Message, flags int) (int, error)
}

// recvmmsg 读取
type mmsgReader struct {
	conn batchConn
	msgs []ipv4.Message
}

// NewBatchReader 在linux上使用 recvmmsg; 非 *net.UDPConn 会退化为单包读取.
func NewBatchReader(conn net.PacketConn) BatchReader {
	uc, ok := conn.(*net.UDPConn)
	if !ok {
		return NewSingleBatchReader(conn)
	}
	var bc batchConn
	if la, ok := uc.LocalAddr().(*net.UDPAddr); ok && la.IP != nil && la.IP.To4() == nil {
		bc = ipv6.NewPacketConn(uc)
	} else {
		bc = ipv4.NewPacketConn(uc)
	}
	return &mmsgReader{conn: bc}
}

func (r *mmsgReader) ReadBatch(pkts []UDPPacket) (int, error) {
	if len(pkts) == 0 {
		return 0, nil
	}
	if cap(r.msgs) < len(pkts) {
		r.msgs = make([]ipv4.Message, len(pkts))
	}
	msgs := r.msgs[:len(pkts)]
	for i := range pkts {
		if msgs[i].Buffers == nil {
			msgs[i].Buffers = make([][]byte, 1)
		}
		msgs[i].Buffers[0] = pkts[i].Buf
		msgs[i].N = 0
	}

	n, err := r.conn.ReadBatch(msgs, 0)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		pkts[i].Offset = 0
		pkts[i].Length = msgs[i].N
	}
	return n, nil
}
