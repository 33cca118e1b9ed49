package netLayer

import (
	"net"
)

// BatchReader 一次读取多个udp包, 每个包读入 pkts[i].Buf, 并将 pkts[i].Length 设为读取的长度, Offset 设为0.
type BatchReader interface {
	ReadBatch(pkts []UDPPacket) (int, error)
}

// singleReader 每次只读一个包, 语义作为 批量读取 的参照.
type singleReader struct {
	conn net.PacketConn
}

func (r singleReader) ReadBatch(pkts []UDPPacket) (int, error) {
	if len(pkts) == 0 {
		return 0, nil
	}
	n, _, err := r.conn.ReadFrom(pkts[0].Buf)
	if err != nil {
		return 0, err
	}
	pkts[0].Offset = 0
	pkts[0].Length = n
	return 1, nil
}

// NewSingleBatchReader 返回一个每次只读一个包的 BatchReader
func NewSingleBatchReader(conn net.PacketConn) BatchReader {
	return singleReader{conn: conn}
}
