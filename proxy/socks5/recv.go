package socks5

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/e1732a364fed/vs_inspect/netLayer"
)

// 控制连接上 不应出现任何数据, 一次最多探测这么多字节
const ctlProbeSize = 4

// 仍在监视控制连接时, 阻塞的接收 每隔这么久醒来 重新探测一次控制连接
const ctlRecheckInterval = 200 * time.Millisecond

var errUnexpectedCtlData = errors.New("unexpected data received in ctl stream")

// UDPConnectRemoteRecv 从 socks5 代理的 udp relay 端口 接收数据, 并通过 控制连接(tcp) 检测会话是否存活.
//
// 在第一个数据包被成功解封装之前, 控制连接的关闭 只有在 endOnControlClosed 为 true 时才会结束会话;
// 之后则总是结束会话.
type UDPConnectRemoteRecv struct {
	recv  net.PacketConn
	batch netLayer.BatchReader
	ctl   net.Conn

	endOnControlClosed bool
	ignoreCtlStream    bool

	probeBuf [ctlProbeSize]byte
}

var _ netLayer.UDPCopyRemoteRecv = (*UDPConnectRemoteRecv)(nil)

func NewUDPConnectRemoteRecv(recv net.PacketConn, ctl net.Conn, endOnControlClosed bool) *UDPConnectRemoteRecv {
	return &UDPConnectRemoteRecv{
		recv:               recv,
		batch:              netLayer.NewBatchReader(recv),
		ctl:                ctl,
		endOnControlClosed: endOnControlClosed,
	}
}

func (r *UDPConnectRemoteRecv) MaxHdrLen() int {
	return MaxUDPHeaderLen
}

func (r *UDPConnectRemoteRecv) EndOnControlClosed() bool {
	return r.endOnControlClosed
}

func (r *UDPConnectRemoteRecv) IgnoringControl() bool {
	return r.ignoreCtlStream
}

func (r *UDPConnectRemoteRecv) checkCtlStream() error {
	n, err := netLayer.ProbeRead(r.ctl, r.probeBuf[:])
	switch {
	case err == netLayer.ErrWouldBlock:
		return nil
	case err == io.EOF:
		if r.endOnControlClosed {
			return netLayer.ErrUDPRemoteSessionClosed
		}
		r.ignoreCtlStream = true
		return nil
	case err != nil:
		return &netLayer.UDPCopyRemoteError{Kind: netLayer.UDPRemoteSessionError, Err: err}
	case n == ctlProbeSize:
		return &netLayer.UDPCopyRemoteError{Kind: netLayer.UDPRemoteSessionError, Err: errUnexpectedCtlData}
	}
	// 有些实现会发送少量多余数据, 读掉即可
	return nil
}

// recvWithCtl 执行 read, 直到 读到数据, 接收失败 或 控制连接 要求结束会话.
// 监视控制连接期间 read 以 ctlRecheckInterval 为超时 分段进行, 控制连接关闭 不会被阻塞的接收 错过.
func (r *UDPConnectRemoteRecv) recvWithCtl(read func() error) error {
	for {
		if !r.ignoreCtlStream {
			if err := r.checkCtlStream(); err != nil {
				return err
			}
		}

		if r.ignoreCtlStream {
			r.recv.SetReadDeadline(time.Time{})
		} else {
			r.recv.SetReadDeadline(time.Now().Add(ctlRecheckInterval))
		}

		err := read()
		if err == nil {
			return nil
		}
		if !r.ignoreCtlStream && netLayer.IsTimeout(err) {
			continue
		}
		return &netLayer.UDPCopyRemoteError{Kind: netLayer.UDPRecvFailed, Err: err}
	}
}

// RecvPacket 接收一个包, 负载为 buf[off:n]
func (r *UDPConnectRemoteRecv) RecvPacket(buf []byte) (off, n int, err error) {
	err = r.recvWithCtl(func() (e error) {
		n, _, e = r.recv.ReadFrom(buf)
		return
	})
	if err != nil {
		return 0, 0, err
	}

	off, _, err = ParseUDPHeader(buf[:n])
	if err != nil {
		err = &netLayer.UDPCopyRemoteError{Kind: netLayer.UDPInvalidPacket, Err: err}
		return 0, 0, err
	}

	r.endOnControlClosed = true
	return off, n, nil
}

// RecvPackets 一次接收多个包; 任意一个包的头部非法 都会使整批失败.
func (r *UDPConnectRemoteRecv) RecvPackets(pkts []netLayer.UDPPacket) (int, error) {
	var count int
	err := r.recvWithCtl(func() (e error) {
		count, e = r.batch.ReadBatch(pkts)
		return
	})
	if err != nil {
		return 0, err
	}

	for i := 0; i < count; i++ {
		p := &pkts[i]
		off, _, err := ParseUDPHeader(p.Buf[:p.Length])
		if err != nil {
			return 0, &netLayer.UDPCopyRemoteError{Kind: netLayer.UDPInvalidPacket, Err: err}
		}
		p.Offset = off
	}

	r.endOnControlClosed = true
	return count, nil
}

func (r *UDPConnectRemoteRecv) Close() error {
	r.ctl.Close()
	return r.recv.Close()
}
