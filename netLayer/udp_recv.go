package netLayer

import (
	"fmt"
)

type UDPCopyRemoteErrorKind int

const (
	UDPRecvFailed UDPCopyRemoteErrorKind = iota
	UDPInvalidPacket
	UDPRemoteSessionClosed
	UDPRemoteSessionError
)

func (k UDPCopyRemoteErrorKind) String() string {
	switch k {
	case UDPRecvFailed:
		return "RecvFailed"
	case UDPInvalidPacket:
		return "InvalidPacket"
	case UDPRemoteSessionClosed:
		return "RemoteSessionClosed"
	case UDPRemoteSessionError:
		return "RemoteSessionError"
	}
	return fmt.Sprintf("UDPCopyRemoteErrorKind(%d)", int(k))
}

// UDPCopyRemoteError 是 从远端接收udp数据时 的错误.
type UDPCopyRemoteError struct {
	Kind UDPCopyRemoteErrorKind
	Err  error //可为nil
}

func (e *UDPCopyRemoteError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *UDPCopyRemoteError) Unwrap() error {
	return e.Err
}

func (e *UDPCopyRemoteError) Is(target error) bool {
	t, ok := target.(*UDPCopyRemoteError)
	return ok && t.Kind == e.Kind
}

var (
	ErrUDPRemoteSessionClosed = &UDPCopyRemoteError{Kind: UDPRemoteSessionClosed}
	ErrUDPRemoteSessionError  = &UDPCopyRemoteError{Kind: UDPRemoteSessionError}
	ErrUDPInvalidPacket       = &UDPCopyRemoteError{Kind: UDPInvalidPacket}
	ErrUDPRecvFailed          = &UDPCopyRemoteError{Kind: UDPRecvFailed}
)

// UDPPacket 描述一个接收缓存中的数据包. 负载为 Buf[Offset:Length], 头部被跳过.
type UDPPacket struct {
	Buf    []byte
	Offset int
	Length int
}

func (p *UDPPacket) Payload() []byte {
	return p.Buf[p.Offset:p.Length]
}

// UDPCopyRemoteRecv 从远端接收已经解封装的 udp 负载.
type UDPCopyRemoteRecv interface {
	// MaxHdrLen 返回 最大头部长度, 调用者据此准备接收缓存
	MaxHdrLen() int

	// RecvPacket 返回 负载在buf中的 起始偏移 与 结尾位置
	RecvPacket(buf []byte) (off, n int, err error)

	// RecvPackets 一次接收多个包, 返回填充的包的个数
	RecvPackets(pkts []UDPPacket) (int, error)
}
