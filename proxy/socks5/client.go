package socks5

import (
	"io"
	"net"
	"time"

	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/utils"
	"go.uber.org/zap"
)

// EstablishUDPAssociate 在控制连接 ctl 上完成 无认证握手 与 udp associate 请求, 返回代理给出的 relay 地址.
//
// 若代理返回的地址为 未指定地址(0.0.0.0 或 ::), 则使用 ctl 的远端ip.
// 本函数只读取恰好属于应答的字节, 之后 ctl 仅用于检测会话存活.
func EstablishUDPAssociate(ctl net.Conn) (*net.UDPAddr, error) {
	if ctl == nil {
		return nil, utils.ErrNilParameter
	}

	var ba [10]byte

	//握手阶段
	ba[0] = Version5
	ba[1] = 1
	ba[2] = AuthNone
	if _, err := ctl.Write(ba[:3]); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(ctl, ba[:2]); err != nil {
		return nil, err
	}
	if ba[0] != Version5 || ba[1] != AuthNone {
		return nil, utils.ErrInErr{ErrDesc: "EstablishUDPAssociate, auth method not accepted", ErrDetail: utils.ErrInvalidData, Data: ba[1]}
	}

	// 我们并不知道自己会用哪个地址发送数据, 所以全填零
	ba = [10]byte{Version5, CmdUDPAssociate, 0, ATypIP4}
	if _, err := ctl.Write(ba[:10]); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(ctl, ba[:4]); err != nil {
		return nil, err
	}
	if ba[0] != Version5 || ba[1] != 0 {
		return nil, utils.ErrInErr{ErrDesc: "EstablishUDPAssociate, request rejected", ErrDetail: utils.ErrInvalidData, Data: ba[1]}
	}

	var ip net.IP
	switch ba[3] {
	case ATypIP4:
		ip = make(net.IP, net.IPv4len)
	case ATypIP6:
		ip = make(net.IP, net.IPv6len)
	default:
		return nil, utils.ErrInErr{ErrDesc: "EstablishUDPAssociate, unsupported bind atyp", ErrDetail: utils.ErrInvalidData, Data: ba[3]}
	}
	if _, err := io.ReadFull(ctl, ip); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(ctl, ba[:2]); err != nil {
		return nil, err
	}
	port := int(ba[0])<<8 | int(ba[1])

	if ip.IsUnspecified() {
		if ra, ok := ctl.RemoteAddr().(*net.TCPAddr); ok {
			ip = ra.IP
		}
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// UDPConnectRemoteSend 把数据封装后 发往 relay 端口, 目标固定为 upstream.
type UDPConnectRemoteSend struct {
	conn     *net.UDPConn
	upstream netLayer.Addr
	header   []byte
}

func NewUDPConnectRemoteSend(conn *net.UDPConn, upstream netLayer.Addr) (*UDPConnectRemoteSend, error) {
	h, err := AppendUDPHeader(nil, &upstream)
	if err != nil {
		return nil, err
	}
	return &UDPConnectRemoteSend{conn: conn, upstream: upstream, header: h}, nil
}

func (s *UDPConnectRemoteSend) Send(payload []byte) error {
	buf := utils.GetPacket()
	defer utils.PutPacket(buf)

	if len(s.header)+len(payload) > len(buf) {
		return utils.ErrInErr{ErrDesc: "socks5 udp payload too large", ErrDetail: utils.ErrWrongParameter, Data: len(payload)}
	}
	n := copy(buf, s.header)
	n += copy(buf[n:], payload)
	_, err := s.conn.Write(buf[:n])
	return err
}

// DialUDPConnect 连接到 socks5代理 proxyAddr, 建立发往 upstream 的 udp 会话.
func DialUDPConnect(proxyAddr string, upstream netLayer.Addr, timeout time.Duration, endOnControlClosed bool) (*UDPConnectRemoteRecv, *UDPConnectRemoteSend, error) {
	ctl, err := net.DialTimeout("tcp", proxyAddr, timeout)
	if err != nil {
		return nil, nil, err
	}

	if timeout > 0 {
		ctl.SetDeadline(time.Now().Add(timeout))
	}
	relayAddr, err := EstablishUDPAssociate(ctl)
	if err != nil {
		ctl.Close()
		return nil, nil, utils.ErrInErr{ErrDesc: "socks5 DialUDPConnect, associate failed", ErrDetail: err, Data: proxyAddr}
	}
	ctl.SetDeadline(time.Time{})

	uc, err := net.DialUDP("udp", nil, relayAddr)
	if err != nil {
		ctl.Close()
		return nil, nil, err
	}

	send, err := NewUDPConnectRemoteSend(uc, upstream)
	if err != nil {
		uc.Close()
		ctl.Close()
		return nil, nil, err
	}

	if ce := utils.CanLogDebug("socks5 udp associate established"); ce != nil {
		ce.Write(
			zap.String("proxy", proxyAddr),
			zap.String("relay", relayAddr.String()),
			zap.String("upstream", upstream.String()),
		)
	}

	return NewUDPConnectRemoteRecv(uc, ctl, endOnControlClosed), send, nil
}
