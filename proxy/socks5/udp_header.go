package socks5

import (
	"net"

	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/utils"
)

// ParseUDPHeader 解析 socks5 udp 头部:
//
//	+----+------+------+----------+----------+----------+
//	|RSV | FRAG | ATYP | DST.ADDR | DST.PORT |   DATA   |
//	+----+------+------+----------+----------+----------+
//	| 2  |  1   |  1   | Variable |    2     | Variable |
//
// 返回 负载的起始偏移 以及 头部中的地址. 不支持分片.
func ParseUDPHeader(b []byte) (off int, addr netLayer.Addr, err error) {
	if len(b) < 4 {
		err = utils.ErrInErr{ErrDesc: "socks5 udp header too short", ErrDetail: utils.ErrShortRead, Data: len(b)}
		return
	}
	if b[0] != 0 || b[1] != 0 {
		err = utils.ErrInErr{ErrDesc: "socks5 udp header, reserved bytes not zero", ErrDetail: utils.ErrInvalidData}
		return
	}
	if b[2] != 0 {
		err = utils.ErrInErr{ErrDesc: "socks5 udp fragment not supported", ErrDetail: utils.ErrInvalidData, Data: b[2]}
		return
	}

	switch b[3] {
	case ATypIP4:
		off = 4 + net.IPv4len + 2
		if len(b) < off {
			break
		}
		addr.IP = net.IP(append([]byte(nil), b[4:4+net.IPv4len]...))
	case ATypIP6:
		off = 4 + net.IPv6len + 2
		if len(b) < off {
			break
		}
		addr.IP = net.IP(append([]byte(nil), b[4:4+net.IPv6len]...))
	case ATypDomain:
		if len(b) < 5 {
			off = 5
			break
		}
		l := int(b[4])
		if l == 0 {
			err = utils.ErrInErr{ErrDesc: "socks5 udp header, empty domain", ErrDetail: utils.ErrInvalidData}
			return
		}
		off = 5 + l + 2
		if len(b) < off {
			break
		}
		addr.Name = string(b[5 : 5+l])
	default:
		err = utils.ErrInErr{ErrDesc: "socks5 udp header, unknown atyp", ErrDetail: utils.ErrInvalidData, Data: b[3]}
		return
	}

	if len(b) < off {
		err = utils.ErrInErr{ErrDesc: "socks5 udp header too short", ErrDetail: utils.ErrShortRead, Data: len(b)}
		off = 0
		return
	}
	addr.Port = int(b[off-2])<<8 | int(b[off-1])
	addr.Network = "udp"
	return
}

// AppendUDPHeader 将 target 的 socks5 udp 头部 追加到 buf 后面.
func AppendUDPHeader(buf []byte, target *netLayer.Addr) ([]byte, error) {
	buf = append(buf, 0, 0, 0)

	if target.IP != nil {
		if ip4 := target.IP.To4(); ip4 != nil {
			buf = append(buf, ATypIP4)
			buf = append(buf, ip4...)
		} else {
			buf = append(buf, ATypIP6)
			buf = append(buf, target.IP.To16()...)
		}
	} else {
		if len(target.Name) == 0 || len(target.Name) > 255 {
			return nil, utils.ErrInErr{ErrDesc: "socks5 AppendUDPHeader, bad domain length", ErrDetail: utils.ErrWrongParameter, Data: len(target.Name)}
		}
		buf = append(buf, ATypDomain, byte(len(target.Name)))
		buf = append(buf, target.Name...)
	}

	buf = append(buf, byte(target.Port>>8), byte(target.Port))
	return buf, nil
}
