package netLayer

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/e1732a364fed/vs_inspect/utils"
	"github.com/miekg/dns"
)

var ErrInvalidDomain = errors.New("invalid domain name")

// Addr 表示一个 上游目标地址. Name 与 IP 只会使用其中一个.
// Network 记录传输层协议名, 为空时视为 tcp.
type Addr struct {
	Network string
	Name    string
	IP      net.IP
	Port    int
}

func NewAddrFromUDPAddr(addr *net.UDPAddr) Addr {
	return Addr{
		IP:      addr.IP,
		Port:    addr.Port,
		Network: "udp",
	}
}

func NewAddrFromTCPAddr(addr *net.TCPAddr) Addr {
	return Addr{
		IP:      addr.IP,
		Port:    addr.Port,
		Network: "tcp",
	}
}

// NewAddrFromNetAddr 只支持 *net.TCPAddr 和 *net.UDPAddr, 其它类型会按 String() 再解析
func NewAddrFromNetAddr(na net.Addr) (Addr, error) {
	switch a := na.(type) {
	case *net.TCPAddr:
		return NewAddrFromTCPAddr(a), nil
	case *net.UDPAddr:
		return NewAddrFromUDPAddr(a), nil
	case nil:
		return Addr{}, utils.ErrNilParameter
	}
	return NewAddrByHostPort(na.String())
}

// addrStr 格式一般为 host:port ; 也可以是 tcp://host:port 这种url
func NewAddr(addrStr string) (Addr, error) {
	if strings.Contains(addrStr, "://") {
		return NewAddrByURL(addrStr)
	}
	return NewAddrByHostPort(addrStr)
}

// hostPortStr 格式必须为 host:port. 若host为域名, 则会检查域名是否合法.
func NewAddrByHostPort(hostPortStr string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(hostPortStr)
	if err != nil {
		return Addr{}, err
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Addr{}, err
	}
	if port < 0 || port > 65535 {
		return Addr{}, utils.ErrInErr{ErrDesc: "Invalid port", Data: port}
	}

	a := Addr{Port: port}
	if ip := net.ParseIP(host); ip != nil {
		a.IP = ip
	} else {
		if _, ok := dns.IsDomainName(host); !ok {
			return Addr{}, utils.ErrInErr{ErrDesc: "NewAddrByHostPort", ErrDetail: ErrInvalidDomain, Data: host}
		}
		a.Name = host
	}
	return a, nil
}

// 如 tcp://127.0.0.1:443 , udp://8.8.8.8:53
func NewAddrByURL(addrStr string) (Addr, error) {
	u, err := url.Parse(addrStr)
	if err != nil {
		return Addr{}, err
	}
	a, err := NewAddrByHostPort(u.Host)
	if err != nil {
		return a, err
	}
	a.Network = u.Scheme
	return a, nil
}

// Return host:port string.
func (a *Addr) String() string {
	port := strconv.Itoa(a.Port)
	if a.IP == nil {
		return net.JoinHostPort(a.Name, port)
	}
	return net.JoinHostPort(a.IP.String(), port)
}

func (a *Addr) NetworkStr() string {
	if a.Network == "" {
		return "tcp"
	}
	return a.Network
}

func (a *Addr) IsEmpty() bool {
	return a.Name == "" && len(a.IP) == 0 && a.Port == 0
}

func (a *Addr) IsIpv6() bool {
	return a.IP != nil && a.IP.To4() == nil
}

func (a *Addr) IsUDP() bool {
	return IsStrUDP_network(a.Network)
}

// Returned host string
func (a *Addr) HostStr() string {
	if a.IP == nil {
		return a.Name
	}
	return a.IP.String()
}

func IsStrUDP_network(s string) bool {
	switch s {
	case "udp", "udp4", "udp6":
		return true
	}
	return false
}
