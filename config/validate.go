package config

import (
	"net"
	"strconv"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/e1732a364fed/vs_inspect/utils"
)

func confErr(desc string, data any) error {
	return utils.ErrInErr{ErrDesc: desc, ErrDetail: utils.ErrInvalidData, Data: data}
}

// isListenAddr 允许 host 为空(所有网卡) 以及 端口为0(随机端口)
func isListenAddr(s string) bool {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return false
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return false
	}
	return host == "" || govalidator.IsIP(host) || govalidator.IsDNSName(host)
}

// Validate 检查配置并补全 派生字段, LoadTomlConfStr 会自动调用它
func (c *Standard) Validate() error {
	if len(c.Servers) == 0 {
		return confErr("no server configured", nil)
	}

	names := make(map[string]bool)
	for _, p := range c.Peers {
		if p.Name == "" || names[p.Name] {
			return confErr("peer name empty or duplicated", p.Name)
		}
		names[p.Name] = true

		if !govalidator.IsDialString(p.Address) {
			return confErr("invalid peer address", p.Address)
		}
		switch p.Type {
		case PeerTypeProxy, PeerTypeOrigin, PeerTypeSocks5:
		default:
			return confErr("invalid peer type", p.Type)
		}
		if p.RateLimit < 0 {
			return confErr("negative peer tcp_rate_limit", p.Name)
		}
	}

	for i, sc := range c.Servers {
		if sc.Tag == "" {
			sc.Tag = sc.Protocol + "-" + strconv.Itoa(i)
		}
		if !isListenAddr(sc.Listen) {
			return confErr("invalid listen address", sc.Listen)
		}
		switch sc.Protocol {
		case ProtocolSmtp, ProtocolWebsocket:
			if !govalidator.IsDialString(sc.Upstream) {
				return confErr("invalid upstream address", sc.Upstream)
			}
		case ProtocolHTTPForward:
			p := c.GetPeer(sc.Peer)
			if p == nil || p.Type == PeerTypeSocks5 {
				return confErr("http_forward server needs a proxy or origin peer", sc.Peer)
			}
		case ProtocolUDPForward:
			if !govalidator.IsDialString(sc.Upstream) {
				return confErr("invalid upstream address", sc.Upstream)
			}
			p := c.GetPeer(sc.Peer)
			if p == nil || p.Type != PeerTypeSocks5 {
				return confErr("udp_forward server needs a socks5 peer", sc.Peer)
			}
		default:
			return confErr("unsupported server protocol", sc.Protocol)
		}
		if sc.RateLimit < 0 {
			return confErr("negative tcp_rate_limit", sc.Tag)
		}
		if sc.GreetingTimeoutStr != "" {
			d, err := time.ParseDuration(sc.GreetingTimeoutStr)
			if err != nil || d <= 0 {
				return confErr("invalid greeting_timeout", sc.GreetingTimeoutStr)
			}
			sc.greetingTimeout = d
		}
	}

	if c.Audit != nil && c.Audit.DetourServer != "" && !govalidator.IsDialString(c.Audit.DetourServer) {
		return confErr("invalid detour_server", c.Audit.DetourServer)
	}
	if _, err := c.Inspect.BlockList(); err != nil {
		return err
	}
	return nil
}
