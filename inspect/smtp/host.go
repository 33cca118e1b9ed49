package smtp

import (
	"net"
	"strings"

	"github.com/asaskevich/govalidator"
)

// Host 是 greeting 中的 服务器标识, 为域名 或 地址字面量 二者之一.
type Host struct {
	Domain string
	IP     net.IP
}

func (h Host) IsEmpty() bool {
	return h.Domain == "" && h.IP == nil
}

func (h Host) String() string {
	if h.IP != nil {
		return h.IP.String()
	}
	return h.Domain
}

// parseHost 支持 域名, [1.2.3.4] 和 [IPv6:::1] 三种写法, 见 rfc5321 4.1.3
func parseHost(s string) (Host, bool) {
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		lit := s[1 : len(s)-1]
		if len(lit) > 5 && strings.EqualFold(lit[:5], "IPv6:") {
			v6 := lit[5:]
			if !govalidator.IsIPv6(v6) {
				return Host{}, false
			}
			return Host{IP: net.ParseIP(v6)}, true
		}
		if !govalidator.IsIPv4(lit) {
			return Host{}, false
		}
		return Host{IP: net.ParseIP(lit)}, true
	}

	if !govalidator.IsDNSName(s) {
		return Host{}, false
	}
	return Host{Domain: s}, true
}
