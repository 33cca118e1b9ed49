package netLayer

import (
	"net"
	"time"

	"github.com/pires/go-proxyproto"
)

// PROXY protocol。
// Reference： http://www.haproxy.org/download/1.8/doc/proxy-protocol.txt
//
// 监听端若开启了 PROXY protocol, 则每个连接必须携带头部, 以便我们拿到真实的客户端地址.
var proxyProtocolListenPolicyFunc = func(upstream net.Addr) (proxyproto.Policy, error) { return proxyproto.REQUIRE, nil }

const proxyProtocolHeaderTimeout = 5 * time.Second

// WrapProxyProtocolListener 返回的 Listener 所Accept的连接, 其 RemoteAddr 为 PROXY 头部中的源地址.
func WrapProxyProtocolListener(l net.Listener) net.Listener {
	return &proxyproto.Listener{
		Listener:          l,
		Policy:            proxyProtocolListenPolicyFunc,
		ReadHeaderTimeout: proxyProtocolHeaderTimeout,
	}
}
