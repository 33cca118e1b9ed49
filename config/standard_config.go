/*
Package config 读取 toml 格式的配置文件.

	[app]
	loglevel = 1
	logfile = "vs_inspect.log"
	metrics_interval = "10s"

	[inspect]
	websocket = "intercept"
	smtp = "detour"
	block_cidrs = ["203.0.113.0/24"]

	[audit]
	detour_server = "127.0.0.1:9000"

	[[server]]
	name = "smtp-in"
	listen = "0.0.0.0:2525"
	protocol = "smtp"
	upstream = "mx.example.com:25"
	greeting_timeout = "30s"

	[[peer]]
	name = "corp-proxy"
	type = "proxy"
	address = "10.0.0.8:3128"
	expire = 2027-01-01T00:00:00Z
	append_headers = { "X-Forwarded-By" = "vs_inspect" }
*/
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/e1732a364fed/vs_inspect/httpLayer"
	"github.com/e1732a364fed/vs_inspect/inspect"
	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/serve"
	"github.com/e1732a364fed/vs_inspect/utils"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	ProtocolSmtp        = "smtp"
	ProtocolWebsocket   = "websocket"
	ProtocolHTTPForward = "http_forward"
	ProtocolUDPForward  = "udp_forward"

	PeerTypeProxy  = "proxy"
	PeerTypeOrigin = "origin"
	PeerTypeSocks5 = "socks5"
)

const DefaultMetricsInterval = 10 * time.Second

type AppConf struct {
	LogLevel        *int   `toml:"loglevel"`
	LogFile         string `toml:"logfile"`
	MetricsInterval string `toml:"metrics_interval"`
}

func (ac *AppConf) GetMetricsInterval() time.Duration {
	if ac == nil || ac.MetricsInterval == "" {
		return DefaultMetricsInterval
	}
	d, err := time.ParseDuration(ac.MetricsInterval)
	if err != nil || d <= 0 {
		return DefaultMetricsInterval
	}
	return d
}

// ServerConf 是一个监听端口的配置, 实现了 serve.ServerConfig
type ServerConf struct {
	Tag           string `toml:"name"`
	Listen        string `toml:"listen"`
	Protocol      string `toml:"protocol"`
	Upstream      string `toml:"upstream"` //smtp, websocket 与 udp_forward 使用
	Peer          string `toml:"peer"`     //http_forward 与 udp_forward 使用, 对应 [[peer]] 的 name
	ProxyProtocol bool   `toml:"proxy_protocol"`

	RateLimit          int    `toml:"tcp_rate_limit"` //每秒字节数
	CopyBufferSize     int    `toml:"copy_buffer_size"`
	GreetingTimeoutStr string `toml:"greeting_timeout"`

	greetingTimeout time.Duration
}

func (sc *ServerConf) Name() string {
	return sc.Tag
}

func (sc *ServerConf) TCPRateLimit() int {
	return sc.RateLimit
}

func (sc *ServerConf) TCPCopyBufferSize() int {
	if sc.CopyBufferSize <= 0 {
		return serve.DefaultTCPCopyBufferSize
	}
	return sc.CopyBufferSize
}

func (sc *ServerConf) GreetingTimeout() time.Duration {
	if sc.greetingTimeout <= 0 {
		return serve.DefaultGreetingTimeout
	}
	return sc.greetingTimeout
}

func (sc *ServerConf) UpstreamAddr() (netLayer.Addr, error) {
	return netLayer.NewAddrByHostPort(sc.Upstream)
}

type InspectConf struct {
	Websocket  inspect.Policy `toml:"websocket"`
	Smtp       inspect.Policy `toml:"smtp"`
	Depth      int            `toml:"depth"`
	BlockCIDRs []string       `toml:"block_cidrs"`
}

func (ic *InspectConf) BlockList() (*netLayer.CIDRMatcher, error) {
	if ic == nil || len(ic.BlockCIDRs) == 0 {
		return nil, nil
	}
	return netLayer.NewCIDRMatcher(ic.BlockCIDRs)
}

type AuditConf struct {
	DetourServer string `toml:"detour_server"`
}

type PeerConf struct {
	Name          string            `toml:"name"`
	Type          string            `toml:"type"`
	Address       string            `toml:"address"`
	Expire        *time.Time        `toml:"expire"`
	AppendHeaders map[string]string `toml:"append_headers"`
	RateLimit     int               `toml:"tcp_rate_limit"`
}

// SharedConfig 生成 该 peer 所有 forward writer 共享的配置
func (pc *PeerConf) SharedConfig() *httpLayer.PeerSharedConfig {
	c := &httpLayer.PeerSharedConfig{ExpireInstant: pc.Expire}
	if len(pc.AppendHeaders) > 0 {
		hm := httpLayer.NewHeaderMap()
		keys := maps.Keys(pc.AppendHeaders)
		slices.Sort(keys)
		for _, k := range keys {
			hm.Append(k, pc.AppendHeaders[k])
		}
		c.AppendHTTPHeaders = hm
	}
	return c
}

type Standard struct {
	App     *AppConf      `toml:"app"`
	Servers []*ServerConf `toml:"server"`
	Inspect *InspectConf  `toml:"inspect"`
	Audit   *AuditConf    `toml:"audit"`
	Peers   []*PeerConf   `toml:"peer"`
}

func (c *Standard) GetPeer(name string) *PeerConf {
	for _, p := range c.Peers {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func LoadTomlConfStr(str string) (c *Standard, err error) {
	c = &Standard{}
	if _, err = toml.Decode(str, c); err != nil {
		return nil, utils.ErrInErr{ErrDesc: "can not parse toml config", ErrDetail: err}
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}
	return
}

func LoadTomlConfFile(fileNamePath string) (*Standard, error) {
	bs, err := os.ReadFile(fileNamePath)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "can't open config file", ErrDetail: err, Data: fileNamePath}
	}
	return LoadTomlConfStr(string(bs))
}
