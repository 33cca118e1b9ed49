package serve

import "time"

// ServerConfig 是拦截核心需要的 server 配置的只读视图. config.ServerConf 实现了它.
type ServerConfig interface {
	Name() string

	// TCPRateLimit 返回 每秒字节数 上限, 0 表示不限速
	TCPRateLimit() int

	TCPCopyBufferSize() int

	GreetingTimeout() time.Duration
}

const (
	DefaultTCPCopyBufferSize = 16 * 1024
	DefaultGreetingTimeout   = 10 * time.Second
)
