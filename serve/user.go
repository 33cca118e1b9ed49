package serve

import "go.uber.org/atomic"

// User 是已认证的用户. TCPRateLimit 为 0 时不单独限速.
type User struct {
	Name         string
	TCPRateLimit int

	UpstreamStats []*UserUpstreamTrafficStats
}

// UserUpstreamTrafficStats 累计一个用户在某个上游方向上的流量.
type UserUpstreamTrafficStats struct {
	User   string
	Escape string

	readBytes  atomic.Uint64
	writeBytes atomic.Uint64
}

func NewUserUpstreamTrafficStats(user, escape string) *UserUpstreamTrafficStats {
	return &UserUpstreamTrafficStats{User: user, Escape: escape}
}

func (s *UserUpstreamTrafficStats) AddRead(n int) {
	s.readBytes.Add(uint64(n))
}

func (s *UserUpstreamTrafficStats) AddWrite(n int) {
	s.writeBytes.Add(uint64(n))
}

func (s *UserUpstreamTrafficStats) ReadBytes() uint64 {
	return s.readBytes.Load()
}

func (s *UserUpstreamTrafficStats) WriteBytes() uint64 {
	return s.writeBytes.Load()
}
