package netLayer

import (
	"net"

	"github.com/e1732a364fed/vs_inspect/utils"
	"github.com/yl2chen/cidranger"
)

// CIDRMatcher 判断一个ip是否属于给定的若干网段. 构建后只读, 可并发使用.
type CIDRMatcher struct {
	ranger cidranger.Ranger
	count  int
}

func NewCIDRMatcher(cidrs []string) (*CIDRMatcher, error) {
	m := &CIDRMatcher{ranger: cidranger.NewPCTrieRanger()}
	for _, s := range cidrs {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, utils.ErrInErr{ErrDesc: "NewCIDRMatcher, invalid cidr", ErrDetail: err, Data: s}
		}
		if err = m.ranger.Insert(cidranger.NewBasicRangerEntry(*n)); err != nil {
			return nil, err
		}
		m.count++
	}
	return m, nil
}

func (m *CIDRMatcher) Len() int {
	if m == nil {
		return 0
	}
	return m.count
}

func (m *CIDRMatcher) Contains(ip net.IP) bool {
	if m == nil || m.count == 0 || ip == nil {
		return false
	}
	ok, err := m.ranger.Contains(ip)
	return err == nil && ok
}

// MatchAddr 只对 *net.TCPAddr 和 *net.UDPAddr 有效
func (m *CIDRMatcher) MatchAddr(a net.Addr) bool {
	switch v := a.(type) {
	case *net.TCPAddr:
		return m.Contains(v.IP)
	case *net.UDPAddr:
		return m.Contains(v.IP)
	}
	return false
}
