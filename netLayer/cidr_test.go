package netLayer

import (
	"net"
	"strconv"
	"testing"
)

/*
cidranger 在网段较多时 比遍历 netip.Prefix 列表 要快, 所以 block_cidrs 直接用 cidranger.
*/

func TestCIDRMatcher(t *testing.T) {
	m, err := NewCIDRMatcher([]string{"192.168.1.0/24", "fd00::/8"})
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 {
		t.FailNow()
	}
	if !m.Contains(net.ParseIP("192.168.1.23")) {
		t.FailNow()
	}
	if m.Contains(net.ParseIP("192.168.2.1")) {
		t.FailNow()
	}
	if !m.MatchAddr(&net.TCPAddr{IP: net.ParseIP("fd00::1"), Port: 1}) {
		t.FailNow()
	}

	var nilM *CIDRMatcher
	if nilM.Contains(net.ParseIP("192.168.1.1")) {
		t.FailNow()
	}

	if _, err = NewCIDRMatcher([]string{"not a cidr"}); err == nil {
		t.FailNow()
	}
}

func Benchmark_CIDR200_matcher(b *testing.B) {
	b.StopTimer()
	b.ResetTimer()

	var list []string
	for i := 0; i < 200; i++ {
		list = append(list, "192.168."+strconv.Itoa(i)+".0/24")
	}
	m, _ := NewCIDRMatcher(list)
	theIP := net.ParseIP("192.168.1.23")

	b.StartTimer()

	for i := 0; i < b.N; i++ {
		m.Contains(theIP)
	}
}
