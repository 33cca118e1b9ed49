package netLayer_test

import (
	"net"
	"testing"

	"github.com/e1732a364fed/vs_inspect/netLayer"
)

func TestUrl(t *testing.T) {
	a, e := netLayer.NewAddr("udp://8.8.8.8:53")
	if e != nil || a.Network != "udp" || a.Port != 53 {
		t.FailNow()
	}

	a, e = netLayer.NewAddr("tcp://[::1]:443")
	if e != nil || a.Network != "tcp" || a.Name != "" || !net.ParseIP("::1").Equal(a.IP) {
		t.Log(a, e)
		t.FailNow()
	}
	if !a.IsIpv6() {
		t.FailNow()
	}
}

func TestHostPort(t *testing.T) {
	a, e := netLayer.NewAddr("mail.example.com:25")
	if e != nil || a.Name != "mail.example.com" || a.Port != 25 {
		t.Log(a, e)
		t.FailNow()
	}
	if a.String() != "mail.example.com:25" || a.NetworkStr() != "tcp" {
		t.FailNow()
	}

	_, e = netLayer.NewAddr("bad..name:25")
	if e == nil {
		t.FailNow()
	}
	_, e = netLayer.NewAddr("1.2.3.4:70000")
	if e == nil {
		t.FailNow()
	}

	a, e = netLayer.NewAddrFromNetAddr(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 53})
	if e != nil || !a.IsUDP() || a.HostStr() != "127.0.0.1" {
		t.FailNow()
	}
}
