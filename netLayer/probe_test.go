package netLayer_test

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/e1732a364fed/vs_inspect/netLayer"
)

func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	ch := make(chan net.Conn, 1)
	go func() {
		c, _ := l.Accept()
		ch <- c
	}()
	c1, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return c1, <-ch
}

func TestProbeReadTCP(t *testing.T) {
	c1, c2 := tcpPair(t)
	defer c1.Close()

	buf := make([]byte, 4)
	if _, err := netLayer.ProbeRead(c1, buf); err != netLayer.ErrWouldBlock {
		t.Log(err)
		t.FailNow()
	}

	c2.Write([]byte{1, 2})
	time.Sleep(50 * time.Millisecond)
	n, err := netLayer.ProbeRead(c1, buf)
	if err != nil || n != 2 {
		t.Log(n, err)
		t.FailNow()
	}

	c2.Close()
	time.Sleep(50 * time.Millisecond)
	if _, err := netLayer.ProbeRead(c1, buf); err != io.EOF {
		t.Log(err)
		t.FailNow()
	}
}

func TestProbeReadPipe(t *testing.T) {
	a, b := net.Pipe()

	buf := make([]byte, 4)
	if _, err := netLayer.ProbeRead(a, buf); err != netLayer.ErrWouldBlock {
		t.Log(err)
		t.FailNow()
	}
	b.Close()
	if _, err := netLayer.ProbeRead(a, buf); err != io.EOF {
		t.Log(err)
		t.FailNow()
	}

	a.Close()
	if _, err := netLayer.ProbeRead(a, buf); err == nil || err == io.EOF || err == netLayer.ErrWouldBlock {
		t.Log(err)
		t.FailNow()
	}
}

func TestBatchReader(t *testing.T) {
	uc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer uc.Close()

	sender, err := net.DialUDP("udp4", nil, uc.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	sender.Write([]byte("first"))
	sender.Write([]byte("second!"))
	time.Sleep(50 * time.Millisecond)

	pkts := make([]netLayer.UDPPacket, 4)
	for i := range pkts {
		pkts[i].Buf = make([]byte, 64)
	}
	br := netLayer.NewBatchReader(uc)

	total := 0
	var got []string
	for total < 2 {
		n, err := br.ReadBatch(pkts)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < n; i++ {
			got = append(got, string(pkts[i].Payload()))
		}
		total += n
	}
	if got[0] != "first" || got[1] != "second!" {
		t.Log(got)
		t.FailNow()
	}
}
