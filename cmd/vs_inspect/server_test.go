package main

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/e1732a364fed/vs_inspect/config"
	"github.com/e1732a364fed/vs_inspect/httpLayer"
	"github.com/e1732a364fed/vs_inspect/inspect"
	"github.com/e1732a364fed/vs_inspect/serve"
)

func fakeSmtpUpstream(t *testing.T) net.Listener {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				c.Write([]byte("220-mx.example.com ESMTP\r\n220 ready\r\n"))
				line, _ := bufio.NewReader(c).ReadString('\n')
				c.Write([]byte("250 " + strings.TrimSpace(line) + "\r\n"))
			}()
		}
	}()
	return l
}

func loadTestConf(t *testing.T, s string) *config.Standard {
	conf, err := config.LoadTomlConfStr(s)
	if err != nil {
		t.Fatal(err)
	}
	return conf
}

func TestSmtpServer(t *testing.T) {
	ups := fakeSmtpUpstream(t)
	defer ups.Close()

	conf := loadTestConf(t, `
[inspect]
smtp = "intercept"
[[server]]
listen = "127.0.0.1:0"
protocol = "smtp"
upstream = "`+ups.Addr().String()+`"
greeting_timeout = "2s"
`)
	env := &inspectEnv{quit: serve.NewQuitPolicy(), smtpPolicy: conf.Inspect.Smtp}
	closer, err := startServer(env, conf, conf.Servers[0])
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	c, err := net.Dial("tcp", closer.(net.Listener).Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(3 * time.Second))

	br := bufio.NewReader(c)
	for _, want := range []string{"220-mx.example.com ESMTP\r\n", "220 ready\r\n"} {
		line, err := br.ReadString('\n')
		if err != nil || line != want {
			t.Log(line, err)
			t.FailNow()
		}
	}
	c.Write([]byte("EHLO me\r\n"))
	line, err := br.ReadString('\n')
	if err != nil || line != "250 EHLO me\r\n" {
		t.Log(line, err)
		t.FailNow()
	}
}

func TestSmtpServerBlock(t *testing.T) {
	ups := fakeSmtpUpstream(t)
	defer ups.Close()

	conf := loadTestConf(t, `
[inspect]
smtp = "block"
[[server]]
listen = "127.0.0.1:0"
protocol = "smtp"
upstream = "`+ups.Addr().String()+`"
`)
	env := &inspectEnv{quit: serve.NewQuitPolicy(), smtpPolicy: inspect.PolicyBlock}
	closer, err := startServer(env, conf, conf.Servers[0])
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	c, err := net.Dial("tcp", closer.(net.Listener).Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(3 * time.Second))

	bs, _ := io.ReadAll(c)
	if string(bs) != "554 127.0.0.1 No SMTP service here\r\n" {
		t.Log(string(bs))
		t.FailNow()
	}
}

func TestForwardServerOrigin(t *testing.T) {
	origin, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer origin.Close()
	go http.Serve(origin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		io.WriteString(w, r.Method+" "+r.URL.RequestURI()+" "+r.Host)
	}))

	conf := loadTestConf(t, `
[[server]]
listen = "127.0.0.1:0"
protocol = "http_forward"
peer = "direct"

[[peer]]
name = "direct"
type = "origin"
address = "127.0.0.1:1"
`)
	env := &inspectEnv{quit: serve.NewQuitPolicy()}
	closer, err := startServer(env, conf, conf.Servers[0])
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	c, err := net.Dial("tcp", closer.(net.Listener).Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(3 * time.Second))

	target := origin.Addr().String()
	c.Write([]byte("GET http://" + target + "/a?b=c HTTP/1.1\r\nHost: " + target + "\r\nProxy-Connection: keep-alive\r\n\r\n"))

	resp, err := http.ReadResponse(bufio.NewReader(c), nil)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "GET /a?b=c "+target {
		t.Log(resp.StatusCode, string(body))
		t.FailNow()
	}
}

func TestForwardServerExpired(t *testing.T) {
	conf := loadTestConf(t, `
[[server]]
listen = "127.0.0.1:0"
protocol = "http_forward"
peer = "old"

[[peer]]
name = "old"
type = "proxy"
address = "127.0.0.1:1"
expire = 2001-01-01T00:00:00Z
`)
	peer := conf.GetPeer("old")
	if !peer.SharedConfig().Expired(time.Now()) {
		t.FailNow()
	}

	peerL, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer peerL.Close()
	peer.Address = peerL.Addr().String()
	got := make(chan int, 1)
	go func() {
		c, err := peerL.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		bs, _ := io.ReadAll(c)
		got <- len(bs)
	}()

	env := &inspectEnv{quit: serve.NewQuitPolicy()}
	closer, err := startServer(env, conf, conf.Servers[0])
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	c, err := net.Dial("tcp", closer.(net.Listener).Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(3 * time.Second))
	c.Write([]byte("GET http://example.com/ HTTP/1.1\r\nHost: example.com\r\n\r\n"))

	resp, err := http.ReadResponse(bufio.NewReader(c), nil)
	if err != nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Log(resp, err)
		t.FailNow()
	}

	select {
	case n := <-got:
		if n != 0 {
			t.Log("bytes written to expired peer:", n)
			t.FailNow()
		}
	case <-time.After(2 * time.Second):
		t.FailNow()
	}
}

func TestHostPortWithDefault(t *testing.T) {
	for s, want := range map[string]string{
		"http://example.com/":      "example.com:80",
		"https://example.com/":     "example.com:443",
		"http://example.com:8080/": "example.com:8080",
		"http://[::1]/":            "[::1]:80",
	} {
		r, _ := http.NewRequest("GET", s, nil)
		pcr, err := httpLayer.NewProxyClientRequest(r)
		if err != nil || hostPortWithDefault(pcr) != want {
			t.Log(s, err)
			t.FailNow()
		}
	}
}
