package config

import (
	"testing"
	"time"

	"github.com/e1732a364fed/vs_inspect/inspect"
)

const testConf = `
[app]
loglevel = 0
metrics_interval = "5s"

[inspect]
websocket = "block"
smtp = "detour"
depth = 1
block_cidrs = ["203.0.113.0/24"]

[audit]
detour_server = "127.0.0.1:9000"

[[server]]
name = "smtp-in"
listen = "0.0.0.0:2525"
protocol = "smtp"
upstream = "mx.example.com:25"
greeting_timeout = "30s"
tcp_rate_limit = 1048576

[[server]]
listen = "127.0.0.1:8080"
protocol = "http_forward"
peer = "corp-proxy"
proxy_protocol = true

[[peer]]
name = "corp-proxy"
type = "proxy"
address = "10.0.0.8:3128"
expire = 2027-01-01T00:00:00Z
append_headers = { "x-forwarded-by" = "vs_inspect", "Via" = "1.1 vs" }
`

func TestLoadTomlConfStr(t *testing.T) {
	c, err := LoadTomlConfStr(testConf)
	if err != nil {
		t.Fatal(err)
	}

	if c.App.GetMetricsInterval() != 5*time.Second || *c.App.LogLevel != 0 {
		t.FailNow()
	}
	if c.Inspect.Websocket != inspect.PolicyBlock || c.Inspect.Smtp != inspect.PolicyDetour || c.Inspect.Depth != 1 {
		t.Log(c.Inspect)
		t.FailNow()
	}

	smtp := c.Servers[0]
	if smtp.Name() != "smtp-in" || smtp.GreetingTimeout() != 30*time.Second || smtp.TCPRateLimit() != 1048576 {
		t.FailNow()
	}
	a, err := smtp.UpstreamAddr()
	if err != nil || a.Name != "mx.example.com" || a.Port != 25 {
		t.Log(a, err)
		t.FailNow()
	}

	fwd := c.Servers[1]
	if fwd.Name() != "http_forward-1" || !fwd.ProxyProtocol || fwd.GreetingTimeout() <= 0 || fwd.TCPCopyBufferSize() <= 0 {
		t.FailNow()
	}

	peer := c.GetPeer(fwd.Peer)
	sc := peer.SharedConfig()
	if sc.Expired(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) || !sc.Expired(time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.FailNow()
	}
	if v, ok := sc.AppendHTTPHeaders.Get("X-Forwarded-By"); !ok || v != "vs_inspect" || sc.AppendHTTPHeaders.Len() != 2 {
		t.FailNow()
	}

	bl, err := c.Inspect.BlockList()
	if err != nil || bl.Len() != 1 {
		t.FailNow()
	}
}

func TestValidate(t *testing.T) {
	bad := []string{
		``,
		"[[server]]\nlisten = \"0.0.0.0:25\"\nprotocol = \"ftp\"\nupstream = \"a.com:21\"",
		"[[server]]\nlisten = \"nowhere\"\nprotocol = \"smtp\"\nupstream = \"a.com:25\"",
		"[[server]]\nlisten = \"0.0.0.0:25\"\nprotocol = \"smtp\"",
		"[[server]]\nlisten = \"0.0.0.0:25\"\nprotocol = \"smtp\"\nupstream = \"a.com:25\"\ngreeting_timeout = \"soon\"",
		"[[server]]\nlisten = \"0.0.0.0:80\"\nprotocol = \"http_forward\"\npeer = \"missing\"",
		"[[server]]\nlisten = \"0.0.0.0:53\"\nprotocol = \"udp_forward\"\nupstream = \"8.8.8.8:53\"\npeer = \"p\"\n[[peer]]\nname = \"p\"\ntype = \"proxy\"\naddress = \"10.0.0.1:1080\"",
		"[inspect]\nsmtp = \"inspect\"\n[[server]]\nlisten = \"0.0.0.0:25\"\nprotocol = \"smtp\"\nupstream = \"a.com:25\"",
		"[inspect]\nblock_cidrs = [\"10.0.0.0/33\"]\n[[server]]\nlisten = \"0.0.0.0:25\"\nprotocol = \"smtp\"\nupstream = \"a.com:25\"",
	}
	for _, s := range bad {
		if _, err := LoadTomlConfStr(s); err == nil {
			t.Log(s)
			t.FailNow()
		}
	}
}

func TestListenAddr(t *testing.T) {
	for s, want := range map[string]bool{
		":2525":          true,
		"127.0.0.1:0":    true,
		"[::]:25":        true,
		"localhost:8080": true,
		"0.0.0.0:65536":  false,
		"127.0.0.1":      false,
		"nowhere":        false,
		"a b:25":         false,
	} {
		if isListenAddr(s) != want {
			t.Log(s, want)
			t.FailNow()
		}
	}

	c, err := LoadTomlConfStr("[[server]]\nlisten = \":2525\"\nprotocol = \"smtp\"\nupstream = \"a.com:25\"\ngreeting_timeout = \"3s\"")
	if err != nil {
		t.Fatal(err)
	}
	if c.Servers[0].GreetingTimeout() != 3*time.Second || c.Servers[0].GreetingTimeoutStr != "3s" {
		t.FailNow()
	}
}
