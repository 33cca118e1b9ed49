package ws

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gobwas/httphead"
)

func headerHasToken(h http.Header, key, token string) bool {
	found := false
	for _, v := range h.Values(key) {
		httphead.ScanTokens([]byte(v), func(b []byte) bool {
			if bytes.EqualFold(b, []byte(token)) {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

// IsUpgradeRequest 判断 r 是否为 websocket 握手请求
func IsUpgradeRequest(r *http.Request) bool {
	return r.Method == http.MethodGet &&
		headerHasToken(r.Header, "Connection", "upgrade") &&
		headerHasToken(r.Header, "Upgrade", "websocket") &&
		r.Header.Get("Sec-WebSocket-Key") != ""
}

// IsUpgradeResponse 判断 上游是否同意了 websocket 握手
func IsUpgradeResponse(resp *http.Response) bool {
	return resp.StatusCode == http.StatusSwitchingProtocols &&
		strings.EqualFold(strings.TrimSpace(resp.Header.Get("Upgrade")), "websocket")
}
