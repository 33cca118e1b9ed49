package httpLayer

import (
	"bytes"
	"io"

	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/utils"
)

func writeHeaders(buf *bytes.Buffer, h *HeaderMap) {
	h.ForEach(func(name, value string) {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	})
}

// SendReqHeaderViaProxy 以 absolute-form 向 上游代理 写入请求头. 请求目标的authority 使用 upstream,
// 并追加 appendHeaders.
func SendReqHeaderViaProxy(w io.Writer, req *ProxyClientRequest, upstream *netLayer.Addr, appendHeaders *HeaderMap) error {
	buf := utils.GetBuf()
	defer utils.PutBuf(buf)

	u := *req.URI
	if upstream != nil && !upstream.IsEmpty() {
		u.Host = upstream.String()
	}

	buf.WriteString(req.Method)
	buf.WriteByte(' ')
	buf.WriteString(u.String())
	buf.WriteByte(' ')
	buf.WriteString(req.Version)
	buf.WriteString("\r\n")

	buf.WriteString("Host: ")
	buf.WriteString(u.Host)
	buf.WriteString("\r\n")

	writeHeaders(buf, withoutHost(req.Headers))
	writeHeaders(buf, appendHeaders)
	buf.WriteString("\r\n")

	_, err := w.Write(buf.Bytes())
	if err != nil {
		return err
	}
	return netLayer.Flush(w)
}

// SendReqHeaderToOrigin 以 origin-form 直接向源站写入请求头, 不追加额外头部.
func SendReqHeaderToOrigin(w io.Writer, req *ProxyClientRequest) error {
	buf := utils.GetBuf()
	defer utils.PutBuf(buf)

	buf.WriteString(req.Method)
	buf.WriteByte(' ')
	buf.WriteString(req.OriginTarget())
	buf.WriteByte(' ')
	buf.WriteString(req.Version)
	buf.WriteString("\r\n")

	buf.WriteString("Host: ")
	buf.WriteString(req.HostHeader())
	buf.WriteString("\r\n")

	writeHeaders(buf, withoutHost(req.Headers))
	buf.WriteString("\r\n")

	_, err := w.Write(buf.Bytes())
	if err != nil {
		return err
	}
	return netLayer.Flush(w)
}

func withoutHost(h *HeaderMap) *HeaderMap {
	if !h.ContainsKey("Host") {
		return h
	}
	h = h.Clone()
	h.Remove("Host")
	return h
}
