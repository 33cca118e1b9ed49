package serve

import (
	"errors"

	"github.com/e1732a364fed/vs_inspect/netLayer"
)

// FromRelayError 将 netLayer.RelayStreams 的返回值 转换为 task 错误
func FromRelayError(err error) *TaskError {
	switch err {
	case nil:
		return nil
	case netLayer.ErrClosedByClient:
		return ErrClosedByClient
	case netLayer.ErrClosedByUpstream:
		return ErrClosedByUpstream
	case netLayer.ErrRelayQuit:
		return ErrCanceledAsServerQuit
	}

	var ce *netLayer.CopyError
	if errors.As(err, &ce) {
		var kind TaskErrorKind
		switch {
		case ce.Side == netLayer.SideClient && ce.IsWrite:
			kind = KindClientTcpWriteFailed
		case ce.Side == netLayer.SideClient:
			kind = KindClientTcpReadFailed
		case ce.IsWrite:
			kind = KindUpstreamWriteFailed
		default:
			kind = KindUpstreamReadFailed
		}
		return &TaskError{Kind: kind, Detail: ce.Err}
	}
	return &TaskError{Kind: KindInternalAdapterError, Detail: err}
}
