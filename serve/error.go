/*
Package serve 定义 连接服务层 与 拦截核心 之间共用的类型: task 错误, task notes, quit policy 以及 server 配置接口.

拦截核心中所有致命错误, 在离开核心边界时都会被转换为 *TaskError.
*/
package serve

import (
	"errors"
	"fmt"
)

type TaskErrorKind int

const (
	KindClosedByClient TaskErrorKind = iota
	KindClosedByUpstream
	KindClientTcpReadFailed
	KindClientTcpWriteFailed
	KindUpstreamReadFailed
	KindUpstreamWriteFailed
	KindUpstreamAppTimeout
	KindUpstreamAppError
	KindInternalAdapterError
	KindBlocked
	KindCanceledAsServerQuit
)

func (k TaskErrorKind) String() string {
	switch k {
	case KindClosedByClient:
		return "ClosedByClient"
	case KindClosedByUpstream:
		return "ClosedByUpstream"
	case KindClientTcpReadFailed:
		return "ClientTcpReadFailed"
	case KindClientTcpWriteFailed:
		return "ClientTcpWriteFailed"
	case KindUpstreamReadFailed:
		return "UpstreamReadFailed"
	case KindUpstreamWriteFailed:
		return "UpstreamWriteFailed"
	case KindUpstreamAppTimeout:
		return "UpstreamAppTimeout"
	case KindUpstreamAppError:
		return "UpstreamAppError"
	case KindInternalAdapterError:
		return "InternalAdapterError"
	case KindBlocked:
		return "Blocked"
	case KindCanceledAsServerQuit:
		return "CanceledAsServerQuit"
	}
	return fmt.Sprintf("TaskErrorKind(%d)", int(k))
}

// TaskError 是服务层的 task 错误. Desc 为空时使用 Kind 的描述.
type TaskError struct {
	Kind   TaskErrorKind
	Desc   string
	Detail error
}

func (e *TaskError) Error() string {
	desc := e.Desc
	if desc == "" {
		desc = e.Kind.defaultDesc()
	}
	if e.Detail != nil {
		return desc + ": " + e.Detail.Error()
	}
	return desc
}

func (e *TaskError) Unwrap() error {
	return e.Detail
}

// 同 Kind 即认为相等, 方便 errors.Is(err, serve.ErrBlocked) 这种用法
func (e *TaskError) Is(target error) bool {
	t, ok := target.(*TaskError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsSessionClosure 对应 正常的会话结束 (任意一端关闭连接), 不应以错误级别打印.
func (e *TaskError) IsSessionClosure() bool {
	switch e.Kind {
	case KindClosedByClient, KindClosedByUpstream, KindCanceledAsServerQuit:
		return true
	}
	return false
}

func (k TaskErrorKind) defaultDesc() string {
	switch k {
	case KindClosedByClient:
		return "closed by client"
	case KindClosedByUpstream:
		return "closed by upstream"
	case KindClientTcpReadFailed:
		return "client tcp read failed"
	case KindClientTcpWriteFailed:
		return "client tcp write failed"
	case KindUpstreamReadFailed:
		return "upstream read failed"
	case KindUpstreamWriteFailed:
		return "upstream write failed"
	case KindUpstreamAppTimeout:
		return "upstream app timeout"
	case KindUpstreamAppError:
		return "upstream app error"
	case KindInternalAdapterError:
		return "internal adapter error"
	case KindBlocked:
		return "blocked"
	case KindCanceledAsServerQuit:
		return "canceled as server quit"
	}
	return "unknown task error"
}

var (
	ErrClosedByClient       = &TaskError{Kind: KindClosedByClient}
	ErrClosedByUpstream     = &TaskError{Kind: KindClosedByUpstream}
	ErrBlocked              = &TaskError{Kind: KindBlocked}
	ErrCanceledAsServerQuit = &TaskError{Kind: KindCanceledAsServerQuit}
)

func NewTaskError(kind TaskErrorKind, desc string, detail error) *TaskError {
	return &TaskError{Kind: kind, Desc: desc, Detail: detail}
}

// AsTaskError 返回 err 链中的 *TaskError, 没有则返回 nil
func AsTaskError(err error) *TaskError {
	var te *TaskError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
