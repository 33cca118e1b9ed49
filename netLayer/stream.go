package netLayer

import (
	"io"
)

// StreamWriter 是可以半关闭的写端, *net.TCPConn 实现了它.
type StreamWriter interface {
	io.Writer
	CloseWrite() error
}

type Flusher interface {
	Flush() error
}

// Flush 若w 实现了 Flusher 则调用之
func Flush(w io.Writer) error {
	if f, ok := w.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// CloseWrite 半关闭 w; 若w不支持半关闭 但是是 io.Closer, 则直接关闭.
func CloseWrite(w io.Writer) error {
	switch c := w.(type) {
	case interface{ CloseWrite() error }:
		return c.CloseWrite()
	case io.Closer:
		return c.Close()
	}
	return nil
}

// WriteFlushShutdown 依次 写入, flush, 半关闭. 第一个错误发生时即返回.
func WriteFlushShutdown(w io.Writer, bs []byte) error {
	if _, err := w.Write(bs); err != nil {
		return err
	}
	if err := Flush(w); err != nil {
		return err
	}
	return CloseWrite(w)
}
