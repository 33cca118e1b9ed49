package netLayer

import (
	"context"
	"io"
	"sync"

	"golang.org/x/time/rate"
)

// ReadStats 与 WriteStats 接收转发的字节数; 实现者需要是并发安全的.
type ReadStats interface {
	AddRead(n int)
}

type WriteStats interface {
	AddWrite(n int)
}

// NewRateLimiter 返回一个 每秒 bytesPerSec 字节的限速器, bytesPerSec<=0 时返回nil, 表示不限速.
func NewRateLimiter(bytesPerSec int) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
}

// waitN 按 limiter 的 burst 分段等待, 因为 WaitN 不接受大于 burst 的 n
func waitN(l *rate.Limiter, n int) error {
	if l == nil {
		return nil
	}
	burst := l.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := l.WaitN(context.Background(), step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// LimitedReader 统计并限制 从 R 读取的速度. 限速是在读取之后等待的.
type LimitedReader struct {
	R       io.Reader
	Limiter *rate.Limiter //可为nil

	mu    sync.RWMutex
	stats ReadStats
}

func NewLimitedReader(r io.Reader, limiter *rate.Limiter, stats ReadStats) *LimitedReader {
	return &LimitedReader{R: r, Limiter: limiter, stats: stats}
}

func (lr *LimitedReader) Read(p []byte) (n int, err error) {
	n, err = lr.R.Read(p)
	if n > 0 {
		lr.mu.RLock()
		if lr.stats != nil {
			lr.stats.AddRead(n)
		}
		lr.mu.RUnlock()

		if e := waitN(lr.Limiter, n); e != nil && err == nil {
			err = e
		}
	}
	return
}

// ResetStats 完全替换 统计对象
func (lr *LimitedReader) ResetStats(stats ReadStats) {
	lr.mu.Lock()
	lr.stats = stats
	lr.mu.Unlock()
}

// LimitedWriter 统计并限制 向 W 写入的速度.
type LimitedWriter struct {
	W       io.Writer
	Limiter *rate.Limiter //可为nil

	mu    sync.RWMutex
	stats WriteStats
}

func NewLimitedWriter(w io.Writer, limiter *rate.Limiter, stats WriteStats) *LimitedWriter {
	return &LimitedWriter{W: w, Limiter: limiter, stats: stats}
}

func (lw *LimitedWriter) Write(p []byte) (n int, err error) {
	if err = waitN(lw.Limiter, len(p)); err != nil {
		return
	}
	n, err = lw.W.Write(p)
	if n > 0 {
		lw.mu.RLock()
		if lw.stats != nil {
			lw.stats.AddWrite(n)
		}
		lw.mu.RUnlock()
	}
	return
}

// ResetStats 完全替换 统计对象, 不会与之前的合并.
func (lw *LimitedWriter) ResetStats(stats WriteStats) {
	lw.mu.Lock()
	lw.stats = stats
	lw.mu.Unlock()
}

func (lw *LimitedWriter) Stats() WriteStats {
	lw.mu.RLock()
	defer lw.mu.RUnlock()
	return lw.stats
}

func (lw *LimitedWriter) Flush() error {
	return Flush(lw.W)
}

func (lw *LimitedWriter) CloseWrite() error {
	return CloseWrite(lw.W)
}
