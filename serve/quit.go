package serve

import (
	"sync"

	"go.uber.org/atomic"
)

// QuitPolicy 由一个 server 下的所有 task 共享. 调用 ForceQuit 后, 所有仍在转发中的 task 会尽快结束.
type QuitPolicy struct {
	forceQuit atomic.Bool
	once      sync.Once
	done      chan struct{}
}

func NewQuitPolicy() *QuitPolicy {
	return &QuitPolicy{done: make(chan struct{})}
}

func (q *QuitPolicy) ForceQuit() {
	q.forceQuit.Store(true)
	q.once.Do(func() {
		close(q.done)
	})
}

func (q *QuitPolicy) ForceQuitting() bool {
	return q.forceQuit.Load()
}

// Done 在 ForceQuit 被调用后关闭
func (q *QuitPolicy) Done() <-chan struct{} {
	return q.done
}
