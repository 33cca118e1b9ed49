/*
Package metrics 收集 后端(detour设备) 的计数, 并定期交给 Emitter 输出.

所有计数都是单调递增的, 每次 EmitStats 时取出并清零.
*/
package metrics

import (
	"github.com/e1732a364fed/vs_inspect/utils"
	"go.uber.org/atomic"
)

// BackendStats 可被多个 task 并发累加.
type BackendStats struct {
	refreshTotal atomic.Uint64
	refreshOk    atomic.Uint64
	requestTotal atomic.Uint64
	requestOk    atomic.Uint64
}

func NewBackendStats() *BackendStats {
	return &BackendStats{}
}

func (s *BackendStats) AddRefreshTotal() { s.refreshTotal.Inc() }
func (s *BackendStats) AddRefreshOk()    { s.refreshOk.Inc() }
func (s *BackendStats) AddRequestTotal() { s.requestTotal.Inc() }
func (s *BackendStats) AddRequestOk()    { s.requestOk.Inc() }

func (s *BackendStats) TakeRefreshTotal() uint64 { return s.refreshTotal.Swap(0) }
func (s *BackendStats) TakeRefreshOk() uint64    { return s.refreshOk.Swap(0) }
func (s *BackendStats) TakeRequestTotal() uint64 { return s.requestTotal.Swap(0) }
func (s *BackendStats) TakeRequestOk() uint64    { return s.requestOk.Swap(0) }

const (
	MetricRefreshTotal = "backend.refresh_total"
	MetricRefreshOk    = "backend.refresh_ok"
	MetricRequestTotal = "backend.request_total"
	MetricRequestOk    = "backend.request_ok"
)

// EmitStats 取出并清零 s 中的四个计数, 超出 int64 的值会被截为 math.MaxInt64.
func EmitStats(e Emitter, s *BackendStats) {
	e.Count(MetricRefreshTotal, utils.SaturatingInt64(s.TakeRefreshTotal()))
	e.Count(MetricRefreshOk, utils.SaturatingInt64(s.TakeRefreshOk()))
	e.Count(MetricRequestTotal, utils.SaturatingInt64(s.TakeRequestTotal()))
	e.Count(MetricRequestOk, utils.SaturatingInt64(s.TakeRequestOk()))
}
