package metrics

import (
	"time"

	"go.uber.org/zap"
)

// Emitter 是 计数输出后端.
type Emitter interface {
	Count(name string, value int64)
}

// LogEmitter 将计数以 结构化日志 输出.
type LogEmitter struct {
	Logger *zap.Logger
	Tags   []zap.Field
}

func (le *LogEmitter) Count(name string, value int64) {
	if le.Logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(le.Tags)+2)
	fields = append(fields, zap.String("metric", name), zap.Int64("count", value))
	fields = append(fields, le.Tags...)
	le.Logger.Info("count", fields...)
}

// RunEmitLoop 每隔 interval 输出一次, 直到 quit 关闭. 阻塞.
func RunEmitLoop(e Emitter, s *BackendStats, interval time.Duration, quit <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			EmitStats(e, s)
		case <-quit:
			EmitStats(e, s)
			return
		}
	}
}
