// 包 logger：流水线阶段计时日志，统一记录各处理阶段的关键维度（阶段名、数据集、耗时、错误）
package logger

import (
	"log/slog"
	"time"
)

// StageTimer：单个阶段的计时句柄
// 背景：核心流水线阶段（边界、网格、重投影、聚合、归一化、发布）需要一致的开始/结束日志，
// 便于按数据集定位慢阶段与失败阶段
type StageTimer struct {
	l       *slog.Logger
	stage   string
	dataset string
	start   time.Time
}

// Stage：开始一个阶段并记录开始事件
// 约束：dataset 可为空（批级阶段，如边界准备）；结束必须调用 Done 或 Fail 之一
func Stage(l *slog.Logger, stage, dataset string) *StageTimer {
	if l == nil {
		l = L()
	}
	l.Debug("stage_begin", "stage", stage, "dataset", dataset)
	return &StageTimer{l: l, stage: stage, dataset: dataset, start: time.Now()}
}

// Done：记录阶段成功与耗时
func (t *StageTimer) Done() {
	t.l.Info("stage_done",
		"stage", t.stage,
		"dataset", t.dataset,
		"duration_ms", time.Since(t.start).Milliseconds(),
	)
}

// Fail：记录阶段失败与耗时；错误继续向上传播，这里只负责留痕
func (t *StageTimer) Fail(err error) {
	t.l.Error("stage_error",
		"stage", t.stage,
		"dataset", t.dataset,
		"duration_ms", time.Since(t.start).Milliseconds(),
		"err", err,
	)
}

// DurationMs：当前耗时（毫秒），供指标上报复用同一时钟
func (t *StageTimer) DurationMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
