package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DatasetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hexstats_datasets_total",
		Help: "Total number of dataset runs started",
	})
	DatasetsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hexstats_datasets_failed_total",
		Help: "Total number of dataset runs that aborted with an error",
	})
	DatasetsSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hexstats_datasets_skipped_total",
		Help: "Total number of datasets skipped by the done marker",
	})
	StageDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hexstats_stage_duration_ms",
		Help:    "Pipeline stage duration in milliseconds",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000, 300000},
	}, []string{"stage"})
	StageFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hexstats_stage_fail_total",
		Help: "Pipeline stage failures",
	}, []string{"stage"})
	CellsTessellatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hexstats_cells_tessellated_total",
		Help: "Hex cells produced by boundary tessellation",
	})
	PixelsCountedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hexstats_pixels_counted_total",
		Help: "Raster pixels counted into category totals",
	})
	LookupMissTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hexstats_lookup_miss_total",
		Help: "Category codes with no match in the lookup table",
	})
	RowsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hexstats_rows_published_total",
		Help: "Output rows published by sink",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(DatasetsTotal)
	prometheus.MustRegister(DatasetsFailedTotal)
	prometheus.MustRegister(DatasetsSkippedTotal)
	prometheus.MustRegister(StageDurationMs)
	prometheus.MustRegister(StageFailTotal)
	prometheus.MustRegister(CellsTessellatedTotal)
	prometheus.MustRegister(PixelsCountedTotal)
	prometheus.MustRegister(LookupMissTotal)
	prometheus.MustRegister(RowsPublishedTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在批处理入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
