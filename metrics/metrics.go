// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "srsgen"

// Registry 独立注册表，CLI 模式写 textfile，serve 模式暴露 /metrics。
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// LLM 指标
	LLMCallTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_total",
			Help:      "Total number of generation attempts",
		},
		[]string{"provider", "model", "status"}, // status: success/rate_limited/transient/terminal
	)

	LLMCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Generation attempt duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	// 章节生成结果
	SectionTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "section_total",
			Help:      "Section generation outcomes",
		},
		[]string{"section", "outcome"}, // outcome: generated/placeholder
	)

	DiagramTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "diagram",
			Name:      "total",
			Help:      "Diagram stage outcomes per kind",
		},
		[]string{"kind", "stage", "status"}, // stage: generate/validate/render
	)

	// HTTP 指标（serve 模式）
	HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	JobsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "jobs_in_flight",
			Help:      "SRS jobs currently running",
		},
	)

	PipelineDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end SRS generation duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200},
		},
	)
)

// WriteTextfile 以 node_exporter textfile 格式落盘。
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}

// Handler 返回 /metrics 处理器。
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
