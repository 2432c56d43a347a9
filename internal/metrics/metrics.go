package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 流水线指标
// 所有方法对 nil 接收者安全，未开启指标时组件可直接传 nil
type Metrics struct {
	// ExternalCallDuration 外部调用耗时，labels: component(embedding|generation|store), op
	ExternalCallDuration *prometheus.HistogramVec

	// ExternalCallTotal 外部调用次数，labels: component, outcome(ok|timeout|error)
	ExternalCallTotal *prometheus.CounterVec

	// IngestTotal 入库次数，labels: outcome(success|failed)
	IngestTotal *prometheus.CounterVec

	// IngestSegments 成功写入的分段数
	IngestSegments prometheus.Counter

	// RetrievalHits 每次检索命中的分段数
	RetrievalHits prometheus.Histogram

	// QuestionTotal 出题结果，labels: outcome(ok|malformed|invalid|timeout|error)
	QuestionTotal *prometheus.CounterVec

	// HTTPRequestDuration HTTP请求耗时，labels: method, path, status
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics 创建指标并注册到 reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ExternalCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quiz_external_call_duration_seconds",
				Help:    "Duration of calls to embedding, generation and store backends",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"component", "op"},
		),
		ExternalCallTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_external_calls_total",
				Help: "Total external calls by component and outcome",
			},
			[]string{"component", "outcome"},
		),
		IngestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_ingest_total",
				Help: "Document ingestions by outcome",
			},
			[]string{"outcome"},
		),
		IngestSegments: f.NewCounter(prometheus.CounterOpts{
			Name: "quiz_ingest_segments_total",
			Help: "Segments written to the knowledge store",
		}),
		RetrievalHits: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_retrieval_hits",
			Help:    "Number of segments returned per retrieval",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		}),
		QuestionTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_questions_total",
				Help: "Question generation attempts by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quiz_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"method", "path", "status"},
		),
	}
}

// ObserveCall 记录一次外部调用
func (m *Metrics) ObserveCall(component, op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExternalCallDuration.WithLabelValues(component, op).Observe(d.Seconds())
	m.ExternalCallTotal.WithLabelValues(component, outcome).Inc()
}

// IngestDone 记录一次入库结果
func (m *Metrics) IngestDone(success bool, segments int) {
	if m == nil {
		return
	}
	if success {
		m.IngestTotal.WithLabelValues("success").Inc()
		m.IngestSegments.Add(float64(segments))
		return
	}
	m.IngestTotal.WithLabelValues("failed").Inc()
}

// RetrievalDone 记录检索命中数
func (m *Metrics) RetrievalDone(hits int) {
	if m == nil {
		return
	}
	m.RetrievalHits.Observe(float64(hits))
}

// QuestionDone 记录出题结果
func (m *Metrics) QuestionDone(outcome string) {
	if m == nil {
		return
	}
	m.QuestionTotal.WithLabelValues(outcome).Inc()
}

// HTTPRequest 记录HTTP请求耗时
func (m *Metrics) HTTPRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
