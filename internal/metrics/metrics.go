// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 上流呼び出しの結果ラベル
const (
	OutcomeSuccess     = "success"
	OutcomeStatusError = "status_error"
	OutcomeUnavailable = "unavailable"
	OutcomeBreakerOpen = "breaker_open"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 上流クライアント、サンプラー、語彙ローダー、台帳から利用する。
type MetricsCollector interface {
	RecordUpstreamCall(target, outcome string, duration time.Duration)
	RecordSamplerDraws(draws int)
	RecordSamplerExhausted()
	RecordFacetFailure(kind string)
	RecordJudgment(action, source string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamCalls    *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	samplerDraws     prometheus.Histogram
	samplerExhausted prometheus.Counter
	facetFailures    *prometheus.CounterVec
	judgments        *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixmatch_upstream_calls_total",
			Help: "上流サービス呼び出しの合計数（呼び出し先・結果別）",
		}, []string{"target", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mixmatch_upstream_latency_seconds",
			Help:    "上流サービス呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),
		samplerDraws: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mixmatch_sampler_draws",
			Help:    "1回のレコメンドで行った抽選回数",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		}),
		samplerExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mixmatch_sampler_exhausted_total",
			Help: "抽選上限に達して未判定のカクテルが見つからなかった回数",
		}),
		facetFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixmatch_facet_failures_total",
			Help: "語彙取得に失敗して空配列に縮退した回数（種別別）",
		}, []string{"kind"}),
		judgments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixmatch_judgments_recorded_total",
			Help: "記録された判定の合計数",
		}, []string{"action", "source"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixmatch_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.upstreamCalls,
		c.upstreamLatency,
		c.samplerDraws,
		c.samplerExhausted,
		c.facetFailures,
		c.judgments,
		c.httpStatus,
	)

	return c
}

// RecordUpstreamCall は上流呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordUpstreamCall(target, outcome string, duration time.Duration) {
	c.upstreamCalls.WithLabelValues(target, outcome).Inc()
	c.upstreamLatency.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordSamplerDraws は1回のレコメンドに要した抽選回数を記録する。
func (c *Collector) RecordSamplerDraws(draws int) {
	c.samplerDraws.Observe(float64(draws))
}

// RecordSamplerExhausted は抽選上限到達を記録する。
func (c *Collector) RecordSamplerExhausted() {
	c.samplerExhausted.Inc()
}

// RecordFacetFailure は語彙の取得失敗を記録する。
func (c *Collector) RecordFacetFailure(kind string) {
	c.facetFailures.WithLabelValues(kind).Inc()
}

// RecordJudgment は判定の記録を数える。
func (c *Collector) RecordJudgment(action, source string) {
	c.judgments.WithLabelValues(action, source).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
