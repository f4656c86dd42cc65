// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 通知の結果ラベル
const (
	NotifySent    = "sent"
	NotifyFailed  = "failed"
	NotifyDropped = "dropped"
)

// 状態遷移の結果ラベル
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、通知ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordGateDenial(procedure, gate string)
	RecordConferenceCreated()
	RecordTransition(transition, outcome string)
	RecordStoreTimeout(operation string)
	RecordNotification(outcome string)
	RecordNotifyLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gateDenials   *prometheus.CounterVec
	created       prometheus.Counter
	transitions   *prometheus.CounterVec
	storeTimeouts *prometheus.CounterVec
	notifications *prometheus.CounterVec
	notifyLatency prometheus.Histogram
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gateDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confman_gate_denials_total",
			Help: "認可ゲートによる拒否の合計数",
		}, []string{"procedure", "gate"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confman_conferences_created_total",
			Help: "作成されたカンファレンスの合計数",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confman_transitions_total",
			Help: "カンファレンスの状態遷移の試行数",
		}, []string{"transition", "outcome"}),
		storeTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confman_store_timeouts_total",
			Help: "データストア呼び出しのタイムアウト数",
		}, []string{"operation"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confman_notifications_total",
			Help: "管理者通知の結果別の合計数",
		}, []string{"outcome"}),
		notifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "confman_notify_latency_seconds",
			Help:    "通知1件の送信レイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.gateDenials,
		c.created,
		c.transitions,
		c.storeTimeouts,
		c.notifications,
		c.notifyLatency,
		c.httpStatus,
	)

	return c
}

// RecordGateDenial はゲートによる拒否を記録する。
func (c *Collector) RecordGateDenial(procedure, gate string) {
	c.gateDenials.WithLabelValues(procedure, gate).Inc()
}

// RecordConferenceCreated はカンファレンスの作成を記録する。
func (c *Collector) RecordConferenceCreated() {
	c.created.Inc()
}

// RecordTransition は状態遷移の試行結果を記録する。
func (c *Collector) RecordTransition(transition, outcome string) {
	c.transitions.WithLabelValues(transition, outcome).Inc()
}

// RecordStoreTimeout はデータストアのタイムアウトを記録する。
func (c *Collector) RecordStoreTimeout(operation string) {
	c.storeTimeouts.WithLabelValues(operation).Inc()
}

// RecordNotification は通知の結果を記録する。
func (c *Collector) RecordNotification(outcome string) {
	c.notifications.WithLabelValues(outcome).Inc()
}

// RecordNotifyLatency は通知の送信レイテンシを記録する。
func (c *Collector) RecordNotifyLatency(duration time.Duration) {
	c.notifyLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
