// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/chatline/internal/chat"
	"github.com/hitoshi/chatline/internal/middleware"
)

const namespace = "chatline"

// Collector はチャットのPrometheusメトリクスを収集する。
// chat.Metricsを実装する。
type Collector struct {
	connections      prometheus.Gauge
	connectionsTotal prometheus.Counter
	replaced         prometheus.Counter
	messagesAccepted prometheus.Counter
	messagesRejected *prometheus.CounterVec
	storageFailures  prometheus.Counter
	deliveries       *prometheus.CounterVec
	deliveryLatency  prometheus.Histogram
	httpPanics       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "現在接続中のWebSocket接続数",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "確立されたWebSocket接続の合計数",
		}),
		replaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_replaced_total",
			Help:      "同一ユーザーの再接続で置き換えられた接続の合計数",
		}),
		messagesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_accepted_total",
			Help:      "保存されたメッセージの合計数",
		}),
		messagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "拒否されたメッセージの理由別の合計数",
		}, []string{"reason"}),
		storageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "メッセージ保存失敗の合計数",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "接続ごとの配信結果別の合計数",
		}, []string{"result"}),
		deliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_latency_seconds",
			Help:      "1接続への配信のレイテンシ（秒）",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		httpPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_panics_total",
			Help:      "HTTPハンドラーで回復したpanicのルート別の合計数",
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.connections,
		c.connectionsTotal,
		c.replaced,
		c.messagesAccepted,
		c.messagesRejected,
		c.storageFailures,
		c.deliveries,
		c.deliveryLatency,
		c.httpPanics,
	)

	return c
}

// ConnectionOpened は接続の確立を記録する。
func (c *Collector) ConnectionOpened() {
	c.connections.Inc()
	c.connectionsTotal.Inc()
}

// ConnectionClosed は接続の終了を記録する。
func (c *Collector) ConnectionClosed() {
	c.connections.Dec()
}

// ConnectionReplaced は再接続による置き換えを記録する。
func (c *Collector) ConnectionReplaced() {
	c.replaced.Inc()
}

// MessageAccepted はメッセージの保存を記録する。
func (c *Collector) MessageAccepted() {
	c.messagesAccepted.Inc()
}

// MessageRejected はメッセージの拒否を記録する。
func (c *Collector) MessageRejected(reason string) {
	c.messagesRejected.WithLabelValues(reason).Inc()
}

// StorageFailed は保存失敗を記録する。
func (c *Collector) StorageFailed() {
	c.storageFailures.Inc()
}

// Delivered は配信成功とそのレイテンシを記録する。
func (c *Collector) Delivered(d time.Duration) {
	c.deliveries.WithLabelValues("success").Inc()
	c.deliveryLatency.Observe(d.Seconds())
}

// DeliveryFailed は配信失敗を記録する。
func (c *Collector) DeliveryFailed() {
	c.deliveries.WithLabelValues("failure").Inc()
}

// PanicRecovered はHTTPハンドラーのpanicを記録する。
func (c *Collector) PanicRecovered(route string) {
	c.httpPanics.WithLabelValues(route).Inc()
}

var (
	_ chat.Metrics             = (*Collector)(nil)
	_ middleware.PanicRecorder = (*Collector)(nil)
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
