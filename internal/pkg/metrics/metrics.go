package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// チケット操作の総数（operation: purchase/reserve/confirm/...、status: success/rejected/error）
	TicketOperationsTotal *prometheus.CounterVec

	// 状態別のチケット数
	TicketsByState *prometheus.GaugeVec

	// スイープで失効させた予約の総数
	SweptReservationsTotal prometheus.Counter

	// コマンド履歴の深さ（stack: history/redo）
	CommandHistoryDepth *prometheus.GaugeVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		TicketOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_operations_total",
				Help: "Total number of ticket lifecycle operations",
			},
			[]string{"operation", "status"},
		),
		TicketsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickets_by_state",
				Help: "Current number of tickets per lifecycle state",
			},
			[]string{"state"},
		),
		SweptReservationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swept_reservations_total",
				Help: "Total number of reservations expired by the sweeper",
			},
		),
		CommandHistoryDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "command_history_depth",
				Help: "Current depth of the command history stacks",
			},
			[]string{"stack"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TicketOperationsTotal,
		m.TicketsByState,
		m.SweptReservationsTotal,
		m.CommandHistoryDepth,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
