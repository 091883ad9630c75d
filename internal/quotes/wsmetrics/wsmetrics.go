package wsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_subscribers",
		Help: "Active stream subscribers",
	})
	OpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_subscriber_open_total",
		Help: "Total subscribers registered",
	})
	CloseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_subscriber_close_total",
		Help: "Total subscribers removed, partitioned by reason",
	}, []string{"reason"})

	SubOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sub_ops_total",
		Help: "Total subscription operations",
	}, []string{"op"}) // sub/unsub

	PublishTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_publish_total",
		Help: "Total records published to the hub",
	})
	MsgsOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_msgs_out_total",
		Help: "Total frames written to subscribers",
	})
	BytesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_bytes_out_total",
		Help: "Total bytes written to subscribers",
	})
	WriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_write_errors_total",
		Help: "Total frame write errors and timeouts",
	})
	DroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_dropped_total",
		Help: "Total frames dropped",
	}, []string{"why"})

	PingSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_ping_sent_total",
		Help: "Total ping sent",
	})
	PingErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_ping_errors_total",
		Help: "Total ping send errors",
	})
	PongRecvTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_pong_recv_total",
		Help: "Total pong received",
	})

	WriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ws_write_duration_seconds",
		Help:    "Duration of a single frame write",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms -> ~4s
	})
)

func OnOpen() {
	Subscribers.Inc()
	OpenTotal.Inc()
}

func OnClose(reason string) {
	Subscribers.Dec()
	CloseTotal.WithLabelValues(reason).Inc()
}

func ObserveWrite(bytes int, dur time.Duration, err error) {
	WriteDuration.Observe(dur.Seconds())
	if err != nil {
		WriteErrorsTotal.Inc()
		return
	}
	MsgsOutTotal.Inc()
	BytesOutTotal.Add(float64(bytes))
}
