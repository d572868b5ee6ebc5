package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_http_requests_total",
			Help: "Total number of HTTP requests served by the sync daemon.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casesync_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "casesync_ws_connected",
			Help: "Whether the push-channel connection is currently established.",
		},
	)
	wsReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "casesync_ws_reconnects_total",
			Help: "Total number of successful push-channel reconnects.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_ws_events_total",
			Help: "Total number of push-channel events by type.",
		},
		[]string{"event"},
	)
	mergeAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_merge_applied_total",
			Help: "Messages inserted into the reconciliation store by source.",
		},
		[]string{"source"},
	)
	mergeDuplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_merge_duplicates_total",
			Help: "Incoming records dropped by the id-keyed merge rule.",
		},
		[]string{"source"},
	)
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_sends_total",
			Help: "Outbound message sends by result.",
		},
		[]string{"result"},
	)
	historyLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_history_loads_total",
			Help: "History fetches by result.",
		},
		[]string{"result"},
	)
	readReceiptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "casesync_read_receipts_total",
			Help: "Mark-read requests issued to the message store.",
		},
	)
	joinAckTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "casesync_room_join_ack_timeouts_total",
			Help: "Room joins that never received an acknowledgment in time.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "casesync_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsState,
		wsReconnectsTotal,
		wsEventsTotal,
		mergeAppliedTotal,
		mergeDuplicatesTotal,
		sendsTotal,
		historyLoadsTotal,
		readReceiptsTotal,
		joinAckTimeoutsTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func SetWSConnected(connected bool) {
	if connected {
		wsState.Set(1)
		return
	}
	wsState.Set(0)
}

func IncWSReconnect() {
	wsReconnectsTotal.Inc()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncMergeApplied(source string) {
	mergeAppliedTotal.WithLabelValues(source).Inc()
}

func IncMergeDuplicate(source string) {
	mergeDuplicatesTotal.WithLabelValues(source).Inc()
}

func IncSend(result string) {
	sendsTotal.WithLabelValues(result).Inc()
}

func IncHistoryLoad(result string) {
	historyLoadsTotal.WithLabelValues(result).Inc()
}

func IncReadReceipt() {
	readReceiptsTotal.Inc()
}

func IncJoinAckTimeout() {
	joinAckTimeoutsTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
