package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Auth
	AuthResults    *prometheus.CounterVec
	GuardDecisions *prometheus.CounterVec

	// Realtime
	WSConnections prometheus.Gauge
	WSRoomOps     *prometheus.CounterVec
	WSEventsTotal *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devicewatch",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "devicewatch",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "devicewatch",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "devicewatch",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devicewatch",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		AuthResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devicewatch",
				Subsystem: "auth",
				Name:      "results_total",
				Help:      "Auth operation outcomes.",
			},
			[]string{"op", "result"}, // op=login|register|forgot|reset|logout
		),
		GuardDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devicewatch",
				Subsystem: "auth",
				Name:      "guard_decisions_total",
				Help:      "Route guard decisions.",
			},
			[]string{"decision"}, // public|allowed|rejected|redirected|forbidden
		),
		WSConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "devicewatch",
				Subsystem: "realtime",
				Name:      "connections",
				Help:      "Open realtime connections (per process).",
			},
		),
		WSRoomOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devicewatch",
				Subsystem: "realtime",
				Name:      "room_ops_total",
				Help:      "Room joins and leaves.",
			},
			[]string{"op"},
		),
		WSEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devicewatch",
				Subsystem: "realtime",
				Name:      "events_total",
				Help:      "Per-connection event deliveries by result.",
			},
			[]string{"result"}, // delivered|dropped
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.AuthResults, p.GuardDecisions,
		p.WSConnections, p.WSRoomOps, p.WSEventsTotal,
	)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}

func (p *Prom) AuthResult(op, result string) {
	p.AuthResults.WithLabelValues(op, result).Inc()
}

func (p *Prom) GuardDecision(decision string) {
	p.GuardDecisions.WithLabelValues(decision).Inc()
}

func (p *Prom) ConnectionOpened() { p.WSConnections.Inc() }
func (p *Prom) ConnectionClosed() { p.WSConnections.Dec() }

func (p *Prom) RoomJoined() { p.WSRoomOps.WithLabelValues("join").Inc() }
func (p *Prom) RoomLeft()   { p.WSRoomOps.WithLabelValues("leave").Inc() }

func (p *Prom) EventsDelivered(n int) {
	if n > 0 {
		p.WSEventsTotal.WithLabelValues("delivered").Add(float64(n))
	}
}

func (p *Prom) EventsDropped(n int) {
	if n > 0 {
		p.WSEventsTotal.WithLabelValues("dropped").Add(float64(n))
	}
}
