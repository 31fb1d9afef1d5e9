package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ticket_queue"

var (
	TicketsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tickets_issued_total",
		Help:      "Tickets handed out",
	})
	TicketsRefused = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tickets_refused_total",
		Help:      "Take requests refused because no day was open",
	})
	TicketsCalled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tickets_called_total",
		Help:      "Tickets moved to in_progress by call-next",
	})
	TicketsFinished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tickets_finished_total",
		Help:      "Tickets completed",
	})
	CurrentOverwritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "current_overwritten_total",
		Help:      "call-next replaced a current ticket that was never finished",
	})
	DayTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "day_transitions_total",
			Help:      "start-day and end-day invocations",
		},
		[]string{"action"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registerOnce sync.Once
)

// Register регистрирует коллекторы в reg (nil — реестр по умолчанию).
// Повторные вызовы — no-op.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			TicketsIssued, TicketsRefused, TicketsCalled, TicketsFinished,
			CurrentOverwritten, DayTransitions, httpRequests, httpLatency,
		)
	})
}

// GinMiddleware считает запросы и латентность по маршруту.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
