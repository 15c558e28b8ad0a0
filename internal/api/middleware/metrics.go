package middleware

import (
	"net/http"
	"sync/atomic"
)

// Metrics holds process-wide request counters.
type Metrics struct {
	Requests atomic.Int64
	Errors   atomic.Int64
	// InFlight counts requests currently being served, which for chat
	// includes open event streams.
	InFlight atomic.Int64
}

// MetricsCollector counts requests, error responses, and in-flight requests.
type MetricsCollector struct {
	m *Metrics
}

func NewMetricsCollector(m *Metrics) *MetricsCollector {
	return &MetricsCollector{m: m}
}

func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.m.Requests.Add(1)
		mc.m.InFlight.Add(1)
		defer mc.m.InFlight.Add(-1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			mc.m.Errors.Add(1)
		}
	})
}
