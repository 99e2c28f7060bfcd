// Package metrics provides Prometheus metrics for the Coworker API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes.
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusError   = "error"
)

// Metrics holds all Prometheus metrics for the API.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Generation metrics
	GenerationRequestsTotal *prometheus.CounterVec
	GenerationDuration      *prometheus.HistogramVec

	// Chat metrics
	ChatTurnsTotal    *prometheus.CounterVec
	RateLimitedTotal  prometheus.Counter
	TranscriptDropped prometheus.Counter
}

// New creates all metrics on a dedicated registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coworker_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coworker_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.GenerationRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coworker_generation_requests_total",
			Help: "Total number of text generation calls",
		},
		[]string{"provider", "status"},
	)

	m.GenerationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coworker_generation_duration_seconds",
			Help:    "Duration of text generation calls in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"provider"},
	)

	m.ChatTurnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coworker_chat_turns_total",
			Help: "Total number of chat turns by conversation state",
		},
		[]string{"conversation"},
	)

	m.RateLimitedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "coworker_chat_rate_limited_total",
			Help: "Total number of chat requests rejected by the rate limiter",
		},
	)

	m.TranscriptDropped = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "coworker_transcript_events_dropped_total",
			Help: "Total number of transcript events dropped because the queue was full",
		},
	)

	return m
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordGeneration records a text generation call.
func (m *Metrics) RecordGeneration(provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GenerationRequestsTotal.WithLabelValues(provider, status).Inc()
	m.GenerationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordChatTurn records a completed chat turn. newConversation reports
// whether the turn started a conversation.
func (m *Metrics) RecordChatTurn(newConversation bool) {
	if m == nil {
		return
	}
	state := "existing"
	if newConversation {
		state = "new"
	}
	m.ChatTurnsTotal.WithLabelValues(state).Inc()
}

// RecordRateLimited records a rejected chat request.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// RecordTranscriptDropped records a transcript event lost to backpressure.
func (m *Metrics) RecordTranscriptDropped() {
	if m == nil {
		return
	}
	m.TranscriptDropped.Inc()
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordHTTPRequest(r.Method, route, status, time.Since(start))
	})
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
