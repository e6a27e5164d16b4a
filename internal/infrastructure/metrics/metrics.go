// Package metrics exposes Prometheus metrics for sources, rates and the HTTP API
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. It is an
// entity.Observer keeping per-rate gauges and counters up to date.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	GrabsTotal       *prometheus.CounterVec
	GrabDuration     *prometheus.HistogramVec
	RateUpdatesTotal *prometheus.CounterVec
	RateChangesTotal *prometheus.CounterVec
	BuyRate          *prometheus.GaugeVec
	SaleRate         *prometheus.GaugeVec
	TrackedRates     prometheus.Gauge
}

// NewMetrics registers every metric on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	pair := []string{"source", "base", "destination"}

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		GrabsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grabs_total",
				Help: "Total number of source downloads by outcome",
			},
			[]string{"source", "result"},
		),

		GrabDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grab_duration_seconds",
				Help:    "Time spent downloading and extracting a source",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),

		RateUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_updates_total",
				Help: "Total number of exchange rate updates",
			},
			pair,
		),

		RateChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_changes_total",
				Help: "Total number of updates that moved buy or sale",
			},
			pair,
		),

		BuyRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "buy_rate",
				Help: "Latest buy rate",
			},
			pair,
		),

		SaleRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sale_rate",
				Help: "Latest sale rate",
			},
			pair,
		),

		TrackedRates: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracked_rates",
				Help: "Number of exchange rates tracked by the service",
			},
		),
	}
}

// Registry returns the registry the metrics live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveGrab records one download of a source
func (m *Metrics) ObserveGrab(source string, duration time.Duration, err error) {
	m.GrabsTotal.WithLabelValues(source, grabResult(err)).Inc()
	m.GrabDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func grabResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, entity.ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, entity.ErrSourceLayoutChanged), errors.Is(err, entity.ErrMalformedPayload):
		return "layout_changed"
	case errors.Is(err, entity.ErrInvalidFieldValue):
		return "invalid_value"
	case errors.Is(err, entity.ErrUnexpectedResultCount):
		return "unexpected_count"
	default:
		return "error"
	}
}

// ExchangeRateCreated sets the rate gauges of a newly tracked rate
func (m *Metrics) ExchangeRateCreated(current entity.Snapshot) error {
	m.TrackedRates.Inc()
	m.setRates(current)
	return nil
}

// ExchangeRateUpdated counts the update and sets the rate gauges
func (m *Metrics) ExchangeRateUpdated(previous, current entity.Snapshot) error {
	m.RateUpdatesTotal.WithLabelValues(labels(current)...).Inc()
	m.setRates(current)
	return nil
}

// ExchangeRateChanged counts the change
func (m *Metrics) ExchangeRateChanged(previous, current entity.Snapshot) error {
	m.RateChangesTotal.WithLabelValues(labels(current)...).Inc()
	return nil
}

// Forget drops the series of a rate that is no longer tracked
func (m *Metrics) Forget(key entity.Key) {
	l := []string{key.Source, key.Base, key.Destination}
	if m.BuyRate.DeleteLabelValues(l...) {
		m.TrackedRates.Dec()
	}
	m.SaleRate.DeleteLabelValues(l...)
}

func (m *Metrics) setRates(s entity.Snapshot) {
	m.BuyRate.WithLabelValues(labels(s)...).Set(s.BuyRate)
	m.SaleRate.WithLabelValues(labels(s)...).Set(s.SaleRate)
}

func labels(s entity.Snapshot) []string {
	return []string{s.Source, s.BaseCurrency, s.DestinationCurrency}
}

// Middleware counts and times HTTP requests by route template
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}

		m.HTTPRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
