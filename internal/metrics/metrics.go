// Package metrics exposes Prometheus counters and the /metrics endpoint.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Set holds the application's counters.
type Set struct {
	ConversionsTotal      *prometheus.CounterVec
	ProviderRequestsTotal *prometheus.CounterVec
	QuotaRejectionsTotal  prometheus.Counter
	AlertsFiredTotal      prometheus.Counter
	SubscriptionsTotal    prometheus.Counter
}

// NewSet registers the counters on the given registerer. Pass a fresh
// prometheus.NewRegistry in tests to avoid duplicate registration.
func NewSet(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		ConversionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversions_total",
				Help: "Conversion requests by outcome",
			},
			[]string{"result"},
		),
		ProviderRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_requests_total",
				Help: "Upstream rate lookups by provider and status",
			},
			[]string{"provider", "status"},
		),
		QuotaRejectionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "quota_rejections_total",
				Help: "Conversion requests rejected by the daily quota",
			},
		),
		AlertsFiredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "alerts_fired_total",
				Help: "Price alerts that crossed their target and notified",
			},
		),
		SubscriptionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "subscriptions_total",
				Help: "Paid subscriptions settled",
			},
		),
	}
}

// The recording methods tolerate a nil receiver so callers can run with
// metrics disabled.

// Conversion counts one conversion request by outcome.
func (s *Set) Conversion(result string) {
	if s == nil {
		return
	}
	s.ConversionsTotal.WithLabelValues(result).Inc()
}

// ProviderRequest counts one upstream lookup.
func (s *Set) ProviderRequest(provider, status string) {
	if s == nil {
		return
	}
	s.ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
}

// QuotaRejected counts one quota rejection.
func (s *Set) QuotaRejected() {
	if s == nil {
		return
	}
	s.QuotaRejectionsTotal.Inc()
}

// AlertFired counts one delivered alert.
func (s *Set) AlertFired() {
	if s == nil {
		return
	}
	s.AlertsFiredTotal.Inc()
}

// SubscriptionSettled counts one paid subscription.
func (s *Set) SubscriptionSettled() {
	if s == nil {
		return
	}
	s.SubscriptionsTotal.Inc()
}

// Server serves the Prometheus scrape endpoint.
type Server struct {
	http   *http.Server
	logger zerolog.Logger
}

// NewServer builds a /metrics server for the given gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start serves until Shutdown. It returns once the listener stops.
func (s *Server) Start() {
	s.logger.Info().Str("addr", s.http.Addr).Msg("metrics endpoint listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error().Err(err).Msg("metrics server failed")
	}
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
