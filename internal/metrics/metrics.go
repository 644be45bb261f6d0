// Package metrics exposes the engine's operational counters over HTTP
// in Prometheus exposition format, grounded on the sibling starfail
// repo's pkg/metrics/server.go: a Server struct owning a set of
// registered collectors plus a promhttp-backed HTTP listener,
// generalized from per-member WAN metrics down to the fix/provider/
// region/cache counters this engine produces. Unlike the teacher, each
// Server uses its own prometheus.Registry rather than the global
// DefaultRegisterer, so more than one Server (as in tests) can coexist
// in a process without a duplicate-registration panic.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corelocation/engine/internal/logx"
)

// Server owns the engine's Prometheus collectors and an HTTP listener
// exposing them at /metrics.
type Server struct {
	logger *logx.Logger
	server *http.Server

	fixesAdmitted     prometheus.Counter
	fixesSuppressed   *prometheus.CounterVec
	providerErrors    *prometheus.CounterVec
	providerFallbacks prometheus.Counter
	regionTransitions *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	schedulerMode     prometheus.Gauge
}

// NewServer constructs a Server and registers every collector against a
// fresh registry.
func NewServer(logger *logx.Logger) *Server {
	s := &Server{logger: logger}

	s.fixesAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "locationd_fixes_admitted_total",
		Help: "Total number of fixes that passed the distance filter and reached the delegate.",
	})
	s.fixesSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "locationd_fixes_suppressed_total",
		Help: "Total number of fixes discarded by the distance filter.",
	}, []string{"reason"})
	s.providerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "locationd_provider_errors_total",
		Help: "Total number of provider errors by error kind.",
	}, []string{"kind"})
	s.providerFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "locationd_provider_fallbacks_total",
		Help: "Total number of times the registry advanced to the next provider on the fallback ladder.",
	})
	s.regionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "locationd_region_transitions_total",
		Help: "Total number of region entry/exit events, by region and direction.",
	}, []string{"region", "direction"})
	s.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "locationd_provider_cache_hits_total",
		Help: "Total number of provider cache reads served from the cached fix.",
	}, []string{"provider"})
	s.cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "locationd_provider_cache_misses_total",
		Help: "Total number of provider cache reads that called the backend.",
	}, []string{"provider"})
	s.schedulerMode = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "locationd_scheduler_mode",
		Help: "Current adaptive scheduler mode (0=Foreground, 1=Background, 2=Stationary).",
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		s.fixesAdmitted,
		s.fixesSuppressed,
		s.providerErrors,
		s.providerFallbacks,
		s.regionTransitions,
		s.cacheHits,
		s.cacheMisses,
		s.schedulerMode,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.healthHandler)
	s.server = &http.Server{Handler: mux}

	return s
}

// Start begins serving /metrics on addr. Non-blocking: the HTTP server
// runs on its own goroutine.
func (s *Server) Start(addr string) error {
	s.server.Addr = addr
	s.logger.Info("starting metrics server", "addr", addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"healthy"}`)
}

// RecordFixAdmitted increments the admitted-fix counter.
func (s *Server) RecordFixAdmitted() { s.fixesAdmitted.Inc() }

// RecordFixSuppressed increments the suppressed-fix counter for reason
// (e.g. "distance_filter").
func (s *Server) RecordFixSuppressed(reason string) {
	s.fixesSuppressed.WithLabelValues(reason).Inc()
}

// RecordProviderError increments the provider-error counter for kind.
func (s *Server) RecordProviderError(kind string) {
	s.providerErrors.WithLabelValues(kind).Inc()
}

// RecordProviderFallback increments the fallback-ladder-advance counter.
func (s *Server) RecordProviderFallback() { s.providerFallbacks.Inc() }

// RecordRegionTransition increments the region-transition counter for a
// given region and direction ("entry" or "exit").
func (s *Server) RecordRegionTransition(regionID, direction string) {
	s.regionTransitions.WithLabelValues(regionID, direction).Inc()
}

// RecordCacheHit increments the cache-hit counter for provider.
func (s *Server) RecordCacheHit(provider string) {
	s.cacheHits.WithLabelValues(provider).Inc()
}

// RecordCacheMiss increments the cache-miss counter for provider.
func (s *Server) RecordCacheMiss(provider string) {
	s.cacheMisses.WithLabelValues(provider).Inc()
}

// SetSchedulerMode sets the current scheduler mode gauge (0, 1, or 2).
func (s *Server) SetSchedulerMode(mode int) {
	s.schedulerMode.Set(float64(mode))
}
