package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/corelocation/engine/internal/logx"
)

func TestMetricsEndpointExposesRecordedCounters(t *testing.T) {
	s := NewServer(logx.Noop())

	s.RecordFixAdmitted()
	s.RecordFixSuppressed("distance_filter")
	s.RecordProviderError("ProviderTimeout")
	s.RecordProviderFallback()
	s.RecordRegionTransition("home", "entry")
	s.RecordCacheHit("gpsdaemon")
	s.RecordCacheMiss("gpsdaemon")
	s.SetSchedulerMode(2)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"locationd_fixes_admitted_total 1",
		`locationd_fixes_suppressed_total{reason="distance_filter"} 1`,
		`locationd_provider_errors_total{kind="ProviderTimeout"} 1`,
		"locationd_provider_fallbacks_total 1",
		`locationd_region_transitions_total{direction="entry",region="home"} 1`,
		`locationd_provider_cache_hits_total{provider="gpsdaemon"} 1`,
		`locationd_provider_cache_misses_total{provider="gpsdaemon"} 1`,
		"locationd_scheduler_mode 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestHealthzEndpoint(t *testing.T) {
	s := NewServer(logx.Noop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
