package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/corelocation/engine/internal/fix"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.LogLevel != DefaultLogLevel {
		t.Fatalf("LogLevel = %q, want %q", c.LogLevel, DefaultLogLevel)
	}
	if c.DesiredAccuracy != fix.HundredMeters {
		t.Fatalf("DesiredAccuracy = %v, want HundredMeters", c.DesiredAccuracy)
	}
}

func TestLoadParsesSections(t *testing.T) {
	doc := `
# comment line
config session 'main'
	option log_level 'debug'
	option desired_accuracy 'best'
	option distance_filter_m '25'
	option allows_background '1'
	option pauses_automatically '0'

config metrics 'main'
	option enabled '1'
	option listen_addr ':9999'

config mqtt 'main'
	option broker 'tcp://broker.local:1883'
	option topic 'fleet/loc'
	option qos '2'

config providers 'main'
	option ipgeo_api_key 'secret-key'
`
	path := filepath.Join(t.TempDir(), "locationd.conf")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", c.LogLevel)
	}
	if c.DesiredAccuracy != fix.Best {
		t.Errorf("DesiredAccuracy = %v, want Best", c.DesiredAccuracy)
	}
	if c.DistanceFilterM != 25 {
		t.Errorf("DistanceFilterM = %v, want 25", c.DistanceFilterM)
	}
	if !c.AllowsBackground {
		t.Errorf("AllowsBackground = false, want true")
	}
	if c.PausesAutomatically {
		t.Errorf("PausesAutomatically = true, want false")
	}
	if !c.MetricsEnabled || c.MetricsAddr != ":9999" {
		t.Errorf("metrics section not applied: %+v", c)
	}
	if c.MQTTBroker != "tcp://broker.local:1883" || c.MQTTTopic != "fleet/loc" || c.MQTTQoS != 2 {
		t.Errorf("mqtt section not applied: %+v", c)
	}
	if c.IPGeoAPIKey != "secret-key" {
		t.Errorf("IPGeoAPIKey = %q, want secret-key", c.IPGeoAPIKey)
	}
}

func TestLoadParsesProviderCacheOptions(t *testing.T) {
	doc := `
config providers 'main'
	option gpsdaemon_socket '/run/gpsd.sock'
	option cache_enabled '1'
	option cache_db_path '/var/lib/locationd/test-cache.db'
`
	path := filepath.Join(t.TempDir(), "locationd.conf")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.GPSDaemonSocket != "/run/gpsd.sock" {
		t.Errorf("GPSDaemonSocket = %q, want /run/gpsd.sock", c.GPSDaemonSocket)
	}
	if !c.ProviderCacheEnabled {
		t.Errorf("ProviderCacheEnabled = false, want true")
	}
	if c.ProviderCacheDBPath != "/var/lib/locationd/test-cache.db" {
		t.Errorf("ProviderCacheDBPath = %q, want /var/lib/locationd/test-cache.db", c.ProviderCacheDBPath)
	}
}

func TestLoadAcceptsDistanceFilterDisabledSentinel(t *testing.T) {
	doc := "config session 'main'\n\toption distance_filter_m '-1'\n"
	path := filepath.Join(t.TempDir(), "locationd.conf")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DistanceFilterM != -1 {
		t.Fatalf("DistanceFilterM = %v, want -1 (distfilter.Disabled)", c.DistanceFilterM)
	}
}

func TestLoadIgnoresInvalidQoS(t *testing.T) {
	doc := "config mqtt 'main'\n\toption qos '9'\n"
	path := filepath.Join(t.TempDir(), "locationd.conf")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// An out-of-range qos value is simply ignored by applyMQTTOption (it
	// keeps the prior valid value), so this document loads successfully
	// with the default QoS rather than failing validation.
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.MQTTQoS != DefaultMQTTQoS {
		t.Fatalf("MQTTQoS = %d, want default %d", c.MQTTQoS, DefaultMQTTQoS)
	}
}
