// Package config loads the daemon's UCI-style configuration: a flat
// "config <type> '<name>'" / "option <key> '<value>'" text format,
// parsed the way the teacher's pkg/uci/config.go parses
// /etc/config/autonomy, generalized from its sprawling member/threshold
// sections down to the sections this engine actually needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/corelocation/engine/internal/distfilter"
	"github.com/corelocation/engine/internal/fix"
)

// Config is the daemon's full runtime configuration, built from
// defaults and then overridden by whatever sections are present in the
// UCI file.
type Config struct {
	LogLevel string
	LogFile  string

	DesiredAccuracy     fix.AccuracyTier
	DistanceFilterM     float64
	AllowsBackground    bool
	PausesAutomatically bool

	MetricsEnabled bool
	MetricsAddr    string

	ControlAPIEnabled bool
	ControlAPIAddr    string

	MQTTBroker string
	MQTTTopic  string
	MQTTQoS    int

	AuditEnabled bool
	AuditDBPath  string

	PredictiveEnabled bool

	IPGeoAPIKey string

	GPSDaemonSocket string
	WiFiAPInterface string

	ProviderCacheEnabled bool
	ProviderCacheDBPath  string
}

// Default configuration values, mirroring spec.md's fixed constants
// where the engine has one, and otherwise picking conservative,
// always-on-for-a-single-device defaults.
const (
	DefaultLogLevel            = "info"
	DefaultDistanceFilter      = 10.0
	DefaultMetricsAddr         = ":9090"
	DefaultControlAddr         = ":8088"
	DefaultMQTTBroker          = "tcp://localhost:1883"
	DefaultMQTTTopic           = "corelocation/fix"
	DefaultMQTTQoS             = 1
	DefaultAuditDBPath         = "/var/lib/locationd/audit.db"
	DefaultProviderCacheDBPath = "/var/lib/locationd/providercache.db"
)

func setDefaults(c *Config) {
	c.LogLevel = DefaultLogLevel
	c.LogFile = ""

	c.DesiredAccuracy = fix.HundredMeters
	c.DistanceFilterM = DefaultDistanceFilter
	c.AllowsBackground = false
	c.PausesAutomatically = true

	c.MetricsEnabled = false
	c.MetricsAddr = DefaultMetricsAddr

	c.ControlAPIEnabled = true
	c.ControlAPIAddr = DefaultControlAddr

	c.MQTTBroker = DefaultMQTTBroker
	c.MQTTTopic = DefaultMQTTTopic
	c.MQTTQoS = DefaultMQTTQoS

	c.AuditEnabled = false
	c.AuditDBPath = DefaultAuditDBPath

	c.PredictiveEnabled = false

	c.ProviderCacheEnabled = false
	c.ProviderCacheDBPath = DefaultProviderCacheDBPath
}

// Load reads the UCI-style file at path, applying its options over the
// built-in defaults. A missing file is not an error: Load returns the
// defaults, matching the teacher's "return default config if file
// doesn't exist" fallback.
func Load(path string) (*Config, error) {
	c := &Config{}
	setDefaults(c)

	if path == "" {
		return c, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := c.parse(string(data)); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// parse walks a UCI document line by line, tracking the current "config
// <type> '<name>'" block and routing each "option" line to the handler
// for that block's type.
func (c *Config) parse(data string) error {
	var sectionType string

	for _, raw := range strings.Split(data, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "config ") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				sectionType = parts[1]
			}
			continue
		}

		if !strings.HasPrefix(line, "option ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		key := parts[1]
		value := strings.Trim(strings.Join(parts[2:], " "), "'\"")
		c.applyOption(sectionType, key, value)
	}

	return nil
}

func (c *Config) applyOption(sectionType, key, value string) {
	switch sectionType {
	case "session":
		c.applySessionOption(key, value)
	case "metrics":
		c.applyMetricsOption(key, value)
	case "controlapi":
		c.applyControlAPIOption(key, value)
	case "mqtt":
		c.applyMQTTOption(key, value)
	case "audit":
		c.applyAuditOption(key, value)
	case "predictive":
		if key == "enabled" {
			c.PredictiveEnabled = value == "1"
		}
	case "providers":
		c.applyProvidersOption(key, value)
	case "locationd":
		c.applySessionOption(key, value) // legacy: single-section configs
	}
}

func (c *Config) applySessionOption(key, value string) {
	switch key {
	case "log_level":
		if isValidLogLevel(value) {
			c.LogLevel = value
		}
	case "log_file":
		c.LogFile = value
	case "desired_accuracy":
		if tier, ok := parseTier(value); ok {
			c.DesiredAccuracy = tier
		}
	case "distance_filter_m":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			c.DistanceFilterM = v
		}
	case "allows_background":
		c.AllowsBackground = value == "1"
	case "pauses_automatically":
		c.PausesAutomatically = value == "1"
	}
}

func (c *Config) applyMetricsOption(key, value string) {
	switch key {
	case "enabled":
		c.MetricsEnabled = value == "1"
	case "listen_addr":
		c.MetricsAddr = value
	}
}

func (c *Config) applyControlAPIOption(key, value string) {
	switch key {
	case "enabled":
		c.ControlAPIEnabled = value == "1"
	case "listen_addr":
		c.ControlAPIAddr = value
	}
}

func (c *Config) applyMQTTOption(key, value string) {
	switch key {
	case "broker":
		c.MQTTBroker = value
	case "topic":
		c.MQTTTopic = value
	case "qos":
		if v, err := strconv.Atoi(value); err == nil && v >= 0 && v <= 2 {
			c.MQTTQoS = v
		}
	}
}

func (c *Config) applyAuditOption(key, value string) {
	switch key {
	case "enabled":
		c.AuditEnabled = value == "1"
	case "db_path":
		c.AuditDBPath = value
	}
}

func (c *Config) applyProvidersOption(key, value string) {
	switch key {
	case "ipgeo_api_key":
		c.IPGeoAPIKey = value
	case "gpsdaemon_socket":
		c.GPSDaemonSocket = value
	case "wifiap_interface":
		c.WiFiAPInterface = value
	case "cache_enabled":
		c.ProviderCacheEnabled = value == "1"
	case "cache_db_path":
		c.ProviderCacheDBPath = value
	}
}

func parseTier(value string) (fix.AccuracyTier, bool) {
	switch strings.ToLower(value) {
	case "navigation":
		return fix.Navigation, true
	case "best":
		return fix.Best, true
	case "tenmeters", "ten_meters":
		return fix.TenMeters, true
	case "hundredmeters", "hundred_meters":
		return fix.HundredMeters, true
	case "kilometer":
		return fix.Kilometer, true
	case "threekilometers", "three_kilometers":
		return fix.ThreeKilometers, true
	default:
		return 0, false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

// validate checks the loaded Config for invariant violations that would
// make the daemon unsafe to start.
func (c *Config) validate() error {
	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1, or 2, got %d", c.MQTTQoS)
	}
	// distfilter.Disabled (-1) is the documented sentinel for "filtering
	// off"; distfilter.Filter itself treats any non-positive threshold
	// the same way, so anything below that sentinel is the only value
	// actually rejected.
	if c.DistanceFilterM < distfilter.Disabled {
		return fmt.Errorf("distance_filter_m must be >= %v, got %v", distfilter.Disabled, c.DistanceFilterM)
	}
	return nil
}
