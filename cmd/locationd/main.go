// Command locationd is the daemon host process: it loads configuration,
// wires the provider registry, constructs one Session, and exposes it
// over the metrics and control-API HTTP surfaces, grounded on the
// teacher's cmd/autonomyd/main.go — flag parsing, PID-file guarding,
// config load, component construction, then block on a signal channel
// until SIGINT/SIGTERM/SIGHUP, followed by a bounded graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"googlemaps.github.io/maps"

	"github.com/corelocation/engine/internal/audit"
	"github.com/corelocation/engine/internal/config"
	"github.com/corelocation/engine/internal/controlapi"
	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
	"github.com/corelocation/engine/internal/logx"
	"github.com/corelocation/engine/internal/metrics"
	"github.com/corelocation/engine/internal/pidfile"
	"github.com/corelocation/engine/internal/predictive"
	"github.com/corelocation/engine/internal/provider"
	"github.com/corelocation/engine/internal/providers/gpsdaemon"
	"github.com/corelocation/engine/internal/providers/ipgeo"
	"github.com/corelocation/engine/internal/providers/wifiap"
	"github.com/corelocation/engine/internal/region"
	"github.com/corelocation/engine/internal/registry"
	"github.com/corelocation/engine/internal/session"
	"github.com/corelocation/engine/internal/telemetry"
)

const (
	AppName    = "locationd"
	AppVersion = "1.0.0"
)

var (
	configPath = flag.String("config", "/etc/config/locationd", "path to the UCI-style configuration file")
	pidPath    = flag.String("pid-file", "/var/run/locationd.pid", "path to the PID file")
	logLevel   = flag.String("log-level", "", "override log level (trace|debug|info|warn|error)")
	version    = flag.Bool("version", false, "show version information")
	force      = flag.Bool("force", false, "force start by removing a stale PID file")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: load config: %v\n", AppName, err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := logx.New(cfg.LogLevel, AppName)

	pidFile := pidfile.New(*pidPath, logger)
	running, existingPID, err := pidFile.CheckRunning()
	if err != nil {
		logger.Error("failed to check for a running instance", "error", err)
		os.Exit(1)
	}
	if running {
		if !*force {
			logger.Error("another instance is already running", "existing_pid", existingPID, "pid_file", *pidPath)
			fmt.Fprintf(os.Stderr, "Error: %s is already running with PID %d\nUse --force to override.\n", AppName, existingPID)
			os.Exit(1)
		}
		logger.Warn("another instance appears to be running, forcing start", "existing_pid", existingPID)
		if err := pidFile.ForceRemove(); err != nil {
			logger.Error("failed to remove stale pid file", "error", err)
			os.Exit(1)
		}
	}
	if err := pidFile.Create(); err != nil {
		logger.Error("failed to create pid file", "error", err, "path", *pidPath)
		os.Exit(1)
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Error("failed to remove pid file on shutdown", "error", err)
		}
	}()

	logger.Info("starting location daemon", "version", AppVersion, "pid", os.Getpid(), "config", *configPath)

	metricsServer := metrics.NewServer(logger)

	reg := registry.New(logger)
	registerProviders(reg, cfg, logger, metricsServer)
	reg.SetFallbackRecorder(metricsServer.RecordProviderFallback)

	var auditStore *audit.Store
	if cfg.AuditEnabled {
		auditStore, err = audit.Open(cfg.AuditDBPath, logger)
		if err != nil {
			logger.Error("failed to open audit store", "error", err)
			os.Exit(1)
		}
		defer auditStore.Close()
	}

	var predictor *predictive.Analyzer
	if cfg.PredictiveEnabled {
		predictor = predictive.New(logger)
	}

	telemetryPublisher := telemetry.New(logger, telemetry.Config{
		Broker:   cfg.MQTTBroker,
		ClientID: fmt.Sprintf("%s-%d", AppName, os.Getpid()),
		Topic:    cfg.MQTTTopic,
		QoS:      byte(cfg.MQTTQoS),
		Enabled:  cfg.MQTTBroker != "",
	})
	if err := telemetryPublisher.Connect(); err != nil {
		logger.Warn("telemetry publisher failed to connect, continuing without it", "error", err)
	}
	defer telemetryPublisher.Disconnect()

	if cfg.MetricsEnabled {
		if err := metricsServer.Start(cfg.MetricsAddr); err != nil {
			logger.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer metricsServer.Stop()
	}

	sessionCfg := session.Config{
		DesiredAccuracy:     cfg.DesiredAccuracy,
		DistanceFilter:      cfg.DistanceFilterM,
		AllowsBackground:    cfg.AllowsBackground,
		PausesAutomatically: cfg.PausesAutomatically,
	}

	delegate := &fanoutDelegate{
		logger:     logger,
		metrics:    metricsServer,
		telemetry:  telemetryPublisher,
		audit:      auditStore,
		predictive: predictor,
	}
	sess := session.New(logger, reg, delegate, sessionCfg)
	defer sess.Close()

	if cfg.ControlAPIEnabled {
		controlServer := controlapi.New(logger, sess)
		delegate.controlAPI = controlServer
		if err := controlServer.Start(cfg.ControlAPIAddr); err != nil {
			logger.Error("failed to start control api server", "error", err)
			os.Exit(1)
		}
		defer controlServer.Stop()
	}

	sess.StartUpdatingLocation()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigChan
	logger.Info("received shutdown signal", "signal", sig.String())

	done := make(chan struct{})
	go func() {
		sess.StopUpdatingLocation()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("graceful shutdown completed")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timeout exceeded, exiting anyway")
	}
}

// cacheRecorder is satisfied by both provider.Cache and
// provider.PersistentCache (which embeds Cache), letting
// registerProviders wire cache-hit/miss metrics the same way regardless
// of which one backs a given provider.
type cacheRecorder interface {
	SetCacheRecorder(onHit, onMiss func())
}

// wireCacheMetrics registers id-labeled hit/miss counters against any
// cache implementing cacheRecorder.
func wireCacheMetrics(c cacheRecorder, id string, m *metrics.Server) {
	c.SetCacheRecorder(
		func() { m.RecordCacheHit(id) },
		func() { m.RecordCacheMiss(id) },
	)
}

// registerProviders wires every configured concrete provider into reg,
// wrapping each with RateLimited then Cache per §4.1/§4.2. A provider
// whose required configuration is absent is simply skipped; the daemon
// degrades to whichever providers are actually configured rather than
// failing to start.
func registerProviders(reg *registry.Registry, cfg *config.Config, logger *logx.Logger, metricsServer *metrics.Server) {
	if cfg.GPSDaemonSocket != "" {
		backend := gpsdaemon.New(logger.WithField("provider", gpsdaemon.ID), cfg.GPSDaemonSocket)
		rateLimited := provider.NewRateLimited(backend)

		var p provider.Provider
		if cfg.ProviderCacheEnabled {
			persistent, err := provider.NewPersistentCache(rateLimited, cfg.ProviderCacheDBPath)
			if err != nil {
				logger.Error("failed to open persistent provider cache, falling back to in-memory cache", "error", err)
				cache := provider.NewCache(rateLimited)
				wireCacheMetrics(cache, gpsdaemon.ID, metricsServer)
				p = cache
			} else {
				wireCacheMetrics(persistent, gpsdaemon.ID, metricsServer)
				p = persistent
			}
		} else {
			cache := provider.NewCache(rateLimited)
			wireCacheMetrics(cache, gpsdaemon.ID, metricsServer)
			p = cache
		}

		reg.Register(fix.Navigation, p)
		reg.Register(fix.Best, p)
		reg.Register(fix.TenMeters, p)
		logger.Info("registered gpsdaemon provider", "socket", cfg.GPSDaemonSocket, "persistent_cache", cfg.ProviderCacheEnabled)
	}

	if cfg.IPGeoAPIKey != "" {
		backend, err := ipgeo.New(cfg.IPGeoAPIKey, hostObserver{})
		if err != nil {
			logger.Error("failed to construct ipgeo provider, skipping", "error", err)
		} else {
			cache := provider.NewCache(provider.NewRateLimited(backend))
			wireCacheMetrics(cache, ipgeo.ID, metricsServer)
			reg.Register(fix.Kilometer, cache)
			reg.Register(fix.ThreeKilometers, cache)
			logger.Info("registered ipgeo provider")
		}
	}

	if cfg.WiFiAPInterface != "" {
		backend := wifiap.New(cfg.WiFiAPInterface, iwScanner{}, &ipgeoResolver{apiKey: cfg.IPGeoAPIKey})
		cache := provider.NewCache(provider.NewRateLimited(backend))
		wireCacheMetrics(cache, wifiap.ID, metricsServer)
		reg.Register(fix.HundredMeters, cache)
		logger.Info("registered wifiap provider", "iface", cfg.WiFiAPInterface)
	}
}

// hostObserver reads nearby cell towers and WiFi access points from the
// host's modem/WiFi stack. No portable standard-library or pack
// interface enumerates cellular neighbor cells, so this reports no
// observations; a deployment with real modem access supplies its own
// Observer by constructing internal/providers/ipgeo.Provider directly
// rather than going through this command's default wiring.
type hostObserver struct{}

func (hostObserver) CellTowers(ctx context.Context) ([]maps.GeolocationCellTower, error) {
	return nil, nil
}

func (hostObserver) WiFiAccessPoints(ctx context.Context) ([]maps.GeolocationWiFiAccessPoint, error) {
	return nil, nil
}

// iwScanner performs a WiFi scan via the `iw` command-line tool, the
// conventional Linux interface for raw BSSID/RSSI scan results when no
// portable library exposes them.
type iwScanner struct{}

func (iwScanner) Scan(ctx context.Context, iface string) ([]wifiap.AccessPoint, error) {
	out, err := exec.CommandContext(ctx, "iw", "dev", iface, "scan").Output()
	if err != nil {
		return nil, fmt.Errorf("iw scan: %w", err)
	}

	var aps []wifiap.AccessPoint
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "BSS "):
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				bssid := strings.TrimSuffix(fields[1], "(on")
				aps = append(aps, wifiap.AccessPoint{BSSID: bssid})
			}
		case strings.HasPrefix(line, "signal:") && len(aps) > 0:
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				var dbm float64
				fmt.Sscanf(fields[1], "%f", &dbm)
				aps[len(aps)-1].SignalDBm = int(dbm)
			}
		}
	}
	return aps, nil
}

// ipgeoResolver resolves a WiFi scan to a position through the same
// Google Geolocation API internal/providers/ipgeo uses, so a WiFi-only
// scan and a cell+WiFi observation both triangulate through one
// backend.
type ipgeoResolver struct {
	apiKey string
}

func (r *ipgeoResolver) Resolve(ctx context.Context, aps []wifiap.AccessPoint) (fix.Fix, error) {
	client, err := maps.NewClient(maps.WithAPIKey(r.apiKey))
	if err != nil {
		return fix.Fix{}, fmt.Errorf("ipgeoResolver: construct client: %w", err)
	}

	wifiAPs := make([]maps.GeolocationWiFiAccessPoint, 0, len(aps))
	for _, ap := range aps {
		wifiAPs = append(wifiAPs, maps.GeolocationWiFiAccessPoint{
			MACAddress:     ap.BSSID,
			SignalStrength: float32(ap.SignalDBm),
		})
	}

	result, err := client.Geolocate(ctx, &maps.GeolocationRequest{WiFiAccessPoints: wifiAPs})
	if err != nil {
		return fix.Fix{}, fmt.Errorf("ipgeoResolver: geolocate: %w", err)
	}

	return fix.Fix{
		Coordinate: geo.Coordinate{
			Latitude:  result.Location.Lat,
			Longitude: result.Location.Lng,
		},
		HorizontalAccuracy: result.Accuracy,
		VerticalAccuracy:   fix.Unknown,
		Course:             fix.Unknown,
		CourseAccuracy:     fix.Unknown,
		Speed:              fix.Unknown,
		SpeedAccuracy:      fix.Unknown,
		Timestamp:          time.Now(),
	}, nil
}

// fanoutDelegate implements session.Delegate by forwarding every event
// to the control-API server (if enabled, for its WebSocket broadcast and
// cached status), recording fixes and region transitions to the audit
// ledger and telemetry publisher, feeding the predictive analyzer, and
// updating Prometheus counters — composing several single-purpose sinks
// behind the one Delegate interface a Session accepts.
type fanoutDelegate struct {
	session.BaseDelegate

	logger     *logx.Logger
	controlAPI *controlapi.Server
	metrics    *metrics.Server
	telemetry  *telemetry.Publisher
	audit      *audit.Store
	predictive *predictive.Analyzer
}

func (d *fanoutDelegate) OnUpdate(f fix.Fix) {
	if d.controlAPI != nil {
		d.controlAPI.OnUpdate(f)
	}
	d.metrics.RecordFixAdmitted()

	if d.predictive != nil {
		d.predictive.Observe(f)
		estimate := d.predictive.Estimate()
		d.logger.Debug("predictive estimate", "trend", estimate.Trend, "reasoning", estimate.Reasoning)
	}

	if err := d.telemetry.PublishFix(f); err != nil {
		d.logger.Warn("failed to publish fix to telemetry", "error", err)
	}

	if d.audit != nil {
		if err := d.audit.RecordFix(f); err != nil {
			d.logger.Error("failed to record fix to audit ledger", "error", err)
		}
	}
}

func (d *fanoutDelegate) OnFail(err error) {
	if d.controlAPI != nil {
		d.controlAPI.OnFail(err)
	}
	if kind, ok := provider.KindOf(err); ok {
		d.metrics.RecordProviderError(kind.String())
	}
	d.logger.Warn("location request failed", "error", err)
}

func (d *fanoutDelegate) OnAuthorizationChanged(status session.AuthStatus) {
	if d.controlAPI != nil {
		d.controlAPI.OnAuthorizationChanged(status)
	}
}

func (d *fanoutDelegate) OnEnterRegion(r region.Region) {
	d.handleRegionEvent(r, true)
}

func (d *fanoutDelegate) OnExitRegion(r region.Region) {
	d.handleRegionEvent(r, false)
}

func (d *fanoutDelegate) handleRegionEvent(r region.Region, entry bool) {
	if d.controlAPI != nil {
		if entry {
			d.controlAPI.OnEnterRegion(r)
		} else {
			d.controlAPI.OnExitRegion(r)
		}
	}

	direction := "exit"
	if entry {
		direction = "entry"
	}
	d.metrics.RecordRegionTransition(r.ID, direction)

	if err := d.telemetry.PublishRegionEvent(region.Transition{Region: r, Entry: entry}); err != nil {
		d.logger.Warn("failed to publish region event to telemetry", "error", err)
	}

	if d.audit != nil {
		if err := d.audit.RecordRegionEvent(r.ID, entry, time.Now()); err != nil {
			d.logger.Error("failed to record region event to audit ledger", "error", err)
		}
	}
}

func (d *fanoutDelegate) OnDetermineState(state region.State, r region.Region) {
	if d.controlAPI != nil {
		d.controlAPI.OnDetermineState(state, r)
	}
}

func (d *fanoutDelegate) OnMonitoringFailed(r *region.Region, err error) {
	if d.controlAPI != nil {
		d.controlAPI.OnMonitoringFailed(r, err)
	}
	d.logger.Warn("region monitoring failed", "error", err)
}

func (d *fanoutDelegate) OnStartMonitoring(r region.Region) {
	if d.controlAPI != nil {
		d.controlAPI.OnStartMonitoring(r)
	}
}

var _ session.Delegate = (*fanoutDelegate)(nil)
