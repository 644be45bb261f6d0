// Package gpsdaemon implements internal/provider.Provider over a local
// GPS daemon's line-delimited JSON status socket, grounded on the
// teacher's StarlinkAPICollector
// (pkg/gps/comprehensive_starlink_gps.go): dial a local endpoint,
// request the daemon's current fix with a bounded timeout, decode a
// JSON payload into a typed record. There the endpoint was Starlink's
// local diagnostics HTTP API; here it is a Unix domain socket exposed
// by gpsd-like daemons, reduced to the single "give me your best
// current fix" request this engine needs.
package gpsdaemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
	"github.com/corelocation/engine/internal/logx"
	"github.com/corelocation/engine/internal/provider"
)

// ID is this provider's stable identifier.
const ID = "gpsdaemon"

// DefaultPollingInterval matches the typical NMEA fix cadence of a
// local GPS daemon.
const DefaultPollingInterval = 1 * time.Second

// report is the wire shape the daemon emits for a POLL request.
type report struct {
	Latitude           float64 `json:"lat"`
	Longitude          float64 `json:"lon"`
	Altitude           float64 `json:"alt"`
	HorizontalAccuracy float64 `json:"epx"` // meters
	VerticalAccuracy   float64 `json:"epv"` // meters
	Course             float64 `json:"track"`
	Speed              float64 `json:"speed"`
	HasFix             bool    `json:"has_fix"`
}

// Provider polls a local GPS daemon over a Unix domain socket.
type Provider struct {
	logger *logx.Logger
	socket string
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
}

// New creates a Provider dialing socket (e.g. "/var/run/gpsd.sock").
func New(logger *logx.Logger, socket string) *Provider {
	d := net.Dialer{}
	return &Provider{
		logger: logger,
		socket: socket,
		dial:   d.DialContext,
	}
}

// ID implements provider.Provider.
func (p *Provider) ID() string { return ID }

// PollingInterval implements provider.Provider.
func (p *Provider) PollingInterval() time.Duration { return DefaultPollingInterval }

// RequestLocation dials the daemon socket, sends a POLL request, and
// decodes the single-line JSON response into a Fix.
func (p *Provider) RequestLocation(ctx context.Context) (fix.Fix, error) {
	conn, err := p.dial(ctx, "unix", p.socket)
	if err != nil {
		return fix.Fix{}, provider.NewError(provider.ProviderUnavailable,
			fmt.Sprintf("dial gps daemon socket %s", p.socket), err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte("POLL\n")); err != nil {
		return fix.Fix{}, provider.NewError(provider.ProviderUnavailable, "write poll request", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		if ctx.Err() != nil {
			return fix.Fix{}, provider.NewError(provider.ProviderTimeout, "gps daemon response timed out", err)
		}
		return fix.Fix{}, provider.NewError(provider.ProviderInvalidResponse, "read gps daemon response", err)
	}

	var r report
	if err := json.Unmarshal([]byte(line), &r); err != nil {
		return fix.Fix{}, provider.NewError(provider.ProviderInvalidResponse, "decode gps daemon response", err)
	}
	if !r.HasFix {
		return fix.Fix{}, provider.Errorf(provider.ProviderNoFix, "gps daemon reports no current fix")
	}

	return fix.Fix{
		Coordinate:         geo.Coordinate{Latitude: r.Latitude, Longitude: r.Longitude},
		Altitude:           r.Altitude,
		HorizontalAccuracy: r.HorizontalAccuracy,
		VerticalAccuracy:   r.VerticalAccuracy,
		Course:             r.Course,
		CourseAccuracy:     fix.Unknown,
		Speed:              r.Speed,
		SpeedAccuracy:      fix.Unknown,
		Timestamp:          time.Now(),
	}, nil
}
