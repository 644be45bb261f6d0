package gpsdaemon

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/corelocation/engine/internal/logx"
	"github.com/corelocation/engine/internal/provider"
)

// serveOnce accepts a single connection on the unix socket at path and
// writes response after reading the client's request line.
func serveOnce(t *testing.T, path, response string) {
	t.Helper()
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = bufio.NewReader(conn).ReadString('\n')
		_, _ = conn.Write([]byte(response))
	}()
}

func TestRequestLocationParsesFix(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "gpsd.sock")
	serveOnce(t, socket, `{"lat":40.7128,"lon":-74.0060,"alt":10,"epx":5,"epv":8,"track":90,"speed":1.5,"has_fix":true}`+"\n")

	p := New(logx.Noop(), socket)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	f, err := p.RequestLocation(ctx)
	if err != nil {
		t.Fatalf("RequestLocation: %v", err)
	}
	if f.Coordinate.Latitude != 40.7128 || f.Coordinate.Longitude != -74.0060 {
		t.Errorf("unexpected coordinate: %+v", f.Coordinate)
	}
	if f.HorizontalAccuracy != 5 {
		t.Errorf("HorizontalAccuracy = %v, want 5", f.HorizontalAccuracy)
	}
}

func TestRequestLocationNoFix(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "gpsd.sock")
	serveOnce(t, socket, `{"has_fix":false}`+"\n")

	p := New(logx.Noop(), socket)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := p.RequestLocation(ctx)
	kind, ok := provider.KindOf(err)
	if !ok || kind != provider.ProviderNoFix {
		t.Fatalf("err kind = %v (ok=%v), want ProviderNoFix", kind, ok)
	}
}

func TestRequestLocationDialFailureIsUnavailable(t *testing.T) {
	p := New(logx.Noop(), filepath.Join(t.TempDir(), "does-not-exist.sock"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := p.RequestLocation(ctx)
	kind, ok := provider.KindOf(err)
	if !ok || kind != provider.ProviderUnavailable {
		t.Fatalf("err kind = %v (ok=%v), want ProviderUnavailable", kind, ok)
	}
}
