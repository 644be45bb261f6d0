// Command locationctl is a thin HTTP client for locationd's control
// API, grounded on the teacher's cmd/autonomyctl/main.go: a flat set of
// boolean/string flags, one flag per operation, each dispatched to its
// own handle* function, with a shared --format flag selecting between
// human-readable and JSON output.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	addr    = flag.String("addr", "http://127.0.0.1:8088", "locationd control API base address")
	timeout = flag.Duration("timeout", 10*time.Second, "request timeout")
	format  = flag.String("format", "standard", "output format: standard, json")
	version = flag.Bool("version", false, "show version information")

	status = flag.Bool("status", false, "show session status")

	setAccuracy  = flag.String("set-accuracy", "", "set desired accuracy tier (Navigation|Best|TenMeters|HundredMeters|Kilometer|ThreeKilometers)")
	setDistance  = flag.Float64("set-distance-filter", -1, "set the distance filter in meters (0 disables it)")
	setBG        = flag.String("set-allows-background", "", "set allows-background (true|false)")
	setAutopause = flag.String("set-pauses-automatically", "", "set pauses-automatically (true|false)")

	regionsList   = flag.Bool("regions", false, "list monitored regions")
	regionAdd     = flag.String("add-region", "", "add a region: id,lat,lon,radius_m,notify_entry,notify_exit")
	regionRemove  = flag.String("remove-region", "", "remove a region by id")
	regionState   = flag.String("region-state", "", "query a region's current state by id")
)

const (
	AppName    = "locationctl"
	AppVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := &client{base: *addr, http: &http.Client{Timeout: *timeout}}

	var err error
	switch {
	case *status:
		err = client.getStatus(ctx)
	case *setAccuracy != "" || *setDistance >= 0 || *setBG != "" || *setAutopause != "":
		err = client.setConfig(ctx)
	case *regionsList:
		err = client.listRegions(ctx)
	case *regionAdd != "":
		err = client.addRegion(ctx, *regionAdd)
	case *regionRemove != "":
		err = client.removeRegion(ctx, *regionRemove)
	case *regionState != "":
		err = client.getRegionState(ctx, *regionState)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	http *http.Client
}

func (c *client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	return data, nil
}

func (c *client) printResult(data []byte) {
	if *format == "json" {
		fmt.Println(string(data))
		return
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(pretty.String())
}

func (c *client) getStatus(ctx context.Context) error {
	data, err := c.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return err
	}
	c.printResult(data)
	return nil
}

func (c *client) setConfig(ctx context.Context) error {
	req := map[string]interface{}{}
	if *setAccuracy != "" {
		req["desired_accuracy"] = *setAccuracy
	}
	if *setDistance >= 0 {
		req["distance_filter_m"] = *setDistance
	}
	if *setBG != "" {
		req["allows_background"] = *setBG == "true"
	}
	if *setAutopause != "" {
		req["pauses_automatically"] = *setAutopause == "true"
	}

	data, err := c.do(ctx, http.MethodPost, "/config", req)
	if err != nil {
		return err
	}
	c.printResult(data)
	return nil
}

func (c *client) listRegions(ctx context.Context) error {
	data, err := c.do(ctx, http.MethodGet, "/regions", nil)
	if err != nil {
		return err
	}
	c.printResult(data)
	return nil
}

func (c *client) addRegion(ctx context.Context, spec string) error {
	var lat, lon, radius float64
	var notifyEntry, notifyExit bool
	comma := bytes.IndexByte([]byte(spec), ',')
	if comma <= 0 {
		return fmt.Errorf("invalid --add-region spec %q, want id,lat,lon,radius_m,notify_entry,notify_exit", spec)
	}
	id := spec[:comma]
	n, err := fmt.Sscanf(spec[comma+1:], "%f,%f,%f,%t,%t", &lat, &lon, &radius, &notifyEntry, &notifyExit)
	if err != nil || n != 5 {
		return fmt.Errorf("invalid --add-region spec %q, want id,lat,lon,radius_m,notify_entry,notify_exit", spec)
	}

	req := map[string]interface{}{
		"id":              id,
		"latitude":        lat,
		"longitude":       lon,
		"radius_m":        radius,
		"notify_on_entry": notifyEntry,
		"notify_on_exit":  notifyExit,
	}
	data, err := c.do(ctx, http.MethodPost, "/regions", req)
	if err != nil {
		return err
	}
	c.printResult(data)
	return nil
}

func (c *client) removeRegion(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/regions/"+id, nil)
	if err != nil {
		return err
	}
	fmt.Printf("region %q removed\n", id)
	return nil
}

func (c *client) getRegionState(ctx context.Context, id string) error {
	data, err := c.do(ctx, http.MethodGet, "/regions/"+id+"/state", nil)
	if err != nil {
		return err
	}
	c.printResult(data)
	return nil
}
