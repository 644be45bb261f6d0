// Package telemetry publishes Fix and region-transition events to an
// MQTT broker, grounded on the teacher's pkg/mqtt/client.go: the same
// connect/publish-JSON/disconnect shape, generalized from autonomy's
// member/status/health topics down to a single fix-stream topic plus a
// region-event topic, and with the teacher's message-batching/rate
// limiting stripped since one session's fix cadence never approaches
// the rates that justified it in the original multi-member daemon.
package telemetry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/logx"
	"github.com/corelocation/engine/internal/region"
)

// Config configures the telemetry publisher.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Retain   bool
	Enabled  bool
}

// Publisher publishes engine events to MQTT. A disabled Publisher's
// methods are no-ops, so callers never need to branch on Config.Enabled
// themselves.
type Publisher struct {
	logger *logx.Logger
	config Config

	mu        sync.Mutex
	client    MQTT.Client
	connected bool
}

// New creates a Publisher. Connect must be called before Publish* has
// any effect.
func New(logger *logx.Logger, cfg Config) *Publisher {
	return &Publisher{logger: logger, config: cfg}
}

// Connect dials the configured broker. A no-op if telemetry is
// disabled.
func (p *Publisher) Connect() error {
	if !p.config.Enabled {
		p.logger.Debug("telemetry publisher disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(MQTT.Client) {
		p.mu.Lock()
		p.connected = true
		p.mu.Unlock()
		p.logger.Info("telemetry connected", "broker", p.config.Broker)
	})
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		p.logger.Warn("telemetry connection lost", "error", err)
	})

	client := MQTT.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry: connect to %s: %w", p.config.Broker, token.Error())
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	return nil
}

// Disconnect closes the broker connection, if any.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.connected {
		p.client.Disconnect(250)
		p.connected = false
	}
}

// fixMessage is the wire shape published for every reported Fix.
type fixMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"horizontal_accuracy_m"`
	Source    string    `json:"source"`
}

// PublishFix publishes f to the configured fix topic.
func (p *Publisher) PublishFix(f fix.Fix) error {
	return p.publishJSON(p.config.Topic, fixMessage{
		Timestamp: f.Timestamp,
		Latitude:  f.Coordinate.Latitude,
		Longitude: f.Coordinate.Longitude,
		Accuracy:  f.HorizontalAccuracy,
		Source:    f.Source,
	})
}

// regionEventMessage is the wire shape published for a region crossing.
type regionEventMessage struct {
	Timestamp time.Time `json:"timestamp"`
	RegionID  string    `json:"region_id"`
	Entry     bool      `json:"entry"`
}

// PublishRegionEvent publishes a region Transition to <topic>/regions.
func (p *Publisher) PublishRegionEvent(t region.Transition) error {
	return p.publishJSON(p.config.Topic+"/regions", regionEventMessage{
		Timestamp: time.Now(),
		RegionID:  t.Region.ID,
		Entry:     t.Entry,
	})
}

func (p *Publisher) publishJSON(topic string, payload interface{}) error {
	if !p.config.Enabled {
		return nil
	}

	p.mu.Lock()
	client := p.client
	connected := p.connected
	p.mu.Unlock()

	if client == nil || !connected {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telemetry: marshal: %w", err)
	}

	token := client.Publish(topic, p.config.QoS, p.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry: publish %s: %w", topic, token.Error())
	}
	return nil
}
