// Package telemetry publishes stall-monitor status snapshots to an MQTT
// broker, so dashboards and recorders can follow a session without
// polling the process.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/roverton/go-stservo/logger"
	"github.com/roverton/go-stservo/monitor"
)

// Sentinel errors of the telemetry package.
var (
	ErrNotConnected = errors.New("telemetry: broker not connected")
)

// Defaults.
const (
	// DefaultConnectTimeout bounds the initial broker connection.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultTopicPrefix is used when the broker URL carries no path.
	DefaultTopicPrefix = "stallmon"

	// statusTopic is appended to the topic prefix.
	statusTopic = "status"
)

// MQTTPublisher pushes each status snapshot to a broker topic as a JSON
// document. Publishes are QoS 0 fire-and-forget so a slow or absent
// broker never stalls the control loop.
type MQTTPublisher struct {
	client  paho.Client
	topic   string
	timeout time.Duration
	logger  logger.Logger
}

var _ monitor.Publisher = (*MQTTPublisher)(nil)

// MQTTOption is a functional option for configuring an MQTTPublisher.
type MQTTOption interface {
	apply(*MQTTPublisher)
}

type mqttOptFunc func(*MQTTPublisher)

func (f mqttOptFunc) apply(p *MQTTPublisher) { f(p) }

// WithConnectTimeout bounds how long NewMQTTPublisher waits for the
// broker connection.
func WithConnectTimeout(d time.Duration) MQTTOption {
	return mqttOptFunc(func(p *MQTTPublisher) {
		if d > 0 {
			p.timeout = d
		}
	})
}

// WithTelemetryLogger sets the logger used for dropped publishes.
func WithTelemetryLogger(l logger.Logger) MQTTOption {
	return mqttOptFunc(func(p *MQTTPublisher) {
		if l != nil {
			p.logger = l
		}
	})
}

// NewMQTTPublisher connects to the broker at brokerURL and returns a
// publisher for status snapshots.
//
// The URL takes the form scheme://host:port/prefix?client-id=name. A
// missing scheme means tcp, a missing path means the "stallmon" prefix.
// Snapshots go to <prefix>/status.
func NewMQTTPublisher(brokerURL string, opts ...MQTTOption) (*MQTTPublisher, error) {
	options, prefix, err := clientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}

	p := &MQTTPublisher{
		topic:   prefix + "/" + statusTopic,
		timeout: DefaultConnectTimeout,
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt.apply(p)
	}

	p.client = paho.NewClient(options)

	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		p.client.Disconnect(0)
		return nil, fmt.Errorf("%w: connect to %s timed out after %v", ErrNotConnected, brokerURL, p.timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	return p, nil
}

// Publish sends one snapshot to the status topic. It never blocks on
// broker delivery.
func (p *MQTTPublisher) Publish(st monitor.Status) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := encodeStatus(st)
	if err != nil {
		return err
	}

	p.client.Publish(p.topic, 0, false, payload)

	return nil
}

// Topic returns the topic snapshots are published to.
func (p *MQTTPublisher) Topic() string {
	return p.topic
}

// Close disconnects from the broker, allowing a short drain of in-flight
// messages.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// encodeStatus renders a snapshot as the wire JSON document. Elapsed is
// written in milliseconds rather than nanoseconds.
func encodeStatus(st monitor.Status) ([]byte, error) {
	doc := struct {
		monitor.Status
		ElapsedMS int64 `json:"elapsed_ms"`
	}{Status: st, ElapsedMS: st.Elapsed.Milliseconds()}

	return json.Marshal(doc)
}

// clientOptionsFromURL builds paho client options from a broker URL and
// extracts the topic prefix from the URL path.
func clientOptionsFromURL(brokerURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", fmt.Errorf("telemetry: invalid broker url %q: %w", brokerURL, err)
	}
	if u.Host == "" {
		return nil, "", fmt.Errorf("telemetry: broker url %q has no host", brokerURL)
	}

	scheme := u.Scheme
	if scheme == "" || scheme == "mqtt" {
		scheme = "tcp"
	}

	prefix := strings.Trim(u.Path, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	options := paho.NewClientOptions()
	options.AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetCleanSession(true)

	if u.User != nil {
		options.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			options.SetPassword(pwd)
		}
	}

	if clientID := u.Query().Get("client-id"); clientID != "" {
		options.SetClientID(clientID)
	}

	return options, prefix, nil
}
