// Package events announces decoded display sets to an MQTT broker as
// msgpack payloads.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

var ErrNotConnected = errors.New("events: mqtt not connected")

// Event describes one decoded display set.
type Event struct {
	ID       string `msgpack:"id"`
	Stream   string `msgpack:"stream"`
	Session  string `msgpack:"session,omitempty"`
	PID      uint16 `msgpack:"pid"`
	Index    int    `msgpack:"index"`
	PTS      uint32 `msgpack:"pts"`
	PTSMilli int64  `msgpack:"pts_ms"`
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Objects  int    `msgpack:"objects"`
	File     string `msgpack:"file,omitempty"`
	Error    string `msgpack:"error,omitempty"`
}

// NewEvent returns an Event with a fresh id.
func NewEvent(stream string, pid uint16, index int) Event {
	return Event{ID: uuid.NewString(), Stream: stream, PID: pid, Index: index}
}

// Encode returns the msgpack payload for e.
func Encode(e Event) ([]byte, error) {
	b, err := msgpack.Marshal(&e)
	return b, errors.Wrap(err, "events: encode")
}

// Decode parses a payload produced by Encode.
func Decode(b []byte) (Event, error) {
	var e Event
	err := msgpack.Unmarshal(b, &e)
	return e, errors.Wrap(err, "events: decode")
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Broker   string // host:port or a full URL
	ClientID string
	Topic    string // prefix; events go to <Topic>/<stream>/<pid>
	QoS      byte
}

// Stats counts publish outcomes.
type Stats struct {
	Published int64
	Errors    int64
}

// MQTT publishes events to a broker with automatic reconnects.
type MQTT struct {
	log    *slog.Logger
	cfg    MQTTConfig
	client mqtt.Client

	published atomic.Int64
	errors    atomic.Int64
}

// NewMQTT creates an unconnected publisher. If log is nil, slog.Default()
// is used.
func NewMQTT(cfg MQTTConfig, log *slog.Logger) *MQTT {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "pgsd-" + uuid.NewString()[:8]
	}
	if cfg.Topic == "" {
		cfg.Topic = "pgsd/displaysets"
	}
	m := &MQTT{log: log.With("component", "mqtt"), cfg: cfg}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		m.log.Info("mqtt connected", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.log.Warn("mqtt connection lost, reconnecting", "broker", cfg.Broker, "error", err)
	}
	m.client = mqtt.NewClient(opts)
	return m
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect waits for the first connection, up to connectTimeout or ctx.
func (m *MQTT) Connect(ctx context.Context) error {
	tok := m.client.Connect()
	if err := wait(ctx, tok, connectTimeout); err != nil {
		return errors.Wrapf(err, "events: connect %s", m.cfg.Broker)
	}
	return nil
}

// Topic returns the topic an event is published to.
func (m *MQTT) Topic(e Event) string {
	return fmt.Sprintf("%s/%s/%d", m.cfg.Topic, e.Stream, e.PID)
}

func (m *MQTT) Publish(ctx context.Context, e Event) error {
	if !m.client.IsConnectionOpen() {
		m.errors.Add(1)
		return ErrNotConnected
	}
	payload, err := Encode(e)
	if err != nil {
		m.errors.Add(1)
		return err
	}
	topic := m.Topic(e)
	if err := wait(ctx, m.client.Publish(topic, m.cfg.QoS, false, payload), publishTimeout); err != nil {
		m.errors.Add(1)
		return errors.Wrapf(err, "events: publish %s", topic)
	}
	m.published.Add(1)
	m.log.Debug("event published", "topic", topic, "bytes", len(payload), "index", e.Index)
	return nil
}

func (m *MQTT) Stats() Stats {
	return Stats{Published: m.published.Load(), Errors: m.errors.Load()}
}

// Close disconnects, allowing 250ms for in-flight messages.
func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
		m.log.Info("mqtt disconnected")
	}
	return nil
}

func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return errors.Newf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
