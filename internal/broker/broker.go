// Package broker carries lifecycle traffic over MQTT: outbound events and
// inbound meter readings and driver quick checks.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-safety/internal/models"
)

// Topic filters relative to the configured prefix.
const (
	ReadingsFilter        = "vehicles/+/readings"
	QuickInspectionFilter = "inspections/quick"
)

// QoS used for every publish and subscription. Events are deduplicated by id
// downstream, so at-least-once is enough.
const QoS byte = 1

// Message is one inbound MQTT message.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler processes one inbound message.
type Handler func(ctx context.Context, msg Message) error

// Envelope wraps an inbound submission with the sender's token.
type Envelope struct {
	Token string          `json:"token"`
	Data  json.RawMessage `json:"data"`
}

// Client is the part of mqtt.Client the package uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Options configures the MQTT connection.
type Options struct {
	Broker         string
	ClientID       string
	ConnectTimeout time.Duration
	// OnConnect runs after every (re)connect, typically to subscribe again.
	OnConnect func(mqtt.Client)
}

// Connect dials the broker and waits for the connection.
func Connect(o Options, log *logrus.Entry) (mqtt.Client, error) {
	const op = "broker.Connect"
	if o.Broker == "" {
		return nil, fmt.Errorf("%s: broker address is required", op)
	}
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetConnectTimeout(timeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.WithField("broker", o.Broker).Info("mqtt connected")
		if o.OnConnect != nil {
			o.OnConnect(c)
		}
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("%s: timed out after %s", op, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

func join(prefix string, parts ...string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return strings.Join(parts, "/")
	}
	return prefix + "/" + strings.Join(parts, "/")
}

// ReadingsTopic is where a vehicle reports its meters.
func ReadingsTopic(prefix, vehicleID string) string {
	return join(prefix, "vehicles", vehicleID, "readings")
}

// QuickInspectionTopic is where drivers submit quick checks.
func QuickInspectionTopic(prefix string) string {
	return join(prefix, QuickInspectionFilter)
}

// EventTopic is where events of one type are published.
func EventTopic(prefix string, typ models.EventType) string {
	return join(prefix, "events", string(typ))
}

// VehicleIDFromTopic extracts the vehicle id of a readings topic.
func VehicleIDFromTopic(prefix, topic string) (string, bool) {
	if p := strings.Trim(prefix, "/"); p != "" {
		var ok bool
		if topic, ok = strings.CutPrefix(topic, p+"/"); !ok {
			return "", false
		}
	}
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "vehicles" || parts[2] != "readings" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Publisher sends JSON payloads and implements lifecycle.EventPublisher.
type Publisher struct {
	client Client
	prefix string
}

// NewPublisher creates a publisher for topics under prefix.
func NewPublisher(client Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

// Publish sends ev to <prefix>/events/<type>.
func (p *Publisher) Publish(ctx context.Context, ev models.Event) error {
	return p.PublishJSON(ctx, EventTopic(p.prefix, ev.Type), ev)
}

// PublishJSON marshals v and publishes it to topic, waiting for the broker
// acknowledgement or ctx.
func (p *Publisher) PublishJSON(ctx context.Context, topic string, v any) error {
	const op = "broker.PublishJSON"
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}
	token := p.client.Publish(topic, QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%s: %s: %w", op, topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %s: %w", op, topic, err)
	}
	return nil
}

// ErrNoRoute is returned for a message no route matches.
var ErrNoRoute = errors.New("no route for topic")
