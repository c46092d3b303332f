// Package notify publishes finished sync runs to MQTT.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	syncapp "scalesync/internal/sync/application"
)

const (
	defaultTopic   = "scalesync/runs"
	defaultTimeout = 5 * time.Second
)

// Config holds broker settings.
type Config struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
}

// Publisher sends run reports to <topic>/<mode>.
type Publisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

var _ syncapp.ReportPublisher = (*Publisher)(nil)

// Connect dials the broker and returns a publisher.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("notify: empty mqtt broker")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(defaultTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("notify: connect mqtt broker: %w", token.Error())
	}
	return NewPublisher(client, cfg.Topic), nil
}

// NewPublisher wraps a connected client.
func NewPublisher(client mqtt.Client, topic string) *Publisher {
	topic = strings.TrimRight(strings.TrimSpace(topic), "/")
	if topic == "" {
		topic = defaultTopic
	}
	return &Publisher{client: client, topic: topic, qos: 1, timeout: defaultTimeout}
}

// Publish sends the report as JSON. It waits at most the publish timeout or until ctx is done.
func (p *Publisher) Publish(ctx context.Context, report syncapp.RunReport) error {
	if p == nil || p.client == nil {
		return errors.New("notify: nil mqtt client")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("notify: encode report: %w", err)
	}

	topic := p.topic + "/" + string(report.Mode)
	token := p.client.Publish(topic, p.qos, false, payload)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("notify: publish to %s: timeout", topic)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p != nil && p.client != nil {
		p.client.Disconnect(250)
	}
}
