package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

const (
	telemetryConnectTimeout = 10 * time.Second
	telemetryPublishTimeout = 5 * time.Second
	telemetryReconnectRetry = 5 * time.Second
)

// StatusSource yields the current aggregate status for publication.
type StatusSource interface {
	Status() models.BoilerStatus
}

// TelemetryMetrics counts publish outcomes.
type TelemetryMetrics interface {
	IncTelemetry(result string)
}

// Telemetry publishes the aggregate status to the MQTT status topic on
// a fixed period. Publishes are retained so late subscribers see the
// last state immediately.
type Telemetry struct {
	source  StatusSource
	metrics TelemetryMetrics
	log     *logger.Logger
	client  paho.Client
	topic   string
	period  time.Duration
}

// NewTelemetry connects to the broker. The client reconnects on its
// own; publishes during an outage fail fast and count as errors.
func NewTelemetry(cfg config.Config, source StatusSource, m TelemetryMetrics, log *logger.Logger) (*Telemetry, error) {
	t := &Telemetry{
		source:  source,
		metrics: m,
		log:     log,
		topic:   cfg.MQTT.StatusTopic,
		period:  cfg.MQTT.PublishPeriod,
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.MQTT.BrokerURL).
		SetClientID(cfg.MQTT.ClientID + "-telemetry").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(telemetryReconnectRetry)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	t.client = paho.NewClient(opts)
	token := t.client.Connect()
	if !token.WaitTimeout(telemetryConnectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return t, nil
}

// Run publishes until ctx is cancelled, then disconnects.
func (t *Telemetry) Run(ctx context.Context) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.client.Disconnect(250)
			return
		case <-ticker.C:
			t.publish()
		}
	}
}

func (t *Telemetry) publish() {
	payload, err := json.Marshal(t.source.Status())
	if err != nil {
		t.log.Errorf("marshal status: %v", err)
		t.metrics.IncTelemetry("error")
		return
	}
	token := t.client.Publish(t.topic, 0, true, payload)
	if !token.WaitTimeout(telemetryPublishTimeout) {
		t.log.Warnf("publish to %s timed out", t.topic)
		t.metrics.IncTelemetry("error")
		return
	}
	if err := token.Error(); err != nil {
		t.log.Warnf("publish to %s: %v", t.topic, err)
		t.metrics.IncTelemetry("error")
		return
	}
	t.metrics.IncTelemetry("success")
}
