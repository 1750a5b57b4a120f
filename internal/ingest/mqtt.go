package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/pkg/config"
)

// MQTTSource feeds readings published on the broker into the pipeline.
// Devices publish to sensors/<device_id>/reading; the id in the topic is
// authoritative and overrides the payload's device_id field.
type MQTTSource struct {
	client  mqtt.Client
	topic   string
	service *Service
	logger  *zap.Logger
}

// NewMQTTSource connects to the broker and returns a source ready to
// subscribe.
func NewMQTTSource(cfg *config.MQTTConfig, service *Service, logger *zap.Logger) (*MQTTSource, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTSource{
		client:  client,
		topic:   cfg.Topic,
		service: service,
		logger:  logger,
	}, nil
}

// Start subscribes to the reading topic.
func (m *MQTTSource) Start(ctx context.Context) error {
	token := m.client.Subscribe(m.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		m.handle(ctx, msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", m.topic, token.Error())
	}
	m.logger.Info("subscribed to mqtt readings", zap.String("topic", m.topic))
	return nil
}

// Stop unsubscribes and disconnects.
func (m *MQTTSource) Stop() {
	if token := m.client.Unsubscribe(m.topic); token.Wait() && token.Error() != nil {
		m.logger.Warn("failed to unsubscribe", zap.Error(token.Error()))
	}
	m.client.Disconnect(250)
}

func (m *MQTTSource) handle(ctx context.Context, topic string, payload []byte) {
	var reading Reading
	if err := json.Unmarshal(payload, &reading); err != nil {
		m.logger.Warn("discarding malformed mqtt payload",
			zap.String("topic", topic),
			zap.Error(err))
		return
	}

	if id, ok := deviceIDFromTopic(topic); ok {
		reading.DeviceID = id
	}

	if _, err := m.service.Process(ctx, &reading); err != nil {
		m.logger.Warn("failed to process mqtt reading",
			zap.String("topic", topic),
			zap.Error(err))
	}
}

// deviceIDFromTopic extracts the device id from sensors/<id>/reading.
func deviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "sensors" || parts[2] != "reading" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
