package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vigil/internal/config"
	"vigil/internal/event"
	"vigil/internal/logging"
)

const (
	mqttConnectWait = 5 * time.Second
	mqttPublishWait = 2 * time.Second
)

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSubscriber publishes events to <prefix>/<source id>/events.
type MQTTSubscriber struct {
	client mqttPublisher
	prefix string
	qos    byte
	wait   time.Duration
}

// NewMQTTSubscriber connects to cfg.MQTTBroker with automatic reconnects.
func NewMQTTSubscriber(cfg config.Notify, logger *slog.Logger) (*MQTTSubscriber, error) {
	logger = logging.NewComponentLogger(logger, "notify-mqtt")
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected",
			logging.String(logging.FieldEventType, "mqtt_connected"),
			logging.String("broker", cfg.MQTTBroker),
		)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.WarnWithContext(logger, "mqtt connection lost", "mqtt_connection_lost",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the MQTT broker"),
			logging.String(logging.FieldImpact, "events fail to publish until the client reconnects"),
		)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectWait) {
		// ConnectRetry keeps trying in the background.
		logging.WarnWithContext(logger, "mqtt broker not reachable yet", "mqtt_connect_pending",
			logging.String("broker", cfg.MQTTBroker),
			logging.String(logging.FieldErrorHint, "check mqtt_broker in the notify section"),
			logging.String(logging.FieldImpact, "events fail to publish until the broker accepts the connection"),
		)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", err)
	}
	return newMQTTSubscriber(client, cfg.MQTTTopicPrefix, cfg.MQTTQoS), nil
}

func newMQTTSubscriber(client mqttPublisher, prefix string, qos int) *MQTTSubscriber {
	return &MQTTSubscriber{
		client: client,
		prefix: strings.Trim(prefix, "/"),
		qos:    byte(min(max(qos, 0), 2)),
		wait:   mqttPublishWait,
	}
}

// Name implements Subscriber.
func (s *MQTTSubscriber) Name() string { return "mqtt" }

// Topic returns the topic used for events from sourceID.
func (s *MQTTSubscriber) Topic(sourceID string) string {
	token := strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(sourceID)
	if token == "" {
		token = "unknown"
	}
	return s.prefix + "/" + token + "/events"
}

// Publish sends the event record and waits briefly for the broker ack.
func (s *MQTTSubscriber) Publish(ctx context.Context, ev *event.Event) error {
	data, err := payload(ev)
	if err != nil {
		return err
	}
	topic := s.Topic(ev.SourceID())
	token := s.client.Publish(topic, s.qos, false, data)
	wait := s.wait
	if deadline, ok := ctx.Deadline(); ok {
		wait = min(wait, time.Until(deadline))
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("mqtt publish %s: %w", topic, errors.New("timed out waiting for broker"))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects after letting in-flight messages finish.
func (s *MQTTSubscriber) Close() error {
	s.client.Disconnect(250)
	return nil
}
