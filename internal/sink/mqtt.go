package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/config"
)

const mqttConnectTimeout = 10 * time.Second

// publisher is the subset of mqtt.Client used by MQTT.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Message is the JSON document published per packet.
type Message struct {
	Destination string    `json:"destination"`
	Timestamp   time.Time `json:"timestamp"`
	Datapoints  []float32 `json:"datapoints"`
}

// MQTT publishes each packet to the topic named by the destination.
type MQTT struct {
	client publisher
	qos    byte
	logger *logrus.Logger
	now    func() time.Time
}

// OpenMQTT connects to the broker with auto-reconnect enabled.
func OpenMQTT(ctx context.Context, cfg config.MQTTConfig, logger *logrus.Logger) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if err := waitToken(ctx, token, mqttConnectTimeout); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	logger.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")

	return newMQTT(client, byte(cfg.QoS), logger), nil
}

func newMQTT(client publisher, qos byte, logger *logrus.Logger) *MQTT {
	return &MQTT{client: client, qos: qos, logger: logger, now: time.Now}
}

// Write publishes values to topic destination and waits for the broker acknowledgement.
func (m *MQTT) Write(ctx context.Context, destination string, values []float32) error {
	payload, err := json.Marshal(Message{Destination: destination, Timestamp: m.now().UTC(), Datapoints: values})
	if err != nil {
		return &WriteError{Backend: config.SinkMQTT, Destination: destination, Err: err}
	}
	token := m.client.Publish(destination, m.qos, false, payload)
	if err := waitToken(ctx, token, 0); err != nil {
		return &WriteError{Backend: config.SinkMQTT, Destination: destination, Err: err}
	}
	m.logger.WithFields(logrus.Fields{"topic": destination, "samples": len(values)}).Debug("Published packet")
	return nil
}

// Close disconnects after letting in-flight messages finish.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

// waitToken blocks until the token completes, ctx ends, or timeout (if positive) elapses.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("timed out after %v", timeout)
	}
}
