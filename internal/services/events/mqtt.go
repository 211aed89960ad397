package events

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gatekeeper/internal/logger"
	"gatekeeper/internal/models"
)

// MQTTPublisher forwards authorization decisions to an MQTT topic for
// dashboards and offline analysis. Publishing is fire-and-forget: the gate
// loop never waits on the broker.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	logger *logger.Logger
}

// NewMQTTPublisher connects to the broker. The caller decides whether a
// connect failure is fatal; for the gate it is not.
func NewMQTTPublisher(broker, clientID, topic string, logger *logger.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", broker, token.Error())
	}

	logger.Info("decision events publishing to %s topic %s", broker, topic)
	return &MQTTPublisher{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// Publish sends one decision. Errors are logged, never returned; a broker
// outage must not affect gate decisions.
func (p *MQTTPublisher) Publish(decision models.Decision) {
	payload, err := json.Marshal(decision)
	if err != nil {
		p.logger.Error("failed to encode decision event: %v", err)
		return
	}
	// No token.Wait: fire-and-forget.
	p.client.Publish(p.topic, 0, false, payload)
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
