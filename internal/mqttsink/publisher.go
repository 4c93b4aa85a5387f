// Package mqttsink publishes drained notifications to an MQTT broker, the
// engine's demo transport for a downstream consumer (a historian, a
// dashboard) to subscribe to.
package mqttsink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-subscription-engine/internal/engine"
)

// Config configures the MQTT publisher.
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	KeepAlive      time.Duration
	ReconnectDelay time.Duration
}

// Publisher publishes QueuedNotification values as JSON to
// <TopicPrefix>/<monitored item id>.
type Publisher struct {
	cfg    Config
	client mqtt.Client
	log    zerolog.Logger
}

// NewPublisher creates a Publisher. It does not connect; call Connect.
func NewPublisher(cfg Config, log zerolog.Logger) *Publisher {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(cfg.ReconnectDelay)
	opts.SetCleanSession(true)

	p := &Publisher{
		cfg: cfg,
		log: log.With().Str("component", "mqtt-publisher").Logger(),
	}

	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		p.log.Warn().Err(err).Msg("mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		p.log.Info().Str("broker", cfg.BrokerURL).Msg("mqtt connected")
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect blocks until the broker connection succeeds or fails.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect timed out")
	}
	return token.Error()
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect() {
	p.client.Disconnect(250)
}

// IsConnected reports whether the client currently holds a live broker
// connection, for use by health checks.
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

type wireNotification struct {
	MonitoredItemID uint32 `json:"monitored_item_id"`
	ClientHandle    uint32 `json:"client_handle"`
	Value           string `json:"value"`
	Status          uint32 `json:"status"`
	SourceTimestamp string `json:"source_timestamp"`
	ServerTimestamp string `json:"server_timestamp"`
	MoreComing      bool   `json:"more_notifications"`
}

// Publish publishes one drained notification to <prefix>/<monitored item
// id>. The node id and attribute are not part of the topic: the drain path
// carries only the monitored item id and the client handle, not the
// originating target.
func (p *Publisher) Publish(n engine.QueuedNotification) error {
	wire := wireNotification{
		MonitoredItemID: n.MonitoredItemID,
		ClientHandle:    n.Notification.ClientHandle,
		Status:          uint32(n.Notification.SampledValue.Status),
		SourceTimestamp: n.Notification.SampledValue.SourceTimestamp.Format(time.RFC3339Nano),
		ServerTimestamp: n.Notification.SampledValue.ServerTimestamp.Format(time.RFC3339Nano),
		MoreComing:      n.MoreNotifications,
	}
	if n.Notification.SampledValue.Value != nil {
		wire.Value = fmt.Sprintf("%v", n.Notification.SampledValue.Value.Value())
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	topic := fmt.Sprintf("%s/%d", p.cfg.TopicPrefix, n.MonitoredItemID)
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	token.Wait()
	return token.Error()
}
