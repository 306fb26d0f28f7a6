// Package bridge republishes bulb notifications to MQTT.
//
// Every property of a props notification becomes one message:
//
//	{prefix}/{bulb}/{property}  →  value
//
// The bridge also keeps {prefix}/{bulb}/status at "online" while it runs,
// with a last-will of "offline".
package bridge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"yeectl/config"
	"yeectl/message"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesce     = 250 // milliseconds

	statusOnline  = "online"
	statusOffline = "offline"
)

// Publisher is the part of a paho client the bridge needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// MQTT forwards notifications for one bulb.
type MQTT struct {
	pub    Publisher
	client pahomqtt.Client // nil when built from a bare Publisher
	prefix string
	bulb   string
	qos    byte
	retain bool
	logger *zap.Logger
}

// Option configures an MQTT bridge.
type Option func(*MQTT)

// WithLogger sets the logger; the bridge names it "bridge".
func WithLogger(l *zap.Logger) Option {
	return func(m *MQTT) {
		if l != nil {
			m.logger = l.Named("bridge")
		}
	}
}

// WithQoS sets the QoS level and retain flag for property messages.
func WithQoS(qos byte, retain bool) Option {
	return func(m *MQTT) {
		m.qos = qos
		m.retain = retain
	}
}

// New returns a bridge publishing through pub under prefix/bulb.
func New(pub Publisher, prefix, bulb string, opts ...Option) *MQTT {
	m := &MQTT{
		pub:    pub,
		prefix: strings.Trim(prefix, "/"),
		bulb:   topicSegment(bulb),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dial connects to the broker in cfg and returns a bridge for bulb.
func Dial(cfg config.MQTTConfig, bulb string, opts ...Option) (*MQTT, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "yeectl-" + uuid.NewString()
	}

	m := New(nil, cfg.TopicPrefix, bulb, append([]Option{WithQoS(cfg.QoS, cfg.Retain)}, opts...)...)

	o := pahomqtt.NewClientOptions()
	o.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	o.SetClientID(clientID)
	if cfg.Username != "" {
		o.SetUsername(cfg.Username)
		o.SetPassword(cfg.Password)
	}
	o.SetCleanSession(true)
	o.SetAutoReconnect(true)
	o.SetConnectTimeout(defaultConnectTimeout)
	o.SetWill(m.statusTopic(), statusOffline, 1, true)
	o.SetOnConnectHandler(func(c pahomqtt.Client) {
		// (re)announce after every connect, the broker may have fired the will
		c.Publish(m.statusTopic(), 1, true, statusOnline)
	})
	o.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		m.logger.Warn("mqtt connection lost", zap.Error(err))
	})

	client := pahomqtt.NewClient(o)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("bridge: connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("bridge: connect %s: %w", cfg.Broker, err)
	}
	m.pub = client
	m.client = client
	m.logger.Info("connected to broker", zap.String("broker", cfg.Broker), zap.String("client_id", clientID))
	return m, nil
}

// Topic returns the topic for property.
func (m *MQTT) Topic(property string) string {
	return m.prefix + "/" + m.bulb + "/" + topicSegment(property)
}

func (m *MQTT) statusTopic() string {
	return m.Topic("status")
}

// Forward publishes every property of n. Failures for individual properties
// are combined into one error.
func (m *MQTT) Forward(n message.Notification) error {
	if n.Method != message.MethodProps {
		return nil
	}
	// stable order keeps retained state predictable across brokers
	keys := make([]string, 0, len(n.Params))
	for k := range n.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs error
	for _, k := range keys {
		errs = multierr.Append(errs, m.publish(m.Topic(k), n.Params[k]))
	}
	return errs
}

func (m *MQTT) publish(topic, payload string) error {
	token := m.pub.Publish(topic, m.qos, m.retain, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Run forwards events until ctx ends or the channel closes. Publish errors
// are logged and do not stop the bridge.
func (m *MQTT) Run(ctx context.Context, events <-chan message.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-events:
			if !ok {
				return nil
			}
			if err := m.Forward(n); err != nil {
				m.logger.Warn("forwarding notification failed", zap.Error(err))
			}
		}
	}
}

// Close publishes the offline status and disconnects. It is a no-op for a
// bridge built with New.
func (m *MQTT) Close() error {
	if m.client == nil {
		return nil
	}
	err := m.publish(m.statusTopic(), statusOffline)
	m.client.Disconnect(disconnectQuiesce)
	return err
}

// topicSegment keeps MQTT wildcards and separators out of a topic level.
func topicSegment(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
