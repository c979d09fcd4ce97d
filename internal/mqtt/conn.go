package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected   = errors.New("mqtt: not connected")
	ErrPublishTimeout = errors.New("mqtt: publish timeout")
)

// MessageHandler receives messages for a subscription. Paho invokes it on
// its own goroutine.
type MessageHandler func(topic string, payload []byte)

// Conn is the subset of a broker connection the source needs.
type Conn interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	IsConnected() bool
	Close()
}

type ConnOptions struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	// OnConnect runs after every (re)connect; subscriptions are restored there.
	OnConnect func()
}

// PahoConn is a Conn backed by an actual broker connection.
type PahoConn struct {
	client         paho.Client
	publishTimeout time.Duration
}

// Dial connects to the broker and returns once the first connection is up.
func Dial(opts ConnOptions) (*PahoConn, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.ClientID == "" {
		opts.ClientID = "thermostat-panel"
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(true)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	po.SetOnConnectHandler(func(paho.Client) {
		log.Info().Str("broker", opts.Broker).Msg("Connected to MQTT broker")
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
	})
	po.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Str("broker", opts.Broker).Msg("Lost connection to MQTT broker")
	})

	client := paho.NewClient(po)
	token := client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("connect to broker %s: timeout after %v", opts.Broker, opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", opts.Broker, err)
	}

	return &PahoConn{client: client, publishTimeout: opts.PublishTimeout}, nil
}

func (c *PahoConn) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *PahoConn) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *PahoConn) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *PahoConn) Close() {
	c.client.Disconnect(1000)
}
