package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
)

// Logger receives connection and handler diagnostics. *logging.Logger implements it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler handles one inbound message. paho calls it on its own
// goroutine; a returned error is logged and otherwise dropped.
type MessageHandler func(topic string, payload []byte) error

// route is a subscription replayed after every reconnect.
type route struct {
	qos     byte
	handler MessageHandler
}

// Client is the installation's link to the house broker.
//
// It announces the installation as online (retained, with an offline last
// will), publishes scene events and routes remote commands. Routes survive
// reconnects. All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	log    Logger

	online atomic.Bool

	mu     sync.Mutex
	routes map[string]route
}

// Connect dials the broker and announces the installation.
//
// paho keeps reconnecting in the background after the first successful
// connect. A broker that cannot be reached now yields ErrConnectionFailed.
// logger may be nil.
func Connect(cfg config.MQTTConfig, installationID string, logger Logger) (*Client, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Client{
		cfg:    cfg,
		topics: NewTopics(installationID),
		log:    logger,
		routes: make(map[string]route),
	}

	opts := clientOptions(cfg)
	setWill(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: no answer within %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs on its own goroutine and may not have fired yet.
	c.online.Store(true)
	return c, nil
}

// connected runs on the first connect and on every reconnect.
func (c *Client) connected() {
	wasOnline := c.online.Swap(true)

	c.mu.Lock()
	for topic, r := range c.routes {
		c.paho.Subscribe(topic, r.qos, c.wrapHandler(r.handler))
	}
	n := len(c.routes)
	c.mu.Unlock()

	c.announce(stateOnline, "")
	if !wasOnline {
		c.logger().Info("MQTT connected", "routes", n)
	}
}

func (c *Client) lost(err error) {
	c.online.Store(false)
	c.logger().Warn("MQTT connection lost", "error", err)
}

// announce publishes the retained presence message without waiting for the ack.
func (c *Client) announce(state, reason string) pahomqtt.Token {
	payload := presencePayload(c.topics.installation, c.cfg.Broker.ClientID, state, reason)
	return c.paho.Publish(c.topics.Status(), byte(c.cfg.QoS), true, payload)
}

// Close marks the installation offline and disconnects. A client that
// never connected closes without error.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.isConnected() {
		c.announce(stateOffline, "shutdown").WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(disconnectQuiesceMillis)
	c.online.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.isConnected() {
		return ErrNotConnected
	}
	return nil
}

// isConnected reports whether the broker link is currently up.
func (c *Client) isConnected() bool {
	return c.online.Load() && c.paho != nil && c.paho.IsConnectionOpen()
}

func (c *Client) logger() Logger {
	if c.log == nil {
		return noopLogger{}
	}
	return c.log
}

// wrapHandler adapts a MessageHandler to paho. Handler errors are logged and
// panics recovered.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger().Error("MQTT handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger().Warn("MQTT handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}
