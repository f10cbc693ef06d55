package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/co-monitor/internal/protocol"
	"github.com/sweeney/co-monitor/internal/safety"
)

// Config wires a Client.
type Config struct {
	// Broker address, e.g. tcp://192.168.1.200:1883.
	Broker string

	// ClientIDOverride replaces the machine-derived client ID.
	ClientIDOverride string

	// Topics for the four roles. Zero value derives from DefaultPrefix.
	Topics Topics

	// InitRetries is the bounded init phase: connection attempts made
	// back to back before switching to background retry.
	InitRetries int

	// ReconnectDelay is the one-shot background retry delay armed on
	// every disconnect.
	ReconnectDelay time.Duration

	// Sink receives decoded inbound commands.
	Sink CommandSink

	// Tracker receives connectivity and command counters. May be nil.
	Tracker Tracker
}

const (
	defaultInitRetries    = 3
	defaultReconnectDelay = 5 * time.Second
	connectTimeout        = 10 * time.Second
	publishTimeout        = 5 * time.Second
)

// Client owns the broker session. Paho's auto-reconnect stays off; the
// retry policy here is the bounded-init-then-5s-one-shot scheme, so its
// timing is ours to test.
type Client struct {
	cfg    Config
	client paho.Client
	router router

	mu    sync.Mutex
	retry *time.Timer // pending background reconnect, nil when idle
}

// NewClient builds the paho client with the last-will offline status
// registered. No connection is attempted until Connect.
func NewClient(cfg Config) *Client {
	if cfg.Topics == (Topics{}) {
		cfg.Topics = TopicsFor(DefaultPrefix)
	}
	if cfg.InitRetries <= 0 {
		cfg.InitRetries = defaultInitRetries
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.Tracker == nil {
		cfg.Tracker = noopTracker{}
	}

	c := &Client{
		cfg:    cfg,
		router: router{sink: cfg.Sink, tracker: cfg.Tracker},
	}

	// The will is the pre-encoded offline status: not armed, back in
	// INIT. Retained so the dashboard sees it without polling.
	will := protocol.EncodeStatus(false, safety.StateInit)

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(ClientID(cfg.ClientIDOverride)).
		SetAutoReconnect(false).
		SetCleanSession(true).
		SetBinaryWill(cfg.Topics.Status, will, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(opts)
	return c
}

// Connect runs the bounded init phase: up to InitRetries back-to-back
// attempts. If the budget runs out the client arms the background retry
// and returns nil — from then on connectivity is managed, not required.
func (c *Client) Connect() error {
	for attempt := 1; attempt <= c.cfg.InitRetries; attempt++ {
		err := c.attempt()
		if err == nil {
			return nil
		}
		log.Printf("mqtt: connect attempt %d/%d failed: %v", attempt, c.cfg.InitRetries, err)
	}
	log.Printf("mqtt: init attempts exhausted, retrying in background every %v", c.cfg.ReconnectDelay)
	c.scheduleReconnect()
	return nil
}

// attempt makes one connection attempt with a bounded wait.
func (c *Client) attempt() error {
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// onConnect runs on every successful (re)connection: cancel any pending
// retry, resubscribe to commands, publish the retained online status.
func (c *Client) onConnect(_ paho.Client) {
	c.mu.Lock()
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.mu.Unlock()

	log.Printf("mqtt: connected to %s", c.cfg.Broker)
	c.cfg.Tracker.SetMQTTConnected(true)

	token := c.client.Subscribe(c.cfg.Topics.Commands, 1, func(_ paho.Client, msg paho.Message) {
		c.router.handle(msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		log.Printf("mqtt: subscribe %s failed: %v", c.cfg.Topics.Commands, token.Error())
	}
}

// onConnectionLost arms the one-shot background retry.
func (c *Client) onConnectionLost(_ paho.Client, err error) {
	log.Printf("mqtt: connection lost: %v", err)
	c.cfg.Tracker.SetMQTTConnected(false)
	c.scheduleReconnect()
}

// scheduleReconnect arms a single retry after ReconnectDelay. A failed
// retry re-arms itself; a successful connect cancels through onConnect.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retry != nil {
		return
	}
	c.retry = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		c.retry = nil
		c.mu.Unlock()

		if err := c.attempt(); err != nil {
			log.Printf("mqtt: reconnect failed: %v", err)
			c.scheduleReconnect()
		}
	})
}

// IsConnected reports whether the broker session is up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// PublishTelemetry sends a telemetry packet, QoS 0, best effort.
func (c *Client) PublishTelemetry(pkt []byte) error {
	return c.publish(c.cfg.Topics.Telemetry, 0, false, pkt)
}

// PublishEvent sends an event packet, QoS 1.
func (c *Client) PublishEvent(pkt []byte) error {
	return c.publish(c.cfg.Topics.Events, 1, false, pkt)
}

// PublishStatus sends a status packet, QoS 1, retained so the backend
// always sees the latest one.
func (c *Client) PublishStatus(pkt []byte) error {
	return c.publish(c.cfg.Topics.Status, 1, true, pkt)
}

func (c *Client) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close publishes the retained offline status and disconnects cleanly,
// so a graceful shutdown does not leave the will to fire. Any pending
// background retry is cancelled.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.mu.Unlock()

	if c.IsConnected() {
		offline := protocol.EncodeStatus(false, safety.StateInit)
		if err := c.PublishStatus(offline); err != nil {
			log.Printf("mqtt: offline status publish failed: %v", err)
		}
	}
	c.client.Disconnect(1000) // milliseconds to flush in-flight work
	return nil
}
