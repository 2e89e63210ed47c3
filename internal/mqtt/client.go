package mqtt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"cloudpico-bridge/internal/config"
	"cloudpico-bridge/internal/pipeline"
)

const (
	publishTimeout   = 5 * time.Second
	subscribeTimeout = 5 * time.Second
	commandQueueSize = 64
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("client stopped")
)

// Client is the bridge's MQTT link. It publishes composed messages and queues
// inbound commands for the consumer.
type Client struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	qos       byte
	lwtTopic  string
	mu        sync.RWMutex
	connected bool
	readyTime time.Time
	subs      []string

	commands *commandQueue
	sent     atomic.Uint64
	failed   atomic.Uint64
	ignored  atomic.Uint64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Stats are the publish and inbound counters of a Client.
type Stats struct {
	Sent                uint64
	Failed              uint64
	IgnoredMessages     uint64
	CommandsOverwritten uint64
}

func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	return newClient(cfg, logger, mqtt.NewClient)
}

func newClient(cfg config.Config, logger *slog.Logger, factory func(*mqtt.ClientOptions) mqtt.Client) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:      cfg,
		logger:   logger,
		qos:      cfg.MQTTQoS,
		lwtTopic: pipeline.AvailabilityTopic(cfg.BridgeName),
		commands: newCommandQueue(commandQueueSize),
		stopCh:   make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	// Session settings
	opts.SetCleanSession(true)
	opts.SetWill(c.lwtTopic, "offline", 1, true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(pc mqtt.Client) {
		c.onConnect(pc)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = factory(opts)
	return c, nil
}

// Subscribe adds command filters. They are (re)subscribed on every connect
// because sessions are clean.
func (c *Client) Subscribe(filters ...string) {
	c.mu.Lock()
	c.subs = append(c.subs, filters...)
	c.mu.Unlock()
}

func (c *Client) onConnect(pc mqtt.Client) {
	c.mu.RLock()
	subs := append([]string(nil), c.subs...)
	c.mu.RUnlock()

	for _, filter := range subs {
		token := pc.Subscribe(filter, 1, c.onMessage)
		if !token.WaitTimeout(subscribeTimeout) {
			c.logger.Warn("mqtt subscribe timeout", "filter", filter)
			continue
		}
		if err := token.Error(); err != nil {
			c.logger.Warn("mqtt subscribe failed", "filter", filter, "error", err)
		}
	}
	pc.Publish(c.lwtTopic, 1, true, "online")

	c.mu.Lock()
	c.connected = true
	c.readyTime = time.Now()
	c.mu.Unlock()
	c.logger.Info("mqtt connected",
		"broker", c.cfg.MQTTBroker,
		"port", c.cfg.MQTTPort,
		"subscriptions", len(subs),
	)
}

func (c *Client) onMessage(_ mqtt.Client, m mqtt.Message) {
	cmd, ok := pipeline.ParseCommandTopic(m.Topic())
	if !ok {
		c.ignored.Add(1)
		c.logger.Debug("mqtt: ignoring message", "topic", m.Topic())
		return
	}
	cmd.Payload = bytes.Clone(m.Payload())
	if err := c.commands.push(cmd); err != nil {
		c.logger.Warn("mqtt: command dropped", "topic", m.Topic(), "error", err)
		return
	}
	c.logger.Debug("mqtt: command queued", "field", cmd.Field.String(), "device", cmd.DeviceID)
}

// Connect establishes connection to the MQTT broker.
// This function waits for the initial connection, and respects ctx and Disconnect().
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	if c.Ready() {
		return nil
	}

	// With ConnectRetry(true), paho keeps retrying internally.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

// Ready reports whether messages can be published.
func (c *Client) Ready() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// ReadyTime is the time of the last successful (re)connect.
func (c *Client) ReadyTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readyTime
}

// Send publishes payload. The payload is copied because the composer reuses
// its buffer for the next message.
func (c *Client) Send(topic string, payload []byte, retain bool) error {
	if !c.Ready() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.qos, retain, bytes.Clone(payload))
	if !token.WaitTimeout(publishTimeout) {
		c.failed.Add(1)
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.failed.Add(1)
		c.logger.Error("failed to publish", "topic", topic, "error", err)
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	c.sent.Add(1)
	return nil
}

// PollCommand returns the oldest queued inbound command.
func (c *Client) PollCommand() (pipeline.Command, bool) {
	return c.commands.pop()
}

func (c *Client) Stats() Stats {
	return Stats{
		Sent:                c.sent.Load(),
		Failed:              c.failed.Load(),
		IgnoredMessages:     c.ignored.Load(),
		CommandsOverwritten: c.commands.overwritten.Load(),
	}
}

// Disconnect stops the client and closes the MQTT connection.
// Idempotent and safe to call multiple times.
// After Disconnect, Connect() will return ErrStopped.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil {
		if c.client.IsConnected() {
			c.client.Publish(c.lwtTopic, 1, true, "offline").WaitTimeout(time.Second)
		}
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
