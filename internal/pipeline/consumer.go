package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"cloudpico-bridge/internal/record"
	"cloudpico-bridge/internal/ring"
)

// Readiness reports the state of the outbound transport.
type Readiness interface {
	Ready() bool
	// ReadyTime changes every time the transport (re)connects.
	ReadyTime() time.Time
}

// Link is the transport collaborator the consumer publishes through.
type Link interface {
	Readiness
	Send(topic string, payload []byte, retain bool) error
}

// CommandSource yields inbound commands without blocking.
type CommandSource interface {
	PollCommand() (Command, bool)
}

// CommandHandler reacts to a command addressed to one field.
type CommandHandler func(Command)

// Stats are the consumer's running counters.
type Stats struct {
	Created         uint64
	Sent            uint64
	Invalid         uint64
	SendFailed      uint64
	ElementFailures uint64
}

// Consumer drains ring buffers into composed messages and hands them to the
// link. Drain and Run must be called from a single goroutine.
type Consumer struct {
	link   Link
	reg    *Registry
	comp   *Composer
	cache  *Cache
	feeder *Feeder
	logger *slog.Logger

	buffers  []*ring.Buffer
	commands CommandSource
	handlers map[record.Field][]CommandHandler

	created         atomic.Uint64
	sent            atomic.Uint64
	invalid         atomic.Uint64
	sendFailed      atomic.Uint64
	elementFailures atomic.Uint64
}

// NewConsumer returns a consumer whose composer holds jsonSize bytes.
func NewConsumer(link Link, reg *Registry, jsonSize int, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Consumer{
		link:     link,
		reg:      reg,
		comp:     NewComposer(jsonSize),
		cache:    NewCache(reg),
		logger:   logger,
		handlers: make(map[record.Field][]CommandHandler),
	}
	c.feeder = newFeeder(c.comp, c.cache, c.closeMessage)
	return c
}

// Attach registers a buffer to be drained by Run.
func (c *Consumer) Attach(buf *ring.Buffer) { c.buffers = append(c.buffers, buf) }

// SetCommandSource sets where Run polls inbound commands from.
func (c *Consumer) SetCommandSource(src CommandSource) { c.commands = src }

// Handle registers h for commands addressed to field f.
func (c *Consumer) Handle(f record.Field, h CommandHandler) {
	c.handlers[f] = append(c.handlers[f], h)
}

func (c *Consumer) Ready() bool { return c.link.Ready() }

func (c *Consumer) ReadyTime() time.Time { return c.link.ReadyTime() }

func (c *Consumer) Stats() Stats {
	return Stats{
		Created:         c.created.Load(),
		Sent:            c.sent.Load(),
		Invalid:         c.invalid.Load(),
		SendFailed:      c.sendFailed.Load(),
		ElementFailures: c.elementFailures.Load(),
	}
}

// Drain consumes every complete message waiting in buf and returns how many
// messages were created.
func (c *Consumer) Drain(buf *ring.Buffer) int {
	if !buf.HasUnreadClosed() {
		return 0
	}
	before := c.created.Load()

	c.cache.HardReset()
	c.comp.Start()
	for buf.HasUnreadClosed() {
		for {
			rec := buf.PeekRead()
			end := rec.IsClosed()
			if rec.Type() == record.TypeGenerator {
				if !c.feeder.Expand(rec) {
					c.logger.Debug("unknown generator reference", "buffer", buf.Name(), "ref", rec.Ref(0))
				}
			} else {
				c.comp.Add(rec, c.cache)
				if end {
					c.closeMessage()
				}
			}
			buf.AdvanceRead()
			if end {
				break
			}
		}
	}
	return int(c.created.Load() - before)
}

func (c *Consumer) closeMessage() {
	c.comp.Finish()
	c.created.Add(1)
	if n := c.comp.Failures(); n > 0 {
		c.elementFailures.Add(uint64(n))
		c.logger.Warn("message elements dropped", "count", n, "topic", c.comp.Topic())
	}

	if c.comp.Valid() {
		topic := c.comp.Topic()
		if err := c.link.Send(topic, c.comp.Body(), c.comp.Retain()); err != nil {
			c.sendFailed.Add(1)
			c.logger.Warn("message send failed", "topic", topic, "error", err)
		} else {
			c.sent.Add(1)
			c.logger.Debug("message sent", "topic", topic, "size", len(c.comp.Body()))
		}
	} else {
		c.invalid.Add(1)
		c.logger.Warn("invalid message discarded", "body", string(c.comp.Body()))
	}

	c.comp.Start()
	c.cache.Reset()
}

// Run drains the attached buffers every interval while the link is ready,
// and dispatches inbound commands. It returns when ctx is done.
func (c *Consumer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		c.dispatchCommands()
		if !c.link.Ready() {
			continue
		}
		for _, b := range c.buffers {
			c.Drain(b)
		}
	}
}

func (c *Consumer) dispatchCommands() {
	if c.commands == nil {
		return
	}
	for {
		cmd, ok := c.commands.PollCommand()
		if !ok {
			return
		}
		handlers := c.handlers[cmd.Field]
		if len(handlers) == 0 {
			c.logger.Debug("command ignored", "field", cmd.Field.String(), "device", cmd.DeviceID)
			continue
		}
		c.logger.Info("command received", "field", cmd.Field.String(), "device", cmd.DeviceID)
		for _, h := range handlers {
			h(cmd)
		}
	}
}
