package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/events"
)

// Processor handles one raw stream message. A returned events.DecodeError is
// terminal; anything else is treated as transient and the message is
// redelivered.
type Processor interface {
	Process(ctx context.Context, raw []byte) error
	ProcessApplicationUplink(ctx context.Context, raw []byte) error
}

// Config holds the consumer wiring.
type Config struct {
	// StreamSubject carries the gateway-server event envelopes.
	StreamSubject string
	// ApplicationSubject carries the application-layer identity feed.
	ApplicationSubject string
	// Durable is the JetStream durable consumer name prefix.
	Durable string
	// PoolSize bounds the number of messages decoded concurrently.
	PoolSize int
}

// Consumer pulls stream messages from JetStream and fans them out to a
// bounded worker pool. Messages are acknowledged only after the processor
// has persisted them; the decoder's idempotence makes the resulting
// at-least-once delivery safe.
type Consumer struct {
	js   nats.JetStreamContext
	proc Processor
	pool pond.Pool
	cfg  Config
	log  zerolog.Logger
	subs []*nats.Subscription
}

// New creates a consumer on an existing NATS connection.
func New(nc *nats.Conn, proc Processor, cfg Config, log zerolog.Logger) (*Consumer, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	return &Consumer{
		js:   js,
		proc: proc,
		pool: pond.NewPool(cfg.PoolSize),
		cfg:  cfg,
		log:  log.With().Str("component", "consumer").Logger(),
	}, nil
}

// Start subscribes and blocks until ctx is cancelled, then drains the pool.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.js.Subscribe(c.cfg.StreamSubject, c.handleEvent,
		nats.Durable(c.cfg.Durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxAckPending(c.cfg.PoolSize*2),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.StreamSubject, err)
	}
	c.subs = append(c.subs, sub)

	if c.cfg.ApplicationSubject != "" {
		appSub, err := c.js.Subscribe(c.cfg.ApplicationSubject, c.handleApplicationUplink,
			nats.Durable(c.cfg.Durable+"-app"),
			nats.ManualAck(),
			nats.AckExplicit(),
			nats.MaxAckPending(c.cfg.PoolSize*2),
		)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", c.cfg.ApplicationSubject, err)
		}
		c.subs = append(c.subs, appSub)
	}

	c.log.Info().
		Int("subscriptions", len(c.subs)).
		Int("pool_size", c.cfg.PoolSize).
		Msg("event consumer started")

	<-ctx.Done()

	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.pool.StopAndWait()

	return ctx.Err()
}

func (c *Consumer) handleEvent(msg *nats.Msg) {
	c.pool.Submit(func() {
		c.dispatch(msg, c.proc.Process)
	})
}

func (c *Consumer) handleApplicationUplink(msg *nats.Msg) {
	c.pool.Submit(func() {
		c.dispatch(msg, c.proc.ProcessApplicationUplink)
	})
}

// dispatch runs one message through the processor and settles it. Decode
// failures are permanent, so the message is acknowledged and dropped;
// everything else is negatively acknowledged for redelivery.
func (c *Consumer) dispatch(msg *nats.Msg, fn func(context.Context, []byte) error) {
	err := fn(context.Background(), msg.Data)
	if err == nil {
		if err := msg.Ack(); err != nil {
			c.log.Error().Err(err).Str("subject", msg.Subject).Msg("ack failed")
		}
		return
	}

	if isTerminal(err) {
		c.log.Warn().Err(err).Str("subject", msg.Subject).Msg("unprocessable message dropped")
		if err := msg.Ack(); err != nil {
			c.log.Error().Err(err).Str("subject", msg.Subject).Msg("ack failed")
		}
		return
	}

	c.log.Error().Err(err).Str("subject", msg.Subject).Msg("message processing failed")
	if err := msg.Nak(); err != nil {
		c.log.Error().Err(err).Str("subject", msg.Subject).Msg("nak failed")
	}
}

// isTerminal reports whether reprocessing the message can never succeed.
func isTerminal(err error) bool {
	var decodeErr *events.DecodeError
	return errors.As(err, &decodeErr)
}
