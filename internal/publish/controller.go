// Package publish drives the periodic telemetry cycle.
package publish

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/stack-telemetry/internal/mqtt"
	"github.com/sweeney/stack-telemetry/internal/session"
	"github.com/sweeney/stack-telemetry/internal/spool"
	"github.com/sweeney/stack-telemetry/internal/telemetry"
)

// DefaultPeriod is the wait between the end of one cycle and the start of the next.
const DefaultPeriod = 10 * time.Second

// defaultReplayBatch bounds how many spooled messages are resent per cycle.
const defaultReplayBatch = 10

// Sessioner guarantees connectivity before a publish.
type Sessioner interface {
	EnsureConnected(ctx context.Context) error
}

// Result describes the outcome of one publish attempt.
type Result struct {
	Payload []byte
	Err     error
	Spooled bool // the failed payload was stored for a later retry
}

// Config configures a Controller.
type Config struct {
	Topic string

	// Period is slept after every cycle. It is not shortened by the time the
	// cycle itself took, so stalls stretch the cadence.
	Period time.Duration

	// Sleep waits for d or until ctx is done. Defaults to session.SleepCtx.
	Sleep func(ctx context.Context, d time.Duration) bool

	// Spool, if set, keeps failed publishes for replay (at-least-once).
	// When nil, a failed record is dropped.
	Spool *spool.Spool

	// ReplayBatch bounds spooled resends per cycle (default 10).
	ReplayBatch int

	// OnPublish is called after every publish attempt. Optional.
	OnPublish func(Result)
}

// Controller runs the publish loop on the calling goroutine.
type Controller struct {
	session   Sessioner
	transport mqtt.Transport
	builder   telemetry.Builder
	cfg       Config
}

// New creates a Controller.
func New(s Sessioner, transport mqtt.Transport, builder telemetry.Builder, cfg Config) *Controller {
	if cfg.Topic == "" {
		cfg.Topic = mqtt.DefaultTopic
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Sleep == nil {
		cfg.Sleep = session.SleepCtx
	}
	if cfg.ReplayBatch <= 0 {
		cfg.ReplayBatch = defaultReplayBatch
	}
	return &Controller{
		session:   s,
		transport: transport,
		builder:   builder,
		cfg:       cfg,
	}
}

// Run executes cycles until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if err := c.Cycle(ctx); err != nil {
			log.Printf("publish: stopping: %v", err)
			return nil
		}
		if !c.cfg.Sleep(ctx, c.cfg.Period) {
			log.Printf("publish: stopping: %v", ctx.Err())
			return nil
		}
	}
}

// Cycle performs one connect, tick, build and publish. Publish failures are
// logged and never returned; the only error is ctx.Err().
func (c *Controller) Cycle(ctx context.Context) error {
	if err := c.session.EnsureConnected(ctx); err != nil {
		return err
	}

	c.transport.ServiceTick()

	payload, err := telemetry.Encode(c.builder.BuildRecord())
	if err != nil {
		log.Printf("publish: build payload: %v", err)
		c.report(Result{Err: err})
		return nil
	}

	if err := c.transport.Publish(c.cfg.Topic, payload); err != nil {
		log.Printf("publish: failed to publish data: %v", err)
		res := Result{Payload: payload, Err: err}
		if c.cfg.Spool != nil {
			if serr := c.cfg.Spool.Push(c.cfg.Topic, payload); serr != nil {
				log.Printf("publish: spool: %v", serr)
			} else {
				res.Spooled = true
			}
		}
		c.report(res)
		return nil
	}

	log.Printf("publish: data published successfully: %s", payload)
	c.report(Result{Payload: payload})

	if c.cfg.Spool != nil {
		c.replay()
	}
	return nil
}

// replay resends spooled messages oldest first, stopping at the first failure.
func (c *Controller) replay() {
	entries, err := c.cfg.Spool.Peek(c.cfg.ReplayBatch)
	if err != nil {
		log.Printf("publish: spool: %v", err)
		return
	}
	for _, e := range entries {
		if err := c.transport.Publish(e.Topic, e.Payload); err != nil {
			log.Printf("publish: replay stopped: %v", err)
			return
		}
		if err := c.cfg.Spool.Remove(e.Seq); err != nil {
			log.Printf("publish: spool: %v", err)
			return
		}
	}
	if len(entries) > 0 {
		log.Printf("publish: replayed %d spooled messages", len(entries))
	}
}

func (c *Controller) report(r Result) {
	if c.cfg.OnPublish != nil {
		c.cfg.OnPublish(r)
	}
}
