package es

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Handler consumes one committed envelope. Envelopes may be redelivered after
// an error or a restart, so handlers must be idempotent.
type Handler func(ctx context.Context, env Envelope) error

// Metrics receives per-envelope delivery counters (optional).
type Metrics interface {
	IncEventsProjected(entityType string)
	IncProjectionErrors(entityType string)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Store is the event store to read committed events from (required).
	Store Store

	// PollInterval is how often to check for new events (default: 100ms).
	PollInterval time.Duration

	// BatchSize is the number of events to read per poll (default: 100).
	BatchSize int

	// Logger is for observability (optional).
	Logger Logger

	// Metrics counts delivered envelopes and handler failures (optional).
	Metrics Metrics
}

// Dispatcher delivers committed events to subscribed handlers, in global
// order, by polling the store. Delivery is asynchronous relative to entity
// writes: a reader of a projection may observe results lagging the latest
// committed event.
//
// The read offset is held in memory. After a restart the dispatcher re-reads
// the log from the beginning, which is safe because handlers are idempotent.
type Dispatcher struct {
	config DispatcherConfig

	mu       sync.Mutex
	handlers map[string][]Handler
	offset   int64
}

// NewDispatcher creates a Dispatcher with the given configuration.
// Applies default values for PollInterval and BatchSize if zero.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}

	return &Dispatcher{
		config:   cfg,
		handlers: make(map[string][]Handler),
	}, nil
}

// Subscribe registers a handler for all events of the given entity type.
// Must be called before Run or Drain.
func (d *Dispatcher) Subscribe(entityType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[entityType] = append(d.handlers[entityType], h)
}

// Drain delivers every pending event and returns. A handler error stops
// delivery before the offset advances past the failing event, so the next
// Drain redelivers it.
func (d *Dispatcher) Drain(ctx context.Context) error {
	for {
		d.mu.Lock()
		offset := d.offset
		d.mu.Unlock()

		envs, err := d.config.Store.ReadSince(ctx, offset, d.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to read events: %w", err)
		}
		if len(envs) == 0 {
			return nil
		}

		for _, env := range envs {
			if err := d.deliver(ctx, env); err != nil {
				return err
			}
			d.mu.Lock()
			d.offset = env.GlobalSeq
			d.mu.Unlock()
		}
	}
}

// Run polls the store until ctx is cancelled, delivering events as they are
// committed. Handler errors are logged and retried on the next poll.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.Drain(ctx); err != nil {
				if d.config.Logger != nil {
					d.config.Logger.Error(ctx, "event dispatch failed", "error", err)
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) error {
	d.mu.Lock()
	handlers := d.handlers[env.EntityType]
	d.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, env); err != nil {
			if d.config.Metrics != nil {
				d.config.Metrics.IncProjectionErrors(env.EntityType)
			}
			return fmt.Errorf("failed to handle %s event %d for %s/%s: %w",
				env.EventType, env.Seq, env.EntityType, env.EntityID, err)
		}
	}
	if d.config.Metrics != nil {
		d.config.Metrics.IncEventsProjected(env.EntityType)
	}
	return nil
}
