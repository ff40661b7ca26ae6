package audit

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	id "attest/pkg/domain"
)

// historyPageSize bounds how many events one store round-trip fetches while
// iterating a credential's history.
const historyPageSize = 64

// Publisher captures credential lifecycle events. It is append-only and uses
// the storage layer for persistence so tests can swap sinks easily.
//
// Unlike a metrics pipeline, the audit trail must not lose events: when the
// async buffer is full, Emit blocks instead of dropping.
type Publisher struct {
	store  Store
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

// processEvents runs in a goroutine and persists events from the channel.
func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"action", event.Action,
				"credential_ref", event.CredentialRef,
			)
		}
	}
}

// Close shuts down the async publisher and waits for pending events to drain.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit records an event. Missing timestamps and ids are filled in here so
// callers only supply the domain facts.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Actor == "" {
		event.Actor = ActorPublic
	}

	if p.async {
		// Blocking send: audit events are never dropped.
		select {
		case p.events <- event:
			return nil
		case <-ctx.Done():
			return p.store.Append(ctx, event)
		}
	}
	return p.store.Append(ctx, event)
}

// History returns the credential's event sequence oldest-first as a lazy,
// restartable iterator. Each ranging of the returned sequence re-pages from
// the store, so a partially consumed history can be replayed from the start.
func (p *Publisher) History(ctx context.Context, ref id.TokenID) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		var afterSeq uint64
		for {
			page, err := p.store.ListByCredential(ctx, ref, afterSeq, historyPageSize)
			if err != nil {
				yield(Event{}, err)
				return
			}
			if len(page) == 0 {
				return
			}
			for _, event := range page {
				if !yield(event, nil) {
					return
				}
				afterSeq = event.Seq
			}
		}
	}
}
