// Package reconcile repairs the credential index against the ledger.
//
// Index writes are best-effort on the issuance and verification paths: a
// failed mirror write marks the token dirty instead of failing the request.
// The reconciler drains that queue on an interval, re-reading ledger truth
// for each dirty token and rewriting the index record.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"attest/internal/index"
	"attest/internal/ledger"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// LedgerReader is the slice of the ledger port the reconciler needs.
type LedgerReader interface {
	Get(ctx context.Context, tokenID id.TokenID) (ledger.Credential, error)
}

// Reconciler polls the index repair queue and rewrites dirty records from
// ledger truth.
type Reconciler struct {
	ledger      LedgerReader
	index       index.Store
	interval    time.Duration
	batchSize   int
	concurrency int
	metrics     *Metrics
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Reconciler.
type Option func(*Reconciler)

// WithInterval sets the time between repair passes.
func WithInterval(interval time.Duration) Option {
	return func(r *Reconciler) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithBatchSize caps how many dirty tokens one pass picks up.
func WithBatchSize(size int) Option {
	return func(r *Reconciler) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// WithConcurrency bounds how many tokens are repaired in parallel.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an index reconciler.
func New(l LedgerReader, ix index.Store, opts ...Option) (*Reconciler, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if ix == nil {
		return nil, fmt.Errorf("index store is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		ledger:      l,
		index:       ix,
		interval:    time.Minute,
		batchSize:   100,
		concurrency: 4,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start begins the repair loop in a background goroutine.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(r.ctx); err != nil {
				r.logger.Error("index repair pass failed", "error", err)
			}
		}
	}
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce drains one batch of the repair queue and reports how many records
// were repaired. Tokens whose repair fails stay queued for the next pass.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()

	dirty, err := r.index.ListDirty(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("listing repair queue: %w", err)
	}
	if len(dirty) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var repaired, dropped, failed int64
	var mu sync.Mutex

	for _, tokenID := range dirty {
		g.Go(func() error {
			switch err := r.repair(gctx, tokenID); {
			case err == nil:
				mu.Lock()
				repaired++
				mu.Unlock()
			case dErrors.HasCode(err, dErrors.CodeNotFound):
				// The ledger has no such token; the queue entry is garbage.
				mu.Lock()
				dropped++
				mu.Unlock()
				if cerr := r.index.ClearDirty(gctx, tokenID); cerr != nil {
					r.logger.Warn("failed to drop stale repair entry", "token_id", tokenID, "error", cerr)
				}
			default:
				mu.Lock()
				failed++
				mu.Unlock()
				r.logger.Warn("index repair failed, token stays queued",
					"token_id", tokenID,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	if r.metrics != nil {
		r.metrics.RepairedTotal.Add(float64(repaired))
		r.metrics.DroppedTotal.Add(float64(dropped))
		r.metrics.FailuresTotal.Add(float64(failed))
		r.metrics.PassDuration.Observe(time.Since(start).Seconds())
	}
	r.logger.Info("index repair pass complete",
		"queued", len(dirty),
		"repaired", repaired,
		"dropped", dropped,
		"failed", failed,
	)
	return int(repaired), nil
}

// repair rewrites one token's index record from ledger truth and clears its
// queue entry. Order matters: the record is written before the dirty flag is
// cleared, so a crash in between only causes a redundant repair.
func (r *Reconciler) repair(ctx context.Context, tokenID id.TokenID) error {
	truth, err := r.ledger.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if err := r.index.Upsert(ctx, index.RecordFromCredential(truth)); err != nil {
		return fmt.Errorf("rewriting index record: %w", err)
	}
	return r.index.ClearDirty(ctx, tokenID)
}
