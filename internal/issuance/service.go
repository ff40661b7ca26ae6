// Package issuance coordinates the write path for new credentials:
// content store, then ledger, then index, then audit trail.
//
// The ledger is the commit point. A failure before the mint aborts the whole
// operation with nothing committed; a failure after the mint (index
// bookkeeping) never turns a successful issuance into an error, because the
// source of truth already recorded it.
package issuance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"attest/internal/audit"
	"attest/internal/index"
	"attest/internal/issuance/metrics"
	"attest/internal/ledger"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/retry"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Ledger,ContentStore,IndexStore,AuditPublisher

// Ledger is the slice of the ledger port the coordinator needs.
type Ledger interface {
	Mint(ctx context.Context, idemKey string, student, institution id.Identity, degreeLabel string, contentHash id.ContentHash) (ledger.MintResult, error)
	Get(ctx context.Context, tokenID id.TokenID) (ledger.Credential, error)
}

// ContentStore stores the credential document before the mint.
type ContentStore interface {
	Put(ctx context.Context, data []byte) (id.ContentHash, error)
}

// IndexStore receives the read-optimized mirror write after the mint.
type IndexStore interface {
	Upsert(ctx context.Context, rec index.Record) error
	MarkDirty(ctx context.Context, tokenID id.TokenID) error
}

// AuditPublisher appends lifecycle events to the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Coordinator orchestrates credential issuance.
type Coordinator struct {
	ledger  Ledger
	content ContentStore
	index   IndexStore
	audit   AuditPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	retry   retry.Policy
}

// Option configures a Coordinator instance.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the issuance metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Coordinator) {
		c.retry = p
	}
}

// New creates an issuance coordinator.
func New(l Ledger, cs ContentStore, ix IndexStore, ap AuditPublisher, opts ...Option) (*Coordinator, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cs == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if ix == nil {
		return nil, fmt.Errorf("index store is required")
	}
	if ap == nil {
		return nil, fmt.Errorf("audit publisher is required")
	}

	c := &Coordinator{
		ledger:  l,
		content: cs,
		index:   ix,
		audit:   ap,
		logger:  slog.Default(),
		retry:   retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue validates the request, stores the document, mints on the ledger with
// an idempotency key, mirrors the result into the index, and appends the
// issued audit event.
//
// Retrying with identical inputs is safe: the idempotency key resolves to the
// original mint and the existing credential is returned without error.
func (c *Coordinator) Issue(ctx context.Context, req IssueRequest) (ledger.Credential, error) {
	start := time.Now()

	parsed, err := req.Parse()
	if err != nil {
		c.countFailure("validation")
		return ledger.Credential{}, err
	}

	var hash id.ContentHash
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var perr error
		hash, perr = c.content.Put(ctx, parsed.Document)
		return perr
	})
	if err != nil {
		c.countFailure("content_store")
		return ledger.Credential{}, dErrors.Wrap(err, dErrors.CodeContentStoreUnavailable, "failed to store credential document")
	}

	idemKey := ledger.IdempotencyKey(parsed.Institution, parsed.Student, parsed.DegreeLabel, hash)

	var res ledger.MintResult
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var merr error
		res, merr = c.ledger.Mint(ctx, idemKey, parsed.Student, parsed.Institution, parsed.DegreeLabel, hash)
		return merr
	})
	if err != nil {
		// Nothing is committed on the ledger; the caller may retry with the
		// same inputs and the idempotency key keeps that safe.
		c.countFailure("ledger")
		return ledger.Credential{}, dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger mint failed")
	}

	var cred ledger.Credential
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var gerr error
		cred, gerr = c.ledger.Get(ctx, res.TokenID)
		return gerr
	})
	if err != nil {
		// The mint committed; return what we know rather than failing a
		// successful issuance over a read-back hiccup.
		c.logger.WarnContext(ctx, "mint committed but read-back failed",
			"token_id", res.TokenID,
			"error", err,
		)
		cred = ledger.Credential{
			TokenID:     res.TokenID,
			Student:     parsed.Student,
			Institution: parsed.Institution,
			DegreeLabel: parsed.DegreeLabel,
			ContentHash: hash,
		}
	}

	if res.AlreadyMinted {
		// The ledger recorded one mint; the trail keeps one issued event.
		if c.metrics != nil {
			c.metrics.IncrementDuplicate()
		}
		return cred, nil
	}

	if err := c.index.Upsert(ctx, index.RecordFromCredential(cred)); err != nil {
		// Recoverable: the credential is valid and discoverable via the
		// ledger until reconciliation repairs the index.
		c.logger.ErrorContext(ctx, "index write failed after mint, queued for repair",
			"token_id", cred.TokenID,
			"error", err,
		)
		if qerr := c.index.MarkDirty(ctx, cred.TokenID); qerr != nil {
			c.logger.ErrorContext(ctx, "failed to queue index repair",
				"token_id", cred.TokenID,
				"error", qerr,
			)
		}
		if c.metrics != nil {
			c.metrics.IncrementIndexRepairQueued()
		}
	}

	if err := c.audit.Emit(ctx, audit.Event{
		CredentialRef: cred.TokenID,
		Actor:         parsed.Institution.String(),
		Action:        audit.ActionIssued,
	}); err != nil {
		// Audit appends only fail on storage exhaustion, which is fatal.
		c.countFailure("audit")
		return ledger.Credential{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append issued audit event")
	}

	if c.metrics != nil {
		c.metrics.IncrementIssued()
		c.metrics.ObserveIssueDuration(time.Since(start).Seconds())
	}
	return cred, nil
}

func (c *Coordinator) countFailure(stage string) {
	if c.metrics != nil {
		c.metrics.IncrementFailures(stage)
	}
}
