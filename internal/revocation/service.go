// Package revocation handles the one irreversible state transition a
// credential can make.
//
// Only the issuing institution may revoke, the ledger records the transition
// first, and there is no unrevoke: a repeated revocation is a no-op, not an
// error, so institution-side retries are safe.
package revocation

import (
	"context"
	"fmt"
	"log/slog"

	"attest/internal/audit"
	"attest/internal/ledger"
	"attest/internal/revocation/metrics"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/retry"
)

// Ledger is the slice of the ledger port the service needs.
type Ledger interface {
	Get(ctx context.Context, tokenID id.TokenID) (ledger.Credential, error)
	Revoke(ctx context.Context, tokenID id.TokenID) error
}

// IndexStore receives the mirrored revocation bit after the ledger commit.
type IndexStore interface {
	MarkRevoked(ctx context.Context, tokenID id.TokenID) error
	MarkDirty(ctx context.Context, tokenID id.TokenID) error
}

// AuditPublisher appends lifecycle events to the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service processes revocation requests.
type Service struct {
	ledger  Ledger
	index   IndexStore
	audit   AuditPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	retry   retry.Policy
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the revocation metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.retry = p
	}
}

// New creates a revocation service.
func New(l Ledger, ix IndexStore, ap AuditPublisher, opts ...Option) (*Service, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if ix == nil {
		return nil, fmt.Errorf("index store is required")
	}
	if ap == nil {
		return nil, fmt.Errorf("audit publisher is required")
	}

	s := &Service{
		ledger: l,
		index:  ix,
		audit:  ap,
		logger: slog.Default(),
		retry:  retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Revoke marks the credential revoked on the ledger and mirrors the bit into
// the index. Only the issuing institution may revoke its own credential.
//
// Revoking an already revoked credential succeeds without appending a second
// revoked event; the trail records each transition once.
func (s *Service) Revoke(ctx context.Context, tokenID id.TokenID, caller id.Identity) error {
	if tokenID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "token ID is required")
	}
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	var cred ledger.Credential
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		var gerr error
		cred, gerr = s.ledger.Get(ctx, tokenID)
		return gerr
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.countFailure("not_found")
			return err
		}
		s.countFailure("ledger")
		return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger read failed")
	}

	if cred.Institution != caller {
		s.countFailure("forbidden")
		return dErrors.New(dErrors.CodeForbidden, "only the issuing institution may revoke a credential")
	}

	if cred.Revoked {
		if s.metrics != nil {
			s.metrics.IncrementAlreadyRevoked()
		}
		return nil
	}

	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.ledger.Revoke(ctx, tokenID)
	})
	if err != nil {
		s.countFailure("ledger")
		return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger revoke failed")
	}

	if err := s.index.MarkRevoked(ctx, tokenID); err != nil {
		// The ledger holds the truth and every read cross-checks it; a stale
		// mirror is repaired by the reconciler, not surfaced to the caller.
		s.logger.ErrorContext(ctx, "index revocation write failed, queued for repair",
			"token_id", tokenID,
			"error", err,
		)
		if qerr := s.index.MarkDirty(ctx, tokenID); qerr != nil {
			s.logger.ErrorContext(ctx, "failed to queue index repair",
				"token_id", tokenID,
				"error", qerr,
			)
		}
	}

	if err := s.audit.Emit(ctx, audit.Event{
		CredentialRef: tokenID,
		Actor:         caller.String(),
		Action:        audit.ActionRevoked,
	}); err != nil {
		s.countFailure("audit")
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append revoked audit event")
	}

	if s.metrics != nil {
		s.metrics.IncrementRevoked()
	}
	return nil
}

func (s *Service) countFailure(stage string) {
	if s.metrics != nil {
		s.metrics.IncrementFailures(stage)
	}
}
