// Package verification resolves credential lookups while enforcing the free
// quota and entitlement policy.
//
// Per caller identity the gateway behaves as a three-state machine:
// anonymous callers are gated by the public-verification flag, identified
// callers without an entitlement consume the durable quota, and entitled
// callers bypass the quota entirely (the counter is never reset). The
// entitlement oracle is consulted on every call, never cached across calls.
//
// Reads go index-first for latency, but the revocation bit is cross-checked
// against the ledger on every read: that bit is security-critical, the ledger
// always wins, and a disagreement schedules index repair. Revocation and
// quota decisions fail closed - an unreachable ledger or an erroring oracle
// never widens access.
package verification

import (
	"context"
	"fmt"
	"log/slog"

	"attest/internal/audit"
	"attest/internal/entitlement"
	"attest/internal/index"
	"attest/internal/ledger"
	"attest/internal/verification/metrics"
	"attest/internal/verification/quota"
	"attest/internal/verification/tracer"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/circuit"
)

// QuotaScope keys free-verification counters in the quota store.
const QuotaScope = "verifier"

// LedgerReader is the slice of the ledger port the gateway needs.
type LedgerReader interface {
	Get(ctx context.Context, tokenID id.TokenID) (ledger.Credential, error)
	ListByStudent(ctx context.Context, student id.Identity) ([]ledger.Credential, error)
}

// AuditPublisher appends lifecycle events to the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config carries the gateway's policy knobs.
type Config struct {
	// FreeVerifyLimit caps unentitled lookups per identity. Zero falls back to 3.
	FreeVerifyLimit int
	// PublicVerification allows anonymous lookups to proceed unmetered.
	// When false, anonymous lookups are rejected.
	PublicVerification bool
}

// Gateway resolves verification lookups.
type Gateway struct {
	ledger  LedgerReader
	index   index.Store
	quotas  quota.Store
	oracle  entitlement.Oracle
	audit   AuditPublisher
	breaker *circuit.Breaker
	tracer  tracer.Tracer
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
}

// Option configures a Gateway instance.
type Option func(*Gateway)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the verification metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithTracer sets the span tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithBreaker overrides the ledger circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(g *Gateway) {
		if b != nil {
			g.breaker = b
		}
	}
}

// New creates a verification gateway.
func New(l LedgerReader, ix index.Store, qs quota.Store, oracle entitlement.Oracle, ap AuditPublisher, cfg Config, opts ...Option) (*Gateway, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if ix == nil {
		return nil, fmt.Errorf("index store is required")
	}
	if qs == nil {
		return nil, fmt.Errorf("quota store is required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("entitlement oracle is required")
	}
	if ap == nil {
		return nil, fmt.Errorf("audit publisher is required")
	}
	if cfg.FreeVerifyLimit <= 0 {
		cfg.FreeVerifyLimit = 3
	}

	g := &Gateway{
		ledger:  l,
		index:   ix,
		quotas:  qs,
		oracle:  oracle,
		audit:   ap,
		breaker: circuit.New("ledger"),
		tracer:  tracer.NewNoop(),
		logger:  slog.Default(),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Verify resolves a lookup for the given caller. A zero caller identity means
// an anonymous lookup (e.g. via a public share link). Revoked credentials
// resolve successfully with Revoked=true; revocation is a fact to surface,
// not a resolution failure.
func (g *Gateway) Verify(ctx context.Context, tokenID id.TokenID, caller id.Identity) (cred ledger.Credential, err error) {
	ctx, span := g.tracer.Start(ctx, "verification.resolve",
		tracer.Int64("token_id", int64(tokenID)),
		tracer.Bool("anonymous", caller.IsNil()),
	)
	defer func() { span.End(err) }()

	if tokenID.IsNil() {
		return ledger.Credential{}, dErrors.New(dErrors.CodeInvalidInput, "token ID is required")
	}

	if err := g.gate(ctx, caller); err != nil {
		return ledger.Credential{}, err
	}

	cred, err = g.read(ctx, tokenID)
	if err != nil {
		g.countOutcome(err)
		return ledger.Credential{}, err
	}

	if err := g.audit.Emit(ctx, audit.Event{
		CredentialRef: tokenID,
		Actor:         caller.String(),
		Action:        audit.ActionViewed,
	}); err != nil {
		return ledger.Credential{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append viewed audit event")
	}

	if g.metrics != nil {
		g.metrics.IncrementVerifications("ok")
	}
	span.SetAttributes(tracer.Bool("revoked", cred.Revoked))
	return cred, nil
}

// Quota reports the caller's current free-verification counter.
func (g *Gateway) Quota(ctx context.Context, identity id.Identity) (quota.Record, error) {
	if identity.IsNil() {
		return quota.Record{}, dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	return g.quotas.Get(ctx, identity, QuotaScope, g.cfg.FreeVerifyLimit)
}

// ListByStudent returns the student's credentials for wallet views. The
// mirror serves the listing; the ledger overlays the revocation bits so a
// stale mirror never shows a revoked credential as active. When the ledger is
// away the mirror is served as-is, since a wallet view is the holder's own
// data, not a verification decision.
func (g *Gateway) ListByStudent(ctx context.Context, student id.Identity) ([]index.Record, error) {
	if student.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "student identity is required")
	}

	records, err := g.index.ListByStudent(ctx, student)
	if err != nil {
		return nil, err
	}

	creds, err := g.ledger.ListByStudent(ctx, student)
	if err != nil {
		g.logger.WarnContext(ctx, "ledger listing failed, serving mirror without overlay",
			"student", student,
			"error", err,
		)
		return records, nil
	}

	revoked := make(map[id.TokenID]bool, len(creds))
	for _, cred := range creds {
		revoked[cred.TokenID] = cred.Revoked
	}
	for i := range records {
		if r, ok := revoked[records[i].TokenID]; ok {
			records[i].Revoked = r
		}
	}
	return records, nil
}

// gate applies the anonymous/entitled/metered policy before any credential read.
func (g *Gateway) gate(ctx context.Context, caller id.Identity) error {
	if caller.IsNil() {
		if !g.cfg.PublicVerification {
			return dErrors.New(dErrors.CodeUnauthorized, "anonymous verification is disabled")
		}
		return nil
	}

	ent, err := g.oracle.Check(ctx, caller, entitlement.ScopeVerifier)
	if err != nil {
		// Fail closed: an unreachable oracle never grants free passage.
		g.logger.WarnContext(ctx, "entitlement check failed, treating caller as unentitled",
			"identity", caller,
			"error", err,
		)
		ent = entitlement.Entitlement{}
	}
	if ent.Active {
		// Entitled callers bypass the quota; the counter is left untouched.
		return nil
	}

	rec, allowed, err := g.quotas.Consume(ctx, caller, QuotaScope, g.cfg.FreeVerifyLimit)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "quota check failed")
	}
	if !allowed {
		if g.metrics != nil {
			g.metrics.IncrementQuotaDenied()
		}
		return dErrors.New(dErrors.CodeQuotaExceeded,
			fmt.Sprintf("free verification limit of %d reached", rec.Limit))
	}
	return nil
}

// read resolves the credential index-first with the ledger authoritative for
// the revocation bit.
func (g *Gateway) read(ctx context.Context, tokenID id.TokenID) (ledger.Credential, error) {
	if !g.breaker.Allow() {
		// The circuit is open and no probe is due: the revocation bit cannot
		// be trusted, so refuse rather than serve possibly-stale index state.
		// The periodic probe below is what lets the circuit close again.
		if g.metrics != nil {
			g.metrics.IncrementLedgerFailClosed()
		}
		return ledger.Credential{}, ledger.ErrUnavailable
	}

	truth, err := g.ledger.Get(ctx, tokenID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			g.breaker.RecordSuccess()
			return ledger.Credential{}, err
		}
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.ErrorContext(ctx, "ledger circuit opened", "error", err)
		}
		if g.metrics != nil {
			g.metrics.IncrementLedgerFailClosed()
		}
		return ledger.Credential{}, dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger unreachable, failing closed")
	}
	g.breaker.RecordSuccess()

	rec, err := g.index.FindByToken(ctx, tokenID)
	if err != nil {
		// Index miss: serve ledger truth and backfill the mirror.
		if uerr := g.index.Upsert(ctx, index.RecordFromCredential(truth)); uerr != nil {
			g.logger.WarnContext(ctx, "index backfill failed", "token_id", tokenID, "error", uerr)
		}
		return truth, nil
	}

	if !rec.Revoked && truth.Revoked {
		// The index is stale on the one bit that matters. The ledger wins
		// now; the record is repaired in line and re-checked asynchronously.
		if g.metrics != nil {
			g.metrics.IncrementRevocationConflicts()
		}
		g.logger.WarnContext(ctx, "index revocation conflict, ledger wins",
			"token_id", tokenID,
		)
		if merr := g.index.MarkRevoked(ctx, tokenID); merr != nil {
			g.logger.WarnContext(ctx, "index revocation repair failed", "token_id", tokenID, "error", merr)
		}
		if qerr := g.index.MarkDirty(ctx, tokenID); qerr != nil {
			g.logger.WarnContext(ctx, "failed to queue index repair", "token_id", tokenID, "error", qerr)
		}
	}

	cred := ledger.Credential{
		TokenID:     rec.TokenID,
		Student:     rec.Student,
		Institution: rec.Institution,
		DegreeLabel: rec.DegreeLabel,
		IssueDate:   rec.IssueDate,
		ContentHash: rec.ContentHash,
		Revoked:     truth.Revoked, // ledger-authoritative, always
	}
	return cred, nil
}

func (g *Gateway) countOutcome(err error) {
	if g.metrics == nil {
		return
	}
	switch {
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		g.metrics.IncrementVerifications("not_found")
	default:
		g.metrics.IncrementVerifications("error")
	}
}
