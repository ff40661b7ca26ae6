// Package sharing mints and resolves shareable references to a credential.
//
// A share token is an HMAC-signed JWT carrying the credential reference, not
// a capability: resolving one yields the reference only, and the caller is
// pushed through the verification gateway like any direct lookup. Expired
// tokens are reported as expired, not invalid, so a holder can tell "this
// link lapsed" apart from "this link never existed".
package sharing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"attest/internal/audit"
	"attest/internal/ledger"
	"attest/internal/sharing/metrics"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

const tokenIssuer = "attest"

// LedgerReader is the slice of the ledger port the service needs.
type LedgerReader interface {
	Get(ctx context.Context, tokenID id.TokenID) (ledger.Credential, error)
}

// AuditPublisher appends lifecycle events to the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ShareToken is a minted shareable reference.
type ShareToken struct {
	Token         string
	CredentialRef id.TokenID
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// shareClaims is the JWT payload of a share token.
type shareClaims struct {
	CredentialRef string `json:"credential_ref"`
	jwt.RegisteredClaims
}

// Service mints and resolves share tokens.
type Service struct {
	signingKey []byte
	defaultTTL time.Duration
	ledger     LedgerReader
	audit      AuditPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option configures a Service instance.
type Option func(*Service)

// WithDefaultTTL sets the lifetime used when the mint request carries none.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the sharing metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a sharing token service.
func New(signingKey string, l LedgerReader, ap AuditPublisher, opts ...Option) (*Service, error) {
	if signingKey == "" {
		return nil, fmt.Errorf("signing key is required")
	}
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if ap == nil {
		return nil, fmt.Errorf("audit publisher is required")
	}

	s := &Service{
		signingKey: []byte(signingKey),
		defaultTTL: 72 * time.Hour,
		ledger:     l,
		audit:      ap,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Mint creates a share token for the credential. Only the holding student may
// mint one. A non-positive ttl falls back to the service default.
func (s *Service) Mint(ctx context.Context, tokenID id.TokenID, holder id.Identity, ttl time.Duration) (ShareToken, error) {
	if tokenID.IsNil() {
		return ShareToken{}, dErrors.New(dErrors.CodeInvalidInput, "token ID is required")
	}
	if holder.IsNil() {
		return ShareToken{}, dErrors.New(dErrors.CodeUnauthorized, "holder identity is required")
	}

	cred, err := s.ledger.Get(ctx, tokenID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return ShareToken{}, err
		}
		return ShareToken{}, dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger read failed")
	}
	if cred.Student != holder {
		return ShareToken{}, dErrors.New(dErrors.CodeForbidden, "only the credential holder may share it")
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, shareClaims{
		CredentialRef: tokenID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   holder.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}).SignedString(s.signingKey)
	if err != nil {
		return ShareToken{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign share token")
	}

	if err := s.audit.Emit(ctx, audit.Event{
		CredentialRef: tokenID,
		Actor:         holder.String(),
		Action:        audit.ActionShared,
	}); err != nil {
		return ShareToken{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append shared audit event")
	}

	if s.metrics != nil {
		s.metrics.IncrementMinted()
	}
	return ShareToken{
		Token:         signed,
		CredentialRef: tokenID,
		IssuedAt:      now,
		ExpiresAt:     expiresAt,
	}, nil
}

// Resolve validates a share token and returns the credential reference it
// carries. Resolution grants nothing by itself: the caller hands the
// reference to the verification gateway, which applies the same quota and
// entitlement policy as a direct lookup.
func (s *Service) Resolve(_ context.Context, tokenString string) (id.TokenID, error) {
	if tokenString == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "empty share token")
	}

	claims := new(shareClaims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.countResolved("expired")
			return 0, dErrors.New(dErrors.CodeExpiredToken, "share token expired")
		}
		s.countResolved("invalid")
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid share token")
	}
	if !parsed.Valid {
		s.countResolved("invalid")
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid share token")
	}

	ref, err := id.ParseTokenID(claims.CredentialRef)
	if err != nil {
		s.countResolved("invalid")
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid share token payload")
	}

	s.countResolved("ok")
	return ref, nil
}

func (s *Service) countResolved(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementResolved(outcome)
	}
}
