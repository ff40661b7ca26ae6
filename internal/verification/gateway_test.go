package verification

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/audit"
	"attest/internal/entitlement"
	"attest/internal/index"
	"attest/internal/ledger"
	"attest/internal/verification/quota"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/circuit"
	"attest/pkg/testutil"
)

// countingLedger wraps a ledger and lets tests flip it into a failure mode.
type countingLedger struct {
	inner LedgerReader
	calls atomic.Int64
	down  atomic.Bool
}

func (c *countingLedger) Get(ctx context.Context, tokenID id.TokenID) (ledger.Credential, error) {
	c.calls.Add(1)
	if c.down.Load() {
		return ledger.Credential{}, ledger.ErrUnavailable
	}
	return c.inner.Get(ctx, tokenID)
}

func (c *countingLedger) ListByStudent(ctx context.Context, student id.Identity) ([]ledger.Credential, error) {
	if c.down.Load() {
		return nil, ledger.ErrUnavailable
	}
	return c.inner.ListByStudent(ctx, student)
}

type GatewayTestSuite struct {
	suite.Suite

	ledger     *ledger.InMemoryLedger
	ledgerWrap *countingLedger
	index      *index.InMemoryStore
	quotas     *quota.InMemoryStore
	oracle     *entitlement.StaticOracle
	auditStore *audit.InMemoryStore
	publisher  *audit.Publisher
	gateway    *Gateway

	token id.TokenID
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}

func (s *GatewayTestSuite) SetupTest() {
	s.ledger = ledger.NewInMemory()
	s.ledgerWrap = &countingLedger{inner: s.ledger}
	s.index = index.NewInMemoryStore()
	s.quotas = quota.NewInMemoryStore()
	s.oracle = entitlement.NewStaticOracle()
	s.auditStore = audit.NewInMemoryStore()
	s.publisher = audit.NewPublisher(s.auditStore)

	s.token = s.mint(testutil.TestIDs.Student1, "BSc (2024)")

	var err error
	s.gateway, err = New(s.ledgerWrap, s.index, s.quotas, s.oracle, s.publisher, Config{FreeVerifyLimit: 3})
	s.Require().NoError(err)
}

// mint seeds a credential in the ledger and mirrors it in the index, the
// state issuance leaves behind.
func (s *GatewayTestSuite) mint(student id.Identity, degree string) id.TokenID {
	hash := id.ContentHash("sha256:00000000000000000000000000000000000000000000000000000000000000aa")
	key := ledger.IdempotencyKey(testutil.TestIDs.Institution1, student, degree, hash)
	res, err := s.ledger.Mint(context.Background(), key, student, testutil.TestIDs.Institution1, degree, hash)
	s.Require().NoError(err)

	cred, err := s.ledger.Get(context.Background(), res.TokenID)
	s.Require().NoError(err)
	s.Require().NoError(s.index.Upsert(context.Background(), index.RecordFromCredential(cred)))
	return res.TokenID
}

func (s *GatewayTestSuite) TestNewValidation() {
	tests := []struct {
		name string
		fn   func() (*Gateway, error)
	}{
		{"nil ledger", func() (*Gateway, error) {
			return New(nil, s.index, s.quotas, s.oracle, s.publisher, Config{})
		}},
		{"nil index", func() (*Gateway, error) {
			return New(s.ledgerWrap, nil, s.quotas, s.oracle, s.publisher, Config{})
		}},
		{"nil quota store", func() (*Gateway, error) {
			return New(s.ledgerWrap, s.index, nil, s.oracle, s.publisher, Config{})
		}},
		{"nil oracle", func() (*Gateway, error) {
			return New(s.ledgerWrap, s.index, s.quotas, nil, s.publisher, Config{})
		}},
		{"nil audit publisher", func() (*Gateway, error) {
			return New(s.ledgerWrap, s.index, s.quotas, s.oracle, nil, Config{})
		}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			gw, err := tt.fn()
			s.Error(err)
			s.Nil(gw)
		})
	}
}

func (s *GatewayTestSuite) TestVerifyHappyPath() {
	cred, err := s.gateway.Verify(context.Background(), s.token, testutil.TestIDs.Employer1)
	s.Require().NoError(err)
	s.Equal(s.token, cred.TokenID)
	s.Equal(testutil.TestIDs.Student1, cred.Student)
	s.Equal("BSc (2024)", cred.DegreeLabel)
	s.False(cred.Revoked)

	events, err := s.auditStore.ListByCredential(context.Background(), s.token, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.ActionViewed, events[0].Action)
	s.Equal(testutil.TestIDs.Employer1.String(), events[0].Actor)
}

func (s *GatewayTestSuite) TestVerifyUnknownToken() {
	_, err := s.gateway.Verify(context.Background(), id.TokenID(999), testutil.TestIDs.Employer1)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *GatewayTestSuite) TestVerifyZeroToken() {
	_, err := s.gateway.Verify(context.Background(), 0, testutil.TestIDs.Employer1)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *GatewayTestSuite) TestAnonymousRejectedByDefault() {
	_, err := s.gateway.Verify(context.Background(), s.token, id.Identity(""))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	// The rejection happens before any read or audit write.
	s.Zero(s.ledgerWrap.calls.Load())
	events, err := s.auditStore.ListByCredential(context.Background(), s.token, 0, 10)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *GatewayTestSuite) TestAnonymousAllowedWhenPublic() {
	gw, err := New(s.ledgerWrap, s.index, s.quotas, s.oracle, s.publisher, Config{
		FreeVerifyLimit:    3,
		PublicVerification: true,
	})
	s.Require().NoError(err)

	// Anonymous lookups are unmetered: far more than the free limit succeed.
	for i := 0; i < 10; i++ {
		cred, err := gw.Verify(context.Background(), s.token, id.Identity(""))
		s.Require().NoError(err)
		s.False(cred.Revoked)
	}

	events, err := s.auditStore.ListByCredential(context.Background(), s.token, 0, 20)
	s.Require().NoError(err)
	s.Require().Len(events, 10)
	s.Equal(audit.ActorPublic, events[0].Actor)
}

func (s *GatewayTestSuite) TestQuotaExhaustion() {
	caller := testutil.TestIDs.Employer1
	for i := 0; i < 3; i++ {
		_, err := s.gateway.Verify(context.Background(), s.token, caller)
		s.Require().NoError(err, "lookup %d should be within the free limit", i+1)
	}

	_, err := s.gateway.Verify(context.Background(), s.token, caller)
	s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))

	// A denied lookup must not leak through to the audit trail.
	events, err := s.auditStore.ListByCredential(context.Background(), s.token, 0, 10)
	s.Require().NoError(err)
	s.Len(events, 3)

	// A different identity has its own counter.
	_, err = s.gateway.Verify(context.Background(), s.token, testutil.TestIDs.Employer2)
	s.NoError(err)
}

func (s *GatewayTestSuite) TestQuotaDenialLeavesCounterAtLimit() {
	caller := testutil.TestIDs.Employer1
	for i := 0; i < 6; i++ {
		_, _ = s.gateway.Verify(context.Background(), s.token, caller)
	}

	rec, err := s.gateway.Quota(context.Background(), caller)
	s.Require().NoError(err)
	s.Equal(3, rec.Consumed)
	s.Zero(rec.Remaining())
}

func (s *GatewayTestSuite) TestQuotaAtomicUnderConcurrency() {
	caller := testutil.TestIDs.Employer1

	result := testutil.RunConcurrent(50, func(int) error {
		_, err := s.gateway.Verify(context.Background(), s.token, caller)
		return err
	})

	s.Equal(int32(3), result.Successes, "exactly the free limit may pass, never more")
	s.Equal(int32(47), result.QuotaDenied)
	s.Zero(result.Errors)

	rec, err := s.gateway.Quota(context.Background(), caller)
	s.Require().NoError(err)
	s.Equal(3, rec.Consumed)
}

func (s *GatewayTestSuite) TestEntitledCallerBypassesQuota() {
	caller := testutil.TestIDs.Employer1
	s.oracle.Grant(caller, entitlement.ScopeVerifier, nil)

	for i := 0; i < 10; i++ {
		_, err := s.gateway.Verify(context.Background(), s.token, caller)
		s.Require().NoError(err)
	}

	// Bypass means bypass: the counter is never touched, let alone reset.
	rec, err := s.gateway.Quota(context.Background(), caller)
	s.Require().NoError(err)
	s.Zero(rec.Consumed)
}

func (s *GatewayTestSuite) TestEntitlementLapseResumesMetering() {
	caller := testutil.TestIDs.Employer1

	// Two free lookups before the subscription starts.
	for i := 0; i < 2; i++ {
		_, err := s.gateway.Verify(context.Background(), s.token, caller)
		s.Require().NoError(err)
	}

	s.oracle.Grant(caller, entitlement.ScopeVerifier, nil)
	for i := 0; i < 5; i++ {
		_, err := s.gateway.Verify(context.Background(), s.token, caller)
		s.Require().NoError(err)
	}

	// After the subscription lapses the old count still stands: one free
	// lookup left, then denial.
	s.oracle.Release(caller, entitlement.ScopeVerifier)
	_, err := s.gateway.Verify(context.Background(), s.token, caller)
	s.Require().NoError(err)

	_, err = s.gateway.Verify(context.Background(), s.token, caller)
	s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))
}

func (s *GatewayTestSuite) TestExpiredEntitlementIsMetered() {
	caller := testutil.TestIDs.Employer1
	past := time.Now().Add(-time.Hour)
	s.oracle.Grant(caller, entitlement.ScopeVerifier, &past)

	for i := 0; i < 3; i++ {
		_, err := s.gateway.Verify(context.Background(), s.token, caller)
		s.Require().NoError(err)
	}
	_, err := s.gateway.Verify(context.Background(), s.token, caller)
	s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))
}

func (s *GatewayTestSuite) TestOracleFailureFailsClosed() {
	gw, err := New(s.ledgerWrap, s.index, s.quotas, failingOracle{}, s.publisher, Config{FreeVerifyLimit: 3})
	s.Require().NoError(err)

	// An erroring oracle downgrades the caller to metered, never to entitled.
	caller := testutil.TestIDs.Employer1
	for i := 0; i < 3; i++ {
		_, err := gw.Verify(context.Background(), s.token, caller)
		s.Require().NoError(err)
	}
	_, err = gw.Verify(context.Background(), s.token, caller)
	s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))
}

func (s *GatewayTestSuite) TestRevokedCredentialResolves() {
	s.Require().NoError(s.ledger.Revoke(context.Background(), s.token))
	s.Require().NoError(s.index.MarkRevoked(context.Background(), s.token))

	cred, err := s.gateway.Verify(context.Background(), s.token, testutil.TestIDs.Employer1)
	s.Require().NoError(err, "revocation is surfaced, not treated as a lookup failure")
	s.True(cred.Revoked)
}

func (s *GatewayTestSuite) TestStaleIndexRevocationConflict() {
	// Revoke on the ledger only; the index still says active.
	s.Require().NoError(s.ledger.Revoke(context.Background(), s.token))

	cred, err := s.gateway.Verify(context.Background(), s.token, testutil.TestIDs.Employer1)
	s.Require().NoError(err)
	s.True(cred.Revoked, "the ledger's revocation bit wins over the stale mirror")

	// The conflict triggers inline repair and queues the record for the
	// reconciler.
	rec, err := s.index.FindByToken(context.Background(), s.token)
	s.Require().NoError(err)
	s.True(rec.Revoked)

	dirty, err := s.index.ListDirty(context.Background(), 10)
	s.Require().NoError(err)
	s.Contains(dirty, s.token)
}

func (s *GatewayTestSuite) TestIndexMissBackfillsFromLedger() {
	hash := id.ContentHash("sha256:00000000000000000000000000000000000000000000000000000000000000bb")
	key := ledger.IdempotencyKey(testutil.TestIDs.Institution1, testutil.TestIDs.Student2, "MSc (2025)", hash)
	res, err := s.ledger.Mint(context.Background(), key, testutil.TestIDs.Student2, testutil.TestIDs.Institution1, "MSc (2025)", hash)
	s.Require().NoError(err)

	cred, err := s.gateway.Verify(context.Background(), res.TokenID, testutil.TestIDs.Employer1)
	s.Require().NoError(err)
	s.Equal("MSc (2025)", cred.DegreeLabel)

	rec, err := s.index.FindByToken(context.Background(), res.TokenID)
	s.Require().NoError(err)
	s.Equal(res.TokenID, rec.TokenID)
}

func (s *GatewayTestSuite) TestLedgerDownFailsClosed() {
	s.ledgerWrap.down.Store(true)

	_, err := s.gateway.Verify(context.Background(), s.token, testutil.TestIDs.Employer1)
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerUnavailable),
		"a stale index must never answer when the revocation bit cannot be checked")
}

func (s *GatewayTestSuite) TestBreakerShedsLoadWhileLedgerDown() {
	breaker := circuit.New("ledger", circuit.WithFailureThreshold(2))
	gw, err := New(s.ledgerWrap, s.index, s.quotas, s.oracle, s.publisher,
		Config{FreeVerifyLimit: 3, PublicVerification: true},
		WithBreaker(breaker),
	)
	s.Require().NoError(err)

	s.ledgerWrap.down.Store(true)
	for i := 0; i < 2; i++ {
		_, err := gw.Verify(context.Background(), s.token, id.Identity(""))
		s.Require().Error(err)
	}
	s.True(breaker.IsOpen())

	// With the circuit open the ledger is no longer hit, but callers still
	// get the fail-closed answer.
	before := s.ledgerWrap.calls.Load()
	_, err = gw.Verify(context.Background(), s.token, id.Identity(""))
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))
	s.Equal(before, s.ledgerWrap.calls.Load())
}

func (s *GatewayTestSuite) TestBreakerRecoversWhenLedgerReturns() {
	now := time.Unix(1700000000, 0)
	breaker := circuit.New("ledger",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithProbeInterval(10*time.Second),
		circuit.WithClock(func() time.Time { return now }),
	)
	gw, err := New(s.ledgerWrap, s.index, s.quotas, s.oracle, s.publisher,
		Config{FreeVerifyLimit: 3, PublicVerification: true},
		WithBreaker(breaker),
	)
	s.Require().NoError(err)

	s.ledgerWrap.down.Store(true)
	for i := 0; i < 2; i++ {
		_, err := gw.Verify(context.Background(), s.token, id.Identity(""))
		s.Require().Error(err)
	}
	s.Require().True(breaker.IsOpen())

	// The ledger comes back, but no probe is due yet: calls are still shed.
	s.ledgerWrap.down.Store(false)
	before := s.ledgerWrap.calls.Load()
	_, err = gw.Verify(context.Background(), s.token, id.Identity(""))
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))
	s.Equal(before, s.ledgerWrap.calls.Load())

	// Once the probe window elapses a single lookup reaches the ledger,
	// succeeds, and closes the circuit for everyone after it.
	now = now.Add(10 * time.Second)
	cred, err := gw.Verify(context.Background(), s.token, id.Identity(""))
	s.Require().NoError(err)
	s.Equal(s.token, cred.TokenID)
	s.False(breaker.IsOpen())

	for i := 0; i < 5; i++ {
		_, err := gw.Verify(context.Background(), s.token, id.Identity(""))
		s.Require().NoError(err)
	}
}

func (s *GatewayTestSuite) TestQuotaIntrospection() {
	caller := testutil.TestIDs.Employer1

	rec, err := s.gateway.Quota(context.Background(), caller)
	s.Require().NoError(err)
	s.Zero(rec.Consumed)
	s.Equal(3, rec.Limit)

	_, err = s.gateway.Verify(context.Background(), s.token, caller)
	s.Require().NoError(err)

	rec, err = s.gateway.Quota(context.Background(), caller)
	s.Require().NoError(err)
	s.Equal(1, rec.Consumed)
	s.Equal(2, rec.Remaining())

	_, err = s.gateway.Quota(context.Background(), id.Identity(""))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *GatewayTestSuite) TestListByStudent() {
	s.mint(testutil.TestIDs.Student1, "MSc (2026)")

	records, err := s.gateway.ListByStudent(context.Background(), testutil.TestIDs.Student1)
	s.Require().NoError(err)
	s.Len(records, 2)

	records, err = s.gateway.ListByStudent(context.Background(), testutil.TestIDs.Student2)
	s.Require().NoError(err)
	s.Empty(records)

	_, err = s.gateway.ListByStudent(context.Background(), id.Identity(""))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *GatewayTestSuite) TestListByStudentOverlaysRevocation() {
	// Revoke on the ledger only; the mirrored record stays stale.
	s.Require().NoError(s.ledger.Revoke(context.Background(), s.token))

	records, err := s.gateway.ListByStudent(context.Background(), testutil.TestIDs.Student1)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.True(records[0].Revoked, "wallet listing must show ledger truth for the revocation bit")

	// With the ledger away, the mirror still serves the holder's own view.
	s.ledgerWrap.down.Store(true)
	records, err = s.gateway.ListByStudent(context.Background(), testutil.TestIDs.Student1)
	s.Require().NoError(err)
	s.Len(records, 1)
}

type failingOracle struct{}

func (failingOracle) Check(context.Context, id.Identity, entitlement.Scope) (entitlement.Entitlement, error) {
	return entitlement.Entitlement{}, errors.New("oracle unreachable")
}
