package revocation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/audit"
	"attest/internal/index"
	"attest/internal/ledger"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/retry"
	"attest/pkg/testutil"
)

// flakyLedger fails the first n calls of each operation with a transient
// error, then delegates.
type flakyLedger struct {
	inner     *ledger.InMemoryLedger
	failGets  atomic.Int64
	failRevs  atomic.Int64
	getCalls  atomic.Int64
	revCalls  atomic.Int64
}

func (f *flakyLedger) Get(ctx context.Context, tokenID id.TokenID) (ledger.Credential, error) {
	f.getCalls.Add(1)
	if f.failGets.Load() > 0 {
		f.failGets.Add(-1)
		return ledger.Credential{}, ledger.ErrUnavailable
	}
	return f.inner.Get(ctx, tokenID)
}

func (f *flakyLedger) Revoke(ctx context.Context, tokenID id.TokenID) error {
	f.revCalls.Add(1)
	if f.failRevs.Load() > 0 {
		f.failRevs.Add(-1)
		return ledger.ErrUnavailable
	}
	return f.inner.Revoke(ctx, tokenID)
}

// brokenIndex refuses revocation writes so the repair path can be observed.
type brokenIndex struct {
	*index.InMemoryStore
}

func (brokenIndex) MarkRevoked(context.Context, id.TokenID) error {
	return errors.New("index write refused")
}

type RevocationTestSuite struct {
	suite.Suite

	ledger     *ledger.InMemoryLedger
	flaky      *flakyLedger
	index      *index.InMemoryStore
	auditStore *audit.InMemoryStore
	publisher  *audit.Publisher
	svc        *Service

	token id.TokenID
}

func TestRevocationSuite(t *testing.T) {
	suite.Run(t, new(RevocationTestSuite))
}

func (s *RevocationTestSuite) SetupTest() {
	s.ledger = ledger.NewInMemory()
	s.flaky = &flakyLedger{inner: s.ledger}
	s.index = index.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.publisher = audit.NewPublisher(s.auditStore)

	hash := id.ContentHash("sha256:00000000000000000000000000000000000000000000000000000000000000dd")
	key := ledger.IdempotencyKey(testutil.TestIDs.Institution1, testutil.TestIDs.Student1, "BSc (2024)", hash)
	res, err := s.ledger.Mint(context.Background(), key, testutil.TestIDs.Student1, testutil.TestIDs.Institution1, "BSc (2024)", hash)
	s.Require().NoError(err)
	s.token = res.TokenID

	cred, err := s.ledger.Get(context.Background(), s.token)
	s.Require().NoError(err)
	s.Require().NoError(s.index.Upsert(context.Background(), index.RecordFromCredential(cred)))

	s.svc, err = New(s.flaky, s.index, s.publisher,
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
	)
	s.Require().NoError(err)
}

func (s *RevocationTestSuite) revokedEvents() []audit.Event {
	events, err := s.auditStore.ListByCredential(context.Background(), s.token, 0, 10)
	s.Require().NoError(err)
	var out []audit.Event
	for _, e := range events {
		if e.Action == audit.ActionRevoked {
			out = append(out, e)
		}
	}
	return out
}

func (s *RevocationTestSuite) TestNewValidation() {
	_, err := New(nil, s.index, s.publisher)
	s.Error(err)
	_, err = New(s.flaky, nil, s.publisher)
	s.Error(err)
	_, err = New(s.flaky, s.index, nil)
	s.Error(err)
}

func (s *RevocationTestSuite) TestRevokeHappyPath() {
	err := s.svc.Revoke(context.Background(), s.token, testutil.TestIDs.Institution1)
	s.Require().NoError(err)

	cred, err := s.ledger.Get(context.Background(), s.token)
	s.Require().NoError(err)
	s.True(cred.Revoked)

	rec, err := s.index.FindByToken(context.Background(), s.token)
	s.Require().NoError(err)
	s.True(rec.Revoked)

	events := s.revokedEvents()
	s.Require().Len(events, 1)
	s.Equal(testutil.TestIDs.Institution1.String(), events[0].Actor)
}

func (s *RevocationTestSuite) TestRevokeInputValidation() {
	err := s.svc.Revoke(context.Background(), 0, testutil.TestIDs.Institution1)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	err = s.svc.Revoke(context.Background(), s.token, id.Identity(""))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *RevocationTestSuite) TestRevokeUnknownToken() {
	err := s.svc.Revoke(context.Background(), id.TokenID(999), testutil.TestIDs.Institution1)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RevocationTestSuite) TestOnlyIssuerMayRevoke() {
	err := s.svc.Revoke(context.Background(), s.token, testutil.TestIDs.Institution2)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	// The student holding the credential cannot revoke it either.
	err = s.svc.Revoke(context.Background(), s.token, testutil.TestIDs.Student1)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	cred, err := s.ledger.Get(context.Background(), s.token)
	s.Require().NoError(err)
	s.False(cred.Revoked)
	s.Empty(s.revokedEvents())
}

func (s *RevocationTestSuite) TestRepeatedRevokeIsIdempotent() {
	s.Require().NoError(s.svc.Revoke(context.Background(), s.token, testutil.TestIDs.Institution1))
	s.Require().NoError(s.svc.Revoke(context.Background(), s.token, testutil.TestIDs.Institution1))
	s.Require().NoError(s.svc.Revoke(context.Background(), s.token, testutil.TestIDs.Institution1))

	// One transition, one trail entry.
	s.Len(s.revokedEvents(), 1)
}

func (s *RevocationTestSuite) TestTransientLedgerFailureIsRetried() {
	s.flaky.failGets.Store(1)
	s.flaky.failRevs.Store(1)

	err := s.svc.Revoke(context.Background(), s.token, testutil.TestIDs.Institution1)
	s.Require().NoError(err)

	cred, err := s.ledger.Get(context.Background(), s.token)
	s.Require().NoError(err)
	s.True(cred.Revoked)
}

func (s *RevocationTestSuite) TestLedgerStaysDown() {
	s.flaky.failRevs.Store(10)

	err := s.svc.Revoke(context.Background(), s.token, testutil.TestIDs.Institution1)
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))
	s.Empty(s.revokedEvents())
}

func (s *RevocationTestSuite) TestIndexFailureDoesNotFailRevocation() {
	svc, err := New(s.flaky, brokenIndex{s.index}, s.publisher)
	s.Require().NoError(err)

	s.Require().NoError(svc.Revoke(context.Background(), s.token, testutil.TestIDs.Institution1))

	// Ledger truth flipped even though the mirror write was refused.
	cred, err := s.ledger.Get(context.Background(), s.token)
	s.Require().NoError(err)
	s.True(cred.Revoked)

	// The token is queued so the reconciler can repair the mirror.
	dirty, err := s.index.ListDirty(context.Background(), 10)
	s.Require().NoError(err)
	s.Contains(dirty, s.token)

	s.Len(s.revokedEvents(), 1)
}
