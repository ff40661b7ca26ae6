package quota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"attest/pkg/testutil"
)

const verifierScope = "verifier"

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestConsumeUpToLimit() {
	identity := testutil.TestIDs.Employer1

	for i := 1; i <= 3; i++ {
		rec, allowed, err := s.store.Consume(s.ctx, identity, verifierScope, 3)
		s.Require().NoError(err)
		s.True(allowed)
		s.Equal(i, rec.Consumed)
	}

	rec, allowed, err := s.store.Consume(s.ctx, identity, verifierScope, 3)
	s.Require().NoError(err)
	s.False(allowed)
	s.Equal(3, rec.Consumed)
	s.Equal(0, rec.Remaining())
}

func (s *InMemoryStoreSuite) TestConsumeIsAtomicUnderConcurrency() {
	identity := testutil.TestIDs.Employer1

	result := testutil.RunConcurrent(50, func(int) error {
		_, allowed, err := s.store.Consume(s.ctx, identity, verifierScope, 3)
		if err != nil {
			return err
		}
		if !allowed {
			return errQuotaDenied
		}
		return nil
	})

	// Exactly limit calls may pass, regardless of interleaving.
	s.Equal(int32(3), result.Successes)
	s.Equal(int32(47), result.Errors)

	rec, err := s.store.Get(s.ctx, identity, verifierScope, 3)
	s.Require().NoError(err)
	s.Equal(3, rec.Consumed)
}

func (s *InMemoryStoreSuite) TestIdentitiesAreIndependent() {
	_, allowed, err := s.store.Consume(s.ctx, testutil.TestIDs.Employer1, verifierScope, 1)
	s.Require().NoError(err)
	s.True(allowed)

	_, allowed, err = s.store.Consume(s.ctx, testutil.TestIDs.Employer2, verifierScope, 1)
	s.Require().NoError(err)
	s.True(allowed)
}

func (s *InMemoryStoreSuite) TestGetUnknownIdentity() {
	rec, err := s.store.Get(s.ctx, testutil.TestIDs.Employer1, verifierScope, 3)
	s.Require().NoError(err)
	s.Equal(0, rec.Consumed)
	s.Equal(3, rec.Remaining())
}

var errQuotaDenied = errDenied{}

type errDenied struct{}

func (errDenied) Error() string { return "quota denied" }
