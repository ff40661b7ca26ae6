//go:build integration

package quota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/pkg/testutil"
	"attest/pkg/testutil/containers"
)

func TestPostgresConsumeIsAtomicUnderConcurrency(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	store := NewPostgres(pc.DB)
	ctx := context.Background()

	identity := testutil.TestIDs.Employer1

	result := testutil.RunConcurrent(20, func(int) error {
		_, allowed, err := store.Consume(ctx, identity, verifierScope, 3)
		if err != nil {
			return err
		}
		if !allowed {
			return errQuotaDenied
		}
		return nil
	})

	// The conditional upsert is the single point of atomicity: exactly the
	// limit may pass no matter how the connections interleave.
	assert.Equal(t, int32(3), result.Successes)
	assert.Equal(t, int32(17), result.Errors)

	rec, err := store.Get(ctx, identity, verifierScope, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Consumed)
	assert.Zero(t, rec.Remaining())
}

func TestPostgresGetUnknownIdentity(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	store := NewPostgres(pc.DB)

	rec, err := store.Get(context.Background(), testutil.TestIDs.Employer2, verifierScope, 3)
	require.NoError(t, err)
	assert.Zero(t, rec.Consumed)
	assert.Equal(t, 3, rec.Remaining())
}
