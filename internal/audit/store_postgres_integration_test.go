//go:build integration

package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "attest/pkg/domain"
	"attest/pkg/testutil"
	"attest/pkg/testutil/containers"
)

func TestPostgresAppendSequencesConcurrentWrites(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	store := NewPostgres(pc.DB)
	ctx := context.Background()

	ref := id.TokenID(7)
	const appenders = 8

	result := testutil.RunConcurrent(appenders, func(int) error {
		return store.Append(ctx, Event{
			ID:            uuid.New(),
			CredentialRef: ref,
			Actor:         testutil.TestIDs.Employer1.String(),
			Action:        ActionViewed,
			Timestamp:     time.Now().UTC(),
		})
	})
	require.Equal(t, int32(appenders), result.Successes)

	// Every append must land with its own dense sequence number. Two events
	// sharing a seq would make seq-based history paging skip one of them.
	events, err := store.ListByCredential(ctx, ref, 0, appenders*2)
	require.NoError(t, err)
	require.Len(t, events, appenders)
	for i, event := range events {
		assert.Equal(t, uint64(i+1), event.Seq)
	}
}

func TestPostgresHistoryPagesWithoutLoss(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	store := NewPostgres(pc.DB)
	publisher := NewPublisher(store)
	ctx := context.Background()

	// More events than one history page holds.
	ref := id.TokenID(9)
	const total = 150
	for i := 0; i < total; i++ {
		actor := fmt.Sprintf("%s#%d", testutil.TestIDs.Employer1, i)
		require.NoError(t, publisher.Emit(ctx, Event{
			CredentialRef: ref,
			Actor:         actor,
			Action:        ActionViewed,
		}))
	}

	var seen int
	var lastSeq uint64
	for event, err := range publisher.History(ctx, ref) {
		require.NoError(t, err)
		require.Greater(t, event.Seq, lastSeq, "history must advance strictly, never repeat or skip backwards")
		lastSeq = event.Seq
		seen++
	}
	assert.Equal(t, total, seen)
}
