package content

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attest/pkg/domain-errors"
)

func TestPutIsContentAddressed(t *testing.T) {
	store := NewInMemoryStore("")
	ctx := context.Background()

	first, err := store.Put(ctx, []byte("diploma.pdf bytes"))
	require.NoError(t, err)
	second, err := store.Put(ctx, []byte("diploma.pdf bytes"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first.String(), "sha256:"))
}

func TestPutRejectsEmptyDocument(t *testing.T) {
	store := NewInMemoryStore("")

	_, err := store.Put(context.Background(), nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestGetRoundTrip(t *testing.T) {
	store := NewInMemoryStore("")
	ctx := context.Background()

	hash, err := store.Put(ctx, []byte("transcript"))
	require.NoError(t, err)

	data, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("transcript"), data)

	_, err = store.Get(ctx, "sha256:unknown")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestURLIncludesHash(t *testing.T) {
	store := NewInMemoryStore("https://cdn.example.org")

	hash, err := store.Put(context.Background(), []byte("doc"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/"+hash.String(), store.URL(hash))
}
