package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/tensai/internal/profile"
	"github.com/hrygo/tensai/store"
)

func TestPostgresVectorStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	ts := NewTestingStoreWithProfile(ctx, t, &profile.Profile{
		Mode:   profile.ModeProduction,
		Driver: "postgres",
		DSN:    GetPostgresDSN(t),
	})

	rows := []*store.MessageEmbedding{
		embeddingRow("m1", "alice", unitVector(0, 0)),
		embeddingRow("m2", "alice", unitVector(0, 0.5)),
	}
	rows[0].Large = largeVector(3, 0)
	rows[1].Large = largeVector(7, 0)
	require.NoError(t, ts.InsertMessageEmbeddings(ctx, rows))

	existing, err := ts.ListExistingEmbeddingIDs(ctx, []string{"m1", "m2", "m3"})
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"m1": true, "m2": true}, existing)

	matches, err := ts.QueryMessageEmbeddings(ctx, &store.VectorQuery{
		Vector:    unitVector(0, 0),
		Threshold: 0.5,
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "m1", matches[0].MessageID)
	require.InDelta(t, 1.0, matches[0].Similarity, 1e-5)

	// The large vector has no index but is searchable.
	large, err := ts.QueryMessageEmbeddings(ctx, &store.VectorQuery{
		Model:     store.EmbeddingModelLarge,
		Vector:    largeVector(7, 0),
		Threshold: 0.5,
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, large, 1)
	require.Equal(t, "m2", large[0].MessageID)
	require.InDelta(t, 1.0, large[0].Similarity, 1e-5)

	// Production mode resolves the production table.
	var name string
	require.NoError(t, ts.GetVectorDriver().GetDB().QueryRowContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_name = 'message_embeddings_prod'").Scan(&name))
	require.Equal(t, "message_embeddings_prod", name)
}
