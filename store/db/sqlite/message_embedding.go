package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/tensai/store"
)

type vectorTx struct {
	tx    *sql.Tx
	table string
	done  bool
}

func (d *DB) BeginVectorTx(ctx context.Context) (store.VectorTx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin vector transaction")
	}
	return &vectorTx{tx: tx, table: d.embeddingTable}, nil
}

func (t *vectorTx) InsertMessageEmbeddings(ctx context.Context, rows []*store.MessageEmbedding) error {
	if len(rows) == 0 {
		return nil
	}

	values, args := make([]string, 0, len(rows)), make([]any, 0, len(rows)*5)
	now := time.Now()
	for _, row := range rows {
		small, err := json.Marshal(row.Small)
		if err != nil {
			return errors.Wrap(err, "failed to encode small embedding")
		}
		large, err := json.Marshal(row.Large)
		if err != nil {
			return errors.Wrap(err, "failed to encode large embedding")
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		values = append(values, "("+placeholders(5)+")")
		args = append(args, row.MessageID, row.AuthorID, string(small), string(large), store.ToMicros(row.CreatedAt))
	}

	stmt := `INSERT INTO ` + t.table + ` (message_id, author_id, embedding_small, embedding_large, created_at)
		VALUES ` + strings.Join(values, ", ")
	if _, err := t.tx.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrapf(err, "failed to insert %d message embeddings", len(rows))
	}
	return nil
}

func (t *vectorTx) Commit() error {
	if t.done {
		return errors.New("vector transaction already finished")
	}
	t.done = true
	return errors.Wrap(t.tx.Commit(), "failed to commit vector transaction")
}

func (t *vectorTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return errors.Wrap(t.tx.Rollback(), "failed to rollback vector transaction")
}

func (d *DB) ListExistingEmbeddingIDs(ctx context.Context, messageIDs []string) (map[string]bool, error) {
	args := make([]any, 0, len(messageIDs))
	for _, id := range messageIDs {
		args = append(args, id)
	}
	query := `SELECT message_id FROM ` + d.embeddingTable + ` WHERE message_id IN (` + placeholders(len(args)) + `)`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check message embeddings")
	}
	defer rows.Close()

	existing := make(map[string]bool, len(messageIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan message id")
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate message ids")
	}
	return existing, nil
}

// QueryMessageEmbeddings scans the candidate rows and ranks them by cosine
// similarity in process, on the vector picked by the query model.
func (d *DB) QueryMessageEmbeddings(ctx context.Context, query *store.VectorQuery) ([]*store.EmbeddingMatch, error) {
	where, args := []string{"1 = 1"}, []any{}
	if query.AuthorID != nil {
		where, args = append(where, "author_id = "+placeholder(len(args)+1)), append(args, *query.AuthorID)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT message_id, author_id, `+query.Model.Column()+`
		FROM `+d.embeddingTable+`
		WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query message embeddings")
	}
	defer rows.Close()

	list := []*store.EmbeddingMatch{}
	for rows.Next() {
		var match store.EmbeddingMatch
		var raw string
		if err := rows.Scan(&match.MessageID, &match.AuthorID, &raw); err != nil {
			return nil, errors.Wrap(err, "failed to scan embedding match")
		}
		var vector []float32
		if err := json.Unmarshal([]byte(raw), &vector); err != nil {
			return nil, errors.Wrapf(err, "failed to decode embedding of message %s", match.MessageID)
		}
		match.Similarity = cosineSimilarity(query.Vector, vector)
		if match.Similarity >= query.Threshold {
			list = append(list, &match)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate embedding matches")
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Similarity != list[j].Similarity {
			return list[i].Similarity > list[j].Similarity
		}
		return list[i].MessageID < list[j].MessageID
	})
	if query.Limit > 0 && len(list) > query.Limit {
		list = list[:query.Limit]
	}
	return list, nil
}

func (d *DB) CountMessageEmbeddings(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+d.embeddingTable).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count message embeddings")
	}
	return count, nil
}

// cosineSimilarity returns 0 for vectors of different length or zero norm.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
