package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
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

// InsertMessageEmbeddings writes all rows with one multi-row insert.
// A conflicting message_id fails the whole statement.
func (t *vectorTx) InsertMessageEmbeddings(ctx context.Context, rows []*store.MessageEmbedding) error {
	if len(rows) == 0 {
		return nil
	}

	values, args := make([]string, 0, len(rows)), make([]any, 0, len(rows)*5)
	now := time.Now()
	for _, row := range rows {
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		n := len(args)
		values = append(values, fmt.Sprintf("(%s, %s, %s, %s, %s)",
			placeholder(n+1), placeholder(n+2), placeholder(n+3), placeholder(n+4), placeholder(n+5)))
		args = append(args,
			row.MessageID,
			row.AuthorID,
			pgvector.NewVector(row.Small),
			pgvector.NewVector(row.Large),
			store.ToMicros(row.CreatedAt),
		)
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
	query := `SELECT message_id FROM ` + d.embeddingTable + ` WHERE message_id = ANY(` + placeholder(1) + `)`
	rows, err := d.db.QueryContext(ctx, query, pq.Array(messageIDs))
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

// QueryMessageEmbeddings uses cosine distance on the vector picked by the
// query model. Only the small vector is indexed.
func (d *DB) QueryMessageEmbeddings(ctx context.Context, query *store.VectorQuery) ([]*store.EmbeddingMatch, error) {
	vector := pgvector.NewVector(query.Vector)
	column := "e." + query.Model.Column()
	where, args := []string{"1 - (" + column + " <=> " + placeholder(1) + ") >= " + placeholder(2)}, []any{vector, query.Threshold}
	if query.AuthorID != nil {
		where, args = append(where, "e.author_id = "+placeholder(len(args)+1)), append(args, *query.AuthorID)
	}
	args = append(args, query.Limit)

	stmt := `
		SELECT e.message_id, e.author_id, 1 - (` + column + ` <=> ` + placeholder(1) + `) AS score
		FROM ` + d.embeddingTable + ` e
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + column + ` <=> ` + placeholder(1) + `, e.message_id
		LIMIT ` + placeholder(len(args))

	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query message embeddings")
	}
	defer rows.Close()

	list := []*store.EmbeddingMatch{}
	for rows.Next() {
		var match store.EmbeddingMatch
		if err := rows.Scan(&match.MessageID, &match.AuthorID, &match.Similarity); err != nil {
			return nil, errors.Wrap(err, "failed to scan embedding match")
		}
		list = append(list, &match)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate embedding matches")
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
