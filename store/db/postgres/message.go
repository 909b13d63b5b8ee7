package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/tensai/store"
)

// CreateMessage inserts a message. created_at is assigned by the database, or
// taken from the caller for imports, and is always bumped past the latest
// stored message so the sync watermark never skips a row.
func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	if create.ID == "" {
		create.ID = uuid.NewString()
	}

	args := []any{create.ID, create.AuthorID, create.Content}
	createdAtExpr := `GREATEST(
			(EXTRACT(EPOCH FROM clock_timestamp()) * 1000000)::BIGINT,
			COALESCE((SELECT MAX(created_at) FROM messages), 0) + 1)`
	if !create.CreatedAt.IsZero() {
		createdAtExpr = `GREATEST(` + placeholder(4) + `::BIGINT,
			COALESCE((SELECT MAX(created_at) FROM messages), 0) + 1)`
		args = append(args, store.ToMicros(create.CreatedAt))
	}

	stmt := `
		INSERT INTO messages (id, author_id, content, created_at)
		VALUES (` + placeholders(3) + `, ` + createdAtExpr + `)
		RETURNING created_at`
	var createdAt int64
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to create message %s", create.ID)
	}
	create.CreatedAt = store.FromMicros(createdAt)
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.AuthorID != nil {
		where, args = append(where, "author_id = "+placeholder(len(args)+1)), append(args, *find.AuthorID)
	}
	if find.CreatedAfter != nil {
		where, args = append(where, "created_at > "+placeholder(len(args)+1)), append(args, store.ToMicros(*find.CreatedAfter))
	}

	order := "ASC"
	if find.OrderDesc {
		order = "DESC"
	}
	query := `
		SELECT id, author_id, content, created_at
		FROM messages
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at ` + order + `, id ` + order
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := []*store.Message{}
	for rows.Next() {
		var message store.Message
		var createdAt int64
		if err := rows.Scan(&message.ID, &message.AuthorID, &message.Content, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		message.CreatedAt = store.FromMicros(createdAt)
		list = append(list, &message)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}
	return list, nil
}
