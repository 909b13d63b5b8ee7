package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/tensai/store"
)

func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	if create.ID == "" {
		create.ID = uuid.NewString()
	}
	if create.CreatedAt.IsZero() {
		create.CreatedAt = time.Now()
	}

	stmt := `INSERT INTO users (id, username, avatar_url, created_at) VALUES (` + placeholders(4) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, create.ID, create.Username, create.AvatarURL, store.ToMicros(create.CreatedAt)); err != nil {
		return nil, errors.Wrapf(err, "failed to create user %s", create.Username)
	}
	create.CreatedAt = store.FromMicros(store.ToMicros(create.CreatedAt))
	return create, nil
}

func (d *DB) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Username != nil {
		where, args = append(where, "username = "+placeholder(len(args)+1)), append(args, *find.Username)
	}

	query := `
		SELECT id, username, avatar_url, created_at
		FROM users
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC, id DESC`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	list := []*store.User{}
	for rows.Next() {
		var user store.User
		var createdAt int64
		if err := rows.Scan(&user.ID, &user.Username, &user.AvatarURL, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		user.CreatedAt = store.FromMicros(createdAt)
		list = append(list, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate users")
	}
	return list, nil
}
