package sqlite

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/pkg/errors"
	// Import the pure Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/tensai/internal/profile"
	"github.com/hrygo/tensai/store"
)

// DB is the development and test driver. Vectors are stored as JSON and
// similarity is computed in process.
type DB struct {
	db             *sql.DB
	conn           profile.Connection
	embeddingTable string
}

func NewDB(conn profile.Connection) (*DB, error) {
	if conn.DSN == "" {
		return nil, errors.New("dsn is required")
	}
	if err := store.ValidateIdentifier(conn.EmbeddingTable); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", conn.DSN)
	if err != nil {
		slog.Error("failed to open database", slog.String("target", conn.Target), slog.String("error", err.Error()))
		return nil, errors.Wrapf(err, "failed to open %s database", conn.Target)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to execute %q", pragma)
		}
	}

	return &DB{
		db:             db,
		conn:           conn,
		embeddingTable: conn.EmbeddingTable,
	}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'messages')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}
