package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/tensai/internal/profile"
	"github.com/hrygo/tensai/store"
)

// DB is the production driver. It serves both the message store and the
// pgvector backed embedding store.
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

	db, err := sql.Open("postgres", conn.DSN)
	if err != nil {
		slog.Error("failed to open database", slog.String("target", conn.Target), slog.String("error", err.Error()))
		return nil, errors.Wrapf(err, "failed to open %s database", conn.Target)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("failed to ping database", slog.String("target", conn.Target), slog.String("error", err.Error()))
		return nil, errors.Wrap(err, "failed to ping database")
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
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_catalog = current_database() AND table_name = 'messages' AND table_type = 'BASE TABLE')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}
