package store

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/hrygo/tensai/internal/profile"
)

// Migration files:
// - Location: store/migration/{driver}/{target}/LATEST.sql
// - target is "default" (users, messages) or "vector" (embeddings, sync state)
// - Statements are idempotent, so Migrate runs on every start.
// - Vector schemas are templates over the resolved embedding table name.

//go:embed migration
var migrationFS embed.FS

const (
	// LatestSchemaFileName is the name of the latest schema file.
	LatestSchemaFileName = "LATEST.sql"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier checks that name is safe to interpolate as a SQL table name.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return errors.Errorf("invalid table name %q", name)
	}
	return nil
}

type schemaParams struct {
	EmbeddingTable string
}

// Migrate applies the latest schema to the message store and the vector store.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if !initialized {
		slog.Info("initializing new message store with latest schema", slog.String("driver", s.profile.Driver))
	}

	for _, target := range []string{profile.TargetDefault, profile.TargetVector} {
		conn, err := s.profile.Resolve(target)
		if err != nil {
			return err
		}
		db := s.driver.GetDB()
		if target == profile.TargetVector {
			db = s.vector.GetDB()
		}
		if err := s.applyLatest(ctx, db, conn); err != nil {
			return errors.Wrapf(err, "failed to migrate %s store", target)
		}
	}
	return nil
}

// applyLatest renders and executes the latest schema of one logical store in a transaction.
func (s *Store) applyLatest(ctx context.Context, db *sql.DB, conn profile.Connection) error {
	if err := ValidateIdentifier(conn.EmbeddingTable); err != nil {
		return err
	}

	filePath := fmt.Sprintf("migration/%s/%s/%s", conn.Driver, conn.Target, LatestSchemaFileName)
	raw, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema file: %s", filePath)
	}
	tmpl, err := template.New(filePath).Parse(string(raw))
	if err != nil {
		return errors.Wrapf(err, "failed to parse schema template: %s", filePath)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, schemaParams{EmbeddingTable: conn.EmbeddingTable}); err != nil {
		return errors.Wrapf(err, "failed to render schema template: %s", filePath)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	for i, stmt := range splitSQL(buf.String()) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute statement %d of %s", i+1, filePath)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit migration transaction")
	}

	slog.Info("schema applied", slog.String("file", filePath), slog.String("table", conn.EmbeddingTable))
	return nil
}

// splitSQL splits a schema file into statements. Comment lines are dropped.
// The schema files contain no quoted semicolons.
func splitSQL(script string) []string {
	var cleaned strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteString("\n")
	}

	var statements []string
	for _, stmt := range strings.Split(cleaned.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
