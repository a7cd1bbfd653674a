package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migration represents a single schema migration.
type migration struct {
	version     int
	description string
	apply       func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// New migrations are appended at the end; never modify existing entries.
var migrations = []migration{
	{
		version:     1,
		description: "initial schema (applied via schemaSQL)",
		apply:       func(tx *sql.Tx) error { return nil }, // base schema applied separately
	},
	{
		version:     2,
		description: "document reliability/category/tags and chunk structural fields",
		apply: func(tx *sql.Tx) error {
			stmts := []string{
				"ALTER TABLE documents ADD COLUMN category TEXT",
				"ALTER TABLE documents ADD COLUMN tags JSON",
				"ALTER TABLE documents ADD COLUMN reliability_score REAL NOT NULL DEFAULT 1.0",
				"ALTER TABLE documents ADD COLUMN error_message TEXT",
				"ALTER TABLE chunks ADD COLUMN structural_role TEXT NOT NULL DEFAULT 'PARAGRAPH'",
				"ALTER TABLE chunks ADD COLUMN heading_level INTEGER NOT NULL DEFAULT 0",
				"ALTER TABLE chunks ADD COLUMN sequence_index INTEGER NOT NULL DEFAULT 0",
				"ALTER TABLE chunks ADD COLUMN char_start INTEGER",
				"ALTER TABLE chunks ADD COLUMN char_end INTEGER",
				"ALTER TABLE chunks ADD COLUMN confidence_weight REAL NOT NULL DEFAULT 1.0",
				"CREATE INDEX IF NOT EXISTS idx_chunks_doc_seq ON chunks(document_id, sequence_index)",
				"CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status)",
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil {
					// Column/index likely already exists from a fresh schemaSQL create.
					slog.Debug("migration 2: statement may already be applied", "sql", stmt, "error", err)
				}
			}
			return nil
		},
	},
	{
		version:     3,
		description: "grounding fields on query_log",
		apply: func(tx *sql.Tx) error {
			stmts := []string{
				"ALTER TABLE query_log ADD COLUMN grounded INTEGER NOT NULL DEFAULT 0",
				"ALTER TABLE query_log ADD COLUMN grounding_score REAL",
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil {
					slog.Debug("migration 3: statement may already be applied", "sql", stmt, "error", err)
				}
			}
			return nil
		},
	},
}

// Migrate runs all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	// Ensure the schema_version table exists.
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	// Get current version.
	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		slog.Info("applying migration", "version", m.version, "description", m.description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version, description) VALUES (?, ?)",
			m.version, m.description); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}
