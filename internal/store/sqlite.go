package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/craftpad-ai/artifact-platform/internal/model"
)

// SQLiteStore implements ArtifactStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store at the given path. The schema is
// created if it doesn't exist, as are parent directories.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_artifacts_tenant ON artifacts(tenant_id, updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_artifacts_conversation ON artifacts(conversation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create inserts a new artifact.
func (s *SQLiteStore) Create(ctx context.Context, a *model.Artifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, tenant_id, conversation_id, kind, title, content, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.ConversationID, string(a.Kind), a.Title, a.Content, a.Language,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting artifact: %w", err)
	}
	return nil
}

// Get retrieves an artifact by id within a tenant.
func (s *SQLiteStore) Get(ctx context.Context, tenantID, id string) (*model.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, conversation_id, kind, title, content, language, created_at, updated_at
		FROM artifacts WHERE id = ? AND tenant_id = ?`, id, tenantID)

	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying artifact: %w", err)
	}
	return a, nil
}

// List returns a tenant's artifacts, optionally filtered by conversation,
// newest first.
func (s *SQLiteStore) List(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Artifact, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, conversation_id, kind, title, content, language, created_at, updated_at
		FROM artifacts WHERE tenant_id = ?`
	args := []any{tenantID}
	if conversationID != "" {
		query += " AND conversation_id = ?"
		args = append(args, conversationID)
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []model.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, rows.Err()
}

// Update rewrites an artifact's title/content and bumps updated_at.
func (s *SQLiteStore) Update(ctx context.Context, a *model.Artifact) error {
	a.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE artifacts SET title = ?, content = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`,
		a.Title, a.Content, a.UpdatedAt.UTC(), a.ID, a.TenantID,
	)
	if err != nil {
		return fmt.Errorf("updating artifact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an artifact.
func (s *SQLiteStore) Delete(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("deleting artifact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanArtifact(row scannable) (*model.Artifact, error) {
	var a model.Artifact
	var kind string
	if err := row.Scan(&a.ID, &a.TenantID, &a.ConversationID, &kind, &a.Title, &a.Content, &a.Language, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Kind = model.ArtifactKind(kind)
	return &a, nil
}
