package token

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore is a Store backed by a relational database. It supports SQLite for
// single-node deployments and PostgreSQL (via the pgx stdlib driver) for
// shared deployments; both use the same single-table schema.
type SQLStore struct {
	db          *sql.DB
	rebindQuery bool // rewrite ? placeholders to $N for PostgreSQL
}

// NewSQLiteStore opens (and migrates) a SQLite-backed store at the given path.
func NewSQLiteStore(path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewPostgresStore opens (and migrates) a PostgreSQL-backed store using a
// pgx connection string.
func NewPostgresStore(connString string) (*SQLStore, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres connection string is required")
	}

	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{db: db, rebindQuery: true}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS locate_tokens (
			tenant_id TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			issued_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_locate_tokens_expires_at ON locate_tokens(expires_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $1..$N when talking to PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if !s.rebindQuery {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// Get returns the tenant's record, or (nil, nil) when absent.
func (s *SQLStore) Get(ctx context.Context, tenantID string) (*CachedToken, error) {
	query := s.rebind(`SELECT tenant_id, token, issued_at, expires_at FROM locate_tokens WHERE tenant_id = ?`)

	record := &CachedToken{}
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&record.TenantID, &record.Token, &record.IssuedAt, &record.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return record, nil
}

// Put upserts the record for its tenant.
func (s *SQLStore) Put(ctx context.Context, record *CachedToken) error {
	query := s.rebind(`INSERT INTO locate_tokens (tenant_id, token, issued_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			token = excluded.token,
			issued_at = excluded.issued_at,
			expires_at = excluded.expires_at`)

	_, err := s.db.ExecContext(ctx, query,
		record.TenantID, record.Token, record.IssuedAt.UTC(), record.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Delete removes the tenant's record; absent records are a no-op.
func (s *SQLStore) Delete(ctx context.Context, tenantID string) error {
	query := s.rebind(`DELETE FROM locate_tokens WHERE tenant_id = ?`)

	if _, err := s.db.ExecContext(ctx, query, tenantID); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// DeleteExpiredBefore removes records expiring before cutoff in a single
// conditional DELETE, so a record replaced by a concurrent refresh survives.
func (s *SQLStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := s.rebind(`DELETE FROM locate_tokens WHERE expires_at < ?`)

	result, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted tokens: %w", err)
	}
	return int(removed), nil
}

// List returns all records, expired ones included.
func (s *SQLStore) List(ctx context.Context) ([]*CachedToken, error) {
	query := `SELECT tenant_id, token, issued_at, expires_at FROM locate_tokens`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var records []*CachedToken
	for rows.Next() {
		record := &CachedToken{}
		if err := rows.Scan(&record.TenantID, &record.Token, &record.IssuedAt, &record.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan token row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate token rows: %w", err)
	}
	return records, nil
}

// Health pings the database.
func (s *SQLStore) Health() error {
	return s.db.Ping()
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLStore)(nil)
