// Package diagstore persists the last diagnostics published per document so
// they can be reported without a running server.
package diagstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"scriptls/internal/core/ports"
	"scriptls/internal/engine/module"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

var _ ports.DiagnosticsStore = (*Store)(nil)

type Store struct {
	db        *sql.DB
	workspace string
}

// Open creates or opens the store at path. Rows are scoped to workspace so
// one database can serve several projects.
func Open(path, workspace string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("diagnostics store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("diagnostics store path %q is a directory", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create diagnostics store directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics sqlite %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping diagnostics sqlite %q: %w", cleanPath, err)
	}
	if err := migrateSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	key := strings.TrimSpace(workspace)
	if key == "" {
		key = "default"
	}
	return &Store{db: db, workspace: key}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save replaces the stored diagnostics of uri. An empty set deletes the row.
func (s *Store) Save(ctx context.Context, uri string, diags []module.Diagnostic) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("diagnostics store not initialized")
	}
	return s.save(ctx, s.db, uri, diags)
}

// SaveBatch applies several saves in one transaction.
func (s *Store) SaveBatch(ctx context.Context, writes []ports.DiagnosticsWrite) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("diagnostics store not initialized")
	}
	if len(writes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin diagnostics tx: %w", err)
	}
	for _, w := range writes {
		if err := s.save(ctx, tx, w.URI, w.Diagnostics); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit diagnostics tx: %w", err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, db execer, uri string, diags []module.Diagnostic) error {
	if len(diags) == 0 {
		if _, err := db.ExecContext(ctx, `DELETE FROM diagnostics WHERE workspace = ? AND uri = ?`, s.workspace, uri); err != nil {
			return fmt.Errorf("delete diagnostics for %s: %w", uri, err)
		}
		return nil
	}
	raw, err := json.Marshal(diags)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	errCount := 0
	for _, d := range diags {
		if d.Severity == module.SeverityError {
			errCount++
		}
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO diagnostics (workspace, uri, payload, error_count, total_count, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(workspace, uri) DO UPDATE SET
  payload = excluded.payload,
  error_count = excluded.error_count,
  total_count = excluded.total_count,
  updated_at = excluded.updated_at
`, s.workspace, uri, raw, errCount, len(diags), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save diagnostics for %s: %w", uri, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, uri string) ([]module.Diagnostic, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("diagnostics store not initialized")
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM diagnostics WHERE workspace = ? AND uri = ?`, s.workspace, uri).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load diagnostics for %s: %w", uri, err)
	}
	var diags []module.Diagnostic
	if err := json.Unmarshal(raw, &diags); err != nil {
		return nil, fmt.Errorf("decode diagnostics for %s: %w", uri, err)
	}
	return diags, nil
}

// List returns every stored document's diagnostics in this workspace.
func (s *Store) List(ctx context.Context) (map[string][]module.Diagnostic, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("diagnostics store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT uri, payload FROM diagnostics WHERE workspace = ? ORDER BY uri ASC`, s.workspace)
	if err != nil {
		return nil, fmt.Errorf("list diagnostics: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]module.Diagnostic)
	for rows.Next() {
		var (
			uri string
			raw []byte
		)
		if err := rows.Scan(&uri, &raw); err != nil {
			return nil, fmt.Errorf("scan diagnostics row: %w", err)
		}
		var diags []module.Diagnostic
		if err := json.Unmarshal(raw, &diags); err != nil {
			return nil, fmt.Errorf("decode diagnostics for %s: %w", uri, err)
		}
		out[uri] = diags
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics rows: %w", err)
	}
	return out, nil
}

// Summary returns (documents, errors, total diagnostics) for the workspace.
func (s *Store) Summary(ctx context.Context) (int, int, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, 0, fmt.Errorf("diagnostics store not initialized")
	}
	var docs, errs, total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1), SUM(error_count), SUM(total_count)
FROM diagnostics WHERE workspace = ?
`, s.workspace).Scan(&docs, &errs, &total)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("summarize diagnostics: %w", err)
	}
	return int(docs.Int64), int(errs.Int64), int(total.Int64), nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
