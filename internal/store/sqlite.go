package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const defaultDBName = "facilityfix.db"

// Config locates the workspace database.
type Config struct {
	Workspace string
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".facilityfix", defaultDBName)
}

// EnsureWorkspace creates the workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".facilityfix")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the SQLite database backing the document store.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", dbPath(cfg.Workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}

// SQLite implements Store on a single documents table, one row per document,
// with equality queries served by json_extract.
type SQLite struct {
	DB *sql.DB
}

// NewSQLite wraps an opened connection.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{DB: db}
}

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (s *SQLite) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT doc, version FROM documents WHERE collection=? AND doc_id=?`, collection, id)
	var (
		raw     string
		version int64
	)
	if err := row.Scan(&raw, &version); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return inflate(raw, id, version)
}

func (s *SQLite) Query(ctx context.Context, collection string, filters []Filter) ([]map[string]any, error) {
	clauses := []string{"collection=?"}
	args := []any{collection}
	for _, f := range filters {
		if f.Op != "==" {
			return nil, fmt.Errorf("query %s: unsupported operator %q", collection, f.Op)
		}
		if !fieldNamePattern.MatchString(f.Field) {
			return nil, fmt.Errorf("query %s: invalid field name %q", collection, f.Field)
		}
		clauses = append(clauses, fmt.Sprintf("json_extract(doc, '$.%s') = ?", f.Field))
		args = append(args, f.Value)
	}
	query := `SELECT doc_id, doc, version FROM documents WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY rowid`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()
	return collect(rows, collection)
}

func (s *SQLite) GetAll(ctx context.Context, collection string) ([]map[string]any, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT doc_id, doc, version FROM documents WHERE collection=? ORDER BY rowid`, collection)
	if err != nil {
		return nil, fmt.Errorf("get all %s: %w", collection, err)
	}
	defer rows.Close()
	return collect(rows, collection)
}

func (s *SQLite) Create(ctx context.Context, collection, id string, doc map[string]any) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	raw, err := deflate(doc)
	if err != nil {
		return "", fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO documents(collection, doc_id, doc, version, created_at, updated_at) VALUES (?,?,?,1,?,?)`,
		collection, id, raw, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return "", ErrExists
		}
		return "", fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return id, nil
}

func (s *SQLite) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	return s.update(ctx, collection, id, partial, nil)
}

func (s *SQLite) UpdateChecked(ctx context.Context, collection, id string, partial map[string]any, expectedVersion int64) error {
	return s.update(ctx, collection, id, partial, &expectedVersion)
}

func (s *SQLite) update(ctx context.Context, collection, id string, partial map[string]any, expectedVersion *int64) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT doc, version FROM documents WHERE collection=? AND doc_id=?`, collection, id)
	var (
		raw     string
		version int64
	)
	if err := row.Scan(&raw, &version); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if expectedVersion != nil && version != *expectedVersion {
		return ErrConflict
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	for k, v := range partial {
		if k == DocIDField || k == VersionField {
			continue
		}
		doc[k] = v
	}
	merged, err := deflate(doc)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET doc=?, version=version+1, updated_at=? WHERE collection=? AND doc_id=?`,
		merged, now, collection, id); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return tx.Commit()
}

// deflate serializes a document without the injected bookkeeping fields.
func deflate(doc map[string]any) (string, error) {
	clean := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == DocIDField || k == VersionField {
			continue
		}
		clean[k] = v
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func inflate(raw, id string, version int64) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	doc[DocIDField] = id
	doc[VersionField] = version
	return doc, nil
}

func collect(rows *sql.Rows, collection string) ([]map[string]any, error) {
	var docs []map[string]any
	for rows.Next() {
		var (
			id      string
			raw     string
			version int64
		)
		if err := rows.Scan(&id, &raw, &version); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc, err := inflate(raw, id, version)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
