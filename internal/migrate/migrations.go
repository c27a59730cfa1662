package migrate

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed sql/0001_documents.sql
var documentsSchema string

// A step runs exactly once per database, tracked in schema_version.
// New steps append to the list; released steps never change.
type step struct {
	version int
	label   string
	stmts   string
}

var steps = []step{
	{version: 1, label: "documents", stmts: documentsSchema},
}

// Migrate brings the database to the latest schema version. Safe to call on
// every startup; steps already applied are skipped.
func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := schemaVersion(tx)
	if err != nil {
		return err
	}
	for _, s := range steps {
		if s.version <= current {
			continue
		}
		if _, err := tx.Exec(s.stmts); err != nil {
			return fmt.Errorf("schema step %d (%s): %w", s.version, s.label, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, s.version); err != nil {
			return fmt.Errorf("record schema step %d: %w", s.version, err)
		}
		current = s.version
	}
	return tx.Commit()
}

func schemaVersion(tx *sql.Tx) (int, error) {
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("ensure schema_version: %w", err)
	}
	var v int
	switch err := tx.QueryRow(`SELECT version FROM schema_version`).Scan(&v); {
	case err == nil:
		return v, nil
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return 0, fmt.Errorf("seed schema_version: %w", err)
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
}
