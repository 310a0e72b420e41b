package database

import (
	"database/sql"
	"fmt"

	"github.com/TobiSchelling/ratsinfo/internal/doctype"
)

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "session index",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    date TEXT,
    year INTEGER,
    month INTEGER,
    committee TEXT,
    meeting_name TEXT,
    start_time TEXT,
    location TEXT,
    detail_url TEXT,
    session_path TEXT
);

CREATE TABLE IF NOT EXISTS agenda_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT,
    number TEXT,
    title TEXT,
    reporter TEXT,
    status TEXT,
    decision TEXT,
    documents_present INTEGER
);

CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT,
    title TEXT,
    category TEXT,
    agenda_item TEXT,
    url TEXT,
    local_path TEXT,
    content_type TEXT,
    content_length INTEGER
);

CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(date);
CREATE INDEX IF NOT EXISTS idx_sessions_committee ON sessions(committee);
CREATE INDEX IF NOT EXISTS idx_agenda_session ON agenda_items(session_id);
CREATE INDEX IF NOT EXISTS idx_docs_session ON documents(session_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "document type, checksum and retrieval time",
		Up: func(tx *sql.Tx) error {
			if err := ensureColumns(tx, "documents", [][2]string{
				{"document_type", "TEXT"},
				{"sha1", "TEXT"},
				{"retrieved_at", "TEXT"},
			}); err != nil {
				return err
			}
			if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_docs_type ON documents(document_type)"); err != nil {
				return err
			}
			_, err := normalizeDocumentTypes(tx)
			return err
		},
	},
	{
		Version:     3,
		Description: "analysis jobs and crawl runs",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS analysis_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_uuid TEXT,
    created_at TEXT NOT NULL,
    session_id TEXT NOT NULL,
    scope TEXT NOT NULL,
    top_numbers_json TEXT,
    model_name TEXT,
    prompt_version TEXT,
    status TEXT NOT NULL,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS analysis_outputs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id INTEGER NOT NULL REFERENCES analysis_jobs(id),
    output_format TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS crawl_runs (
    run_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    status TEXT NOT NULL,
    months TEXT,
    sessions INTEGER DEFAULT 0,
    documents INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_analysis_jobs_session ON analysis_jobs(session_id);
CREATE INDEX IF NOT EXISTS idx_analysis_outputs_job ON analysis_outputs(job_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

// ensureColumns adds the listed columns that table does not have yet.
func ensureColumns(tx *sql.Tx, table string, columns [][2]string) error {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("reading columns of %s: %w", table, err)
	}
	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		have[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range columns {
		if have[col[0]] {
			continue
		}
		if _, err := tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col[0], col[1])); err != nil {
			return fmt.Errorf("adding %s.%s: %w", table, col[0], err)
		}
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
}

// normalizeDocumentTypes renames the legacy "niederschrift" type and
// infers a type for every row that has none.
func normalizeDocumentTypes(x execer) (int, error) {
	res, err := x.Exec(
		`UPDATE documents SET document_type = ? WHERE LOWER(COALESCE(document_type, '')) = ?`,
		doctype.Protokoll, doctype.LegacyNiederschrift,
	)
	if err != nil {
		return 0, fmt.Errorf("renaming legacy document types: %w", err)
	}
	renamed, _ := res.RowsAffected()

	rows, err := x.Query(`SELECT id, title, category, content_type, url, local_path
		FROM documents WHERE document_type IS NULL OR TRIM(document_type) = ''`)
	if err != nil {
		return 0, fmt.Errorf("selecting untyped documents: %w", err)
	}
	type update struct {
		id  int64
		typ string
	}
	var updates []update
	for rows.Next() {
		var (
			id                                           int64
			title, category, contentType, url, localPath sql.NullString
		)
		if err := rows.Scan(&id, &title, &category, &contentType, &url, &localPath); err != nil {
			rows.Close()
			return 0, err
		}
		updates = append(updates, update{id, doctype.InferDocumentType(
			category.String, title.String, contentType.String, url.String, localPath.String,
		)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, u := range updates {
		if _, err := x.Exec("UPDATE documents SET document_type = ? WHERE id = ?", u.typ, u.id); err != nil {
			return 0, fmt.Errorf("backfilling document %d: %w", u.id, err)
		}
	}
	return int(renamed) + len(updates), nil
}
