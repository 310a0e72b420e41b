package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// NormalizeDocumentTypes renames legacy "niederschrift" types to
// "protokoll" and infers a type for every document that has none. It
// returns the number of rows changed.
func (db *DB) NormalizeDocumentTypes() (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	n, err := normalizeDocumentTypes(tx)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// DocumentScope selects which documents of a session LoadDocuments returns.
type DocumentScope string

const (
	ScopeSession DocumentScope = "session"
	ScopeTops    DocumentScope = "tops"
)

const documentColumns = `d.id, d.session_id, d.title, d.category, d.document_type, d.agenda_item, d.url,
	d.local_path, d.sha1, d.retrieved_at, d.content_type, d.content_length`

// LoadDocuments returns the documents of a session ordered by agenda item
// and title. With ScopeTops and a non-empty tops list only documents of
// those agenda items are returned.
func (db *DB) LoadDocuments(sessionID string, scope DocumentScope, tops []string) ([]Document, error) {
	query := "SELECT " + documentColumns + " FROM documents d WHERE d.session_id = ?"
	args := []any{sessionID}
	if scope == ScopeTops && len(tops) > 0 {
		query += fmt.Sprintf(" AND COALESCE(d.agenda_item, '') IN (%s)", placeholders(len(tops)))
		for _, t := range tops {
			args = append(args, t)
		}
	}
	query += " ORDER BY COALESCE(d.agenda_item, ''), d.title, d.id"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ExportQuery selects documents for an analysis batch. Slices are
// matched with IN; empty slices and strings do not filter.
type ExportQuery struct {
	SessionIDs       []string
	Committees       []string
	DateFrom         string
	DateTo           string
	DocumentTypes    []string
	RequireLocalPath bool
}

// ExportDocuments returns the documents matching q ordered by session
// date, session id, agenda item, title and url. Each row carries the
// title of the first agenda item with the document's number.
func (db *DB) ExportDocuments(q ExportQuery) ([]ExportDocument, error) {
	query := "SELECT " + documentColumns + `,
		COALESCE(s.date, ''), COALESCE(s.committee, ''), s.meeting_name, s.session_path,
		(SELECT ai.title FROM agenda_items ai
			WHERE ai.session_id = d.session_id AND ai.number = d.agenda_item
			ORDER BY ai.id LIMIT 1)
		FROM sessions s JOIN documents d ON d.session_id = s.session_id WHERE 1=1`
	var args []any
	in := func(column string, values []string) {
		values = uniqueSorted(values)
		if len(values) == 0 {
			return
		}
		query += fmt.Sprintf(" AND %s IN (%s)", column, placeholders(len(values)))
		for _, v := range values {
			args = append(args, v)
		}
	}
	in("s.session_id", q.SessionIDs)
	in("s.committee", q.Committees)
	if q.DateFrom != "" {
		query += " AND s.date >= ?"
		args = append(args, q.DateFrom)
	}
	if q.DateTo != "" {
		query += " AND s.date <= ?"
		args = append(args, q.DateTo)
	}
	in("d.document_type", q.DocumentTypes)
	if q.RequireLocalPath {
		query += " AND COALESCE(TRIM(d.local_path), '') != ''"
	}
	query += " ORDER BY s.date, s.session_id, COALESCE(d.agenda_item, ''), d.title, d.url"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying export documents: %w", err)
	}
	defer rows.Close()
	var out []ExportDocument
	for rows.Next() {
		var e ExportDocument
		var contentLength sql.NullInt64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Title, &e.Category, &e.DocumentType, &e.AgendaItem,
			&e.URL, &e.LocalPath, &e.SHA1, &e.RetrievedAt, &e.ContentType, &contentLength,
			&e.Date, &e.Committee, &e.MeetingName, &e.SessionPath, &e.TopTitle); err != nil {
			return nil, err
		}
		e.ContentLength = nullInt64(contentLength)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountDocumentsByType returns how many documents each type has.
func (db *DB) CountDocumentsByType() (map[string]int, error) {
	rows, err := db.conn.Query(
		"SELECT COALESCE(document_type, ''), COUNT(*) FROM documents GROUP BY COALESCE(document_type, '')",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var d Document
	var contentLength sql.NullInt64
	err := row.Scan(&d.ID, &d.SessionID, &d.Title, &d.Category, &d.DocumentType, &d.AgendaItem,
		&d.URL, &d.LocalPath, &d.SHA1, &d.RetrievedAt, &d.ContentType, &contentLength)
	d.ContentLength = nullInt64(contentLength)
	return d, err
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
