package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// SessionFilter narrows ListSessions. Empty fields do not filter.
type SessionFilter struct {
	DateFrom  string
	DateTo    string
	Committee string
	Year      int
	Search    string
	// Today, when set, limits the list to sessions on or before it.
	Today string
	Limit int
}

// ExistingSessionIDs returns the ids of every indexed session.
func (db *DB) ExistingSessionIDs() (map[string]bool, error) {
	rows, err := db.conn.Query("SELECT session_id FROM sessions")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make(map[string]bool)
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id.String != "" {
			ids[id.String] = true
		}
	}
	return ids, rows.Err()
}

// ReplaceSession stores s and replaces its agenda items and documents in
// a single transaction.
func (db *DB) ReplaceSession(s Session, items []AgendaItem, docs []Document) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO sessions
		(session_id, date, year, month, committee, meeting_name, start_time, location, detail_url, session_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.Date, s.Year, s.Month, s.Committee, s.MeetingName,
		s.StartTime, s.Location, s.DetailURL, s.SessionPath,
	); err != nil {
		return fmt.Errorf("storing session %s: %w", s.SessionID, err)
	}
	if _, err := tx.Exec("DELETE FROM agenda_items WHERE session_id = ?", s.SessionID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM documents WHERE session_id = ?", s.SessionID); err != nil {
		return err
	}

	for _, item := range items {
		if _, err := tx.Exec(
			`INSERT INTO agenda_items
			(session_id, number, title, reporter, status, decision, documents_present)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.SessionID, item.Number, item.Title, item.Reporter, item.Status, item.Decision,
			boolToInt(item.DocumentsPresent),
		); err != nil {
			return fmt.Errorf("storing agenda item %s: %w", item.Number, err)
		}
	}
	for _, d := range docs {
		if _, err := tx.Exec(
			`INSERT INTO documents
			(session_id, title, category, document_type, agenda_item, url, local_path,
			 sha1, retrieved_at, content_type, content_length)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.SessionID, d.Title, d.Category, d.DocumentType, d.AgendaItem, d.URL, d.LocalPath,
			d.SHA1, d.RetrievedAt, d.ContentType, d.ContentLength,
		); err != nil {
			return fmt.Errorf("storing document: %w", err)
		}
	}
	return tx.Commit()
}

// GetSession returns a session by id, or nil if it is not indexed.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	var s Session
	var date, committee sql.NullString
	var year, month sql.NullInt64
	err := db.conn.QueryRow(
		`SELECT session_id, date, year, month, committee, meeting_name, start_time, location,
		detail_url, session_path FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&s.SessionID, &date, &year, &month, &committee, &s.MeetingName, &s.StartTime,
		&s.Location, &s.DetailURL, &s.SessionPath)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Date = date.String
	s.Committee = committee.String
	s.Year = nullInt(year)
	s.Month = nullInt(month)
	return &s, nil
}

// ListCommittees returns the distinct committee names, sorted.
func (db *DB) ListCommittees() ([]string, error) {
	rows, err := db.conn.Query(
		`SELECT DISTINCT committee FROM sessions
		WHERE committee IS NOT NULL AND committee != '' ORDER BY committee`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListYears returns the years that have sessions, newest first.
func (db *DB) ListYears() ([]int, error) {
	rows, err := db.conn.Query("SELECT DISTINCT year FROM sessions WHERE year IS NOT NULL ORDER BY year DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

// ListSessions returns sessions matching f, newest first, with the
// number of agenda items and documents of each.
func (db *DB) ListSessions(f SessionFilter) ([]SessionSummary, error) {
	query := `SELECT s.session_id, COALESCE(s.date, ''), COALESCE(s.committee, ''), s.meeting_name,
		(SELECT COUNT(*) FROM agenda_items ai WHERE ai.session_id = s.session_id),
		(SELECT COUNT(*) FROM documents d WHERE d.session_id = s.session_id)
		FROM sessions s WHERE 1=1`
	var args []any
	if f.DateFrom != "" {
		query += " AND s.date >= ?"
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		query += " AND s.date <= ?"
		args = append(args, f.DateTo)
	}
	if f.Committee != "" {
		query += " AND s.committee = ?"
		args = append(args, f.Committee)
	}
	if f.Year != 0 {
		query += " AND s.year = ?"
		args = append(args, f.Year)
	}
	if f.Today != "" {
		query += " AND s.date <= ?"
		args = append(args, f.Today)
	}
	if f.Search != "" {
		query += " AND (s.meeting_name LIKE ? OR s.committee LIKE ?)"
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	query += " ORDER BY s.date DESC, s.session_id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.SessionID, &s.Date, &s.Committee, &s.MeetingName, &s.AgendaCount, &s.DocumentCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadAgendaItems returns the agenda of a session in page order.
func (db *DB) LoadAgendaItems(sessionID string) ([]AgendaItem, error) {
	rows, err := db.conn.Query(
		`SELECT id, session_id, COALESCE(number, ''), title, reporter, status, decision,
		COALESCE(documents_present, 0) FROM agenda_items WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AgendaItem
	for rows.Next() {
		var item AgendaItem
		var present int
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Number, &item.Title, &item.Reporter,
			&item.Status, &item.Decision, &present); err != nil {
			return nil, err
		}
		item.DocumentsPresent = present != 0
		out = append(out, item)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
