package database

import (
	"database/sql"
	"fmt"
)

// Crawl run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// StartCrawlRun records the start of a pipeline run.
func (db *DB) StartCrawlRun(runID, months string) error {
	_, err := db.conn.Exec(
		`INSERT INTO crawl_runs (run_id, started_at, status, months) VALUES (?, ?, ?, ?)`,
		runID, timestamp(), RunRunning, months,
	)
	if err != nil {
		return fmt.Errorf("recording crawl run: %w", err)
	}
	return nil
}

// FinishCrawlRun stores the outcome of a run.
func (db *DB) FinishCrawlRun(run CrawlRun) error {
	finishedAt := timestamp()
	_, err := db.conn.Exec(
		`UPDATE crawl_runs SET finished_at = ?, status = ?, sessions = ?, documents = ?, failed = ?,
		error_message = ? WHERE run_id = ?`,
		finishedAt, run.Status, run.Sessions, run.Documents, run.Failed, run.ErrorMessage, run.RunID,
	)
	return err
}

// ListCrawlRuns returns the most recent runs, newest first.
func (db *DB) ListCrawlRuns(limit int) ([]CrawlRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.Query(
		`SELECT run_id, started_at, finished_at, status, months, sessions, documents, failed, error_message
		FROM crawl_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CrawlRun
	for rows.Next() {
		var r CrawlRun
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Months,
			&r.Sessions, &r.Documents, &r.Failed, &r.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetStats returns aggregate statistics about the index.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	counts := []struct {
		dest  *int
		query string
	}{
		{&s.Sessions, "SELECT COUNT(*) FROM sessions"},
		{&s.Committees, "SELECT COUNT(DISTINCT committee) FROM sessions WHERE COALESCE(committee, '') != ''"},
		{&s.AgendaItems, "SELECT COUNT(*) FROM agenda_items"},
		{&s.Documents, "SELECT COUNT(*) FROM documents"},
		{&s.LocalDocuments, "SELECT COUNT(*) FROM documents WHERE COALESCE(TRIM(local_path), '') != ''"},
		{&s.AnalysisJobs, "SELECT COUNT(*) FROM analysis_jobs"},
		{&s.CrawlRuns, "SELECT COUNT(*) FROM crawl_runs"},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}

	var first, last sql.NullString
	if err := db.conn.QueryRow("SELECT MIN(date), MAX(date) FROM sessions").Scan(&first, &last); err != nil {
		return nil, err
	}
	if first.Valid {
		s.FirstSessionDate = &first.String
	}
	if last.Valid {
		s.LastSessionDate = &last.String
	}
	var lastRun sql.NullString
	if err := db.conn.QueryRow("SELECT MAX(started_at) FROM crawl_runs").Scan(&lastRun); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		s.LastCrawlStarted = &lastRun.String
	}

	byType, err := db.CountDocumentsByType()
	if err != nil {
		return nil, err
	}
	s.DocumentsByType = byType
	return s, nil
}
