package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Analysis job statuses.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// CreateAnalysisJob inserts a running job and returns its row id.
func (db *DB) CreateAnalysisJob(job AnalysisJob) (int64, error) {
	tops, err := json.Marshal(job.TopNumbers)
	if err != nil {
		return 0, err
	}
	if job.TopNumbers == nil {
		tops = []byte("[]")
	}
	createdAt := job.CreatedAt
	if createdAt == "" {
		createdAt = timestamp()
	}
	status := job.Status
	if status == "" {
		status = JobRunning
	}
	res, err := db.conn.Exec(
		`INSERT INTO analysis_jobs
		(job_uuid, created_at, session_id, scope, top_numbers_json, model_name, prompt_version, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobUUID, createdAt, job.SessionID, job.Scope, string(tops),
		job.ModelName, job.PromptVersion, status, job.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("creating analysis job: %w", err)
	}
	return res.LastInsertId()
}

// FinishAnalysisJob sets the final status of a job. errMsg is stored
// only when non-empty.
func (db *DB) FinishAnalysisJob(id int64, status, modelName, promptVersion, errMsg string) error {
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	_, err := db.conn.Exec(
		`UPDATE analysis_jobs SET status = ?, model_name = ?, prompt_version = ?, error_message = ?
		WHERE id = ?`,
		status, modelName, promptVersion, msg, id,
	)
	return err
}

// InsertAnalysisOutput stores a rendered analysis for a job.
func (db *DB) InsertAnalysisOutput(jobID int64, format, content string) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO analysis_outputs (job_id, output_format, content, created_at) VALUES (?, ?, ?, ?)`,
		jobID, format, content, timestamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("storing analysis output: %w", err)
	}
	return res.LastInsertId()
}

// GetAnalysisJob returns a job by row id, or nil.
func (db *DB) GetAnalysisJob(id int64) (*AnalysisJob, error) {
	var job AnalysisJob
	var uuid, tops sql.NullString
	err := db.conn.QueryRow(
		`SELECT id, job_uuid, created_at, session_id, scope, top_numbers_json, model_name,
		prompt_version, status, error_message FROM analysis_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &uuid, &job.CreatedAt, &job.SessionID, &job.Scope, &tops,
		&job.ModelName, &job.PromptVersion, &job.Status, &job.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job.JobUUID = uuid.String
	if tops.String != "" {
		if err := json.Unmarshal([]byte(tops.String), &job.TopNumbers); err != nil {
			return nil, fmt.Errorf("decoding top numbers of job %d: %w", id, err)
		}
	}
	return &job, nil
}

// LatestAnalysisOutput returns the newest output of a completed job for
// the session, or nil.
func (db *DB) LatestAnalysisOutput(sessionID, format string) (*AnalysisOutput, error) {
	var out AnalysisOutput
	err := db.conn.QueryRow(
		`SELECT o.id, o.job_id, o.output_format, o.content, o.created_at
		FROM analysis_outputs o JOIN analysis_jobs j ON j.id = o.job_id
		WHERE j.session_id = ? AND j.status = ? AND o.output_format = ?
		ORDER BY o.id DESC LIMIT 1`,
		sessionID, JobCompleted, format,
	).Scan(&out.ID, &out.JobID, &out.OutputFormat, &out.Content, &out.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
