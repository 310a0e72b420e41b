package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestSession describes the session a folder belongs to.
type ManifestSession struct {
	SessionID   string `json:"session_id"`
	Committee   string `json:"committee"`
	MeetingName string `json:"meeting_name"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time,omitempty"`
	Location    string `json:"location,omitempty"`
	DetailURL   string `json:"detail_url"`
}

// ManifestDocument records one downloaded file. Path is relative to the
// session folder.
type ManifestDocument struct {
	Title              string `json:"title"`
	Category           string `json:"category,omitempty"`
	AgendaItem         string `json:"agenda_item,omitempty"`
	URL                string `json:"url"`
	Path               string `json:"path"`
	SHA1               string `json:"sha1"`
	ContentType        string `json:"content_type,omitempty"`
	ContentLength      int64  `json:"content_length"`
	ContentDisposition string `json:"content_disposition,omitempty"`
	ETag               string `json:"etag,omitempty"`
	LastModified       string `json:"last_modified,omitempty"`
	RetrievedAt        string `json:"retrieved_at"`
}

// Manifest is the content of manifest.json.
type Manifest struct {
	Session     ManifestSession    `json:"session"`
	RetrievedAt string             `json:"retrieved_at"`
	Documents   []ManifestDocument `json:"documents"`
}

// Find returns the entry recorded for url and agendaItem, or nil.
func (m *Manifest) Find(url, agendaItem string) *ManifestDocument {
	if m == nil {
		return nil
	}
	for i := range m.Documents {
		if m.Documents[i].URL == url && m.Documents[i].AgendaItem == agendaItem {
			return &m.Documents[i]
		}
	}
	return nil
}

// AgendaSummaryItem is one agenda item in agenda_summary.json.
type AgendaSummaryItem struct {
	Number           string  `json:"number"`
	Title            string  `json:"title"`
	Reporter         string  `json:"reporter,omitempty"`
	Status           string  `json:"status,omitempty"`
	Decision         *string `json:"decision"`
	DocumentsPresent bool    `json:"documents_present"`
}

// AgendaSummary is the content of agenda_summary.json.
type AgendaSummary struct {
	SessionID   string              `json:"session_id"`
	AgendaItems []AgendaSummaryItem `json:"agenda_items"`
}

// ReadManifest loads the manifest of a session folder. A missing file
// yields nil without error.
func ReadManifest(sessionDir string) (*Manifest, error) {
	var m Manifest
	ok, err := readJSON(filepath.Join(sessionDir, ManifestFile), &m)
	if !ok || err != nil {
		return nil, err
	}
	return &m, nil
}

// WriteManifest stores m as manifest.json in sessionDir.
func WriteManifest(sessionDir string, m *Manifest) error {
	return writeJSON(filepath.Join(sessionDir, ManifestFile), m)
}

// ReadAgendaSummary loads agenda_summary.json. A missing file yields nil
// without error.
func ReadAgendaSummary(sessionDir string) (*AgendaSummary, error) {
	var s AgendaSummary
	ok, err := readJSON(filepath.Join(sessionDir, AgendaSummaryFile), &s)
	if !ok || err != nil {
		return nil, err
	}
	return &s, nil
}

// WriteAgendaSummary stores s as agenda_summary.json in sessionDir.
func WriteAgendaSummary(sessionDir string, s *AgendaSummary) error {
	return writeJSON(filepath.Join(sessionDir, AgendaSummaryFile), s)
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", path, err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
