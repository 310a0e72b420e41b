// Package export writes analysis batches: the indexed documents matching
// a filter, optionally enriched with their extracted text.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/TobiSchelling/ratsinfo/internal/analysis"
	"github.com/TobiSchelling/ratsinfo/internal/database"
	"github.com/TobiSchelling/ratsinfo/internal/doctype"
)

const dateLayout = "2006-01-02"

// Filter selects the exported documents. Empty fields do not filter.
type Filter struct {
	SessionIDs       []string
	Committees       []string
	DateFrom         string
	DateTo           string
	DocumentTypes    []string
	RequireLocalPath bool
	// IncludeText adds extraction and parser results to every document.
	IncludeText  bool
	MaxTextChars int
}

// Filters is the filter as echoed in the payload.
type Filters struct {
	SessionIDs       []string `json:"session_ids"`
	Committees       []string `json:"committees"`
	DateFrom         *string  `json:"date_from"`
	DateTo           *string  `json:"date_to"`
	DocumentTypes    []string `json:"document_types"`
	RequireLocalPath bool     `json:"require_local_path"`
}

// Document is one exported row.
type Document struct {
	SessionID     string  `json:"session_id"`
	Date          string  `json:"date"`
	Committee     string  `json:"committee"`
	MeetingName   *string `json:"meeting_name"`
	TopNumber     *string `json:"top_number"`
	TopTitle      *string `json:"top_title"`
	Title         *string `json:"title"`
	Category      *string `json:"category"`
	DocumentType  *string `json:"document_type"`
	URL           *string `json:"url"`
	LocalPath     *string `json:"local_path"`
	SHA1          *string `json:"sha1"`
	RetrievedAt   *string `json:"retrieved_at"`
	ContentType   *string `json:"content_type"`
	ContentLength *int64  `json:"content_length"`

	// Extra holds enrichment keys, merged into the JSON object.
	Extra map[string]any `json:"-"`
}

// MarshalJSON flattens Extra into the document object.
func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	base, err := json.Marshal(plain(d))
	if err != nil || len(d.Extra) == 0 {
		return base, err
	}
	merged := make(map[string]any, len(d.Extra)+16)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range d.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Payload is the analysis batch file.
type Payload struct {
	GeneratedAt string     `json:"generated_at"`
	SourceDB    string     `json:"source_db"`
	Filters     Filters    `json:"filters"`
	Documents   []Document `json:"documents"`
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// Build validates f and collects the matching documents. Invalid dates
// and document types are errors; an unknown type wraps
// doctype.ErrUnsupportedDocumentType.
func Build(db *database.DB, f Filter) (*Payload, error) {
	for _, d := range []string{f.DateFrom, f.DateTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", d, err)
		}
	}
	types, err := doctype.NormalizeFilter(f.DocumentTypes)
	if err != nil {
		return nil, fmt.Errorf("export filter: %w", err)
	}

	rows, err := db.ExportDocuments(database.ExportQuery{
		SessionIDs:       f.SessionIDs,
		Committees:       f.Committees,
		DateFrom:         f.DateFrom,
		DateTo:           f.DateTo,
		DocumentTypes:    types,
		RequireLocalPath: f.RequireLocalPath,
	})
	if err != nil {
		return nil, err
	}

	p := &Payload{
		GeneratedAt: now().Format("2006-01-02T15:04:05.000000Z"),
		SourceDB:    db.Path(),
		Filters: Filters{
			SessionIDs:       nonNil(sortedUnique(f.SessionIDs)),
			Committees:       nonNil(sortedUnique(f.Committees)),
			DateFrom:         optional(f.DateFrom),
			DateTo:           optional(f.DateTo),
			DocumentTypes:    nonNil(types),
			RequireLocalPath: f.RequireLocalPath,
		},
		Documents: make([]Document, 0, len(rows)),
	}
	for _, row := range rows {
		doc := Document{
			SessionID:     row.SessionID,
			Date:          row.Date,
			Committee:     row.Committee,
			MeetingName:   row.MeetingName,
			TopNumber:     row.AgendaItem,
			TopTitle:      row.TopTitle,
			Title:         row.Title,
			Category:      row.Category,
			DocumentType:  row.DocumentType,
			URL:           row.URL,
			LocalPath:     row.LocalPath,
			SHA1:          row.SHA1,
			RetrievedAt:   row.RetrievedAt,
			ContentType:   row.ContentType,
			ContentLength: row.ContentLength,
		}
		if f.IncludeText {
			limit := f.MaxTextChars
			if limit <= 0 {
				limit = analysis.DefaultMaxTextChars
			}
			e := analysis.Enrich(str(row.SessionPath), str(row.LocalPath), str(row.ContentType),
				str(row.DocumentType), str(row.Title), limit)
			doc.Extra = e.ToMap()
		}
		p.Documents = append(p.Documents, doc)
	}
	return p, nil
}

// WriteJSON writes p as indented UTF-8 JSON, creating parent directories.
func WriteJSON(path string, p *Payload) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func sortedUnique(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
