// Package content pulls labeled sections out of the text of council
// documents: the proposed resolution, its rationale, the financial impact,
// responsibilities and, for minutes, the recorded decision.
package content

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const ParserVersion = "1.0"

const (
	StatusOK                      = "ok"
	StatusNoStructuredFields      = "no_structured_fields"
	StatusEmptyText               = "empty_text"
	StatusUnsupportedDocumentType = "unsupported_document_type"
)

// minUnstructuredChars is the text length at which a document without any
// recognized section still counts as low rather than failed quality.
const minUnstructuredChars = 120

// Result holds the structured fields found in one document.
type Result struct {
	Status          string
	Quality         string
	Fields          map[string]string
	MatchedSections []string
	ParserVersion   string
}

// ToMap returns the flat record merged into export payloads.
func (r Result) ToMap() map[string]any {
	fields := r.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	matched := r.MatchedSections
	if matched == nil {
		matched = []string{}
	}
	return map[string]any{
		"content_parser_status":  r.Status,
		"content_parser_quality": r.Quality,
		"content_parser_version": r.ParserVersion,
		"structured_fields":      fields,
		"matched_sections":       matched,
	}
}

// Supported reports whether documentType has a field extractor.
func Supported(documentType string) bool {
	_, ok := extractors[strings.ToLower(strings.TrimSpace(documentType))]
	return ok
}

// ParseDocumentContent extracts the sections known for documentType from
// text. A non-empty title is stored as the "titel" field.
func ParseDocumentContent(documentType, text, title string) Result {
	documentType = strings.ToLower(strings.TrimSpace(documentType))
	text = normalizeText(text)
	title = strings.TrimSpace(title)

	ex, ok := extractors[documentType]
	if !ok {
		return Result{Status: StatusUnsupportedDocumentType, Quality: "failed", Fields: map[string]string{}, ParserVersion: ParserVersion}
	}
	if text == "" {
		return Result{Status: StatusEmptyText, Quality: "failed", Fields: map[string]string{}, ParserVersion: ParserVersion}
	}

	fields := ex.extract(text)
	if _, ok := fields["titel"]; title != "" && !ok {
		fields["titel"] = title
	}

	matched := make([]string, 0, len(fields))
	for k := range fields {
		matched = append(matched, k)
	}
	sort.Strings(matched)

	status := StatusOK
	if len(matched) == 0 {
		status = StatusNoStructuredFields
	}
	return Result{
		Status:          status,
		Quality:         ex.quality(fields, text),
		Fields:          fields,
		MatchedSections: matched,
		ParserVersion:   ParserVersion,
	}
}

type extractor struct {
	sections []section
	strong   []string
}

func (e extractor) extract(text string) map[string]string {
	fields := make(map[string]string)
	for _, s := range e.sections {
		if v := s.find(text); v != "" {
			fields[s.field] = v
		}
	}
	return fields
}

func (e extractor) quality(fields map[string]string, text string) string {
	if len(fields) == 0 {
		if utf8.RuneCountInString(text) >= minUnstructuredChars {
			return "low"
		}
		return "failed"
	}
	hits := 0
	for _, f := range e.strong {
		if fields[f] != "" {
			hits++
		}
	}
	switch {
	case hits >= 3:
		return "high"
	case hits >= 2:
		return "medium"
	}
	return "low"
}

// section captures the text after the first of its labels up to the next
// stop label, or the end of the text.
type section struct {
	field string
	label *regexp.Regexp
	stop  *regexp.Regexp
}

func newSection(field string, labels, stops []string) section {
	return section{
		field: field,
		label: regexp.MustCompile(`(?is)\b(?:` + strings.Join(labels, "|") + `)\b\s*[:\-]?\s*`),
		stop:  regexp.MustCompile(`(?is)\b(?:` + strings.Join(stops, "|") + `)\b\s*[:\-]?`),
	}
}

func (s section) find(text string) string {
	loc := s.label.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	if stop := s.stop.FindStringIndex(rest); stop != nil {
		rest = rest[:stop[0]]
	}
	return normalizeText(rest)
}

var (
	multiSpaceRe   = regexp.MustCompile(`[ \t]+`)
	multiNewlineRe = regexp.MustCompile(`\n{2,}`)
)

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = multiNewlineRe.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
