// Package extraction turns stored documents into normalized text with a
// quality classification. It never returns an error: every failure is
// reported through the Result status so that batch jobs can carry on past
// bad documents.
package extraction

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/TobiSchelling/ratsinfo/internal/pdftext"
)

// PipelineVersion is stored with every result. Bump it when the meaning of
// a Result field or a ToMap key changes.
const PipelineVersion = "1.1"

const (
	StatusMissingFile       = "missing_file"
	StatusUnsupportedFormat = "unsupported_format"
	StatusOCRNeeded         = "ocr_needed"
	StatusEmptyText         = "empty_text"
	StatusPartial           = "partial"
	StatusOK                = "ok"
	StatusError             = "error"

	QualityFailed = "failed"
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
)

// Character counts that separate the quality levels. Measured on the
// normalized text after truncation.
const (
	partialBelow = 80
	mediumBelow  = 500
)

var textSuffixes = map[string]bool{
	".txt": true, ".md": true, ".html": true, ".htm": true,
	".json": true, ".xml": true, ".csv": true,
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

var readFile = os.ReadFile

// PageText is the normalized text of a single PDF page.
type PageText struct {
	Page      int    `json:"page"`
	CharCount int    `json:"char_count"`
	Text      string `json:"text"`
}

// Result is the outcome of extracting one document.
type Result struct {
	Status          string
	Quality         string
	Text            string
	CharCount       int
	PageCount       *int
	PageTexts       []PageText
	Sections        []Section
	Error           *string
	OCRNeeded       bool
	PipelineVersion string
	ExtractedAt     time.Time
}

// ToMap returns the flat record merged into export payloads. The keys are
// read by downstream tools and must stay stable.
func (r Result) ToMap() map[string]any {
	pageTexts := r.PageTexts
	if pageTexts == nil {
		pageTexts = []PageText{}
	}
	sections := r.Sections
	if sections == nil {
		sections = []Section{}
	}
	var pageCount, extractionError any
	if r.PageCount != nil {
		pageCount = *r.PageCount
	}
	if r.Error != nil {
		extractionError = *r.Error
	}
	return map[string]any{
		"extraction_status":           r.Status,
		"parsing_quality":             r.Quality,
		"extracted_text":              r.Text,
		"extracted_char_count":        r.CharCount,
		"page_count":                  pageCount,
		"page_texts":                  pageTexts,
		"detected_sections":           sections,
		"extraction_error":            extractionError,
		"ocr_needed":                  r.OCRNeeded,
		"extraction_pipeline_version": r.PipelineVersion,
		"extracted_at":                r.ExtractedAt.UTC().Format("2006-01-02T15:04:05.000000Z"),
	}
}

// ExtractTextForAnalysis reads the file at path and extracts at most
// maxTextChars characters of normalized text. PDFs are recognized by a
// content type containing "pdf" or a .pdf suffix; plain-text files by
// suffix or a text/ content type.
func ExtractTextForAnalysis(path, contentType string, maxTextChars int) (result Result) {
	extractedAt := now()

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return failed(StatusMissingFile, "Local file does not exist", extractedAt)
	}

	defer func() {
		if r := recover(); r != nil {
			result = failed(StatusError, fmt.Sprint(r), extractedAt)
		}
	}()

	contentType = strings.ToLower(contentType)
	suffix := strings.ToLower(filepath.Ext(path))

	switch {
	case strings.Contains(contentType, "pdf") || suffix == ".pdf":
		raw, err := readFile(path)
		if err != nil {
			return failed(StatusError, err.Error(), extractedAt)
		}
		return classifyPDF(pdftext.Extract(raw), maxTextChars, extractedAt)

	case textSuffixes[suffix] || strings.HasPrefix(contentType, "text/"):
		raw, err := readFile(path)
		if err != nil {
			return failed(StatusError, err.Error(), extractedAt)
		}
		return classify(decodeText(raw), nil, false, maxTextChars, extractedAt)

	default:
		return failed(StatusUnsupportedFormat, "Unsupported file type for text extraction", extractedAt)
	}
}

func classifyPDF(doc pdftext.Document, maxTextChars int, extractedAt time.Time) Result {
	r := classify(doc.Text(), doc.PageCount, true, maxTextChars, extractedAt)
	for _, p := range doc.Pages {
		text := truncate(normalizeWhitespace(p.Text), maxTextChars)
		r.PageTexts = append(r.PageTexts, PageText{
			Page:      p.Number,
			CharCount: utf8.RuneCountInString(text),
			Text:      text,
		})
		r.Sections = append(r.Sections, DetectSections(p.Number, text)...)
	}
	return r
}

func classify(text string, pageCount *int, isPDF bool, maxTextChars int, extractedAt time.Time) Result {
	text = truncate(normalizeWhitespace(text), maxTextChars)
	n := utf8.RuneCountInString(text)

	r := Result{
		Text:            text,
		CharCount:       n,
		PageCount:       pageCount,
		PipelineVersion: PipelineVersion,
		ExtractedAt:     extractedAt,
	}
	switch {
	case n == 0 && isPDF:
		r.Status, r.Quality, r.OCRNeeded = StatusOCRNeeded, QualityLow, true
	case n == 0:
		r.Status, r.Quality = StatusEmptyText, QualityFailed
	case n < partialBelow:
		r.Status, r.Quality = StatusPartial, QualityLow
	case n < mediumBelow:
		r.Status, r.Quality = StatusOK, QualityMedium
	default:
		r.Status, r.Quality = StatusOK, QualityHigh
	}
	return r
}

func failed(status, message string, extractedAt time.Time) Result {
	return Result{
		Status:          status,
		Quality:         QualityFailed,
		Error:           &message,
		PipelineVersion: PipelineVersion,
		ExtractedAt:     extractedAt,
	}
}

// decodeText reads UTF-8 and falls back to Latin-1.
func decodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return ""
	}
	return string(s)
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxChars int) string {
	if maxChars < 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	return string([]rune(s)[:maxChars])
}
