// Package analysis builds the journalistic session summaries: documents
// are enriched with extracted text and structured fields, rendered as
// markdown and stored as analysis jobs.
package analysis

import (
	"github.com/TobiSchelling/ratsinfo/internal/content"
	"github.com/TobiSchelling/ratsinfo/internal/database"
	"github.com/TobiSchelling/ratsinfo/internal/doctype"
	"github.com/TobiSchelling/ratsinfo/internal/extraction"
	"github.com/TobiSchelling/ratsinfo/internal/storage"
)

// DefaultMaxTextChars caps the text kept per document.
const DefaultMaxTextChars = 4000

// Enrichment is what extraction and content parsing found for one file.
type Enrichment struct {
	// ResolvedPath is empty when the document has no local file.
	ResolvedPath string
	// Extraction is nil when ResolvedPath is empty.
	Extraction *extraction.Result
	Content    content.Result
}

// Enrich resolves the document's file below sessionPath, extracts its
// text and parses the fields known for documentType.
func Enrich(sessionPath, localPath, contentType, documentType, title string, maxTextChars int) Enrichment {
	resolved := storage.ResolveLocalFilePath(sessionPath, localPath)
	if resolved == "" {
		return Enrichment{Content: content.Result{
			Status:        extraction.StatusMissingFile,
			Quality:       extraction.QualityFailed,
			ParserVersion: content.ParserVersion,
		}}
	}
	ext := extraction.ExtractTextForAnalysis(resolved, contentType, maxTextChars)
	return Enrichment{
		ResolvedPath: resolved,
		Extraction:   &ext,
		Content:      content.ParseDocumentContent(documentType, ext.Text, title),
	}
}

// ToMap returns the extraction and parser keys merged into exported
// documents.
func (e Enrichment) ToMap() map[string]any {
	m := map[string]any{}
	if e.Extraction == nil {
		m["resolved_local_path"] = nil
		m["extraction_status"] = extraction.StatusMissingFile
		m["structured_fields"] = map[string]string{}
		m["content_parser_status"] = e.Content.Status
		m["content_parser_quality"] = e.Content.Quality
		return m
	}
	m["resolved_local_path"] = e.ResolvedPath
	for k, v := range e.Extraction.ToMap() {
		m[k] = v
	}
	for k, v := range e.Content.ToMap() {
		m[k] = v
	}
	return m
}

// ExtractionStatus is "missing_file" for documents without a file.
func (e Enrichment) ExtractionStatus() string {
	if e.Extraction == nil {
		return extraction.StatusMissingFile
	}
	return e.Extraction.Status
}

// Document is an indexed document with its enrichment.
type Document struct {
	database.Document
	Enrichment
}

// EnrichDocuments enriches the documents of one session. Documents
// without a type get one inferred from their metadata.
func EnrichDocuments(sessionPath string, docs []database.Document, maxTextChars int) []Document {
	if maxTextChars <= 0 {
		maxTextChars = DefaultMaxTextChars
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		docType := deref(d.DocumentType)
		if docType == "" {
			docType = doctype.InferDocumentType(deref(d.Category), deref(d.Title), deref(d.ContentType), deref(d.URL), deref(d.LocalPath))
			d.DocumentType = &docType
		}
		e := Enrich(sessionPath, deref(d.LocalPath), deref(d.ContentType), docType, deref(d.Title), maxTextChars)
		out = append(out, Document{Document: d, Enrichment: e})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
