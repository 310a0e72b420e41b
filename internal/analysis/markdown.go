package analysis

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/ratsinfo/internal/database"
)

const fieldPreviewChars = 240

// summaryFields are listed under each document, in this order.
var summaryFields = []string{"beschlusstext", "entscheidung", "begruendung", "finanzbezug", "zustaendigkeit"}

const templateSummary = "Die Sitzung enthielt mehrere politische Beratungen. " +
	"Die unten aufgefuehrten Dokumentfelder markieren inhaltliche Anker fuer weitere redaktionelle Pruefung."

// BuildMarkdown renders the analysis of a session. An empty summary is
// replaced by the fixed template paragraph.
func BuildMarkdown(session *database.Session, req Request, docs []Document, summary string) string {
	committee := session.Committee
	if committee == "" {
		committee = "-"
	}
	topText := "alle TOPs"
	if req.Scope == database.ScopeTops {
		topText = strings.Join(req.Tops, ", ")
	}
	if strings.TrimSpace(summary) == "" {
		summary = templateSummary
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Analyse Sitzung %s - %s\n\n", session.Date, committee)
	fmt.Fprintf(&b, "- Scope: %s\n", req.Scope)
	fmt.Fprintf(&b, "- TOP-Auswahl: %s\n", topText)
	fmt.Fprintf(&b, "- Dokumente im Scope: %d\n\n", len(docs))
	b.WriteString("## Journalistische Kurzfassung\n")
	b.WriteString(strings.TrimSpace(summary))
	b.WriteString("\n")

	if len(docs) > 0 {
		b.WriteString("\n## Dokumentkontext\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "- %s | %s | %s | Extraktion: %s | Parser: %s\n",
				orDefault(deref(d.AgendaItem), "-"),
				orDefault(deref(d.DocumentType), "unbekannt"),
				orDefault(deref(d.Title), "(ohne Titel)"),
				orDefault(d.ExtractionStatus(), "n/a"),
				orDefault(d.Content.Quality, "n/a"),
			)
			for _, key := range summaryFields {
				if v := strings.TrimSpace(d.Content.Fields[key]); v != "" {
					fmt.Fprintf(&b, "  - %s: %s\n", key, truncate(v, fieldPreviewChars))
				}
			}
		}
	}

	b.WriteString("\n## Prompt-Hinweis\n")
	b.WriteString(orDefault(strings.TrimSpace(req.Prompt), "(kein Prompt gesetzt)"))
	return b.String()
}

// truncate collapses whitespace and cuts s to maxChars runes, marking the
// cut with "...".
func truncate(s string, maxChars int) string {
	cleaned := strings.Join(strings.Fields(s), " ")
	r := []rune(cleaned)
	if len(r) <= maxChars {
		return cleaned
	}
	return strings.TrimRight(string(r[:maxChars-1]), " \t\n") + "..."
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
