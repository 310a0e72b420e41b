package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/ratsinfo/internal/database"
)

const vorlageText = `Beschlussvorschlag: Der Rat beschliesst die Freigabe der Mittel fuer die Sanierung der Grundschule.
Begruendung: Die bestehende Infrastruktur ist schadhaft und muss ersetzt werden.
Finanzielle Auswirkungen: Im Haushalt 2026 sind 120.000 EUR eingeplant.
Zustaendigkeit: Ausschuss fuer Finanzen, Rat der Stadt Melle.
`

func ptr(s string) *string { return &s }

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "analysis.sqlite"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedSession indexes a session whose first agenda item has a local text
// file and whose session document has no file.
func seedSession(t *testing.T, db *database.DB) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "agenda", "Ö-1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "agenda", "Ö-1", "Vorlage.txt"), []byte(vorlageText), 0o644); err != nil {
		t.Fatal(err)
	}
	err := db.ReplaceSession(
		database.Session{SessionID: "77", Date: "2025-06-05", Committee: "Rat", SessionPath: ptr(dir)},
		[]database.AgendaItem{
			{Number: "Ö 1", Title: ptr("Sanierung Grundschule"), Decision: ptr("accepted"), DocumentsPresent: true},
			{Number: "Ö 2", Title: ptr("Verschiedenes")},
		},
		[]database.Document{
			{Title: ptr("Vorlage"), Category: ptr("BV"), DocumentType: ptr("beschlussvorlage"), AgendaItem: ptr("Ö 1"),
				URL: ptr("https://example.org/vo.txt"), LocalPath: ptr("agenda/Ö-1/Vorlage.txt"), ContentType: ptr("text/plain")},
			{Title: ptr("Einladung"), Category: ptr("BM"), URL: ptr("https://example.org/bm.pdf")},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestEnrichDocuments(t *testing.T) {
	db := openTestDB(t)
	dir := seedSession(t, db)
	docs, err := db.LoadDocuments("77", database.ScopeSession, nil)
	if err != nil {
		t.Fatal(err)
	}
	enriched := EnrichDocuments(dir, docs, 0)
	if len(enriched) != 2 {
		t.Fatalf("got %d documents", len(enriched))
	}

	missing := enriched[0]
	if *missing.Title != "Einladung" || missing.ExtractionStatus() != "missing_file" {
		t.Errorf("session document = %+v", missing)
	}
	if *missing.DocumentType != "bekanntmachung" {
		t.Errorf("inferred type = %q", *missing.DocumentType)
	}
	m := missing.ToMap()
	if m["content_parser_status"] != "missing_file" || m["content_parser_quality"] != "failed" || m["resolved_local_path"] != nil {
		t.Errorf("missing map = %v", m)
	}

	vorlage := enriched[1]
	if vorlage.ResolvedPath != filepath.Join(dir, "agenda", "Ö-1", "Vorlage.txt") {
		t.Errorf("resolved = %q", vorlage.ResolvedPath)
	}
	if !strings.Contains(vorlage.Content.Fields["beschlusstext"], "Freigabe der Mittel") {
		t.Errorf("fields = %v", vorlage.Content.Fields)
	}
	if vorlage.Content.Quality != "high" {
		t.Errorf("quality = %q", vorlage.Content.Quality)
	}
	vm := vorlage.ToMap()
	for _, key := range []string{"extraction_status", "extracted_text", "structured_fields", "content_parser_version", "extraction_pipeline_version"} {
		if _, ok := vm[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}

func TestBuildMarkdownSections(t *testing.T) {
	session := &database.Session{SessionID: "77", Date: "2025-06-05"}
	long := strings.Repeat("Sanierung ", 40)
	docs := []Document{{
		Document: database.Document{Title: ptr("Vorlage"), DocumentType: ptr("beschlussvorlage"), AgendaItem: ptr("Ö 1")},
	}}
	docs[0].Content.Quality = "low"
	docs[0].Content.Fields = map[string]string{"begruendung": long, "titel": "Vorlage"}

	md := BuildMarkdown(session, Request{Scope: database.ScopeTops, Tops: []string{"Ö 1", "Ö 3"}}, docs, "")

	for _, want := range []string{
		"# Analyse Sitzung 2025-06-05 - -",
		"- Scope: tops",
		"- TOP-Auswahl: Ö 1, Ö 3",
		"- Dokumente im Scope: 1",
		"## Journalistische Kurzfassung\n" + templateSummary,
		"## Dokumentkontext",
		"- Ö 1 | beschlussvorlage | Vorlage | Extraktion: missing_file | Parser: low",
		"## Prompt-Hinweis\n(kein Prompt gesetzt)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown lacks %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "titel:") {
		t.Error("titel should not be listed")
	}
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "  - begruendung: ") {
			value := strings.TrimPrefix(line, "  - begruendung: ")
			if want := strings.Repeat("Sanierung ", 23) + "Sanierung..."; value != want {
				t.Errorf("begruendung preview = %q", value)
			}
		}
	}
}

func TestBuildMarkdownWithoutDocuments(t *testing.T) {
	md := BuildMarkdown(&database.Session{Date: "2025-06-05", Committee: "Rat"},
		Request{Scope: database.ScopeSession, Prompt: "Bitte kurz."}, nil, "Eigene Fassung.")
	if strings.Contains(md, "Dokumentkontext") {
		t.Error("no document section expected")
	}
	if !strings.Contains(md, "- TOP-Auswahl: alle TOPs") || !strings.Contains(md, "Eigene Fassung.") ||
		!strings.HasSuffix(md, "Bitte kurz.") {
		t.Errorf("markdown = %s", md)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("  a \n b  ", 10); got != "a b" {
		t.Errorf("got %q", got)
	}
	if got := truncate("abcdef ghij", 8); got != "abcdef..." {
		t.Errorf("got %q", got)
	}
}

type statusCounter map[string]int

func (c statusCounter) ObserveExtraction(status string) { c[status]++ }

func TestRunWithTemplate(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db)

	r := NewRunner(db, nil)
	counts := statusCounter{}
	r.Observer = counts
	out, err := r.Run(context.Background(), Request{SessionID: "77"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Model != TemplateModel || out.PromptVersion != TemplatePromptVersion || out.Documents != 2 {
		t.Errorf("outcome = %+v", out)
	}
	if !strings.Contains(out.Markdown, DefaultPrompt) || !strings.Contains(out.Markdown, "beschlusstext: Der Rat") {
		t.Errorf("markdown = %s", out.Markdown)
	}

	if counts["missing_file"] != 1 || len(counts) != 2 {
		t.Errorf("extraction statuses = %v", counts)
	}

	job, _ := db.GetAnalysisJob(out.JobID)
	if job.Status != database.JobCompleted || job.JobUUID != out.JobUUID || job.Scope != "session" {
		t.Errorf("job = %+v", job)
	}
	stored, _ := db.LatestAnalysisOutput("77", OutputMarkdown)
	if stored == nil || stored.Content != out.Markdown {
		t.Errorf("stored output = %+v", stored)
	}
}

type fakeProvider struct {
	response string
	err      error
	prompt   string
}

func (f *fakeProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}
func (f *fakeProvider) IsConfigured() bool { return true }
func (f *fakeProvider) Name() string       { return "fake/model" }

func TestRunWithProvider(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db)
	p := &fakeProvider{response: "```json\n{\"summary\": \"Der Rat gibt Geld frei.\", \"open_points\": [\"Zeitplan\"]}\n```"}

	out, err := NewRunner(db, p).Run(context.Background(), Request{SessionID: "77", Scope: database.ScopeTops, Tops: []string{"Ö 1"}})
	if err != nil {
		t.Fatal(err)
	}
	if out.Model != "fake/model" || out.PromptVersion != LLMPromptVersion {
		t.Errorf("outcome = %+v", out)
	}
	if !strings.Contains(out.Markdown, "Der Rat gibt Geld frei.\n\nOffene Punkte:\n- Zeitplan") {
		t.Errorf("markdown = %s", out.Markdown)
	}
	if !strings.Contains(p.prompt, "- Ö 1 Sanierung Grundschule [accepted]") || strings.Contains(p.prompt, "Verschiedenes") {
		t.Errorf("prompt = %s", p.prompt)
	}
	job, _ := db.GetAnalysisJob(out.JobID)
	if *job.ModelName != "fake/model" || len(job.TopNumbers) != 1 {
		t.Errorf("job = %+v", job)
	}
}

func TestRunFallsBackWhenProviderFails(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db)
	out, err := NewRunner(db, &fakeProvider{err: errors.New("timeout")}).Run(context.Background(), Request{SessionID: "77"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Model != TemplateModel || !strings.Contains(out.Markdown, templateSummary) {
		t.Errorf("outcome = %+v", out)
	}
}

func TestRunValidatesRequest(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db)
	r := NewRunner(db, nil)
	if _, err := r.Run(context.Background(), Request{SessionID: "77", Scope: database.ScopeTops}); !errors.Is(err, ErrNoTopsSelected) {
		t.Errorf("expected ErrNoTopsSelected, got %v", err)
	}
	if _, err := r.Run(context.Background(), Request{SessionID: "nope"}); err == nil {
		t.Error("expected error for unknown session")
	}
}
