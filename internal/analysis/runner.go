package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/TobiSchelling/ratsinfo/internal/database"
	"github.com/TobiSchelling/ratsinfo/internal/llm"
)

// Model and prompt version recorded for summaries written without a
// language model.
const (
	TemplateModel         = "mock-journalism-v1"
	TemplatePromptVersion = "local-template-1"
	LLMPromptVersion      = "llm-summary-1"
	OutputMarkdown        = "markdown"
)

// DefaultPrompt is the editorial instruction used when a request has none.
const DefaultPrompt = "Erstelle eine journalistische, neutrale Zusammenfassung. " +
	"Nenne Kernthemen, Entscheidungen und offene Punkte."

const summaryPrompt = `Du bist Lokaljournalist und bereitest eine Ratssitzung auf.

Sitzung: %s, %s
Auftrag: %s

Tagesordnung:
%s

Dokumente:
%s

Antworte NUR mit diesem JSON:
{
    "summary": "Zwei bis drei Absaetze in Markdown.",
    "open_points": ["Offene Frage 1", "Offene Frage 2"]
}`

// ErrNoTopsSelected is returned for a tops-scoped request without tops.
var ErrNoTopsSelected = errors.New("scope 'tops' needs at least one agenda item")

// Request selects what to analyze.
type Request struct {
	SessionID string
	Scope     database.DocumentScope
	Tops      []string
	Prompt    string
}

// Outcome describes a finished analysis job.
type Outcome struct {
	JobID         int64
	JobUUID       string
	Model         string
	PromptVersion string
	Documents     int
	Markdown      string
}

// Observer is told the extraction status of every analyzed document.
type Observer interface {
	ObserveExtraction(status string)
}

// Runner executes analysis jobs against the index.
type Runner struct {
	db           *database.DB
	provider     llm.Provider
	MaxTextChars int
	MaxTokens    int
	Observer     Observer
}

// NewRunner creates a runner. provider may be nil; the summary then comes
// from the built-in template.
func NewRunner(db *database.DB, provider llm.Provider) *Runner {
	return &Runner{db: db, provider: provider, MaxTextChars: DefaultMaxTextChars, MaxTokens: 1024}
}

// Run analyzes a session and stores the markdown as a job output. The job
// row is created before any work starts and marked failed on error.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Scope == "" {
		req.Scope = database.ScopeSession
	}
	if req.Scope != database.ScopeSession && req.Scope != database.ScopeTops {
		return nil, fmt.Errorf("unknown scope %q", req.Scope)
	}
	if req.Scope == database.ScopeTops && len(req.Tops) == 0 {
		return nil, ErrNoTopsSelected
	}
	if strings.TrimSpace(req.Prompt) == "" {
		req.Prompt = DefaultPrompt
	}

	session, err := r.db.GetSession(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session %s is not indexed", req.SessionID)
	}

	model, promptVersion := TemplateModel, TemplatePromptVersion
	out := &Outcome{JobUUID: uuid.NewString()}
	out.JobID, err = r.db.CreateAnalysisJob(database.AnalysisJob{
		JobUUID:       out.JobUUID,
		SessionID:     req.SessionID,
		Scope:         string(req.Scope),
		TopNumbers:    req.Tops,
		ModelName:     &model,
		PromptVersion: &promptVersion,
	})
	if err != nil {
		return nil, err
	}

	markdown, docCount, err := r.render(ctx, session, req, &model, &promptVersion)
	if err == nil {
		_, err = r.db.InsertAnalysisOutput(out.JobID, OutputMarkdown, markdown)
	}
	if err != nil {
		if ferr := r.db.FinishAnalysisJob(out.JobID, database.JobFailed, model, promptVersion, err.Error()); ferr != nil {
			log.Printf("Error marking analysis job %d failed: %v", out.JobID, ferr)
		}
		return nil, fmt.Errorf("analysis job %d: %w", out.JobID, err)
	}
	if err := r.db.FinishAnalysisJob(out.JobID, database.JobCompleted, model, promptVersion, ""); err != nil {
		return nil, err
	}

	out.Model = model
	out.PromptVersion = promptVersion
	out.Documents = docCount
	out.Markdown = markdown
	log.Printf("Analysis job %d (%s) for session %s: %s", out.JobID, out.JobUUID, req.SessionID, model)
	return out, nil
}

func (r *Runner) render(ctx context.Context, session *database.Session, req Request, model, promptVersion *string) (string, int, error) {
	docs, err := r.db.LoadDocuments(req.SessionID, req.Scope, req.Tops)
	if err != nil {
		return "", 0, fmt.Errorf("loading documents: %w", err)
	}
	sessionPath := ""
	if session.SessionPath != nil {
		sessionPath = *session.SessionPath
	}
	enriched := EnrichDocuments(sessionPath, docs, r.MaxTextChars)
	if r.Observer != nil {
		for _, d := range enriched {
			r.Observer.ObserveExtraction(d.ExtractionStatus())
		}
	}

	summary := ""
	if r.provider != nil {
		agenda, err := r.db.LoadAgendaItems(req.SessionID)
		if err != nil {
			return "", 0, fmt.Errorf("loading agenda: %w", err)
		}
		summary, err = r.summarize(ctx, session, req, agenda, enriched)
		if err != nil {
			log.Printf("Warning: summary from %s failed, using template: %v", r.provider.Name(), err)
			summary = ""
		} else {
			*model = r.provider.Name()
			*promptVersion = LLMPromptVersion
		}
	}
	return BuildMarkdown(session, req, enriched, summary), len(enriched), nil
}

func (r *Runner) summarize(ctx context.Context, session *database.Session, req Request, agenda []database.AgendaItem, docs []Document) (string, error) {
	prompt := fmt.Sprintf(summaryPrompt, session.Date, session.Committee, req.Prompt,
		formatAgenda(agenda, req), formatDocuments(docs))
	text, err := r.provider.Generate(ctx, prompt, r.MaxTokens)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Summary    string   `json:"summary"`
		OpenPoints []string `json:"open_points"`
	}
	if err := llm.ParseJSONResponse(text, &parsed); err != nil || parsed.Summary == "" {
		text = strings.TrimSpace(llm.StripCodeFence(text))
		if text == "" {
			return "", llm.ErrEmptyResponse
		}
		return text, nil
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(parsed.Summary))
	if len(parsed.OpenPoints) > 0 {
		b.WriteString("\n\nOffene Punkte:\n")
		for _, p := range parsed.OpenPoints {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(p))
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatAgenda(items []database.AgendaItem, req Request) string {
	selected := make(map[string]bool, len(req.Tops))
	for _, t := range req.Tops {
		selected[t] = true
	}
	var lines []string
	for _, item := range items {
		if req.Scope == database.ScopeTops && !selected[item.Number] {
			continue
		}
		line := fmt.Sprintf("- %s %s", item.Number, deref(item.Title))
		if item.Decision != nil {
			line += " [" + *item.Decision + "]"
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "(keine)"
	}
	return strings.Join(lines, "\n")
}

func formatDocuments(docs []Document) string {
	var lines []string
	for _, d := range docs {
		lines = append(lines, fmt.Sprintf("- %s (%s, TOP %s)",
			orDefault(deref(d.Title), "(ohne Titel)"), deref(d.DocumentType), orDefault(deref(d.AgendaItem), "-")))
		for _, key := range summaryFields {
			if v := d.Content.Fields[key]; v != "" {
				lines = append(lines, fmt.Sprintf("  %s: %s", key, truncate(v, 600)))
			}
		}
	}
	if len(lines) == 0 {
		return "(keine)"
	}
	return strings.Join(lines, "\n")
}
