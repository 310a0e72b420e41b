// Package pipeline runs a crawl: it mirrors the sessions of some months
// from the portal and writes them to the index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/ratsinfo/internal/database"
	"github.com/TobiSchelling/ratsinfo/internal/index"
	"github.com/TobiSchelling/ratsinfo/internal/sessionnet"
	"github.com/TobiSchelling/ratsinfo/internal/storage"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID     string
	Steps     []StepResult
	Sessions  int
	Documents int
	Failed    int
}

// Err returns the error of the failed step, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Crawler is the part of *sessionnet.Client the pipeline uses.
type Crawler interface {
	Layout() storage.Layout
	FetchMonth(ctx context.Context, year, month int, saveHTML bool) ([]sessionnet.SessionReference, error)
	DownloadSession(ctx context.Context, ref sessionnet.SessionReference, opts sessionnet.DownloadOptions) (*sessionnet.DownloadResult, error)
}

// Observer is told about indexed sessions and finished runs.
type Observer interface {
	index.Observer
	ObserveRunFinished(t time.Time)
}

// Options select what a run crawls.
type Options struct {
	Months []index.Month
	// Refresh downloads every document again instead of checking for
	// changes first.
	Refresh bool
}

// Pipeline orchestrates the storage, crawl, download and index steps.
type Pipeline struct {
	db       *database.DB
	crawler  Crawler
	observer Observer
}

// New creates a new pipeline. observer may be nil.
func New(db *database.DB, crawler Crawler, observer Observer) *Pipeline {
	return &Pipeline{db: db, crawler: crawler, observer: observer}
}

// Run executes the pipeline. A failing step stops the run; the run is
// recorded in crawl_runs either way.
func (p *Pipeline) Run(ctx context.Context, opts Options) *Result {
	r := &Result{RunID: uuid.NewString()}
	if err := p.db.StartCrawlRun(r.RunID, monthList(opts.Months)); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Start", Err: err})
		return r
	}
	defer p.finish(r)

	step := p.runStorage()
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	refs, step := p.runCrawl(ctx, opts.Months)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	downloads, step := p.runDownload(ctx, refs, opts.Refresh, r)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	step = p.runIndex(downloads)
	r.Steps = append(r.Steps, step)
	return r
}

// DryRun lists the sessions of the months without downloading anything.
func (p *Pipeline) DryRun(ctx context.Context, opts Options) *Result {
	r := &Result{}
	existing, err := p.db.ExistingSessionIDs()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Crawl", Err: err})
		return r
	}
	for _, m := range opts.Months {
		refs, err := p.crawler.FetchMonth(ctx, m.Year, m.Month, false)
		if err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Crawl", Err: fmt.Errorf("listing %s: %w", m, err)})
			return r
		}
		known := 0
		var lines []string
		for _, ref := range refs {
			mark := "new"
			if existing[ref.SessionID] {
				mark = "indexed"
				known++
			}
			lines = append(lines, fmt.Sprintf("  %s %s %s (%s)", ref.Date.Format("2006-01-02"), ref.SessionID, ref.Committee, mark))
		}
		r.Sessions += len(refs)
		summary := fmt.Sprintf("[dry-run] %d sessions in %s, %d already indexed", len(refs), m, known)
		if len(lines) > 0 {
			summary += "\n" + strings.Join(lines, "\n")
		}
		r.Steps = append(r.Steps, StepResult{Name: "Crawl", Summary: summary})
	}
	return r
}

func (p *Pipeline) finish(r *Result) {
	run := database.CrawlRun{
		RunID:     r.RunID,
		Status:    database.RunCompleted,
		Sessions:  r.Sessions,
		Documents: r.Documents,
		Failed:    r.Failed,
	}
	if err := r.Err(); err != nil {
		msg := err.Error()
		run.Status = database.RunFailed
		run.ErrorMessage = &msg
	}
	if err := p.db.FinishCrawlRun(run); err != nil {
		log.Printf("Error recording crawl run %s: %v", r.RunID, err)
	}
	if p.observer != nil {
		p.observer.ObserveRunFinished(time.Now())
	}
}

func (p *Pipeline) runStorage() StepResult {
	log.Println("Step 1/4: Checking storage layout...")
	moved, err := p.crawler.Layout().MigrateLegacyLayout()
	if err != nil {
		return StepResult{Name: "Storage", Err: err}
	}
	return StepResult{Name: "Storage", Summary: fmt.Sprintf("Moved %d legacy entries", moved)}
}

func (p *Pipeline) runCrawl(ctx context.Context, months []index.Month) ([]sessionnet.SessionReference, StepResult) {
	log.Println("Step 2/4: Crawling session overviews...")
	seen := make(map[string]bool)
	var refs []sessionnet.SessionReference
	for _, m := range months {
		found, err := p.crawler.FetchMonth(ctx, m.Year, m.Month, true)
		if err != nil {
			return nil, StepResult{Name: "Crawl", Err: fmt.Errorf("listing %s: %w", m, err)}
		}
		for _, ref := range found {
			if !seen[ref.SessionID] {
				seen[ref.SessionID] = true
				refs = append(refs, ref)
			}
		}
	}
	return refs, StepResult{
		Name:    "Crawl",
		Summary: fmt.Sprintf("Found %d sessions in %d months", len(refs), len(months)),
	}
}

func (p *Pipeline) runDownload(ctx context.Context, refs []sessionnet.SessionReference, refresh bool, r *Result) ([]*sessionnet.DownloadResult, StepResult) {
	log.Println("Step 3/4: Downloading session documents...")
	var results []*sessionnet.DownloadResult
	var downloaded, unchanged, failedDocs int
	for _, ref := range refs {
		res, err := p.crawler.DownloadSession(ctx, ref, sessionnet.DownloadOptions{Refresh: refresh})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return results, StepResult{Name: "Download", Err: err}
			}
			log.Printf("Warning: session %s: %v", ref.SessionID, err)
			r.Failed++
			continue
		}
		results = append(results, res)
		downloaded += res.Downloaded + res.Cached
		unchanged += res.Unchanged
		failedDocs += res.Failed
		r.Documents += res.Total()
	}
	return results, StepResult{
		Name: "Download",
		Summary: fmt.Sprintf("%d sessions: %d documents downloaded, %d unchanged, %d failed; %d sessions failed",
			len(results), downloaded, unchanged, failedDocs, r.Failed),
	}
}

func (p *Pipeline) runIndex(downloads []*sessionnet.DownloadResult) StepResult {
	log.Println("Step 4/4: Updating index...")
	var items, docs, indexed int
	for _, d := range downloads {
		i, n, err := index.StoreDetail(p.db, d.Detail, d.SessionDir)
		if err != nil {
			return StepResult{Name: "Index", Err: fmt.Errorf("session %s: %w", d.Detail.Reference.SessionID, err)}
		}
		items += i
		docs += n
		indexed++
		if p.observer != nil {
			p.observer.ObserveSessionIndexed("crawl")
		}
	}
	normalized, err := p.db.NormalizeDocumentTypes()
	if err != nil {
		return StepResult{Name: "Index", Err: err}
	}
	return StepResult{
		Name:    "Index",
		Summary: fmt.Sprintf("Indexed %d sessions (%d agenda items, %d documents, %d types normalized)", indexed, items, docs, normalized),
	}
}

// Months returns the current month of now plus back months before and
// ahead months after it.
func Months(now time.Time, back, ahead int) []index.Month {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return index.MonthsBetween(first.AddDate(0, -back, 0), first.AddDate(0, ahead, 0))
}

func monthList(months []index.Month) string {
	parts := make([]string, len(months))
	for i, m := range months {
		parts[i] = m.String()
	}
	return strings.Join(parts, ",")
}
