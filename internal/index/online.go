package index

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/ratsinfo/internal/database"
	"github.com/TobiSchelling/ratsinfo/internal/sessionnet"
)

// Source is the part of the crawler the online builder needs.
// *sessionnet.Client satisfies it.
type Source interface {
	FetchMonth(ctx context.Context, year, month int, saveHTML bool) ([]sessionnet.SessionReference, error)
	FetchSession(ctx context.Context, ref sessionnet.SessionReference) (*sessionnet.SessionDetail, error)
	SessionDir(ref sessionnet.SessionReference) string
}

// Month is a calendar month.
type Month struct {
	Year  int
	Month int
}

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, m.Month) }

// MonthsBetween lists the months from the month of from up to and
// including the month of to.
func MonthsBetween(from, to time.Time) []Month {
	var out []Month
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(end) {
		out = append(out, Month{Year: cur.Year(), Month: int(cur.Month())})
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}

// BuildOnline crawls the given months and indexes every session found.
// A session listed in several months is indexed once. A session whose
// detail page cannot be loaded is counted as failed; a month that cannot
// be listed aborts the build.
func BuildOnline(ctx context.Context, db *database.DB, src Source, months []Month, opts Options) (*Result, error) {
	existing, err := db.ExistingSessionIDs()
	if err != nil {
		return nil, fmt.Errorf("reading indexed sessions: %w", err)
	}

	r := &Result{}
	seen := make(map[string]bool)
	for _, m := range months {
		refs, err := src.FetchMonth(ctx, m.Year, m.Month, false)
		if err != nil {
			return r, fmt.Errorf("listing %s: %w", m, err)
		}
		for _, ref := range refs {
			if seen[ref.SessionID] {
				continue
			}
			seen[ref.SessionID] = true
			r.SessionsFound++
			if !opts.shouldIndex(existing[ref.SessionID]) {
				r.Skipped++
				continue
			}

			detail, err := src.FetchSession(ctx, ref)
			if err != nil {
				if ctx.Err() != nil {
					return r, ctx.Err()
				}
				log.Printf("Warning: skipping session %s: %v", ref.SessionID, err)
				r.Failed++
				continue
			}
			items, docs, err := StoreDetail(db, detail, src.SessionDir(ref))
			if err != nil {
				return r, fmt.Errorf("indexing session %s: %w", ref.SessionID, err)
			}
			r.Indexed++
			r.AgendaItems += items
			r.Documents += docs
			opts.observe("online")
		}
	}
	if err := r.finish(db, "Online"); err != nil {
		return r, err
	}
	return r, nil
}
