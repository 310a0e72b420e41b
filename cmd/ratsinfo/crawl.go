package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/ratsinfo/internal/index"
	"github.com/TobiSchelling/ratsinfo/internal/metrics"
	"github.com/TobiSchelling/ratsinfo/internal/pipeline"
	"github.com/TobiSchelling/ratsinfo/internal/server"
	"github.com/TobiSchelling/ratsinfo/internal/watch"
)

// --- fetch command ---

var (
	fetchYear    int
	fetchMonths  []int
	fetchRefresh bool
	fetchDryRun  bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Crawl the portal, download documents and update the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		months, err := resolveMonths(time.Now(), fetchYear, fetchMonths)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		m := metrics.New()
		client, err := newClient(m)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		pipe := pipeline.New(db, client, m)
		opts := pipeline.Options{Months: months, Refresh: fetchRefresh || cfg.Crawl.Refresh}

		var result *pipeline.Result
		if fetchDryRun {
			result = pipe.DryRun(ctx, opts)
		} else {
			result = pipe.Run(ctx, opts)
		}
		printSteps(result)

		if err := result.Err(); err != nil {
			return err
		}
		if !fetchDryRun {
			fmt.Printf("\nFetch complete: %d sessions, %d documents, %d failed.\n",
				result.Sessions, result.Documents, result.Failed)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchYear, "year", 0, "Crawl this year (all months unless --months is given)")
	fetchCmd.Flags().IntSliceVar(&fetchMonths, "months", nil, "Month numbers to crawl, e.g. 3,4,5")
	fetchCmd.Flags().BoolVar(&fetchRefresh, "refresh", false, "Download documents again even when unchanged")
	fetchCmd.Flags().BoolVar(&fetchDryRun, "dry-run", false, "List sessions without downloading anything")
}

// resolveMonths turns the fetch flags into a month list. Without flags the
// configured window around now is used.
func resolveMonths(now time.Time, year int, months []int) ([]index.Month, error) {
	if year == 0 && len(months) == 0 {
		return pipeline.Months(now, cfg.Crawl.MonthsBack, cfg.Crawl.MonthsAhead), nil
	}
	if year == 0 {
		year = now.Year()
	}
	if len(months) == 0 {
		months = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	}
	out := make([]index.Month, 0, len(months))
	for _, mo := range months {
		if mo < 1 || mo > 12 {
			return nil, fmt.Errorf("invalid month: %d", mo)
		}
		out = append(out, index.Month{Year: year, Month: mo})
	}
	return out, nil
}

func printSteps(result *pipeline.Result) {
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- index command ---

var (
	refreshExisting bool
	onlyRefresh     bool
	indexFrom       string
	indexTo         string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the index from the local mirror or the portal",
}

var indexLocalCmd = &cobra.Command{
	Use:   "local",
	Short: "Index session folders already in the local mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := index.BuildLocal(db, cfg.RawDir(), indexOptions())
		if err != nil {
			return err
		}
		printIndexResult(result)
		return nil
	},
}

var indexOnlineCmd = &cobra.Command{
	Use:   "online",
	Short: "Index sessions straight from the portal without downloading documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		from, err := parseMonth(indexFrom, now)
		if err != nil {
			return err
		}
		to, err := parseMonth(indexTo, now)
		if err != nil {
			return err
		}
		if to.Before(from) {
			return fmt.Errorf("--to %s is before --from %s", to.Format("2006-01"), from.Format("2006-01"))
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		client, err := newClient(metrics.New())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		result, err := index.BuildOnline(ctx, db, client, index.MonthsBetween(from, to), indexOptions())
		if result != nil {
			printIndexResult(result)
		}
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{indexLocalCmd, indexOnlineCmd} {
		c.Flags().BoolVar(&refreshExisting, "refresh-existing", false, "Rebuild sessions that are already indexed")
		c.Flags().BoolVar(&onlyRefresh, "only-refresh", false, "Only rebuild sessions that are already indexed")
		indexCmd.AddCommand(c)
	}
	indexOnlineCmd.Flags().StringVar(&indexFrom, "from", "", "First month (YYYY-MM, default current month)")
	indexOnlineCmd.Flags().StringVar(&indexTo, "to", "", "Last month (YYYY-MM, default current month)")
}

func indexOptions() index.Options {
	return index.Options{RefreshExisting: refreshExisting, OnlyRefresh: onlyRefresh}
}

func parseMonth(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM", s)
	}
	return t, nil
}

func printIndexResult(r *index.Result) {
	fmt.Println("\nIndex complete:")
	fmt.Printf("  Sessions found: %d\n", r.SessionsFound)
	fmt.Printf("  Indexed: %d\n", r.Indexed)
	fmt.Printf("  Skipped: %d\n", r.Skipped)
	fmt.Printf("  Failed: %d\n", r.Failed)
	fmt.Printf("  Agenda items: %d\n", r.AgendaItems)
	fmt.Printf("  Documents: %d\n", r.Documents)
	if r.Normalized > 0 {
		fmt.Printf("  Document types normalized: %d\n", r.Normalized)
	}
}

// --- watch command ---

var (
	watchServe bool
	watchNow   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run fetch on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := watch.ParseSchedule(cfg.Schedule)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		m := metrics.New()
		client, err := newClient(m)
		if err != nil {
			return err
		}
		pipe := pipeline.New(db, client, m)

		if watchServe {
			go func() {
				if err := server.Serve(db, cfg.Server.Port, serverOptions(db, m)); err != nil {
					log.Printf("Server stopped: %v", err)
				}
			}()
		}

		job := func(ctx context.Context) {
			months := pipeline.Months(time.Now(), cfg.Crawl.MonthsBack, cfg.Crawl.MonthsAhead)
			result := pipe.Run(ctx, pipeline.Options{Months: months, Refresh: cfg.Crawl.Refresh})
			if err := result.Err(); err != nil {
				log.Printf("Run %s failed: %v", result.RunID, err)
				return
			}
			log.Printf("Run %s complete: %d sessions, %d documents, %d failed",
				result.RunID, result.Sessions, result.Documents, result.Failed)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		log.Printf("Watching %s (cron: %s)", cfg.Site.BaseURL, cfg.Schedule)
		if watchNow {
			job(ctx)
		}
		if err := watch.Loop(ctx, sched, job); !errors.Is(err, context.Canceled) {
			return err
		}
		log.Println("Watch stopped")
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchServe, "serve", false, "Also serve the web view and /metrics")
	watchCmd.Flags().BoolVar(&watchNow, "now", false, "Run once immediately before waiting for the schedule")
}
