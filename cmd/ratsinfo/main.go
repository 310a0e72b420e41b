package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/ratsinfo/internal/analysis"
	"github.com/TobiSchelling/ratsinfo/internal/config"
	"github.com/TobiSchelling/ratsinfo/internal/database"
	"github.com/TobiSchelling/ratsinfo/internal/fetch"
	"github.com/TobiSchelling/ratsinfo/internal/llm"
	"github.com/TobiSchelling/ratsinfo/internal/metrics"
	"github.com/TobiSchelling/ratsinfo/internal/server"
	"github.com/TobiSchelling/ratsinfo/internal/sessionnet"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ratsinfo",
	Short:   "Mirror and index a SessionNet council portal",
	Long:    "ratsinfo crawls a SessionNet council portal, mirrors meetings and their documents, indexes them in SQLite and extracts document text for export and analysis.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for commands that work without one
		switch cmd.Name() {
		case "init", "version", "inspect":
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ratsinfo", version)
	},
}

// --- init command ---

var seedDB string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/ratsinfo/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
		} else {
			if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Printf("Created config: %s\n", target)
			fmt.Println("Edit it to set the portal URL and the summarization provider.")
		}

		if seedDB == "" {
			return nil
		}
		c, err := config.Load(target)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(c.DBPath()), 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		seeded, err := database.SeedFrom(c.DBPath(), seedDB)
		if err != nil {
			return fmt.Errorf("seeding index: %w", err)
		}
		if seeded {
			fmt.Printf("Seeded index %s from %s\n", c.DBPath(), seedDB)
		} else {
			fmt.Printf("Index already exists: %s\n", c.DBPath())
		}
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&seedDB, "seed", "", "Copy an existing index database into place")
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and crawl status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		schema, _ := db.SchemaVersion()

		fmt.Printf("Index: %s (schema v%d)\n", db.Path(), schema)
		fmt.Printf("Mirror: %s\n\n", cfg.RawDir())
		fmt.Println("Sessions:")
		fmt.Printf("  Total: %s\n", humanize.Comma(int64(stats.Sessions)))
		fmt.Printf("  Committees: %d\n", stats.Committees)
		fmt.Printf("  Agenda items: %s\n", humanize.Comma(int64(stats.AgendaItems)))
		if stats.FirstSessionDate != nil && stats.LastSessionDate != nil {
			fmt.Printf("  Range: %s to %s\n", *stats.FirstSessionDate, *stats.LastSessionDate)
		}
		fmt.Println("\nDocuments:")
		fmt.Printf("  Total: %s\n", humanize.Comma(int64(stats.Documents)))
		fmt.Printf("  Stored locally: %s\n", humanize.Comma(int64(stats.LocalDocuments)))
		for _, t := range sortedKeys(stats.DocumentsByType) {
			name := t
			if name == "" {
				name = "(none)"
			}
			fmt.Printf("  %s: %d\n", name, stats.DocumentsByType[t])
		}
		fmt.Println("\nActivity:")
		fmt.Printf("  Analysis jobs: %d\n", stats.AnalysisJobs)
		fmt.Printf("  Crawl runs: %d\n", stats.CrawlRuns)

		runs, err := db.ListCrawlRuns(5)
		if err != nil {
			return err
		}
		for _, r := range runs {
			months := ""
			if r.Months != nil {
				months = *r.Months
			}
			fmt.Printf("  %s  %-9s %s sessions=%d documents=%d failed=%d\n",
				relativeTime(r.StartedAt), r.Status, months, r.Sessions, r.Documents, r.Failed)
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		m := metrics.New()
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port, serverOptions(db, m))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func serverOptions(db *database.DB, m *metrics.Metrics) server.Options {
	return server.Options{Metrics: m.Handler(), Analyzer: newRunner(db, m)}
}

func openDB() (*database.DB, error) {
	dbPath := cfg.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(dbPath)
}

// newClient builds a portal client whose requests and downloads are
// recorded in m.
func newClient(m *metrics.Metrics) (*sessionnet.Client, error) {
	opts := cfg.FetchOptions()
	opts.Observer = m
	return sessionnet.NewClient(sessionnet.Config{
		BaseURL:     cfg.Site.BaseURL,
		StorageRoot: cfg.RawDir(),
		Fetcher:     fetch.New(opts),
		Observer:    m,
	})
}

func newRunner(db *database.DB, m *metrics.Metrics) *analysis.Runner {
	s := cfg.Summarization
	provider := llm.CreateProvider(s.Provider, s.Model, s.OllamaURL, s.OpenAIModel, s.APIKeyEnv)
	r := analysis.NewRunner(db, provider)
	r.MaxTextChars = cfg.Extraction.MaxTextChars
	r.MaxTokens = s.MaxTokens
	if m != nil {
		r.Observer = m
	}
	return r
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func relativeTime(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}
