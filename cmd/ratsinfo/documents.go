package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/ratsinfo/internal/analysis"
	"github.com/TobiSchelling/ratsinfo/internal/content"
	"github.com/TobiSchelling/ratsinfo/internal/database"
	"github.com/TobiSchelling/ratsinfo/internal/doctype"
	"github.com/TobiSchelling/ratsinfo/internal/export"
	"github.com/TobiSchelling/ratsinfo/internal/extraction"
	"github.com/TobiSchelling/ratsinfo/internal/pdfinfo"
)

// --- export command ---

var (
	exportSessions   []string
	exportCommittees []string
	exportFrom       string
	exportTo         string
	exportTypes      []string
	exportLocalOnly  bool
	exportText       bool
	exportOutput     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export indexed documents as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		payload, err := export.Build(db, export.Filter{
			SessionIDs:       exportSessions,
			Committees:       exportCommittees,
			DateFrom:         exportFrom,
			DateTo:           exportTo,
			DocumentTypes:    exportTypes,
			RequireLocalPath: exportLocalOnly,
			IncludeText:      exportText,
			MaxTextChars:     cfg.Extraction.MaxTextChars,
		})
		if err != nil {
			return err
		}

		output := exportOutput
		if output == "" {
			output = filepath.Join(cfg.GetDataDir(), "exports", "documents.json")
		}
		if err := export.WriteJSON(output, payload); err != nil {
			return err
		}
		fmt.Printf("Exported %d documents to %s\n", len(payload.Documents), output)
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringSliceVar(&exportSessions, "session", nil, "Session ID (repeatable)")
	f.StringSliceVar(&exportCommittees, "committee", nil, "Committee name (repeatable)")
	f.StringVar(&exportFrom, "from", "", "First session date (YYYY-MM-DD)")
	f.StringVar(&exportTo, "to", "", "Last session date (YYYY-MM-DD)")
	f.StringSliceVar(&exportTypes, "type", nil, "Document type: "+strings.Join(doctype.AllowedTypes, ", "))
	f.BoolVar(&exportLocalOnly, "require-local-path", false, "Only documents stored in the local mirror")
	f.BoolVar(&exportText, "include-text", false, "Add extracted text and parsed fields")
	f.StringVarP(&exportOutput, "output", "o", "", "Output file (default <data_dir>/exports/documents.json)")
}

// --- extract command ---

var (
	extractContentType string
	extractMaxChars    int
	extractType        string
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract and parse the text of one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		maxChars := extractMaxChars
		if maxChars == 0 {
			maxChars = cfg.Extraction.MaxTextChars
		}
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		docType := extractType
		if docType == "" {
			docType = doctype.InferDocumentType("", title, extractContentType, "", path)
		}

		result := extraction.ExtractTextForAnalysis(path, extractContentType, maxChars)
		parsed := content.ParseDocumentContent(docType, result.Text, title)

		out := result.ToMap()
		for k, v := range parsed.ToMap() {
			out[k] = v
		}
		out["document_type"] = docType

		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractContentType, "content-type", "", "Content type reported by the portal")
	extractCmd.Flags().IntVar(&extractMaxChars, "max-chars", 0, "Maximum characters of text (default from config)")
	extractCmd.Flags().StringVar(&extractType, "type", "", "Document type (inferred from the file name when empty)")
}

// --- analyze command ---

var (
	analyzeScope  string
	analyzeTops   []string
	analyzePrompt string
	analyzeOutput string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <session-id>",
	Short: "Write a journalistic analysis of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		scope := database.DocumentScope(analyzeScope)
		if scope == database.ScopeSession && len(analyzeTops) > 0 {
			scope = database.ScopeTops
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		outcome, err := newRunner(db, nil).Run(ctx, analysis.Request{
			SessionID: args[0],
			Scope:     scope,
			Tops:      analyzeTops,
			Prompt:    analyzePrompt,
		})
		if err != nil {
			return err
		}

		if analyzeOutput != "" {
			if err := os.WriteFile(analyzeOutput, []byte(outcome.Markdown), 0o644); err != nil {
				return fmt.Errorf("writing analysis: %w", err)
			}
			fmt.Printf("Wrote analysis to %s\n", analyzeOutput)
		} else {
			fmt.Println(outcome.Markdown)
		}
		fmt.Fprintf(os.Stderr, "Job %d (%s): %d documents, model %s, prompt %s\n",
			outcome.JobID, outcome.JobUUID, outcome.Documents, outcome.Model, outcome.PromptVersion)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeScope, "scope", string(database.ScopeSession), "session or tops")
	analyzeCmd.Flags().StringSliceVar(&analyzeTops, "top", nil, "Agenda item number (repeatable, implies --scope tops)")
	analyzeCmd.Flags().StringVar(&analyzePrompt, "prompt", "", "Editorial prompt recorded with the analysis")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Write the markdown to a file instead of stdout")
}

// --- inspect command ---

var inspectCmd = &cobra.Command{
	Use:   "inspect <pdf>...",
	Short: "Compare pdfcpu's view of PDF files with the text scanner",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, path := range args {
			if i > 0 {
				fmt.Println()
			}
			info, err := pdfinfo.Inspect(path)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s)\n", info.Path, humanize.Bytes(uint64(info.Size)))
			if info.StructureErr != nil {
				fmt.Printf("  Structure: %v\n", info.StructureErr)
			} else {
				fmt.Printf("  Version: %s\n", info.Version)
				fmt.Printf("  Pages: %d\n", info.PageCount)
				fmt.Printf("  Encrypted: %t\n", info.Encrypted)
			}
			fmt.Printf("  Scanner: %d objects, %d pages\n", info.ScannedObjects, info.ScannedPages)
			fmt.Printf("  Text: %d pages, %s chars\n", info.TextPages, humanize.Comma(int64(info.TextChars)))
			if info.Mismatch() {
				fmt.Printf("  Warning: pdfcpu counts %d pages, scanner %d\n", info.PageCount, info.ScannedPages)
			}
		}
		return nil
	},
}
