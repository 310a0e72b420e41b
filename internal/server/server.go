package server

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/ratsinfo/internal/analysis"
	"github.com/TobiSchelling/ratsinfo/internal/database"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Options wires optional features into the server.
type Options struct {
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	// Analyzer enables starting analyses from the session page.
	Analyzer *analysis.Runner
}

// Server is the HTTP server for browsing the index.
type Server struct {
	db    *database.DB
	opts  Options
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB, opts Options) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"bytes": func(n *int64) string {
			if n == nil || *n < 0 {
				return ""
			}
			return humanize.Bytes(uint64(*n))
		},
		"ago":   ago,
		"ptr":   func(s string) *string { return &s },
		"comma": func(n int) string { return humanize.Comma(int64(n)) },
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base with its own "content" block.
	pageNames := []string{"index.html", "session.html", "analysis.html", "status.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, opts: opts, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/session/", s.handleSession)
	s.mux.HandleFunc("/status", s.handleStatus)
	if s.opts.Metrics != nil {
		s.mux.Handle("/metrics", s.opts.Metrics)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	filter := database.SessionFilter{
		Committee: q.Get("committee"),
		Search:    strings.TrimSpace(q.Get("q")),
		Limit:     500,
	}
	if y, err := strconv.Atoi(q.Get("year")); err == nil {
		filter.Year = y
	}

	sessions, err := s.db.ListSessions(filter)
	if err != nil {
		log.Printf("Error listing sessions: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	committees, _ := s.db.ListCommittees()
	years, _ := s.db.ListYears()

	s.render(w, "index.html", map[string]any{
		"Sessions":   sessions,
		"Committees": committees,
		"Years":      years,
		"Filter":     filter,
	})
}

// handleSession serves /session/{id} and /session/{id}/analysis.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/session/"), "/")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	sessionID := parts[0]

	session, err := s.db.GetSession(sessionID)
	if err != nil {
		log.Printf("Error loading session %s: %v", sessionID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1:
		s.showSession(w, session)
	case parts[1] == "analysis" && r.Method == http.MethodPost:
		s.startAnalysis(w, r, session)
	case parts[1] == "analysis":
		s.showAnalysis(w, session)
	default:
		http.NotFound(w, r)
	}
}

type agendaRow struct {
	database.AgendaItem
	Documents []database.Document
}

func (s *Server) showSession(w http.ResponseWriter, session *database.Session) {
	items, _ := s.db.LoadAgendaItems(session.SessionID)
	docs, _ := s.db.LoadDocuments(session.SessionID, database.ScopeSession, nil)

	byItem := make(map[string][]database.Document)
	var sessionDocs []database.Document
	for _, d := range docs {
		if d.AgendaItem == nil {
			sessionDocs = append(sessionDocs, d)
			continue
		}
		byItem[*d.AgendaItem] = append(byItem[*d.AgendaItem], d)
	}
	rows := make([]agendaRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, agendaRow{AgendaItem: item, Documents: byItem[item.Number]})
	}
	latest, _ := s.db.LatestAnalysisOutput(session.SessionID, analysis.OutputMarkdown)

	s.render(w, "session.html", map[string]any{
		"Session":          session,
		"Agenda":           rows,
		"SessionDocuments": sessionDocs,
		"HasAnalysis":      latest != nil,
		"CanAnalyze":       s.opts.Analyzer != nil,
	})
}

func (s *Server) showAnalysis(w http.ResponseWriter, session *database.Session) {
	out, err := s.db.LatestAnalysisOutput(session.SessionID, analysis.OutputMarkdown)
	if err != nil {
		log.Printf("Error loading analysis for %s: %v", session.SessionID, err)
	}
	s.render(w, "analysis.html", map[string]any{
		"Session":  session,
		"Analysis": out,
	})
}

func (s *Server) startAnalysis(w http.ResponseWriter, r *http.Request, session *database.Session) {
	if s.opts.Analyzer == nil {
		http.Error(w, "Analysis is not enabled", http.StatusNotImplemented)
		return
	}
	req := analysis.Request{
		SessionID: session.SessionID,
		Scope:     database.DocumentScope(r.FormValue("scope")),
		Prompt:    strings.TrimSpace(r.FormValue("prompt")),
	}
	if r.Form != nil {
		req.Tops = r.Form["top"]
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()
	if _, err := s.opts.Analyzer.Run(ctx, req); err != nil {
		log.Printf("Analysis of session %s failed: %v", session.SessionID, err)
		http.Error(w, "Analysis failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/session/"+session.SessionID+"/analysis", http.StatusSeeOther)
}

type typeCount struct {
	Type  string
	Count int
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		log.Printf("Error loading stats: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	runs, _ := s.db.ListCrawlRuns(10)

	var types []typeCount
	for t, n := range stats.DocumentsByType {
		if t == "" {
			t = "(ohne Typ)"
		}
		types = append(types, typeCount{Type: t, Count: n})
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Type < types[j].Type })

	s.render(w, "status.html", map[string]any{
		"Stats": stats,
		"Types": types,
		"Runs":  runs,
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// ago renders an RFC 3339 timestamp relative to now.
func ago(ts *string) string {
	if ts == nil || *ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, *ts)
	if err != nil {
		return *ts
	}
	return humanize.Time(t)
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, port int, opts Options) error {
	srv, err := New(db, opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
