package database

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func seedSession(t *testing.T, db *DB, id, date, committee string, items []AgendaItem, docs []Document) {
	t.Helper()
	s := Session{
		SessionID:   id,
		Date:        date,
		Year:        intPtr(2025),
		Month:       intPtr(6),
		Committee:   committee,
		MeetingName: ptr(committee + "ssitzung"),
	}
	if err := db.ReplaceSession(s, items, docs); err != nil {
		t.Fatalf("ReplaceSession: %v", err)
	}
}

func TestReplaceSessionRoundTrip(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db, "123", "2025-06-05", "Rat",
		[]AgendaItem{{Number: "Ö 1", Title: ptr("Test TOP"), Reporter: ptr("Tester"), Status: ptr("beschlossen"), Decision: ptr("accepted"), DocumentsPresent: true}},
		[]Document{{Title: ptr("Dokument"), Category: ptr("PR"), DocumentType: ptr("protokoll"), AgendaItem: ptr("Ö 1"), URL: ptr("https://example.org/doc.pdf")}},
	)

	s, err := db.GetSession("123")
	if err != nil || s == nil {
		t.Fatalf("GetSession: %v, %v", s, err)
	}
	if s.Date != "2025-06-05" || s.Committee != "Rat" || s.Year == nil || *s.Year != 2025 {
		t.Errorf("session = %+v", s)
	}
	if s.StartTime != nil {
		t.Errorf("start time = %v, want nil", *s.StartTime)
	}

	items, err := db.LoadAgendaItems("123")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Number != "Ö 1" || !items[0].DocumentsPresent || *items[0].Decision != "accepted" {
		t.Errorf("items = %+v", items)
	}

	docs, err := db.LoadDocuments("123", ScopeSession, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || *docs[0].DocumentType != "protokoll" || docs[0].ContentLength != nil {
		t.Errorf("docs = %+v", docs)
	}
}

func TestReplaceSessionReplacesChildren(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db, "1", "2025-06-05", "Rat",
		[]AgendaItem{{Number: "Ö 1"}, {Number: "Ö 2"}},
		[]Document{{Title: ptr("A")}, {Title: ptr("B")}},
	)
	seedSession(t, db, "1", "2025-06-05", "Rat",
		[]AgendaItem{{Number: "Ö 1"}},
		[]Document{{Title: ptr("A")}},
	)
	items, _ := db.LoadAgendaItems("1")
	docs, _ := db.LoadDocuments("1", ScopeSession, nil)
	if len(items) != 1 || len(docs) != 1 {
		t.Errorf("after replace: %d items, %d docs", len(items), len(docs))
	}
	ids, err := db.ExistingSessionIDs()
	if err != nil || len(ids) != 1 || !ids["1"] {
		t.Errorf("ExistingSessionIDs = %v, %v", ids, err)
	}
}

func TestGetSessionMissing(t *testing.T) {
	db := openTestDB(t)
	s, err := db.GetSession("nope")
	if err != nil || s != nil {
		t.Errorf("GetSession = %v, %v", s, err)
	}
}

func TestListSessionsFilters(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db, "1", "2025-06-05", "Rat", []AgendaItem{{Number: "1"}, {Number: "2"}}, nil)
	seedSession(t, db, "2", "2025-07-01", "Bauausschuss", nil, []Document{{Title: ptr("X")}})
	seedSession(t, db, "3", "2025-08-20", "Rat", nil, nil)

	all, err := db.ListSessions(SessionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].SessionID != "3" {
		t.Errorf("all = %+v", all)
	}
	if all[2].AgendaCount != 2 || all[1].DocumentCount != 1 {
		t.Errorf("counts = %+v", all)
	}

	rat, _ := db.ListSessions(SessionFilter{Committee: "Rat"})
	if len(rat) != 2 {
		t.Errorf("committee filter: %d", len(rat))
	}
	ranged, _ := db.ListSessions(SessionFilter{DateFrom: "2025-06-10", DateTo: "2025-07-31"})
	if len(ranged) != 1 || ranged[0].SessionID != "2" {
		t.Errorf("date filter: %+v", ranged)
	}
	past, _ := db.ListSessions(SessionFilter{Today: "2025-07-01"})
	if len(past) != 2 {
		t.Errorf("past filter: %d", len(past))
	}
	search, _ := db.ListSessions(SessionFilter{Search: "bau"})
	if len(search) != 1 {
		t.Errorf("search filter: %d", len(search))
	}
	limited, _ := db.ListSessions(SessionFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit: %d", len(limited))
	}

	committees, err := db.ListCommittees()
	if err != nil || len(committees) != 2 || committees[0] != "Bauausschuss" {
		t.Errorf("ListCommittees = %v, %v", committees, err)
	}
	years, err := db.ListYears()
	if err != nil || len(years) != 1 || years[0] != 2025 {
		t.Errorf("ListYears = %v, %v", years, err)
	}
}

func TestLoadDocumentsScope(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db, "1", "2025-06-05", "Rat", nil, []Document{
		{Title: ptr("Session doc")},
		{Title: ptr("B"), AgendaItem: ptr("Ö 2")},
		{Title: ptr("A"), AgendaItem: ptr("Ö 1")},
	})

	all, _ := db.LoadDocuments("1", ScopeSession, []string{"Ö 1"})
	if len(all) != 3 || *all[0].Title != "Session doc" || *all[1].Title != "A" {
		t.Errorf("session scope = %d docs", len(all))
	}
	tops, err := db.LoadDocuments("1", ScopeTops, []string{"Ö 1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tops) != 1 || *tops[0].Title != "A" {
		t.Errorf("tops scope = %+v", tops)
	}
	noTops, _ := db.LoadDocuments("1", ScopeTops, nil)
	if len(noTops) != 3 {
		t.Errorf("tops scope without selection = %d", len(noTops))
	}
}

func TestNormalizeDocumentTypes(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db, "1", "2025-06-05", "Rat", nil, []Document{
		{Title: ptr("Alt"), DocumentType: ptr("Niederschrift")},
		{Title: ptr("Einladung zur Sitzung")},
		{Title: ptr("Sonstwas"), DocumentType: ptr("  ")},
		{Title: ptr("Fest"), DocumentType: ptr("vorlage")},
	})

	n, err := db.NormalizeDocumentTypes()
	if err != nil {
		t.Fatalf("NormalizeDocumentTypes: %v", err)
	}
	if n != 3 {
		t.Errorf("changed %d rows, want 3", n)
	}
	docs, _ := db.LoadDocuments("1", ScopeSession, nil)
	got := map[string]string{}
	for _, d := range docs {
		got[*d.Title] = *d.DocumentType
	}
	want := map[string]string{"Alt": "protokoll", "Einladung zur Sitzung": "bekanntmachung", "Sonstwas": "sonstiges", "Fest": "vorlage"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: type %q, want %q", k, got[k], v)
		}
	}

	again, _ := db.NormalizeDocumentTypes()
	if again != 0 {
		t.Errorf("second run changed %d rows", again)
	}
}

func TestExportDocumentsOrderingAndFilters(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db, "20", "2025-07-01", "Bauausschuss",
		[]AgendaItem{{Number: "Ö 1", Title: ptr("Radweg")}},
		[]Document{{Title: ptr("Plan"), AgendaItem: ptr("Ö 1"), DocumentType: ptr("vorlage"), URL: ptr("u3"), LocalPath: ptr("agenda/x.pdf")}},
	)
	seedSession(t, db, "10", "2025-06-05", "Rat",
		[]AgendaItem{{Number: "Ö 1", Title: ptr("Erster")}, {Number: "Ö 1", Title: ptr("Doppelt")}},
		[]Document{
			{Title: ptr("Zeta"), AgendaItem: ptr("Ö 1"), DocumentType: ptr("protokoll"), URL: ptr("u2")},
			{Title: ptr("Alpha"), AgendaItem: ptr("Ö 1"), DocumentType: ptr("protokoll"), URL: ptr("u1"), LocalPath: ptr(" ")},
			{Title: ptr("Einladung"), DocumentType: ptr("bekanntmachung"), URL: ptr("u0")},
		},
	)

	rows, err := db.ExportDocuments(ExportQuery{})
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, r := range rows {
		order = append(order, *r.Title)
	}
	want := []string{"Einladung", "Alpha", "Zeta", "Plan"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if rows[0].TopTitle != nil {
		t.Errorf("session document top title = %v", *rows[0].TopTitle)
	}
	if rows[1].TopTitle == nil || *rows[1].TopTitle != "Erster" {
		t.Errorf("top title = %v", rows[1].TopTitle)
	}
	if rows[1].Date != "2025-06-05" || rows[1].Committee != "Rat" {
		t.Errorf("session columns = %+v", rows[1])
	}

	typed, _ := db.ExportDocuments(ExportQuery{DocumentTypes: []string{"vorlage", "bekanntmachung"}})
	if len(typed) != 2 {
		t.Errorf("type filter: %d", len(typed))
	}
	local, _ := db.ExportDocuments(ExportQuery{RequireLocalPath: true})
	if len(local) != 1 || *local[0].Title != "Plan" {
		t.Errorf("local path filter: %+v", local)
	}
	bySession, _ := db.ExportDocuments(ExportQuery{SessionIDs: []string{"20", "20"}, Committees: []string{"Bauausschuss"}})
	if len(bySession) != 1 {
		t.Errorf("session filter: %d", len(bySession))
	}
	dated, _ := db.ExportDocuments(ExportQuery{DateFrom: "2025-06-06", DateTo: "2025-12-31"})
	if len(dated) != 1 {
		t.Errorf("date filter: %d", len(dated))
	}
}

func TestAnalysisJobLifecycle(t *testing.T) {
	db := openTestDB(t)
	id, err := db.CreateAnalysisJob(AnalysisJob{JobUUID: "abc", SessionID: "1", Scope: "tops", TopNumbers: []string{"Ö 1"}})
	if err != nil {
		t.Fatalf("CreateAnalysisJob: %v", err)
	}
	job, err := db.GetAnalysisJob(id)
	if err != nil || job == nil {
		t.Fatalf("GetAnalysisJob: %v, %v", job, err)
	}
	if job.Status != JobRunning || len(job.TopNumbers) != 1 || job.TopNumbers[0] != "Ö 1" {
		t.Errorf("job = %+v", job)
	}

	if out, _ := db.LatestAnalysisOutput("1", "markdown"); out != nil {
		t.Error("output of a running job should not be returned")
	}
	if _, err := db.InsertAnalysisOutput(id, "markdown", "# Analyse"); err != nil {
		t.Fatal(err)
	}
	if err := db.FinishAnalysisJob(id, JobCompleted, "mock-journalism-v1", "local-template-1", ""); err != nil {
		t.Fatal(err)
	}
	out, err := db.LatestAnalysisOutput("1", "markdown")
	if err != nil || out == nil || out.Content != "# Analyse" {
		t.Errorf("LatestAnalysisOutput = %+v, %v", out, err)
	}
	job, _ = db.GetAnalysisJob(id)
	if job.Status != JobCompleted || job.ModelName == nil || *job.ModelName != "mock-journalism-v1" || job.ErrorMessage != nil {
		t.Errorf("finished job = %+v", job)
	}
}

func TestCrawlRunsAndStats(t *testing.T) {
	db := openTestDB(t)
	if err := db.StartCrawlRun("run-1", "2025-06"); err != nil {
		t.Fatal(err)
	}
	if err := db.FinishCrawlRun(CrawlRun{RunID: "run-1", Status: RunCompleted, Sessions: 2, Documents: 5}); err != nil {
		t.Fatal(err)
	}
	runs, err := db.ListCrawlRuns(5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListCrawlRuns = %v, %v", runs, err)
	}
	if runs[0].Status != RunCompleted || runs[0].Documents != 5 || runs[0].FinishedAt == nil {
		t.Errorf("run = %+v", runs[0])
	}

	seedSession(t, db, "1", "2025-06-05", "Rat", []AgendaItem{{Number: "1"}}, []Document{
		{Title: ptr("P"), DocumentType: ptr("protokoll"), LocalPath: ptr("a.pdf")},
		{Title: ptr("V"), DocumentType: ptr("vorlage")},
	})
	stats, err := db.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Sessions != 1 || stats.AgendaItems != 1 || stats.Documents != 2 || stats.LocalDocuments != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.DocumentsByType["protokoll"] != 1 || stats.CrawlRuns != 1 || *stats.LastSessionDate != "2025-06-05" {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSeedFrom(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "old.sqlite")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(dir, "new", "index.sqlite")

	copied, err := SeedFrom(dest, src)
	if err != nil || !copied {
		t.Fatalf("SeedFrom = %v, %v", copied, err)
	}
	copied, err = SeedFrom(dest, src)
	if err != nil || copied {
		t.Errorf("second SeedFrom = %v, %v", copied, err)
	}
	copied, err = SeedFrom(filepath.Join(dir, "other.sqlite"), filepath.Join(dir, "missing.sqlite"))
	if err != nil || copied {
		t.Errorf("missing source = %v, %v", copied, err)
	}
}
