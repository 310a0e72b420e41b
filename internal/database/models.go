package database

// Session is one council meeting.
type Session struct {
	SessionID   string
	Date        string // YYYY-MM-DD
	Year        *int
	Month       *int
	Committee   string
	MeetingName *string
	StartTime   *string
	Location    *string
	DetailURL   *string
	SessionPath *string
}

// SessionSummary is a session row in listings.
type SessionSummary struct {
	SessionID     string
	Date          string
	Committee     string
	MeetingName   *string
	AgendaCount   int
	DocumentCount int
}

// AgendaItem is one TOP of a session.
type AgendaItem struct {
	ID               int64
	SessionID        string
	Number           string
	Title            *string
	Reporter         *string
	Status           *string
	Decision         *string // "accepted", "rejected" or nil
	DocumentsPresent bool
}

// Document is a file attached to a session or agenda item.
type Document struct {
	ID            int64
	SessionID     string
	Title         *string
	Category      *string
	DocumentType  *string
	AgendaItem    *string
	URL           *string
	LocalPath     *string
	SHA1          *string
	RetrievedAt   *string
	ContentType   *string
	ContentLength *int64
}

// ExportDocument is a document joined with its session and agenda item.
type ExportDocument struct {
	Document
	Date        string
	Committee   string
	MeetingName *string
	SessionPath *string
	TopTitle    *string
}

// AnalysisJob records one analysis request.
type AnalysisJob struct {
	ID            int64
	JobUUID       string
	CreatedAt     string
	SessionID     string
	Scope         string
	TopNumbers    []string
	ModelName     *string
	PromptVersion *string
	Status        string
	ErrorMessage  *string
}

// AnalysisOutput is a rendered analysis.
type AnalysisOutput struct {
	ID           int64
	JobID        int64
	OutputFormat string
	Content      string
	CreatedAt    string
}

// CrawlRun records one pipeline run.
type CrawlRun struct {
	RunID        string
	StartedAt    string
	FinishedAt   *string
	Status       string
	Months       *string
	Sessions     int
	Documents    int
	Failed       int
	ErrorMessage *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Sessions         int
	Committees       int
	AgendaItems      int
	Documents        int
	LocalDocuments   int
	DocumentsByType  map[string]int
	FirstSessionDate *string
	LastSessionDate  *string
	AnalysisJobs     int
	CrawlRuns        int
	LastCrawlStarted *string
}
