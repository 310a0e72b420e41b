// Package index fills the SQLite index, either from session folders on
// disk or straight from the portal.
package index

import (
	"log"
	"time"

	"github.com/TobiSchelling/ratsinfo/internal/database"
	"github.com/TobiSchelling/ratsinfo/internal/doctype"
	"github.com/TobiSchelling/ratsinfo/internal/sessionnet"
	"github.com/TobiSchelling/ratsinfo/internal/storage"
)

// Result holds the counters of an index build.
type Result struct {
	SessionsFound int
	Indexed       int
	Skipped       int
	Failed        int
	AgendaItems   int
	Documents     int
	// Normalized counts document rows whose type was renamed or filled in.
	Normalized int
}

// Observer is told about every indexed session. source is "local" or
// "online".
type Observer interface {
	ObserveSessionIndexed(source string)
}

// Options control which sessions a build touches.
type Options struct {
	// RefreshExisting rebuilds sessions that are already indexed.
	RefreshExisting bool
	// OnlyRefresh skips sessions that are not indexed yet. It implies
	// RefreshExisting.
	OnlyRefresh bool
	Observer    Observer
}

// shouldIndex applies the refresh rules to one session.
func (o Options) shouldIndex(exists bool) bool {
	refresh := o.RefreshExisting || o.OnlyRefresh
	if exists {
		return refresh
	}
	return !o.OnlyRefresh
}

func (o Options) observe(source string) {
	if o.Observer != nil {
		o.Observer.ObserveSessionIndexed(source)
	}
}

func (r *Result) finish(db *database.DB, label string) error {
	n, err := db.NormalizeDocumentTypes()
	if err != nil {
		return err
	}
	r.Normalized = n
	log.Printf("%s index: %d sessions found, %d indexed, %d skipped, %d failed (agenda items=%d documents=%d)",
		label, r.SessionsFound, r.Indexed, r.Skipped, r.Failed, r.AgendaItems, r.Documents)
	return nil
}

// StoreDetail writes a crawled session to the index. When sessionDir
// holds a manifest from a download pass, documents are linked to their
// local files.
func StoreDetail(db *database.DB, detail *sessionnet.SessionDetail, sessionDir string) (items, docs int, err error) {
	ref := detail.Reference
	var manifest *storage.Manifest
	if sessionDir != "" {
		manifest, err = storage.ReadManifest(sessionDir)
		if err != nil {
			log.Printf("Warning: %v", err)
			manifest = nil
		}
	}

	session := database.Session{
		SessionID:   ref.SessionID,
		Date:        ref.Date.Format("2006-01-02"),
		Year:        intPtr(ref.Date.Year()),
		Month:       intPtr(int(ref.Date.Month())),
		Committee:   ref.Committee,
		MeetingName: strPtr(ref.MeetingName),
		StartTime:   strPtr(ref.StartTime),
		Location:    strPtr(ref.Location),
		DetailURL:   strPtr(ref.DetailURL),
	}
	if manifest != nil {
		session.SessionPath = strPtr(sessionDir)
	}

	var agenda []database.AgendaItem
	for _, item := range detail.AgendaItems {
		agenda = append(agenda, database.AgendaItem{
			Number:           item.Number,
			Title:            strPtr(item.Title),
			Reporter:         strPtr(item.Reporter),
			Status:           strPtr(item.Status),
			Decision:         item.Decision().Ptr(),
			DocumentsPresent: len(item.Documents) > 0,
		})
	}

	retrievedAt := detail.RetrievedAt.UTC().Format(time.RFC3339)
	var documents []database.Document
	add := func(doc sessionnet.DocumentReference, agendaItem string) {
		d := database.Document{
			Title:        strPtr(doc.Title),
			Category:     strPtr(doc.Category),
			DocumentType: strPtr(doctype.InferDocumentType(doc.Category, doc.Title, "", doc.URL, "")),
			AgendaItem:   strPtr(agendaItem),
			URL:          strPtr(doc.URL),
			RetrievedAt:  &retrievedAt,
		}
		if entry := manifest.Find(doc.URL, agendaItem); entry != nil {
			linkManifestEntry(&d, entry)
		}
		documents = append(documents, d)
	}
	for _, doc := range detail.SessionDocuments {
		add(doc, "")
	}
	for _, item := range detail.AgendaItems {
		for _, doc := range item.Documents {
			add(doc, item.Number)
		}
	}

	if err := db.ReplaceSession(session, agenda, documents); err != nil {
		return 0, 0, err
	}
	return len(agenda), len(documents), nil
}

// linkManifestEntry copies the download metadata of entry into d.
func linkManifestEntry(d *database.Document, entry *storage.ManifestDocument) {
	d.LocalPath = strPtr(entry.Path)
	d.SHA1 = strPtr(entry.SHA1)
	d.ContentType = strPtr(entry.ContentType)
	if entry.RetrievedAt != "" {
		d.RetrievedAt = strPtr(entry.RetrievedAt)
	}
	n := entry.ContentLength
	d.ContentLength = &n
	d.DocumentType = strPtr(doctype.InferDocumentType(entry.Category, entry.Title, entry.ContentType, entry.URL, entry.Path))
}

// strPtr returns nil for empty strings.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(n int) *int { return &n }
