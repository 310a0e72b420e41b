package index

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/TobiSchelling/ratsinfo/internal/database"
	"github.com/TobiSchelling/ratsinfo/internal/storage"
)

var sessionFolderRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[-_](.+)[-_](\d+)$`)

// sessionMarkers are the files that make a folder a session folder.
var sessionMarkers = []string{storage.SessionPageFile, storage.AgendaSummaryFile, storage.ManifestFile}

// SessionFolder is a session folder found below the data root.
type SessionFolder struct {
	SessionID string
	Date      string
	Committee string
	Path      string
}

// FindSessionFolders walks dataRoot for session folders, sorted by path.
// A missing root yields no folders.
func FindSessionFolders(dataRoot string) ([]SessionFolder, error) {
	if _, err := os.Stat(dataRoot); os.IsNotExist(err) {
		return nil, nil
	}
	var folders []SessionFolder
	err := filepath.WalkDir(dataRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || !hasMarker(path) {
			return nil
		}
		m := sessionFolderRe.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		folders = append(folders, SessionFolder{Date: m[1], Committee: m[2], SessionID: m[3], Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dataRoot, err)
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Path < folders[j].Path })
	return folders, nil
}

func hasMarker(dir string) bool {
	for _, name := range sessionMarkers {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// BuildLocal indexes the session folders below dataRoot from their
// manifest.json and agenda_summary.json.
func BuildLocal(db *database.DB, dataRoot string, opts Options) (*Result, error) {
	folders, err := FindSessionFolders(dataRoot)
	if err != nil {
		return nil, err
	}
	existing, err := db.ExistingSessionIDs()
	if err != nil {
		return nil, fmt.Errorf("reading indexed sessions: %w", err)
	}

	r := &Result{SessionsFound: len(folders)}
	for _, folder := range folders {
		if !opts.shouldIndex(existing[folder.SessionID]) {
			r.Skipped++
			continue
		}
		items, docs, err := storeFolder(db, folder)
		if err != nil {
			log.Printf("Warning: indexing %s: %v", folder.Path, err)
			r.Failed++
			continue
		}
		r.Indexed++
		r.AgendaItems += items
		r.Documents += docs
		opts.observe("local")
	}
	if err := r.finish(db, "Local"); err != nil {
		return nil, err
	}
	return r, nil
}

func storeFolder(db *database.DB, folder SessionFolder) (items, docs int, err error) {
	manifest, err := storage.ReadManifest(folder.Path)
	if err != nil {
		log.Printf("Warning: %v", err)
		manifest = nil
	}
	summary, err := storage.ReadAgendaSummary(folder.Path)
	if err != nil {
		log.Printf("Warning: %v", err)
		summary = nil
	}

	session := database.Session{
		SessionID:   folder.SessionID,
		Date:        folder.Date,
		Committee:   folder.Committee,
		SessionPath: strPtr(folder.Path),
	}
	if y, err := strconv.Atoi(folder.Date[:4]); err == nil {
		session.Year = intPtr(y)
	}
	if m, err := strconv.Atoi(folder.Date[5:7]); err == nil {
		session.Month = intPtr(m)
	}
	if manifest != nil {
		info := manifest.Session
		if info.Committee != "" {
			session.Committee = info.Committee
		}
		session.MeetingName = strPtr(info.MeetingName)
		session.StartTime = strPtr(info.StartTime)
		session.Location = strPtr(info.Location)
		session.DetailURL = strPtr(info.DetailURL)
	}

	var agenda []database.AgendaItem
	if summary != nil {
		for _, item := range summary.AgendaItems {
			agenda = append(agenda, database.AgendaItem{
				Number:           item.Number,
				Title:            strPtr(item.Title),
				Reporter:         strPtr(item.Reporter),
				Status:           strPtr(item.Status),
				Decision:         item.Decision,
				DocumentsPresent: item.DocumentsPresent,
			})
		}
	}

	var documents []database.Document
	if manifest != nil {
		for i := range manifest.Documents {
			entry := &manifest.Documents[i]
			d := database.Document{
				Title:      strPtr(entry.Title),
				Category:   strPtr(entry.Category),
				AgendaItem: strPtr(entry.AgendaItem),
				URL:        strPtr(entry.URL),
			}
			linkManifestEntry(&d, entry)
			documents = append(documents, d)
		}
	}

	if err := db.ReplaceSession(session, agenda, documents); err != nil {
		return 0, 0, err
	}
	return len(agenda), len(documents), nil
}
