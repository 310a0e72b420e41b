// Package storage knows where crawled pages and documents live on disk.
//
// The layout is <root>/YYYY/MM/<session>/, where <session> is the slug of
// "<date>_<committee>_<session id>". Session folders hold the detail page,
// manifest.json, agenda_summary.json and the downloaded documents under
// session-documents/ and agenda/<item>/. Older crawls wrote sessions
// directly below the year folder; MigrateLegacyLayout moves them.
package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	ManifestFile        = "manifest.json"
	AgendaSummaryFile   = "agenda_summary.json"
	SessionPageFile     = "session_detail.html"
	SessionDocumentsDir = "session-documents"
	AgendaDir           = "agenda"
)

var (
	legacySessionDirRe = regexp.MustCompile(`^\d{4}-(\d{2})-\d{2}[-_].+$`)
	overviewFileRe     = regexp.MustCompile(`^\d{4}-(\d{2})_overview\.html$`)
)

// Layout resolves paths below a raw-data root.
type Layout struct {
	Root string
}

// MonthDir returns <root>/YYYY/MM.
func (l Layout) MonthDir(year, month int) string {
	return filepath.Join(l.Root, fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", month))
}

// OverviewPath returns the file the month listing page is saved to.
func (l Layout) OverviewPath(year, month int) string {
	return filepath.Join(l.MonthDir(year, month), fmt.Sprintf("%04d-%02d_overview.html", year, month))
}

// SessionDir returns the folder for one session.
func (l Layout) SessionDir(date time.Time, committee, sessionID string) string {
	name := Slugify(date.Format("2006-01-02") + "_" + committee + "_" + sessionID)
	return filepath.Join(l.MonthDir(date.Year(), int(date.Month())), name)
}

// Slugify keeps letters and digits, including umlauts, and turns every
// other run of characters into a single dash.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "document"
	}
	return slug
}

// MigrateLegacyLayout moves session folders and overview pages stored
// directly below a year folder into the matching month folder. Existing
// targets are left alone, so running it twice is harmless.
func (l Layout) MigrateLegacyLayout() (int, error) {
	years, err := os.ReadDir(l.Root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", l.Root, err)
	}

	moved := 0
	for _, year := range years {
		if !year.IsDir() || !isDigits(year.Name(), 4) {
			continue
		}
		yearDir := filepath.Join(l.Root, year.Name())
		entries, err := os.ReadDir(yearDir)
		if err != nil {
			return moved, fmt.Errorf("reading %s: %w", yearDir, err)
		}
		for _, e := range entries {
			month := legacyMonth(e.Name(), e.IsDir())
			if month == "" {
				continue
			}
			src := filepath.Join(yearDir, e.Name())
			dst := filepath.Join(yearDir, month, e.Name())
			if _, err := os.Stat(dst); err == nil {
				log.Printf("Skipping legacy path %s: %s already exists", src, dst)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return moved, fmt.Errorf("creating month folder: %w", err)
			}
			if err := os.Rename(src, dst); err != nil {
				return moved, fmt.Errorf("moving %s: %w", src, err)
			}
			moved++
		}
	}
	if moved > 0 {
		log.Printf("Moved %d legacy entries into month folders", moved)
	}
	return moved, nil
}

func legacyMonth(name string, isDir bool) string {
	re := overviewFileRe
	if isDir {
		re = legacySessionDirRe
	}
	if m := re.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}

// UpgradeLegacySessionPath inserts the month folder into a session path
// written by the legacy layout. Paths already in the month layout are
// returned unchanged; ok is false when no month can be derived.
func UpgradeLegacySessionPath(path string) (upgraded string, ok bool) {
	path = filepath.Clean(path)
	parent := filepath.Dir(path)
	if parent == "." || parent == path {
		return "", false
	}
	if isDigits(filepath.Base(parent), 2) {
		return path, true
	}
	if !isDigits(filepath.Base(parent), 4) {
		return "", false
	}
	m := legacySessionDirRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		m = overviewFileRe.FindStringSubmatch(filepath.Base(path))
	}
	if m == nil {
		return "", false
	}
	return filepath.Join(parent, m[1], filepath.Base(path)), true
}

// ResolveLocalFilePath joins a document path recorded in the index with
// its session folder. When the file is not found there, the legacy
// session folder is upgraded to the month layout and tried again. It
// returns "" when localPath is empty.
func ResolveLocalFilePath(sessionPath, localPath string) string {
	localPath = filepath.FromSlash(strings.ReplaceAll(strings.TrimSpace(localPath), `\`, "/"))
	if localPath == "" {
		return ""
	}
	if filepath.IsAbs(localPath) {
		return localPath
	}
	sessionPath = filepath.FromSlash(strings.ReplaceAll(strings.TrimSpace(sessionPath), `\`, "/"))
	if sessionPath == "" {
		return localPath
	}

	resolved := filepath.Join(sessionPath, localPath)
	if fileExists(resolved) {
		return resolved
	}
	if upgraded, ok := UpgradeLegacySessionPath(sessionPath); ok {
		candidate := filepath.Join(upgraded, localPath)
		if fileExists(candidate) {
			return candidate
		}
	}
	return resolved
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
