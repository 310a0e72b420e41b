package sessionnet

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/ratsinfo/internal/storage"
)

// DownloadOptions controls a download pass.
type DownloadOptions struct {
	// Refresh downloads every document again instead of checking
	// unchanged files with a HEAD request.
	Refresh bool
}

// DownloadResult summarizes a download pass over one session.
type DownloadResult struct {
	Detail     *SessionDetail
	SessionDir string
	Downloaded int
	Cached     int
	Unchanged  int
	Failed     int
}

// Total is the number of documents recorded in the manifest.
func (r *DownloadResult) Total() int {
	return r.Downloaded + r.Cached + r.Unchanged
}

type cachedBody struct {
	header http.Header
	body   []byte
}

// downloadPass holds the state of one DownloadDocuments call.
type downloadPass struct {
	c          *Client
	opts       DownloadOptions
	sessionDir string
	previous   *storage.Manifest
	cache      map[string]cachedBody
	usedPaths  map[string]string
	entries    []storage.ManifestDocument
	result     *DownloadResult
}

// DownloadDocuments stores the session documents under
// session-documents/ and the agenda documents under agenda/<item>/, then
// writes manifest.json and agenda_summary.json. A document that fails to
// download is logged and left out of the manifest.
func (c *Client) DownloadDocuments(ctx context.Context, detail *SessionDetail, opts DownloadOptions) (*DownloadResult, error) {
	sessionDir := c.SessionDir(detail.Reference)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session folder: %w", err)
	}
	previous, err := storage.ReadManifest(sessionDir)
	if err != nil {
		log.Printf("Warning: ignoring previous manifest: %v", err)
		previous = nil
	}

	p := &downloadPass{
		c:          c,
		opts:       opts,
		sessionDir: sessionDir,
		previous:   previous,
		cache:      make(map[string]cachedBody),
		usedPaths:  make(map[string]string),
		result:     &DownloadResult{Detail: detail, SessionDir: sessionDir},
	}

	for _, doc := range detail.SessionDocuments {
		if err := p.document(ctx, doc, storage.SessionDocumentsDir, ""); err != nil {
			return nil, err
		}
	}
	for _, item := range detail.AgendaItems {
		title, _ := SplitReporter(item.Title)
		subdir := filepath.Join(storage.AgendaDir, storage.Slugify(item.Number+" "+title))
		for _, doc := range item.Documents {
			if err := p.document(ctx, doc, subdir, item.Number); err != nil {
				return nil, err
			}
		}
	}

	ref := detail.Reference
	manifest := &storage.Manifest{
		Session: storage.ManifestSession{
			SessionID:   ref.SessionID,
			Committee:   ref.Committee,
			MeetingName: ref.MeetingName,
			Date:        ref.Date.Format("2006-01-02"),
			StartTime:   ref.StartTime,
			Location:    ref.Location,
			DetailURL:   ref.DetailURL,
		},
		RetrievedAt: c.timestamp(),
		Documents:   p.entries,
	}
	if manifest.Documents == nil {
		manifest.Documents = []storage.ManifestDocument{}
	}
	if err := storage.WriteManifest(sessionDir, manifest); err != nil {
		return nil, err
	}
	if err := storage.WriteAgendaSummary(sessionDir, agendaSummary(detail)); err != nil {
		return nil, err
	}
	r := p.result
	log.Printf("Session %s: %d downloaded, %d cached, %d unchanged, %d failed",
		ref.SessionID, r.Downloaded, r.Cached, r.Unchanged, r.Failed)
	return r, nil
}

func (p *downloadPass) document(ctx context.Context, doc DocumentReference, subdir, agendaItem string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := p.c.resolve(doc.URL)

	if !p.opts.Refresh {
		if prev := p.unchanged(ctx, target, agendaItem); prev != nil {
			p.entries = append(p.entries, *prev)
			p.usedPaths[filepath.ToSlash(prev.Path)] = target
			p.result.Unchanged++
			p.observe("unchanged")
			return nil
		}
	}

	body, cached := p.cache[target]
	if cached {
		p.result.Cached++
		p.observe("cached")
	} else {
		log.Printf("Downloading document %s", target)
		resp, err := p.c.fetcher.Get(ctx, target, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Warning: failed to download %s: %v", target, err)
			p.result.Failed++
			p.observe("failed")
			return nil
		}
		body = cachedBody{header: resp.Header, body: resp.Body}
		p.cache[target] = body
		p.result.Downloaded++
		p.observe("downloaded")
	}

	rel := p.pathFor(subdir, doc, body.header, target)
	if err := writeFile(filepath.Join(p.sessionDir, filepath.FromSlash(rel)), body.body); err != nil {
		return err
	}
	sum := sha1.Sum(body.body)
	p.entries = append(p.entries, storage.ManifestDocument{
		Title:              doc.Title,
		Category:           doc.Category,
		AgendaItem:         agendaItem,
		URL:                target,
		Path:               rel,
		SHA1:               hex.EncodeToString(sum[:]),
		ContentType:        body.header.Get("Content-Type"),
		ContentLength:      int64(len(body.body)),
		ContentDisposition: body.header.Get("Content-Disposition"),
		ETag:               body.header.Get("ETag"),
		LastModified:       body.header.Get("Last-Modified"),
		RetrievedAt:        p.c.timestamp(),
	})
	return nil
}

// unchanged returns the previous manifest entry for target when the file
// is still on disk and a HEAD request reports the same validators.
func (p *downloadPass) unchanged(ctx context.Context, target, agendaItem string) *storage.ManifestDocument {
	prev := p.previous.Find(target, agendaItem)
	if prev == nil || prev.Path == "" {
		return nil
	}
	if _, err := os.Stat(filepath.Join(p.sessionDir, filepath.FromSlash(prev.Path))); err != nil {
		return nil
	}
	resp, err := p.c.fetcher.Head(ctx, target)
	if err != nil {
		log.Printf("HEAD %s failed, downloading again: %v", target, err)
		return nil
	}
	if !sameRemote(prev, resp.Header) {
		return nil
	}
	entry := *prev
	return &entry
}

// sameRemote compares the validators both sides know about. Without any
// comparable validator the document counts as changed.
func sameRemote(prev *storage.ManifestDocument, h http.Header) bool {
	compared := false
	if etag := h.Get("ETag"); etag != "" && prev.ETag != "" {
		if etag != prev.ETag {
			return false
		}
		compared = true
	}
	if lm := h.Get("Last-Modified"); lm != "" && prev.LastModified != "" {
		if lm != prev.LastModified {
			return false
		}
		compared = true
	}
	if cl := h.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n != prev.ContentLength {
			return false
		}
		compared = true
	}
	return compared
}

// pathFor picks a session-relative path for doc, adding a counter when
// another URL already took the name.
func (p *downloadPass) pathFor(subdir string, doc DocumentReference, header http.Header, target string) string {
	title := doc.Title
	if title == "" {
		title = "document"
	}
	stem := storage.Slugify(title)
	ext := detectExtension(target, header)
	dir := filepath.ToSlash(subdir)
	rel := path.Join(dir, stem+ext)
	for n := 2; ; n++ {
		owner, taken := p.usedPaths[rel]
		if !taken || owner == target {
			break
		}
		rel = path.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
	p.usedPaths[rel] = target
	return rel
}

func (p *downloadPass) observe(result string) {
	if p.c.observer != nil {
		p.c.observer.ObserveDownload(result)
	}
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

func agendaSummary(detail *SessionDetail) *storage.AgendaSummary {
	summary := &storage.AgendaSummary{
		SessionID:   detail.Reference.SessionID,
		AgendaItems: []storage.AgendaSummaryItem{},
	}
	for _, item := range detail.AgendaItems {
		summary.AgendaItems = append(summary.AgendaItems, storage.AgendaSummaryItem{
			Number:           item.Number,
			Title:            item.Title,
			Reporter:         item.Reporter,
			Status:           item.Status,
			Decision:         item.Decision().Ptr(),
			DocumentsPresent: len(item.Documents) > 0,
		})
	}
	return summary
}

var (
	filenameStarRe = regexp.MustCompile(`(?i)filename\*\s*=\s*([^;]+)`)
	filenameRe     = regexp.MustCompile(`(?i)filename\s*=\s*"?([^";]+)"?`)
)

var contentTypeExtensions = map[string]string{
	"application/pdf":    ".pdf",
	"text/html":          ".html",
	"text/plain":         ".txt",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"application/zip": ".zip",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

// Script endpoints say nothing about the file they serve.
var scriptExtensions = map[string]bool{".asp": true, ".aspx": true, ".php": true}

// detectExtension looks at Content-Disposition, then Content-Type, then
// the URL path. Unknown files get ".bin".
func detectExtension(target string, header http.Header) string {
	if disposition := header.Get("Content-Disposition"); disposition != "" {
		if name := dispositionFilename(disposition); name != "" {
			if ext := path.Ext(name); ext != "" {
				return strings.ToLower(ext)
			}
		}
	}
	if ct := header.Get("Content-Type"); ct != "" {
		mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
		if ext, ok := contentTypeExtensions[mediaType]; ok {
			return ext
		}
	}
	if u, err := url.Parse(target); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if ext != "" && !scriptExtensions[ext] {
			return ext
		}
	}
	return ".bin"
}

func dispositionFilename(disposition string) string {
	if m := filenameStarRe.FindStringSubmatch(disposition); m != nil {
		value := strings.Trim(strings.TrimSpace(m[1]), `"`)
		if i := strings.Index(value, "''"); i >= 0 {
			value = value[i+2:]
		}
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		if value != "" {
			return value
		}
	}
	if m := filenameRe.FindStringSubmatch(disposition); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
