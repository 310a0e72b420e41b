package sessionnet

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/TobiSchelling/ratsinfo/internal/fetch"
	"github.com/TobiSchelling/ratsinfo/internal/storage"
)

// DefaultBaseURL is the portal of the city of Melle.
const DefaultBaseURL = "https://session.melle.info/bi"

// Fetcher is the transport used by Client. *fetch.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, params url.Values) (*fetch.Response, error)
	Head(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// DownloadObserver is told the outcome of every document in a download
// pass: "downloaded", "cached", "unchanged" or "failed".
type DownloadObserver interface {
	ObserveDownload(result string)
}

// Config configures a Client. Zero parsers select the HTML parsers.
type Config struct {
	BaseURL     string
	StorageRoot string
	Fetcher     Fetcher
	Overview    OverviewParser
	Detail      DetailParser
	Observer    DownloadObserver
}

// Client crawls one SessionNet portal and mirrors it below a storage root.
type Client struct {
	fetcher  Fetcher
	baseURL  *url.URL
	layout   storage.Layout
	overview OverviewParser
	detail   DetailParser
	observer DownloadObserver
	now      func() time.Time
}

// NewClient prepares the storage root, moving folders of the old
// year-only layout into month folders, and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("sessionnet: no fetcher configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if err := os.MkdirAll(cfg.StorageRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	layout := storage.Layout{Root: cfg.StorageRoot}
	moved, err := layout.MigrateLegacyLayout()
	if err != nil {
		return nil, fmt.Errorf("migrating storage layout: %w", err)
	}
	if moved > 0 {
		log.Printf("Moved %d legacy entries into month folders", moved)
	}

	c := &Client{
		fetcher:  cfg.Fetcher,
		baseURL:  base,
		layout:   layout,
		overview: cfg.Overview,
		detail:   cfg.Detail,
		observer: cfg.Observer,
		now:      time.Now,
	}
	if c.overview == nil {
		c.overview = HTMLOverviewParser{BaseURL: base}
	}
	if c.detail == nil {
		c.detail = HTMLDetailParser{BaseURL: base, Now: func() time.Time { return c.now() }}
	}
	return c, nil
}

// Layout returns the storage layout the client writes to.
func (c *Client) Layout() storage.Layout { return c.layout }

// SessionDir returns the folder a session is stored in.
func (c *Client) SessionDir(ref SessionReference) string {
	return c.layout.SessionDir(ref.Date, ref.Committee, ref.SessionID)
}

// FetchMonth lists the sessions of one month. With saveHTML the listing
// page is kept next to the session folders.
func (c *Client) FetchMonth(ctx context.Context, year, month int, saveHTML bool) ([]SessionReference, error) {
	log.Printf("Fetching session overview for %04d-%02d", year, month)
	params := url.Values{
		"__cjahr":   {strconv.Itoa(year)},
		"__cmonat":  {strconv.Itoa(month)},
		"__canz":    {"1"},
		"__cselect": {"0"},
	}
	resp, err := c.fetcher.Get(ctx, c.resolve("si0040.asp"), params)
	if err != nil {
		return nil, fmt.Errorf("fetching overview %04d-%02d: %w", year, month, err)
	}
	page := resp.Text()
	if saveHTML {
		if err := writeFile(c.layout.OverviewPath(year, month), []byte(page)); err != nil {
			return nil, err
		}
	}
	sessions := c.overview.ParseOverview(page, year, month)
	log.Printf("Parsed %d session references", len(sessions))
	return sessions, nil
}

// FetchSession loads and parses the detail page of a session and stores
// the page in the session folder.
func (c *Client) FetchSession(ctx context.Context, ref SessionReference) (*SessionDetail, error) {
	log.Printf("Fetching session detail for %s", ref.SessionID)
	resp, err := c.fetcher.Get(ctx, c.resolve(ref.DetailURL), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching session %s: %w", ref.SessionID, err)
	}
	page := resp.Text()
	detail := c.detail.ParseDetail(ref, page)
	path := filepath.Join(c.SessionDir(ref), storage.SessionPageFile)
	if err := writeFile(path, []byte(page)); err != nil {
		return nil, err
	}
	return &detail, nil
}

// DownloadSession fetches the detail page of ref and downloads its
// documents.
func (c *Client) DownloadSession(ctx context.Context, ref SessionReference, opts DownloadOptions) (*DownloadResult, error) {
	detail, err := c.FetchSession(ctx, ref)
	if err != nil {
		return nil, err
	}
	return c.DownloadDocuments(ctx, detail, opts)
}

func (c *Client) resolve(href string) string {
	return resolveURL(c.baseURL, href)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
