package sessionnet

import (
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DetailParser turns a session detail page into agenda items and
// documents.
type DetailParser interface {
	ParseDetail(ref SessionReference, html string) SessionDetail
}

// HTMLDetailParser reads the si0057 session page.
type HTMLDetailParser struct {
	BaseURL *url.URL
	Now     func() time.Time
}

// agendaTableSelectors are tried in order; the first that matches wins.
var agendaTableSelectors = []string{
	`table[class*="Tagesordnung"]`,
	`table[id*="Tagesordnung"]`,
	`table[summary*="Tagesordnung"]`,
	"#smc_page_si0057_contenttable1",
	"div.smc-tops table",
}

const (
	sessionDocumentsContainer = "#smc_dokumente"
	documentIconSelector      = ".smc-doc-icon"
)

var downloadLinkRe = regexp.MustCompile(`(?i)(getfile\.(?:asp|php)\?|do\d{3,4}\.asp\?)`)

func (p HTMLDetailParser) ParseDetail(ref SessionReference, page string) SessionDetail {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	detail := SessionDetail{Reference: ref, RetrievedAt: now().UTC(), RawHTML: page}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		log.Printf("Warning: unreadable detail page for session %s: %v", ref.SessionID, err)
		return detail
	}

	detail.SessionDocuments = p.documents(doc.Find(sessionDocumentsContainer).First(), "")

	table := findAgendaTable(doc)
	if table == nil {
		log.Printf("Warning: no agenda table on detail page for session %s", ref.SessionID)
		return detail
	}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 2 {
			return
		}
		number := collapse(cells.Eq(0).Text())
		title, reporter := SplitReporter(joinedText(cells.Eq(1)))
		var status string
		if cells.Length() > 2 {
			status = collapse(cells.Eq(2).Text())
		}
		detail.AgendaItems = append(detail.AgendaItems, AgendaItem{
			Number:    number,
			Title:     title,
			Reporter:  reporter,
			Status:    status,
			Documents: p.documents(cells.Last(), number),
		})
	})
	return detail
}

func findAgendaTable(doc *goquery.Document) *goquery.Selection {
	for _, selector := range agendaTableSelectors {
		if table := doc.Find(selector).First(); table.Length() > 0 {
			return table
		}
	}
	return nil
}

// documents collects the download links of a container. A URL appearing
// more than once (text link plus download icon) is reported once, titled
// by the first link that has text. A link reached only through an icon
// keeps an empty title.
func (p HTMLDetailParser) documents(container *goquery.Selection, agendaItem string) []DocumentReference {
	var docs []DocumentReference
	index := make(map[string]int)
	container.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !downloadLinkRe.MatchString(href) {
			return
		}
		target := resolveURL(p.BaseURL, href)
		title := collapse(link.Text())
		if i, seen := index[target]; seen {
			if docs[i].Title == "" {
				docs[i].Title = title
			}
			return
		}
		index[target] = len(docs)
		docs = append(docs, DocumentReference{
			Title:        title,
			URL:          target,
			Category:     documentCategory(link),
			OnAgendaItem: agendaItem,
		})
	})
	return docs
}

// documentCategory reads the type code (BM, PR, VO, ...) from the icon of
// a link: one inside the link, else the nearest icon before it, else the
// first icon of its list item.
func documentCategory(link *goquery.Selection) string {
	icon := link.Find(documentIconSelector).First()
	if icon.Length() == 0 {
		icon = link.PrevAllFiltered(documentIconSelector).First()
	}
	if icon.Length() == 0 {
		icon = link.Closest("li").Find(documentIconSelector).First()
	}
	if icon.Length() == 0 {
		return ""
	}
	if title, ok := icon.Attr("title"); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	return collapse(icon.Text())
}

// joinedText joins the trimmed text nodes below s with single spaces.
func joinedText(s *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return collapse(strings.Join(parts, " "))
}
