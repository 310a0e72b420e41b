package sessionnet

import (
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// OverviewParser turns a month listing page into session references.
type OverviewParser interface {
	ParseOverview(html string, year, month int) []SessionReference
}

// HTMLOverviewParser reads the si0040 month calendar.
type HTMLOverviewParser struct {
	BaseURL *url.URL
}

const overviewTable = "#smc_page_si0040_contenttable1"

var (
	digitsRe    = regexp.MustCompile(`\d+`)
	germanDayRe = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)
)

// dayStrategies find the date of a calendar row, in order.
var dayStrategies = []func(row, link *goquery.Selection, year, month int) (time.Time, bool){
	dayFromWeekdayCell,
	dayFromLinkLabel,
}

func (p HTMLOverviewParser) ParseOverview(html string, year, month int) []SessionReference {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Printf("Warning: unreadable overview page: %v", err)
		return nil
	}
	table := doc.Find(overviewTable).First()
	if table.Length() == 0 {
		log.Printf("Warning: overview page %04d-%02d has no session table", year, month)
		return nil
	}

	var sessions []SessionReference
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find(`a[href*="si005"]`).First()
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		meetingName := collapse(link.Text())

		var date time.Time
		found := false
		for _, strategy := range dayStrategies {
			if date, found = strategy(row, link, year, month); found {
				break
			}
		}
		if !found {
			log.Printf("Warning: no date for meeting %q", meetingName)
			return
		}

		committee := collapse(row.Find(".smc-el-gremium").First().Text())
		if committee == "" {
			committee = meetingName
		}
		detailURL := resolveURL(p.BaseURL, href)
		sessions = append(sessions, SessionReference{
			Committee:   committee,
			MeetingName: meetingName,
			SessionID:   ExtractSessionID(detailURL),
			Date:        date,
			StartTime:   collapse(row.Find("li.smc-time").First().Text()),
			DetailURL:   detailURL,
			Location:    collapse(row.Find("li.smc-location").First().Text()),
		})
	})
	return sessions
}

func dayFromWeekdayCell(row, _ *goquery.Selection, year, month int) (time.Time, bool) {
	digits := digitsRe.FindString(row.Find("td.siday span.weekday").First().Text())
	if digits == "" {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(digits)
	if err != nil {
		return time.Time{}, false
	}
	return validDate(year, month, day)
}

func dayFromLinkLabel(_, link *goquery.Selection, _, _ int) (time.Time, bool) {
	for _, attr := range []string{"title", "aria-label"} {
		label, _ := link.Attr(attr)
		m := germanDayRe.FindStringSubmatch(label)
		if m == nil {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if date, ok := validDate(year, month, day); ok {
			return date, true
		}
	}
	return time.Time{}, false
}

func validDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day {
		return time.Time{}, false
	}
	return date, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
