package sessionnet

import (
	"net/url"
	"regexp"
	"strings"
)

// sessionIDKeys are the query parameters that carry a session id, most
// specific first.
var sessionIDKeys = []string{"__ksinr", "SID", "SILFDNR", "__kvid"}

// ExtractSessionID returns the session id encoded in a detail URL. URLs
// without a known parameter are their own id.
func ExtractSessionID(detailURL string) string {
	u, err := url.Parse(detailURL)
	if err != nil {
		return detailURL
	}
	q := u.Query()
	for _, key := range sessionIDKeys {
		if v := q.Get(key); v != "" {
			return v
		}
	}
	return detailURL
}

var reporterRe = regexp.MustCompile(`(?i)berichterstatt(?:er(?:/-?in(?:nen)?|in|innen)?|ung)`)

const reporterTrim = " -–—:;,()"

// SplitReporter separates a "Berichterstatter ..." suffix from an agenda
// title. The reporter is empty when the title names none.
func SplitReporter(title string) (string, string) {
	loc := reporterRe.FindStringIndex(title)
	if loc == nil {
		return strings.TrimSpace(title), ""
	}
	head := strings.Trim(title[:loc[0]], reporterTrim)
	reporter := strings.Trim(title[loc[1]:], reporterTrim)
	if head == "" {
		return strings.TrimSpace(title), reporter
	}
	return head, reporter
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// parseBaseURL makes sure relative links resolve below the portal path.
func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return url.Parse(raw)
}
