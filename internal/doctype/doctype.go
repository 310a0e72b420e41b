// Package doctype assigns documents to one of a closed set of types used
// for filtering exports and choosing a content parser.
package doctype

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	Protokoll        = "protokoll"
	Bekanntmachung   = "bekanntmachung"
	Beschlussvorlage = "beschlussvorlage"
	Vorlage          = "vorlage"
	Sonstiges        = "sonstiges"

	// LegacyNiederschrift is the name older indexes used for Protokoll.
	LegacyNiederschrift = "niederschrift"
)

// ErrUnsupportedDocumentType is returned for filter values outside
// AllowedTypes.
var ErrUnsupportedDocumentType = errors.New("unsupported document type")

// AllowedTypes lists every type InferDocumentType can return, sorted.
var AllowedTypes = []string{Bekanntmachung, Beschlussvorlage, Protokoll, Sonstiges, Vorlage}

// SessionNet category codes shown next to document links.
var categoryTypes = map[string]string{
	"pr":  Protokoll,
	"ni":  Protokoll,
	"bm":  Bekanntmachung,
	"be":  Bekanntmachung,
	"bek": Bekanntmachung,
	"bv":  Beschlussvorlage,
	"vo":  Vorlage,
	"vl":  Vorlage,
}

// Checked in order; the first family with a matching keyword wins.
var keywordFamilies = []struct {
	docType  string
	keywords []string
}{
	{Protokoll, []string{"niederschrift", "protokoll", "sitzungsprotokoll"}},
	{Bekanntmachung, []string{"bekanntmachung", "einladung", "tagesordnung"}},
	{Beschlussvorlage, []string{"beschlussvorlage", "beschlussvorschlag", "beschluss"}},
	{Vorlage, []string{"vorlage", "antrag"}},
}

// InferDocumentType classifies a document by its category code, falling
// back to keywords in its title, category, content type, URL and path.
func InferDocumentType(category, title, contentType, url, localPath string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if t, ok := categoryTypes[category]; ok {
		return t
	}

	blob := strings.ToLower(strings.Join([]string{title, category, contentType, url, localPath}, " "))
	for _, f := range keywordFamilies {
		for _, kw := range f.keywords {
			if strings.Contains(blob, kw) {
				return f.docType
			}
		}
	}
	return Sonstiges
}

// NormalizeFilter lowercases, de-duplicates and sorts filter values. An
// unknown value is an error: dropping it silently would widen the filter.
func NormalizeFilter(values []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	for _, v := range out {
		if !isAllowed(v) {
			return nil, fmt.Errorf("%w: Unsupported document type '%s'. Allowed: %s",
				ErrUnsupportedDocumentType, v, strings.Join(AllowedTypes, ", "))
		}
	}
	return out, nil
}

func isAllowed(v string) bool {
	for _, t := range AllowedTypes {
		if t == v {
			return true
		}
	}
	return false
}
