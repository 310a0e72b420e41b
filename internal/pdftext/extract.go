package pdftext

import "strings"

// Page is the decoded text of one page. Number is 1-based; 0 marks text
// recovered by the whole-document fallback, which has no page attribution.
type Page struct {
	Number int
	Text   string
}

// Document is the result of Extract.
type Document struct {
	Pages []Page
	// PageCount is the number of page objects found, or nil when the file
	// has none.
	PageCount *int
}

// Text joins the non-empty page texts with a blank line.
func (d Document) Text() string {
	var texts []string
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// Extract decodes the text of every page in raw. If the file has no page
// objects, or none of its pages lead to a content stream, every stream in
// the file is decoded as one unattributed page instead.
func Extract(raw []byte) Document {
	objects := ScanObjects(raw)
	pageIDs := PageObjectIDs(objects)

	if len(pageIDs) > 0 {
		pages := make([]Page, 0, len(pageIDs))
		found := false
		for i, id := range pageIDs {
			var parts []string
			for _, ref := range ContentRefs(objects[id]) {
				body, ok := objects[ref]
				if !ok {
					continue
				}
				payload, ok := StreamPayload(body)
				if !ok {
					continue
				}
				found = true
				parts = append(parts, DecodeContent(payload)...)
			}
			pages = append(pages, Page{Number: i + 1, Text: joinParts(parts)})
		}
		if found {
			n := len(pageIDs)
			return Document{Pages: pages, PageCount: &n}
		}
	}

	return scanWholeDocument(raw, len(pageIDs))
}

func scanWholeDocument(raw []byte, pageMarkers int) Document {
	var parts []string
	payloads := allStreamPayloads(raw)
	if len(payloads) == 0 {
		payloads = [][]byte{raw}
	}
	for _, p := range payloads {
		parts = append(parts, DecodeContent(p)...)
	}

	doc := Document{Pages: []Page{{Number: 0, Text: joinParts(parts)}}}
	if pageMarkers > 0 {
		doc.PageCount = &pageMarkers
	}
	return doc
}
