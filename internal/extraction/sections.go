package extraction

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const snippetChars = 180

var headingRe = regexp.MustCompile(`(?i)\b(Beschlussvorschlag|Beschluss|Begr(?:ü|ue)ndung|Sachverhalt|Finanzielle Auswirkungen|Haushaltsm(?:ä|ae)(?:ß|ss)ige Auswirkungen|Anlagen|Protokoll|Ergebnis|Empfehlung)\s*:`)

// Section anchors a heading found in the text of a page.
type Section struct {
	Page    int    `json:"page"`
	Heading string `json:"heading"`
	Snippet string `json:"snippet"`
}

// DetectSections finds colon-terminated German agenda headings in text and
// returns each with the text that follows it.
func DetectSections(page int, text string) []Section {
	var sections []Section
	for _, m := range headingRe.FindAllStringSubmatchIndex(text, -1) {
		rest := strings.TrimLeft(text[m[1]:], " ")
		if utf8.RuneCountInString(rest) > snippetChars {
			rest = string([]rune(rest)[:snippetChars])
		}
		sections = append(sections, Section{
			Page:    page,
			Heading: text[m[2]:m[3]],
			Snippet: strings.TrimSpace(rest),
		})
	}
	return sections
}
