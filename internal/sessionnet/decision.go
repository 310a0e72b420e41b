package sessionnet

import "strings"

// DecisionOutcome is the result of an agenda item as far as it can be told
// from the status text.
type DecisionOutcome string

const (
	DecisionNone     DecisionOutcome = ""
	DecisionAccepted DecisionOutcome = "accepted"
	DecisionRejected DecisionOutcome = "rejected"
)

// Ptr returns nil for DecisionNone and the outcome string otherwise.
func (d DecisionOutcome) Ptr() *string {
	if d == DecisionNone {
		return nil
	}
	s := string(d)
	return &s
}

var umlautReplacer = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

// Accepted keywords are checked first, so "nicht beschlossen" still reads
// as accepted. The status column rarely phrases rejections that way.
var (
	acceptedKeywords = []string{"beschlossen", "angenommen", "zugestimmt", "genehmigt", "befuerwortet", "empfohlen"}
	rejectedKeywords = []string{"abgelehnt", "zurueckgewiesen", "verworfen"}
)

// DeriveDecision classifies a free-text status.
func DeriveDecision(status string) DecisionOutcome {
	s := umlautReplacer.Replace(strings.ToLower(status))
	if s == "" {
		return DecisionNone
	}
	for _, kw := range acceptedKeywords {
		if strings.Contains(s, kw) {
			return DecisionAccepted
		}
	}
	for _, kw := range rejectedKeywords {
		if strings.Contains(s, kw) {
			return DecisionRejected
		}
	}
	return DecisionNone
}
