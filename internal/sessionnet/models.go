// Package sessionnet crawls a SessionNet council information portal: the
// monthly meeting calendar, the detail page of each meeting with its
// agenda, and the documents attached to both.
package sessionnet

import "time"

// DocumentReference is a downloadable file linked from a session page.
type DocumentReference struct {
	Title    string
	URL      string
	Category string
	// OnAgendaItem is the number of the agenda item the document belongs
	// to; empty for session-level documents.
	OnAgendaItem string
}

// AgendaItem is one numbered item (TOP) of a session.
type AgendaItem struct {
	Number    string
	Title     string
	Reporter  string
	Status    string
	Documents []DocumentReference
}

// Decision derives the outcome of the item from its status text.
func (a AgendaItem) Decision() DecisionOutcome {
	return DeriveDecision(a.Status)
}

// SessionReference is one entry of the monthly meeting calendar.
type SessionReference struct {
	Committee   string
	MeetingName string
	SessionID   string
	Date        time.Time
	StartTime   string
	DetailURL   string
	Location    string
}

// SessionDetail is a parsed session detail page.
type SessionDetail struct {
	Reference        SessionReference
	AgendaItems      []AgendaItem
	SessionDocuments []DocumentReference
	RetrievedAt      time.Time
	// RawHTML is kept for debugging only.
	RawHTML string
}

// Documents returns the session documents followed by the documents of
// every agenda item, in page order.
func (d *SessionDetail) Documents() []DocumentReference {
	docs := append([]DocumentReference(nil), d.SessionDocuments...)
	for _, item := range d.AgendaItems {
		docs = append(docs, item.Documents...)
	}
	return docs
}
