package content

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseBeschlussvorlageExtractsCoreSections(t *testing.T) {
	text := `
    Beschlussvorschlag: Der Rat beschliesst die Freigabe der Mittel fuer die Sanierung.
    Begruendung: Die bestehende Infrastruktur ist schadhaft und muss ersetzt werden.
    Finanzielle Auswirkungen: Im Haushalt 2026 sind 120.000 EUR eingeplant.
    Zustaendigkeit: Ausschuss fuer Finanzen, Rat der Stadt Melle.
    `
	r := ParseDocumentContent("beschlussvorlage", text, "Beschlussvorlage Sanierung")

	if r.Status != StatusOK || r.Quality != "high" {
		t.Errorf("got %s/%s", r.Status, r.Quality)
	}
	if r.Fields["titel"] != "Beschlussvorlage Sanierung" {
		t.Errorf("titel = %q", r.Fields["titel"])
	}
	if r.Fields["beschlusstext"] != "Der Rat beschliesst die Freigabe der Mittel fuer die Sanierung." {
		t.Errorf("beschlusstext = %q", r.Fields["beschlusstext"])
	}
	if !strings.Contains(r.Fields["begruendung"], "Infrastruktur") {
		t.Errorf("begruendung = %q", r.Fields["begruendung"])
	}
	if !strings.Contains(r.Fields["finanzbezug"], "120.000 EUR") {
		t.Errorf("finanzbezug = %q", r.Fields["finanzbezug"])
	}
	if r.Fields["zustaendigkeit"] != "Ausschuss fuer Finanzen, Rat der Stadt Melle." {
		t.Errorf("zustaendigkeit = %q", r.Fields["zustaendigkeit"])
	}
	want := []string{"begruendung", "beschlusstext", "finanzbezug", "titel", "zustaendigkeit"}
	if !reflect.DeepEqual(r.MatchedSections, want) {
		t.Errorf("matched sections = %v", r.MatchedSections)
	}
}

func TestParseVorlageLowQualityWithOneSection(t *testing.T) {
	text := `
    Begruendung: Fuer das Projekt besteht dringender Handlungsbedarf wegen erheblicher Schaeden.
    Weitere Hinweise: Die Umsetzung ist fuer das dritte Quartal vorgesehen.
    `
	r := ParseDocumentContent("vorlage", text, "Vorlage Projektstart")

	if r.Status != StatusOK || r.Quality != "low" {
		t.Errorf("got %s/%s", r.Status, r.Quality)
	}
	if !strings.Contains(r.Fields["begruendung"], "Handlungsbedarf") {
		t.Errorf("begruendung = %q", r.Fields["begruendung"])
	}
	if _, ok := r.Fields["beschlusstext"]; ok {
		t.Error("did not expect beschlusstext")
	}
}

func TestParseProtokollExtractsDecisionAndReasoning(t *testing.T) {
	text := `
    Beratung: Im Ausschuss wurde ueber mehrere Varianten diskutiert.
    Beschluss: Der Rat stimmt dem Verwaltungsvorschlag zu.
    Abstimmung: einstimmig angenommen.
    `
	r := ParseDocumentContent("protokoll", text, "Auszug Niederschrift")

	if r.Status != StatusOK || r.Quality != "high" {
		t.Errorf("got %s/%s", r.Status, r.Quality)
	}
	if r.Fields["begruendung"] != "Im Ausschuss wurde ueber mehrere Varianten diskutiert." {
		t.Errorf("begruendung = %q", r.Fields["begruendung"])
	}
	if r.Fields["beschlusstext"] != "Der Rat stimmt dem Verwaltungsvorschlag zu." {
		t.Errorf("beschlusstext = %q", r.Fields["beschlusstext"])
	}
	if !strings.Contains(r.Fields["entscheidung"], "einstimmig angenommen") {
		t.Errorf("entscheidung = %q", r.Fields["entscheidung"])
	}
}

func TestParseRejectsUnsupportedDocumentType(t *testing.T) {
	for _, typ := range []string{"bekanntmachung", "sonstiges", "", "niederschrift"} {
		r := ParseDocumentContent(typ, "Beschluss: Einladung zur Sitzung am Montag.", "")
		if r.Status != StatusUnsupportedDocumentType || r.Quality != "failed" {
			t.Errorf("%q: got %s/%s", typ, r.Status, r.Quality)
		}
		if len(r.Fields) != 0 {
			t.Errorf("%q: expected no fields, got %v", typ, r.Fields)
		}
	}
}

func TestParseEmptyText(t *testing.T) {
	for _, typ := range []string{"vorlage", "beschlussvorlage", "protokoll"} {
		r := ParseDocumentContent(typ, " \r\n\t ", "Titel")
		if r.Status != StatusEmptyText || r.Quality != "failed" || len(r.Fields) != 0 {
			t.Errorf("%s: got %s/%s %v", typ, r.Status, r.Quality, r.Fields)
		}
	}
}

func TestParseDocumentTypeIsCaseInsensitive(t *testing.T) {
	r := ParseDocumentContent("  Protokoll ", "Ergebnis: vertagt", "")
	if r.Fields["entscheidung"] != "vertagt" {
		t.Errorf("entscheidung = %q", r.Fields["entscheidung"])
	}
}

func TestParseWithoutFieldsOrTitle(t *testing.T) {
	short := ParseDocumentContent("vorlage", "Kurzer Text ohne Gliederung.", "")
	if short.Status != StatusNoStructuredFields || short.Quality != "failed" {
		t.Errorf("short: got %s/%s", short.Status, short.Quality)
	}

	long := ParseDocumentContent("vorlage", strings.Repeat("Fliesstext ohne Gliederung. ", 10), "")
	if long.Status != StatusNoStructuredFields || long.Quality != "low" {
		t.Errorf("long: got %s/%s", long.Status, long.Quality)
	}
}

func TestTitleOnlyCountsAsNoStrongField(t *testing.T) {
	r := ParseDocumentContent("vorlage", "Kurzer Text.", "Nur ein Titel")
	if r.Status != StatusOK || r.Quality != "low" {
		t.Errorf("got %s/%s", r.Status, r.Quality)
	}
	if !reflect.DeepEqual(r.MatchedSections, []string{"titel"}) {
		t.Errorf("matched sections = %v", r.MatchedSections)
	}
}

func TestTwoStrongFieldsIsMedium(t *testing.T) {
	r := ParseDocumentContent("vorlage", "Antrag: Neue Bänke. Kosten: 4.000 EUR", "")
	if r.Quality != "medium" {
		t.Errorf("expected medium, got %s (%v)", r.Quality, r.Fields)
	}
	if r.Fields["beschlusstext"] != "Neue Bänke. Kosten: 4.000 EUR" {
		t.Errorf("beschlusstext = %q", r.Fields["beschlusstext"])
	}
}

func TestLabelRequiresWordBoundary(t *testing.T) {
	r := ParseDocumentContent("protokoll", "Beschlussfassung folgt in der nächsten Sitzung.", "")
	if _, ok := r.Fields["beschlusstext"]; ok {
		t.Errorf("did not expect a match inside a longer word: %v", r.Fields)
	}
}

func TestParseFixtureFiles(t *testing.T) {
	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join("testdata", name))
		if err != nil {
			t.Fatalf("reading fixture: %v", err)
		}
		return string(data)
	}

	vorlage := ParseDocumentContent("beschlussvorlage", read("beschlussvorlage.txt"), "Ausbau Ganztagsbetreuung")
	if vorlage.Quality != "high" {
		t.Errorf("vorlage quality = %s (%v)", vorlage.Quality, vorlage.MatchedSections)
	}
	if !strings.Contains(vorlage.Fields["finanzbezug"], "350.000 EUR") {
		t.Errorf("finanzbezug = %q", vorlage.Fields["finanzbezug"])
	}
	if !strings.Contains(vorlage.Fields["zustaendigkeit"], "Bildung") {
		t.Errorf("zustaendigkeit = %q", vorlage.Fields["zustaendigkeit"])
	}

	protokoll := ParseDocumentContent("protokoll", read("protokoll.txt"), "Niederschrift TOP Ö 7")
	if protokoll.Status != StatusOK {
		t.Errorf("protokoll status = %s", protokoll.Status)
	}
	if !strings.Contains(protokoll.Fields["beschlusstext"], "Verwaltungsvorschlag") {
		t.Errorf("beschlusstext = %q", protokoll.Fields["beschlusstext"])
	}
	if !strings.Contains(protokoll.Fields["entscheidung"], "einstimmig angenommen") {
		t.Errorf("entscheidung = %q", protokoll.Fields["entscheidung"])
	}
}

func TestToMap(t *testing.T) {
	m := ParseDocumentContent("bekanntmachung", "x", "").ToMap()
	if m["content_parser_status"] != StatusUnsupportedDocumentType {
		t.Errorf("status = %v", m["content_parser_status"])
	}
	if fields, ok := m["structured_fields"].(map[string]string); !ok || len(fields) != 0 {
		t.Errorf("structured_fields = %#v", m["structured_fields"])
	}
	if sections, ok := m["matched_sections"].([]string); !ok || len(sections) != 0 {
		t.Errorf("matched_sections = %#v", m["matched_sections"])
	}
	if m["content_parser_version"] != ParserVersion {
		t.Errorf("version = %v", m["content_parser_version"])
	}
}
