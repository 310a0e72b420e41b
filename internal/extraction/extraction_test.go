package extraction

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

const onePagePDF = "%PDF-1.4\n" +
	"1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n" +
	"2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj\n" +
	"3 0 obj << /Type /Page /Parent 2 0 R /Contents 4 0 R >> endobj\n" +
	"4 0 obj << /Length 96 >> stream\n" +
	"BT /F1 12 Tf 72 700 Td (Dies ist ein laengerer Testtext fuer die PDF Extraktion.) Tj ET\n" +
	"endstream endobj\n" +
	"trailer << /Root 1 0 R >>\n" +
	"%%EOF\n"

const scannedPDF = "%PDF-1.4\n" +
	"1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n" +
	"2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj\n" +
	"3 0 obj << /Type /Page /Parent 2 0 R /Contents 4 0 R >> endobj\n" +
	"4 0 obj << /Length 15 >> stream\n" +
	"q 0 0 10 10 cm\n" +
	"endstream endobj\n" +
	"trailer << /Root 1 0 R >>\n" +
	"%%EOF\n"

const twoPagePDF = "%PDF-1.4\n" +
	"1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n" +
	"2 0 obj << /Type /Pages /Kids [3 0 R 5 0 R] /Count 2 >> endobj\n" +
	"3 0 obj << /Type /Page /Parent 2 0 R /Contents 4 0 R >> endobj\n" +
	"4 0 obj << >> stream\n" +
	"BT (Beschlussvorschlag: Der Rat beschliesst die Sanierung der Grundschule.) Tj ET\n" +
	"endstream endobj\n" +
	"5 0 obj << /Type /Page /Parent 2 0 R /Contents 6 0 R >> endobj\n" +
	"6 0 obj << >> stream\n" +
	"BT (Finanzielle Auswirkungen: 120.000 EUR) Tj (im Haushalt 2026.) Tj ET\n" +
	"endstream endobj\n" +
	"trailer << /Root 1 0 R >>\n" +
	"%%EOF\n"

func TestExtractPDFOK(t *testing.T) {
	path := writeFile(t, "doc.pdf", []byte(onePagePDF))

	r := ExtractTextForAnalysis(path, "application/pdf", 10000)
	if r.Status != StatusOK && r.Status != StatusPartial {
		t.Errorf("expected ok or partial, got %s", r.Status)
	}
	if !strings.Contains(r.Text, "PDF Extraktion") {
		t.Errorf("expected decoded text, got %q", r.Text)
	}
	if r.CharCount == 0 || r.OCRNeeded {
		t.Errorf("unexpected char count %d / ocr %v", r.CharCount, r.OCRNeeded)
	}
	if r.PageCount == nil || *r.PageCount != 1 {
		t.Errorf("expected page count 1, got %v", r.PageCount)
	}
}

func TestExtractPDFOCRNeeded(t *testing.T) {
	path := writeFile(t, "scan.pdf", []byte(scannedPDF))

	r := ExtractTextForAnalysis(path, "application/pdf", 10000)
	if r.Status != StatusOCRNeeded {
		t.Errorf("expected ocr_needed, got %s", r.Status)
	}
	if r.Quality != QualityLow {
		t.Errorf("expected low quality, got %s", r.Quality)
	}
	if r.CharCount != 0 || !r.OCRNeeded {
		t.Errorf("unexpected char count %d / ocr %v", r.CharCount, r.OCRNeeded)
	}
}

func TestExtractPDFBySuffixWithoutContentType(t *testing.T) {
	path := writeFile(t, "doc.PDF", []byte(onePagePDF))

	r := ExtractTextForAnalysis(path, "", 10000)
	if !strings.Contains(r.Text, "Testtext") {
		t.Errorf("expected PDF path by suffix, got status %s", r.Status)
	}
}

func TestExtractTwoPagePDFWithSections(t *testing.T) {
	path := writeFile(t, "vorlage.pdf", []byte(twoPagePDF))

	r := ExtractTextForAnalysis(path, "application/pdf", 10000)
	if r.PageCount == nil || *r.PageCount != 2 {
		t.Fatalf("expected page count 2, got %v", r.PageCount)
	}
	if len(r.PageTexts) != 2 || r.PageTexts[0].Page != 1 || r.PageTexts[1].Page != 2 {
		t.Fatalf("unexpected page texts %+v", r.PageTexts)
	}
	if r.PageTexts[1].Text != "Finanzielle Auswirkungen: 120.000 EUR im Haushalt 2026." {
		t.Errorf("page 2 text = %q", r.PageTexts[1].Text)
	}
	if r.PageTexts[1].CharCount != len([]rune(r.PageTexts[1].Text)) {
		t.Errorf("page 2 char count = %d", r.PageTexts[1].CharCount)
	}
	if len(r.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %+v", r.Sections)
	}
	if r.Sections[0].Page != 1 || r.Sections[0].Heading != "Beschlussvorschlag" {
		t.Errorf("unexpected first section %+v", r.Sections[0])
	}
	if r.Sections[1].Page != 2 || r.Sections[1].Heading != "Finanzielle Auswirkungen" {
		t.Errorf("unexpected second section %+v", r.Sections[1])
	}
	if r.Sections[1].Snippet != "120.000 EUR im Haushalt 2026." {
		t.Errorf("unexpected snippet %q", r.Sections[1].Snippet)
	}
}

func TestExtractMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist.pdf")
	for _, ct := range []string{"application/pdf", "text/plain", ""} {
		r := ExtractTextForAnalysis(missing, ct, 10000)
		if r.Status != StatusMissingFile || r.Quality != QualityFailed || r.CharCount != 0 {
			t.Errorf("content type %q: got %s/%s/%d", ct, r.Status, r.Quality, r.CharCount)
		}
		if r.Error == nil || *r.Error != "Local file does not exist" {
			t.Errorf("unexpected error %v", r.Error)
		}
	}
}

func TestExtractDirectoryIsMissingFile(t *testing.T) {
	r := ExtractTextForAnalysis(t.TempDir(), "text/plain", 10000)
	if r.Status != StatusMissingFile {
		t.Errorf("expected missing_file for a directory, got %s", r.Status)
	}
}

func stubReadFile(t *testing.T, fn func(string) ([]byte, error)) {
	t.Helper()
	orig := readFile
	readFile = fn
	t.Cleanup(func() { readFile = orig })
}

func TestExtractReadFailure(t *testing.T) {
	stubReadFile(t, func(string) ([]byte, error) {
		return nil, errors.New("permission denied")
	})
	for _, name := range []string{"vorlage.pdf", "notiz.txt"} {
		path := writeFile(t, name, []byte("content"))
		r := ExtractTextForAnalysis(path, "", 10000)
		if r.Status != StatusError || r.Quality != QualityFailed || r.CharCount != 0 {
			t.Errorf("%s: got %s/%s/%d", name, r.Status, r.Quality, r.CharCount)
		}
		if r.Error == nil || *r.Error != "permission denied" {
			t.Errorf("%s: unexpected error %v", name, r.Error)
		}
	}
}

func TestExtractRecoversFromPanic(t *testing.T) {
	stubReadFile(t, func(string) ([]byte, error) {
		panic("corrupt stream")
	})
	path := writeFile(t, "vorlage.pdf", []byte(onePagePDF))
	r := ExtractTextForAnalysis(path, "application/pdf", 10000)
	if r.Status != StatusError || r.Quality != QualityFailed || r.CharCount != 0 {
		t.Errorf("got %s/%s/%d", r.Status, r.Quality, r.CharCount)
	}
	if r.Error == nil || *r.Error != "corrupt stream" {
		t.Errorf("unexpected error %v", r.Error)
	}
	if r.PipelineVersion != PipelineVersion {
		t.Errorf("pipeline version = %q", r.PipelineVersion)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "anlage.docx", []byte("PK\x03\x04"))

	r := ExtractTextForAnalysis(path, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", 10000)
	if r.Status != StatusUnsupportedFormat || r.Quality != QualityFailed {
		t.Errorf("got %s/%s", r.Status, r.Quality)
	}
	if r.Error == nil || *r.Error != "Unsupported file type for text extraction" {
		t.Errorf("unexpected error %v", r.Error)
	}
}

func TestExtractTextContentTypeWithUnknownSuffix(t *testing.T) {
	path := writeFile(t, "notiz.dat", []byte("Kurzer Hinweis"))

	r := ExtractTextForAnalysis(path, "text/plain; charset=utf-8", 10000)
	if r.Text != "Kurzer Hinweis" {
		t.Errorf("unexpected text %q", r.Text)
	}
}

func TestExtractEmptyTextFile(t *testing.T) {
	path := writeFile(t, "leer.txt", []byte(" \n\t "))

	r := ExtractTextForAnalysis(path, "", 10000)
	if r.Status != StatusEmptyText || r.Quality != QualityFailed || r.OCRNeeded {
		t.Errorf("got %s/%s ocr=%v", r.Status, r.Quality, r.OCRNeeded)
	}
	if r.PageCount != nil {
		t.Errorf("expected nil page count for text files")
	}
}

func TestExtractLatin1Fallback(t *testing.T) {
	path := writeFile(t, "alt.txt", []byte("Gr\xfc\xdfe aus Melle"))

	r := ExtractTextForAnalysis(path, "", 10000)
	if r.Text != "Grüße aus Melle" {
		t.Errorf("unexpected text %q", r.Text)
	}
}

func TestQualityThresholds(t *testing.T) {
	tests := []struct {
		n       int
		status  string
		quality string
	}{
		{1, StatusPartial, QualityLow},
		{79, StatusPartial, QualityLow},
		{80, StatusOK, QualityMedium},
		{499, StatusOK, QualityMedium},
		{500, StatusOK, QualityHigh},
	}
	for _, tt := range tests {
		path := writeFile(t, "doc.txt", []byte(strings.Repeat("a", tt.n)))
		r := ExtractTextForAnalysis(path, "text/plain", 10000)
		if r.CharCount != tt.n || r.Status != tt.status || r.Quality != tt.quality {
			t.Errorf("n=%d: got %d %s/%s, want %s/%s", tt.n, r.CharCount, r.Status, r.Quality, tt.status, tt.quality)
		}
	}
}

func TestQualityIsMeasuredAfterTruncation(t *testing.T) {
	path := writeFile(t, "lang.txt", []byte(strings.Repeat("wort ", 400)))

	r := ExtractTextForAnalysis(path, "", 100)
	if r.CharCount != 100 {
		t.Fatalf("expected truncation to 100 chars, got %d", r.CharCount)
	}
	if r.Quality != QualityMedium {
		t.Errorf("expected medium quality on truncated text, got %s", r.Quality)
	}
}

func TestWhitespaceIsNormalized(t *testing.T) {
	path := writeFile(t, "ws.html", []byte("  <p>Erste\n\n Zeile</p>\t\tzweite  "))

	r := ExtractTextForAnalysis(path, "", 10000)
	if r.Text != "<p>Erste Zeile</p> zweite" {
		t.Errorf("unexpected text %q", r.Text)
	}
}

func TestToMapKeys(t *testing.T) {
	fixed := time.Date(2025, 10, 4, 12, 30, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	defer func() { now = orig }()

	path := writeFile(t, "doc.pdf", []byte(onePagePDF))
	m := ExtractTextForAnalysis(path, "application/pdf", 10000).ToMap()

	for _, key := range []string{
		"extraction_status", "parsing_quality", "extracted_text", "extracted_char_count",
		"page_count", "page_texts", "detected_sections", "extraction_error", "ocr_needed",
		"extraction_pipeline_version", "extracted_at",
	} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if m["extracted_at"] != "2025-10-04T12:30:00.000000Z" {
		t.Errorf("unexpected timestamp %v", m["extracted_at"])
	}
	if m["extraction_error"] != nil {
		t.Errorf("expected nil extraction_error, got %v", m["extraction_error"])
	}
	if m["page_count"] != 1 {
		t.Errorf("expected page_count 1, got %v", m["page_count"])
	}
	if m["extraction_pipeline_version"] != PipelineVersion {
		t.Errorf("unexpected version %v", m["extraction_pipeline_version"])
	}
}

func TestDetectSections(t *testing.T) {
	text := "Sachverhalt: Die Turnhalle ist marode. Begründung: Sicherheit. Anlagen keine"
	sections := DetectSections(3, text)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %+v", sections)
	}
	if sections[0].Heading != "Sachverhalt" || sections[0].Page != 3 {
		t.Errorf("unexpected first section %+v", sections[0])
	}
	if !strings.HasPrefix(sections[0].Snippet, "Die Turnhalle ist marode.") {
		t.Errorf("unexpected snippet %q", sections[0].Snippet)
	}
	if sections[1].Heading != "Begründung" {
		t.Errorf("unexpected second heading %q", sections[1].Heading)
	}
}

func TestDetectSectionsSnippetLength(t *testing.T) {
	text := "Ergebnis: " + strings.Repeat("ä", 300)
	sections := DetectSections(1, text)
	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	if n := len([]rune(sections[0].Snippet)); n != snippetChars {
		t.Errorf("expected %d rune snippet, got %d", snippetChars, n)
	}
}
