// Package pdfinfo compares what pdfcpu reads from a PDF with what the
// text scanner finds, to explain extraction results.
package pdfinfo

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/TobiSchelling/ratsinfo/internal/pdftext"
)

// Info describes one PDF file.
type Info struct {
	Path string
	Size int64

	// From pdfcpu. Zero values when StructureErr is set.
	PageCount    int
	Version      string
	Encrypted    bool
	StructureErr error

	// From the text scanner.
	ScannedObjects int
	ScannedPages   int
	TextPages      int
	TextChars      int
}

// Inspect reads the file at path. A file pdfcpu cannot parse is not an
// error: StructureErr is set and the scanner fields are still filled.
func Inspect(path string) (*Info, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	info := &Info{Path: path, Size: int64(len(raw))}

	objects := pdftext.ScanObjects(raw)
	info.ScannedObjects = len(objects)
	info.ScannedPages = len(pdftext.PageObjectIDs(objects))
	for _, p := range pdftext.Extract(raw).Pages {
		if text := strings.TrimSpace(p.Text); text != "" {
			info.TextPages++
			info.TextChars += len([]rune(text))
		}
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(raw), conf)
	if err == nil {
		err = ctx.EnsurePageCount()
	}
	if err != nil {
		info.StructureErr = fmt.Errorf("pdfcpu: %w", err)
		return info, nil
	}
	info.PageCount = ctx.PageCount
	if ctx.HeaderVersion != nil {
		info.Version = ctx.HeaderVersion.String()
	}
	info.Encrypted = ctx.Encrypt != nil
	return info, nil
}

// Mismatch reports whether pdfcpu and the scanner disagree on the page
// count of a readable file.
func (i *Info) Mismatch() bool {
	return i.StructureErr == nil && i.PageCount != i.ScannedPages
}
