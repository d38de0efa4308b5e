package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Info summarizes an uploaded PDF without rendering it.
type Info struct {
	Pages        int  `json:"pages"`
	HasTextLayer bool `json:"has_text_layer"`
}

// IsPDF reports whether the content starts with the PDF magic bytes.
func IsPDF(content []byte) bool {
	return len(content) >= 4 && string(content[:4]) == "%PDF"
}

// Inspect parses the upload in memory and reports the page count and whether
// any of the leading pages already carry extractable text. Poppler remains
// authoritative for rendering; this only vets the upload and informs callers
// that re-OCR may be redundant.
func Inspect(content []byte) (info Info, err error) {
	if !IsPDF(content) {
		return Info{}, fmt.Errorf("not a PDF: content starts with %q", preview(content))
	}

	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			info = Info{}
			err = fmt.Errorf("parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Info{}, fmt.Errorf("parse PDF: %w", err)
	}

	info = Info{Pages: reader.NumPage()}

	// Probing every page of a large scan is wasted work; text layers are
	// either present throughout or absent.
	const probePages = 5
	for i := 1; i <= info.Pages && i <= probePages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			info.HasTextLayer = true
			break
		}
	}
	return info, nil
}

func preview(content []byte) string {
	n := len(content)
	if n > 16 {
		n = 16
	}
	return string(content[:n])
}
