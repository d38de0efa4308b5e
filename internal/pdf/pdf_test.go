package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageNumberFromName(t *testing.T) {
	cases := []struct {
		path string
		want int
		ok   bool
	}{
		{"/tmp/work/page-1.jpg", 1, true},
		{"/tmp/work/page-03.jpg", 3, true},
		{"/tmp/work/page-000124.jpg", 124, true},
		{"/tmp/work/retry-7-7.jpg", 7, true},
		{"/tmp/work/page.jpg", 0, false},
		{"/tmp/work/page-.jpg", 0, false},
		{"/tmp/work/page-0.jpg", 0, false},
		{"/tmp/work/page-x.jpg", 0, false},
	}
	for _, tc := range cases {
		n, ok := pageNumberFromName(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		if tc.ok {
			assert.Equal(t, tc.want, n, tc.path)
		}
	}
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\nrest")))
	assert.False(t, IsPDF([]byte("PK\x03\x04 zip")))
	assert.False(t, IsPDF([]byte("%PD")))
	assert.False(t, IsPDF(nil))
}

func TestInspectRejectsNonPDF(t *testing.T) {
	_, err := Inspect([]byte("plain text, no magic"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a PDF")
}

func TestInspectRejectsTruncatedPDF(t *testing.T) {
	// Magic present but no xref/trailer.
	_, err := Inspect([]byte("%PDF-1.4\ngarbage"))
	require.Error(t, err)
}

// buildOnePagePDF assembles a valid single-page PDF whose content stream is
// given, computing the cross-reference offsets as it writes.
func buildOnePagePDF(t *testing.T, content string) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	var offsets []int
	addObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	addObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	addObj("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	addObj("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
		"/Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>\nendobj\n")
	addObj(fmt.Sprintf("4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n",
		len(content), content))
	addObj("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xref := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func TestInspectDetectsTextLayer(t *testing.T) {
	doc := buildOnePagePDF(t, "BT /F1 12 Tf 72 720 Td (Hello world) Tj ET")

	info, err := Inspect(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Pages)
	assert.True(t, info.HasTextLayer)
}

func TestInspectScannedPageHasNoTextLayer(t *testing.T) {
	// Graphics only, the shape of a rasterized scan.
	doc := buildOnePagePDF(t, "72 72 468 648 re f")

	info, err := Inspect(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Pages)
	assert.False(t, info.HasTextLayer)
}

func TestCommandError(t *testing.T) {
	base := errors.New("exit status 1")

	t.Run("includes stderr detail", func(t *testing.T) {
		err := commandError("pdftoppm", base, []byte("Syntax Error: bad xref\n"))
		assert.Contains(t, err.Error(), "pdftoppm failed")
		assert.Contains(t, err.Error(), "bad xref")
		assert.ErrorIs(t, err, base)
	})

	t.Run("keeps only the tail of long output", func(t *testing.T) {
		long := strings.Repeat("x", 2000) + "END"
		err := commandError("ocrmypdf", base, []byte(long))
		assert.Less(t, len(err.Error()), 700)
		assert.Contains(t, err.Error(), "END")
	})

	t.Run("empty stderr", func(t *testing.T) {
		err := commandError("pdfinfo", base, nil)
		assert.Equal(t, "pdfinfo failed: exit status 1", err.Error())
	})
}

func TestNewRasterizerDefaults(t *testing.T) {
	r := NewRasterizer("", "")
	assert.Equal(t, "pdftoppm", r.PdftoppmBin)
	assert.Equal(t, "pdfinfo", r.PdfinfoBin)

	r = NewRasterizer("/opt/poppler/bin/pdftoppm", "/opt/poppler/bin/pdfinfo")
	assert.Equal(t, "/opt/poppler/bin/pdftoppm", r.PdftoppmBin)
}

func TestNewEmbedderDefaults(t *testing.T) {
	e := NewEmbedder("", nil)
	assert.Equal(t, "ocrmypdf", e.Bin)
	assert.Equal(t, []string{"eng"}, e.Languages)
}

func TestEmbedderAvailable(t *testing.T) {
	e := NewEmbedder("ocrserve-no-such-binary", nil)
	assert.False(t, e.Available())
}
