// Package pdf wraps the external PDF tooling the service delegates to:
// Poppler (pdftoppm, pdfinfo) for rasterization and page counts, ocrmypdf for
// text-layer embedding, and a pure-Go reader for upload inspection.
package pdf

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Page is one rasterized PDF page on disk.
type Page struct {
	// Number is 1-indexed, matching pdftoppm's numbering.
	Number int
	// Path points at the rendered JPEG.
	Path string
}

// Rasterizer renders PDF pages to JPEG images via Poppler.
type Rasterizer struct {
	// PdftoppmBin and PdfinfoBin default to the bare binary names and are
	// resolved through PATH.
	PdftoppmBin string
	PdfinfoBin  string
}

// NewRasterizer returns a Rasterizer using the given binary paths, falling
// back to "pdftoppm" and "pdfinfo".
func NewRasterizer(pdftoppm, pdfinfo string) *Rasterizer {
	if pdftoppm == "" {
		pdftoppm = "pdftoppm"
	}
	if pdfinfo == "" {
		pdfinfo = "pdfinfo"
	}
	return &Rasterizer{PdftoppmBin: pdftoppm, PdfinfoBin: pdfinfo}
}

// RenderAll rasterizes every page of pdfPath into workDir at the given DPI and
// returns the pages in ascending page order.
func (r *Rasterizer) RenderAll(ctx context.Context, pdfPath, workDir string, dpi int) ([]Page, error) {
	if dpi <= 0 {
		dpi = 300
	}
	prefix := filepath.Join(workDir, "page")
	args := []string{"-jpeg", "-r", strconv.Itoa(dpi), pdfPath, prefix}
	cmd := exec.CommandContext(ctx, r.PdftoppmBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, commandError("pdftoppm", err, stderr.Bytes())
	}

	matches, err := filepath.Glob(prefix + "-*.jpg")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errors.New("pdftoppm produced no pages")
	}

	pages := make([]Page, 0, len(matches))
	for _, m := range matches {
		n, ok := pageNumberFromName(m)
		if !ok {
			continue
		}
		pages = append(pages, Page{Number: n, Path: m})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

// RenderPage rasterizes a single 1-indexed page, used as a fallback when a
// page is missing from a batch render.
func (r *Rasterizer) RenderPage(ctx context.Context, pdfPath, workDir string, page, dpi int) (Page, error) {
	if dpi <= 0 {
		dpi = 300
	}
	prefix := filepath.Join(workDir, fmt.Sprintf("retry-%d", page))
	args := []string{
		"-jpeg",
		"-r", strconv.Itoa(dpi),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		pdfPath,
		prefix,
	}
	cmd := exec.CommandContext(ctx, r.PdftoppmBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Page{}, commandError(fmt.Sprintf("pdftoppm page %d", page), err, stderr.Bytes())
	}

	matches, err := filepath.Glob(prefix + "-*.jpg")
	if err != nil {
		return Page{}, err
	}
	if len(matches) == 0 {
		return Page{}, fmt.Errorf("pdftoppm produced no output for page %d", page)
	}
	return Page{Number: page, Path: matches[0]}, nil
}

// PageCount reads the page count from pdfinfo output.
func (r *Rasterizer) PageCount(ctx context.Context, pdfPath string) (int, error) {
	cmd := exec.CommandContext(ctx, r.PdfinfoBin, pdfPath)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo failed: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			if total, convErr := strconv.Atoi(fields[1]); convErr == nil {
				return total, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("no page count in pdfinfo output")
}

// pageNumberFromName parses the trailing page number out of a pdftoppm output
// name like "page-03.jpg".
func pageNumberFromName(path string) (int, bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.LastIndex(base, "-")
	if idx < 0 || idx == len(base)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func commandError(tool string, err error, stderr []byte) error {
	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		return fmt.Errorf("%s failed: %w", tool, err)
	}
	// Keep the tail; poppler and ocrmypdf front-load progress chatter.
	const maxDetail = 512
	if len(detail) > maxDetail {
		detail = "..." + detail[len(detail)-maxDetail:]
	}
	return fmt.Errorf("%s failed: %w: %s", tool, err, detail)
}
