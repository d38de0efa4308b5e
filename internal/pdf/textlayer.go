package pdf

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// Embedder produces a searchable PDF by running ocrmypdf over the original
// upload. The rendered pages stay pixel-identical; ocrmypdf inserts an
// invisible, positioned text layer.
type Embedder struct {
	// Bin defaults to "ocrmypdf".
	Bin string
	// Languages selects tesseract trained data, joined with "+".
	Languages []string
}

// NewEmbedder returns an Embedder for the given binary path and languages.
func NewEmbedder(bin string, languages []string) *Embedder {
	if bin == "" {
		bin = "ocrmypdf"
	}
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Embedder{Bin: bin, Languages: languages}
}

// Available reports whether the ocrmypdf binary is reachable.
func (e *Embedder) Available() bool {
	_, err := exec.LookPath(e.Bin)
	return err == nil
}

// Embed writes a copy of inputPath with an embedded text layer to outputPath.
// OCR is forced on every page so scans that already carry a broken text layer
// come out consistent.
func (e *Embedder) Embed(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"--language", strings.Join(e.Languages, "+"),
		"--force-ocr",
		"--deskew",
		"--rotate-pages",
		"--optimize", "1",
		inputPath,
		outputPath,
	}
	cmd := exec.CommandContext(ctx, e.Bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return commandError("ocrmypdf", err, stderr.Bytes())
	}
	return nil
}
