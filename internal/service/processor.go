// Package service orchestrates the OCR pipeline: workspace lifecycle,
// rasterization, recognition, text-layer embedding, and history recording.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scanworks/ocrserve/internal/history"
	"github.com/scanworks/ocrserve/internal/ocr"
	"github.com/scanworks/ocrserve/internal/pdf"
)

// ErrInvalidPDF marks uploads that cannot be parsed as a PDF; handlers map it
// to a client error.
var ErrInvalidPDF = errors.New("invalid PDF")

// Rasterizer renders PDF pages to images. *pdf.Rasterizer is the production
// implementation; tests substitute fakes.
type Rasterizer interface {
	RenderAll(ctx context.Context, pdfPath, workDir string, dpi int) ([]pdf.Page, error)
	RenderPage(ctx context.Context, pdfPath, workDir string, page, dpi int) (pdf.Page, error)
	PageCount(ctx context.Context, pdfPath string) (int, error)
}

// Embedder writes a searchable copy of a PDF. *pdf.Embedder in production.
type Embedder interface {
	Embed(ctx context.Context, inputPath, outputPath string) error
}

// Block is one recognized word with its normalized bounding box, the shape
// reported by the extract-text endpoint.
type Block struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	BBox       [2][2]float64 `json:"bbox"`
}

// PageReport is the recognition output for one page.
type PageReport struct {
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Blocks     []Block `json:"blocks"`

	confidence float64
	imagePath  string
}

// Document is the full OCR report for an upload.
type Document struct {
	Filename string       `json:"filename"`
	Info     pdf.Info     `json:"info"`
	Pages    []PageReport `json:"pages"`
	FullText string       `json:"full_text"`
}

// Processor runs the OCR pipeline. History is optional; a nil store disables
// recording without touching the pipeline.
type Processor struct {
	Engine     ocr.Engine
	Rasterizer Rasterizer
	Embedder   Embedder
	History    *history.Store
	Timeout    time.Duration
	Log        zerolog.Logger
}

// ExtractText OCRs the upload and returns the text/bounding-box report
// without modifying the PDF.
func (p *Processor) ExtractText(ctx context.Context, filename string, content []byte, dpi int) (*Document, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	ws, err := NewWorkspace()
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	jobID := p.startJob(ctx, filename)

	doc, err := p.recognize(ctx, ws, filename, content, dpi)
	if err != nil {
		p.failJob(ctx, jobID, err)
		return nil, err
	}

	p.recordPages(ctx, jobID, doc)
	p.finishJob(ctx, jobID, doc)
	return doc, nil
}

// ProcessPDF OCRs the upload and returns the bytes of a searchable PDF with
// an embedded text layer.
func (p *Processor) ProcessPDF(ctx context.Context, filename string, content []byte, dpi int) ([]byte, *Document, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	ws, err := NewWorkspace()
	if err != nil {
		return nil, nil, err
	}
	defer ws.Close()

	jobID := p.startJob(ctx, filename)

	doc, err := p.recognize(ctx, ws, filename, content, dpi)
	if err != nil {
		p.failJob(ctx, jobID, err)
		return nil, nil, err
	}
	p.recordPages(ctx, jobID, doc)

	if err := p.Embedder.Embed(ctx, ws.InputPath(), ws.OutputPath()); err != nil {
		p.failJob(ctx, jobID, err)
		return nil, nil, fmt.Errorf("embed text layer: %w", err)
	}

	out, err := os.ReadFile(ws.OutputPath())
	if err != nil {
		p.failJob(ctx, jobID, err)
		return nil, nil, fmt.Errorf("read processed PDF: %w", err)
	}

	p.finishJob(ctx, jobID, doc)
	return out, doc, nil
}

// recognize runs rasterization and OCR inside the workspace and assembles the
// document report.
func (p *Processor) recognize(ctx context.Context, ws *Workspace, filename string, content []byte, dpi int) (*Document, error) {
	if !pdf.IsPDF(content) {
		return nil, fmt.Errorf("%w: missing %%PDF header", ErrInvalidPDF)
	}

	// Inspection is best-effort metadata; Poppler stays authoritative and
	// rejects files it cannot parse.
	info, err := pdf.Inspect(content)
	if err != nil {
		p.Log.Warn().Err(err).Str("filename", filename).Msg("PDF inspection failed")
		info = pdf.Info{}
	}

	if err := ws.WriteInput(content); err != nil {
		return nil, err
	}

	log := p.Log.With().Str("filename", filename).Int("dpi", dpi).Logger()
	log.Info().Int("pages", info.Pages).Bool("has_text_layer", info.HasTextLayer).
		Msg("Rasterizing PDF")

	pages, err := p.Rasterizer.RenderAll(ctx, ws.InputPath(), ws.Dir(), dpi)
	if err != nil {
		return nil, fmt.Errorf("rasterize: %w", err)
	}
	pages = p.fillMissingPages(ctx, ws, pages, dpi)

	log.Info().Int("rendered", len(pages)).Msg("Running OCR")

	doc := &Document{Filename: filename, Info: info, Pages: make([]PageReport, 0, len(pages))}
	var fullText strings.Builder
	for _, page := range pages {
		result, err := p.Engine.Recognize(ctx, ocr.PageImage{
			Path:       page.Path,
			PageNumber: page.Number,
			DPI:        dpi,
		})
		if err != nil {
			return nil, fmt.Errorf("recognize page %d: %w", page.Number, err)
		}

		report := PageReport{
			PageNumber: page.Number,
			Text:       result.PlainText,
			Blocks:     make([]Block, 0, len(result.Words)),
			confidence: result.MeanConfidence,
			imagePath:  page.Path,
		}
		for _, w := range result.Words {
			// Degenerate boxes come out of the engine on noise hits; their
			// normalized bbox would be a zero-area point.
			if w.Bounds.IsEmpty() {
				continue
			}
			report.Blocks = append(report.Blocks, Block{
				Text:       w.Text,
				Confidence: w.Confidence,
				BBox:       w.Bounds.Normalize(result.Width, result.Height),
			})
		}
		doc.Pages = append(doc.Pages, report)

		fullText.WriteString(result.PlainText)
		fullText.WriteString("\n\n")
	}
	doc.FullText = fullText.String()

	log.Info().Int("characters", len(doc.FullText)).Msg("OCR completed")
	return doc, nil
}

// fillMissingPages retries individual pages the batch render skipped. Poppler
// occasionally drops pages with malformed content streams; a single-page
// render usually recovers them.
func (p *Processor) fillMissingPages(ctx context.Context, ws *Workspace, pages []pdf.Page, dpi int) []pdf.Page {
	total, err := p.Rasterizer.PageCount(ctx, ws.InputPath())
	if err != nil || total <= len(pages) {
		return pages
	}

	have := make(map[int]bool, len(pages))
	for _, pg := range pages {
		have[pg.Number] = true
	}
	for n := 1; n <= total; n++ {
		if have[n] {
			continue
		}
		pg, err := p.Rasterizer.RenderPage(ctx, ws.InputPath(), ws.Dir(), n, dpi)
		if err != nil {
			p.Log.Warn().Err(err).Int("page", n).Msg("page render retry failed")
			continue
		}
		pages = append(pages, pg)
	}
	// Retries append out of order.
	for i := 1; i < len(pages); i++ {
		for j := i; j > 0 && pages[j].Number < pages[j-1].Number; j-- {
			pages[j], pages[j-1] = pages[j-1], pages[j]
		}
	}
	return pages
}

// History recording is fail-soft: every helper tolerates a nil store and logs
// instead of propagating errors, so history problems never fail OCR requests.
// Writes run on a detached context; a request that timed out mid-pipeline
// still gets its failure recorded.

const historyWriteTimeout = 5 * time.Second

func historyCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), historyWriteTimeout)
}

func (p *Processor) startJob(_ context.Context, filename string) string {
	if p.History == nil {
		return ""
	}
	ctx, cancel := historyCtx()
	defer cancel()
	jobID, err := p.History.CreateJob(ctx, filename)
	if err != nil {
		p.Log.Warn().Err(err).Msg("history: create job failed")
		return ""
	}
	return jobID
}

func (p *Processor) recordPages(_ context.Context, jobID string, doc *Document) {
	if p.History == nil || jobID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout*time.Duration(1+len(doc.Pages)))
	defer cancel()
	for _, page := range doc.Pages {
		err := p.History.AddPage(ctx, jobID, page.PageNumber, page.imagePath, page.Text, page.confidence)
		if err != nil {
			p.Log.Warn().Err(err).Int("page", page.PageNumber).Msg("history: add page failed")
		}
	}
}

func (p *Processor) finishJob(_ context.Context, jobID string, doc *Document) {
	if p.History == nil || jobID == "" {
		return
	}
	ctx, cancel := historyCtx()
	defer cancel()
	if err := p.History.CompleteJob(ctx, jobID, doc.FullText, len(doc.Pages)); err != nil {
		p.Log.Warn().Err(err).Msg("history: complete job failed")
	}
}

func (p *Processor) failJob(_ context.Context, jobID string, cause error) {
	if p.History == nil || jobID == "" {
		return
	}
	ctx, cancel := historyCtx()
	defer cancel()
	if err := p.History.FailJob(ctx, jobID, cause.Error()); err != nil {
		p.Log.Warn().Err(err).Msg("history: fail job failed")
	}
}

func (p *Processor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}
