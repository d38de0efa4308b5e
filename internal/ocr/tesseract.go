package ocr

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine recognizes page images through the gosseract bindings. A
// fresh client is created per page; tesseract's API state is not safe to share
// across concurrent recognitions.
type TesseractEngine struct {
	// Languages is the default trained-data selection when the page carries no
	// hint, e.g. ["eng"] or ["eng", "deu"].
	Languages []string
	// PageSegMode defaults to automatic page segmentation.
	PageSegMode gosseract.PageSegMode

	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract-backed engine with the given
// default languages. An empty list falls back to "eng".
func NewTesseractEngine(languages []string) *TesseractEngine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractEngine{
		Languages:     languages,
		PageSegMode:   gosseract.PSM_AUTO,
		clientFactory: gosseract.NewClient,
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Available reports whether the tesseract binary is reachable. Used by the
// health endpoint; recognition itself goes through the C API.
func (e *TesseractEngine) Available() bool {
	_, err := exec.LookPath("tesseract")
	return err == nil
}

// Recognize runs Tesseract over one page image and returns the structured
// word/line layout with confidences.
func (e *TesseractEngine) Recognize(ctx context.Context, page PageImage) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	width, height, err := imageSize(page.Path)
	if err != nil {
		return Result{}, fmt.Errorf("inspect page image: %w", err)
	}

	client := e.clientFactory()
	defer client.Close()

	if err := client.SetImage(page.Path); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}
	langs := page.Languages
	if len(langs) == 0 {
		langs = e.Languages
	}
	if err := client.SetLanguage(langs...); err != nil {
		return Result{}, fmt.Errorf("set languages %v: %w", langs, err)
	}
	if err := client.SetPageSegMode(e.PageSegMode); err != nil {
		return Result{}, fmt.Errorf("set page segmentation mode: %w", err)
	}
	if page.DPI > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(page.DPI)); err != nil {
			return Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}

	text, err := client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("recognize page %d: %w", page.PageNumber, err)
	}
	text = normalizeText(text)

	words, meanConf := wordBoxes(client)
	lines := groupLines(words)

	// Prefer the geometry-derived text when word boxes are present; it keeps
	// the plain text consistent with the reported layout.
	if len(lines) > 0 {
		text = joinLines(lines)
	}

	return Result{
		PlainText:      text,
		Words:          words,
		Lines:          lines,
		Width:          width,
		Height:         height,
		MeanConfidence: meanConf,
	}, nil
}

func wordBoxes(client *gosseract.Client) ([]Word, float64) {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}
	words := make([]Word, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		token := strings.TrimSpace(b.Word)
		if token == "" {
			continue
		}
		conf := b.Confidence / 100.0
		sum += conf
		words = append(words, Word{
			Text: token,
			Bounds: Region{
				X:      float64(b.Box.Min.X),
				Y:      float64(b.Box.Min.Y),
				Width:  float64(b.Box.Dx()),
				Height: float64(b.Box.Dy()),
			},
			Confidence: conf,
		})
	}
	if len(words) == 0 {
		return nil, 0
	}
	return words, sum / float64(len(words))
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
