// Package ocr defines the recognition engine contract and its result model.
//
// The service never implements detection or recognition itself; engines wrap
// external OCR backends (Tesseract today) behind a one-page-in, one-result-out
// interface so the processing pipeline and tests stay independent of the
// backend.
package ocr

import "context"

// Region is a rectangular area in pixel coordinates, origin at the upper-left
// corner of the page image.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Normalize maps the region into [0,1] coordinates relative to an image of the
// given pixel size, as [[xmin,ymin],[xmax,ymax]].
func (r Region) Normalize(width, height int) [2][2]float64 {
	if width <= 0 || height <= 0 {
		return [2][2]float64{}
	}
	w := float64(width)
	h := float64(height)
	return [2][2]float64{
		{clamp01(r.X / w), clamp01(r.Y / h)},
		{clamp01((r.X + r.Width) / w), clamp01((r.Y + r.Height) / h)},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Word is a single recognized token with its pixel bounds and a confidence
// normalized to [0,1].
type Word struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// Line groups words that share a baseline, in reading order.
type Line struct {
	Text       string
	Bounds     Region
	Words      []Word
	Confidence float64
}

// PageImage is a single rasterized PDF page submitted for recognition.
type PageImage struct {
	// Path points at the encoded page image on disk.
	Path string
	// PageNumber is the 1-indexed page the image was rendered from.
	PageNumber int
	// DPI is the resolution the page was rasterized at; engines use it for
	// scaling heuristics. Zero means unknown.
	DPI int
	// Languages lists trained-data hints (e.g. "eng", "deu"). Empty means the
	// engine default.
	Languages []string
}

// Result is the recognition output for one page image.
type Result struct {
	// PlainText is the linearized page text, lines joined with newlines.
	PlainText string
	// Words carries the word-level layout with positions and confidences.
	Words []Word
	// Lines is the same layout grouped by baseline.
	Lines []Line
	// Width and Height are the pixel dimensions of the recognized image.
	Width  int
	Height int
	// MeanConfidence averages word confidences over the page, [0,1].
	MeanConfidence float64
}

// Engine is the OCR provider contract.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, page PageImage) (Result, error)
}
