package ocr

import (
	"sort"
	"strings"
)

// groupLines reconstructs reading-order lines from word boxes. Tesseract's
// word iterator already yields words roughly top-to-bottom, left-to-right, but
// the grouping here only relies on geometry: two words belong to the same line
// when their vertical extents overlap by at least half of the smaller height.
func groupLines(words []Word) []Line {
	if len(words) == 0 {
		return nil
	}

	sorted := make([]Word, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Bounds, sorted[j].Bounds
		if sameBaseline(a, b) {
			return a.X < b.X
		}
		return a.Y < b.Y
	})

	var lines []Line
	var current []Word
	for _, w := range sorted {
		if len(current) == 0 || sameBaseline(current[len(current)-1].Bounds, w.Bounds) {
			current = append(current, w)
			continue
		}
		lines = append(lines, buildLine(current))
		current = []Word{w}
	}
	lines = append(lines, buildLine(current))
	return lines
}

func sameBaseline(a, b Region) bool {
	top := max64(a.Y, b.Y)
	bottom := min64(a.Y+a.Height, b.Y+b.Height)
	overlap := bottom - top
	if overlap <= 0 {
		return false
	}
	smaller := min64(a.Height, b.Height)
	return overlap >= smaller/2
}

func buildLine(words []Word) Line {
	texts := make([]string, len(words))
	var sum float64
	bounds := words[0].Bounds
	for i, w := range words {
		texts[i] = w.Text
		sum += w.Confidence
		bounds = union(bounds, w.Bounds)
	}
	return Line{
		Text:       strings.Join(texts, " "),
		Bounds:     bounds,
		Words:      words,
		Confidence: sum / float64(len(words)),
	}
}

func union(a, b Region) Region {
	x := min64(a.X, b.X)
	y := min64(a.Y, b.Y)
	return Region{
		X:      x,
		Y:      y,
		Width:  max64(a.X+a.Width, b.X+b.Width) - x,
		Height: max64(a.Y+a.Height, b.Y+b.Height) - y,
	}
}

func joinLines(lines []Line) string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
