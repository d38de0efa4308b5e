package history

import (
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"
)

const (
	thumbnailWidth   = 400
	thumbnailQuality = 80
)

// SaveThumbnail writes a width-bounded JPEG thumbnail of the image at src to
// dest, preserving aspect ratio. Images at or below the target width are kept
// at their original size.
func SaveThumbnail(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open page image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode page image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width > thumbnailWidth {
		scaled := image.NewRGBA(image.Rect(0, 0, thumbnailWidth, thumbnailWidth*height/width))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, xdraw.Src, nil)
		img = scaled
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create thumbnail directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return nil
}
