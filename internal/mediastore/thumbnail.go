package mediastore

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

const (
	thumbMaxDim  = 150
	thumbQuality = 80
)

// SaveThumbnail decodes an image payload and writes a bounded JPEG
// thumbnail next to the full media file, named thumb_<base>.jpg.
func (s *Store) SaveThumbnail(mediaName string, data []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return "", fmt.Errorf("image has empty bounds")
	}

	// Fit within thumbMaxDim on the longer side, never upscaling.
	tw, th := w, h
	if w > thumbMaxDim || h > thumbMaxDim {
		if w >= h {
			tw = thumbMaxDim
			th = h * thumbMaxDim / w
		} else {
			th = thumbMaxDim
			tw = w * thumbMaxDim / h
		}
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	base := strings.TrimSuffix(sanitizeName(mediaName), filepath.Ext(mediaName))
	name := "thumb_" + base + ".jpg"

	f, err := os.Create(filepath.Join(s.root, name))
	if err != nil {
		return "", fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, dst, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return name, nil
}
