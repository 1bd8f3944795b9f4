// Package imaging decodes posted canvas snapshots and normalizes them to PNG
// before they are forwarded to a model.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels: выше этого изображение уменьшается перед отправкой в модель.
const DefaultMaxPixels = 18_000_000

// decodeFactor: во сколько раз исходник может превышать maxPixels. Больше не декодируем.
const decodeFactor = 4

var ErrBadImage = errors.New("bad image")

// DecodeDataURL декодирует base64. Если это data:URI, вернёт MIME из префикса.
func DecodeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var hintMIME string
	if len(s) >= 5 && strings.EqualFold(s[:5], "data:") {
		// data:<mime>;base64,<payload>
		if idx := strings.IndexByte(s, ','); idx > 0 {
			meta := s[len("data:"):idx]
			if semi := strings.IndexByte(meta, ';'); semi >= 0 {
				hintMIME = meta[:semi]
			} else {
				hintMIME = meta
			}
			s = s[idx+1:]
		}
	}
	if s == "" {
		return nil, "", fmt.Errorf("%w: empty payload", ErrBadImage)
	}
	// Стандартная база64, затем URL-safe и варианты без паддинга
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil && len(b) > 0 {
			return b, hintMIME, nil
		}
	}
	return nil, "", fmt.Errorf("%w: invalid base64", ErrBadImage)
}

// SniffMIME: сначала подсказка из data:URI, иначе детектим по байтам.
func SniffMIME(hint string, data []byte) string {
	if h := strings.TrimSpace(hint); h != "" {
		return strings.ToLower(h)
	}
	return http.DetectContentType(data)
}

// ToPNG decodes any supported raster (png, jpeg, gif, webp, bmp, tiff) and
// re-encodes it as PNG. Images larger than maxPixels are downscaled first;
// maxPixels <= 0 falls back to DefaultMaxPixels. Sources above decodeFactor*maxPixels
// are rejected from the header alone.
func ToPNG(data []byte, maxPixels int) ([]byte, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); cfg.Width <= 0 || cfg.Height <= 0 || px > int64(decodeFactor)*int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrBadImage, cfg.Width, cfg.Height, decodeFactor*maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	img = Fit(img, maxPixels)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Fit уменьшает изображение до maxPixels с сохранением пропорций.
func Fit(img image.Image, maxPixels int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxPixels <= 0 || w*h <= maxPixels {
		return img
	}
	scale := math.Sqrt(float64(maxPixels) / float64(w*h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
