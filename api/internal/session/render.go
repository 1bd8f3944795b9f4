package session

import (
	"image"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"math-canvas/api/internal/canvas"
)

const (
	glyphWidth   = 7
	glyphHeight  = 13
	labelPadding = 8
	labelColor   = "#ffffff"
)

// Render собирает экранный кадр: чёрный фон, чернила и подписи оверлеев.
func (s *Session) Render() image.Image {
	w, h := s.canvas.Width(), s.canvas.Height()
	dc := gg.NewContext(w, h)
	dc.SetHexColor(canvas.Background)
	dc.Clear()
	dc.DrawImage(s.canvas.Image(), 0, 0)

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetHexColor(labelColor)
	for _, o := range s.overlays {
		dc.DrawString(o.Label(), o.Position.X+labelPadding, o.Position.Y+labelPadding+float64(basicfont.Face7x13.Ascent))
	}
	return dc.Image()
}
