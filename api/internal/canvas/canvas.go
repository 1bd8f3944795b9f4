// Package canvas is the drawing surface of the math canvas: a transparent raster
// that freehand strokes are painted onto with a round 3px brush.
package canvas

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/draw"
	"image/png"
	"strings"

	"github.com/fogleman/gg"
)

const (
	DefaultColor = "#ffffff"
	Background   = "#000000"
	LineWidth    = 3
)

// Swatches: палитра кистей; чёрный и белый входят явно.
var Swatches = []string{
	"#000000", // black
	"#ffffff", // white
	"#ee3333", // red
	"#e64980", // pink
	"#be4bdb", // purple
	"#893200", // brown
	"#228be6", // blue
	"#3333ee", // dark blue
	"#40c057", // green
	"#00aa00", // dark green
	"#fab005", // yellow
	"#fd7e14", // orange
}

var ErrUnknownColor = errors.New("color is not in the swatch set")

type Point struct {
	X, Y float64
}

func (p Point) Sub(o Point) Point { return Point{p.X - o.X, p.Y - o.Y} }

type Canvas struct {
	dc      *gg.Context
	color   string
	drawing bool
	last    Point
}

func New(width, height int) *Canvas {
	dc := gg.NewContext(width, height)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	dc.SetLineWidth(LineWidth)
	c := &Canvas{dc: dc}
	c.setBrush(DefaultColor)
	return c
}

func (c *Canvas) Width() int    { return c.dc.Width() }
func (c *Canvas) Height() int   { return c.dc.Height() }
func (c *Canvas) Color() string { return c.color }
func (c *Canvas) Drawing() bool { return c.drawing }
func (c *Canvas) Image() *image.RGBA {
	return c.dc.Image().(*image.RGBA)
}

// SetColor выбирает кисть из палитры. Цвет вне палитры отклоняется.
func (c *Canvas) SetColor(hex string) error {
	hex = strings.ToLower(strings.TrimSpace(hex))
	for _, s := range Swatches {
		if s == hex {
			c.setBrush(hex)
			return nil
		}
	}
	return ErrUnknownColor
}

func (c *Canvas) setBrush(hex string) {
	c.color = hex
	c.dc.SetHexColor(hex)
}

func (c *Canvas) StartStroke(p Point) {
	c.drawing = true
	c.last = p
}

// ExtendStroke рисует отрезок от предыдущей точки; вне активного штриха ничего не делает.
func (c *Canvas) ExtendStroke(p Point) bool {
	if !c.drawing {
		return false
	}
	c.dc.MoveTo(c.last.X, c.last.Y)
	c.dc.LineTo(p.X, p.Y)
	c.dc.Stroke()
	c.last = p
	return true
}

func (c *Canvas) EndStroke() {
	c.drawing = false
}

// Clear стирает все пиксели до полной прозрачности.
func (c *Canvas) Clear() {
	img := c.Image()
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// InkBounds: bounding box всех пикселей с alpha > 0 (Max не включительно).
func (c *Canvas) InkBounds() (image.Rectangle, bool) {
	img := c.Image()
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			if row[(x-b.Min.X)*4+3] == 0 {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

func (c *Canvas) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURL: то, что уходит в POST /calculate: data:image/png;base64,...
func (c *Canvas) DataURL() (string, error) {
	b, err := c.PNG()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}
