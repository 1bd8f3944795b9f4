// Package session держит состояние одной вкладки канваса: пиксели, переменные,
// оверлеи с ответами и очередь отложенного показа.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"math-canvas/api/internal/calc/types"
	"math-canvas/api/internal/canvas"
)

const DefaultDisplayDelay = time.Second

// DefaultAnchor: позиция оверлея до первого сабмита с чернилами.
var DefaultAnchor = canvas.Point{X: 10, Y: 200}

var ErrNoOverlay = errors.New("no such overlay")

// Calculator: единственный сетевой вызов UI (calcclient.Client).
type Calculator interface {
	Calculate(ctx context.Context, image string, vars types.Variables) ([]types.Answer, error)
}

type Overlay struct {
	Expr     string
	Result   types.Value
	Text     string
	Position canvas.Point
}

// Label: plain-текст для растрового рендера.
func (o Overlay) Label() string {
	return o.Expr + " = " + o.Result.String()
}

// LatexText: то, что показывается поверх канваса.
func LatexText(expr string, result types.Value) string {
	return fmt.Sprintf(`\(\LARGE{%s = %s}\)`, expr, result.String())
}

type pending struct {
	due    time.Time
	answer types.Answer
	anchor canvas.Point
}

type drag struct {
	index  int
	offset canvas.Point
	active bool
}

type Session struct {
	canvas *canvas.Canvas
	calc   Calculator
	delay  time.Duration
	log    zerolog.Logger

	vars     types.Variables
	overlays []Overlay
	last     *types.Answer
	anchor   canvas.Point
	queue    []pending
	drag     drag
}

type Option func(*Session)

func WithDisplayDelay(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.delay = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func New(c *canvas.Canvas, calc Calculator, opts ...Option) *Session {
	s := &Session{
		canvas: c,
		calc:   calc,
		delay:  DefaultDisplayDelay,
		log:    log.Logger,
		vars:   types.Variables{},
		anchor: DefaultAnchor,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) Canvas() *canvas.Canvas { return s.canvas }
func (s *Session) Anchor() canvas.Point   { return s.anchor }
func (s *Session) Pending() int           { return len(s.queue) }

func (s *Session) Variables() types.Variables { return s.vars.Clone() }

func (s *Session) Overlays() []Overlay {
	out := make([]Overlay, len(s.overlays))
	copy(out, s.overlays)
	return out
}

// LastAnswer: последний показанный ответ.
func (s *Session) LastAnswer() (types.Answer, bool) {
	if s.last == nil {
		return types.Answer{}, false
	}
	return *s.last, true
}

func (s *Session) StartStroke(p canvas.Point)       { s.canvas.StartStroke(p) }
func (s *Session) ExtendStroke(p canvas.Point) bool { return s.canvas.ExtendStroke(p) }
func (s *Session) EndStroke()                       { s.canvas.EndStroke() }
func (s *Session) SelectColor(hex string) error     { return s.canvas.SetColor(hex) }

// Reset стирает всё: пиксели, оверлеи, очередь показа и переменные.
func (s *Session) Reset() {
	if s.canvas.Drawing() {
		s.canvas.EndStroke()
	}
	s.canvas.Clear()
	s.overlays = nil
	s.queue = nil
	s.last = nil
	s.vars = types.Variables{}
	s.anchor = DefaultAnchor
	s.drag = drag{}
}

// Submit отправляет текущий канвас с копией переменных. При ошибке состояние не меняется.
func (s *Session) Submit(ctx context.Context, now time.Time) ([]types.Answer, error) {
	img, err := s.canvas.DataURL()
	if err != nil {
		s.log.Error().Err(err).Msg("canvas encode failed")
		return nil, fmt.Errorf("encode canvas: %w", err)
	}
	answers, err := s.calc.Calculate(ctx, img, s.vars.Clone())
	if err != nil {
		s.log.Error().Err(err).Msg("calculate failed")
		return nil, err
	}

	assigned := s.vars.Merge(answers)
	if r, ok := s.canvas.InkBounds(); ok {
		s.anchor = inkCenter(r)
	}
	for i, a := range answers {
		s.queue = append(s.queue, pending{
			due:    now.Add(time.Duration(i+1) * s.delay),
			answer: a,
			anchor: s.anchor,
		})
	}
	sort.SliceStable(s.queue, func(i, j int) bool { return s.queue[i].due.Before(s.queue[j].due) })

	s.log.Debug().
		Int("answers", len(answers)).
		Int("assigned", assigned).
		Float64("anchor_x", s.anchor.X).
		Float64("anchor_y", s.anchor.Y).
		Msg("submit ok")
	return answers, nil
}

// inkCenter: центр bbox в координатах включительных границ.
func inkCenter(r image.Rectangle) canvas.Point {
	return canvas.Point{
		X: float64(r.Min.X+r.Max.X-1) / 2,
		Y: float64(r.Min.Y+r.Max.Y-1) / 2,
	}
}

// NextDue: время следующего показа, если очередь не пуста.
func (s *Session) NextDue() (time.Time, bool) {
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].due, true
}

// Advance показывает все наступившие ответы по порядку; каждый показ стирает пиксели.
func (s *Session) Advance(now time.Time) []Overlay {
	var shown []Overlay
	for len(s.queue) > 0 && !s.queue[0].due.After(now) {
		p := s.queue[0]
		s.queue = s.queue[1:]

		o := Overlay{
			Expr:     p.answer.Expr,
			Result:   p.answer.Result,
			Text:     LatexText(p.answer.Expr, p.answer.Result),
			Position: p.anchor,
		}
		s.overlays = append(s.overlays, o)
		a := p.answer
		s.last = &a
		s.canvas.Clear()
		shown = append(shown, o)
	}
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return shown
}

// PressOverlay начинает перетаскивание оверлея i из точки p.
func (s *Session) PressOverlay(i int, p canvas.Point) error {
	if i < 0 || i >= len(s.overlays) {
		return fmt.Errorf("%w: %d", ErrNoOverlay, i)
	}
	s.drag = drag{index: i, offset: p.Sub(s.overlays[i].Position), active: true}
	return nil
}

func (s *Session) DragTo(p canvas.Point) bool {
	if !s.drag.active {
		return false
	}
	s.overlays[s.drag.index].Position = p.Sub(s.drag.offset)
	return true
}

func (s *Session) Release() {
	s.drag = drag{}
}

// OverlayAt: верхний оверлей под точкой p.
func (s *Session) OverlayAt(p canvas.Point) (int, bool) {
	for i := len(s.overlays) - 1; i >= 0; i-- {
		if image.Pt(int(p.X), int(p.Y)).In(labelRect(s.overlays[i])) {
			return i, true
		}
	}
	return -1, false
}

func labelRect(o Overlay) image.Rectangle {
	w := utf8.RuneCountInString(o.Label())*glyphWidth + 2*labelPadding
	h := glyphHeight + 2*labelPadding
	x, y := int(o.Position.X), int(o.Position.Y)
	return image.Rect(x, y, x+w, y+h)
}
