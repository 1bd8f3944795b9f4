// Package script прогоняет записанный сценарий действий пользователя (YAML)
// через session.Session: выбор цвета, штрихи, отправка, ожидание, перетаскивание.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"math-canvas/api/internal/canvas"
	"math-canvas/api/internal/session"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

type Script struct {
	Width   int      `yaml:"width"`
	Height  int      `yaml:"height"`
	Actions []Action `yaml:"actions"`
}

// Action: ровно одно действие на элемент списка.
type Action struct {
	Color    string        `yaml:"color,omitempty"`
	Stroke   [][2]float64  `yaml:"stroke,omitempty"`
	Submit   bool          `yaml:"submit,omitempty"`
	Wait     time.Duration `yaml:"wait,omitempty"`
	Drag     *Drag         `yaml:"drag,omitempty"`
	Reset    bool          `yaml:"reset,omitempty"`
	Snapshot string        `yaml:"snapshot,omitempty"`
}

// Drag: без Overlay берётся верхний оверлей под From.
type Drag struct {
	Overlay *int       `yaml:"overlay,omitempty"`
	From    [2]float64 `yaml:"from"`
	To      [2]float64 `yaml:"to"`
}

var ErrBadAction = errors.New("action must set exactly one of color, stroke, submit, wait, drag, reset, snapshot")

func (a Action) kinds() int {
	n := 0
	for _, set := range []bool{a.Color != "", len(a.Stroke) > 0, a.Submit, a.Wait > 0, a.Drag != nil, a.Reset, a.Snapshot != ""} {
		if set {
			n++
		}
	}
	return n
}

func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading script file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}
	if s.Width <= 0 {
		s.Width = DefaultWidth
	}
	if s.Height <= 0 {
		s.Height = DefaultHeight
	}
	for i, a := range s.Actions {
		if a.kinds() != 1 {
			return nil, fmt.Errorf("action %d: %w", i, ErrBadAction)
		}
	}
	return &s, nil
}

// Runner исполняет сценарий на виртуальных часах; wait сдвигает время и показывает созревшие ответы.
type Runner struct {
	Session *session.Session
	OutDir  string
	Now     time.Time
	Log     zerolog.Logger
}

func NewRunner(sess *session.Session, outDir string) *Runner {
	return &Runner{Session: sess, OutDir: outDir, Now: time.Now(), Log: log.Logger}
}

// Run останавливается на первой ошибке, кроме ошибок submit: они логируются, сценарий идёт дальше.
func (r *Runner) Run(ctx context.Context, s *Script) error {
	for i, a := range s.Actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.step(ctx, a); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func (r *Runner) step(ctx context.Context, a Action) error {
	sess := r.Session
	switch {
	case a.Color != "":
		return sess.SelectColor(a.Color)
	case len(a.Stroke) > 0:
		sess.StartStroke(pt(a.Stroke[0]))
		for _, p := range a.Stroke[1:] {
			sess.ExtendStroke(pt(p))
		}
		sess.EndStroke()
	case a.Submit:
		answers, err := sess.Submit(ctx, r.Now)
		if err != nil {
			r.Log.Warn().Err(err).Msg("submit failed; canvas kept")
			return nil
		}
		ev := r.Log.Info().Int("answers", len(answers)).Int("pending", sess.Pending())
		if due, ok := sess.NextDue(); ok {
			ev = ev.Dur("next_in", due.Sub(r.Now))
		}
		ev.Msg("submitted")
	case a.Wait > 0:
		r.Now = r.Now.Add(a.Wait)
		for _, o := range sess.Advance(r.Now) {
			r.Log.Info().Str("text", o.Text).Msg("overlay shown")
		}
		if last, ok := sess.LastAnswer(); ok {
			r.Log.Debug().Str("expr", last.Expr).Stringer("result", last.Result).Int("pending", sess.Pending()).Msg("last answer")
		}
	case a.Drag != nil:
		return r.drag(*a.Drag)
	case a.Reset:
		sess.Reset()
	case a.Snapshot != "":
		return r.snapshot(a.Snapshot)
	}
	return nil
}

func (r *Runner) drag(d Drag) error {
	from := pt(d.From)
	idx := -1
	if d.Overlay != nil {
		idx = *d.Overlay
	} else if i, ok := r.Session.OverlayAt(from); ok {
		idx = i
	}
	if err := r.Session.PressOverlay(idx, from); err != nil {
		return err
	}
	r.Session.DragTo(pt(d.To))
	r.Session.Release()
	return nil
}

func (r *Runner) snapshot(name string) error {
	path := name
	if !filepath.IsAbs(path) && r.OutDir != "" {
		path = filepath.Join(r.OutDir, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.Session.Render()); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	r.Log.Info().Str("path", path).Msg("snapshot written")
	return nil
}

func pt(p [2]float64) canvas.Point { return canvas.Point{X: p[0], Y: p[1]} }
