package session_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"math-canvas/api/internal/calc"
	"math-canvas/api/internal/calc/types"
	"math-canvas/api/internal/calcclient"
	"math-canvas/api/internal/canvas"
	"math-canvas/api/internal/handle"
	"math-canvas/api/internal/httpserver"
	"math-canvas/api/internal/session"
)

type recordingEngine struct {
	mu      sync.Mutex
	replies []string
	prompts []string
	pngs    [][]byte
}

func (e *recordingEngine) seen() ([]string, [][]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.prompts...), append([][]byte(nil), e.pngs...)
}

func (e *recordingEngine) Name() string     { return "gemini" }
func (e *recordingEngine) GetModel() string { return "fake-1" }
func (e *recordingEngine) Generate(_ context.Context, prompt string, png []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompts = append(e.prompts, prompt)
	e.pngs = append(e.pngs, png)
	if len(e.replies) == 0 {
		return "[]", nil
	}
	r := e.replies[0]
	e.replies = e.replies[1:]
	return r, nil
}

type wireRequest struct {
	Image      string          `json:"image"`
	DictOfVars json.RawMessage `json:"dict_of_vars"`
}

// backend поднимает настоящие роуты бэкенда и записывает тела POST /calculate.
type backend struct {
	srv    *httptest.Server
	engine *recordingEngine

	mu       sync.Mutex
	requests []wireRequest
}

func newBackend(t *testing.T, replies ...string) *backend {
	t.Helper()
	b := &backend{engine: &recordingEngine{replies: replies}}
	h := handle.New(&calc.Engines{Gemini: b.engine}, handle.Options{})
	routes := httpserver.Wrap(httpserver.Routes(h, false), zerolog.Nop(), nil)

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/calculate" {
			raw, err := io.ReadAll(r.Body)
			var wr wireRequest
			if err == nil {
				err = json.Unmarshal(raw, &wr)
			}
			if !assert.NoError(t, err) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			b.mu.Lock()
			b.requests = append(b.requests, wr)
			b.mu.Unlock()
			r.Body = io.NopCloser(bytes.NewReader(raw))
		}
		routes.ServeHTTP(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) posts() []wireRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]wireRequest(nil), b.requests...)
}

func TestRoundTrip_BlankCanvasSendsTransparentPNG(t *testing.T) {
	be := newBackend(t)
	s := session.New(canvas.New(400, 300), calcclient.New(be.srv.URL), session.WithLogger(zerolog.Nop()))

	answers, err := s.Submit(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, answers)
	assert.Zero(t, s.Pending())

	posts := be.posts()
	require.Len(t, posts, 1)
	assert.JSONEq(t, `{}`, string(posts[0].DictOfVars))

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(posts[0].Image, prefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(posts[0].Image, prefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y += 7 {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x += 7 {
			_, _, _, a := img.At(x, y).RGBA()
			require.Zero(t, a, "pixel %d,%d", x, y)
		}
	}

	prompts, pngs := be.engine.seen()
	require.Len(t, pngs, 1)
	_, err = png.Decode(bytes.NewReader(pngs[0]))
	assert.NoError(t, err)
	assert.Contains(t, prompts[0], "{}")
}

func TestRoundTrip_AssignmentCarriedToNextRequest(t *testing.T) {
	be := newBackend(t,
		`[{"expr": "x", "result": 5, "assign": true}]`,
		"```json\n[{\"expr\": \"x + 2\", \"result\": 7}]\n```",
	)
	s := session.New(canvas.New(400, 300), calcclient.New(be.srv.URL),
		session.WithLogger(zerolog.Nop()), session.WithDisplayDelay(time.Second))

	s.StartStroke(canvas.Point{X: 100, Y: 100})
	s.ExtendStroke(canvas.Point{X: 200, Y: 120})
	s.EndStroke()

	now := time.Now()
	answers, err := s.Submit(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.True(t, answers[0].Assign)

	_, err = s.Submit(context.Background(), now)
	require.NoError(t, err)

	posts := be.posts()
	require.Len(t, posts, 2)
	assert.JSONEq(t, `{}`, string(posts[0].DictOfVars))
	assert.JSONEq(t, `{"x": 5}`, string(posts[1].DictOfVars))

	vars := s.Variables()
	assert.True(t, vars["x"].Equal(types.Int(5)))

	shown := s.Advance(now.Add(time.Second))
	require.Len(t, shown, 2)
	labels := []string{shown[0].Label(), shown[1].Label()}
	assert.ElementsMatch(t, []string{`x = 5`, `x + 2 = 7`}, labels)
}
