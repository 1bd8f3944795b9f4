package handle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"math-canvas/api/internal/calc"
	"math-canvas/api/internal/calc/types"
	"math-canvas/api/internal/imaging"
)

type fakeEngine struct {
	reply string
	err   error

	calls    int
	prompt   string
	png      []byte
	deadline time.Time
}

func (f *fakeEngine) Name() string     { return "fake" }
func (f *fakeEngine) GetModel() string { return "fake-1" }
func (f *fakeEngine) Generate(ctx context.Context, prompt string, png []byte) (string, error) {
	f.calls++
	f.prompt = prompt
	f.png = png
	f.deadline, _ = ctx.Deadline()
	return f.reply, f.err
}

func blankDataURL(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 16))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func postCalculate(t *testing.T, h *Handle, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/calculate", bytes.NewReader(b))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.Calculate(rec, req)
	return rec
}

func decodeSuccess(t *testing.T, rec *httptest.ResponseRecorder) (map[string]any, []map[string]any) {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data, ok := env["data"].([]any)
	require.True(t, ok, "data must be an array: %s", rec.Body.String())
	out := make([]map[string]any, 0, len(data))
	for _, d := range data {
		out = append(out, d.(map[string]any))
	}
	return env, out
}

func newHandle(eng calc.Engine, opts Options) *Handle {
	return New(&calc.Engines{Gemini: eng}, opts)
}

func TestCalculateEmptyVarsReturnsArray(t *testing.T) {
	eng := &fakeEngine{reply: `[{"expr": "2 + 2", "result": 4}]`}
	rec := postCalculate(t, newHandle(eng, Options{}), map[string]any{"image": blankDataURL(t), "dict_of_vars": map[string]any{}}, nil)

	env, data := decodeSuccess(t, rec)
	assert.Equal(t, "success", env["status"])
	assert.Equal(t, "Image processed", env["message"])
	require.Len(t, data, 1)
	assert.Equal(t, "2 + 2", data[0]["expr"])
	assert.Equal(t, 4.0, data[0]["result"])
	assert.Equal(t, false, data[0]["assign"])
	assert.Equal(t, 1, eng.calls)
}

func TestCalculateAssignAlwaysBoolean(t *testing.T) {
	eng := &fakeEngine{reply: `[{"expr": "x", "result": 6, "assign": true}, {"expr": "y", "result": "4 cm"}]`}
	rec := postCalculate(t, newHandle(eng, Options{}), map[string]any{"image": blankDataURL(t)}, nil)

	_, data := decodeSuccess(t, rec)
	require.Len(t, data, 2)
	for _, d := range data {
		_, isBool := d["assign"].(bool)
		assert.True(t, isBool, "assign must be boolean: %v", d)
	}
	assert.Equal(t, true, data[0]["assign"])
	assert.Equal(t, false, data[1]["assign"])
}

func TestCalculateUnparsableReplyDegradesToEmpty(t *testing.T) {
	eng := &fakeEngine{reply: "Sorry, I cannot read this drawing."}
	rec := postCalculate(t, newHandle(eng, Options{}), map[string]any{"image": blankDataURL(t), "dict_of_vars": map[string]any{}}, nil)

	_, data := decodeSuccess(t, rec)
	assert.Empty(t, data)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestCalculateStrictParse(t *testing.T) {
	eng := &fakeEngine{reply: "not json"}
	rec := postCalculate(t, newHandle(eng, Options{StrictParse: true}), map[string]any{"image": blankDataURL(t)}, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "upstream response unparsable", body.Message)
}

func TestCalculateEngineErrorIs500(t *testing.T) {
	eng := &fakeEngine{err: errors.New("connection reset by peer")}
	rec := postCalculate(t, newHandle(eng, Options{}), map[string]any{"image": blankDataURL(t)}, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.ErrorResponse{Status: "error", Message: "Error processing image", Error: "connection reset by peer"}, body)
}

func TestCalculateForwardsPNGAndVariables(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	src.Set(1, 1, color.White)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	eng := &fakeEngine{reply: `[]`}
	rec := postCalculate(t, newHandle(eng, Options{}), map[string]any{
		"image":        dataURL,
		"dict_of_vars": map[string]any{"x": 5, "y": "4 cm"},
	}, nil)
	decodeSuccess(t, rec)

	assert.Equal(t, "image/png", imaging.SniffMIME("", eng.png))
	assert.Contains(t, eng.prompt, `{"x":5,"y":"4 cm"}`)
	assert.True(t, eng.deadline.IsZero(), "no deadline by default")
}

func TestCalculateRequestTimeoutHeader(t *testing.T) {
	eng := &fakeEngine{reply: `[]`}
	rec := postCalculate(t, newHandle(eng, Options{}), map[string]any{"image": blankDataURL(t)},
		http.Header{"X-Request-Timeout": []string{"30"}})
	decodeSuccess(t, rec)

	require.False(t, eng.deadline.IsZero())
	assert.WithinDuration(t, time.Now().Add(30*time.Second), eng.deadline, 5*time.Second)
}

func TestCalculateBadRequests(t *testing.T) {
	eng := &fakeEngine{reply: `[]`}
	h := newHandle(eng, Options{})

	rec := httptest.NewRecorder()
	h.Calculate(rec, httptest.NewRequest(http.MethodPost, "/calculate", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postCalculate(t, h, map[string]any{"image": "data:image/png;base64,%%%"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postCalculate(t, h, map[string]any{"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not a png"))}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postCalculate(t, h, map[string]any{"image": blankDataURL(t), "llm_name": "deepseek"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Zero(t, eng.calls)
}

func TestCalculateEngineNotConfiguredIs400(t *testing.T) {
	eng := &fakeEngine{reply: `[]`}
	rec := postCalculate(t, newHandle(eng, Options{}), map[string]any{"image": blankDataURL(t), "llm_name": "gpt"}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "engine is not configured: gpt", body["error"])
	assert.Zero(t, eng.calls)
}

func TestIndexAndHealthz(t *testing.T) {
	h := newHandle(&fakeEngine{}, Options{})

	rec := httptest.NewRecorder()
	h.Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello World", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRequestDeadline(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/calculate?timeoutSec=7", nil)
	assert.Equal(t, 7*time.Second, requestDeadline(r, 0))

	r = httptest.NewRequest(http.MethodPost, "/calculate", nil)
	r.Header.Set("X-Request-Timeout", "nope")
	assert.Equal(t, 3*time.Second, requestDeadline(r, 3*time.Second))
}
