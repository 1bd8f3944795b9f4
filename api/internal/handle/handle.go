package handle

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"math-canvas/api/internal/calc"
	"math-canvas/api/internal/calc/types"
	"math-canvas/api/internal/prompt"
)

// maxBodyBytes: лимит тела запроса (data URL полноэкранного канваса).
const maxBodyBytes = 32 << 20

type Options struct {
	PromptDir      string
	MaxImagePixels int
	StrictParse    bool
	RequestTimeout time.Duration
}

type Handle struct {
	engs    *calc.Engines
	prompts prompt.Loader
	opts    Options
}

func New(engs *calc.Engines, opts Options) *Handle {
	return &Handle{
		engs:    engs,
		prompts: prompt.Loader{Dir: opts.PromptDir},
		opts:    opts,
	}
}

// Index: GET /, liveness greeting.
func (h *Handle) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello World"))
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, message string, err error) {
	hlog.FromRequest(r).Error().Err(err).Int("status", code).Msg(message)
	writeJSON(w, code, types.ErrorResponse{
		Status:  types.StatusError,
		Message: message,
		Error:   err.Error(),
	})
}

// requestDeadline: X-Request-Timeout (сек), затем ?timeoutSec=, иначе значение по умолчанию.
// 0: без дедлайна.
func requestDeadline(r *http.Request, def time.Duration) time.Duration {
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return def
}
