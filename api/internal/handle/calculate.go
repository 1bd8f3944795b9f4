package handle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"math-canvas/api/internal/answer"
	"math-canvas/api/internal/calc"
	"math-canvas/api/internal/calc/types"
	"math-canvas/api/internal/imaging"
)

const (
	msgProcessed  = "Image processed"
	msgFailed     = "Error processing image"
	msgBadRequest = "Bad request"
	msgUnparsable = "upstream response unparsable"
)

// Calculate: POST /calculate: data URL + dict_of_vars → [{expr, result, assign}].
func (h *Handle) Calculate(w http.ResponseWriter, r *http.Request) {
	var req types.CalculateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, msgBadRequest, fmt.Errorf("bad json: %w", err))
		return
	}

	raw, hint, err := imaging.DecodeDataURL(req.Image)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, msgBadRequest, err)
		return
	}
	png, err := imaging.ToPNG(raw, h.opts.MaxImagePixels)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, imaging.ErrBadImage) {
			code = http.StatusBadRequest
		}
		writeError(w, r, code, msgBadRequest, err)
		return
	}

	engine, err := h.engs.GetEngine(req.LLMName)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, calc.ErrUnknownEngine) || errors.Is(err, calc.ErrEngineNotConfigured) {
			code = http.StatusBadRequest
		}
		writeError(w, r, code, msgFailed, err)
		return
	}

	text, err := h.prompts.Build(req.DictOfVars)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, msgFailed, err)
		return
	}

	ctx := r.Context()
	if d := requestDeadline(r, h.opts.RequestTimeout); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	reply, err := engine.Generate(ctx, text, png)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, msgFailed, err)
		return
	}

	answers, err := answer.Decode(reply)
	if err != nil {
		if h.opts.StrictParse {
			writeError(w, r, http.StatusBadGateway, msgUnparsable, err)
			return
		}
		// мягкая деградация: клиент получает пустой список, а не ошибку
		hlog.FromRequest(r).Warn().Err(err).Str("engine", engine.Name()).Msg("parse model response")
		answers = []types.Answer{}
	}

	hlog.FromRequest(r).Info().
		Str("engine", engine.Name()).
		Str("model", engine.GetModel()).
		Str("src_mime", imaging.SniffMIME(hint, raw)).
		Int("vars", len(req.DictOfVars)).
		Int("answers", len(answers)).
		Msg("calculate")

	writeJSON(w, http.StatusOK, types.CalculateResponse{
		Status:  types.StatusSuccess,
		Message: msgProcessed,
		Data:    answers,
	})
}
