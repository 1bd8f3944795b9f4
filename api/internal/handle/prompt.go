package handle

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"math-canvas/api/internal/prompt"
)

// UpdatePrompt persists a new/updated prompt template into PROMPT_DIR
// (<dir>/<name>.prompt.txt) using an atomic rename. The next /calculate call picks it up.
func (h *Handle) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req prompt.UpdateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<20)) // 4 MiB limit
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	path, err := h.prompts.Save(req.Name, req.Text)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("name", req.Name).Msg("save prompt")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hlog.FromRequest(r).Info().Str("name", req.Name).Int("size", len(req.Text)).Msg("prompt updated")

	writeJSON(w, http.StatusOK, prompt.UpdateResponse{
		OK:      true,
		Name:    req.Name,
		Path:    path,
		Size:    len(req.Text),
		Updated: time.Now().UTC().Format(time.RFC3339),
	})
}
