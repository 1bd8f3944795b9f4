package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var allowedNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// UpdateRequest Update API request payload.
type UpdateRequest struct {
	Name string `json:"name"` // filename WITHOUT extension (e.g. "calculate")
	Text string `json:"text"` // new prompt body
}

// UpdateResponse Update API response payload.
type UpdateResponse struct {
	OK      bool   `json:"ok"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Updated string `json:"updated_at"`
}

func (req *UpdateRequest) Validate() error {
	req.Name = strings.TrimSuffix(req.Name, ".prompt.txt")
	if req.Name == "" || !allowedNameRe.MatchString(req.Name) {
		return fmt.Errorf("invalid name: must be a simple basename without extension; allowed %q", allowedNameRe.String())
	}
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if len(req.Text) > 2*1024*1024 {
		return fmt.Errorf("text too large (max 2 MiB)")
	}
	if req.Name == Calculate && !strings.Contains(req.Text, varsPlaceholder) {
		return fmt.Errorf("calculate prompt must contain %s", varsPlaceholder)
	}
	return nil
}

// Save атомарно пишет <Dir>/<name>.prompt.txt: временный файл в той же папке, затем rename.
func (l Loader) Save(name, text string) (string, error) {
	if l.Dir == "" {
		return "", fmt.Errorf("prompt dir is not configured")
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("make dir: %w", err)
	}
	dst := filepath.Join(l.Dir, name+".prompt.txt")

	tmp, err := os.CreateTemp(l.Dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write temp: %w", err)
	}
	_ = tmp.Chmod(0o644)
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename: %w", err)
	}
	return dst, nil
}
