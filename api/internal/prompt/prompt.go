// Package prompt builds the instruction text sent to the model with each canvas image.
package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"math-canvas/api/internal/calc/types"
)

const (
	// Calculate: имя промпта для /calculate.
	Calculate = "calculate"

	varsPlaceholder = "{{DICT_OF_VARS}}"
)

//go:embed calculate.prompt.txt
var calculateTemplate string

// Loader отдаёт шаблон промпта: сначала из Dir (<dir>/<name>.prompt.txt), иначе встроенный.
type Loader struct {
	Dir string
}

func (l Loader) Template(name string) (string, error) {
	if l.Dir != "" {
		p := filepath.Join(l.Dir, fmt.Sprintf("%s.prompt.txt", name))
		if b, err := os.ReadFile(p); err == nil && len(strings.TrimSpace(string(b))) > 0 {
			return strings.TrimSpace(string(b)), nil
		}
	}
	switch name {
	case Calculate:
		return strings.TrimSpace(calculateTemplate), nil
	default:
		return "", fmt.Errorf("prompt %q not found (dir=%q)", name, l.Dir)
	}
}

// Build подставляет сериализованный словарь переменных в шаблон.
// Ключи сортируются encoding/json, поэтому текст детерминирован.
func (l Loader) Build(vars types.Variables) (string, error) {
	tpl, err := l.Template(Calculate)
	if err != nil {
		return "", err
	}
	if vars == nil {
		vars = types.Variables{}
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("marshal dict_of_vars: %w", err)
	}
	return strings.ReplaceAll(tpl, varsPlaceholder, string(b)), nil
}
