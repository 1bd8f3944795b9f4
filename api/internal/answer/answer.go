// Package answer turns the model's free-form reply into normalized answer records.
package answer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"math-canvas/api/internal/calc/types"
)

// ErrUnparsable: ответ модели не удалось прочитать как JSON-массив записей.
var ErrUnparsable = errors.New("upstream response unparsable")

// StripCodeFences снимает ```json ... ``` обёртку, если модель её всё-таки добавила.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Parse decodes the model text into raw records. A single JSON object is
// accepted as a one-element list; non-object array items are skipped.
// Anything that is not valid JSON, or not an array/object, wraps ErrUnparsable.
func Parse(text string) ([]map[string]any, error) {
	s := StripCodeFences(text)
	if s == "" {
		return nil, fmt.Errorf("%w: empty text", ErrUnparsable)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrUnparsable)
	}

	switch t := x.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for i, it := range t {
			obj, ok := it.(map[string]any)
			if !ok {
				log.Warn().Int("item", i).Str("type", fmt.Sprintf("%T", it)).Msg("skip non-object answer item")
				continue
			}
			out = append(out, obj)
		}
		return out, nil
	case map[string]any:
		return []map[string]any{t}, nil
	default:
		return nil, fmt.Errorf("%w: got %T, want array", ErrUnparsable, x)
	}
}

// Normalize приводит сырые записи к {expr, result, assign}.
// assign по умолчанию false; "true"/"false" строкой тоже понимаем.
func Normalize(raw []map[string]any) []types.Answer {
	out := make([]types.Answer, 0, len(raw))
	for _, m := range raw {
		a := types.Answer{
			Expr:   types.FromAny(m["expr"]).String(),
			Result: types.FromAny(m["result"]),
		}
		switch v := m["assign"].(type) {
		case bool:
			a.Assign = v
		case string:
			a.Assign = strings.EqualFold(strings.TrimSpace(v), "true")
		}
		out = append(out, a)
	}
	return out
}

// Decode = Parse + Normalize.
func Decode(text string) ([]types.Answer, error) {
	raw, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}
