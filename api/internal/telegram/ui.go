package telegram

import (
	"sort"
	"strconv"
	"strings"

	"math-canvas/api/internal/calc/types"
)

const maxMessageLen = 3900

// лёгкое экранирование для Markdown
func esc(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "[", "\\[")
	return s
}

// formatAnswers: по строке "expr = result" на ответ; присваивания помечены.
func formatAnswers(answers []types.Answer) string {
	if len(answers) == 0 {
		return "Ничего не распознал. Попробуй сфотографировать крупнее."
	}
	var b strings.Builder
	for i, a := range answers {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(esc(a.Expr))
		b.WriteString(" = ")
		b.WriteString(esc(resultText(a.Result)))
		if a.Assign {
			b.WriteString(" 📌")
		}
	}
	return truncate(b.String())
}

func formatVars(vars types.Variables) string {
	if len(vars) == 0 {
		return "Переменных нет."
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("Переменные:")
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(esc(k))
		b.WriteString(" = ")
		b.WriteString(esc(varText(vars[k])))
	}
	return truncate(b.String())
}

func resultText(v types.Value) string {
	if v.IsZero() {
		return "?"
	}
	return v.String()
}

// varText: строки в кавычках, чтобы "5" и 5 различались в /vars.
func varText(v types.Value) string {
	if v.IsNumber() {
		return v.String()
	}
	return strconv.Quote(v.String())
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	cut := maxMessageLen
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
