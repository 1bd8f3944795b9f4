package calc

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Engine: мультимодальная модель: промпт + одна PNG-картинка → свободный текст.
type Engine interface {
	Name() string
	GetModel() string
	Generate(ctx context.Context, prompt string, png []byte) (string, error)
}

var (
	ErrUnknownEngine       = errors.New("unknown llm_name; use 'gemini' or 'gpt'")
	ErrEngineNotConfigured = errors.New("engine is not configured")
)

type Engines struct {
	Gemini Engine
	OpenAI Engine
}

// GetEngine выбирает провайдера по llm_name; пустое имя: Gemini.
func (e *Engines) GetEngine(llmName string) (Engine, error) {
	var (
		eng  Engine
		name string
	)
	switch strings.ToLower(strings.TrimSpace(llmName)) {
	case "", "gemini":
		eng, name = e.Gemini, "gemini"
	case "gpt", "openai":
		eng, name = e.OpenAI, "gpt"
	default:
		return nil, ErrUnknownEngine
	}
	if eng == nil {
		return nil, fmt.Errorf("%w: %s", ErrEngineNotConfigured, name)
	}
	return eng, nil
}
