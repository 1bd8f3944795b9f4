package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"math-canvas/api/internal/calc"
	"math-canvas/api/internal/calc/gemini"
	"math-canvas/api/internal/calc/openai"
	"math-canvas/api/internal/config"
	"math-canvas/api/internal/handle"
	"math-canvas/api/internal/httpserver"
	"math-canvas/api/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("logger")
	}
	if err := config.Require("GEMINI_API_KEY"); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	engines := &calc.Engines{
		Gemini: gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel),
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		engines.OpenAI = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}

	h := handle.New(engines, handle.Options{
		PromptDir:      cfg.PromptDir,
		MaxImagePixels: cfg.MaxImagePixels,
		StrictParse:    cfg.StrictParse,
		RequestTimeout: cfg.RequestTimeout,
	})
	mux := httpserver.Routes(h, cfg.PromptDir != "")
	srv := httpserver.Wrap(mux, log.Logger, cfg.CORSOrigins)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	log.Info().
		Str("addr", addr).
		Str("gemini_model", cfg.GeminiModel).
		Bool("openai", engines.OpenAI != nil).
		Bool("strict_parse", cfg.StrictParse).
		Msg("calc-server starting")
	if err := httpserver.Start(ctx, addr, srv, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}
