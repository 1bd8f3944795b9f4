package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"math-canvas/api/internal/calcclient"
	"math-canvas/api/internal/canvas"
	"math-canvas/api/internal/config"
	"math-canvas/api/internal/logger"
	"math-canvas/api/internal/script"
	"math-canvas/api/internal/session"
)

func main() {
	scriptPath := flag.String("script", "canvas.yaml", "YAML action script")
	outDir := flag.String("out", "snapshots", "directory for snapshot PNGs")
	llmName := flag.String("llm", "", "llm_name sent to the backend (gemini|gpt)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("logger")
	}

	s, err := script.Load(*scriptPath)
	if err != nil {
		log.Fatal().Err(err).Msg("script")
	}

	client := calcclient.New(cfg.BackendURL).WithLLM(*llmName)
	sess := session.New(
		canvas.New(s.Width, s.Height),
		client,
		session.WithDisplayDelay(cfg.DisplayDelay),
		session.WithLogger(log.Logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("backend", cfg.BackendURL).
		Str("script", *scriptPath).
		Int("actions", len(s.Actions)).
		Msg("replaying canvas script")
	if err := script.NewRunner(sess, *outDir).Run(ctx, s); err != nil {
		log.Fatal().Err(err).Msg("script failed")
	}
}
