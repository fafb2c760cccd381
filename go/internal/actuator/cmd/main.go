package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcdev12/fakemouse/go/internal/actuator"
	"github.com/mcdev12/fakemouse/go/internal/channel"
	"github.com/mcdev12/fakemouse/go/internal/clock"
	"github.com/mcdev12/fakemouse/go/internal/config"
	"github.com/mcdev12/fakemouse/go/internal/surface"
	"github.com/rs/zerolog/log"
)

func main() {
	config.LoadEnv()

	cfg, err := config.LoadActuator()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid actuator configuration")
	}
	config.SetupLogging(cfg.LogLevel)

	page, err := loadPage(cfg.PagePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load page")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clk := clock.Real()
	pointer := actuator.NewPointer(page)
	automaton := actuator.NewAutomaton(
		actuator.AutomatonConfigFrom(cfg), page, pointer, clk, actuator.NewRandSource(cfg.Seed),
	)
	defer automaton.Stop()

	var engine *actuator.Engine
	client := channel.NewClient(channel.Config{
		URL:               cfg.RelayURL,
		DiscoveryService:  cfg.DiscoveryService,
		ReconnectInterval: cfg.ReconnectInterval,
		OnConnect:         func() { engine.Reconnected() },
	}, func(ctx context.Context, raw []byte) {
		engine.HandleFrame(ctx, raw)
	})
	engine = actuator.NewEngine(page, pointer, client,
		actuator.WithClock(clk),
		actuator.WithIdleResetter(automaton),
	)

	automaton.Reset()

	log.Info().
		Str("page", cfg.PagePath).
		Dur("idle_min", cfg.IdleMin).
		Dur("idle_max", cfg.IdleMax).
		Int64("seed", cfg.Seed).
		Msg("actuator starting")

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("relay channel stopped")
	}
	log.Info().Msg("actuator shutdown complete")
}

func loadPage(path string) (*surface.Page, error) {
	if path != "" {
		return surface.LoadPage(path)
	}
	log.Warn().Msg("ACTUATOR_PAGE not set, using a blank page")
	return surface.NewPage(surface.PageSpec{
		Viewport: surface.Size{Width: 1280, Height: 800},
	})
}
