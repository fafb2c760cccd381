package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcdev12/fakemouse/go/internal/channel"
	"github.com/mcdev12/fakemouse/go/internal/clock"
	"github.com/mcdev12/fakemouse/go/internal/config"
	"github.com/mcdev12/fakemouse/go/internal/sender"
	"github.com/rs/zerolog/log"
)

// The touch pad reads raw input events from stdin, one JSON object per line:
//
//	{"kind":"press","x":120,"y":300,"fingers":1}
//	{"kind":"release","x":121,"y":300}
//	{"kind":"orientation","orientation":{"alpha":10,"beta":45,"gamma":-3}}
func main() {
	config.LoadEnv()

	cfg, err := config.LoadSender()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid sender configuration")
	}
	config.SetupLogging(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var pad *sender.Touchpad
	client := channel.NewClient(channel.Config{
		URL:               cfg.RelayURL,
		DiscoveryService:  cfg.DiscoveryService,
		ReconnectInterval: cfg.ReconnectInterval,
	}, func(ctx context.Context, raw []byte) {
		pad.HandleFrame(ctx, raw)
	})

	pad, err = sender.NewTouchpad(cfg, clock.Real(), client)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create touch pad")
	}

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("relay channel stopped")
		}
	}()

	log.Info().
		Float64("viewport_width", cfg.ViewportWidth).
		Float64("viewport_height", cfg.ViewportHeight).
		Msg("touch pad ready, reading input from stdin")

	lines := make(chan []byte)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error().Err(err).Msg("failed to read input")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("touch pad shutting down")
			return
		case line, ok := <-lines:
			if !ok {
				log.Info().Msg("input closed")
				return
			}
			var ev sender.RawEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				log.Warn().Err(err).Msg("skipping malformed input line")
				continue
			}
			if err := pad.HandleInput(ev); err != nil {
				log.Debug().Err(err).Msg("input not relayed")
			}
		}
	}
}
