package main

import (
	"context"

	"github.com/mcdev12/fakemouse/go/internal/config"
	"github.com/mcdev12/fakemouse/go/internal/relay"
)

type Services struct {
	Relay *relay.Service
}

func setupServices(ctx context.Context, cfg config.Relay) (*Services, error) {
	relayService, err := relay.NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Services{Relay: relayService}, nil
}
