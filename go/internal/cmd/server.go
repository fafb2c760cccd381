package main

import (
	"net/http"
	"time"

	"github.com/mcdev12/fakemouse/go/internal/config"
	"github.com/mcdev12/fakemouse/go/internal/relay"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg config.Relay, services *Services) *http.Server {
	mux := http.NewServeMux()

	// The snapshot endpoint is read by pages on other origins.
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	services.Relay.RegisterRoutes(mux)

	setupHealthCheck(mux, services)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.Handle("/health", relay.HealthHandler(services.Relay))
}
