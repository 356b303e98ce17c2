package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/splitkeeper/go/internal/controlapi"
)

func setupServer(config *Config, services *Services) (*http.Server, error) {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register services
	mux.Handle(controlapi.NewTimerServiceHandler(controlapi.NewService(services.Timer, services.Store)))
	controlapi.NewStateHandler(services.Timer, services.Store, services.Notifier).RegisterRoutes(mux)

	// Setup reflection for grpcui/grpcurl
	if err := controlapi.RegisterReflection(mux); err != nil {
		return nil, err
	}

	setupHealthCheck(mux)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", config.ControlPort),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}, nil
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
