package main

import (
	"encoding/json"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/config"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	services.Gateway.RegisterRoutes(mux)
	setupHealthCheck(mux, services)

	handler := c.Handler(mux)

	// WriteTimeout is left unset: it would also bound hijacked websockets,
	// which set their own deadlines per frame.
	return &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     h2c.NewHandler(handler, &http2.Server{}),
		ReadTimeout: cfg.Server.ReadTimeout,
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Database    bool   `json:"database"`
	NATS        bool   `json:"nats"`
	Cache       bool   `json:"cache"`
	Connections int    `json:"connections"`
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:      "ok",
			Database:    services.DB != nil && services.DB.PingContext(r.Context()) == nil,
			NATS:        services.NATS != nil && services.NATS.Ready(),
			Cache:       services.Redis != nil && services.Redis.Ping(r.Context()).Err() == nil,
			Connections: services.Gateway.Stats().TotalConnections,
		}
		if !resp.Database || !resp.NATS {
			resp.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
