package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autoflow/internal/realtime"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	cfg := realtime.LoadConfig()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05", NoColor: cfg.Mode == "production"}).
		With().Timestamp().Str("service", "realtime").Logger()

	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	nc, err := realtime.Connect(cfg.NatsURL, "autoflow-realtime", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("NATS connection failed")
	}
	bridge := realtime.NewNATSBridge(nc, cfg.TenantID, hub, logger)
	defer bridge.Close()

	if err := bridge.Subscribe(); err != nil {
		logger.Fatal().Err(err).Msg("NATS subscribe failed")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", realtime.ServeWS(hub, cfg.JWTSecret, logger))
	server := &http.Server{Addr: cfg.RealtimePort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.RealtimePort).Msg("Realtime service listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Realtime server failed")
	}
}
