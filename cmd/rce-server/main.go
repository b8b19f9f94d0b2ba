// Command rce-server runs the ingress gate: the HTTP surface that
// accepts submissions, reports job status, and streams live job events
// over WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spicyneutrino/distributed-rce-engine/internal/app"
	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/server"
)

func main() {
	configPath := os.Getenv("RCE_CONFIG")

	a, err := app.NewServerApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize server app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	srv := server.NewServer(a)

	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			a.Logger.Fatal().Err(err).Msg("ingress HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("ingress HTTP server shutdown failed")
	}

	a.Close()
	a.Logger.Info().Msg("server stopped")
}
