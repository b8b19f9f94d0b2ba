// Command rce-worker runs the worker loop: the single consumer that
// drives queued jobs through the static scanner and sandbox executor to
// a terminal status.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spicyneutrino/distributed-rce-engine/internal/app"
	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
)

func main() {
	configPath := os.Getenv("RCE_CONFIG")

	a, err := app.NewWorkerApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize worker app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	a.Pipeline.Start()
	a.Logger.Info().Msg("worker loop ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("shutdown signal received")
	a.Close()
	a.Logger.Info().Msg("worker stopped")
}
