package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gatekeeper/internal/app"
	"gatekeeper/internal/config"
	"gatekeeper/internal/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogDirectory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("startup failed: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Error("gate controller exited: %v", err)
		log.Close()
		os.Exit(1)
	}
}
