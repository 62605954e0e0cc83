package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-pdfgen/cmd/pdfgen/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	app, err := NewApp(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("failed to create app: %v", err)
	}
	defer app.Close()

	addr := cfg.Addr()
	go func() {
		sugar.Infof("Starting pdfgen on http://%s (mode=%s engine=%s)", addr, cfg.Generator.Mode, cfg.PDF.Engine)
		if err := app.Start(ctx, addr); err != nil {
			sugar.Fatalf("server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Infof("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("shutdown error: %v", err)
	}
}
