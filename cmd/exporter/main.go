// Command exporter serves the /export WebSocket endpoint that streams
// CSV rows out of a local columnar archive for a requested
// asset/channel/time range.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oats-center/labjackd/internal/exporter"
)

func main() {
	logger := log.New(os.Stderr, "[exporter] ", log.LstdFlags)

	cfg, err := exporter.ConfigFromEnv()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/export", &exporter.Handler{ParquetDir: cfg.ParquetDir, Logger: logger})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s, serving %s", cfg.ListenAddr, cfg.ParquetDir)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Fatalf("shutdown: %v", err)
		}
		logger.Printf("stopped")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatalf("serve: %v", err)
		}
	}
}
