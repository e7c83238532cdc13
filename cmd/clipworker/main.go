// Command clipworker ingests trigger events, compacts pending ones
// into video clips stitched from the object store, and garbage
// collects raw footage past its retention window.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/oats-center/labjackd/internal/clipworker"
	"github.com/oats-center/labjackd/internal/natsutil"
)

func main() {
	logger := log.New(os.Stderr, "[clip-worker] ", log.LstdFlags)

	cfg, err := clipworker.ConfigFromEnv()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	nc, js, err := natsutil.Connect(cfg.NATSServers, cfg.NATSCredsFile)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	cons, stateKV, videoStore, err := clipworker.EnsureResources(ctx, js, cfg)
	if err != nil {
		logger.Fatalf("ensure resources: %v", err)
	}

	w := &clipworker.Worker{
		Config:     cfg,
		Consumer:   cons,
		StateKV:    stateKV,
		VideoStore: videoStore,
		Logger:     logger,
	}

	if err := w.Run(ctx); err != nil {
		logger.Fatalf("clip worker exited: %v", err)
	}
	logger.Printf("stopped")
}
