// Command videorecorder segments one camera's live source into local
// files with ffmpeg and uploads settled segments to a NATS object
// store. It does not restart ffmpeg itself on failure: a process
// supervisor is expected to restart the whole binary.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/oats-center/labjackd/internal/natsutil"
	"github.com/oats-center/labjackd/internal/videorecorder"
)

func main() {
	logger := log.New(os.Stderr, "[video-recorder] ", log.LstdFlags)

	cfg, err := videorecorder.ConfigFromEnv()
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

	store, err := natsutil.GetOrCreateObjectStore(ctx, js, cfg.VideoBucket)
	if err != nil {
		logger.Fatalf("video bucket %q: %v", cfg.VideoBucket, err)
	}

	r := &videorecorder.Recorder{
		Config: cfg,
		Store:  store,
		Logger: logger,
	}

	if err := r.Run(ctx); err != nil {
		// A non-nil return here means ffmpeg died unexpectedly, not a
		// clean shutdown via ctx cancellation; exit non-zero so the
		// supervisor restarts the process instead of this loop
		// silently retrying.
		logger.Fatalf("videorecorder exited: %v", err)
	}
	logger.Printf("stopped")
}
