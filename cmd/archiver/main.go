// Command archiver runs the columnar archiver: one Parquet-writing
// task per channel in the live NATS KV config, rotating files on date
// rollover, a fixed interval, and calibration change.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/oats-center/labjackd/internal/archiver"
	"github.com/oats-center/labjackd/internal/natsutil"
	"github.com/oats-center/labjackd/internal/sampleconfig"
)

func envDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func main() {
	logger := log.New(os.Stderr, "[archiver] ", log.LstdFlags)

	natsURL := envDefault("NATS_URL", "nats://0.0.0.0:4222")
	credsFile := os.Getenv("NATS_CREDS_FILE")
	cfgBucket := envDefault("CFG_BUCKET", "sampler_cfg")
	cfgKey := envDefault("CFG_KEY", "active")
	defaultTriggerStream := envDefault("TRIGGER_STREAM", "labjack_triggers")
	baseDir := envDefault("ARCHIVE_DIR", "parquet")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	nc, js, err := natsutil.Connect(strings.Split(natsURL, ","), credsFile)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	kv, err := natsutil.GetOrCreateKV(ctx, js, cfgBucket, 5)
	if err != nil {
		logger.Fatalf("config bucket %q: %v", cfgBucket, err)
	}

	initial, err := sampleconfig.LoadBootstrap(ctx, kv, cfgKey, defaultTriggerStream, logger)
	if err != nil {
		logger.Fatalf("bootstrap config %q/%q: %v", cfgBucket, cfgKey, err)
	}
	logger.Printf("loaded initial config: asset=%d channels=%v", initial.AssetNumber, initial.Channels)

	updates := make(chan sampleconfig.SampleConfig)
	current := initial
	go func() {
		if err := sampleconfig.Watch(ctx, kv, cfgKey, defaultTriggerStream, logger, updates, &current); err != nil {
			logger.Printf("config watch stopped: %v", err)
		}
	}()

	a := &archiver.Archiver{
		NC:      nc,
		BaseDir: baseDir,
		Logger:  logger,
	}

	if err := a.Run(ctx, initial, updates); err != nil {
		logger.Fatalf("archiver exited: %v", err)
	}
	logger.Printf("stopped")
}
