// Command sampler runs the Sampler/Trigger service: it streams scans
// from a LabJack device over the connection modes configured by
// LJM_CONNECTION_MODES, publishes per-channel data and trigger frames,
// and restarts its acquisition loop whenever the live NATS KV config
// document changes.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/oats-center/labjackd/internal/devicesession"
	"github.com/oats-center/labjackd/internal/devicesession/ljm"
	"github.com/oats-center/labjackd/internal/natsutil"
	"github.com/oats-center/labjackd/internal/sampleconfig"
	"github.com/oats-center/labjackd/internal/sampler"
)

func envDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func main() {
	logger := log.New(os.Stderr, "[sampler] ", log.LstdFlags)

	natsURL := envDefault("NATS_URL", "nats://0.0.0.0:4222")
	credsFile := os.Getenv("NATS_CREDS_FILE")
	cfgBucket := envDefault("CFG_BUCKET", "sampler_cfg")
	cfgKey := envDefault("CFG_KEY", "active")
	defaultTriggerStream := envDefault("TRIGGER_STREAM", "labjack_triggers")
	ethernetAddr := os.Getenv("LABJACK_ETHERNET_ADDR")
	connectionModes := strings.Split(envDefault("LJM_CONNECTION_MODES", "ethernet"), ",")

	sampleTZName := envDefault("SAMPLE_TZ", "America/New_York")
	sampleTZ, err := time.LoadLocation(sampleTZName)
	if err != nil {
		logger.Fatalf("invalid SAMPLE_TZ %q: %v", sampleTZName, err)
	}

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

	var maxScanRateHz float64
	if raw := os.Getenv("LJM_MAX_SCAN_RATE"); raw != "" {
		var freq physic.Frequency
		if err := freq.Set(raw); err != nil {
			logger.Fatalf("invalid LJM_MAX_SCAN_RATE %q: %v", raw, err)
		}
		maxScanRateHz = float64(freq) / float64(physic.Hertz)
	}
	clampScanRate := func(cfg sampleconfig.SampleConfig) sampleconfig.SampleConfig {
		if maxScanRateHz > 0 && cfg.SuggestedScanRate > maxScanRateHz {
			logger.Printf("clamping suggested scan rate %.1fHz to configured ceiling %.1fHz", cfg.SuggestedScanRate, maxScanRateHz)
			cfg.SuggestedScanRate = maxScanRateHz
		}
		return cfg
	}

	initial, err := sampleconfig.LoadBootstrap(ctx, kv, cfgKey, defaultTriggerStream, logger)
	if err != nil {
		logger.Fatalf("bootstrap config %q/%q: %v", cfgBucket, cfgKey, err)
	}
	initial = clampScanRate(initial)
	logger.Printf("loaded initial config: asset=%d channels=%v", initial.AssetNumber, initial.Channels)

	rawUpdates := make(chan sampleconfig.SampleConfig)
	current := initial
	go func() {
		if err := sampleconfig.Watch(ctx, kv, cfgKey, defaultTriggerStream, logger, rawUpdates, &current); err != nil {
			logger.Printf("config watch stopped: %v", err)
		}
	}()

	updates := make(chan sampleconfig.SampleConfig)
	go func() {
		defer close(updates)
		for cfg := range rawUpdates {
			updates <- clampScanRate(cfg)
		}
	}()

	openers := map[string]devicesession.Opener{
		"ethernet": func(ctx context.Context) (devicesession.Device, error) {
			if ethernetAddr == "" {
				return nil, errNoEthernetAddr
			}
			dev := devicesession.NewTCPDevice(ethernetAddr, 5*time.Second)
			return dev, nil
		},
		"usb": func(ctx context.Context) (devicesession.Device, error) {
			_, err := ljm.OpenS("ANY", "USB", "ANY")
			return nil, err
		},
	}

	s := &sampler.Sampler{
		NC:     nc,
		Logger: logger,
		TZ:     sampleTZ,
		OpenDevice: func(ctx context.Context) (devicesession.Device, error) {
			return devicesession.OpenWithFallback(ctx, connectionModes, openers)
		},
	}

	if err := s.Run(ctx, initial, updates); err != nil {
		logger.Fatalf("sampler exited: %v", err)
	}
	logger.Printf("stopped")
}

var errNoEthernetAddr = errNoConfig("sampler: LABJACK_ETHERNET_ADDR not set")

type errNoConfig string

func (e errNoConfig) Error() string { return string(e) }
