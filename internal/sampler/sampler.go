// Package sampler implements the Sampler/Trigger core: a blocking
// device-read worker feeding a bounded channel to an async consumer
// that transposes, publishes per-channel ScanFrames, and runs
// per-channel trigger detection with holdoff.
package sampler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oats-center/labjackd/internal/devicesession"
	"github.com/oats-center/labjackd/internal/sampleconfig"
	"github.com/oats-center/labjackd/internal/wireframe"
)

// batchChanCapacity bounds the device worker's hand-off to the async
// consumer. Backpressure here blocks the device reader rather than
// growing memory without bound; hardware pacing keeps it shallow.
const batchChanCapacity = 32

// Sampler owns the publish connection and device opener for one
// asset's long-running sample/trigger loop.
type Sampler struct {
	NC         *nats.Conn
	OpenDevice func(ctx context.Context) (devicesession.Device, error)
	Logger     *log.Logger

	// TZ is the zone ScanFrame.Timestamp is rendered in. Defaults to
	// UTC if nil; trigger timestamps are always UTC regardless.
	TZ *time.Location
}

func (s *Sampler) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Run drives the sampler until ctx is cancelled. Every time a new
// config arrives on configs, the current run is cleanly stopped
// (device stream stopped, batch channel drained and closed, worker
// awaited) and restarted with the new config, discarding all
// holdoff/last-value trigger state from the previous run.
func (s *Sampler) Run(ctx context.Context, initial sampleconfig.SampleConfig, configs <-chan sampleconfig.SampleConfig) error {
	cfg := initial
	runID := int64(0)

	for {
		runID++
		runCtx, cancelRun := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func(cfg sampleconfig.SampleConfig, runID int64) {
			done <- s.runOnce(runCtx, cfg, runID)
		}(cfg, runID)

		select {
		case <-ctx.Done():
			cancelRun()
			<-done
			return nil
		case next, ok := <-configs:
			cancelRun()
			<-done
			if !ok {
				return nil
			}
			cfg = next
		case err := <-done:
			cancelRun()
			if err != nil {
				s.logf("[sampler] run %d failed: %v; restarting with unchanged config", runID, err)
				time.Sleep(time.Second)
				continue
			}
			return nil
		}
	}
}

func (s *Sampler) runOnce(ctx context.Context, cfg sampleconfig.SampleConfig, runID int64) error {
	if len(cfg.Channels) == 0 {
		return fmt.Errorf("sampler: run %d: no channels configured", runID)
	}

	dev, err := s.OpenDevice(ctx)
	if err != nil {
		return fmt.Errorf("sampler: run %d: open device: %w", runID, err)
	}

	var runErr error
	sessionErr := devicesession.Run(ctx, dev, func(ctx context.Context, session *devicesession.Session) error {
		addresses := make([]int, len(cfg.Channels))
		for i, ch := range cfg.Channels {
			addr, _, err := session.Device().NameToAddress(fmt.Sprintf("AIN%d", ch))
			if err != nil {
				return fmt.Errorf("run %d: name to address for channel %d: %w", runID, ch, err)
			}
			addresses[i] = addr
		}

		actualRate, err := session.Device().StreamStart(cfg.SuggestedScanRate, addresses, cfg.ScansPerRead)
		if err != nil {
			return fmt.Errorf("run %d: stream start: %w", runID, err)
		}

		batches := make(chan devicesession.Scan, batchChanCapacity)
		var running atomic.Bool
		running.Store(true)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(batches)
			for running.Load() {
				scan, err := session.Device().StreamRead(ctx)
				if err != nil {
					if !running.Load() {
						return
					}
					s.logf("[sampler] run %d: stream read error: %v", runID, err)
					return
				}
				// A full channel blocks here, applying backpressure to
				// the device reader rather than dropping samples.
				batches <- scan
			}
		}()

		runErr = s.consume(ctx, cfg, actualRate, batches)

		running.Store(false)
		_ = session.Device().StreamStop()
		// Drain so a worker blocked on a full channel can exit; the
		// worker closes batches on its way out.
		for range batches {
		}
		wg.Wait()
		return runErr
	})

	if sessionErr != nil {
		return fmt.Errorf("sampler: run %d: %w", runID, sessionErr)
	}
	return nil
}

func (s *Sampler) consume(ctx context.Context, cfg sampleconfig.SampleConfig, actualScanRate float64, batches <-chan devicesession.Scan) error {
	channels := append([]uint8(nil), cfg.Channels...)
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	numChannels := len(channels)

	detectors := make(map[uint8]*TriggerDetector, numChannels)
	for _, ch := range channels {
		settings := cfg.TriggerSettings[ch]
		calID := cfg.Calibrations[ch].IDOrDefault()
		detectors[ch] = NewTriggerDetector(settings, calID)
	}

	msPerScan := 1000.0 / actualScanRate

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-batches:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("sampler: device stream ended")
			}
			if err := s.publishBatch(cfg, channels, numChannels, batch, msPerScan, detectors); err != nil {
				s.logf("[sampler] publish error: %v", err)
			}
		}
	}
}

func (s *Sampler) publishBatch(cfg sampleconfig.SampleConfig, channels []uint8, numChannels int, batch devicesession.Scan, msPerScan float64, detectors map[uint8]*TriggerDetector) error {
	scansPerRead := len(batch.Values) / numChannels
	batchEnd := time.Now().UTC()
	batchEndMS := batchEnd.UnixMilli()
	tz := s.TZ
	if tz == nil {
		tz = time.UTC
	}

	for chIdx, ch := range channels {
		values := make([]float64, scansPerRead)
		for i := 0; i < scansPerRead; i++ {
			values[i] = batch.Values[i*numChannels+chIdx]
		}

		frame := wireframe.ScanFrame{
			Timestamp: batchEnd.In(tz).Format(time.RFC3339Nano),
			Values:    values,
		}
		subject := fmt.Sprintf("%s.%03d.data.ch%02d", cfg.NATSSubject, cfg.AssetNumber, ch)
		if err := s.NC.Publish(subject, wireframe.EncodeScanFrame(frame)); err != nil {
			return fmt.Errorf("publish data ch%02d: %w", ch, err)
		}

		cal := cfg.Calibrations[ch]
		detector := detectors[ch]
		for i, raw := range values {
			sampleTimeMS := batchEndMS - int64(float64(scansPerRead-1-i)*msPerScan)
			sampleTime := time.UnixMilli(sampleTimeMS).UTC()
			event, fired := detector.Evaluate(cfg.AssetNumber, ch, sampleTimeMS, sampleTime.Format(time.RFC3339), raw, cal)
			if !fired {
				continue
			}
			if err := s.publishTrigger(cfg, ch, event); err != nil {
				s.logf("[sampler] publish trigger ch%02d: %v (holdoff not advanced)", ch, err)
				continue
			}
			detector.ConfirmFired(sampleTimeMS)
		}
	}
	return nil
}

func (s *Sampler) publishTrigger(cfg sampleconfig.SampleConfig, ch uint8, event wireframe.TriggerEvent) error {
	data, err := wireframe.EncodeTriggerEvent(event)
	if err != nil {
		return fmt.Errorf("encode trigger: %w", err)
	}
	subject := fmt.Sprintf("%s.%03d.trigger.ch%02d", cfg.NATSSubject, cfg.AssetNumber, ch)
	return s.NC.Publish(subject, data)
}
