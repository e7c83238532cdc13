// Package archiver implements the columnar archiver: one long-running
// Parquet-writing task per channel, added and removed as the live
// sample config's channel set changes, each task rotating files on
// date rollover, a fixed interval, and calibration change.
package archiver

import (
	"context"
	"fmt"
	"log"
	"reflect"

	"github.com/nats-io/nats.go"

	"github.com/oats-center/labjackd/internal/calibration"
	"github.com/oats-center/labjackd/internal/natsutil"
	"github.com/oats-center/labjackd/internal/sampleconfig"
)

// Archiver owns the NATS connection used by every channel task and
// the on-disk root the Parquet tree is written under.
type Archiver struct {
	NC      *nats.Conn
	BaseDir string
	Logger  *log.Logger
}

type taskHandle struct {
	cancel     context.CancelFunc
	calUpdates *natsutil.Holder[calibration.Spec]
	cal        calibration.Spec
	done       chan struct{}
}

func (a *Archiver) logf(format string, args ...any) {
	if a.Logger != nil {
		a.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Run maintains one channelTask per channel in the live config,
// diffing the channel set on every update from configs: channels
// present in the new config but absent from the running set get a new
// task; channels absent from the new config have their running task
// stopped; channels present in both whose calibration changed get it
// hot-applied without a task restart. Run blocks until ctx is
// cancelled or configs is closed.
func (a *Archiver) Run(ctx context.Context, initial sampleconfig.SampleConfig, configs <-chan sampleconfig.SampleConfig) error {
	tasks := make(map[uint8]*taskHandle)

	apply := func(cfg sampleconfig.SampleConfig) {
		wanted := make(map[uint8]bool, len(cfg.Channels))
		for _, ch := range cfg.Channels {
			wanted[ch] = true
		}

		for ch, h := range tasks {
			if !wanted[ch] {
				h.cancel()
				<-h.done
				delete(tasks, ch)
			}
		}

		for _, ch := range cfg.Channels {
			cal := cfg.Calibrations[ch]
			if h, ok := tasks[ch]; ok {
				if !reflect.DeepEqual(h.cal, cal) {
					h.cal = cal
					h.calUpdates.Set(cal)
				}
				continue
			}

			taskCtx, cancel := context.WithCancel(ctx)
			calUpdates := natsutil.NewHolder[calibration.Spec]()
			done := make(chan struct{})
			subject := fmt.Sprintf("%s.%03d.data.ch%02d", cfg.NATSSubject, cfg.AssetNumber, ch)

			t := &channelTask{
				nc:         a.NC,
				subject:    subject,
				asset:      cfg.AssetNumber,
				channel:    ch,
				rotateSecs: cfg.RotateSecs,
				baseDir:    a.BaseDir,
				logger:     a.Logger,
			}
			go func(ch uint8) {
				defer close(done)
				if err := t.run(taskCtx, cal, calUpdates); err != nil {
					a.logf("[archiver] ch%02d task exited: %v", ch, err)
				}
			}(ch)

			tasks[ch] = &taskHandle{cancel: cancel, calUpdates: calUpdates, cal: cal, done: done}
		}
	}

	apply(initial)

	for {
		select {
		case <-ctx.Done():
			for _, h := range tasks {
				h.cancel()
			}
			for _, h := range tasks {
				<-h.done
			}
			return nil

		case cfg, ok := <-configs:
			if !ok {
				for _, h := range tasks {
					h.cancel()
				}
				for _, h := range tasks {
					<-h.done
				}
				return nil
			}
			apply(cfg)
		}
	}
}
