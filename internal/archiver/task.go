package archiver

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/oats-center/labjackd/internal/calibration"
	"github.com/oats-center/labjackd/internal/natsutil"
	"github.com/oats-center/labjackd/internal/wireframe"
)

// channelTask owns the rotating Parquet writer for exactly one
// channel's data subject. It runs until its context is cancelled.
type channelTask struct {
	nc         *nats.Conn
	subject    string
	asset      uint32
	channel    uint8
	rotateSecs uint64
	baseDir    string
	logger     *log.Logger
}

func (t *channelTask) logf(format string, args ...any) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// run subscribes to the channel's data subject and appends every
// decoded ScanFrame's values as rows, rotating to a fresh file on date
// rollover, on every rotateSecs tick, and whenever calUpdates delivers
// a new calibration. calUpdates is a single-slot latest-value holder
// rather than a channel: the owner's Set never blocks, and a burst of
// calibration changes while this task is busy collapses to the most
// recent one once it comes back around to Wait.
func (t *channelTask) run(ctx context.Context, initialCal calibration.Spec, calUpdates *natsutil.Holder[calibration.Spec]) error {
	msgs := make(chan *nats.Msg, 64)
	sub, err := t.nc.ChanSubscribe(t.subject, msgs)
	if err != nil {
		return fmt.Errorf("archiver: subscribe %s: %w", t.subject, err)
	}
	defer sub.Unsubscribe()

	calChanges := make(chan calibration.Spec)
	go func() {
		for {
			v, err := calUpdates.Wait(ctx)
			if err != nil {
				return
			}
			select {
			case calChanges <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	cal := initialCal
	var w *rotatingWriter
	defer func() {
		if w != nil {
			if err := w.close(); err != nil {
				t.logf("[archiver] ch%02d: close on shutdown: %v", t.channel, err)
			}
		}
	}()

	var tickerC <-chan time.Time
	if t.rotateSecs > 0 {
		ticker := time.NewTicker(time.Duration(t.rotateSecs) * time.Second)
		defer ticker.Stop()
		tickerC = ticker.C
	}

	rotate := func(reason string) error {
		if w != nil {
			if err := w.close(); err != nil {
				t.logf("[archiver] ch%02d: close before %s: %v", t.channel, reason, err)
			}
		}
		next, err := openRotatingWriter(t.baseDir, t.asset, t.channel, today(), cal)
		if err != nil {
			return err
		}
		w = next
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case newCal := <-calChanges:
			cal = newCal
			if err := rotate("calibration change"); err != nil {
				t.logf("[archiver] ch%02d: %v", t.channel, err)
			}

		case <-tickerC:
			if err := rotate("rotation tick"); err != nil {
				t.logf("[archiver] ch%02d: %v", t.channel, err)
			}

		case msg := <-msgs:
			frame, err := wireframe.DecodeScanFrame(msg.Data)
			if err != nil {
				t.logf("[archiver] ch%02d: decode scan frame: %v", t.channel, err)
				continue
			}
			if w == nil || w.date != today() {
				if err := rotate("date rollover"); err != nil {
					t.logf("[archiver] ch%02d: %v", t.channel, err)
					continue
				}
			}
			for _, v := range frame.Values {
				if err := w.writeRow(frame.Timestamp, v); err != nil {
					t.logf("[archiver] ch%02d: write row: %v", t.channel, err)
				}
			}
		}
	}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}
