// Package devicesession wraps the opaque DAQ driver interface with
// ordered connection-mode fallback and a scoped guard that guarantees
// stream-stop and close run on every exit path.
package devicesession

import (
	"context"
	"fmt"
	"strings"
)

// Scan is one batch returned by a streaming read: Values holds
// scansPerRead * len(channels) float64s, channel-interleaved per scan.
type Scan struct {
	Values []float64
}

// Device is the opaque DAQ driver surface. Implementations must be
// safe to call from exactly one goroutine at a time; callers serialize
// access via Session.
type Device interface {
	// HandleInfo returns a human-readable identifier for logging.
	HandleInfo() string
	// WriteName writes a named register (range, resolution, mode, ...).
	WriteName(name string, value float64) error
	// NameToAddress resolves a channel name to its device address.
	NameToAddress(name string) (address int, dataType int, err error)
	// StreamStart begins streaming at the requested rate across the
	// given addresses, scansPerRead scans per read call. It returns
	// the device-reported actual scan rate, which may differ from the
	// request and must be used for timestamp back-calculation.
	StreamStart(scanRate float64, addresses []int, scansPerRead int32) (actualScanRate float64, err error)
	// StreamRead performs one blocking read of a batch. It must return
	// promptly after StreamStop is called from another goroutine.
	StreamRead(ctx context.Context) (Scan, error)
	StreamStop() error
	Close() error
}

// Opener constructs a Device for one connection mode (e.g. "ethernet",
// "usb", "any").
type Opener func(ctx context.Context) (Device, error)

// OpenWithFallback attempts each named mode in order against openers,
// returning the first Device that opens successfully. If every mode
// fails, it returns an error concatenating every attempt's cause.
func OpenWithFallback(ctx context.Context, order []string, openers map[string]Opener) (Device, error) {
	var failures []string
	for _, mode := range order {
		open, ok := openers[mode]
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: no opener registered", mode))
			continue
		}
		dev, err := open(ctx)
		if err == nil {
			return dev, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", mode, err))
	}
	return nil, fmt.Errorf("devicesession: all connection modes failed: %s", strings.Join(failures, "; "))
}

// Session scopes ownership of a Device so that StreamStop and Close
// are invoked exactly once, on every exit path including a recovered
// panic in the caller's goroutine.
type Session struct {
	dev    Device
	closed bool
}

// NewSession takes ownership of dev.
func NewSession(dev Device) *Session {
	return &Session{dev: dev}
}

// Device returns the wrapped driver for use within the session's scope.
func (s *Session) Device() Device { return s.dev }

// Close stops streaming (best-effort, error logged by caller via the
// returned error) and closes the device. It is safe to call more than
// once; only the first call has effect.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	stopErr := s.dev.StreamStop()
	closeErr := s.dev.Close()
	if stopErr != nil {
		return fmt.Errorf("devicesession: stream stop: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("devicesession: close: %w", closeErr)
	}
	return nil
}

// Run invokes fn with the session's device, guaranteeing Close runs
// afterward regardless of fn's outcome or a panic within fn.
func Run(ctx context.Context, dev Device, fn func(ctx context.Context, s *Session) error) (err error) {
	s := NewSession(dev)
	defer func() {
		closeErr := s.Close()
		if err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, s)
}
