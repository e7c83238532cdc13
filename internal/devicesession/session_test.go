package devicesession

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	stopped bool
	closed  bool
	stopErr error
}

func (f *fakeDevice) HandleInfo() string { return "fake" }
func (f *fakeDevice) WriteName(name string, value float64) error { return nil }
func (f *fakeDevice) NameToAddress(name string) (int, int, error) { return 0, 0, nil }
func (f *fakeDevice) StreamStart(rate float64, addrs []int, n int32) (float64, error) {
	return rate, nil
}
func (f *fakeDevice) StreamRead(ctx context.Context) (Scan, error) { return Scan{}, nil }
func (f *fakeDevice) StreamStop() error {
	f.stopped = true
	return f.stopErr
}
func (f *fakeDevice) Close() error {
	f.closed = true
	return nil
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	dev := &fakeDevice{}
	s := NewSession(dev)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.True(t, dev.stopped)
	require.True(t, dev.closed)
}

func TestRunClosesOnPanic(t *testing.T) {
	dev := &fakeDevice{}
	func() {
		defer func() { _ = recover() }()
		_ = Run(context.Background(), dev, func(ctx context.Context, s *Session) error {
			panic("boom")
		})
	}()
	require.True(t, dev.stopped)
	require.True(t, dev.closed)
}

func TestRunPropagatesStopError(t *testing.T) {
	dev := &fakeDevice{stopErr: errors.New("stream stop failed")}
	err := Run(context.Background(), dev, func(ctx context.Context, s *Session) error {
		return nil
	})
	require.Error(t, err)
}

func TestOpenWithFallback(t *testing.T) {
	attempted := []string{}
	openers := map[string]Opener{
		"ethernet": func(ctx context.Context) (Device, error) {
			attempted = append(attempted, "ethernet")
			return nil, errors.New("no route to host")
		},
		"usb": func(ctx context.Context) (Device, error) {
			attempted = append(attempted, "usb")
			return &fakeDevice{}, nil
		},
	}
	dev, err := OpenWithFallback(context.Background(), []string{"ethernet", "usb"}, openers)
	require.NoError(t, err)
	require.NotNil(t, dev)
	require.Equal(t, []string{"ethernet", "usb"}, attempted)
}

func TestOpenWithFallbackAllFail(t *testing.T) {
	openers := map[string]Opener{
		"ethernet": func(ctx context.Context) (Device, error) {
			return nil, errors.New("timeout")
		},
	}
	_, err := OpenWithFallback(context.Background(), []string{"ethernet", "usb"}, openers)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ethernet")
	require.Contains(t, err.Error(), "usb")
}
