package sampler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/oats-center/labjackd/internal/calibration"
	"github.com/oats-center/labjackd/internal/devicesession"
	"github.com/oats-center/labjackd/internal/sampleconfig"
)

// fakeStreamDevice emits a fixed number of scans then blocks until
// StreamStop is called, mirroring a real driver's blocking read.
type fakeStreamDevice struct {
	mu        sync.Mutex
	scans     []devicesession.Scan
	nextIdx   int
	stopped   chan struct{}
	stopOnce  sync.Once
}

func newFakeStreamDevice(scans []devicesession.Scan) *fakeStreamDevice {
	return &fakeStreamDevice{scans: scans, stopped: make(chan struct{})}
}

func (f *fakeStreamDevice) HandleInfo() string { return "fake" }
func (f *fakeStreamDevice) WriteName(string, float64) error { return nil }
func (f *fakeStreamDevice) NameToAddress(name string) (int, int, error) {
	var ch int
	fmt.Sscanf(name, "AIN%d", &ch)
	return ch, 0, nil
}
func (f *fakeStreamDevice) StreamStart(rate float64, addresses []int, scansPerRead int32) (float64, error) {
	return rate, nil
}
func (f *fakeStreamDevice) StreamRead(ctx context.Context) (devicesession.Scan, error) {
	f.mu.Lock()
	idx := f.nextIdx
	f.nextIdx++
	f.mu.Unlock()

	if idx < len(f.scans) {
		return f.scans[idx], nil
	}
	select {
	case <-f.stopped:
		return devicesession.Scan{}, fmt.Errorf("stopped")
	case <-ctx.Done():
		return devicesession.Scan{}, ctx.Err()
	}
}
func (f *fakeStreamDevice) StreamStop() error {
	f.stopOnce.Do(func() { close(f.stopped) })
	return nil
}
func (f *fakeStreamDevice) Close() error { return nil }

func startTestNATS(t *testing.T) (*nats.Conn, func()) {
	t.Helper()
	opts := &server.Options{Port: -1, NoLog: true, NoSigs: true}
	srv, err := server.NewServer(opts)
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(5*time.Second))

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	return nc, func() {
		nc.Close()
		srv.Shutdown()
	}
}

func testConfig() sampleconfig.SampleConfig {
	return sampleconfig.SampleConfig{
		AssetNumber:       7,
		Channels:          []uint8{0, 1},
		ScansPerRead:      2,
		SuggestedScanRate: 1000,
		NATSSubject:       "daq.sample",
		NATSStream:        "DAQ_SAMPLE",
		TriggerStream:     "DAQ_TRIGGER",
		RotateSecs:        3600,
		Calibrations: map[uint8]calibration.Spec{
			0: calibration.Default(),
			1: {Kind: calibration.Linear, A: 2, B: 1},
		},
		TriggerSettings: map[uint8]sampleconfig.TriggerSettings{
			1: {Enabled: true, TriggerType: sampleconfig.Rising, Threshold: 10, HoldoffMS: 0},
		},
	}
}

func TestSamplerPublishesPerChannelDataFrames(t *testing.T) {
	nc, cleanup := startTestNATS(t)
	defer cleanup()

	cfg := testConfig()

	sub0, err := nc.SubscribeSync("daq.sample.007.data.ch00")
	require.NoError(t, err)
	sub1, err := nc.SubscribeSync("daq.sample.007.data.ch01")
	require.NoError(t, err)

	// interleaved: scan0 -> ch0=1.0 ch1=2.0; scan1 -> ch0=3.0 ch1=20.0
	scans := []devicesession.Scan{
		{Values: []float64{1.0, 2.0, 3.0, 20.0}},
	}
	dev := newFakeStreamDevice(scans)

	s := &Sampler{
		NC:         nc,
		OpenDevice: func(ctx context.Context) (devicesession.Device, error) { return dev, nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	configs := make(chan sampleconfig.SampleConfig)
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx, cfg, configs) }()

	msg0, err := sub0.NextMsg(2 * time.Second)
	require.NoError(t, err)
	msg1, err := sub1.NextMsg(2 * time.Second)
	require.NoError(t, err)

	cancel()
	<-runDone

	require.NotEmpty(t, msg0.Data)
	require.NotEmpty(t, msg1.Data)
}

func TestSamplerFiresTriggerOnRisingCrossing(t *testing.T) {
	nc, cleanup := startTestNATS(t)
	defer cleanup()

	cfg := testConfig()

	triggerSub, err := nc.SubscribeSync("daq.sample.007.trigger.ch01")
	require.NoError(t, err)

	// ch1 values across two scans: 2.0 then 20.0, crossing threshold 10.
	scans := []devicesession.Scan{
		{Values: []float64{1.0, 2.0, 3.0, 20.0}},
	}
	dev := newFakeStreamDevice(scans)

	s := &Sampler{
		NC:         nc,
		OpenDevice: func(ctx context.Context) (devicesession.Device, error) { return dev, nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	configs := make(chan sampleconfig.SampleConfig)
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx, cfg, configs) }()

	msg, err := triggerSub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, msg.Data)

	cancel()
	<-runDone
}

func TestSamplerRestartsOnConfigChange(t *testing.T) {
	nc, cleanup := startTestNATS(t)
	defer cleanup()

	cfg := testConfig()
	cfg2 := testConfig()
	cfg2.AssetNumber = 9

	sub9, err := nc.SubscribeSync("daq.sample.009.data.ch00")
	require.NoError(t, err)

	scans := []devicesession.Scan{
		{Values: []float64{1.0, 2.0}},
	}

	var openCount int
	var mu sync.Mutex
	s := &Sampler{
		NC: nc,
		OpenDevice: func(ctx context.Context) (devicesession.Device, error) {
			mu.Lock()
			openCount++
			mu.Unlock()
			return newFakeStreamDevice(scans), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	configs := make(chan sampleconfig.SampleConfig, 1)
	runDone := make(chan error, 1)

	cfgFirst := cfg
	cfgFirst.Channels = []uint8{0}
	go func() { runDone <- s.Run(ctx, cfgFirst, configs) }()

	time.Sleep(50 * time.Millisecond)
	cfg2.Channels = []uint8{0}
	configs <- cfg2

	msg, err := sub9.NextMsg(2 * time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, msg.Data)

	cancel()
	<-runDone

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, openCount, 2)
}
