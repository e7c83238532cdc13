package clipworker

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/oats-center/labjackd/internal/natsutil"
	"github.com/oats-center/labjackd/internal/sampleconfig"
	"github.com/oats-center/labjackd/internal/wireframe"
)

func startTestJetStream(t *testing.T) (jetstream.JetStream, func()) {
	t.Helper()
	opts := &server.Options{Port: -1, NoLog: true, NoSigs: true, JetStream: true, StoreDir: t.TempDir()}
	srv, err := server.NewServer(opts)
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(5 * time.Second))

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	return js, func() {
		nc.Close()
		srv.Shutdown()
	}
}

func testTriggerEvent(id int64) wireframe.TriggerEvent {
	return wireframe.TriggerEvent{
		Asset:             7,
		Channel:           1,
		TriggerTime:       time.UnixMilli(id).UTC().Format(time.RFC3339),
		TriggerTimeUnixMS: id,
		RawValue:          12.0,
		CalibratedValue:   12.0,
		Threshold:         10.0,
		TriggerType:       sampleconfig.Rising,
		HoldoffMS:         500,
		CalibrationID:     "identity",
	}
}

func TestPutIfAbsentCreatesOnceAndReportsDuplicate(t *testing.T) {
	js, cleanup := startTestJetStream(t)
	defer cleanup()

	ctx := context.Background()
	kv, err := natsutil.GetOrCreateKV(ctx, js, "video_trigger_events", 1)
	require.NoError(t, err)

	rec := triggerRecordFromEvent(testTriggerEvent(1000), "2026-01-01T00:00:00Z")

	created, err := putIfAbsent(ctx, kv, rec)
	require.NoError(t, err)
	require.True(t, created)

	created, err = putIfAbsent(ctx, kv, rec)
	require.NoError(t, err)
	require.False(t, created)

	records, err := listRecords(ctx, kv)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, StatusPending, records[0].Status)
}

func TestUpdateRecordPersistsStatusChange(t *testing.T) {
	js, cleanup := startTestJetStream(t)
	defer cleanup()

	ctx := context.Background()
	kv, err := natsutil.GetOrCreateKV(ctx, js, "video_trigger_events", 1)
	require.NoError(t, err)

	rec := triggerRecordFromEvent(testTriggerEvent(2000), "2026-01-01T00:00:00Z")
	_, err = putIfAbsent(ctx, kv, rec)
	require.NoError(t, err)

	rec.Status = StatusProcessed
	rec.ClipKeys = []string{"clips/asset007/camera_cam0/C_20260101T000000_ch01_rising.mp4"}
	require.NoError(t, updateRecord(ctx, kv, rec))

	records, err := listRecords(ctx, kv)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, StatusProcessed, records[0].Status)
	require.Equal(t, rec.ClipKeys, records[0].ClipKeys)
}
