package videorecorder

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Recorder owns the ffmpeg child process and upload loop for one
// camera.
type Recorder struct {
	Config Config
	Store  jetstream.ObjectStore
	Logger *log.Logger
}

func (r *Recorder) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// spawnFFmpegSegmenter creates the spool directory and starts the
// ffmpeg segmenter bound to ctx: cancelling ctx kills the child, which
// is how Run's own shutdown path terminates it.
func (r *Recorder) spawnFFmpegSegmenter(ctx context.Context) (*exec.Cmd, error) {
	if err := os.MkdirAll(r.Config.SpoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("videorecorder: create spool dir %s: %w", r.Config.SpoolDir, err)
	}

	pattern := r.Config.SegmentPattern()
	r.logf("[video-recorder] starting ffmpeg source=%s segment=%ds pattern=%s",
		r.Config.SourceURL, r.Config.SegmentSec, pattern)

	cmd := exec.CommandContext(ctx, r.Config.FFmpegBin,
		"-hide_banner",
		"-loglevel", "warning",
		"-rtsp_transport", r.Config.RTSPTransport,
		"-i", r.Config.SourceURL,
		"-map", "0",
		"-c", "copy",
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", r.Config.SegmentSec),
		"-reset_timestamps", "1",
		"-strftime", "1",
		pattern,
	)
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error { return cmd.Process.Kill() }

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("videorecorder: start ffmpeg %q (check VIDEO_RECORDER_FFMPEG_BIN/FFMPEG_BIN): %w", r.Config.FFmpegBin, err)
	}
	return cmd, nil
}

// Run spawns the segmenter and alternates between uploading settled
// segments and checking the segmenter is still alive, until ctx is
// cancelled. If the segmenter exits for any reason, Run returns a
// fatal error immediately — restart is the orchestrator's job, not
// this process's.
func (r *Recorder) Run(ctx context.Context) error {
	cmd, err := r.spawnFFmpegSegmenter(ctx)
	if err != nil {
		return err
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	interval := r.Config.ScanIntervalSec
	if interval == 0 {
		interval = 1
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	r.logf("[video-recorder] running asset=%d camera_id=%s bucket=%s tz=%s spool=%s source=%s",
		r.Config.AssetNumber, r.Config.CameraID, r.Config.VideoBucket, r.Config.TZ, r.Config.SpoolDir, r.Config.SourceURL)

	for {
		select {
		case <-ctx.Done():
			<-waitErr
			if err := r.uploadReadySegments(context.Background()); err != nil {
				r.logf("[video-recorder] final upload sweep: %v", err)
			}
			r.logf("[video-recorder] stopped")
			return nil

		case err := <-waitErr:
			return fmt.Errorf("videorecorder: ffmpeg exited unexpectedly: %w", err)

		case <-ticker.C:
			if err := r.uploadReadySegments(ctx); err != nil {
				r.logf("[video-recorder] upload sweep: %v", err)
			}
		}
	}
}

// uploadReadySegments uploads every settled segment to the object
// store and deletes it locally on success. A failed upload is logged
// and retried on the next sweep; since object-store Put by name is
// idempotent, re-uploading after a crash between upload and delete is
// safe.
func (r *Recorder) uploadReadySegments(ctx context.Context) error {
	ready, err := listReadySegments(r.Config.SpoolDir, r.Config.SegmentSec, r.Config.UploadSettleSec)
	if err != nil {
		return err
	}

	for _, path := range ready {
		info, statErr := os.Stat(path)
		var ageSec uint64
		if statErr == nil {
			ageSec = uint64(time.Since(info.ModTime()).Seconds())
		}

		if !validateSegmentFile(ctx, r.Config.FFprobeBin, path) {
			if ageSec > r.Config.SegmentSec*6 {
				_ = os.Remove(path)
				r.logf("[video-recorder] dropped invalid stale segment %s", path)
			} else {
				r.logf("[video-recorder] segment not finalized/invalid yet, will retry: %s", path)
			}
			continue
		}

		start, ok := parseSegmentStartFromPath(path, r.Config.TZ)
		if !ok {
			r.logf("[video-recorder] skipping unrecognized or non-existent-local-time segment %s", path)
			continue
		}
		end := start.Add(time.Duration(r.Config.SegmentSec) * time.Second)
		objectKey := fmt.Sprintf("asset%d/camera_%s/V_%s_%s.mp4",
			r.Config.AssetNumber, r.Config.CameraID, formatKeyTimestamp(start), formatKeyTimestamp(end))

		if err := r.uploadOne(ctx, path, objectKey); err != nil {
			r.logf("[video-recorder] upload failed (will retry): key=%s error=%v", objectKey, err)
			continue
		}

		if err := os.Remove(path); err != nil {
			return fmt.Errorf("videorecorder: remove uploaded segment %s: %w", path, err)
		}
		r.logf("[video-recorder] uploaded %s -> %s", path, objectKey)
	}
	return nil
}

func (r *Recorder) uploadOne(ctx context.Context, path, objectKey string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open segment %s: %w", path, err)
	}
	defer file.Close()

	_, err = r.Store.Put(ctx, jetstream.ObjectMeta{Name: objectKey}, file)
	return err
}
