package clipworker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// downloadObjectToFile streams a video object out of the store into a
// local file so ffmpeg can operate on a real path.
func downloadObjectToFile(ctx context.Context, store jetstream.ObjectStore, name, destPath string) error {
	result, err := store.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("clipworker: get object %s: %w", name, err)
	}
	defer result.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("clipworker: create %s: %w", destPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, result); err != nil {
		return fmt.Errorf("clipworker: download object %s: %w", name, err)
	}
	return nil
}

// runFFmpegTrim re-encodes [offsetSec, offsetSec+durationSec) of
// sourcePath into destPath. Trimming always re-encodes rather than
// stream-copying: an arbitrary -ss offset against a segment that was
// itself stream-copied from the camera can only land on an exact frame
// boundary by decoding and re-encoding across the cut.
func runFFmpegTrim(ctx context.Context, ffmpegBin, sourcePath, destPath string, offsetSec, durationSec float64) error {
	if offsetSec < 0 {
		offsetSec = 0
	}
	if durationSec <= 0 {
		return fmt.Errorf("clipworker: non-positive trim duration %fs for %s", durationSec, sourcePath)
	}
	cmd := exec.CommandContext(ctx, ffmpegBin,
		"-hide_banner", "-loglevel", "warning", "-y",
		"-i", sourcePath,
		"-ss", fmt.Sprintf("%f", offsetSec),
		"-t", fmt.Sprintf("%f", durationSec),
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23",
		"-c:a", "aac",
		"-movflags", "+faststart",
		destPath,
	)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("clipworker: ffmpeg trim %s: %w", sourcePath, err)
	}
	return nil
}

// runFFmpegConcatAndTrim stream-copy concatenates parts (already
// trimmed to their individual overlaps) via the concat demuxer, then
// re-trims the result to exactly durationSec: stream-copy concat can
// leave a few extra frames at either internal boundary, so the final
// pass guarantees the output's length matches the requested window.
func runFFmpegConcatAndTrim(ctx context.Context, ffmpegBin string, parts []string, destPath string, durationSec float64, workDir string) error {
	listPath := filepath.Join(workDir, "concat_list.txt")
	var listContents string
	for _, p := range parts {
		listContents += fmt.Sprintf("file '%s'\n", p)
	}
	if err := os.WriteFile(listPath, []byte(listContents), 0o644); err != nil {
		return fmt.Errorf("clipworker: write concat list: %w", err)
	}

	concatenated := filepath.Join(workDir, "concatenated.mp4")
	concatCmd := exec.CommandContext(ctx, ffmpegBin,
		"-hide_banner", "-loglevel", "warning", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		concatenated,
	)
	concatCmd.Stderr = os.Stderr
	if err := concatCmd.Run(); err != nil {
		return fmt.Errorf("clipworker: ffmpeg concat: %w", err)
	}

	return runFFmpegTrim(ctx, ffmpegBin, concatenated, destPath, 0, durationSec)
}

// buildClip downloads every plan member into workDir, trims (and, for
// multi-member plans, concatenates) them into a single clip file at
// outputPath covering exactly [clipStart, clipEnd].
func buildClip(ctx context.Context, ffmpegBin string, store jetstream.ObjectStore, plan ClipPlan, clipStart, clipEnd time.Time, workDir, outputPath string) error {
	clipDuration := clipEnd.Sub(clipStart).Seconds()

	if plan.IsSingle() {
		member := plan.Members[0]
		sourcePath := filepath.Join(workDir, "source.mp4")
		if err := downloadObjectToFile(ctx, store, member.Name, sourcePath); err != nil {
			return err
		}
		offset := clipStart.Sub(member.Start).Seconds()
		return runFFmpegTrim(ctx, ffmpegBin, sourcePath, outputPath, offset, clipDuration)
	}

	var parts []string
	for i, member := range plan.Members {
		sourcePath := filepath.Join(workDir, fmt.Sprintf("source_%d.mp4", i))
		if err := downloadObjectToFile(ctx, store, member.Name, sourcePath); err != nil {
			return err
		}

		segStart := member.Start
		if clipStart.After(segStart) {
			segStart = clipStart
		}
		segEnd := member.End
		if i == len(plan.Members)-1 {
			segEnd = clipEnd
		}

		offset := segStart.Sub(member.Start).Seconds()
		duration := segEnd.Sub(segStart).Seconds()

		partPath := filepath.Join(workDir, fmt.Sprintf("part_%d.mp4", i))
		if err := runFFmpegTrim(ctx, ffmpegBin, sourcePath, partPath, offset, duration); err != nil {
			return err
		}
		parts = append(parts, partPath)
	}

	return runFFmpegConcatAndTrim(ctx, ffmpegBin, parts, outputPath, clipDuration, workDir)
}
