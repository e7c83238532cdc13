package exporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/oats-center/labjackd/internal/calibration"
)

// archiveRow mirrors the columnar archiver's on-disk schema: one
// timestamped value per row.
type archiveRow struct {
	Timestamp string  `parquet:"timestamp"`
	Value     float64 `parquet:"value"`
}

// csvSink receives one CSV data line per matching sample; the caller
// decides how to buffer/chunk it (the WebSocket handler) or collect it
// (tests).
type csvSink func(line string) error

// streamChannel walks every day directory between start and end
// (inclusive, by UTC calendar date) under
// root/asset{NNN}/{yyyy-mm-dd}/ch{NN}/, reads every part-*.parquet
// file found there in name order, and emits one CSV line per sample
// whose timestamp falls in [start, end]. It returns whether any sample
// was emitted for this channel across the whole range.
func streamChannel(root string, asset uint32, channel uint8, start, end time.Time, emit csvSink) (bool, error) {
	found := false
	for _, day := range dateRange(start, end) {
		dayDir := filepath.Join(root, fmt.Sprintf("asset%03d", asset), day, fmt.Sprintf("ch%02d", channel))
		info, err := os.Stat(dayDir)
		if err != nil || !info.IsDir() {
			continue
		}

		files, err := listParquetFiles(dayDir)
		if err != nil {
			return found, fmt.Errorf("exporter: list %s: %w", dayDir, err)
		}

		for _, path := range files {
			if err := streamParquetFile(path, channel, start, end, emit, &found); err != nil {
				fmt.Fprintf(os.Stderr, "[exporter] skipping %s due to error: %v\n", path, err)
			}
		}
	}
	return found, nil
}

func listParquetFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// streamParquetFile opens one archive file, reads its embedded
// "calibration" key/value metadata once, and emits a CSV line for
// every row whose timestamp falls within [start, end].
func streamParquetFile(path string, channel uint8, start, end time.Time, emit csvSink, found *bool) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	cal, err := readCalibrationMetadata(file, info.Size())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[exporter] invalid calibration metadata in %s: %v\n", path, err)
		cal = calibration.Default()
	}
	calID := cal.IDOrDefault()

	reader := parquet.NewGenericReader[archiveRow](file)
	defer reader.Close()

	buf := make([]archiveRow, 256)
	for {
		n, readErr := reader.Read(buf)
		for _, row := range buf[:n] {
			ts, parseErr := time.Parse(time.RFC3339, row.Timestamp)
			if parseErr != nil {
				continue
			}
			if ts.Before(start) || ts.After(end) {
				continue
			}
			calibrated := cal.Apply(row.Value)
			line := fmt.Sprintf("%s,ch%02d,%v,%v,%s\n",
				row.Timestamp, channel, row.Value, calibrated, calID)
			if err := emit(line); err != nil {
				return err
			}
			*found = true
		}
		if readErr != nil {
			break
		}
		if n == 0 {
			break
		}
	}
	return nil
}

// readCalibrationMetadata opens the Parquet file's footer metadata and
// decodes the "calibration" key/value entry written at archive time.
// A file with no such entry (or an unparseable one) falls back to the
// identity calibration rather than failing the whole export.
func readCalibrationMetadata(r io.ReaderAt, size int64) (calibration.Spec, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return calibration.Default(), fmt.Errorf("open parquet footer: %w", err)
	}
	raw, ok := pf.Lookup("calibration")
	if !ok {
		return calibration.Default(), nil
	}
	var spec calibration.Spec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return calibration.Default(), fmt.Errorf("decode calibration metadata: %w", err)
	}
	return spec, nil
}

// dateRange returns every UTC calendar day ("2006-01-02") from start
// to end inclusive.
func dateRange(start, end time.Time) []string {
	var days []string
	start, end = start.UTC(), end.UTC()
	cur := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	for !cur.After(last) {
		days = append(days, cur.Format("2006-01-02"))
		cur = cur.AddDate(0, 0, 1)
	}
	return days
}
