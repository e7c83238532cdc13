package archiver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/oats-center/labjackd/internal/calibration"
)

// parquetRow is the fixed two-column schema: every value published by
// the sampler becomes its own row. A frame carries one batch-end
// timestamp, so all N rows written from one frame share it.
type parquetRow struct {
	Timestamp string  `parquet:"timestamp"`
	Value     float64 `parquet:"value"`
}

// flushBatch bounds how many buffered rows accumulate before a row
// group is written, matching the original logger's fixed batch size.
const flushBatch = 1000

var partFileRE = regexp.MustCompile(`^part-(\d{4})\.parquet$`)

// rotatingWriter owns exactly one open Parquet file for one
// (asset, day, channel) tuple. A new rotatingWriter must be opened
// whenever the day rolls over, the rotation ticker fires, or the
// channel's calibration changes — the caller is responsible for
// closing the old one first.
type rotatingWriter struct {
	asset   uint32
	channel uint8
	date    string

	file   *os.File
	writer *parquet.GenericWriter[parquetRow]
	buffer []parquetRow
}

// openRotatingWriter creates the next part file in
// baseDir/asset{NNN}/{date}/ch{NN}/, recovering file_index from disk
// by scanning existing part-####.parquet files and taking max+1 so a
// restart never clobbers an existing file. cal is embedded as the
// file's "calibration" key/value metadata at open time; it is never
// applied to the raw values written into the file.
func openRotatingWriter(baseDir string, asset uint32, channel uint8, date string, cal calibration.Spec) (*rotatingWriter, error) {
	dir := filepath.Join(baseDir, fmt.Sprintf("asset%03d", asset), date, fmt.Sprintf("ch%02d", channel))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archiver: mkdir %s: %w", dir, err)
	}

	index, err := nextFileIndex(dir)
	if err != nil {
		return nil, fmt.Errorf("archiver: scan file index in %s: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("part-%04d.parquet", index))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("archiver: create %s: %w", path, err)
	}

	calJSON, err := json.Marshal(cal)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("archiver: marshal calibration metadata: %w", err)
	}

	writer := parquet.NewGenericWriter[parquetRow](file, parquet.KeyValueMetadata("calibration", string(calJSON)))

	return &rotatingWriter{
		asset:   asset,
		channel: channel,
		date:    date,
		file:    file,
		writer:  writer,
		buffer:  make([]parquetRow, 0, flushBatch),
	}, nil
}

// nextFileIndex scans dir for existing part-####.parquet files and
// returns max+1, or 1 if the directory is empty or new.
func nextFileIndex(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	max := 0
	for _, entry := range entries {
		m := partFileRE.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// writeRow appends one row, flushing a row group once flushBatch rows
// have accumulated.
func (w *rotatingWriter) writeRow(timestamp string, value float64) error {
	w.buffer = append(w.buffer, parquetRow{Timestamp: timestamp, Value: value})
	if len(w.buffer) >= flushBatch {
		return w.flush()
	}
	return nil
}

func (w *rotatingWriter) flush() error {
	if len(w.buffer) == 0 {
		return nil
	}
	if _, err := w.writer.Write(w.buffer); err != nil {
		return fmt.Errorf("archiver: write row group: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("archiver: flush row group: %w", err)
	}
	w.buffer = w.buffer[:0]
	return nil
}

// close flushes any buffered rows (total flush on close) and closes
// the underlying writer and file.
func (w *rotatingWriter) close() error {
	flushErr := w.flush()
	closeErr := w.writer.Close()
	fileErr := w.file.Close()
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("archiver: close writer: %w", closeErr)
	}
	return fileErr
}
