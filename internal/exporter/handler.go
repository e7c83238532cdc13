package exporter

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"
)

const csvChunkSize = 128 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: csvChunkSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// exportRequest is the single JSON message a client sends right after
// the WebSocket handshake.
type exportRequest struct {
	Asset        uint32  `json:"asset"`
	Channels     []uint8 `json:"channels"`
	Start        string  `json:"start"`
	End          string  `json:"end"`
	Format       string  `json:"format"`
	DownloadName string  `json:"download_name"`
}

// Handler serves the /export WebSocket endpoint against one local
// Parquet archive root.
type Handler struct {
	ParquetDir string
	Logger     *log.Logger
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// ServeHTTP upgrades the connection and processes exactly one export
// request before closing.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("[exporter] upgrade: %v", err)
		return
	}
	defer conn.Close()

	if err := h.processConnection(conn); err != nil {
		h.logf("[exporter] websocket error: %v", err)
	}
}

func (h *Handler) processConnection(conn *websocket.Conn) error {
	var req exportRequest
	if err := conn.ReadJSON(&req); err != nil {
		sendError(conn, "expected JSON request")
		return fmt.Errorf("read request: %w", err)
	}

	if len(req.Channels) == 0 {
		sendError(conn, "no channels requested")
		return nil
	}
	channels := dedupSortedChannels(req.Channels)

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		sendError(conn, "invalid start timestamp")
		return nil
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		sendError(conn, "invalid end timestamp")
		return nil
	}
	if end.Before(start) {
		sendError(conn, "end must be after start")
		return nil
	}

	format := req.Format
	if format == "" {
		format = "csv"
	}
	if format != "csv" {
		sendError(conn, "parquet streaming not yet supported")
		return nil
	}

	fileName := req.DownloadName
	if fileName == "" {
		fileName = fmt.Sprintf("labjack_asset%03d_%s_%s.csv",
			req.Asset, start.UTC().Format("20060102T150405"), end.UTC().Format("20060102T150405"))
	}
	if err := conn.WriteJSON(map[string]any{
		"type":        "meta",
		"fileName":    fileName,
		"contentType": "text/csv",
	}); err != nil {
		return fmt.Errorf("send meta: %w", err)
	}

	streamer := newCSVStreamer(conn)
	var missing []uint8
	for _, ch := range channels {
		found, err := streamChannel(h.ParquetDir, req.Asset, ch, start, end, streamer.push)
		if err != nil {
			return fmt.Errorf("channel %02d: %w", ch, err)
		}
		if !found {
			missing = append(missing, ch)
		}
	}
	return streamer.finish(missing)
}

func sendError(conn *websocket.Conn, message string) {
	_ = conn.WriteJSON(map[string]any{"type": "error", "message": message})
}

func dedupSortedChannels(channels []uint8) []uint8 {
	sorted := append([]uint8(nil), channels...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := sorted[:0]
	var last uint8
	haveLast := false
	for _, c := range sorted {
		if haveLast && c == last {
			continue
		}
		out = append(out, c)
		last = c
		haveLast = true
	}
	return out
}

// csvStreamer buffers CSV lines into fixed-size binary WebSocket
// frames, the same framing the original implementation uses.
type csvStreamer struct {
	conn      *websocket.Conn
	chunk     []byte
	bytesSent int
}

func newCSVStreamer(conn *websocket.Conn) *csvStreamer {
	s := &csvStreamer{conn: conn, chunk: make([]byte, 0, csvChunkSize)}
	s.chunk = append(s.chunk, "timestamp,channel,raw_value,calibrated_value,calibration_id\n"...)
	return s
}

func (s *csvStreamer) push(line string) error {
	s.chunk = append(s.chunk, line...)
	if len(s.chunk) >= csvChunkSize {
		return s.flush()
	}
	return nil
}

func (s *csvStreamer) flush() error {
	if len(s.chunk) == 0 {
		return nil
	}
	s.bytesSent += len(s.chunk)
	if err := s.conn.WriteMessage(websocket.BinaryMessage, s.chunk); err != nil {
		return fmt.Errorf("send chunk: %w", err)
	}
	s.chunk = make([]byte, 0, csvChunkSize)
	return nil
}

func (s *csvStreamer) finish(missing []uint8) error {
	if err := s.flush(); err != nil {
		return err
	}
	summary, err := json.Marshal(map[string]any{
		"type":            "summary",
		"bytesSent":       s.bytesSent,
		"missingChannels": missing,
	})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, summary); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}
	return s.conn.WriteJSON(map[string]any{"type": "complete"})
}
