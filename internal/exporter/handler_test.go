package exporter

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHandlerStreamsCSVEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeTestArchiveFile(t, root, 7, "2026-01-01", 0, `{"id":"lin1","type":"linear","a":2.0,"b":0.0}`, []archiveRow{
		{Timestamp: "2026-01-01T00:00:00Z", Value: 5.0},
	})

	server := httptest.NewServer(&Handler{ParquetDir: root})
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/export"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"asset":    7,
		"channels": []uint8{0},
		"start":    "2026-01-01T00:00:00Z",
		"end":      "2026-01-01T23:59:59Z",
	}))

	var meta map[string]any
	require.NoError(t, conn.ReadJSON(&meta))
	require.Equal(t, "meta", meta["type"])

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	body := string(data)
	require.Contains(t, body, "timestamp,channel,raw_value,calibrated_value,calibration_id")
	require.Contains(t, body, "2026-01-01T00:00:00Z,ch00,5,10,lin1")

	var summary map[string]any
	require.NoError(t, conn.ReadJSON(&summary))
	require.Equal(t, "summary", summary["type"])
	require.Nil(t, summary["missingChannels"])

	var complete map[string]any
	require.NoError(t, conn.ReadJSON(&complete))
	require.Equal(t, "complete", complete["type"])
}

func TestHandlerRejectsEmptyChannels(t *testing.T) {
	server := httptest.NewServer(&Handler{ParquetDir: t.TempDir()})
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/export"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"asset":    1,
		"channels": []uint8{},
		"start":    "2026-01-01T00:00:00Z",
		"end":      "2026-01-01T00:00:01Z",
	}))

	var resp map[string]any
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "error", resp["type"])
}
