package exporter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearExporterEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"EXPORTER_ADDR", "PARQUET_DIR", "EXPORTER_CONFIG_FILE"} {
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestConfigFromEnvDefaultsWithNoFile(t *testing.T) {
	clearExporterEnv(t)
	t.Setenv("EXPORTER_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9001", cfg.ListenAddr)
	require.Equal(t, "parquet", cfg.ParquetDir)
}

func TestConfigFromEnvLayersYAMLDefaultsBeneathEnv(t *testing.T) {
	clearExporterEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "exporter.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: 127.0.0.1:9100\nparquet_dir: "+dir+"\n"), 0o644))
	t.Setenv("EXPORTER_CONFIG_FILE", path)

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9100", cfg.ListenAddr)
	require.Equal(t, dir, cfg.ParquetDir)

	t.Setenv("EXPORTER_ADDR", "0.0.0.0:9999")
	cfg, err = ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
}
