// Package exporter serves a WebSocket endpoint that streams CSV rows
// out of the columnar archive for a requested asset/channel/time range.
package exporter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the exporter binary's environment-resolved settings.
type Config struct {
	ListenAddr string
	ParquetDir string
}

// fileDefaults is the shape of the optional local YAML file that seeds
// defaults beneath the environment, the same layered
// file-then-env-override precedence the rest of this module's
// configuration follows.
type fileDefaults struct {
	ListenAddr string `yaml:"listen_addr"`
	ParquetDir string `yaml:"parquet_dir"`
}

// loadFileDefaults reads an optional YAML defaults file. A missing file
// is not an error; a malformed one is.
func loadFileDefaults(path string) (fileDefaults, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fileDefaults{}, nil
	}
	if err != nil {
		return fileDefaults{}, fmt.Errorf("read %s: %w", path, err)
	}
	var fd fileDefaults
	if err := yaml.Unmarshal(raw, &fd); err != nil {
		return fileDefaults{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return fd, nil
}

// ConfigFromEnv resolves a Config, mirroring the original exporter's
// environment variable names and defaults. EXPORTER_CONFIG_FILE, if
// present, supplies defaults that environment variables still override.
func ConfigFromEnv() (Config, error) {
	fd, err := loadFileDefaults(envDefault("EXPORTER_CONFIG_FILE", "exporter.yaml"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr: envDefault("EXPORTER_ADDR", firstNonEmpty(fd.ListenAddr, "0.0.0.0:9001")),
		ParquetDir: envDefault("PARQUET_DIR", firstNonEmpty(fd.ParquetDir, "parquet")),
	}
	if info, err := os.Stat(cfg.ParquetDir); err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "[exporter] warning: parquet directory %q does not exist\n", cfg.ParquetDir)
	}
	return cfg, nil
}

func firstNonEmpty(value, def string) string {
	if value != "" {
		return value
	}
	return def
}

func envDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
