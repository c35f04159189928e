package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// Config holds user defaults. Command line flags override every field.
type Config struct {
	// IntervalSec is the refresh period of the watch commands.
	IntervalSec float64 `json:"interval_sec"`
	Window      int     `json:"window"`
	Verbose     int     `json:"verbose"`
	// CacheTTLSec overrides how long collected data is reused between
	// redraws; 0 derives it from the interval.
	CacheTTLSec float64 `json:"cache_ttl_sec"`

	ProcessMemoryFormat string `json:"process_memory_format"`
	DeviceMemoryFormat  string `json:"device_memory_format"`

	// Separators, when set, turns every table separator on or off.
	Separators *bool    `json:"separators,omitempty"`
	Show       []string `json:"show"`
	Hide       []string `json:"hide"`

	NvidiaSMI   string   `json:"nvidia_smi"`
	RuntimeDirs []string `json:"runtime_dirs"`
	ProcRoot    string   `json:"proc_root"`

	Prometheus PrometheusConfig `json:"prometheus"`
	LogLevel   string           `json:"log_level"`
	LogFile    string           `json:"log_file"`
}

type PrometheusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Default returns a config with sensible defaults.
func Default() Config {
	return Config{
		IntervalSec:         1,
		Window:              20,
		ProcessMemoryFormat: "GB",
		DeviceMemoryFormat:  "MB",
		NvidiaSMI:           "nvidia-smi",
		ProcRoot:            "/proc",
		Prometheus: PrometheusConfig{
			Addr: "127.0.0.1:9401",
		},
		LogLevel: "warn",
	}
}

// Path returns ~/.config/nbstat/config.json (or under XDG_CONFIG_HOME).
// Returns empty string if home directory cannot be determined.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "nbstat", "config.json")
}

// Load reads the config at Path. A missing file yields the defaults.
func Load() (Config, error) {
	p := Path()
	if p == "" {
		return Default(), nil
	}
	return LoadFile(p)
}

// LoadFile reads one config file. Comments and trailing commas are
// allowed. On a parse error the defaults are returned with the error.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	parsed := Default()
	if err := json.Unmarshal(jsonc.ToJSON(data), &parsed); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return parsed, nil
}
