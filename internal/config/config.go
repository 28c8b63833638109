package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.cipherlog/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	Queue          Queue  `toml:"queue"`
	Log            Log    `toml:"log"`
}

// Queue controls the supervisor of queued outgoing messages.
type Queue struct {
	StaleAfter    Duration `toml:"stale_after"`
	SweepInterval Duration `toml:"sweep_interval"`
	EnableTimers  bool     `toml:"enable_timers"`
}

type Log struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a Go duration string ("10m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Queue: Queue{
			StaleAfter:    Duration{10 * time.Minute},
			SweepInterval: Duration{30 * time.Second},
			EnableTimers:  true,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads config from the given path on top of Default. Returns nil and
// an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
