// Package config loads the daemon's YAML configuration: which devices
// to create at startup, each with its control device path, audio
// driver, option set, and an optional image to auto-load. Grounded on
// sdmconfig/internal/config's yaml.Decoder/KnownFields/Validate/
// resolvePaths shape.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon config file.
type Config struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig describes one device.h-level Device to initialize and
// optionally load at startup (spec §4.9 initialize/load_disc, §6.3
// options).
type DeviceConfig struct {
	Number            *int           `yaml:"number"`
	AudioDriver       string         `yaml:"audio_driver"`
	ControlDevice     string         `yaml:"control_device"`
	DaemonDebugMask   *uint32        `yaml:"daemon_debug_mask"`
	LibraryDebugMask  *uint32        `yaml:"library_debug_mask"`
	Options           map[string]any `yaml:"options"`
	Image             []string       `yaml:"image"`
	ImageOptions      map[string]any `yaml:"image_options"`
}

// Load reads, parses and validates the config file at path, resolving
// every relative image path against the config file's own directory.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every device entry for the fields initialize/start
// require and rejects duplicate device numbers.
func (c *Config) Validate() error {
	seen := make(map[int]bool)
	for i := range c.Devices {
		d := &c.Devices[i]
		if err := d.validate(); err != nil {
			return fmt.Errorf("config.devices[%d]: %w", i, err)
		}
		if seen[*d.Number] {
			return fmt.Errorf("config.devices[%d]: duplicate device number %d", i, *d.Number)
		}
		seen[*d.Number] = true
	}
	return nil
}

func (d *DeviceConfig) validate() error {
	if d.Number == nil {
		return fmt.Errorf("number is required")
	}
	if *d.Number < 0 {
		return fmt.Errorf("number must be >= 0")
	}
	if strings.TrimSpace(d.ControlDevice) == "" {
		return fmt.Errorf("control_device is required")
	}
	if len(d.ImageOptions) > 0 && len(d.Image) == 0 {
		return fmt.Errorf("image_options given without image")
	}
	return nil
}

func (c *Config) resolvePaths(configPath string) {
	dir := filepath.Dir(configPath)
	for i := range c.Devices {
		d := &c.Devices[i]
		for j, p := range d.Image {
			d.Image[j] = resolvePath(dir, p)
		}
	}
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}
