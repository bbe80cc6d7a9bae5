// Package config handles configuration loading and merging for audioloop.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"audioloop/internal/format"
)

// Config holds all configuration values for the harness.
type Config struct {
	// FixtureURL is the base websocket URL of the loopback fixture,
	// e.g. "ws://chameleon.local:9992".
	FixtureURL string `yaml:"fixture_url"`
	APIKey     string `yaml:"api_key"`
	// Port is the fixture port the display link is plugged into.
	Port int `yaml:"port"`

	// Backend selects the playback implementation: "alsa" or
	// "portaudio".
	Backend string `yaml:"backend"`
	// Device is the playback device name ("hw:0,0" for ALSA, a device
	// name or empty for the PortAudio default).
	Device string `yaml:"device"`

	// DumpDir, if set, enables raw-audio diagnostic dumps of failing
	// runs.
	DumpDir string `yaml:"dump_dir"`
	// ResultsDB, if set, records every verdict in a sqlite database.
	ResultsDB string `yaml:"results_db"`

	Debug bool `yaml:"debug"`

	Matrix MatrixConfig `yaml:"matrix"`
}

// MatrixConfig describes the format/rate/channel combinations to test.
type MatrixConfig struct {
	Rates    []int    `yaml:"rates"`
	Formats  []string `yaml:"formats"`
	Channels int      `yaml:"channels"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: "alsa",
		Device:  "hw:0,0",
		Matrix: MatrixConfig{
			// Rates above 48 kHz are not reliable on current fixtures.
			Rates:    []int{32000, 44100, 48000},
			Formats:  []string{"S16_LE", "S24_LE", "S32_LE"},
			Channels: 2,
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults; an invalid file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations. An
// explicit path wins; otherwise the current directory and
// ~/.config/audioloop/ are searched.
func FindConfigFile(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	locations := []string{
		".audioloop.yaml",
		".audioloop.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations,
			filepath.Join(home, ".config", "audioloop", "config.yaml"),
			filepath.Join(home, ".config", "audioloop", "config.yml"),
		)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// FlagOverrides contains CLI flag values that override config file
// settings. Empty strings are not considered overrides; booleans and
// numerics carry Has* fields.
type FlagOverrides struct {
	FixtureURL string
	APIKey     string
	Backend    string
	Device     string
	DumpDir    string
	ResultsDB  string

	Port    int
	HasPort bool

	Debug    bool
	HasDebug bool
}

// MergeFlags returns a new Config with flag overrides applied.
func (c *Config) MergeFlags(flags *FlagOverrides) *Config {
	merged := *c

	if flags.FixtureURL != "" {
		merged.FixtureURL = flags.FixtureURL
	}
	if flags.APIKey != "" {
		merged.APIKey = flags.APIKey
	}
	if flags.Backend != "" {
		merged.Backend = flags.Backend
	}
	if flags.Device != "" {
		merged.Device = flags.Device
	}
	if flags.DumpDir != "" {
		merged.DumpDir = flags.DumpDir
	}
	if flags.ResultsDB != "" {
		merged.ResultsDB = flags.ResultsDB
	}
	if flags.HasPort {
		merged.Port = flags.Port
	}
	if flags.HasDebug {
		merged.Debug = flags.Debug
	}
	return &merged
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.FixtureURL == "" {
		return errors.New("fixture URL is required")
	}
	if !strings.HasPrefix(c.FixtureURL, "ws://") && !strings.HasPrefix(c.FixtureURL, "wss://") {
		return fmt.Errorf("fixture URL %q must use the ws:// or wss:// scheme", c.FixtureURL)
	}
	if c.Backend != "alsa" && c.Backend != "portaudio" {
		return fmt.Errorf("unknown backend %q (want alsa or portaudio)", c.Backend)
	}
	if c.Port < 0 {
		return errors.New("port must be non-negative")
	}
	if len(c.Matrix.Rates) == 0 {
		return errors.New("matrix needs at least one sampling rate")
	}
	for _, r := range c.Matrix.Rates {
		if r <= 0 {
			return fmt.Errorf("invalid sampling rate %d", r)
		}
	}
	if len(c.Matrix.Formats) == 0 {
		return errors.New("matrix needs at least one sample format")
	}
	for _, f := range c.Matrix.Formats {
		if _, err := format.Parse(f); err != nil {
			return err
		}
	}
	if c.Matrix.Channels < 1 {
		return errors.New("matrix needs at least one channel")
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	return path
}
