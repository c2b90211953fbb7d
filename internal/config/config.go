// Package config holds the runner configuration: CLI flags layered over
// an optional basconv.toml file, over defaults.
package config

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/retroware/basconv/internal/convert"
	"github.com/retroware/basconv/internal/discover"
)

// DefaultFileName is the config file looked up in the working directory
// when no explicit path is given.
const DefaultFileName = "basconv.toml"

// Config is the full runner configuration.
type Config struct {
	Inputs        []string `toml:"inputs"`
	OutputDir     string   `toml:"output_dir"`
	SchemaVersion string   `toml:"schema_version"`
	Mode          string   `toml:"mode"` // perFile | manifest
	Workers       int      `toml:"workers"`
	StrictExit    bool     `toml:"strict_exit"`
	NoCache       bool     `toml:"no_cache"`
	CachePath     string   `toml:"cache_path"`
	Verbose       bool     `toml:"verbose"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OutputDir: "out",
		Mode:      string(convert.ModePerFile),
	}
}

// Load reads a TOML config file into a default-initialized Config. A
// missing file at the default path is not an error; an explicit path must
// exist.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values that have a closed vocabulary.
func (c Config) Validate() error {
	switch convert.Mode(c.Mode) {
	case convert.ModePerFile, convert.ModeManifest:
	default:
		return fmt.Errorf("config: unknown mode %q (want perFile or manifest)", c.Mode)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

// ResolveInputs expands the configured inputs (files or directories) into
// the deterministic, deduplicated job list.
func (c Config) ResolveInputs(ctx context.Context) ([]convert.FileJob, error) {
	seen := make(map[string]bool)
	var jobs []convert.FileJob
	for _, input := range c.Inputs {
		files, err := discover.Discover(ctx, input, nil)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", input, err)
		}
		for _, f := range files {
			if seen[f.Path] {
				continue
			}
			seen[f.Path] = true
			jobs = append(jobs, convert.FileJob{Path: f.Path})
		}
	}
	return jobs, nil
}
