package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/retroware/basconv/internal/config"
	"github.com/retroware/basconv/internal/convert"
	"github.com/retroware/basconv/internal/store"
)

// errFatalFiles signals per-file fatal errors under --strict; it maps to
// exit code 1 without a usage dump.
var errFatalFiles = errors.New("one or more files failed")

func runConvert(cmd *cobra.Command, args []string) error {
	setupLogging(flags.verbose)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Inputs) == 0 {
		return errors.New("no inputs: pass source files or directories, or set inputs in basconv.toml")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs, err := cfg.ResolveInputs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return errors.New("no source files found under the given inputs")
	}

	opts := convert.Options{
		SchemaVersion: cfg.SchemaVersion,
		Mode:          convert.Mode(cfg.Mode),
		Workers:       cfg.Workers,
		Sink:          makeSink(cfg),
	}
	if !cfg.NoCache {
		opts.Cache = openCache(cfg)
	}

	_, sum, err := convert.Run(ctx, jobs, opts)
	if err != nil {
		return err
	}

	if cfg.StrictExit && sum.Fatal > 0 {
		return fmt.Errorf("%w (%d of %d)", errFatalFiles, sum.Fatal, sum.Files)
	}
	return nil
}

// loadConfig layers CLI flags over the TOML file over defaults. Positional
// args override configured inputs.
func loadConfig(args []string) (config.Config, error) {
	path := flags.configPath
	explicit := path != ""
	if !explicit {
		path = config.DefaultFileName
	}
	cfg, err := config.Load(path, explicit)
	if err != nil {
		return cfg, err
	}
	if len(args) > 0 {
		cfg.Inputs = args
	}
	if flags.outputDir != "" {
		cfg.OutputDir = flags.outputDir
	}
	if flags.mode != "" {
		cfg.Mode = flags.mode
	}
	if flags.workers != 0 {
		cfg.Workers = flags.workers
	}
	if flags.schemaVersion != "" {
		cfg.SchemaVersion = flags.schemaVersion
	}
	if flags.strict {
		cfg.StrictExit = true
	}
	if flags.noCache {
		cfg.NoCache = true
	}
	if flags.cachePath != "" {
		cfg.CachePath = flags.cachePath
	}
	return cfg, nil
}

// makeSink returns the output destination factory. Envelope names keep
// the source suffix (Form1.frm -> Form1.frm.json) so same-stem modules of
// different kinds never collide.
func makeSink(cfg config.Config) convert.SinkFactory {
	return func(sourcePath string) (io.WriteCloser, error) {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
		name := "manifest.json"
		if sourcePath != "" {
			name = filepath.Base(sourcePath) + ".json"
		}
		return os.Create(filepath.Join(cfg.OutputDir, name))
	}
}

// openCache opens the envelope cache; a cache that cannot open degrades
// to uncached operation rather than failing the run.
func openCache(cfg config.Config) convert.Cache {
	var s *store.Store
	var err error
	if cfg.CachePath != "" {
		s, err = store.OpenPath(cfg.CachePath)
	} else {
		s, err = store.Open()
	}
	if err != nil {
		slog.Warn("cache.open.err", "err", err)
		return nil
	}
	return s
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the envelope cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove all cached envelopes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(flags.verbose)
		var s *store.Store
		var err error
		if flags.cachePath != "" {
			s, err = store.OpenPath(flags.cachePath)
		} else {
			s, err = store.Open()
		}
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer s.Close()
		if err := s.Purge(); err != nil {
			return fmt.Errorf("purge cache: %w", err)
		}
		slog.Info("cache.purged", "path", s.Path())
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	cachePurgeCmd.Flags().StringVar(&flags.cachePath, "cache-path", "", "envelope cache database path")
}
