package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "basconv [flags] <file-or-dir>...",
	Short: "Convert legacy Basic sources to normalized JSON",
	Long: `basconv parses legacy Basic source files (.bas, .cls, .frm) into a
normalized intermediate representation and emits deterministic,
schema-stable JSON envelopes for downstream tooling.`,
	Args:          cobra.ArbitraryArgs,
	RunE:          runConvert,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

var flags struct {
	configPath    string
	outputDir     string
	mode          string
	workers       int
	schemaVersion string
	strict        bool
	noCache       bool
	cachePath     string
	verbose       bool
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "path to basconv.toml (default: ./basconv.toml if present)")
	f.StringVarP(&flags.outputDir, "out", "o", "", "output directory for envelopes")
	f.StringVar(&flags.mode, "mode", "", "output mode: perFile or manifest")
	f.IntVar(&flags.workers, "workers", 0, "worker pool size (0 = number of CPUs)")
	f.StringVar(&flags.schemaVersion, "schema-version", "", "envelope schema version override")
	f.BoolVar(&flags.strict, "strict", false, "exit non-zero when any file fails fatally")
	f.BoolVar(&flags.noCache, "no-cache", false, "disable the envelope cache")
	f.StringVar(&flags.cachePath, "cache-path", "", "envelope cache database path")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(cacheCmd)
}

// setupLogging routes slog to stderr, keeping stdout clean.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "basconv:", err)
		os.Exit(1)
	}
}
