package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/retroware/basconv/internal/convert"
	"github.com/retroware/basconv/internal/discover"
	"github.com/retroware/basconv/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] <file-or-dir>...",
	Short: "Reconvert sources whenever they change",
	Long: `Watch the given inputs and rerun the conversion when source files are
added, removed, or modified. The envelope cache keeps unchanged files
cheap across reruns.`,
	Args:         cobra.ArbitraryArgs,
	RunE:         runWatch,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	opts := convert.Options{
		SchemaVersion: cfg.SchemaVersion,
		Mode:          convert.Mode(cfg.Mode),
		Workers:       cfg.Workers,
		Sink:          makeSink(cfg),
	}
	if !cfg.NoCache {
		opts.Cache = openCache(cfg)
	}

	convertRoot := func(ctx context.Context, root string) error {
		files, err := discover.Discover(ctx, root, nil)
		if err != nil {
			return err
		}
		jobs := make([]convert.FileJob, 0, len(files))
		for _, f := range files {
			jobs = append(jobs, convert.FileJob{Path: f.Path})
		}
		_, _, err = convert.Run(ctx, jobs, opts)
		return err
	}

	// Initial full conversion before the watch loop takes over.
	for _, root := range cfg.Inputs {
		if err := convertRoot(ctx, root); err != nil {
			return err
		}
	}

	slog.Info("watch.start", "roots", len(cfg.Inputs))
	watcher.New(cfg.Inputs, convertRoot).Run(ctx)
	return nil
}
