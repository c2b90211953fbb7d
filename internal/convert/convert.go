// Package convert orchestrates the batch pipeline: read, decode, parse,
// build, enrich, serialize, one worker per file. Per-file isolation is the
// core guarantee: a malformed or unreadable file degrades its own envelope
// and never the batch.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/retroware/basconv/internal/diag"
	"github.com/retroware/basconv/internal/emit"
	"github.com/retroware/basconv/internal/encode"
	"github.com/retroware/basconv/internal/enrich"
	"github.com/retroware/basconv/internal/ingest"
	"github.com/retroware/basconv/internal/ir"
	"github.com/retroware/basconv/internal/irbuild"
)

// ErrSinkUnavailable is returned when an output destination cannot be
// acquired. Unlike per-file errors this is fatal for the batch.
var ErrSinkUnavailable = errors.New("convert: output sink unavailable")

// Mode selects the output shape.
type Mode string

const (
	ModePerFile  Mode = "perFile"  // one envelope per source file
	ModeManifest Mode = "manifest" // one aggregated manifest envelope
)

// FileJob names one source file to convert. Raw optionally carries
// pre-read content (tests, cached inputs); when nil the file is read from
// Path.
type FileJob struct {
	Path string
	Raw  []byte
}

// SinkFactory opens the output destination for a source path. For
// manifest mode it is called once with the empty path. A factory error
// aborts the batch with ErrSinkUnavailable.
type SinkFactory func(sourcePath string) (io.WriteCloser, error)

// Options configures a Run.
type Options struct {
	SchemaVersion string
	Mode          Mode
	Workers       int // <= 0 means GOMAXPROCS
	Sink          SinkFactory

	// Cache, when set, short-circuits files whose (path, checksum,
	// schemaVersion) envelope is already stored.
	Cache Cache
}

// Cache is the optional envelope store. Lookup misses return ("", false).
type Cache interface {
	Get(path, checksum, schemaVersion string) (string, bool)
	Put(path, checksum, schemaVersion, envelope string) error
}

// FileResult is the outcome for one input file, in input order.
type FileResult struct {
	File        *ir.SourceFile
	Module      *ir.Module // nil on fatal file error
	Diagnostics []diag.Diagnostic
	Envelope    string // serialized JSON envelope
	FromCache   bool
}

// Summary aggregates a run.
type Summary struct {
	Files     int
	Fatal     int // files that produced no module
	Errors    int // files with at least one error diagnostic
	Warnings  int // files with at least one warning diagnostic
	CacheHits int
	Elapsed   time.Duration
}

// Run converts the given files and writes envelopes through the sink
// factory. Results come back in input order regardless of completion
// order. Cancellation stops scheduling files that have not started;
// in-flight files finish so no partial envelope is ever written.
func Run(ctx context.Context, jobs []FileJob, opts Options) ([]FileResult, Summary, error) {
	start := time.Now()
	if opts.SchemaVersion == "" {
		opts.SchemaVersion = emit.SchemaVersion
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	slog.Info("convert.start", "files", len(jobs), "workers", workers, "mode", string(opts.Mode))

	results := make([]FileResult, len(jobs))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		i, job := i, job
		g.Go(func() error {
			results[i] = convertOne(job, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Summary{}, err
	}

	// Scheduled-but-skipped slots (cancellation) have a nil File.
	emitted := results[:0]
	for _, r := range results {
		if r.File != nil {
			emitted = append(emitted, r)
		}
	}
	results = emitted

	if err := writeOut(results, opts); err != nil {
		return nil, Summary{}, err
	}

	sum := summarize(results, time.Since(start))
	slog.Info("convert.done",
		"files", sum.Files, "fatal", sum.Fatal, "errors", sum.Errors,
		"warnings", sum.Warnings, "cache_hits", sum.CacheHits, "elapsed", sum.Elapsed)
	return results, sum, nil
}

// convertOne runs the full pipeline for a single file. Engine instances
// are created fresh here and never shared between workers.
func convertOne(job FileJob, opts Options) FileResult {
	file := &ir.SourceFile{Path: job.Path, Kind: ir.KindForPath(job.Path)}
	collector := diag.NewCollector()

	raw := job.Raw
	if raw == nil {
		var err error
		raw, err = os.ReadFile(job.Path)
		if err != nil {
			collector.Add(diag.Diagnostic{
				Severity: diag.SeverityError,
				Code:     diag.CodeReadFailed,
				Message:  fmt.Sprintf("cannot read source file: %v", err),
				Stage:    diag.StageFile,
			})
			return fatalResult(file, collector, opts)
		}
	}
	file.Checksum = Checksum(raw)

	if opts.Cache != nil {
		if env, ok := opts.Cache.Get(file.Path, file.Checksum, opts.SchemaVersion); ok {
			slog.Debug("convert.cache_hit", "path", file.Path)
			return FileResult{File: file, Envelope: env, FromCache: true}
		}
	}

	decoded, encName, err := encode.Decode(raw)
	if err != nil {
		collector.Add(diag.Diagnostic{
			Severity: diag.SeverityError,
			Code:     diag.CodeUndecodable,
			Message:  "source is not decodable as UTF-8 or Windows-1252",
			Stage:    diag.StageFile,
			Hint:     "binary or UTF-16 content is not a supported source encoding",
		})
		return fatalResult(file, collector, opts)
	}
	file.Encoding = encName

	tree, syntaxDiags := ingest.Ingest(decoded, file.Kind)
	collector.AddAll(syntaxDiags)

	mod := irbuild.Build(tree, file)
	file.Kind = mod.Kind // header detection may refine the suffix hint
	enrich.Enrich(mod, collector)

	finalized := collector.Finalize()
	result := FileResult{File: file, Module: mod, Diagnostics: finalized}
	result.Envelope = render(file, mod, finalized, opts.SchemaVersion)

	if opts.Cache != nil && result.Envelope != "" {
		if err := opts.Cache.Put(file.Path, file.Checksum, opts.SchemaVersion, result.Envelope); err != nil {
			slog.Warn("convert.cache_put.err", "path", file.Path, "err", err)
		}
	}
	slog.Debug("convert.file", "path", file.Path, "kind", string(file.Kind), "diags", len(finalized))
	return result
}

func fatalResult(file *ir.SourceFile, c *diag.Collector, opts Options) FileResult {
	finalized := c.Finalize()
	return FileResult{
		File:        file,
		Diagnostics: finalized,
		Envelope:    render(file, nil, finalized, opts.SchemaVersion),
	}
}

// render serializes one envelope to a string. Serialization into memory
// keeps sink writes atomic per file.
func render(file *ir.SourceFile, mod *ir.Module, diags []diag.Diagnostic, schemaVersion string) string {
	var sb strings.Builder
	if err := emit.EncodeFile(&sb, file, mod, diags, schemaVersion); err != nil {
		slog.Warn("convert.encode.err", "path", file.Path, "err", err)
		return ""
	}
	return sb.String()
}

func writeOut(results []FileResult, opts Options) error {
	if opts.Sink == nil {
		return nil
	}
	switch opts.Mode {
	case ModeManifest:
		w, err := opts.Sink("")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
		}
		defer w.Close()
		entries := make([]emit.ManifestEntry, 0, len(results))
		for _, r := range results {
			entry := emit.ManifestEntry{File: r.File}
			// Cache hits carry only the serialized envelope; splicing it
			// keeps warm manifests byte-identical to cold ones.
			if r.FromCache && r.Envelope != "" {
				entry.RawEnvelope = r.Envelope
			} else {
				entry.Module = r.Module
				entry.Diagnostics = r.Diagnostics
			}
			entries = append(entries, entry)
		}
		if err := emit.EncodeManifest(w, entries, nil, opts.SchemaVersion); err != nil {
			return err
		}
		return nil
	default:
		for _, r := range results {
			w, err := opts.Sink(r.File.Path)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
			}
			_, werr := io.WriteString(w, r.Envelope)
			cerr := w.Close()
			if werr != nil {
				return fmt.Errorf("convert: write envelope for %s: %w", r.File.Path, werr)
			}
			if cerr != nil {
				return fmt.Errorf("convert: close sink for %s: %w", r.File.Path, cerr)
			}
		}
		return nil
	}
}

func summarize(results []FileResult, elapsed time.Duration) Summary {
	sum := Summary{Files: len(results), Elapsed: elapsed}
	for _, r := range results {
		if r.FromCache {
			sum.CacheHits++
			continue
		}
		if r.Module == nil {
			sum.Fatal++
		}
		hasErr, hasWarn := false, false
		for _, d := range r.Diagnostics {
			switch d.Severity {
			case diag.SeverityError:
				hasErr = true
			case diag.SeverityWarning:
				hasWarn = true
			}
		}
		if hasErr {
			sum.Errors++
		}
		if hasWarn {
			sum.Warnings++
		}
	}
	return sum
}
