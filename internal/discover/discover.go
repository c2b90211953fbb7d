package discover

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/retroware/basconv/internal/ir"
)

// IGNORE_PATTERNS are directory names to skip during discovery.
var IGNORE_PATTERNS = map[string]bool{
	".git": true, ".hg": true, ".svn": true, ".vs": true,
	".vscode": true, ".idea": true, ".tmp": true,
	"bin": true, "obj": true, "out": true, "build": true,
	"dist": true, "temp": true, "tmp": true,
}

// IGNORE_SUFFIXES are file suffixes to skip. Designer resource and
// compiled artifacts travel next to source in legacy project trees.
var IGNORE_SUFFIXES = map[string]bool{
	".tmp": true, "~": true, ".frx": true, ".exe": true,
	".dll": true, ".ocx": true, ".vbp": true, ".vbw": true,
	".scc": true, ".log": true,
}

// FileInfo represents a discovered source file.
type FileInfo struct {
	Path    string        // absolute path
	RelPath string        // relative to the input root
	Kind    ir.ModuleKind // suffix-derived module kind hint
}

// Options configures file discovery.
type Options struct {
	IgnoreFile string // path to .basconvignore file (optional)
}

// sourceSuffixes maps recognized source suffixes to inclusion.
var sourceSuffixes = map[string]bool{
	".bas": true,
	".cls": true,
	".frm": true,
}

// shouldSkipDir returns true if the directory should be skipped during discovery.
func shouldSkipDir(name, rel string, extraIgnore []string) bool {
	if IGNORE_PATTERNS[name] {
		return true
	}
	for _, pattern := range extraIgnore {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// Discover walks an input root and returns all legacy Basic source files
// in deterministic (sorted) order. A root that is itself a source file
// returns a single entry.
func Discover(ctx context.Context, root string, opts *Options) ([]FileInfo, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		ext := strings.ToLower(filepath.Ext(root))
		if !sourceSuffixes[ext] {
			return nil, nil
		}
		return []FileInfo{{
			Path:    root,
			RelPath: filepath.Base(root),
			Kind:    ir.KindForPath(root),
		}}, nil
	}

	// Load .basconvignore patterns if present
	var extraIgnore []string
	if opts != nil && opts.IgnoreFile != "" {
		extraIgnore, _ = loadIgnoreFile(opts.IgnoreFile)
	} else {
		ignPath := filepath.Join(root, ".basconvignore")
		extraIgnore, _ = loadIgnoreFile(ignPath)
	}

	var files []FileInfo

	err = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		// Check context cancellation periodically during walk
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			return filepath.SkipDir
		}

		rel, _ := filepath.Rel(root, path)

		if info.IsDir() {
			if shouldSkipDir(info.Name(), rel, extraIgnore) {
				return filepath.SkipDir
			}
			return nil
		}

		lower := strings.ToLower(path)
		for suffix := range IGNORE_SUFFIXES {
			if strings.HasSuffix(lower, suffix) {
				return nil
			}
		}

		ext := strings.ToLower(filepath.Ext(path))
		if sourceSuffixes[ext] {
			files = append(files, FileInfo{
				Path:    path,
				RelPath: filepath.ToSlash(rel),
				Kind:    ir.KindForPath(path),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Walk order is already lexical per directory; sorting the joined set
	// keeps multi-root batches deterministic too.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func loadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns, scanner.Err()
}
