package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/retroware/basconv/internal/diag"
	"github.com/retroware/basconv/internal/ir"
)

// memSink collects envelopes by source path.
type memSink struct {
	mu   sync.Mutex
	outs map[string]*bytes.Buffer
}

func newMemSink() *memSink {
	return &memSink{outs: make(map[string]*bytes.Buffer)}
}

func (s *memSink) factory(sourcePath string) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := &bytes.Buffer{}
	s.outs[sourcePath] = buf
	return nopCloser{buf}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

type memCache struct {
	mu      sync.Mutex
	entries map[string]string
	puts    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]string)}
}

func (c *memCache) key(path, checksum, schemaVersion string) string {
	return path + "|" + checksum + "|" + schemaVersion
}

func (c *memCache) Get(path, checksum, schemaVersion string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	env, ok := c.entries[c.key(path, checksum, schemaVersion)]
	return env, ok
}

func (c *memCache) Put(path, checksum, schemaVersion, envelope string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(path, checksum, schemaVersion)] = envelope
	c.puts++
	return nil
}

var cleanSource = strings.Join([]string{
	`Attribute VB_Name = "Module1"`,
	`Option Explicit`,
	``,
	`Public Function Add(a As Long, b As Long) As Long`,
	`    Add = a + b`,
	`End Function`,
	``,
}, "\n")

func TestRunCleanFile(t *testing.T) {
	jobs := []FileJob{{Path: "Module1.bas", Raw: []byte(cleanSource)}}
	results, sum, err := Run(context.Background(), jobs, Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results %d", len(results))
	}
	r := results[0]
	if r.Module == nil || r.Module.Name != "Module1" {
		t.Fatalf("module %+v", r.Module)
	}
	if len(r.Diagnostics) != 0 {
		t.Errorf("diagnostics %v", r.Diagnostics)
	}
	if !json.Valid([]byte(r.Envelope)) {
		t.Error("envelope is not valid JSON")
	}
	if sum.Files != 1 || sum.Fatal != 0 || sum.Errors != 0 {
		t.Errorf("summary %+v", sum)
	}
}

func TestRunSyntaxErrorIsolated(t *testing.T) {
	jobs := []FileJob{
		{Path: "Good.bas", Raw: []byte(cleanSource)},
		{Path: "Bad.bas", Raw: []byte("Dim x As Long\n%%%\n")},
	}
	results, sum, err := Run(context.Background(), jobs, Options{Workers: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results %d", len(results))
	}
	// Input order is preserved regardless of completion order.
	if results[0].File.Path != "Good.bas" || results[1].File.Path != "Bad.bas" {
		t.Fatalf("order: %s, %s", results[0].File.Path, results[1].File.Path)
	}
	if len(results[0].Diagnostics) != 0 {
		t.Errorf("clean file picked up diagnostics: %v", results[0].Diagnostics)
	}
	bad := results[1]
	if bad.Module == nil {
		t.Fatal("syntax errors must not drop the module")
	}
	hasSyntax := false
	for _, d := range bad.Diagnostics {
		if d.Stage == diag.StageSyntax && d.Severity == diag.SeverityError {
			hasSyntax = true
		}
	}
	if !hasSyntax {
		t.Errorf("diagnostics %v", bad.Diagnostics)
	}
	if sum.Errors != 1 || sum.Fatal != 0 {
		t.Errorf("summary %+v", sum)
	}
}

func TestRunFatalFileContinuesBatch(t *testing.T) {
	binary := append([]byte{0xFF, 0xFE}, []byte("not text")...)
	jobs := []FileJob{
		{Path: "Binary.bas", Raw: binary},
		{Path: "Good.bas", Raw: []byte(cleanSource)},
	}
	results, sum, err := Run(context.Background(), jobs, Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	fatal := results[0]
	if fatal.Module != nil {
		t.Error("undecodable file should carry no module")
	}
	if len(fatal.Diagnostics) != 1 || fatal.Diagnostics[0].Code != diag.CodeUndecodable {
		t.Errorf("diagnostics %v", fatal.Diagnostics)
	}
	// The envelope still exists, with a null body.
	var env struct {
		Body *json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal([]byte(fatal.Envelope), &env); err != nil {
		t.Fatalf("unmarshal fatal envelope: %v", err)
	}
	if env.Body != nil && string(*env.Body) != "null" {
		t.Errorf("fatal body %s", *env.Body)
	}
	if results[1].Module == nil {
		t.Error("batch should continue past the fatal file")
	}
	if sum.Fatal != 1 || sum.Files != 2 {
		t.Errorf("summary %+v", sum)
	}
}

func TestRunDeterministic(t *testing.T) {
	jobs := []FileJob{{Path: "Module1.bas", Raw: []byte(cleanSource)}}
	first, _, err := Run(context.Background(), jobs, Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, _, err := Run(context.Background(), jobs, Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first[0].Envelope != second[0].Envelope {
		t.Error("envelopes differ between identical runs")
	}
}

func TestRunBindingWarning(t *testing.T) {
	src := strings.Join([]string{
		`VERSION 5.00`,
		`Begin VB.Form Form1`,
		`End`,
		`Attribute VB_Name = "Form1"`,
		`Private Sub cmdGone_Click()`,
		`End Sub`,
		``,
	}, "\n")
	results, _, err := Run(context.Background(), []FileJob{{Path: "Form1.frm", Raw: []byte(src)}}, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := results[0]
	found := false
	for _, d := range r.Diagnostics {
		if d.Code == diag.CodeUnmatchedBinding && d.Severity == diag.SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("diagnostics %v", r.Diagnostics)
	}
	if r.Module == nil || len(r.Module.Bindings) != 1 {
		t.Error("unmatched binding should stay in the IR")
	}
}

func TestRunPerFileSink(t *testing.T) {
	sink := newMemSink()
	jobs := []FileJob{
		{Path: "A.bas", Raw: []byte(cleanSource)},
		{Path: "B.bas", Raw: []byte(cleanSource)},
	}
	_, _, err := Run(context.Background(), jobs, Options{Mode: ModePerFile, Sink: sink.factory})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.outs) != 2 {
		t.Fatalf("sinks %d", len(sink.outs))
	}
	for path, buf := range sink.outs {
		if !json.Valid(buf.Bytes()) {
			t.Errorf("%s: invalid JSON", path)
		}
	}
}

func TestRunManifestSink(t *testing.T) {
	sink := newMemSink()
	jobs := []FileJob{
		{Path: "A.bas", Raw: []byte(cleanSource)},
		{Path: "B.bas", Raw: []byte(cleanSource)},
	}
	_, _, err := Run(context.Background(), jobs, Options{Mode: ModeManifest, Sink: sink.factory})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	buf, ok := sink.outs[""]
	if !ok || len(sink.outs) != 1 {
		t.Fatalf("manifest mode should open exactly one sink, got %d", len(sink.outs))
	}
	var manifest struct {
		Files []struct {
			Source struct {
				Path string `json:"path"`
			} `json:"source"`
		} `json:"files"`
	}
	if err := json.Unmarshal(buf.Bytes(), &manifest); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if len(manifest.Files) != 2 {
		t.Fatalf("manifest files %d", len(manifest.Files))
	}
	if manifest.Files[0].Source.Path != "A.bas" || manifest.Files[1].Source.Path != "B.bas" {
		t.Errorf("manifest order: %+v", manifest.Files)
	}
}

func TestRunSinkFailureAbortsBatch(t *testing.T) {
	factory := func(string) (io.WriteCloser, error) {
		return nil, fmt.Errorf("disk full")
	}
	_, _, err := Run(context.Background(), []FileJob{{Path: "A.bas", Raw: []byte(cleanSource)}},
		Options{Mode: ModePerFile, Sink: factory})
	if !errors.Is(err, ErrSinkUnavailable) {
		t.Fatalf("got %v, want ErrSinkUnavailable", err)
	}
}

func TestRunCacheHit(t *testing.T) {
	cache := newMemCache()
	jobs := []FileJob{{Path: "A.bas", Raw: []byte(cleanSource)}}

	first, sum1, err := Run(context.Background(), jobs, Options{Cache: cache})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if sum1.CacheHits != 0 || cache.puts != 1 {
		t.Fatalf("first run: hits %d, puts %d", sum1.CacheHits, cache.puts)
	}

	second, sum2, err := Run(context.Background(), jobs, Options{Cache: cache})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum2.CacheHits != 1 {
		t.Errorf("second run hits %d", sum2.CacheHits)
	}
	if !second[0].FromCache {
		t.Error("result should be marked as cached")
	}
	if second[0].Envelope != first[0].Envelope {
		t.Error("cached envelope differs from the original")
	}
}

func TestRunCacheMissOnContentChange(t *testing.T) {
	cache := newMemCache()
	if _, _, err := Run(context.Background(),
		[]FileJob{{Path: "A.bas", Raw: []byte(cleanSource)}}, Options{Cache: cache}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	changed := cleanSource + "' touched\n"
	results, sum, err := Run(context.Background(),
		[]FileJob{{Path: "A.bas", Raw: []byte(changed)}}, Options{Cache: cache})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.CacheHits != 0 || results[0].FromCache {
		t.Error("changed content must miss the cache")
	}
	if cache.puts != 2 {
		t.Errorf("puts %d", cache.puts)
	}
}

func TestRunManifestCacheHitKeepsBody(t *testing.T) {
	cache := newMemCache()
	jobs := []FileJob{
		{Path: "A.bas", Raw: []byte(cleanSource)},
		{Path: "B.bas", Raw: []byte(cleanSource)},
	}

	cold := newMemSink()
	if _, _, err := Run(context.Background(), jobs,
		Options{Mode: ModeManifest, Sink: cold.factory, Cache: cache}); err != nil {
		t.Fatalf("cold run: %v", err)
	}
	warm := newMemSink()
	_, sum, err := Run(context.Background(), jobs,
		Options{Mode: ModeManifest, Sink: warm.factory, Cache: cache})
	if err != nil {
		t.Fatalf("warm run: %v", err)
	}
	if sum.CacheHits != len(jobs) {
		t.Fatalf("warm run hits %d", sum.CacheHits)
	}

	coldOut, warmOut := cold.outs[""].Bytes(), warm.outs[""].Bytes()
	if bytes.Contains(warmOut, []byte(`"body": null`)) {
		t.Error("cached entries must keep their bodies")
	}
	if !bytes.Equal(coldOut, warmOut) {
		t.Errorf("warm manifest differs from cold:\n%s\n---\n%s", coldOut, warmOut)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	jobs := []FileJob{
		{Path: "A.bas", Raw: []byte(cleanSource)},
		{Path: "B.bas", Raw: []byte(cleanSource)},
	}
	results, _, err := Run(ctx, jobs, Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("cancelled run produced %d results", len(results))
	}
}

func TestRunMissingFile(t *testing.T) {
	results, sum, err := Run(context.Background(),
		[]FileJob{{Path: "does/not/exist.bas"}}, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := results[0]
	if r.Module != nil {
		t.Error("missing file should carry no module")
	}
	if len(r.Diagnostics) != 1 || r.Diagnostics[0].Code != diag.CodeReadFailed {
		t.Errorf("diagnostics %v", r.Diagnostics)
	}
	if sum.Fatal != 1 {
		t.Errorf("summary %+v", sum)
	}
}

func TestChecksum(t *testing.T) {
	a := Checksum([]byte("Dim x As Long\n"))
	b := Checksum([]byte("Dim x As Long\n"))
	c := Checksum([]byte("Dim y As Long\n"))
	if a != b {
		t.Error("checksum not stable")
	}
	if a == c {
		t.Error("different content should hash differently")
	}
	if len(a) == 0 {
		t.Error("empty checksum")
	}
}

func TestKindRefinement(t *testing.T) {
	src := strings.Join([]string{
		`VERSION 1.0 CLASS`,
		`Attribute VB_Name = "Thing"`,
		``,
	}, "\n")
	// Wrong suffix on purpose: the header wins over the hint.
	results, _, err := Run(context.Background(),
		[]FileJob{{Path: "Thing.bas", Raw: []byte(src)}}, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].File.Kind != ir.ModuleClass {
		t.Errorf("kind %q", results[0].File.Kind)
	}
}
