// Package diag is the diagnostics model shared by every pipeline stage.
// Stages append to a Collector; Finalize produces the sorted, deduplicated
// sequence the serializer emits. There is no ambient log: the collector is
// an explicit value threaded through the stages, which keeps per-file
// pipelines safe to run in parallel.
package diag

import (
	"sort"

	"github.com/retroware/basconv/internal/ir"
)

// Severity orders diagnostics from most to least severe.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Stage names the pipeline stage that produced a diagnostic.
type Stage string

const (
	StageSyntax   Stage = "syntax"
	StageSemantic Stage = "semantic"
	StageFile     Stage = "file" // fatal file errors (decode, read)
)

// Stable diagnostic codes. Codes are part of the output contract.
const (
	CodeSyntax       = "SYN001"
	CodeUnterminated = "SYN002"
	CodeBadToken     = "SYN003"

	CodeUnresolvedType   = "SEM001"
	CodeDuplicateControl = "SEM002"
	CodeUnmatchedBinding = "SEM003"

	CodeUndecodable = "FIL001"
	CodeReadFailed  = "FIL002"
)

// Diagnostic is a comparable value object describing one issue.
type Diagnostic struct {
	Severity Severity
	Code     string
	Message  string
	Span     ir.Span
	Stage    Stage
	Hint     string // optional remediation hint
}

// Less orders diagnostics by (span start, severity, code), the contract
// order for finalized output.
func Less(a, b Diagnostic) bool {
	if a.Span.StartByte != b.Span.StartByte {
		return a.Span.StartByte < b.Span.StartByte
	}
	if a.Severity != b.Severity {
		return a.Severity < b.Severity
	}
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	return a.Message < b.Message
}

// Collector accumulates diagnostics from stages. Append-only until
// Finalize; afterwards appends are dropped.
type Collector struct {
	items     []Diagnostic
	finalized bool
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends one diagnostic. No-op after Finalize.
func (c *Collector) Add(d Diagnostic) {
	if c.finalized {
		return
	}
	c.items = append(c.items, d)
}

// AddAll appends a batch of diagnostics.
func (c *Collector) AddAll(ds []Diagnostic) {
	for _, d := range ds {
		c.Add(d)
	}
}

// Len returns the number of accumulated diagnostics (pre-dedup).
func (c *Collector) Len() int { return len(c.items) }

// Finalize sorts by (span start, severity, code) and drops duplicate
// (span, code, message) triples. The result is stable across runs on
// identical input. Subsequent calls return the same slice.
func (c *Collector) Finalize() []Diagnostic {
	if !c.finalized {
		sort.SliceStable(c.items, func(i, j int) bool {
			return Less(c.items[i], c.items[j])
		})
		out := c.items[:0]
		type key struct {
			span ir.Span
			code string
			msg  string
		}
		seen := make(map[key]bool, len(c.items))
		for _, d := range c.items {
			k := key{span: d.Span, code: d.Code, msg: d.Message}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, d)
		}
		c.items = out
		c.finalized = true
	}
	return c.items
}

// HasMinSeverity reports whether any accumulated diagnostic is at least as
// severe as sev. Usable before and after Finalize.
func (c *Collector) HasMinSeverity(sev Severity) bool {
	for _, d := range c.items {
		if d.Severity <= sev {
			return true
		}
	}
	return false
}
