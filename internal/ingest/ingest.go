// Package ingest adapts the grammar engine to the pipeline: it installs a
// collecting error listener, runs the lexer and parser, and hands back the
// raw tree plus syntax diagnostics. Malformed input never aborts a run;
// recovery events become diagnostics and nothing is ever printed.
package ingest

import (
	"strings"

	"github.com/retroware/basconv/internal/basic"
	"github.com/retroware/basconv/internal/diag"
	"github.com/retroware/basconv/internal/ir"
)

// Result is a parsed file awaiting IR construction.
type Result struct {
	Tree        *basic.Tree
	Diagnostics []diag.Diagnostic
}

// collectingListener converts engine recovery events into diagnostics.
type collectingListener struct {
	items []diag.Diagnostic
}

func (l *collectingListener) SyntaxError(start, end basic.Pos, msg string) {
	code := diag.CodeSyntax
	switch {
	case strings.Contains(msg, "unterminated"):
		code = diag.CodeUnterminated
	case strings.Contains(msg, "unexpected character"):
		code = diag.CodeBadToken
	}
	l.items = append(l.items, diag.Diagnostic{
		Severity: diag.SeverityError,
		Code:     code,
		Message:  msg,
		Span:     SpanBetween(start, end),
		Stage:    diag.StageSyntax,
	})
}

// SpanBetween converts engine positions into an IR span.
func SpanBetween(start, end basic.Pos) ir.Span {
	return ir.Span{
		StartLine: start.Line,
		StartCol:  start.Col,
		EndLine:   end.Line,
		EndCol:    end.Col,
		StartByte: start.Byte,
		EndByte:   end.Byte,
	}
}

// NodeSpan computes the IR span covered by a raw tree node. Empty rule
// nodes yield the zero span.
func NodeSpan(n *basic.Node) ir.Span {
	first, last := n.FirstToken(), n.LastToken()
	if first == nil || last == nil {
		return ir.Span{}
	}
	return SpanBetween(first.Start, last.End)
}

// Ingest parses decoded source text into a raw tree. The module-kind hint
// is accepted for interface parity with the original contract; the grammar
// is uniform across module kinds, so the hint only matters downstream.
//
// Engine instances hold mutable state: a fresh lexer and parser are
// created per call and never reused across goroutines.
func Ingest(src []byte, _ ir.ModuleKind) (*basic.Tree, []diag.Diagnostic) {
	listener := &collectingListener{}
	tree := basic.Parse(src, listener)
	return tree, listener.items
}
