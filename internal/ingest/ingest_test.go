package ingest

import (
	"testing"

	"github.com/retroware/basconv/internal/basic"
	"github.com/retroware/basconv/internal/diag"
	"github.com/retroware/basconv/internal/ir"
)

func TestIngestCleanSource(t *testing.T) {
	tree, diags := Ingest([]byte("Dim x As Long\n"), ir.ModuleStandard)
	if tree == nil || tree.Root == nil {
		t.Fatal("nil tree")
	}
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
}

func TestIngestMapsCodes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"unterminated string", "s = \"oops\n", diag.CodeUnterminated},
		{"bad character", "Dim x\n%%%\n", diag.CodeBadToken},
		{"generic syntax", "Sub Broken()\n", diag.CodeSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := Ingest([]byte(tt.src), ir.ModuleStandard)
			if len(diags) == 0 {
				t.Fatal("expected diagnostics")
			}
			found := false
			for _, d := range diags {
				if d.Code == tt.code {
					found = true
					if d.Stage != diag.StageSyntax {
						t.Errorf("stage %q", d.Stage)
					}
					if d.Severity != diag.SeverityError {
						t.Errorf("severity %v", d.Severity)
					}
				}
			}
			if !found {
				t.Errorf("no %s diagnostic in %v", tt.code, diags)
			}
		})
	}
}

func TestNodeSpan(t *testing.T) {
	src := []byte("Dim x As Long\n")
	tree, _ := Ingest(src, ir.ModuleStandard)
	decl := tree.Root.Find(basic.KindVarDecl)
	if decl == nil {
		t.Fatal("no declaration node")
	}
	span := NodeSpan(decl)
	if span.StartByte != 0 {
		t.Errorf("start byte %d", span.StartByte)
	}
	if span.EndByte != len("Dim x As Long") {
		t.Errorf("end byte %d", span.EndByte)
	}
	if span.StartLine != 1 || span.EndLine != 1 {
		t.Errorf("lines %d-%d", span.StartLine, span.EndLine)
	}
	// Empty rule node yields the zero span.
	if got := NodeSpan(&basic.Node{Kind: basic.KindBlock}); got != (ir.Span{}) {
		t.Errorf("empty node span %+v", got)
	}
}
