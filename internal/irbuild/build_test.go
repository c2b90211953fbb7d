package irbuild

import (
	"strings"
	"testing"

	"github.com/retroware/basconv/internal/ingest"
	"github.com/retroware/basconv/internal/ir"
)

func buildSrc(t *testing.T, path, src string) *ir.Module {
	t.Helper()
	file := &ir.SourceFile{Path: path, Kind: ir.KindForPath(path)}
	tree, _ := ingest.Ingest([]byte(src), file.Kind)
	return Build(tree, file)
}

func TestBuildModuleMetadata(t *testing.T) {
	src := strings.Join([]string{
		`VERSION 1.0 CLASS`,
		`Attribute VB_Name = "Account"`,
		`Option Explicit`,
		`Option Compare Text`,
		``,
	}, "\n")
	mod := buildSrc(t, "Account.cls", src)

	if mod.Name != "Account" {
		t.Errorf("name %q", mod.Name)
	}
	if mod.Kind != ir.ModuleClass {
		t.Errorf("kind %q", mod.Kind)
	}
	if mod.Version != "1.0" {
		t.Errorf("version %q", mod.Version)
	}
	if len(mod.Attrs) != 1 || mod.Attrs[0].Name != "VB_Name" || mod.Attrs[0].Values[0] != "Account" {
		t.Errorf("attrs %+v", mod.Attrs)
	}
	if len(mod.Options) != 2 {
		t.Fatalf("options %+v", mod.Options)
	}
	if mod.Options[0].Type != "explicit" || mod.Options[1].Type != "compare" || mod.Options[1].Value != "text" {
		t.Errorf("options %+v", mod.Options)
	}
}

func TestBuildNameFallsBackToFileStem(t *testing.T) {
	mod := buildSrc(t, "dir/Helpers.bas", "Dim x As Long\n")
	if mod.Name != "Helpers" {
		t.Errorf("name %q", mod.Name)
	}
	if mod.Kind != ir.ModuleStandard {
		t.Errorf("kind %q", mod.Kind)
	}
}

func TestBuildOptionDedup(t *testing.T) {
	src := "Option Explicit\nOption Explicit\n"
	mod := buildSrc(t, "M.bas", src)
	if len(mod.Options) != 1 {
		t.Errorf("options not deduplicated: %+v", mod.Options)
	}
}

func TestBuildMultiNameDeclFansOut(t *testing.T) {
	mod := buildSrc(t, "M.bas", "Private a As Long, b$, c(10) As String\n")
	if len(mod.Children) != 3 {
		t.Fatalf("expected 3 declarations, got %d", len(mod.Children))
	}
	a := mod.Children[0].(*ir.Declaration)
	b := mod.Children[1].(*ir.Declaration)
	c := mod.Children[2].(*ir.Declaration)

	if a.Name != "a" || a.TypeName != "Long" || a.Visibility != "private" {
		t.Errorf("a: %+v", a)
	}
	if b.Name != "b" || b.TypeSigil != "$" {
		t.Errorf("b: %+v", b)
	}
	if c.Name != "c" || !c.IsArray || c.TypeName != "String" {
		t.Errorf("c: %+v", c)
	}

	// Sibling spans are increasing and non-overlapping.
	for i := 1; i < len(mod.Children); i++ {
		prev := mod.Children[i-1].Base().Span
		cur := mod.Children[i].Base().Span
		if prev.EndByte > cur.StartByte {
			t.Errorf("sibling spans overlap: %+v then %+v", prev, cur)
		}
	}
}

func TestBuildConstDecl(t *testing.T) {
	mod := buildSrc(t, "M.bas", `Public Const MAX_RETRIES As Long = 5, GREETING = "hi"`+"\n")
	if len(mod.Children) != 2 {
		t.Fatalf("children %d", len(mod.Children))
	}
	first := mod.Children[0].(*ir.Declaration)
	if first.DeclKind != ir.DeclConstant || first.Name != "MAX_RETRIES" || first.Value != "5" {
		t.Errorf("first: %+v", first)
	}
	second := mod.Children[1].(*ir.Declaration)
	if second.Value != `"hi"` {
		t.Errorf("second value %q", second.Value)
	}
}

func TestBuildTypeAndEnum(t *testing.T) {
	src := strings.Join([]string{
		`Private Type Point`,
		`    x As Long`,
		`    y As Long`,
		`End Type`,
		`Public Enum Color`,
		`    Red = 1`,
		`    Green`,
		`End Enum`,
		``,
	}, "\n")
	mod := buildSrc(t, "M.bas", src)
	if len(mod.Children) != 2 {
		t.Fatalf("children %d", len(mod.Children))
	}
	tb := mod.Children[0].(*ir.Declaration)
	if tb.DeclKind != ir.DeclType || tb.Name != "Point" || len(tb.Children) != 2 {
		t.Errorf("type block: %+v", tb)
	}
	eb := mod.Children[1].(*ir.Declaration)
	if eb.DeclKind != ir.DeclEnum || eb.Name != "Color" || len(eb.Children) != 2 {
		t.Fatalf("enum block: %+v", eb)
	}
	red := eb.Children[0].(*ir.Declaration)
	if red.Name != "Red" || red.Value != "1" {
		t.Errorf("red: %+v", red)
	}
}

func TestBuildDeclareStmt(t *testing.T) {
	src := `Private Declare Function GetTickCount Lib "kernel32" () As Long` + "\n"
	mod := buildSrc(t, "M.bas", src)
	decl := mod.Children[0].(*ir.Declaration)
	if decl.DeclKind != ir.DeclExternal || decl.Name != "GetTickCount" {
		t.Errorf("declare: %+v", decl)
	}
	if decl.TypeName != "Long" {
		t.Errorf("return type %q", decl.TypeName)
	}
}

func TestBuildProcedure(t *testing.T) {
	src := strings.Join([]string{
		`Public Function Add(ByVal a As Long, Optional b As Long = 1) As Long`,
		`    Add = a + b`,
		`End Function`,
		``,
	}, "\n")
	mod := buildSrc(t, "M.bas", src)
	proc := mod.Children[0].(*ir.Procedure)
	if proc.ProcKind != ir.ProcFunction || proc.Name != "Add" || proc.Visibility != "public" {
		t.Errorf("proc: %+v", proc)
	}
	if proc.ReturnType != "Long" {
		t.Errorf("return type %q", proc.ReturnType)
	}
	if len(proc.Params) != 2 {
		t.Fatalf("params %d", len(proc.Params))
	}
	if proc.Params[0].Name != "a" || len(proc.Params[0].Modifiers) != 1 || proc.Params[0].Modifiers[0] != "ByVal" {
		t.Errorf("param a: %+v", proc.Params[0])
	}
	if proc.Params[1].Default != "1" {
		t.Errorf("param b default %q", proc.Params[1].Default)
	}
	if len(proc.Children) != 1 {
		t.Fatalf("body %d nodes", len(proc.Children))
	}
	st := proc.Children[0].(*ir.Statement)
	if st.StmtKind != ir.StmtAssignment {
		t.Errorf("stmt kind %q", st.StmtKind)
	}
}

func TestBuildPropertyKinds(t *testing.T) {
	src := strings.Join([]string{
		`Property Get Balance() As Currency`,
		`End Property`,
		`Property Let Balance(v As Currency)`,
		`End Property`,
		`Property Set Owner(o As Object)`,
		`End Property`,
		``,
	}, "\n")
	mod := buildSrc(t, "C.cls", src)
	want := []ir.ProcKind{ir.ProcPropertyGet, ir.ProcPropertyLet, ir.ProcPropertySet}
	if len(mod.Children) != 3 {
		t.Fatalf("children %d", len(mod.Children))
	}
	for i, k := range want {
		proc := mod.Children[i].(*ir.Procedure)
		if proc.ProcKind != k {
			t.Errorf("proc %d: kind %q, want %q", i, proc.ProcKind, k)
		}
	}
}

func TestBuildStatements(t *testing.T) {
	src := strings.Join([]string{
		`Sub Flow()`,
		`    If ready Then`,
		`        Go`,
		`    Else`,
		`        Wait`,
		`    End If`,
		`    For i = 1 To 3`,
		`        Step1`,
		`    Next i`,
		`    Select Case mode`,
		`        Case 1`,
		`            A`,
		`        Case Else`,
		`            B`,
		`    End Select`,
		`    On Error Resume Next`,
		`End Sub`,
		``,
	}, "\n")
	mod := buildSrc(t, "M.bas", src)
	proc := mod.Children[0].(*ir.Procedure)

	var kindsSeen []ir.StmtKind
	for _, c := range proc.Children {
		if st, ok := c.(*ir.Statement); ok {
			kindsSeen = append(kindsSeen, st.StmtKind)
		}
	}
	want := []ir.StmtKind{ir.StmtIf, ir.StmtFor, ir.StmtSelect, ir.StmtOnError}
	if len(kindsSeen) != len(want) {
		t.Fatalf("statements %v", kindsSeen)
	}
	for i := range want {
		if kindsSeen[i] != want[i] {
			t.Fatalf("statements %v, want %v", kindsSeen, want)
		}
	}

	ifStmt := proc.Children[0].(*ir.Statement)
	if len(ifStmt.Children) != 2 {
		t.Fatalf("if arms %d", len(ifStmt.Children))
	}
	for _, arm := range ifStmt.Children {
		if arm.(*ir.Statement).StmtKind != ir.StmtBranch {
			t.Errorf("arm kind %q", arm.(*ir.Statement).StmtKind)
		}
	}

	sel := proc.Children[2].(*ir.Statement)
	caseCount := 0
	for _, c := range sel.Children {
		if st, ok := c.(*ir.Statement); ok && st.StmtKind == ir.StmtCase {
			caseCount++
		}
	}
	if caseCount != 2 {
		t.Errorf("case clauses %d", caseCount)
	}
}

func TestBuildTriviaAttachment(t *testing.T) {
	src := strings.Join([]string{
		`' header comment`,
		`Dim x As Long ' trailing note`,
		``,
	}, "\n")
	mod := buildSrc(t, "M.bas", src)
	if len(mod.Children) != 1 {
		t.Fatalf("children %d", len(mod.Children))
	}
	decl := mod.Children[0].(*ir.Declaration)
	if len(decl.Base().Leading) != 1 {
		t.Fatalf("leading trivia %d", len(decl.Base().Leading))
	}
	if decl.Base().Leading[0].Text != "' header comment" {
		t.Errorf("leading text %q", decl.Base().Leading[0].Text)
	}
	if len(decl.Base().Trailing) != 1 {
		t.Fatalf("trailing trivia %d", len(decl.Base().Trailing))
	}
	if decl.Base().Trailing[0].Text != "' trailing note" {
		t.Errorf("trailing text %q", decl.Base().Trailing[0].Text)
	}
}

func TestBuildFormControlsAndBindings(t *testing.T) {
	src := strings.Join([]string{
		`VERSION 5.00`,
		`Begin VB.Form Form1`,
		`   Caption = "Main"`,
		`   Begin VB.CommandButton cmdOK`,
		`      Caption = "OK"`,
		`      Picture = "Form1.frx":0000`,
		`      BeginProperty Font`,
		`         Name = "Tahoma"`,
		`      EndProperty`,
		`   End`,
		`End`,
		`Attribute VB_Name = "Form1"`,
		`Private Sub cmdOK_Click()`,
		`End Sub`,
		`Private Sub Helper_Routine()`,
		`End Sub`,
		``,
	}, "\n")
	mod := buildSrc(t, "Form1.frm", src)
	if mod.Kind != ir.ModuleForm {
		t.Fatalf("kind %q", mod.Kind)
	}

	form, ok := mod.Children[0].(*ir.Control)
	if !ok {
		t.Fatalf("first child %T", mod.Children[0])
	}
	if form.Name != "Form1" || form.TypeName != "VB.Form" {
		t.Errorf("form: %q %q", form.Name, form.TypeName)
	}
	if len(form.Props) != 1 || form.Props[0].Name != "Caption" {
		t.Errorf("form props %+v", form.Props)
	}

	var btn *ir.Control
	for _, c := range form.Children {
		if ctl, ok := c.(*ir.Control); ok {
			btn = ctl
		}
	}
	if btn == nil || btn.Name != "cmdOK" || btn.TypeName != "VB.CommandButton" {
		t.Fatalf("button: %+v", btn)
	}
	if len(btn.ResourceRefs) != 1 || btn.ResourceRefs[0] != "Form1.frx" {
		t.Errorf("resource refs %+v", btn.ResourceRefs)
	}
	// Property group names are prefixed.
	foundFont := false
	for _, p := range btn.Props {
		if p.Name == "Font.Name" {
			foundFont = true
		}
	}
	if !foundFont {
		t.Errorf("grouped property missing: %+v", btn.Props)
	}

	if len(mod.Bindings) != 2 {
		t.Fatalf("bindings %d", len(mod.Bindings))
	}
	b := mod.Bindings[0]
	if b.ControlName != "cmdOK" || b.EventName != "Click" || b.ProcedureName != "cmdOK_Click" {
		t.Errorf("binding: %+v", b)
	}
}

func TestBuildSpanInvariants(t *testing.T) {
	src := strings.Join([]string{
		`Attribute VB_Name = "M"`,
		`Dim a As Long`,
		``,
		`Sub S()`,
		`    a = 1`,
		`End Sub`,
		``,
	}, "\n")
	mod := buildSrc(t, "M.bas", src)

	var check func(n ir.Node)
	check = func(n ir.Node) {
		parent := n.Base().Span
		children := ir.ChildNodes(n)
		for i, c := range children {
			cs := c.Base().Span
			if cs.EndByte > cs.StartByte { // skip empty spans
				if !parent.Contains(cs) {
					t.Errorf("child span %+v escapes parent %+v", cs, parent)
				}
			}
			if i > 0 {
				prev := children[i-1].Base().Span
				if prev.EndByte > cs.StartByte {
					t.Errorf("sibling spans out of order: %+v then %+v", prev, cs)
				}
			}
			check(c)
		}
	}
	check(mod)
}

func TestBuildErrorNodes(t *testing.T) {
	src := "Dim ok As Long\n%%% garbage\n"
	mod := buildSrc(t, "M.bas", src)
	foundErr := false
	ir.Walk(mod, func(n ir.Node) bool {
		if n.NodeKind() == ir.KindError {
			foundErr = true
		}
		return true
	})
	if !foundErr {
		t.Error("expected an error node for undigestible input")
	}
	if _, ok := mod.Children[0].(*ir.Declaration); !ok {
		t.Error("valid declaration before garbage should survive")
	}
}

func TestBuildDanglingOperatorErrorSpan(t *testing.T) {
	src := "Sub S()\nx = 1 +\nEnd Sub\n"
	file := &ir.SourceFile{Path: "M.bas", Kind: ir.KindForPath("M.bas")}
	tree, diags := ingest.Ingest([]byte(src), file.Kind)
	mod := Build(tree, file)

	var errNode ir.Node
	ir.Walk(mod, func(n ir.Node) bool {
		if n.NodeKind() == ir.KindError {
			errNode = n
		}
		return true
	})
	if errNode == nil {
		t.Fatal("expected an error node for the missing operand")
	}
	span := errNode.Base().Span
	if span.EndByte <= span.StartByte || span.StartByte == 0 {
		t.Fatalf("error node span %+v", span)
	}
	matched := false
	for _, d := range diags {
		if d.Span.StartByte < span.EndByte && span.StartByte < d.Span.EndByte {
			matched = true
		}
	}
	if !matched {
		t.Errorf("no diagnostic intersects error span %+v: %+v", span, diags)
	}
}

func TestBuildMissingOperandKeepsErrorChild(t *testing.T) {
	mod := buildSrc(t, "M.bas", "Sub S()\ny =\nEnd Sub\n")
	var assign *ir.Statement
	ir.Walk(mod, func(n ir.Node) bool {
		if st, ok := n.(*ir.Statement); ok && st.StmtKind == ir.StmtAssignment {
			assign = st
		}
		return true
	})
	if assign == nil {
		t.Fatal("no assignment statement")
	}
	found := false
	for _, c := range assign.Children {
		if c.NodeKind() == ir.KindError {
			found = true
		}
	}
	if !found {
		t.Errorf("assignment should keep an error child, got %d children", len(assign.Children))
	}
}
