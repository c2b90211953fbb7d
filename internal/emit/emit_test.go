package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/retroware/basconv/internal/diag"
	"github.com/retroware/basconv/internal/ir"
)

func sampleModule() (*ir.SourceFile, *ir.Module) {
	file := &ir.SourceFile{
		Path:     "Form1.frm",
		Checksum: "abc123",
		Encoding: "utf-8",
		Kind:     ir.ModuleForm,
	}
	decl := &ir.Declaration{
		DeclKind:   ir.DeclVariable,
		Name:       "count",
		Visibility: "private",
		TypeName:   "Long",
		NodeBase: ir.NodeBase{Semantic: &ir.SemanticInfo{
			Resolved: true,
			Type:     &ir.TypeRef{Category: ir.TypePrimitive, Name: "Long"},
		}},
	}
	proc := &ir.Procedure{
		ProcKind: ir.ProcSub,
		Name:     "cmdOK_Click",
		Params:   []ir.Param{{Name: "idx", Modifiers: []string{"ByVal"}, TypeName: "Integer"}},
		Children: []ir.Node{
			&ir.Statement{StmtKind: ir.StmtAssignment, Children: []ir.Node{
				&ir.Expression{ExprKind: ir.ExprIdentifier, Name: "count"},
				&ir.Expression{ExprKind: ir.ExprLiteral, Value: "1"},
			}},
		},
	}
	mod := &ir.Module{
		Name:     "Form1",
		Kind:     ir.ModuleForm,
		Version:  "5.00",
		Attrs:    []ir.Attribute{{Name: "VB_Name", Values: []string{"Form1"}}},
		Options:  []ir.OptionRecord{{Type: "explicit", Value: "true"}},
		Children: []ir.Node{decl, proc},
		Bindings: []*ir.EventBinding{{
			ProcedureName: "cmdOK_Click", ControlName: "cmdOK", EventName: "Click",
		}},
	}
	return file, mod
}

func TestEncodeFileValidJSON(t *testing.T) {
	file, mod := sampleModule()
	var buf bytes.Buffer
	if err := EncodeFile(&buf, file, mod, nil, SchemaVersion); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Fatalf("invalid JSON:\n%s", buf.String())
	}
}

func TestEncodeFileDeterministic(t *testing.T) {
	file, mod := sampleModule()
	var a, b bytes.Buffer
	if err := EncodeFile(&a, file, mod, nil, SchemaVersion); err != nil {
		t.Fatalf("first encode: %v", err)
	}
	if err := EncodeFile(&b, file, mod, nil, SchemaVersion); err != nil {
		t.Fatalf("second encode: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("two encodings of the same module differ")
	}
}

func TestEnvelopeFieldOrder(t *testing.T) {
	file, mod := sampleModule()
	var buf bytes.Buffer
	if err := EncodeFile(&buf, file, mod, nil, SchemaVersion); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	out := buf.String()

	for _, pair := range [][2]string{
		{`"schemaVersion"`, `"source"`},
		{`"source"`, `"body"`},
		{`"body"`, `"diagnostics"`},
		{`"path"`, `"checksum"`},
		{`"checksum"`, `"encoding"`},
		{`"encoding"`, `"moduleKind"`},
	} {
		if strings.Index(out, pair[0]) >= strings.Index(out, pair[1]) {
			t.Errorf("%s should precede %s", pair[0], pair[1])
		}
	}
	// kind is the first member of every node object.
	if !strings.Contains(out, "{\n    \"kind\": \"module\"") {
		t.Error("node objects should open with their kind")
	}
}

func TestEncodeFatalEnvelope(t *testing.T) {
	file := &ir.SourceFile{Path: "Broken.bas", Checksum: "ff", Kind: ir.ModuleStandard}
	diags := []diag.Diagnostic{{
		Severity: diag.SeverityError,
		Code:     diag.CodeUndecodable,
		Message:  "file is not decodable text",
		Stage:    diag.StageFile,
	}}
	var buf bytes.Buffer
	if err := EncodeFile(&buf, file, nil, diags, SchemaVersion); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	var env struct {
		SchemaVersion string            `json:"schemaVersion"`
		Body          *json.RawMessage  `json:"body"`
		Diagnostics   []json.RawMessage `json:"diagnostics"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Body != nil && string(*env.Body) != "null" {
		t.Errorf("body %s, want null", *env.Body)
	}
	if len(env.Diagnostics) != 1 {
		t.Errorf("diagnostics %d", len(env.Diagnostics))
	}
}

func TestEncodeDiagnosticFields(t *testing.T) {
	file := &ir.SourceFile{Path: "M.bas", Kind: ir.ModuleStandard}
	d := diag.Diagnostic{
		Severity: diag.SeverityWarning,
		Code:     diag.CodeUnmatchedBinding,
		Message:  "no control",
		Span:     ir.Span{StartLine: 3, EndLine: 3, StartByte: 40, EndByte: 60},
		Stage:    diag.StageSemantic,
		Hint:     "kept as-is",
	}
	var buf bytes.Buffer
	if err := EncodeFile(&buf, file, &ir.Module{Name: "M", Kind: ir.ModuleStandard}, []diag.Diagnostic{d}, SchemaVersion); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	var env struct {
		Diagnostics []struct {
			Severity string `json:"severity"`
			Code     string `json:"code"`
			Message  string `json:"message"`
			Span     struct {
				StartLine int `json:"startLine"`
				StartByte int `json:"startByte"`
			} `json:"span"`
			Stage string `json:"stage"`
			Hint  string `json:"hint"`
		} `json:"diagnostics"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(env.Diagnostics) != 1 {
		t.Fatalf("diagnostics %d", len(env.Diagnostics))
	}
	got := env.Diagnostics[0]
	if got.Severity != "warning" || got.Code != diag.CodeUnmatchedBinding || got.Hint != "kept as-is" {
		t.Errorf("diagnostic %+v", got)
	}
	if got.Span.StartLine != 3 || got.Span.StartByte != 40 {
		t.Errorf("span %+v", got.Span)
	}
}

func TestEncodeNodePayloads(t *testing.T) {
	file, mod := sampleModule()
	var buf bytes.Buffer
	if err := EncodeFile(&buf, file, mod, nil, SchemaVersion); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`"declKind": "variable"`,
		`"typeName": "Long"`,
		`"category": "primitive"`,
		`"procKind": "sub"`,
		`"modifiers"`,
		`"stmtKind": "assignment"`,
		`"exprKind": "identifier"`,
		`"eventBindings"`,
		`"procedureName": "cmdOK_Click"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s", want)
		}
	}
	// Zero-valued optional fields stay absent.
	for _, absent := range []string{`"isArray"`, `"isStatic"`, `"returnType"`, `"value": ""`} {
		if strings.Contains(out, absent) {
			t.Errorf("output should not contain %s", absent)
		}
	}
}

func TestEncodeManifest(t *testing.T) {
	file, mod := sampleModule()
	other := &ir.SourceFile{Path: "Module1.bas", Checksum: "dd", Kind: ir.ModuleStandard}
	entries := []ManifestEntry{
		{File: file, Module: mod},
		{File: other, OutputPath: "out/Module1.bas.json"},
	}
	projectDiags := []diag.Diagnostic{{
		Severity: diag.SeverityError,
		Code:     diag.CodeReadFailed,
		Message:  "read Gone.bas: no such file",
		Stage:    diag.StageFile,
	}}

	var buf bytes.Buffer
	if err := EncodeManifest(&buf, entries, projectDiags, SchemaVersion); err != nil {
		t.Fatalf("EncodeManifest: %v", err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Fatalf("invalid JSON:\n%s", buf.String())
	}

	var manifest struct {
		SchemaVersion string `json:"schemaVersion"`
		Files         []struct {
			Path string           `json:"path"`
			Ref  string           `json:"ref"`
			Body *json.RawMessage `json:"body"`
		} `json:"files"`
		ProjectDiagnostics []json.RawMessage `json:"projectDiagnostics"`
	}
	if err := json.Unmarshal(buf.Bytes(), &manifest); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if manifest.SchemaVersion != SchemaVersion {
		t.Errorf("schemaVersion %q", manifest.SchemaVersion)
	}
	if len(manifest.Files) != 2 {
		t.Fatalf("files %d", len(manifest.Files))
	}
	if manifest.Files[0].Body == nil {
		t.Error("first entry should be inline")
	}
	if manifest.Files[1].Ref != "out/Module1.bas.json" {
		t.Errorf("second entry ref %q", manifest.Files[1].Ref)
	}
	if len(manifest.ProjectDiagnostics) != 1 {
		t.Errorf("projectDiagnostics %d", len(manifest.ProjectDiagnostics))
	}
}

func TestEncodeManifestSplicedEnvelope(t *testing.T) {
	file, mod := sampleModule()

	var env bytes.Buffer
	if err := EncodeFile(&env, file, mod, nil, SchemaVersion); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}

	var inline, spliced bytes.Buffer
	if err := EncodeManifest(&inline, []ManifestEntry{{File: file, Module: mod}}, nil, SchemaVersion); err != nil {
		t.Fatalf("EncodeManifest inline: %v", err)
	}
	entry := ManifestEntry{File: file, RawEnvelope: env.String()}
	if err := EncodeManifest(&spliced, []ManifestEntry{entry}, nil, SchemaVersion); err != nil {
		t.Fatalf("EncodeManifest spliced: %v", err)
	}
	if !bytes.Equal(inline.Bytes(), spliced.Bytes()) {
		t.Errorf("spliced manifest differs from inline:\n%s\n---\n%s", inline.String(), spliced.String())
	}
}

func TestEncodeTrivia(t *testing.T) {
	file := &ir.SourceFile{Path: "M.bas", Kind: ir.ModuleStandard}
	decl := &ir.Declaration{DeclKind: ir.DeclVariable, Name: "x"}
	decl.Leading = []*ir.Trivia{{
		NodeBase:   ir.NodeBase{Text: "' setup"},
		TriviaKind: ir.TriviaComment,
	}}
	mod := &ir.Module{Name: "M", Kind: ir.ModuleStandard, Children: []ir.Node{decl}}

	var buf bytes.Buffer
	if err := EncodeFile(&buf, file, mod, nil, SchemaVersion); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"leading"`) || !strings.Contains(out, `"triviaKind": "comment"`) {
		t.Errorf("trivia missing:\n%s", out)
	}
	if !strings.Contains(out, `"text": "' setup"`) {
		t.Error("trivia text missing")
	}
}
