// Package emit serializes enriched modules to JSON. Output is
// byte-deterministic: field order is explicit (no map iteration anywhere
// on the output path), indentation is fixed at two spaces, and numeric and
// literal source text passes through verbatim as JSON strings.
package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/retroware/basconv/internal/diag"
	"github.com/retroware/basconv/internal/ir"
)

// SchemaVersion is the current envelope schema.
const SchemaVersion = "1.0.0"

// writer emits JSON with explicit field order and fixed indentation.
// Methods never fail individually; the first underlying write error sticks
// and is returned by err().
type writer struct {
	w     io.Writer
	depth int
	first []bool // per-depth "no member written yet"
	fail  error
}

func newWriter(w io.Writer) *writer {
	return &writer{w: w, first: make([]bool, 1, 8)}
}

func (e *writer) err() error { return e.fail }

func (e *writer) raw(s string) {
	if e.fail != nil {
		return
	}
	_, e.fail = io.WriteString(e.w, s)
}

func (e *writer) indent() {
	for i := 0; i < e.depth; i++ {
		e.raw("  ")
	}
}

// sep writes the separator before the next member of the current
// container and positions the cursor on a fresh indented line.
func (e *writer) sep() {
	if e.first[e.depth] {
		e.first[e.depth] = false
	} else {
		e.raw(",")
	}
	e.raw("\n")
	e.indent()
}

func (e *writer) open(bracket string) {
	e.raw(bracket)
	e.depth++
	if e.depth >= len(e.first) {
		e.first = append(e.first, true)
	} else {
		e.first[e.depth] = true
	}
}

func (e *writer) close(bracket string) {
	empty := e.first[e.depth]
	e.depth--
	if !empty {
		e.raw("\n")
		e.indent()
	}
	e.raw(bracket)
}

func (e *writer) beginObject() { e.open("{") }
func (e *writer) endObject()   { e.close("}") }
func (e *writer) beginArray()  { e.open("[") }
func (e *writer) endArray()    { e.close("]") }

func (e *writer) name(key string) {
	e.sep()
	e.raw(quote(key))
	e.raw(": ")
}

func (e *writer) str(key, val string)   { e.name(key); e.raw(quote(val)) }
func (e *writer) num(key string, n int) { e.name(key); e.raw(strconv.Itoa(n)) }
func (e *writer) boolean(key string, v bool) {
	e.name(key)
	if v {
		e.raw("true")
	} else {
		e.raw("false")
	}
}

func (e *writer) strList(key string, vals []string) {
	e.name(key)
	e.beginArray()
	for _, v := range vals {
		e.sep()
		e.raw(quote(v))
	}
	e.endArray()
}

// splice writes a pre-serialized envelope as the current array element,
// re-indenting its lines to the current depth. String escaping keeps raw
// newlines out of JSON values, so per-line prefixing reproduces exactly
// what inline encoding at this depth would have written.
func (e *writer) splice(env string) {
	lines := strings.Split(strings.TrimRight(env, "\n"), "\n")
	e.raw(lines[0])
	pad := strings.Repeat("  ", e.depth)
	for _, line := range lines[1:] {
		e.raw("\n")
		e.raw(pad)
		e.raw(line)
	}
}

// quote produces a JSON string. encoding/json escaping is deterministic
// for a given input, which keeps the byte-for-byte guarantee.
func quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// EncodeFile writes the per-file envelope:
// schemaVersion, source, body, diagnostics.
func EncodeFile(w io.Writer, file *ir.SourceFile, mod *ir.Module, diags []diag.Diagnostic, schemaVersion string) error {
	e := newWriter(w)
	e.beginObject()
	encodeEnvelopeBody(e, file, mod, diags, schemaVersion)
	e.endObject()
	e.raw("\n")
	if e.err() != nil {
		return fmt.Errorf("emit: write envelope for %s: %w", file.Path, e.err())
	}
	return nil
}

func encodeEnvelopeBody(e *writer, file *ir.SourceFile, mod *ir.Module, diags []diag.Diagnostic, schemaVersion string) {
	e.str("schemaVersion", schemaVersion)

	e.name("source")
	e.beginObject()
	e.str("path", file.Path)
	e.str("checksum", file.Checksum)
	e.str("encoding", file.Encoding)
	e.str("moduleKind", string(file.Kind))
	e.endObject()

	e.name("body")
	if mod == nil {
		// Fatal file errors produce a diagnostics-only envelope.
		e.raw("null")
	} else {
		encodeNode(e, mod)
	}

	e.name("diagnostics")
	e.beginArray()
	for _, d := range diags {
		e.sep()
		encodeDiagnostic(e, d)
	}
	e.endArray()
}

// ManifestEntry is one file's slot in the aggregated manifest, either an
// inline envelope or a path reference to a separately written one.
type ManifestEntry struct {
	File        *ir.SourceFile
	Module      *ir.Module // nil on fatal file error
	Diagnostics []diag.Diagnostic
	OutputPath  string // when set, emitted as a ref instead of inline

	// RawEnvelope, when set, is an already-serialized per-file envelope
	// (a cache hit) spliced inline instead of re-encoding the module.
	RawEnvelope string
}

// EncodeManifest writes the aggregated batch envelope: schemaVersion,
// files (in input order), projectDiagnostics.
func EncodeManifest(w io.Writer, entries []ManifestEntry, projectDiags []diag.Diagnostic, schemaVersion string) error {
	e := newWriter(w)
	e.beginObject()
	e.str("schemaVersion", schemaVersion)

	e.name("files")
	e.beginArray()
	for _, entry := range entries {
		e.sep()
		if entry.RawEnvelope != "" {
			e.splice(entry.RawEnvelope)
			continue
		}
		e.beginObject()
		if entry.OutputPath != "" {
			e.str("path", entry.File.Path)
			e.str("ref", entry.OutputPath)
		} else {
			encodeEnvelopeBody(e, entry.File, entry.Module, entry.Diagnostics, schemaVersion)
		}
		e.endObject()
	}
	e.endArray()

	e.name("projectDiagnostics")
	e.beginArray()
	for _, d := range projectDiags {
		e.sep()
		encodeDiagnostic(e, d)
	}
	e.endArray()

	e.endObject()
	e.raw("\n")
	if e.err() != nil {
		return fmt.Errorf("emit: write manifest: %w", e.err())
	}
	return nil
}

func encodeDiagnostic(e *writer, d diag.Diagnostic) {
	e.beginObject()
	e.str("severity", d.Severity.String())
	e.str("code", d.Code)
	e.str("message", d.Message)
	encodeSpan(e, d.Span)
	e.str("stage", string(d.Stage))
	if d.Hint != "" {
		e.str("hint", d.Hint)
	}
	e.endObject()
}

func encodeSpan(e *writer, s ir.Span) {
	e.name("span")
	e.beginObject()
	e.num("startLine", s.StartLine)
	e.num("startCol", s.StartCol)
	e.num("endLine", s.EndLine)
	e.num("endCol", s.EndCol)
	e.num("startByte", s.StartByte)
	e.num("endByte", s.EndByte)
	e.endObject()
}

// encodeNode writes one IR node as a discriminated object: kind first,
// span second, then the kind-specific fields in declared order. Exhaustive
// over the closed union.
func encodeNode(e *writer, n ir.Node) {
	e.beginObject()
	e.str("kind", string(n.NodeKind()))
	encodeSpan(e, n.Base().Span)

	switch v := n.(type) {
	case *ir.Module:
		e.str("name", v.Name)
		e.str("moduleKind", string(v.Kind))
		if v.Version != "" {
			e.str("version", v.Version)
		}
		if v.IsPrivate {
			e.boolean("isPrivate", true)
		}
		encodeAttrs(e, v.Attrs)
		encodeOptions(e, v.Options)
		encodeChildren(e, v.Children)
		if len(v.Bindings) > 0 {
			e.name("eventBindings")
			e.beginArray()
			for _, binding := range v.Bindings {
				e.sep()
				encodeNode(e, binding)
			}
			e.endArray()
		}
	case *ir.Declaration:
		e.str("declKind", string(v.DeclKind))
		e.str("name", v.Name)
		if v.Visibility != "" {
			e.str("visibility", v.Visibility)
		}
		if v.TypeName != "" {
			e.str("typeName", v.TypeName)
		}
		if v.TypeSigil != "" {
			e.str("typeSigil", v.TypeSigil)
		}
		if v.IsArray {
			e.boolean("isArray", true)
		}
		if v.WithEvents {
			e.boolean("withEvents", true)
		}
		if v.IsNew {
			e.boolean("isNew", true)
		}
		if v.Value != "" {
			e.str("value", v.Value)
		}
		encodeSemantic(e, v.Semantic)
		encodeChildren(e, v.Children)
	case *ir.Procedure:
		e.str("procKind", string(v.ProcKind))
		e.str("name", v.Name)
		if v.Visibility != "" {
			e.str("visibility", v.Visibility)
		}
		if v.IsStatic {
			e.boolean("isStatic", true)
		}
		encodeParams(e, v.Params)
		if v.ReturnType != "" {
			e.str("returnType", v.ReturnType)
		}
		encodeSemantic(e, v.Semantic)
		encodeChildren(e, v.Children)
	case *ir.Statement:
		e.str("stmtKind", string(v.StmtKind))
		encodeChildren(e, v.Children)
	case *ir.Expression:
		e.str("exprKind", string(v.ExprKind))
		if v.Op != "" {
			e.str("op", v.Op)
		}
		if v.Value != "" {
			e.str("value", v.Value)
		}
		if v.Name != "" {
			e.str("name", v.Name)
		}
		encodeChildren(e, v.Children)
	case *ir.Control:
		e.str("name", v.Name)
		e.str("typeName", v.TypeName)
		if len(v.Props) > 0 {
			e.name("properties")
			e.beginArray()
			for _, p := range v.Props {
				e.sep()
				e.beginObject()
				e.str("name", p.Name)
				e.str("value", p.Value)
				encodeSpan(e, p.Span)
				e.endObject()
			}
			e.endArray()
		}
		if len(v.ResourceRefs) > 0 {
			e.strList("resourceRefs", v.ResourceRefs)
		}
		encodeSemantic(e, v.Semantic)
		encodeChildren(e, v.Children)
	case *ir.EventBinding:
		e.str("procedureName", v.ProcedureName)
		e.str("controlName", v.ControlName)
		e.str("eventName", v.EventName)
		encodeSemantic(e, v.Semantic)
	case *ir.Trivia:
		e.str("triviaKind", string(v.TriviaKind))
		e.str("text", v.Base().Text)
	case *ir.ErrorNode:
		e.str("text", v.Base().Text)
	}

	encodeTrivia(e, "leading", n.Base().Leading)
	encodeTrivia(e, "trailing", n.Base().Trailing)
	e.endObject()
}

func encodeChildren(e *writer, children []ir.Node) {
	if len(children) == 0 {
		return
	}
	e.name("children")
	e.beginArray()
	for _, c := range children {
		e.sep()
		encodeNode(e, c)
	}
	e.endArray()
}

func encodeTrivia(e *writer, key string, trivia []*ir.Trivia) {
	if len(trivia) == 0 {
		return
	}
	e.name(key)
	e.beginArray()
	for _, t := range trivia {
		e.sep()
		encodeNode(e, t)
	}
	e.endArray()
}

func encodeAttrs(e *writer, attrs []ir.Attribute) {
	if len(attrs) == 0 {
		return
	}
	e.name("attributes")
	e.beginArray()
	for _, a := range attrs {
		e.sep()
		e.beginObject()
		e.str("name", a.Name)
		e.strList("values", a.Values)
		encodeSpan(e, a.Span)
		e.endObject()
	}
	e.endArray()
}

func encodeOptions(e *writer, opts []ir.OptionRecord) {
	if len(opts) == 0 {
		return
	}
	e.name("options")
	e.beginArray()
	for _, o := range opts {
		e.sep()
		e.beginObject()
		e.str("type", o.Type)
		e.str("value", o.Value)
		encodeSpan(e, o.Span)
		e.endObject()
	}
	e.endArray()
}

func encodeParams(e *writer, params []ir.Param) {
	if len(params) == 0 {
		return
	}
	e.name("params")
	e.beginArray()
	for _, p := range params {
		e.sep()
		e.beginObject()
		e.str("name", p.Name)
		if len(p.Modifiers) > 0 {
			e.strList("modifiers", p.Modifiers)
		}
		if p.TypeName != "" {
			e.str("typeName", p.TypeName)
		}
		if p.TypeSigil != "" {
			e.str("typeSigil", p.TypeSigil)
		}
		if p.Default != "" {
			e.str("default", p.Default)
		}
		encodeSpan(e, p.Span)
		e.endObject()
	}
	e.endArray()
}

func encodeSemantic(e *writer, s *ir.SemanticInfo) {
	if s == nil || !s.Resolved {
		return
	}
	e.name("semantic")
	e.beginObject()
	if s.Type != nil {
		encodeTypeRef(e, "type", s.Type)
	}
	if s.ParentControl != "" {
		e.str("parentControl", s.ParentControl)
	}
	if len(s.ChildControls) > 0 {
		e.strList("childControls", s.ChildControls)
	}
	if s.BoundControl != "" {
		e.str("boundControl", s.BoundControl)
		e.str("boundProcedure", s.BoundProcedure)
		e.str("boundEvent", s.BoundEvent)
	}
	e.endObject()
}

func encodeTypeRef(e *writer, key string, t *ir.TypeRef) {
	e.name(key)
	e.beginObject()
	e.str("category", string(t.Category))
	e.str("name", t.Name)
	if t.Element != nil {
		encodeTypeRef(e, "element", t.Element)
	}
	e.endObject()
}
