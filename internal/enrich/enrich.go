// Package enrich runs the semantic annotation pass over a built module.
// The pass is pure and idempotent: it only writes SemanticInfo records and
// appends diagnostics, never restructures the tree, and a second run over
// already-annotated IR is a no-op.
package enrich

import (
	"fmt"
	"strings"

	"github.com/retroware/basconv/internal/diag"
	"github.com/retroware/basconv/internal/ir"
)

// primitives is the built-in value-type vocabulary. Matching is
// case-insensitive, like the language.
var primitives = map[string]string{
	"byte":     "Byte",
	"boolean":  "Boolean",
	"integer":  "Integer",
	"long":     "Long",
	"single":   "Single",
	"double":   "Double",
	"currency": "Currency",
	"date":     "Date",
	"string":   "String",
	"variant":  "Variant",
}

// objectTypes are built-in reference types that resolve without a local
// declaration.
var objectTypes = map[string]string{
	"object":     "Object",
	"collection": "Collection",
	"form":       "Form",
	"control":    "Control",
}

// sigilTypes maps declaration type sigils to their primitive names.
var sigilTypes = map[string]string{
	"%": "Integer",
	"&": "Long",
	"!": "Single",
	"#": "Double",
	"$": "String",
	"@": "Currency",
}

// knownEvents is the recognized-event table for convention-named handlers.
// Lowercased; a handler whose suffix is not listed still binds when its
// control resolves, so new control libraries degrade to a warning only when
// the control is unknown too.
var knownEvents = map[string]bool{
	"click": true, "dblclick": true, "load": true, "unload": true,
	"initialize": true, "terminate": true, "activate": true,
	"deactivate": true, "resize": true, "paint": true,
	"change": true, "keydown": true, "keyup": true, "keypress": true,
	"mousedown": true, "mouseup": true, "mousemove": true,
	"gotfocus": true, "lostfocus": true, "timer": true,
	"scroll": true, "validate": true, "queryunload": true,
}

// Enrich annotates the module in place and appends semantic diagnostics to
// the collector. Safe to call again on the same module: annotated nodes
// are skipped, so no diagnostic is ever produced twice.
func Enrich(mod *ir.Module, c *diag.Collector) {
	userTypes := collectUserTypes(mod)

	ir.Walk(mod, func(n ir.Node) bool {
		switch v := n.(type) {
		case *ir.Declaration:
			annotateDeclType(v, userTypes, c)
		case *ir.Procedure:
			annotateReturnType(v, userTypes, c)
		}
		return true
	})

	if mod.Kind == ir.ModuleForm {
		annotateControls(mod, c)
		resolveBindings(mod, c)
	}
}

// collectUserTypes gathers the names declared by module-level Type and
// Enum blocks, the local userDefined vocabulary.
func collectUserTypes(mod *ir.Module) map[string]bool {
	out := make(map[string]bool)
	for _, child := range mod.Children {
		d, ok := child.(*ir.Declaration)
		if !ok {
			continue
		}
		if d.DeclKind == ir.DeclType || d.DeclKind == ir.DeclEnum {
			out[strings.ToLower(d.Name)] = true
		}
	}
	return out
}

func annotateDeclType(d *ir.Declaration, userTypes map[string]bool, c *diag.Collector) {
	if d.Semantic != nil && d.Semantic.Resolved {
		return
	}
	if d.DeclKind == ir.DeclType || d.DeclKind == ir.DeclEnum {
		// Blocks declare types; they do not carry one.
		d.Semantic = &ir.SemanticInfo{Resolved: true}
		return
	}
	ref := resolveType(d.TypeName, d.TypeSigil, d.IsNew, userTypes)
	if d.IsArray {
		elem := ref
		ref = &ir.TypeRef{Category: ir.TypeArrayOf, Name: elem.Name, Element: elem}
	}
	d.Semantic = &ir.SemanticInfo{Resolved: true, Type: ref}
	reportUnresolved(ref, d.Name, d.Span, c)
}

func annotateReturnType(p *ir.Procedure, userTypes map[string]bool, c *diag.Collector) {
	if p.Semantic != nil && p.Semantic.Resolved {
		return
	}
	p.Semantic = &ir.SemanticInfo{Resolved: true}
	if p.ProcKind != ir.ProcFunction && p.ProcKind != ir.ProcPropertyGet {
		return
	}
	_, sigil := splitNameSigil(p.Name)
	if p.ReturnType == "" && sigil == "" {
		return
	}
	ref := resolveType(p.ReturnType, sigil, false, userTypes)
	p.Semantic.Type = ref
	reportUnresolved(ref, p.Name, p.Span, c)
}

// resolveType normalizes an As-clause plus sigil into a TypeRef. The
// sigil only applies when no explicit clause is present; the language
// forbids combining them, and the parser has already flagged such input.
func resolveType(typeName, sigil string, isNew bool, userTypes map[string]bool) *ir.TypeRef {
	name := typeName
	if name == "" {
		name = sigilTypes[sigil]
	}
	if name == "" {
		// No hint at all means implicit Variant.
		return &ir.TypeRef{Category: ir.TypePrimitive, Name: "Variant"}
	}
	// Fixed-length strings (String * 20) normalize to String.
	base := name
	if i := strings.Index(base, "*"); i > 0 {
		base = strings.TrimSpace(base[:i])
	}
	lower := strings.ToLower(base)
	if canonical, ok := primitives[lower]; ok {
		return &ir.TypeRef{Category: ir.TypePrimitive, Name: canonical}
	}
	if canonical, ok := objectTypes[lower]; ok {
		return &ir.TypeRef{Category: ir.TypeObjectRef, Name: canonical}
	}
	if userTypes[lower] {
		return &ir.TypeRef{Category: ir.TypeUserDefined, Name: base}
	}
	if isNew || strings.Contains(base, ".") {
		// Dotted names and As New targets are external object classes;
		// without a type library they stay unresolved.
		return &ir.TypeRef{Category: ir.TypeUnresolved, Name: base}
	}
	return &ir.TypeRef{Category: ir.TypeUnresolved, Name: base}
}

// reportUnresolved records the info-level diagnostic for a type hint that
// no local or built-in vocabulary covers. Unresolved is a valid terminal
// state, not a failure.
func reportUnresolved(ref *ir.TypeRef, owner string, span ir.Span, c *diag.Collector) {
	target := ref
	if target.Category == ir.TypeArrayOf && target.Element != nil {
		target = target.Element
	}
	if target.Category != ir.TypeUnresolved {
		return
	}
	c.Add(diag.Diagnostic{
		Severity: diag.SeverityInfo,
		Code:     diag.CodeUnresolvedType,
		Message:  fmt.Sprintf("type %q of %q is not declared in this module and is not a built-in type", target.Name, owner),
		Span:     span,
		Stage:    diag.StageSemantic,
		Hint:     "external library types resolve only with their type library; the reference is kept verbatim",
	})
}

// annotateControls wires parent/child links through the designer tree and
// flags duplicate control names within the module scope.
func annotateControls(mod *ir.Module, c *diag.Collector) {
	firstByName := make(map[string]*ir.Control)
	var walkCtl func(ctl *ir.Control, parentID string)
	walkCtl = func(ctl *ir.Control, parentID string) {
		fresh := ctl.Semantic == nil || !ctl.Semantic.Resolved
		if fresh {
			ctl.Semantic = &ir.SemanticInfo{Resolved: true, ParentControl: parentID}
		}
		id := ir.StableID(mod.Name, ctl.Name)
		if prev, dup := firstByName[strings.ToLower(ctl.Name)]; dup && fresh {
			c.Add(diag.Diagnostic{
				Severity: diag.SeverityWarning,
				Code:     diag.CodeDuplicateControl,
				Message: fmt.Sprintf("control name %q also declared at line %d",
					ctl.Name, prev.Span.StartLine),
				Span:  ctl.Span,
				Stage: diag.StageSemantic,
			})
		} else if !dup {
			firstByName[strings.ToLower(ctl.Name)] = ctl
		}
		for _, child := range ctl.Children {
			nested, ok := child.(*ir.Control)
			if !ok {
				continue
			}
			if fresh {
				ctl.Semantic.ChildControls = append(ctl.Semantic.ChildControls,
					ir.StableID(mod.Name, nested.Name))
			}
			walkCtl(nested, id)
		}
	}
	for _, child := range mod.Children {
		if ctl, ok := child.(*ir.Control); ok {
			walkCtl(ctl, "")
		}
	}
}

// resolveBindings matches convention-named handler procedures against
// declared controls. The form itself is a valid target (Form_Load). A
// binding that matches neither a control nor the recognized-event table
// stays in the IR with a warning.
func resolveBindings(mod *ir.Module, c *diag.Collector) {
	idx := ir.BuildIndex(mod)
	formName := strings.ToLower(mod.Name)

	for _, binding := range mod.Bindings {
		if binding.Semantic != nil && binding.Semantic.Resolved {
			continue
		}
		binding.Semantic = &ir.SemanticInfo{Resolved: true}

		ctlLower := strings.ToLower(binding.ControlName)
		_, haveControl := idx.Controls[ir.StableID(mod.Name, binding.ControlName)]
		isForm := ctlLower == formName || ctlLower == "form"
		eventKnown := knownEvents[strings.ToLower(binding.EventName)]

		if haveControl || (isForm && eventKnown) {
			binding.Semantic.BoundControl = ir.StableID(mod.Name, binding.ControlName)
			binding.Semantic.BoundProcedure = ir.StableID(mod.Name, binding.ProcedureName)
			binding.Semantic.BoundEvent = strings.ToLower(binding.EventName)
			continue
		}
		c.Add(diag.Diagnostic{
			Severity: diag.SeverityWarning,
			Code:     diag.CodeUnmatchedBinding,
			Message: fmt.Sprintf("procedure %q looks like an event handler but no control named %q is declared",
				binding.ProcedureName, binding.ControlName),
			Span:  binding.Span,
			Stage: diag.StageSemantic,
			Hint:  "underscores in plain procedure names are legal; the procedure is kept as-is",
		})
	}
}

func splitNameSigil(name string) (string, string) {
	if name == "" {
		return "", ""
	}
	switch name[len(name)-1] {
	case '%', '&', '!', '#', '$', '@':
		return name[:len(name)-1], name[len(name)-1:]
	}
	return name, ""
}
