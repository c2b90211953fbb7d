// Package irbuild transforms raw concrete syntax trees into the
// normalized IR. The transform is total: every raw node maps to exactly
// one IR node or folds into trivia attached to a neighboring node, and it
// is a pure function of the raw tree.
package irbuild

import (
	"strings"

	"github.com/retroware/basconv/internal/basic"
	"github.com/retroware/basconv/internal/ingest"
	"github.com/retroware/basconv/internal/ir"
)

// builder carries per-file build state: the tree being converted and the
// buffer of trivia waiting for its next structural sibling.
type builder struct {
	tree    *basic.Tree
	pending []*ir.Trivia
}

// Build converts a raw tree into the module IR for the given source file.
// The module-kind hint from the file refines to "class" when the header
// says so and to "form" when designer blocks are present.
func Build(tree *basic.Tree, file *ir.SourceFile) *ir.Module {
	b := &builder{tree: tree}
	mod := &ir.Module{Kind: file.Kind}
	b.fill(mod, tree.Root)

	if mod.Name == "" {
		mod.Name = stem(file.Path)
	}
	mod.Span = ingest.NodeSpan(tree.Root)
	mod.Text = tree.Text(tree.Root)

	if file.Kind == ir.ModuleForm {
		b.deriveBindings(mod)
	}
	return mod
}

// fill walks the root's children, producing module metadata and the
// ordered child node sequence.
func (b *builder) fill(mod *ir.Module, root *basic.Node) {
	sawClassHeader := false
	optionSeen := make(map[[2]string]bool)

	for _, c := range root.Children {
		switch c.Kind {
		case basic.KindComment, basic.KindBlankRun:
			b.bufferTrivia(c)
		case basic.KindVersion:
			for _, t := range c.Children {
				if t.Tok == nil {
					continue
				}
				switch t.Tok.Type {
				case basic.TokFloat, basic.TokInteger:
					mod.Version = t.Tok.Text
				case basic.TokIdent:
					if strings.EqualFold(t.Tok.Text, "class") {
						sawClassHeader = true
					}
				}
			}
		case basic.KindAttribute:
			attr := b.attribute(c)
			mod.Attrs = append(mod.Attrs, attr)
			if strings.EqualFold(attr.Name, "VB_Name") && len(attr.Values) > 0 && mod.Name == "" {
				mod.Name = attr.Values[0]
			}
		case basic.KindOption:
			rec, ok := b.option(c)
			if !ok {
				continue
			}
			key := [2]string{rec.Type, rec.Value}
			if optionSeen[key] {
				continue
			}
			optionSeen[key] = true
			mod.Options = append(mod.Options, rec)
			if rec.Type == "privateModule" {
				mod.IsPrivate = true
			}
		case basic.KindControlBlock:
			mod.Kind = ir.ModuleForm
			mod.Children = append(mod.Children, b.control(c, ""))
		case basic.KindVarDecl:
			mod.Children = append(mod.Children, b.variableDecls(c)...)
		case basic.KindConstDecl:
			mod.Children = append(mod.Children, b.constDecls(c)...)
		case basic.KindTypeBlock:
			mod.Children = append(mod.Children, b.typeDecl(c))
		case basic.KindEnumBlock:
			mod.Children = append(mod.Children, b.enumDecl(c))
		case basic.KindDeclareStmt:
			mod.Children = append(mod.Children, b.declareDecl(c))
		case basic.KindProcedure:
			mod.Children = append(mod.Children, b.procedure(c))
		default:
			mod.Children = append(mod.Children, b.errorNode(c))
		}
	}
	if sawClassHeader {
		mod.Kind = ir.ModuleClass
	}
	// Trailing file trivia has no next sibling; it belongs to the module.
	mod.NodeBase.Trailing = append(mod.NodeBase.Trailing, b.pending...)
	b.pending = nil
}

// ---------------------------------------------------------------------------
// Trivia

func (b *builder) bufferTrivia(c *basic.Node) {
	kind := ir.TriviaComment
	if c.Kind == basic.KindBlankRun {
		kind = ir.TriviaBlankRun
	}
	b.pending = append(b.pending, &ir.Trivia{
		NodeBase:   b.base(c),
		TriviaKind: kind,
	})
}

// attach moves buffered trivia onto a freshly built structural node as its
// leading trivia.
func (b *builder) attach(n ir.Node) ir.Node {
	if len(b.pending) > 0 {
		n.Base().Leading = append(n.Base().Leading, b.pending...)
		b.pending = nil
	}
	return n
}

// trailing pulls an end-of-line comment (parsed as the statement's last
// child) onto the IR node that the comment terminates.
func (b *builder) trailing(n ir.Node, c *basic.Node) {
	for _, ch := range c.Children {
		if ch.Kind == basic.KindComment {
			n.Base().Trailing = append(n.Base().Trailing, &ir.Trivia{
				NodeBase:   b.base(ch),
				TriviaKind: ir.TriviaComment,
			})
		}
	}
}

func (b *builder) base(c *basic.Node) ir.NodeBase {
	return ir.NodeBase{Span: ingest.NodeSpan(c), Text: b.tree.Text(c)}
}

// spanBetween derives a span and text from a token range within one raw
// node, used when one raw declaration fans out into several IR nodes.
func (b *builder) spanBetween(first, last *basic.Token) ir.NodeBase {
	return ir.NodeBase{
		Span: ingest.SpanBetween(first.Start, last.End),
		Text: string(b.tree.Source[first.Start.Byte:last.End.Byte]),
	}
}

func (b *builder) errorNode(c *basic.Node) ir.Node {
	n := &ir.ErrorNode{NodeBase: b.base(c)}
	return b.attach(n)
}

// ---------------------------------------------------------------------------
// Module metadata

func (b *builder) attribute(c *basic.Node) ir.Attribute {
	attr := ir.Attribute{Span: ingest.NodeSpan(c)}
	for _, ch := range c.Children {
		if ch.Tok == nil {
			continue
		}
		switch ch.Tok.Type {
		case basic.TokIdent:
			if attr.Name == "" {
				attr.Name = ch.Tok.Text
			}
		case basic.TokString, basic.TokInteger, basic.TokFloat,
			basic.TokKwTrue, basic.TokKwFalse:
			attr.Values = append(attr.Values, unquote(ch.Tok.Text))
		}
	}
	return attr
}

func (b *builder) option(c *basic.Node) (ir.OptionRecord, bool) {
	rec := ir.OptionRecord{Span: ingest.NodeSpan(c)}
	toks := leafTokens(c)
	if len(toks) < 2 {
		return rec, false
	}
	switch toks[1].Type {
	case basic.TokKwExplicit:
		rec.Type = "explicit"
		rec.Value = "true"
	case basic.TokKwBase:
		rec.Type = "base"
		if len(toks) > 2 {
			rec.Value = toks[2].Text
		}
	case basic.TokKwCompare:
		rec.Type = "compare"
		if len(toks) > 2 {
			rec.Value = strings.ToLower(toks[2].Text)
		}
	case basic.TokKwPrivate:
		rec.Type = "privateModule"
		rec.Value = "true"
	default:
		return rec, false
	}
	return rec, true
}

// ---------------------------------------------------------------------------
// Declarations

// variableDecls fans a (possibly multi-name) variable declaration out into
// one Declaration per declared name. Sibling spans cover each name's own
// segment, so they stay non-overlapping and increasing.
func (b *builder) variableDecls(c *basic.Node) []ir.Node {
	visibility := visibilityOf(c)
	withEvents := hasLeaf(c, basic.TokKwWithEvents)

	var out []ir.Node
	var cur *ir.Declaration
	var firstTok, lastTok *basic.Token
	depth := 0 // inside array bounds parens

	flush := func() {
		if cur == nil {
			return
		}
		cur.NodeBase = b.spanBetween(firstTok, lastTok)
		out = append(out, b.attach(cur))
		cur = nil
	}

	for _, ch := range c.Children {
		switch {
		case ch.Tok != nil && ch.Tok.Type == basic.TokIdent && depth == 0:
			if cur == nil {
				name, sigil := splitSigil(ch.Tok.Text)
				cur = &ir.Declaration{
					DeclKind:   ir.DeclVariable,
					Name:       name,
					TypeSigil:  sigil,
					Visibility: visibility,
					WithEvents: withEvents,
				}
				firstTok, lastTok = ch.Tok, ch.Tok
			} else {
				lastTok = ch.Tok
			}
		case ch.Tok != nil && ch.Tok.Type == basic.TokComma && depth == 0:
			flush()
		case ch.Kind == basic.KindAsType:
			if cur != nil {
				cur.TypeName = typeNameOf(ch)
				cur.IsNew = hasLeaf(ch, basic.TokKwNew)
				if t := ch.LastToken(); t != nil {
					lastTok = t
				}
			}
		case ch.Tok != nil && ch.Tok.Type == basic.TokLParen:
			depth++
			if cur != nil {
				cur.IsArray = true
				lastTok = ch.Tok
			}
		case ch.Tok != nil && ch.Tok.Type == basic.TokRParen:
			if depth > 0 {
				depth--
			}
			if cur != nil {
				lastTok = ch.Tok
			}
		case ch.Kind == basic.KindComment:
			// handled below as trailing trivia
		default:
			if cur != nil {
				if t := ch.LastToken(); t != nil {
					lastTok = t
				}
			}
		}
	}
	flush()
	if len(out) > 0 {
		b.trailing(out[len(out)-1], c)
	}
	return out
}

func (b *builder) constDecls(c *basic.Node) []ir.Node {
	visibility := visibilityOf(c)

	var out []ir.Node
	var cur *ir.Declaration
	var firstTok, lastTok *basic.Token
	inValue := false

	flush := func() {
		if cur == nil {
			return
		}
		cur.NodeBase = b.spanBetween(firstTok, lastTok)
		out = append(out, b.attach(cur))
		cur = nil
		inValue = false
	}

	for _, ch := range c.Children {
		switch {
		case ch.Tok != nil && ch.Tok.Type == basic.TokIdent && cur == nil:
			name, sigil := splitSigil(ch.Tok.Text)
			cur = &ir.Declaration{
				DeclKind:   ir.DeclConstant,
				Name:       name,
				TypeSigil:  sigil,
				Visibility: visibility,
			}
			firstTok, lastTok = ch.Tok, ch.Tok
		case ch.Tok != nil && ch.Tok.Type == basic.TokComma:
			flush()
		case ch.Kind == basic.KindAsType && cur != nil:
			cur.TypeName = typeNameOf(ch)
			if t := ch.LastToken(); t != nil {
				lastTok = t
			}
		case ch.Tok != nil && ch.Tok.Type == basic.TokAssign && cur != nil:
			inValue = true
		case ch.Kind == basic.KindComment:
		default:
			if cur != nil && inValue {
				cur.Value = b.tree.Text(ch)
				if t := ch.LastToken(); t != nil {
					lastTok = t
				}
				inValue = false
			}
		}
	}
	flush()
	if len(out) > 0 {
		b.trailing(out[len(out)-1], c)
	}
	return out
}

func (b *builder) typeDecl(c *basic.Node) ir.Node {
	decl := &ir.Declaration{
		NodeBase:   b.base(c),
		DeclKind:   ir.DeclType,
		Visibility: visibilityOf(c),
	}
	if t := c.LeafOfType(basic.TokIdent); t != nil {
		decl.Name = t.Text
	}
	inner := &builder{tree: b.tree}
	for _, ch := range c.Children {
		switch ch.Kind {
		case basic.KindComment, basic.KindBlankRun:
			inner.bufferTrivia(ch)
		case basic.KindVarDecl:
			decl.Children = append(decl.Children, inner.variableDecls(ch)...)
		case basic.KindError:
			decl.Children = append(decl.Children, inner.errorNode(ch))
		}
	}
	decl.NodeBase.Trailing = append(decl.NodeBase.Trailing, inner.pending...)
	return b.attach(decl)
}

func (b *builder) enumDecl(c *basic.Node) ir.Node {
	decl := &ir.Declaration{
		NodeBase:   b.base(c),
		DeclKind:   ir.DeclEnum,
		Visibility: visibilityOf(c),
	}
	if t := c.LeafOfType(basic.TokIdent); t != nil {
		decl.Name = t.Text
	}
	inner := &builder{tree: b.tree}
	for _, ch := range c.Children {
		switch ch.Kind {
		case basic.KindComment, basic.KindBlankRun:
			inner.bufferTrivia(ch)
		case basic.KindEnumMember:
			member := &ir.Declaration{
				NodeBase: inner.base(ch),
				DeclKind: ir.DeclConstant,
			}
			if t := ch.LeafOfType(basic.TokIdent); t != nil {
				member.Name = t.Text
			}
			for i, mc := range ch.Children {
				if mc.Tok != nil && mc.Tok.Type == basic.TokAssign && i+1 < len(ch.Children) {
					member.Value = b.tree.Text(ch.Children[i+1])
				}
			}
			inner.trailing(member, ch)
			decl.Children = append(decl.Children, inner.attach(member))
		case basic.KindError:
			decl.Children = append(decl.Children, inner.errorNode(ch))
		}
	}
	decl.NodeBase.Trailing = append(decl.NodeBase.Trailing, inner.pending...)
	return b.attach(decl)
}

func (b *builder) declareDecl(c *basic.Node) ir.Node {
	decl := &ir.Declaration{
		NodeBase:   b.base(c),
		DeclKind:   ir.DeclExternal,
		Visibility: visibilityOf(c),
	}
	// The name is the first identifier after the Sub/Function keyword.
	toks := leafTokens(c)
	for i, t := range toks {
		if (t.Type == basic.TokKwSub || t.Type == basic.TokKwFunction) && i+1 < len(toks) && toks[i+1].Type == basic.TokIdent {
			name, sigil := splitSigil(toks[i+1].Text)
			decl.Name = name
			decl.TypeSigil = sigil
			break
		}
	}
	if at := c.Find(basic.KindAsType); at != nil {
		decl.TypeName = typeNameOf(at)
	}
	b.trailing(decl, c)
	return b.attach(decl)
}

// ---------------------------------------------------------------------------
// Procedures

func (b *builder) procedure(c *basic.Node) ir.Node {
	proc := &ir.Procedure{
		NodeBase:   b.base(c),
		Visibility: visibilityOf(c),
		IsStatic:   hasLeaf(c, basic.TokKwStatic),
	}

	sawProperty := false
	for _, ch := range c.Children {
		if ch.Tok == nil {
			continue
		}
		switch ch.Tok.Type {
		case basic.TokKwSub:
			if proc.ProcKind == "" {
				proc.ProcKind = ir.ProcSub
			}
		case basic.TokKwFunction:
			if proc.ProcKind == "" {
				proc.ProcKind = ir.ProcFunction
			}
		case basic.TokKwProperty:
			sawProperty = true
		case basic.TokKwGet:
			if sawProperty && proc.ProcKind == "" {
				proc.ProcKind = ir.ProcPropertyGet
			}
		case basic.TokKwLet:
			if sawProperty && proc.ProcKind == "" {
				proc.ProcKind = ir.ProcPropertyLet
			}
		case basic.TokKwSet:
			if sawProperty && proc.ProcKind == "" {
				proc.ProcKind = ir.ProcPropertySet
			}
		case basic.TokIdent:
			if proc.Name == "" {
				proc.Name = ch.Tok.Text
			}
		}
		if proc.Name != "" {
			break
		}
	}

	if pl := c.Find(basic.KindParamList); pl != nil {
		proc.Params = b.params(pl)
	}
	if at := c.Find(basic.KindAsType); at != nil {
		proc.ReturnType = typeNameOf(at)
	}
	if body := c.Find(basic.KindBlock); body != nil {
		inner := &builder{tree: b.tree}
		proc.Children = inner.block(body)
		proc.NodeBase.Trailing = append(proc.NodeBase.Trailing, inner.pending...)
	}
	b.trailing(proc, c)
	return b.attach(proc)
}

func (b *builder) params(pl *basic.Node) []ir.Param {
	var out []ir.Param
	for _, ch := range pl.Children {
		if ch.Kind != basic.KindParam {
			continue
		}
		p := ir.Param{Span: ingest.NodeSpan(ch)}
		for i, pc := range ch.Children {
			switch {
			case pc.Tok != nil && pc.Tok.IsKeyword() &&
				(pc.Tok.Type == basic.TokKwOptional || pc.Tok.Type == basic.TokKwByVal ||
					pc.Tok.Type == basic.TokKwByRef || pc.Tok.Type == basic.TokKwParamArray):
				p.Modifiers = append(p.Modifiers, pc.Tok.Text)
			case pc.Tok != nil && pc.Tok.Type == basic.TokIdent && p.Name == "":
				p.Name, p.TypeSigil = splitSigil(pc.Tok.Text)
			case pc.Kind == basic.KindAsType:
				p.TypeName = typeNameOf(pc)
			case pc.Tok != nil && pc.Tok.Type == basic.TokAssign && i+1 < len(ch.Children):
				p.Default = b.tree.Text(ch.Children[i+1])
			}
		}
		out = append(out, p)
	}
	return out
}

// ---------------------------------------------------------------------------
// Statements

// block converts a raw statement block into ordered IR children, routing
// trivia through the pending buffer.
func (b *builder) block(blk *basic.Node) []ir.Node {
	var out []ir.Node
	for _, ch := range blk.Children {
		switch ch.Kind {
		case basic.KindComment, basic.KindBlankRun:
			b.bufferTrivia(ch)
		case basic.KindVarDecl:
			out = append(out, b.variableDecls(ch)...)
		case basic.KindConstDecl:
			out = append(out, b.constDecls(ch)...)
		default:
			out = append(out, b.statement(ch))
		}
	}
	return out
}

func (b *builder) statement(c *basic.Node) ir.Node {
	switch c.Kind {
	case basic.KindAssignStmt:
		return b.simpleStmt(c, ir.StmtAssignment)
	case basic.KindCallStmt:
		return b.simpleStmt(c, ir.StmtCall)
	case basic.KindIfBlock:
		return b.ifStmt(c)
	case basic.KindForStmt:
		return b.loopStmt(c, ir.StmtFor)
	case basic.KindForEachStmt:
		return b.loopStmt(c, ir.StmtForEach)
	case basic.KindDoLoop:
		return b.loopStmt(c, ir.StmtDoLoop)
	case basic.KindWhileWend:
		return b.loopStmt(c, ir.StmtWhile)
	case basic.KindSelectCase:
		return b.selectStmt(c)
	case basic.KindWithBlock:
		return b.loopStmt(c, ir.StmtWith)
	case basic.KindExitStmt:
		return b.leafStmt(c, ir.StmtExit)
	case basic.KindOnErrorStmt:
		return b.leafStmt(c, ir.StmtOnError)
	case basic.KindGotoStmt:
		return b.leafStmt(c, ir.StmtGoto)
	case basic.KindLabelStmt:
		return b.leafStmt(c, ir.StmtLabel)
	case basic.KindRedimStmt:
		return b.leafStmt(c, ir.StmtRedim)
	case basic.KindExprStmt:
		return b.simpleStmt(c, ir.StmtExpr)
	case basic.KindError:
		return b.errorNode(c)
	}
	return b.errorNode(c)
}

// simpleStmt converts statements whose children are expressions
// (assignment, call): each expression child converts in order.
func (b *builder) simpleStmt(c *basic.Node, kind ir.StmtKind) ir.Node {
	st := &ir.Statement{NodeBase: b.base(c), StmtKind: kind}
	for _, ch := range c.Children {
		if isExprKind(ch.Kind) {
			st.Children = append(st.Children, b.expression(ch))
		}
	}
	b.trailing(st, c)
	return b.attach(st)
}

// leafStmt converts jump/label statements that carry no structured
// children; the verbatim text preserves their operands.
func (b *builder) leafStmt(c *basic.Node, kind ir.StmtKind) ir.Node {
	st := &ir.Statement{NodeBase: b.base(c), StmtKind: kind}
	b.trailing(st, c)
	return b.attach(st)
}

// loopStmt converts For/For Each/Do/While/With: expression children first
// (header), then the body block, then any post-condition expressions
// (Do ... Loop While), all in source order.
func (b *builder) loopStmt(c *basic.Node, kind ir.StmtKind) ir.Node {
	st := &ir.Statement{NodeBase: b.base(c), StmtKind: kind}
	for _, ch := range c.Children {
		switch {
		case isExprKind(ch.Kind):
			st.Children = append(st.Children, b.expression(ch))
		case ch.Kind == basic.KindBlock:
			st.Children = append(st.Children, b.block(ch)...)
		case ch.Tok != nil && ch.Tok.Type == basic.TokIdent && kind == ir.StmtFor:
			// Loop counter and the optional "Next i" identifier.
			st.Children = append(st.Children, b.identExpr(ch))
		case ch.Tok != nil && ch.Tok.Type == basic.TokIdent && kind == ir.StmtForEach:
			st.Children = append(st.Children, b.identExpr(ch))
		}
	}
	b.trailing(st, c)
	return b.attach(st)
}

func (b *builder) ifStmt(c *basic.Node) ir.Node {
	st := &ir.Statement{NodeBase: b.base(c), StmtKind: ir.StmtIf}
	for _, ch := range c.Children {
		if ch.Kind != basic.KindIfArm {
			continue
		}
		arm := &ir.Statement{NodeBase: b.base(ch), StmtKind: ir.StmtBranch}
		for _, ac := range ch.Children {
			switch {
			case isExprKind(ac.Kind):
				arm.Children = append(arm.Children, b.expression(ac))
			case ac.Kind == basic.KindBlock:
				arm.Children = append(arm.Children, b.block(ac)...)
			}
		}
		b.trailing(arm, ch)
		st.Children = append(st.Children, arm)
	}
	b.trailing(st, c)
	return b.attach(st)
}

func (b *builder) selectStmt(c *basic.Node) ir.Node {
	st := &ir.Statement{NodeBase: b.base(c), StmtKind: ir.StmtSelect}
	for _, ch := range c.Children {
		switch {
		case isExprKind(ch.Kind):
			st.Children = append(st.Children, b.expression(ch))
		case ch.Kind == basic.KindCaseClause:
			arm := &ir.Statement{NodeBase: b.base(ch), StmtKind: ir.StmtCase}
			for _, ac := range ch.Children {
				switch {
				case isExprKind(ac.Kind):
					arm.Children = append(arm.Children, b.expression(ac))
				case ac.Kind == basic.KindBlock:
					arm.Children = append(arm.Children, b.block(ac)...)
				}
			}
			b.trailing(arm, ch)
			st.Children = append(st.Children, arm)
		}
	}
	b.trailing(st, c)
	return b.attach(st)
}

// ---------------------------------------------------------------------------
// Expressions

func isExprKind(k basic.NodeKind) bool {
	switch k {
	case basic.KindBinaryExpr, basic.KindUnaryExpr, basic.KindCallExpr,
		basic.KindMemberExpr, basic.KindIndexExpr, basic.KindParenExpr,
		basic.KindLiteral, basic.KindIdent, basic.KindError:
		return true
	}
	return false
}

func (b *builder) identExpr(leaf *basic.Node) *ir.Expression {
	return &ir.Expression{
		NodeBase: ir.NodeBase{Span: ingest.SpanBetween(leaf.Tok.Start, leaf.Tok.End), Text: leaf.Tok.Text},
		ExprKind: ir.ExprIdentifier,
		Name:     leaf.Tok.Text,
	}
}

func (b *builder) expression(c *basic.Node) ir.Node {
	switch c.Kind {
	case basic.KindLiteral:
		e := &ir.Expression{NodeBase: b.base(c), ExprKind: ir.ExprLiteral}
		e.Value = e.Text
		return e
	case basic.KindIdent:
		e := &ir.Expression{NodeBase: b.base(c), ExprKind: ir.ExprIdentifier}
		e.Name = e.Text
		return e
	case basic.KindBinaryExpr:
		e := &ir.Expression{NodeBase: b.base(c), ExprKind: ir.ExprBinary}
		for _, ch := range c.Children {
			if ch.Tok != nil {
				e.Op = ch.Tok.Text
				continue
			}
			e.Children = append(e.Children, b.expression(ch))
		}
		return e
	case basic.KindUnaryExpr:
		e := &ir.Expression{NodeBase: b.base(c), ExprKind: ir.ExprUnary}
		for _, ch := range c.Children {
			if ch.Tok != nil {
				e.Op = ch.Tok.Text
				continue
			}
			e.Children = append(e.Children, b.expression(ch))
		}
		return e
	case basic.KindCallExpr:
		// Calls and array indexing share one syntax; both surface as call
		// expressions and stay undistinguished without name resolution.
		e := &ir.Expression{NodeBase: b.base(c), ExprKind: ir.ExprCall}
		for _, ch := range c.Children {
			if ch.Tok != nil {
				continue // parens and commas
			}
			e.Children = append(e.Children, b.expression(ch))
		}
		return e
	case basic.KindMemberExpr:
		e := &ir.Expression{NodeBase: b.base(c), ExprKind: ir.ExprMember}
		for _, ch := range c.Children {
			if ch.Tok != nil {
				switch ch.Tok.Type {
				case basic.TokDot, basic.TokBang:
					e.Op = ch.Tok.Text
				default:
					e.Name = ch.Tok.Text
				}
				continue
			}
			e.Children = append(e.Children, b.expression(ch))
		}
		return e
	case basic.KindParenExpr:
		e := &ir.Expression{NodeBase: b.base(c), ExprKind: ir.ExprParen}
		for _, ch := range c.Children {
			if ch.Tok == nil {
				e.Children = append(e.Children, b.expression(ch))
			}
		}
		return e
	case basic.KindError:
		return &ir.ErrorNode{NodeBase: b.base(c)}
	}
	return &ir.ErrorNode{NodeBase: b.base(c)}
}

// ---------------------------------------------------------------------------
// Controls (form modules)

// control converts a designer Begin...End block. groupPrefix carries the
// BeginProperty nesting path for property names (e.g. "Font.").
func (b *builder) control(c *basic.Node, groupPrefix string) ir.Node {
	ctl := &ir.Control{NodeBase: b.base(c)}

	// Header tokens: type path (VB.CommandButton) then the control name.
	var headerIdents []string
	for _, ch := range c.Children {
		if ch.Tok == nil {
			break
		}
		switch ch.Tok.Type {
		case basic.TokKwBegin:
			continue
		case basic.TokIdent, basic.TokDot:
			headerIdents = append(headerIdents, ch.Tok.Text)
			continue
		}
		break
	}
	if len(headerIdents) > 0 {
		ctl.Name = headerIdents[len(headerIdents)-1]
		ctl.TypeName = strings.Join(headerIdents[:len(headerIdents)-1], "")
	}

	inner := &builder{tree: b.tree}
	b.controlBody(ctl, c, groupPrefix, inner)
	ctl.NodeBase.Trailing = append(ctl.NodeBase.Trailing, inner.pending...)
	return b.attach(ctl)
}

func (b *builder) controlBody(ctl *ir.Control, c *basic.Node, groupPrefix string, inner *builder) {
	for _, ch := range c.Children {
		switch ch.Kind {
		case basic.KindComment, basic.KindBlankRun:
			inner.bufferTrivia(ch)
		case basic.KindControlBlock:
			ctl.Children = append(ctl.Children, inner.control(ch, ""))
		case basic.KindPropAssign:
			prop, frx := b.controlProp(ch, groupPrefix)
			ctl.Props = append(ctl.Props, prop)
			if frx != "" {
				ctl.ResourceRefs = append(ctl.ResourceRefs, frx)
			}
		case basic.KindPropGroup:
			name := ""
			for _, gc := range ch.Children[1:] {
				if gc.Tok != nil && gc.Tok.Type == basic.TokIdent {
					name = gc.Tok.Text
					break
				}
			}
			prefix := groupPrefix
			if name != "" {
				prefix = prefix + name + "."
			}
			b.controlBody(ctl, ch, prefix, inner)
		case basic.KindError:
			ctl.Children = append(ctl.Children, inner.errorNode(ch))
		}
	}
}

func (b *builder) controlProp(c *basic.Node, groupPrefix string) (ir.ControlProp, string) {
	prop := ir.ControlProp{Span: ingest.NodeSpan(c)}
	frx := ""
	sawAssign := false
	var nameParts, valueParts []string
	for _, ch := range c.Children {
		if ch.Tok == nil {
			continue
		}
		if ch.Tok.Type == basic.TokAssign && !sawAssign {
			sawAssign = true
			continue
		}
		if !sawAssign {
			nameParts = append(nameParts, ch.Tok.Text)
			continue
		}
		valueParts = append(valueParts, ch.Tok.Text)
		if ch.Tok.Type == basic.TokString && strings.Contains(strings.ToLower(ch.Tok.Text), ".frx") {
			frx = unquote(ch.Tok.Text)
		}
	}
	prop.Name = groupPrefix + strings.Join(nameParts, "")
	prop.Value = strings.Join(valueParts, "")
	return prop, frx
}

// ---------------------------------------------------------------------------
// Event bindings

// deriveBindings creates one EventBinding per convention-named procedure
// (<Control>_<Event>) in a form module. The enricher resolves or flags
// them; the builder never guesses beyond the name split.
func (b *builder) deriveBindings(mod *ir.Module) {
	for _, child := range mod.Children {
		proc, ok := child.(*ir.Procedure)
		if !ok {
			continue
		}
		name, _ := splitSigil(proc.Name)
		idx := strings.LastIndex(name, "_")
		if idx <= 0 || idx == len(name)-1 {
			continue
		}
		mod.Bindings = append(mod.Bindings, &ir.EventBinding{
			NodeBase:      ir.NodeBase{Span: proc.Span, Text: proc.Name},
			ProcedureName: proc.Name,
			ControlName:   name[:idx],
			EventName:     name[idx+1:],
		})
	}
}

// ---------------------------------------------------------------------------
// Helpers

func visibilityOf(c *basic.Node) string {
	for _, ch := range c.Children {
		if ch.Tok == nil {
			continue
		}
		switch ch.Tok.Type {
		case basic.TokKwPublic, basic.TokKwPrivate, basic.TokKwGlobal, basic.TokKwFriend:
			return strings.ToLower(ch.Tok.Text)
		}
	}
	return ""
}

func hasLeaf(c *basic.Node, tt basic.TokenType) bool {
	return c.LeafOfType(tt) != nil
}

// typeNameOf extracts the verbatim type name from an As clause, skipping
// the As/New keywords but keeping dotted paths and fixed-length suffixes.
func typeNameOf(at *basic.Node) string {
	var parts []string
	for _, ch := range at.Children {
		if ch.Tok == nil {
			continue
		}
		switch ch.Tok.Type {
		case basic.TokKwAs, basic.TokKwNew:
			continue
		}
		parts = append(parts, ch.Tok.Text)
	}
	return strings.Join(parts, "")
}

// leafTokens flattens a node's direct leaf children.
func leafTokens(c *basic.Node) []*basic.Token {
	var out []*basic.Token
	for _, ch := range c.Children {
		if ch.Tok != nil {
			out = append(out, ch.Tok)
		}
	}
	return out
}

// splitSigil separates a declaration type sigil from an identifier.
func splitSigil(name string) (string, string) {
	if name == "" {
		return "", ""
	}
	switch name[len(name)-1] {
	case '%', '&', '!', '#', '$', '@':
		return name[:len(name)-1], name[len(name)-1:]
	}
	return name, ""
}

// unquote strips string-literal quotes and collapses doubled quotes.
func unquote(text string) string {
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		return strings.ReplaceAll(text[1:len(text)-1], `""`, `"`)
	}
	return text
}

func stem(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}
