package basic

import (
	"fmt"
	"strings"
)

// Parser derives a raw concrete syntax tree from a token stream. One
// instance per input; instances hold mutable state and must not be shared
// across concurrent invocations.
//
// The parser never fails: constructs it cannot derive become KindError
// nodes and every recovery is reported through the installed listener.
type Parser struct {
	toks     []Token
	i        int
	listener ErrorListener
}

// Parse lexes and parses decoded source bytes into a Tree. A nil listener
// discards recovery events.
func Parse(src []byte, listener ErrorListener) *Tree {
	if listener == nil {
		listener = discardListener{}
	}
	lex := NewLexer(src, listener)
	toks := lex.Scan()
	p := &Parser{toks: toks, listener: listener}
	root := p.module()
	return &Tree{Root: root, Tokens: toks, Source: src}
}

func (p *Parser) peek() Token {
	if p.i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i]
}

func (p *Parser) peekAt(n int) Token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *Parser) atEnd() bool { return p.peek().Type == TokEOF }

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.i < len(p.toks)-1 {
		p.i++
	}
	return tok
}

func (p *Parser) check(tt TokenType) bool { return p.peek().Type == tt }

func (p *Parser) match(tts ...TokenType) bool {
	for _, tt := range tts {
		if p.peek().Type == tt {
			return true
		}
	}
	return false
}

// take consumes and returns the current token as a leaf node.
func (p *Parser) take() *Node { return Leaf(p.advance()) }

// expect consumes a token of the given type, or reports a recovery event
// and returns nil without consuming.
func (p *Parser) expect(tt TokenType, what string) *Node {
	if p.check(tt) {
		return p.take()
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, fmt.Sprintf("expected %s, found %q", what, tok.Text))
	return nil
}

// ---------------------------------------------------------------------------
// Module level

func (p *Parser) module() *Node {
	mod := &Node{Kind: KindModule}
	for !p.atEnd() {
		if n := p.trivia(); n != nil {
			mod.Children = append(mod.Children, n)
			continue
		}
		if p.atEnd() {
			break
		}
		mod.Children = append(mod.Children, p.moduleItem())
	}
	return mod
}

// trivia consumes a comment or an end-of-line. Blank-line runs (two or
// more consecutive EOLs) become a blankRun node; single EOLs are dropped.
func (p *Parser) trivia() *Node {
	switch p.peek().Type {
	case TokComment:
		tok := p.advance()
		if p.check(TokEOL) {
			p.advance()
		}
		return &Node{Kind: KindComment, Tok: &tok}
	case TokEOL, TokColon:
		first := p.advance()
		if first.Type == TokColon {
			return p.trivia()
		}
		run := []*Node{Leaf(first)}
		for p.check(TokEOL) {
			run = append(run, p.take())
		}
		if len(run) > 1 {
			return &Node{Kind: KindBlankRun, Children: run}
		}
		return p.trivia()
	}
	return nil
}

func (p *Parser) moduleItem() *Node {
	switch p.peek().Type {
	case TokKwVersion:
		return p.versionHeader()
	case TokKwBegin:
		return p.controlBlock()
	case TokKwAttribute:
		return p.attributeStmt()
	case TokKwOption:
		return p.optionStmt()
	case TokKwDim, TokKwWithEvents:
		return p.variableDecl(nil)
	case TokKwConst:
		return p.constDecl(nil)
	case TokKwType:
		return p.typeBlock(nil)
	case TokKwEnum:
		return p.enumBlock(nil)
	case TokKwDeclare:
		return p.declareStmt(nil)
	case TokKwSub, TokKwFunction, TokKwProperty:
		return p.procedure(nil)
	case TokKwPublic, TokKwPrivate, TokKwGlobal, TokKwFriend, TokKwStatic:
		mods := []*Node{p.take()}
		for p.match(TokKwStatic, TokKwWithEvents) {
			mods = append(mods, p.take())
		}
		switch p.peek().Type {
		case TokKwSub, TokKwFunction, TokKwProperty:
			return p.procedure(mods)
		case TokKwConst:
			return p.constDecl(mods)
		case TokKwType:
			return p.typeBlock(mods)
		case TokKwEnum:
			return p.enumBlock(mods)
		case TokKwDeclare:
			return p.declareStmt(mods)
		case TokIdent:
			return p.variableDecl(mods)
		}
		return p.recoverStmt(mods, "declaration")
	}
	return p.recoverStmt(nil, "module-level construct")
}

// recoverStmt folds the rest of the logical line into an error node and
// reports exactly one recovery event covering its span.
func (p *Parser) recoverStmt(prefix []*Node, what string) *Node {
	errNode := &Node{Kind: KindError, Children: prefix}
	bad := p.peek()
	for !p.atEnd() && !p.check(TokEOL) {
		errNode.Children = append(errNode.Children, p.take())
	}
	if p.check(TokEOL) {
		p.advance()
	}
	start, end := bad.Start, bad.End
	if first := errNode.FirstToken(); first != nil {
		start = first.Start
	}
	if last := errNode.LastToken(); last != nil {
		end = last.End
	}
	p.listener.SyntaxError(start, end, fmt.Sprintf("cannot parse %s near %q", what, bad.Text))
	return errNode
}

func (p *Parser) versionHeader() *Node {
	n := &Node{Kind: KindVersion, Children: []*Node{p.take()}}
	for !p.atEnd() && !p.check(TokEOL) {
		n.Children = append(n.Children, p.take())
	}
	if p.check(TokEOL) {
		p.advance()
	}
	return n
}

// controlBlock parses a form designer block:
//
//	Begin VB.CommandButton Command1
//	   Caption = "OK"
//	   Begin ... End
//	End
func (p *Parser) controlBlock() *Node {
	n := &Node{Kind: KindControlBlock, Children: []*Node{p.take()}}
	// Control type: dotted path (VB.CommandButton), then the control name.
	for p.match(TokIdent, TokDot) {
		n.Children = append(n.Children, p.take())
	}
	if p.check(TokEOL) {
		p.advance()
	}
	for !p.atEnd() {
		if t := p.trivia(); t != nil {
			n.Children = append(n.Children, t)
			continue
		}
		switch p.peek().Type {
		case TokKwEnd:
			n.Children = append(n.Children, p.take())
			if p.check(TokEOL) {
				p.advance()
			}
			return n
		case TokKwBegin:
			n.Children = append(n.Children, p.controlBlock())
		case TokIdent:
			if strings.EqualFold(p.peek().Text, "BeginProperty") {
				n.Children = append(n.Children, p.propertyGroup())
				continue
			}
			n.Children = append(n.Children, p.propertyAssign())
		default:
			n.Children = append(n.Children, p.recoverStmt(nil, "control property"))
		}
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, "unterminated control block: missing End")
	return n
}

func (p *Parser) propertyGroup() *Node {
	n := &Node{Kind: KindPropGroup, Children: []*Node{p.take()}}
	for !p.atEnd() && !p.check(TokEOL) {
		n.Children = append(n.Children, p.take())
	}
	if p.check(TokEOL) {
		p.advance()
	}
	for !p.atEnd() {
		if t := p.trivia(); t != nil {
			n.Children = append(n.Children, t)
			continue
		}
		if p.check(TokIdent) && strings.EqualFold(p.peek().Text, "EndProperty") {
			n.Children = append(n.Children, p.take())
			if p.check(TokEOL) {
				p.advance()
			}
			return n
		}
		if p.check(TokIdent) && strings.EqualFold(p.peek().Text, "BeginProperty") {
			n.Children = append(n.Children, p.propertyGroup())
			continue
		}
		if p.check(TokIdent) {
			n.Children = append(n.Children, p.propertyAssign())
			continue
		}
		n.Children = append(n.Children, p.recoverStmt(nil, "property group entry"))
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, "unterminated property group: missing EndProperty")
	return n
}

func (p *Parser) propertyAssign() *Node {
	n := &Node{Kind: KindPropAssign, Children: []*Node{p.take()}}
	for p.match(TokDot, TokIdent) {
		n.Children = append(n.Children, p.take())
	}
	if eq := p.expect(TokAssign, `"=" in property assignment`); eq != nil {
		n.Children = append(n.Children, eq)
	}
	// Property values run to end of line; FRX references look like
	// "Form1.frx":0000 and are captured verbatim.
	for !p.atEnd() && !p.check(TokEOL) {
		n.Children = append(n.Children, p.take())
	}
	if p.check(TokEOL) {
		p.advance()
	}
	return n
}

func (p *Parser) attributeStmt() *Node {
	n := &Node{Kind: KindAttribute, Children: []*Node{p.take()}}
	for !p.atEnd() && !p.check(TokEOL) {
		n.Children = append(n.Children, p.take())
	}
	if p.check(TokEOL) {
		p.advance()
	}
	return n
}

func (p *Parser) optionStmt() *Node {
	n := &Node{Kind: KindOption, Children: []*Node{p.take()}}
	for !p.atEnd() && !p.check(TokEOL) && !p.check(TokComment) {
		n.Children = append(n.Children, p.take())
	}
	p.endOfStatement(n)
	return n
}

// ---------------------------------------------------------------------------
// Declarations

func (p *Parser) variableDecl(mods []*Node) *Node {
	n := &Node{Kind: KindVarDecl, Children: mods}
	if p.match(TokKwDim, TokKwStatic, TokKwRedim) {
		n.Children = append(n.Children, p.take())
	}
	if p.check(TokKwPreserve) {
		n.Children = append(n.Children, p.take())
	}
	if p.check(TokKwWithEvents) {
		n.Children = append(n.Children, p.take())
	}
	for {
		// recoverStmt reports the whole construct; no expect event first.
		if !p.check(TokIdent) {
			return p.recoverStmt(n.Children, "variable declaration")
		}
		n.Children = append(n.Children, p.take())
		if p.check(TokLParen) {
			// Array bounds, kept verbatim.
			n.Children = append(n.Children, p.take())
			depth := 1
			for depth > 0 && !p.atEnd() && !p.check(TokEOL) {
				switch p.peek().Type {
				case TokLParen:
					depth++
				case TokRParen:
					depth--
				}
				n.Children = append(n.Children, p.take())
			}
		}
		if p.check(TokKwAs) {
			n.Children = append(n.Children, p.asTypeClause())
		}
		if !p.check(TokComma) {
			break
		}
		n.Children = append(n.Children, p.take())
	}
	p.endOfStatement(n)
	return n
}

func (p *Parser) constDecl(mods []*Node) *Node {
	n := &Node{Kind: KindConstDecl, Children: mods}
	n.Children = append(n.Children, p.take()) // Const
	for {
		if !p.check(TokIdent) {
			return p.recoverStmt(n.Children, "constant declaration")
		}
		n.Children = append(n.Children, p.take())
		if p.check(TokKwAs) {
			n.Children = append(n.Children, p.asTypeClause())
		}
		if !p.check(TokAssign) {
			return p.recoverStmt(n.Children, "constant declaration")
		}
		n.Children = append(n.Children, p.take(), p.expression())
		if !p.check(TokComma) {
			break
		}
		n.Children = append(n.Children, p.take())
	}
	p.endOfStatement(n)
	return n
}

func (p *Parser) typeBlock(mods []*Node) *Node {
	n := &Node{Kind: KindTypeBlock, Children: mods}
	n.Children = append(n.Children, p.take()) // Type
	if name := p.expect(TokIdent, "type name"); name != nil {
		n.Children = append(n.Children, name)
	}
	p.endOfStatement(n)
	for !p.atEnd() {
		if t := p.trivia(); t != nil {
			n.Children = append(n.Children, t)
			continue
		}
		if p.check(TokKwEnd) && p.peekAt(1).Type == TokKwType {
			n.Children = append(n.Children, p.take(), p.take())
			p.endOfStatement(n)
			return n
		}
		if p.check(TokIdent) {
			n.Children = append(n.Children, p.variableDecl(nil))
			continue
		}
		n.Children = append(n.Children, p.recoverStmt(nil, "type member"))
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, "unterminated Type block: missing End Type")
	return n
}

func (p *Parser) enumBlock(mods []*Node) *Node {
	n := &Node{Kind: KindEnumBlock, Children: mods}
	n.Children = append(n.Children, p.take()) // Enum
	if name := p.expect(TokIdent, "enum name"); name != nil {
		n.Children = append(n.Children, name)
	}
	p.endOfStatement(n)
	for !p.atEnd() {
		if t := p.trivia(); t != nil {
			n.Children = append(n.Children, t)
			continue
		}
		if p.check(TokKwEnd) && p.peekAt(1).Type == TokKwEnum {
			n.Children = append(n.Children, p.take(), p.take())
			p.endOfStatement(n)
			return n
		}
		if p.check(TokIdent) {
			m := &Node{Kind: KindEnumMember, Children: []*Node{p.take()}}
			if p.check(TokAssign) {
				m.Children = append(m.Children, p.take(), p.expression())
			}
			p.endOfStatement(m)
			n.Children = append(n.Children, m)
			continue
		}
		n.Children = append(n.Children, p.recoverStmt(nil, "enum member"))
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, "unterminated Enum block: missing End Enum")
	return n
}

func (p *Parser) declareStmt(mods []*Node) *Node {
	n := &Node{Kind: KindDeclareStmt, Children: mods}
	n.Children = append(n.Children, p.take()) // Declare
	for !p.atEnd() && !p.check(TokEOL) && !p.check(TokComment) {
		if p.check(TokLParen) {
			n.Children = append(n.Children, p.paramList())
			continue
		}
		if p.check(TokKwAs) {
			n.Children = append(n.Children, p.asTypeClause())
			continue
		}
		n.Children = append(n.Children, p.take())
	}
	p.endOfStatement(n)
	return n
}

func (p *Parser) asTypeClause() *Node {
	n := &Node{Kind: KindAsType, Children: []*Node{p.take()}} // As
	if p.check(TokKwNew) {
		n.Children = append(n.Children, p.take())
	}
	if p.check(TokIdent) {
		n.Children = append(n.Children, p.take())
		for p.check(TokDot) && p.peekAt(1).Type == TokIdent {
			n.Children = append(n.Children, p.take(), p.take())
		}
		// Fixed-length string: As String * 20
		if p.check(TokStar) {
			n.Children = append(n.Children, p.take())
			if p.match(TokInteger, TokIdent) {
				n.Children = append(n.Children, p.take())
			}
		}
	} else {
		tok := p.peek()
		p.listener.SyntaxError(tok.Start, tok.End, fmt.Sprintf("expected type name after As, found %q", tok.Text))
	}
	return n
}

// ---------------------------------------------------------------------------
// Procedures

func (p *Parser) procedure(mods []*Node) *Node {
	n := &Node{Kind: KindProcedure, Children: mods}
	kind := p.take() // Sub | Function | Property
	n.Children = append(n.Children, kind)
	isProperty := kind.Tok.Type == TokKwProperty
	if isProperty {
		if p.match(TokKwGet, TokKwLet, TokKwSet) {
			n.Children = append(n.Children, p.take())
		} else {
			tok := p.peek()
			p.listener.SyntaxError(tok.Start, tok.End, "expected Get, Let or Set after Property")
		}
	}
	if !p.check(TokIdent) {
		return p.recoverStmt(n.Children, "procedure header")
	}
	n.Children = append(n.Children, p.take())
	if p.check(TokLParen) {
		n.Children = append(n.Children, p.paramList())
	}
	if p.check(TokKwAs) {
		n.Children = append(n.Children, p.asTypeClause())
	}
	p.endOfStatement(n)

	body := &Node{Kind: KindBlock}
	endKinds := []TokenType{TokKwSub, TokKwFunction, TokKwProperty}
	for !p.atEnd() {
		if t := p.trivia(); t != nil {
			body.Children = append(body.Children, t)
			continue
		}
		if p.check(TokKwEnd) {
			next := p.peekAt(1).Type
			for _, ek := range endKinds {
				if next == ek {
					n.Children = append(n.Children, body, p.take(), p.take())
					p.endOfStatement(n)
					return n
				}
			}
		}
		body.Children = append(body.Children, p.statement())
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, "unterminated procedure: missing End")
	n.Children = append(n.Children, body)
	return n
}

func (p *Parser) paramList() *Node {
	n := &Node{Kind: KindParamList, Children: []*Node{p.take()}} // "("
	for !p.atEnd() && !p.check(TokRParen) && !p.check(TokEOL) {
		n.Children = append(n.Children, p.param())
		if p.check(TokComma) {
			n.Children = append(n.Children, p.take())
			continue
		}
		break
	}
	if rp := p.expect(TokRParen, `")"`); rp != nil {
		n.Children = append(n.Children, rp)
	}
	return n
}

func (p *Parser) param() *Node {
	n := &Node{Kind: KindParam}
	for p.match(TokKwOptional, TokKwByVal, TokKwByRef, TokKwParamArray) {
		n.Children = append(n.Children, p.take())
	}
	if name := p.expect(TokIdent, "parameter name"); name != nil {
		n.Children = append(n.Children, name)
	} else {
		// Skip one token so the list loop advances past the bad input.
		if !p.match(TokRParen, TokComma, TokEOL, TokEOF) {
			n.Children = append(n.Children, Leaf(p.advance()))
		}
		n.Kind = KindError
		return n
	}
	if p.check(TokLParen) && p.peekAt(1).Type == TokRParen {
		n.Children = append(n.Children, p.take(), p.take())
	}
	if p.check(TokKwAs) {
		n.Children = append(n.Children, p.asTypeClause())
	}
	if p.check(TokAssign) {
		n.Children = append(n.Children, p.take(), p.expression())
	}
	return n
}

// ---------------------------------------------------------------------------
// Statements

// endOfStatement consumes the logical end of a statement: an optional
// trailing comment (kept as a sibling leaf so the builder can attach it as
// trailing trivia) followed by EOL or ":".
func (p *Parser) endOfStatement(n *Node) {
	if p.check(TokComment) {
		tok := p.advance()
		n.Children = append(n.Children, &Node{Kind: KindComment, Tok: &tok})
	}
	switch p.peek().Type {
	case TokEOL, TokColon:
		p.advance()
	case TokEOF:
	default:
		tok := p.peek()
		p.listener.SyntaxError(tok.Start, tok.End, fmt.Sprintf("expected end of statement, found %q", tok.Text))
		for !p.atEnd() && !p.check(TokEOL) {
			p.advance()
		}
		if p.check(TokEOL) {
			p.advance()
		}
	}
}

func (p *Parser) statement() *Node {
	switch p.peek().Type {
	case TokKwDim, TokKwStatic, TokKwRedim:
		if p.peek().Type == TokKwRedim {
			n := p.variableDecl(nil)
			n.Kind = KindRedimStmt
			return n
		}
		return p.variableDecl(nil)
	case TokKwConst:
		return p.constDecl(nil)
	case TokKwIf:
		return p.ifBlock()
	case TokKwFor:
		return p.forStmt()
	case TokKwDo:
		return p.doLoop()
	case TokKwWhile:
		return p.whileWend()
	case TokKwSelect:
		return p.selectCase()
	case TokKwWith:
		return p.withBlock()
	case TokKwExit:
		n := &Node{Kind: KindExitStmt, Children: []*Node{p.take()}}
		if p.match(TokKwSub, TokKwFunction, TokKwProperty, TokKwFor, TokKwDo) {
			n.Children = append(n.Children, p.take())
		}
		p.endOfStatement(n)
		return n
	case TokKwOn:
		n := &Node{Kind: KindOnErrorStmt, Children: []*Node{p.take()}}
		for !p.atEnd() && !p.check(TokEOL) && !p.check(TokComment) {
			n.Children = append(n.Children, p.take())
		}
		p.endOfStatement(n)
		return n
	case TokKwGoTo, TokKwResume:
		n := &Node{Kind: KindGotoStmt, Children: []*Node{p.take()}}
		for !p.atEnd() && !p.check(TokEOL) && !p.check(TokComment) {
			n.Children = append(n.Children, p.take())
		}
		p.endOfStatement(n)
		return n
	case TokKwCall:
		n := &Node{Kind: KindCallStmt, Children: []*Node{p.take(), p.expression()}}
		p.endOfStatement(n)
		return n
	case TokKwLet, TokKwSet:
		kw := p.take()
		return p.assignOrCall([]*Node{kw})
	case TokIdent, TokDot, TokKwError:
		// Labels: identifier followed by ":" at the start of a line.
		if p.check(TokIdent) && p.peekAt(1).Type == TokColon {
			n := &Node{Kind: KindLabelStmt, Children: []*Node{p.take(), p.take()}}
			return n
		}
		return p.assignOrCall(nil)
	}
	return p.recoverStmt(nil, "statement")
}

// assignOrCall disambiguates assignment statements from implicit call
// statements after parsing the leading postfix expression.
func (p *Parser) assignOrCall(prefix []*Node) *Node {
	target := p.postfixExpression()
	if p.check(TokAssign) {
		n := &Node{Kind: KindAssignStmt, Children: append(prefix, target, p.take(), p.expression())}
		p.endOfStatement(n)
		return n
	}
	n := &Node{Kind: KindCallStmt, Children: append(prefix, target)}
	// Implicit call arguments: MsgBox "hi", vbOKOnly
	for !p.atEnd() && !p.match(TokEOL, TokColon, TokComment) {
		if p.check(TokComma) {
			n.Children = append(n.Children, p.take())
			continue
		}
		n.Children = append(n.Children, p.expression())
		if !p.check(TokComma) {
			break
		}
	}
	p.endOfStatement(n)
	return n
}

func (p *Parser) ifBlock() *Node {
	n := &Node{Kind: KindIfBlock}
	arm := &Node{Kind: KindIfArm, Children: []*Node{p.take()}} // If
	arm.Children = append(arm.Children, p.expression())
	if then := p.expect(TokKwThen, "Then"); then != nil {
		arm.Children = append(arm.Children, then)
	}

	// Single-line form: statements follow Then on the same line.
	if !p.match(TokEOL, TokComment, TokEOF) {
		inline := &Node{Kind: KindBlock}
		inline.Children = append(inline.Children, p.inlineStatement())
		arm.Children = append(arm.Children, inline)
		n.Children = append(n.Children, arm)
		if p.check(TokKwElse) {
			elseArm := &Node{Kind: KindIfArm, Children: []*Node{p.take()}}
			elseBlock := &Node{Kind: KindBlock}
			elseBlock.Children = append(elseBlock.Children, p.inlineStatement())
			elseArm.Children = append(elseArm.Children, elseBlock)
			n.Children = append(n.Children, elseArm)
		}
		p.endOfStatement(n)
		return n
	}
	p.endOfStatement(arm)

	block := &Node{Kind: KindBlock}
	for !p.atEnd() {
		if t := p.trivia(); t != nil {
			block.Children = append(block.Children, t)
			continue
		}
		switch {
		case p.check(TokKwElseIf):
			arm.Children = append(arm.Children, block)
			n.Children = append(n.Children, arm)
			arm = &Node{Kind: KindIfArm, Children: []*Node{p.take(), p.expression()}}
			if then := p.expect(TokKwThen, "Then"); then != nil {
				arm.Children = append(arm.Children, then)
			}
			p.endOfStatement(arm)
			block = &Node{Kind: KindBlock}
		case p.check(TokKwElse):
			arm.Children = append(arm.Children, block)
			n.Children = append(n.Children, arm)
			arm = &Node{Kind: KindIfArm, Children: []*Node{p.take()}}
			p.endOfStatement(arm)
			block = &Node{Kind: KindBlock}
		case p.check(TokKwEnd) && p.peekAt(1).Type == TokKwIf:
			arm.Children = append(arm.Children, block)
			n.Children = append(n.Children, arm)
			n.Children = append(n.Children, p.take(), p.take())
			p.endOfStatement(n)
			return n
		default:
			block.Children = append(block.Children, p.statement())
		}
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, "unterminated If block: missing End If")
	arm.Children = append(arm.Children, block)
	n.Children = append(n.Children, arm)
	return n
}

// inlineStatement parses a statement in single-line If position, stopping
// before Else so the caller can pick it up.
func (p *Parser) inlineStatement() *Node {
	switch p.peek().Type {
	case TokKwExit, TokKwGoTo, TokKwResume, TokKwCall, TokKwLet, TokKwSet, TokIdent:
		return p.inlineSimple()
	}
	return p.recoverStmt(nil, "statement")
}

func (p *Parser) inlineSimple() *Node {
	var prefix []*Node
	switch p.peek().Type {
	case TokKwExit:
		n := &Node{Kind: KindExitStmt, Children: []*Node{p.take()}}
		if p.match(TokKwSub, TokKwFunction, TokKwProperty, TokKwFor, TokKwDo) {
			n.Children = append(n.Children, p.take())
		}
		return n
	case TokKwGoTo, TokKwResume:
		n := &Node{Kind: KindGotoStmt, Children: []*Node{p.take()}}
		if p.match(TokIdent, TokInteger, TokKwNext) {
			n.Children = append(n.Children, p.take())
		}
		return n
	case TokKwCall:
		return &Node{Kind: KindCallStmt, Children: []*Node{p.take(), p.expression()}}
	case TokKwLet, TokKwSet:
		prefix = append(prefix, p.take())
	}
	target := p.postfixExpression()
	if p.check(TokAssign) {
		return &Node{Kind: KindAssignStmt, Children: append(prefix, target, p.take(), p.expression())}
	}
	n := &Node{Kind: KindCallStmt, Children: append(prefix, target)}
	for !p.atEnd() && !p.match(TokEOL, TokColon, TokComment, TokKwElse) {
		if p.check(TokComma) {
			n.Children = append(n.Children, p.take())
			continue
		}
		n.Children = append(n.Children, p.expression())
		if !p.check(TokComma) {
			break
		}
	}
	return n
}

func (p *Parser) forStmt() *Node {
	forTok := p.take()
	if p.check(TokKwEach) {
		n := &Node{Kind: KindForEachStmt, Children: []*Node{forTok, p.take()}}
		if name := p.expect(TokIdent, "loop variable"); name != nil {
			n.Children = append(n.Children, name)
		}
		if in := p.expect(TokKwIn, "In"); in != nil {
			n.Children = append(n.Children, in, p.expression())
		}
		p.endOfStatement(n)
		p.loopBody(n, TokKwNext)
		return n
	}
	n := &Node{Kind: KindForStmt, Children: []*Node{forTok}}
	if name := p.expect(TokIdent, "loop variable"); name != nil {
		n.Children = append(n.Children, name)
	}
	if eq := p.expect(TokAssign, `"="`); eq != nil {
		n.Children = append(n.Children, eq, p.expression())
	}
	if to := p.expect(TokKwTo, "To"); to != nil {
		n.Children = append(n.Children, to, p.expression())
	}
	if p.check(TokKwStep) {
		n.Children = append(n.Children, p.take(), p.expression())
	}
	p.endOfStatement(n)
	p.loopBody(n, TokKwNext)
	return n
}

// loopBody parses statements until the closing keyword (Next or Wend),
// appending the body block and closer to n.
func (p *Parser) loopBody(n *Node, closer TokenType) {
	block := &Node{Kind: KindBlock}
	for !p.atEnd() {
		if t := p.trivia(); t != nil {
			block.Children = append(block.Children, t)
			continue
		}
		if p.check(closer) {
			n.Children = append(n.Children, block, p.take())
			// Optional counter identifier after Next.
			if closer == TokKwNext && p.check(TokIdent) {
				n.Children = append(n.Children, p.take())
			}
			p.endOfStatement(n)
			return
		}
		block.Children = append(block.Children, p.statement())
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, "unterminated loop: missing closing keyword")
	n.Children = append(n.Children, block)
}

func (p *Parser) doLoop() *Node {
	n := &Node{Kind: KindDoLoop, Children: []*Node{p.take()}}
	if p.match(TokKwWhile, TokKwUntil) {
		n.Children = append(n.Children, p.take(), p.expression())
	}
	p.endOfStatement(n)
	block := &Node{Kind: KindBlock}
	for !p.atEnd() {
		if t := p.trivia(); t != nil {
			block.Children = append(block.Children, t)
			continue
		}
		if p.check(TokKwLoop) {
			n.Children = append(n.Children, block, p.take())
			if p.match(TokKwWhile, TokKwUntil) {
				n.Children = append(n.Children, p.take(), p.expression())
			}
			p.endOfStatement(n)
			return n
		}
		block.Children = append(block.Children, p.statement())
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, "unterminated Do: missing Loop")
	n.Children = append(n.Children, block)
	return n
}

func (p *Parser) whileWend() *Node {
	n := &Node{Kind: KindWhileWend, Children: []*Node{p.take(), p.expression()}}
	p.endOfStatement(n)
	p.loopBody(n, TokKwWend)
	return n
}

func (p *Parser) selectCase() *Node {
	n := &Node{Kind: KindSelectCase, Children: []*Node{p.take()}}
	if cs := p.expect(TokKwCase, "Case"); cs != nil {
		n.Children = append(n.Children, cs)
	}
	n.Children = append(n.Children, p.expression())
	p.endOfStatement(n)

	var clause *Node
	closeClause := func(block *Node) {
		if clause != nil {
			clause.Children = append(clause.Children, block)
			n.Children = append(n.Children, clause)
		}
	}
	block := &Node{Kind: KindBlock}
	for !p.atEnd() {
		if t := p.trivia(); t != nil {
			block.Children = append(block.Children, t)
			continue
		}
		switch {
		case p.check(TokKwCase):
			closeClause(block)
			block = &Node{Kind: KindBlock}
			clause = &Node{Kind: KindCaseClause, Children: []*Node{p.take()}}
			if p.check(TokKwElse) {
				clause.Children = append(clause.Children, p.take())
			} else {
				for {
					// Case Is <op> expr
					if p.check(TokKwIs) {
						clause.Children = append(clause.Children, p.take())
						if p.match(TokAssign, TokLess, TokLessEq, TokGreater, TokGreaterEq, TokNotEq) {
							clause.Children = append(clause.Children, p.take())
						}
					}
					clause.Children = append(clause.Children, p.expression())
					if p.check(TokKwTo) {
						clause.Children = append(clause.Children, p.take(), p.expression())
					}
					if !p.check(TokComma) {
						break
					}
					clause.Children = append(clause.Children, p.take())
				}
			}
			p.endOfStatement(clause)
		case p.check(TokKwEnd) && p.peekAt(1).Type == TokKwSelect:
			closeClause(block)
			n.Children = append(n.Children, p.take(), p.take())
			p.endOfStatement(n)
			return n
		default:
			if clause == nil {
				// Statements before the first Case cannot be derived.
				block.Children = append(block.Children, p.recoverStmt(nil, "Case clause"))
				continue
			}
			block.Children = append(block.Children, p.statement())
		}
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, "unterminated Select Case: missing End Select")
	closeClause(block)
	return n
}

func (p *Parser) withBlock() *Node {
	n := &Node{Kind: KindWithBlock, Children: []*Node{p.take(), p.expression()}}
	p.endOfStatement(n)
	block := &Node{Kind: KindBlock}
	for !p.atEnd() {
		if t := p.trivia(); t != nil {
			block.Children = append(block.Children, t)
			continue
		}
		if p.check(TokKwEnd) && p.peekAt(1).Type == TokKwWith {
			n.Children = append(n.Children, block, p.take(), p.take())
			p.endOfStatement(n)
			return n
		}
		block.Children = append(block.Children, p.statement())
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, "unterminated With block: missing End With")
	n.Children = append(n.Children, block)
	return n
}

// ---------------------------------------------------------------------------
// Expressions (precedence climbing)

func (p *Parser) expression() *Node { return p.binaryExpr(0) }

// binOpPrec returns the binding power for binary operators, or -1.
// In expression position "=" is the equality comparison.
func binOpPrec(tt TokenType) int {
	switch tt {
	case TokKwOr, TokKwXor:
		return 1
	case TokKwAnd:
		return 2
	case TokAssign, TokLess, TokLessEq, TokGreater, TokGreaterEq, TokNotEq, TokKwIs, TokKwLike:
		return 3
	case TokAmp:
		return 4
	case TokPlus, TokMinus:
		return 5
	case TokKwMod:
		return 6
	case TokBackslash:
		return 7
	case TokStar, TokSlash:
		return 8
	case TokCaret:
		return 10
	}
	return -1
}

func (p *Parser) binaryExpr(minPrec int) *Node {
	left := p.unaryExpr()
	for {
		prec := binOpPrec(p.peek().Type)
		if prec < 0 || prec < minPrec {
			return left
		}
		op := p.take()
		right := p.binaryExpr(prec + 1)
		left = &Node{Kind: KindBinaryExpr, Children: []*Node{left, op, right}}
	}
}

func (p *Parser) unaryExpr() *Node {
	if p.match(TokMinus, TokPlus, TokKwNot) {
		op := p.take()
		return &Node{Kind: KindUnaryExpr, Children: []*Node{op, p.unaryExpr()}}
	}
	return p.postfixExpression()
}

func (p *Parser) postfixExpression() *Node {
	expr := p.primary()
	for {
		switch p.peek().Type {
		case TokDot:
			if p.peekAt(1).Type == TokIdent || p.peekAt(1).IsKeyword() {
				expr = &Node{Kind: KindMemberExpr, Children: []*Node{expr, p.take(), p.take()}}
				continue
			}
			return expr
		case TokBang:
			if p.peekAt(1).Type == TokIdent {
				expr = &Node{Kind: KindMemberExpr, Children: []*Node{expr, p.take(), p.take()}}
				continue
			}
			return expr
		case TokLParen:
			call := &Node{Kind: KindCallExpr, Children: []*Node{expr, p.take()}}
			for !p.atEnd() && !p.check(TokRParen) && !p.check(TokEOL) {
				call.Children = append(call.Children, p.expression())
				if p.check(TokComma) {
					call.Children = append(call.Children, p.take())
					continue
				}
				break
			}
			if rp := p.expect(TokRParen, `")"`); rp != nil {
				call.Children = append(call.Children, rp)
			}
			expr = call
			continue
		}
		return expr
	}
}

func (p *Parser) primary() *Node {
	switch p.peek().Type {
	case TokInteger, TokFloat, TokString, TokDate,
		TokKwTrue, TokKwFalse, TokKwNothing, TokKwNull, TokKwEmpty:
		return &Node{Kind: KindLiteral, Children: []*Node{p.take()}}
	case TokIdent, TokKwError, TokKwText, TokKwBinary, TokKwBase, TokKwGet, TokKwSet, TokKwLet:
		// Several keywords double as ordinary member names in legacy code.
		return &Node{Kind: KindIdent, Children: []*Node{p.take()}}
	case TokKwNew:
		n := &Node{Kind: KindUnaryExpr, Children: []*Node{p.take()}}
		n.Children = append(n.Children, p.postfixExpression())
		return n
	case TokKwMod:
		// Mod in primary position is an identifier spelled like the operator.
		return &Node{Kind: KindIdent, Children: []*Node{p.take()}}
	case TokLParen:
		n := &Node{Kind: KindParenExpr, Children: []*Node{p.take(), p.expression()}}
		if rp := p.expect(TokRParen, `")"`); rp != nil {
			n.Children = append(n.Children, rp)
		}
		return n
	case TokDot:
		// Leading-dot member access inside With blocks: .Caption = "x"
		n := &Node{Kind: KindMemberExpr, Children: []*Node{p.take()}}
		if name := p.expect(TokIdent, "member name"); name != nil {
			n.Children = append(n.Children, name)
		}
		return n
	}
	tok := p.peek()
	p.listener.SyntaxError(tok.Start, tok.End, fmt.Sprintf("expected expression, found %q", tok.Text))
	errNode := &Node{Kind: KindError}
	if p.match(TokEOL, TokEOF, TokColon) {
		// Terminator stays unconsumed; span the node over it anyway so it
		// always intersects the reported event.
		errNode.Children = append(errNode.Children, Leaf(tok))
	} else {
		errNode.Children = append(errNode.Children, Leaf(p.advance()))
	}
	return errNode
}
