package basic

import (
	"fmt"
	"strings"
)

// ErrorListener receives recovery events from the lexer and parser.
// The engine never prints or aborts on malformed input; every recovery
// event is routed through the installed listener instead.
type ErrorListener interface {
	SyntaxError(start, end Pos, msg string)
}

// discardListener drops all events. Used when no listener is installed.
type discardListener struct{}

func (discardListener) SyntaxError(start, end Pos, msg string) {}

// Lexer scans legacy-Basic source into tokens. One instance per input;
// instances hold mutable scan state and must not be shared.
type Lexer struct {
	src      []byte
	cur      int
	line     int
	col      int
	listener ErrorListener

	atLineStart bool
	prevType    TokenType
}

// NewLexer creates a lexer over decoded source bytes.
func NewLexer(src []byte, listener ErrorListener) *Lexer {
	if listener == nil {
		listener = discardListener{}
	}
	return &Lexer{
		src:         src,
		line:        1,
		listener:    listener,
		atLineStart: true,
		prevType:    TokEOL,
	}
}

func (l *Lexer) pos() Pos { return Pos{Line: l.line, Col: l.col, Byte: l.cur} }

func (l *Lexer) atEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.src[l.cur]
}

func (l *Lexer) peekAt(n int) byte {
	if l.cur+n >= len(l.src) {
		return 0
	}
	return l.src[l.cur+n]
}

func (l *Lexer) advance() byte {
	ch := l.src[l.cur]
	l.cur++
	if ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	return ch
}

// Scan tokenizes the whole input. The token stream always ends with a
// final TokEOL (if the last line is unterminated) followed by TokEOF.
func (l *Lexer) Scan() []Token {
	var toks []Token
	for !l.atEnd() {
		tok, ok := l.next()
		if !ok {
			continue
		}
		l.prevType = tok.Type
		l.atLineStart = tok.Type == TokEOL || tok.Type == TokColon
		toks = append(toks, tok)
	}
	if len(toks) > 0 && toks[len(toks)-1].Type != TokEOL {
		p := l.pos()
		toks = append(toks, Token{Type: TokEOL, Start: p, End: p})
	}
	p := l.pos()
	toks = append(toks, Token{Type: TokEOF, Start: p, End: p})
	return toks
}

// next scans a single token. Returns ok=false when the input consumed was
// insignificant (whitespace, line continuation).
func (l *Lexer) next() (Token, bool) {
	start := l.pos()
	ch := l.advance()

	switch {
	case ch == ' ' || ch == '\t':
		// Line continuation: "_" as the last significant char of the line.
		if l.peek() == '_' && l.isLineContinuation() {
			l.consumeContinuation()
		}
		return Token{}, false
	case ch == '\r':
		if l.peek() == '\n' {
			l.advance()
		}
		return l.emit(TokEOL, start), true
	case ch == '\n':
		return l.emit(TokEOL, start), true
	case ch == '\'':
		return l.scanComment(start), true
	case ch == '"':
		return l.scanString(start), true
	case ch >= '0' && ch <= '9':
		return l.scanNumber(start), true
	case ch == '&' && (lowerByte(l.peek()) == 'h' || lowerByte(l.peek()) == 'o'):
		return l.scanRadixNumber(start), true
	case ch == '#' && l.looksLikeDate():
		return l.scanDate(start), true
	case isIdentStart(ch):
		return l.scanIdent(start), true
	}

	// Punctuation and operators.
	switch ch {
	case '(':
		return l.emit(TokLParen, start), true
	case ')':
		return l.emit(TokRParen, start), true
	case ',':
		return l.emit(TokComma, start), true
	case ';':
		return l.emit(TokSemicolon, start), true
	case ':':
		// "=" after ":" never occurs in this grammar; ":" separates statements.
		return l.emit(TokColon, start), true
	case '.':
		return l.emit(TokDot, start), true
	case '!':
		return l.emit(TokBang, start), true
	case '=':
		return l.emit(TokAssign, start), true
	case '+':
		return l.emit(TokPlus, start), true
	case '-':
		return l.emit(TokMinus, start), true
	case '*':
		return l.emit(TokStar, start), true
	case '/':
		return l.emit(TokSlash, start), true
	case '\\':
		return l.emit(TokBackslash, start), true
	case '^':
		return l.emit(TokCaret, start), true
	case '&':
		return l.emit(TokAmp, start), true
	case '<':
		if l.peek() == '=' {
			l.advance()
			return l.emit(TokLessEq, start), true
		}
		if l.peek() == '>' {
			l.advance()
			return l.emit(TokNotEq, start), true
		}
		return l.emit(TokLess, start), true
	case '>':
		if l.peek() == '=' {
			l.advance()
			return l.emit(TokGreaterEq, start), true
		}
		return l.emit(TokGreater, start), true
	}

	tok := l.emit(TokIllegal, start)
	l.listener.SyntaxError(tok.Start, tok.End, fmt.Sprintf("unexpected character %q", string(ch)))
	return tok, true
}

func (l *Lexer) emit(tt TokenType, start Pos) Token {
	return Token{
		Type:  tt,
		Text:  string(l.src[start.Byte:l.cur]),
		Start: start,
		End:   l.pos(),
	}
}

// isLineContinuation checks that the "_" at the cursor is followed only by
// optional whitespace and a line break.
func (l *Lexer) isLineContinuation() bool {
	i := l.cur + 1
	for i < len(l.src) && (l.src[i] == ' ' || l.src[i] == '\t' || l.src[i] == '\r') {
		i++
	}
	return i >= len(l.src) || l.src[i] == '\n'
}

// consumeContinuation eats "_", trailing whitespace and the line break,
// folding the two physical lines into one logical line.
func (l *Lexer) consumeContinuation() {
	l.advance() // "_"
	for !l.atEnd() {
		ch := l.advance()
		if ch == '\n' {
			return
		}
	}
}

func (l *Lexer) scanComment(start Pos) Token {
	for !l.atEnd() && l.peek() != '\n' && l.peek() != '\r' {
		l.advance()
	}
	return l.emit(TokComment, start)
}

func (l *Lexer) scanString(start Pos) Token {
	for {
		if l.atEnd() || l.peek() == '\n' || l.peek() == '\r' {
			tok := l.emit(TokString, start)
			l.listener.SyntaxError(tok.Start, tok.End, "unterminated string literal")
			return tok
		}
		ch := l.advance()
		if ch == '"' {
			// Doubled quote is an escaped quote, keep scanning.
			if l.peek() == '"' {
				l.advance()
				continue
			}
			return l.emit(TokString, start)
		}
	}
}

func (l *Lexer) scanNumber(start Pos) Token {
	isFloat := false
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		isFloat = true
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	if lowerByte(l.peek()) == 'e' && (isDigit(l.peekAt(1)) || ((l.peekAt(1) == '+' || l.peekAt(1) == '-') && isDigit(l.peekAt(2)))) {
		isFloat = true
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	// Type sigil stays part of the literal text.
	switch l.peek() {
	case '%', '&':
		l.advance()
	case '!', '#', '@':
		isFloat = true
		l.advance()
	}
	if isFloat {
		return l.emit(TokFloat, start)
	}
	return l.emit(TokInteger, start)
}

// scanRadixNumber scans &H.. (hex) and &O.. (octal) literals. The leading
// "&" has already been consumed.
func (l *Lexer) scanRadixNumber(start Pos) Token {
	l.advance() // H or O
	for isHexDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '&' || l.peek() == '%' {
		l.advance()
	}
	return l.emit(TokInteger, start)
}

// looksLikeDate reports whether a "#" at the cursor starts a date literal.
// Date literals only occur in operand position and are closed on the same line.
func (l *Lexer) looksLikeDate() bool {
	switch l.prevType {
	case TokIdent, TokString, TokInteger, TokFloat, TokDate, TokRParen:
		return false
	}
	if !isDigit(l.peek()) {
		return false
	}
	for i := 0; l.cur+i < len(l.src); i++ {
		ch := l.src[l.cur+i]
		if ch == '#' {
			return true
		}
		if ch == '\n' {
			return false
		}
	}
	return false
}

func (l *Lexer) scanDate(start Pos) Token {
	for !l.atEnd() {
		if l.advance() == '#' {
			break
		}
	}
	return l.emit(TokDate, start)
}

func (l *Lexer) scanIdent(start Pos) Token {
	for isIdentPart(l.peek()) {
		l.advance()
	}
	text := string(l.src[start.Byte:l.cur])

	// Rem comments: the rest of the line is trivia.
	if l.atLineStart && strings.EqualFold(text, "rem") {
		return l.scanComment(start)
	}

	tt := KeywordType(text)
	if tt == TokIdent {
		// Declaration sigils bind only when directly adjacent. "!" and "#"
		// are left alone: in operand position they act as bang access and
		// date delimiters respectively.
		switch l.peek() {
		case '%', '$', '@':
			l.advance()
		case '&':
			if lowerByte(l.peekAt(1)) != 'h' && lowerByte(l.peekAt(1)) != 'o' {
				l.advance()
			}
		}
		return l.emit(TokIdent, start)
	}
	return l.emit(tt, start)
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= 0x80
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isHexDigit(ch byte) bool {
	return isDigit(ch) || lowerByte(ch) >= 'a' && lowerByte(ch) <= 'f'
}

func lowerByte(ch byte) byte {
	if ch >= 'A' && ch <= 'Z' {
		return ch + 32
	}
	return ch
}
