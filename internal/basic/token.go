package basic

import "strings"

// TokenType classifies a lexical token.
type TokenType int

const (
	TokEOF TokenType = iota
	TokEOL
	TokIllegal

	// Literals and identifiers. Identifier text keeps original casing and any
	// trailing type sigil (% & ! # $ @); literal text is verbatim source.
	TokIdent
	TokString
	TokInteger
	TokFloat
	TokDate

	// Punctuation and operators.
	TokLParen
	TokRParen
	TokComma
	TokSemicolon
	TokColon
	TokDot
	TokBang
	TokAssign // "="
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokBackslash
	TokCaret
	TokAmp
	TokLess
	TokLessEq
	TokGreater
	TokGreaterEq
	TokNotEq // "<>"

	// Trivia.
	TokComment

	// Keywords. Legacy Basic keywords are case-insensitive; the token keeps
	// the source spelling in Text.
	TokKwAttribute
	TokKwVersion
	TokKwBegin
	TokKwEnd
	TokKwOption
	TokKwExplicit
	TokKwBase
	TokKwCompare
	TokKwBinary
	TokKwText
	TokKwModule
	TokKwDim
	TokKwPrivate
	TokKwPublic
	TokKwGlobal
	TokKwFriend
	TokKwStatic
	TokKwConst
	TokKwType
	TokKwEnum
	TokKwDeclare
	TokKwLib
	TokKwAlias
	TokKwSub
	TokKwFunction
	TokKwProperty
	TokKwGet
	TokKwLet
	TokKwSet
	TokKwByVal
	TokKwByRef
	TokKwOptional
	TokKwParamArray
	TokKwAs
	TokKwNew
	TokKwCall
	TokKwIf
	TokKwThen
	TokKwElse
	TokKwElseIf
	TokKwFor
	TokKwTo
	TokKwStep
	TokKwNext
	TokKwEach
	TokKwIn
	TokKwDo
	TokKwLoop
	TokKwWhile
	TokKwWend
	TokKwUntil
	TokKwSelect
	TokKwCase
	TokKwWith
	TokKwExit
	TokKwOn
	TokKwError
	TokKwResume
	TokKwGoTo
	TokKwNot
	TokKwAnd
	TokKwOr
	TokKwXor
	TokKwMod
	TokKwIs
	TokKwLike
	TokKwTrue
	TokKwFalse
	TokKwNothing
	TokKwNull
	TokKwEmpty
	TokKwWithEvents
	TokKwRedim
	TokKwPreserve
)

// keywords maps lowercased spellings to keyword token types.
var keywords = map[string]TokenType{
	"attribute":  TokKwAttribute,
	"version":    TokKwVersion,
	"begin":      TokKwBegin,
	"end":        TokKwEnd,
	"option":     TokKwOption,
	"explicit":   TokKwExplicit,
	"base":       TokKwBase,
	"compare":    TokKwCompare,
	"binary":     TokKwBinary,
	"text":       TokKwText,
	"module":     TokKwModule,
	"dim":        TokKwDim,
	"private":    TokKwPrivate,
	"public":     TokKwPublic,
	"global":     TokKwGlobal,
	"friend":     TokKwFriend,
	"static":     TokKwStatic,
	"const":      TokKwConst,
	"type":       TokKwType,
	"enum":       TokKwEnum,
	"declare":    TokKwDeclare,
	"lib":        TokKwLib,
	"alias":      TokKwAlias,
	"sub":        TokKwSub,
	"function":   TokKwFunction,
	"property":   TokKwProperty,
	"get":        TokKwGet,
	"let":        TokKwLet,
	"set":        TokKwSet,
	"byval":      TokKwByVal,
	"byref":      TokKwByRef,
	"optional":   TokKwOptional,
	"paramarray": TokKwParamArray,
	"as":         TokKwAs,
	"new":        TokKwNew,
	"call":       TokKwCall,
	"if":         TokKwIf,
	"then":       TokKwThen,
	"else":       TokKwElse,
	"elseif":     TokKwElseIf,
	"for":        TokKwFor,
	"to":         TokKwTo,
	"step":       TokKwStep,
	"next":       TokKwNext,
	"each":       TokKwEach,
	"in":         TokKwIn,
	"do":         TokKwDo,
	"loop":       TokKwLoop,
	"while":      TokKwWhile,
	"wend":       TokKwWend,
	"until":      TokKwUntil,
	"select":     TokKwSelect,
	"case":       TokKwCase,
	"with":       TokKwWith,
	"exit":       TokKwExit,
	"on":         TokKwOn,
	"error":      TokKwError,
	"resume":     TokKwResume,
	"goto":       TokKwGoTo,
	"not":        TokKwNot,
	"and":        TokKwAnd,
	"or":         TokKwOr,
	"xor":        TokKwXor,
	"mod":        TokKwMod,
	"is":         TokKwIs,
	"like":       TokKwLike,
	"true":       TokKwTrue,
	"false":      TokKwFalse,
	"nothing":    TokKwNothing,
	"null":       TokKwNull,
	"empty":      TokKwEmpty,
	"withevents": TokKwWithEvents,
	"redim":      TokKwRedim,
	"preserve":   TokKwPreserve,
}

// Pos is a position in the source text. Line is 1-based, Col is 0-based
// (column within the line), Byte is the absolute byte offset.
type Pos struct {
	Line int
	Col  int
	Byte int
}

// Token is a lexical token with its verbatim source text and position.
type Token struct {
	Type  TokenType
	Text  string
	Start Pos
	End   Pos // position just past the last byte of the token
}

// IsKeyword reports whether the token is a reserved word.
func (t Token) IsKeyword() bool {
	return t.Type >= TokKwAttribute
}

// Lower returns the lowercased token text, used for case-insensitive matching.
func (t Token) Lower() string {
	return strings.ToLower(t.Text)
}

// KeywordType returns the keyword token type for an identifier spelling,
// or TokIdent if the spelling is not reserved.
func KeywordType(text string) TokenType {
	if tt, ok := keywords[strings.ToLower(text)]; ok {
		return tt
	}
	return TokIdent
}
