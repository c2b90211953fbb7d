package basic

// NodeKind names a rule in the raw concrete syntax tree.
type NodeKind string

const (
	KindModule       NodeKind = "module"
	KindVersion      NodeKind = "versionHeader"
	KindControlBlock NodeKind = "controlBlock"
	KindPropAssign   NodeKind = "propertyAssign"
	KindPropGroup    NodeKind = "propertyGroup"
	KindAttribute    NodeKind = "attributeStmt"
	KindOption       NodeKind = "optionStmt"
	KindVarDecl      NodeKind = "variableDecl"
	KindConstDecl    NodeKind = "constDecl"
	KindTypeBlock    NodeKind = "typeBlock"
	KindEnumBlock    NodeKind = "enumBlock"
	KindEnumMember   NodeKind = "enumMember"
	KindDeclareStmt  NodeKind = "declareStmt"
	KindProcedure    NodeKind = "procedure"
	KindParamList    NodeKind = "paramList"
	KindParam        NodeKind = "param"
	KindAsType       NodeKind = "asTypeClause"
	KindBlock        NodeKind = "block"
	KindAssignStmt   NodeKind = "assignStmt"
	KindCallStmt     NodeKind = "callStmt"
	KindIfBlock      NodeKind = "ifBlock"
	KindIfArm        NodeKind = "ifArm"
	KindForStmt      NodeKind = "forStmt"
	KindForEachStmt  NodeKind = "forEachStmt"
	KindDoLoop       NodeKind = "doLoopStmt"
	KindWhileWend    NodeKind = "whileWendStmt"
	KindSelectCase   NodeKind = "selectCaseStmt"
	KindCaseClause   NodeKind = "caseClause"
	KindWithBlock    NodeKind = "withBlock"
	KindExitStmt     NodeKind = "exitStmt"
	KindOnErrorStmt  NodeKind = "onErrorStmt"
	KindGotoStmt     NodeKind = "gotoStmt"
	KindLabelStmt    NodeKind = "labelStmt"
	KindRedimStmt    NodeKind = "redimStmt"
	KindExprStmt     NodeKind = "exprStmt"
	KindBinaryExpr   NodeKind = "binaryExpr"
	KindUnaryExpr    NodeKind = "unaryExpr"
	KindCallExpr     NodeKind = "callExpr"
	KindMemberExpr   NodeKind = "memberExpr"
	KindIndexExpr    NodeKind = "indexExpr"
	KindParenExpr    NodeKind = "parenExpr"
	KindLiteral      NodeKind = "literal"
	KindIdent        NodeKind = "identifier"
	KindComment      NodeKind = "comment"
	KindBlankRun     NodeKind = "blankRun"
	KindError        NodeKind = "error"
	KindLeaf         NodeKind = "token"
)

// Node is a raw concrete syntax tree node. Rule nodes carry Children;
// leaf nodes carry a Token. Error recovery inserts KindError rule nodes
// wrapping the tokens that could not be derived.
type Node struct {
	Kind     NodeKind
	Tok      *Token
	Children []*Node
}

// Leaf wraps a token as a CST leaf node.
func Leaf(tok Token) *Node {
	t := tok
	return &Node{Kind: KindLeaf, Tok: &t}
}

// FirstToken returns the leftmost token under the node, or nil for an
// empty rule node.
func (n *Node) FirstToken() *Token {
	if n.Tok != nil {
		return n.Tok
	}
	for _, c := range n.Children {
		if t := c.FirstToken(); t != nil {
			return t
		}
	}
	return nil
}

// LastToken returns the rightmost token under the node, or nil.
func (n *Node) LastToken() *Token {
	if n.Tok != nil {
		return n.Tok
	}
	for i := len(n.Children) - 1; i >= 0; i-- {
		if t := n.Children[i].LastToken(); t != nil {
			return t
		}
	}
	return nil
}

// Find returns the first direct child with the given kind, or nil.
func (n *Node) Find(kind NodeKind) *Node {
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// FindAll returns all direct children with the given kind.
func (n *Node) FindAll(kind NodeKind) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// LeafOfType returns the first direct leaf child with the given token type.
func (n *Node) LeafOfType(tt TokenType) *Token {
	for _, c := range n.Children {
		if c.Tok != nil && c.Tok.Type == tt {
			return c.Tok
		}
	}
	return nil
}

// Tree is the result of one parse: the raw root plus the token stream and
// the decoded source it was produced from.
type Tree struct {
	Root   *Node
	Tokens []Token
	Source []byte
}

// Text returns the verbatim source slice covered by a node.
func (t *Tree) Text(n *Node) string {
	first, last := n.FirstToken(), n.LastToken()
	if first == nil || last == nil {
		return ""
	}
	return string(t.Source[first.Start.Byte:last.End.Byte])
}

// WalkFunc is called for each CST node in depth-first order.
// Return false to skip the node's children.
type WalkFunc func(n *Node) bool

// Walk traverses the CST in depth-first order.
func Walk(n *Node, fn WalkFunc) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}
