package spreadsheet

import (
	"strings"
)

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

var binaryOpText = [...]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpPower:        "^",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
}

func (op BinaryOp) String() string {
	return binaryOpText[op]
}

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent // postfix
	UnaryOpNot     // !
)

func (op UnaryOp) String() string {
	switch op {
	case UnaryOpPlus:
		return "+"
	case UnaryOpMinus:
		return "-"
	case UnaryOpPercent:
		return "%"
	default:
		return "!"
	}
}

// ExpressionKind tags the variant of an Expression
type ExpressionKind int

const (
	ExprLiteral ExpressionKind = iota
	ExprUnary
	ExprBinary
	ExprParenthesized
	ExprFunctionCall
	ExprReference
	ExprArrayConstant
	ExprName
)

// NodePosition tracks the rune span of a node in the formula text
type NodePosition struct {
	Start int
	End   int
}

// Expression is a node of a parsed formula. the set of implementations is
// closed; consumers switch on the concrete type.
type Expression interface {
	Kind() ExpressionKind
	Position() NodePosition
	ToExpressionText() string
	expression()
}

// Literal is a constant: number, text, logical, error or the empty value of
// an omitted argument
type Literal struct {
	Value CellValue
	Raw   string // source text of numbers, kept for round trips
	Pos   NodePosition
}

// Unary is a prefix (+, -, !) or postfix (%) operation
type Unary struct {
	Op      UnaryOp
	Operand Expression
	Pos     NodePosition
}

type Binary struct {
	Op    BinaryOp
	Left  Expression
	Right Expression
	Pos   NodePosition
}

type Parenthesized struct {
	Inner Expression
	Pos   NodePosition
}

// FunctionCall holds an upper-cased function name and its arguments
type FunctionCall struct {
	Name         string
	Args         []Expression
	ArgSeparator rune
	Pos          NodePosition
}

// ReferenceExpr is a cell or range reference
type ReferenceExpr struct {
	Ref *Reference
	Pos NodePosition
}

// ArrayConstant is an inline array like {1,2;3,4}
type ArrayConstant struct {
	Rows         [][]*Literal
	RowSeparator rune
	ColSeparator rune
	Pos          NodePosition
}

// Name is a reference to a workbook-level name or variable
type Name struct {
	Ref *Reference
	Pos NodePosition
}

func (*Literal) Kind() ExpressionKind       { return ExprLiteral }
func (*Unary) Kind() ExpressionKind         { return ExprUnary }
func (*Binary) Kind() ExpressionKind        { return ExprBinary }
func (*Parenthesized) Kind() ExpressionKind { return ExprParenthesized }
func (*FunctionCall) Kind() ExpressionKind  { return ExprFunctionCall }
func (*ReferenceExpr) Kind() ExpressionKind { return ExprReference }
func (*ArrayConstant) Kind() ExpressionKind { return ExprArrayConstant }
func (*Name) Kind() ExpressionKind          { return ExprName }

func (n *Literal) Position() NodePosition       { return n.Pos }
func (n *Unary) Position() NodePosition         { return n.Pos }
func (n *Binary) Position() NodePosition        { return n.Pos }
func (n *Parenthesized) Position() NodePosition { return n.Pos }
func (n *FunctionCall) Position() NodePosition  { return n.Pos }
func (n *ReferenceExpr) Position() NodePosition { return n.Pos }
func (n *ArrayConstant) Position() NodePosition { return n.Pos }
func (n *Name) Position() NodePosition          { return n.Pos }

func (*Literal) expression()       {}
func (*Unary) expression()         {}
func (*Binary) expression()        {}
func (*Parenthesized) expression() {}
func (*FunctionCall) expression()  {}
func (*ReferenceExpr) expression() {}
func (*ArrayConstant) expression() {}
func (*Name) expression()          {}

func (n *Literal) ToExpressionText() string {
	if n.Raw != "" {
		return n.Raw
	}
	if n.Value.IsEmpty() {
		return ""
	}
	return n.Value.literalText()
}

func (n *Unary) ToExpressionText() string {
	if n.Op == UnaryOpPercent {
		return n.Operand.ToExpressionText() + "%"
	}
	return n.Op.String() + n.Operand.ToExpressionText()
}

func (n *Binary) ToExpressionText() string {
	return n.Left.ToExpressionText() + n.Op.String() + n.Right.ToExpressionText()
}

func (n *Parenthesized) ToExpressionText() string {
	return "(" + n.Inner.ToExpressionText() + ")"
}

func (n *FunctionCall) ToExpressionText() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToExpressionText()
	}
	return n.Name + "(" + strings.Join(args, string(n.ArgSeparator)) + ")"
}

func (n *ReferenceExpr) ToExpressionText() string {
	return n.Ref.ToAddressText()
}

func (n *ArrayConstant) ToExpressionText() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, row := range n.Rows {
		if i > 0 {
			b.WriteRune(n.RowSeparator)
		}
		for j, item := range row {
			if j > 0 {
				b.WriteRune(n.ColSeparator)
			}
			b.WriteString(item.ToExpressionText())
		}
	}
	b.WriteByte('}')
	return b.String()
}

func (n *Name) ToExpressionText() string {
	return n.Ref.Name
}

// Walk calls fn for every node of the tree in depth-first pre-order.
// returning false from fn skips the node's children.
func Walk(node Expression, fn func(Expression) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *Unary:
		Walk(n.Operand, fn)
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Parenthesized:
		Walk(n.Inner, fn)
	case *FunctionCall:
		for _, arg := range n.Args {
			Walk(arg, fn)
		}
	case *ArrayConstant:
		for _, row := range n.Rows {
			for _, item := range row {
				Walk(item, fn)
			}
		}
	}
}
