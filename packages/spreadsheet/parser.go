package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

// binding powers, lowest first. every binary operator is left-associative.
// prefix operators bind tighter than ^ so -2^2 is 4, as in spreadsheets.
const (
	precLowest = iota
	precEquality
	precComparison
	precAdditive
	precMultiplicative
	precConcat
	precPower
	precUnary
)

var binaryOperators = map[TokenType]struct {
	op   BinaryOp
	prec int
}{
	TokenEqual:        {BinOpEqual, precEquality},
	TokenNotEqual:     {BinOpNotEqual, precEquality},
	TokenLess:         {BinOpLess, precComparison},
	TokenLessEqual:    {BinOpLessEqual, precComparison},
	TokenGreater:      {BinOpGreater, precComparison},
	TokenGreaterEqual: {BinOpGreaterEqual, precComparison},
	TokenPlus:         {BinOpAdd, precAdditive},
	TokenMinus:        {BinOpSubtract, precAdditive},
	TokenStar:         {BinOpMultiply, precMultiplicative},
	TokenSlash:        {BinOpDivide, precMultiplicative},
	TokenAmpersand:    {BinOpConcat, precConcat},
	TokenCaret:        {BinOpPower, precPower},
}

// SyntaxTree is the result of parsing one formula. References lists every
// cell, range and named reference in source order. a tree with Errors must
// not be evaluated.
type SyntaxTree struct {
	Text       string
	Root       Expression
	References []*Reference
	Errors     []string
}

func (t *SyntaxTree) HasErrors() bool {
	return len(t.Errors) > 0
}

// ToExpressionText renders the tree back to formula text
func (t *SyntaxTree) ToExpressionText() string {
	if t.Root == nil {
		return "="
	}
	return "=" + t.Root.ToExpressionText()
}

// IsVolatile reports whether the formula calls a function that must be
// recalculated on every pass
func (t *SyntaxTree) IsVolatile(registry *FunctionRegistry) bool {
	volatile := false
	Walk(t.Root, func(node Expression) bool {
		if call, ok := node.(*FunctionCall); ok {
			if def := registry.Get(call.Name); def != nil && def.IsVolatile {
				volatile = true
			}
		}
		return !volatile
	})
	return volatile
}

// Parser turns a token stream into a SyntaxTree using precedence climbing
type Parser struct {
	tokens     []Token
	pos        int
	settings   SeparatorSettings
	references []*Reference
	errors     []string
}

// NewParser creates a parser over tokens produced with the same settings
func NewParser(tokens []Token, settings SeparatorSettings) *Parser {
	filtered := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Type != TokenWhitespace {
			filtered = append(filtered, tok)
		}
	}
	if len(filtered) == 0 || filtered[len(filtered)-1].Type != TokenEOF {
		end := 0
		if len(filtered) > 0 {
			end = filtered[len(filtered)-1].Pos + 1
		}
		filtered = append(filtered, Token{Type: TokenEOF, Pos: end})
	}
	if settings == (SeparatorSettings{}) {
		settings = DefaultSeparatorSettings()
	}
	return &Parser{
		tokens:   filtered,
		settings: settings,
	}
}

// Parse parses a token stream. the parser never fails: problems are recorded
// in the tree's Errors and a placeholder is substituted so parsing completes.
func Parse(tokens []Token, settings SeparatorSettings) *SyntaxTree {
	return NewParser(tokens, settings).Parse()
}

// ParseFormula lexes and parses formula text
func ParseFormula(text string, settings SeparatorSettings) *SyntaxTree {
	tokens, lexErrors := Lex(text, LexOptions{Separators: settings})
	tree := Parse(tokens, settings)
	tree.Text = text
	tree.Errors = append(lexErrors, tree.Errors...)
	return tree
}

func (p *Parser) Parse() *SyntaxTree {
	if p.current().Type == TokenEqual {
		p.advance()
	} else {
		p.errorf(p.current(), "formula must start with '='")
	}

	root := p.parseExpression(precLowest)
	if tok := p.current(); tok.Type != TokenEOF {
		p.errorf(tok, "unexpected token %q", tok.Value)
	}

	return &SyntaxTree{
		Root:       root,
		References: p.references,
		Errors:     p.errors,
	}
}

func (p *Parser) current() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peek(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) errorf(tok Token, format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf("%d: ", tok.Pos)+fmt.Sprintf(format, args...))
}

// span returns the position from start to the beginning of the next token
func (p *Parser) span(start int) NodePosition {
	return NodePosition{Start: start, End: p.current().Pos}
}

func (p *Parser) placeholder(tok Token) Expression {
	return &Literal{
		Value: ErrorValue(ErrorKindNotApplicable, "parse error"),
		Pos:   NodePosition{Start: tok.Pos, End: tok.Pos},
	}
}

func (p *Parser) isSeparator(tok Token, sep rune) bool {
	return tok.Type == TokenSeparator && tok.Value == string(sep)
}

// parseExpression parses operators binding tighter than prec
func (p *Parser) parseExpression(prec int) Expression {
	start := p.current().Pos
	left := p.parsePrefix()

	for {
		tok := p.current()
		if tok.Type == TokenPercent {
			p.advance()
			left = &Unary{Op: UnaryOpPercent, Operand: left, Pos: p.span(start)}
			continue
		}
		info, ok := binaryOperators[tok.Type]
		if !ok || info.prec <= prec {
			return left
		}
		p.advance()
		right := p.parseExpression(info.prec)
		left = &Binary{Op: info.op, Left: left, Right: right, Pos: p.span(start)}
	}
}

func (p *Parser) parsePrefix() Expression {
	tok := p.current()
	var op UnaryOp
	switch tok.Type {
	case TokenMinus:
		op = UnaryOpMinus
	case TokenPlus:
		op = UnaryOpPlus
	case TokenBang:
		op = UnaryOpNot
	default:
		return p.parsePrimary()
	}
	p.advance()
	operand := p.parseExpression(precUnary)
	return &Unary{Op: op, Operand: operand, Pos: p.span(tok.Pos)}
}

func (p *Parser) parsePrimary() Expression {
	tok := p.current()

	switch tok.Type {
	case TokenNumber:
		if p.peek(1).Type == TokenColon {
			return p.parseReference("", tok)
		}
		return p.parseNumber()

	case TokenString:
		p.advance()
		return &Literal{Value: TextValue(tok.Value), Pos: p.span(tok.Pos)}

	case TokenLogical:
		p.advance()
		return &Literal{Value: LogicalValue(tok.Value == "TRUE"), Pos: p.span(tok.Pos)}

	case TokenErrorLiteral:
		p.advance()
		kind, _ := ParseErrorKind(tok.Value)
		return &Literal{Value: ErrorValue(kind, ""), Pos: p.span(tok.Pos)}

	case TokenLeftParen:
		p.advance()
		inner := p.parseExpression(precLowest)
		if p.current().Type != TokenRightParen {
			p.errorf(p.current(), "expected ')'")
		} else {
			p.advance()
		}
		return &Parenthesized{Inner: inner, Pos: p.span(tok.Pos)}

	case TokenLeftBrace:
		return p.parseArrayConstant()

	case TokenSheetName:
		p.advance()
		next := p.current()
		switch next.Type {
		case TokenAddress, TokenIdentifier, TokenNumber:
			return p.parseReference(tok.Value, next)
		}
		p.errorf(next, "expected a reference after sheet name %q", tok.Value)
		return p.placeholder(next)

	case TokenAddress:
		// LOG10( lexes as an address
		if p.peek(1).Type == TokenLeftParen {
			return p.parseFunctionCall()
		}
		return p.parseReference("", tok)

	case TokenIdentifier:
		if p.peek(1).Type == TokenLeftParen {
			return p.parseFunctionCall()
		}
		if p.peek(1).Type == TokenColon {
			if _, ok := columnAddress(tok); ok {
				return p.parseReference("", tok)
			}
		}
		p.advance()
		ref := NewNamedReference(tok.Value)
		p.references = append(p.references, ref)
		return &Name{Ref: ref, Pos: p.span(tok.Pos)}

	case TokenBad:
		p.advance()
		return p.placeholder(tok)
	}

	if tok.Type == TokenEOF {
		p.errorf(tok, "unexpected end of formula")
	} else {
		p.errorf(tok, "unexpected token %q", tok.Value)
	}
	return p.placeholder(tok)
}

func (p *Parser) numberValue(text string) (float64, error) {
	if p.settings.DecimalSeparator != '.' {
		text = strings.ReplaceAll(text, string(p.settings.DecimalSeparator), ".")
	}
	return strconv.ParseFloat(text, 64)
}

func (p *Parser) parseNumber() Expression {
	tok := p.advance()
	value, err := p.numberValue(tok.Value)
	if err != nil {
		p.errorf(tok, "invalid number %q", tok.Value)
		return p.placeholder(tok)
	}
	return &Literal{Value: NumberValue(value), Raw: tok.Value, Pos: p.span(tok.Pos)}
}

// endpoint converts a token to a reference endpoint
func endpoint(tok Token) (Address, bool) {
	switch tok.Type {
	case TokenAddress:
		return tok.Address, true
	case TokenIdentifier:
		return columnAddress(tok)
	case TokenNumber:
		addr, ok := parseAddress(tok.Value)
		if ok && addr.Kind == AddressRow {
			return addr, true
		}
	}
	return Address{}, false
}

func columnAddress(tok Token) (Address, bool) {
	addr, ok := parseAddress(tok.Value)
	if ok && addr.Kind == AddressColumn {
		return addr, true
	}
	return Address{}, false
}

// parseReference parses a cell, or a cell, row or column range starting at
// tok, optionally qualified by sheetName
func (p *Parser) parseReference(sheetName string, tok Token) Expression {
	start := p.advance()
	startPos := tok.Pos
	if sheetName != "" {
		startPos = p.tokens[p.pos-2].Pos
	}

	from, ok := endpoint(start)
	if !ok {
		p.errorf(start, "invalid reference %q", start.Value)
		return p.placeholder(start)
	}

	var ref *Reference
	if p.current().Type == TokenColon {
		colon := p.advance()
		endTok := p.current()
		if endTok.Type == TokenSheetName && strings.EqualFold(endTok.Value, sheetName) {
			p.advance()
			endTok = p.current()
		}
		to, ok := endpoint(endTok)
		if !ok || to.Kind != from.Kind {
			p.errorf(colon, "invalid range end %q", endTok.Value)
			return p.placeholder(endTok)
		}
		p.advance()
		ref = NewRangeReference(sheetName, from, to)
	} else {
		if from.Kind != AddressCell {
			p.errorf(start, "incomplete range %q", start.Value)
			return p.placeholder(start)
		}
		ref = NewCellReference(sheetName, from)
	}

	p.references = append(p.references, ref)
	return &ReferenceExpr{Ref: ref, Pos: p.span(startPos)}
}

func (p *Parser) parseFunctionCall() Expression {
	nameTok := p.advance()
	p.advance() // (

	call := &FunctionCall{
		Name:         strings.ToUpper(nameTok.Value),
		ArgSeparator: p.settings.ArgSeparator,
	}

	if p.current().Type == TokenRightParen {
		p.advance()
		call.Pos = p.span(nameTok.Pos)
		return call
	}

	for {
		tok := p.current()
		if p.isSeparator(tok, p.settings.ArgSeparator) || tok.Type == TokenRightParen {
			call.Args = append(call.Args, &Literal{Pos: NodePosition{Start: tok.Pos, End: tok.Pos}})
		} else {
			call.Args = append(call.Args, p.parseExpression(precLowest))
		}

		tok = p.current()
		if p.isSeparator(tok, p.settings.ArgSeparator) {
			p.advance()
			continue
		}
		if tok.Type == TokenRightParen {
			p.advance()
			break
		}
		p.errorf(tok, "expected %q or ')' in call to %s", p.settings.ArgSeparator, call.Name)
		break
	}

	call.Pos = p.span(nameTok.Pos)
	return call
}

// parseArrayConstant parses {1,2;3,4}. elements are constants, optionally
// signed numbers.
func (p *Parser) parseArrayConstant() Expression {
	open := p.advance()
	array := &ArrayConstant{
		RowSeparator: p.settings.ArrayRowSeparator,
		ColSeparator: p.settings.ArrayColSeparator,
	}
	row := []*Literal{}

	for {
		row = append(row, p.parseArrayElement())

		tok := p.current()
		switch {
		case p.isSeparator(tok, p.settings.ArrayColSeparator):
			p.advance()
			continue
		case p.isSeparator(tok, p.settings.ArrayRowSeparator):
			p.advance()
			array.Rows = append(array.Rows, row)
			row = []*Literal{}
			continue
		case tok.Type == TokenRightBrace:
			p.advance()
		default:
			p.errorf(tok, "expected '}'")
		}
		break
	}
	array.Rows = append(array.Rows, row)
	array.Pos = p.span(open.Pos)

	for _, r := range array.Rows {
		if len(r) != len(array.Rows[0]) {
			p.errorf(open, "array constant rows must have the same length")
			break
		}
	}
	return array
}

func (p *Parser) parseArrayElement() *Literal {
	tok := p.current()
	sign := ""
	if tok.Type == TokenMinus || tok.Type == TokenPlus {
		sign = tok.Value
		p.advance()
	}

	elem := p.current()
	switch elem.Type {
	case TokenNumber:
		p.advance()
		value, err := p.numberValue(elem.Value)
		if err == nil {
			if sign == "-" {
				value = -value
			}
			return &Literal{Value: NumberValue(value), Raw: sign + elem.Value, Pos: p.span(tok.Pos)}
		}
	case TokenString, TokenLogical, TokenErrorLiteral:
		if sign != "" {
			break
		}
		p.advance()
		lit := &Literal{Pos: p.span(tok.Pos)}
		switch elem.Type {
		case TokenString:
			lit.Value = TextValue(elem.Value)
		case TokenLogical:
			lit.Value = LogicalValue(elem.Value == "TRUE")
		default:
			kind, _ := ParseErrorKind(elem.Value)
			lit.Value = ErrorValue(kind, "")
		}
		return lit
	}

	p.errorf(elem, "invalid array element %q", elem.Value)
	return p.placeholder(elem).(*Literal)
}
