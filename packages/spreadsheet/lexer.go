package spreadsheet

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenBad
	TokenWhitespace
	TokenNumber
	TokenString
	TokenLogical
	TokenErrorLiteral
	TokenIdentifier
	TokenAddress   // A1, $A$1, $A, $1
	TokenSheetName // Sheet1! or 'My Sheet'!, Value holds the unquoted name
	TokenLeftParen
	TokenRightParen
	TokenLeftBrace
	TokenRightBrace
	TokenSeparator // argument or array separator, Value holds the rune
	TokenColon
	TokenBang
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenCaret
	TokenAmpersand
	TokenPercent
	TokenEqual
	TokenNotEqual
	TokenLess
	TokenLessEqual
	TokenGreater
	TokenGreaterEqual
)

var tokenTypeNames = map[TokenType]string{
	TokenEOF:          "EOF",
	TokenBad:          "Bad",
	TokenWhitespace:   "Whitespace",
	TokenNumber:       "Number",
	TokenString:       "String",
	TokenLogical:      "Logical",
	TokenErrorLiteral: "Error",
	TokenIdentifier:   "Identifier",
	TokenAddress:      "Address",
	TokenSheetName:    "SheetName",
	TokenLeftParen:    "LeftParen",
	TokenRightParen:   "RightParen",
	TokenLeftBrace:    "LeftBrace",
	TokenRightBrace:   "RightBrace",
	TokenSeparator:    "Separator",
	TokenColon:        "Colon",
	TokenBang:         "Bang",
	TokenPlus:         "Plus",
	TokenMinus:        "Minus",
	TokenStar:         "Star",
	TokenSlash:        "Slash",
	TokenCaret:        "Caret",
	TokenAmpersand:    "Ampersand",
	TokenPercent:      "Percent",
	TokenEqual:        "Equal",
	TokenNotEqual:     "NotEqual",
	TokenLess:         "Less",
	TokenLessEqual:    "LessEqual",
	TokenGreater:      "Greater",
	TokenGreaterEqual: "GreaterEqual",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charQuote      = '"'
	charApostrophe = '\''
	charPercent    = '%'
	charAmpersand  = '&'
	charLParen     = '('
	charRParen     = ')'
	charLBrace     = '{'
	charRBrace     = '}'
	charAsterisk   = '*'
	charPlus       = '+'
	charMinus      = '-'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charUnderscore = '_'
	charExclaim    = '!'
	charHash       = '#'
	charDollar     = '$'
	charPeriod     = '.'
	charBackslash  = '\\'
)

// SeparatorSettings holds the locale dependent punctuation of the formula
// grammar
type SeparatorSettings struct {
	ArgSeparator      rune
	ArrayRowSeparator rune
	ArrayColSeparator rune
	DecimalSeparator  rune
}

// DefaultSeparatorSettings returns the en-US separators: SUM(1,2), {1,2;3,4}
func DefaultSeparatorSettings() SeparatorSettings {
	return SeparatorSettings{
		ArgSeparator:      ',',
		ArrayRowSeparator: ';',
		ArrayColSeparator: ',',
		DecimalSeparator:  '.',
	}
}

// EuropeanSeparatorSettings returns separators for locales that use a decimal
// comma: SUM(1,5;2), {1\2;3\4}
func EuropeanSeparatorSettings() SeparatorSettings {
	return SeparatorSettings{
		ArgSeparator:      ';',
		ArrayRowSeparator: ';',
		ArrayColSeparator: charBackslash,
		DecimalSeparator:  ',',
	}
}

// LexOptions configures a single Lex call
type LexOptions struct {
	Separators         SeparatorSettings
	PreserveWhitespace bool
}

// Token represents a lexical token with position information
type Token struct {
	Type    TokenType
	Value   string
	Pos     int     // rune offset in input
	Address Address // parsed form of an Address token
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d", t.Type, t.Value, t.Pos)
}

// Lexer tokenizes spreadsheet formula expressions
type Lexer struct {
	input   string
	runes   []rune // runes for UTF-8 support. could do without but a real pain
	pos     int
	options LexOptions
	tokens  []Token
	errors  []string
}

// NewLexer creates a new lexer for the given formula input
func NewLexer(input string, options LexOptions) *Lexer {
	if options.Separators == (SeparatorSettings{}) {
		options.Separators = DefaultSeparatorSettings()
	}
	return &Lexer{
		input:   input,
		runes:   []rune(input),
		options: options,
	}
}

// Lex tokenizes text and returns the tokens, always terminated by an EOF
// token, together with any lexing errors. malformed input yields Bad tokens
// rather than stopping the scan.
func Lex(text string, options LexOptions) ([]Token, []string) {
	return NewLexer(text, options).Tokenize()
}

// Tokenize tokenizes the entire input
func (l *Lexer) Tokenize() ([]Token, []string) {
	for l.pos < len(l.runes) {
		tok := l.nextToken()
		if tok.Type == TokenWhitespace && !l.options.PreserveWhitespace {
			continue
		}
		l.tokens = append(l.tokens, tok)
	}
	l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: l.pos})
	return l.tokens, l.errors
}

func (l *Lexer) errorf(pos int, format string, args ...any) {
	l.errors = append(l.errors, fmt.Sprintf("%d: ", pos)+fmt.Sprintf(format, args...))
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() Token {
	startPos := l.pos
	ch := l.current()
	sep := l.options.Separators

	if l.isWhitespace(ch) {
		for l.pos < len(l.runes) && l.isWhitespace(l.current()) {
			l.pos++
		}
		return Token{Type: TokenWhitespace, Value: l.substring(startPos, l.pos), Pos: startPos}
	}

	if ch == charHash {
		return l.scanErrorLiteral()
	}

	if l.isDigit(ch) || (ch == sep.DecimalSeparator && l.isDigit(l.peek(1))) {
		return l.scanNumber()
	}

	if ch == sep.ArgSeparator || ch == sep.ArrayRowSeparator || ch == sep.ArrayColSeparator {
		l.pos++
		return Token{Type: TokenSeparator, Value: string(ch), Pos: startPos}
	}

	if l.isIdentifierStart(ch) {
		return l.scanIdentifierOrAddress()
	}

	switch ch {
	case charApostrophe:
		return l.scanQuotedSheetName()
	case charQuote:
		return l.scanString()
	case charLParen:
		return l.single(TokenLeftParen)
	case charRParen:
		return l.single(TokenRightParen)
	case charLBrace:
		return l.single(TokenLeftBrace)
	case charRBrace:
		return l.single(TokenRightBrace)
	case charColon:
		return l.single(TokenColon)
	case charExclaim:
		return l.single(TokenBang)
	case charPlus:
		return l.single(TokenPlus)
	case charMinus:
		return l.single(TokenMinus)
	case charAsterisk:
		return l.single(TokenStar)
	case charSlash:
		return l.single(TokenSlash)
	case charCaret:
		return l.single(TokenCaret)
	case charAmpersand:
		return l.single(TokenAmpersand)
	case charPercent:
		return l.single(TokenPercent)
	case charEqual:
		return l.single(TokenEqual)
	case charLess:
		switch l.peek(1) {
		case charEqual:
			return l.double(TokenLessEqual)
		case charGreater:
			return l.double(TokenNotEqual)
		}
		return l.single(TokenLess)
	case charGreater:
		if l.peek(1) == charEqual {
			return l.double(TokenGreaterEqual)
		}
		return l.single(TokenGreater)
	}

	l.pos++
	l.errorf(startPos, "unexpected character %q", ch)
	return Token{Type: TokenBad, Value: string(ch), Pos: startPos}
}

func (l *Lexer) single(t TokenType) Token {
	tok := Token{Type: t, Value: string(l.current()), Pos: l.pos}
	l.pos++
	return tok
}

func (l *Lexer) double(t TokenType) Token {
	tok := Token{Type: t, Value: l.substring(l.pos, l.pos+2), Pos: l.pos}
	l.pos += 2
	return tok
}

// helper methods for character navigation and classification

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) isWhitespace(ch rune) bool {
	return ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isIdentifierStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == charUnderscore || ch == charDollar || ch == charBackslash
}

func (l *Lexer) isIdentifierPart(ch rune) bool {
	if ch == charBackslash && l.options.Separators.ArrayColSeparator == charBackslash {
		return false
	}
	return unicode.IsLetter(ch) || l.isDigit(ch) || ch == charUnderscore || ch == charPeriod || ch == charDollar || ch == charBackslash
}

// scanErrorLiteral matches the longest error literal at the current position
func (l *Lexer) scanErrorLiteral() Token {
	startPos := l.pos
	best := ""
	for _, literal := range ErrorKindText {
		n := len([]rune(literal))
		if n <= len(best) {
			continue
		}
		if strings.EqualFold(l.substring(startPos, startPos+n), literal) {
			best = literal
		}
	}
	if best == "" {
		l.pos++
		l.errorf(startPos, "invalid error literal")
		return Token{Type: TokenBad, Value: "#", Pos: startPos}
	}
	l.pos += len([]rune(best))
	return Token{Type: TokenErrorLiteral, Value: best, Pos: startPos}
}

// scanNumber scans a number token including decimals and scientific
// notation. Value keeps the source text; the decimal separator is converted
// by the parser.
func (l *Lexer) scanNumber() Token {
	startPos := l.pos
	decimal := l.options.Separators.DecimalSeparator

	// scan integer part
	for l.pos < len(l.runes) && l.isDigit(l.current()) {
		l.pos++
	}

	// check for decimal part
	if l.current() == decimal && l.isDigit(l.peek(1)) {
		l.pos++ // consume separator
		for l.pos < len(l.runes) && l.isDigit(l.current()) {
			l.pos++
		}
	} else if l.current() == decimal && decimal != l.options.Separators.ArgSeparator &&
		decimal != l.options.Separators.ArrayColSeparator {
		// trailing separator as in "1."
		l.pos++
	}

	// check for scientific notation (e or E)
	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++ // consume 'e' or 'E'

		// optional + or - sign
		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}

		// must have at least one digit after e/E
		if !l.isDigit(l.current()) {
			// not scientific notation, restore position
			l.pos = savedPos
		} else {
			for l.pos < len(l.runes) && l.isDigit(l.current()) {
				l.pos++
			}
		}
	}

	return Token{Type: TokenNumber, Value: l.substring(startPos, l.pos), Pos: startPos}
}

// scanString scans a double-quoted string literal; "" escapes a quote
func (l *Lexer) scanString() Token {
	startPos := l.pos
	l.pos++ // skip opening quote

	var b strings.Builder
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charQuote {
			if l.peek(1) == charQuote {
				b.WriteRune(charQuote)
				l.pos += 2
				continue
			}
			l.pos++
			return Token{Type: TokenString, Value: b.String(), Pos: startPos}
		}
		b.WriteRune(ch)
		l.pos++
	}

	l.errorf(startPos, "unclosed string literal")
	return Token{Type: TokenBad, Value: l.substring(startPos, l.pos), Pos: startPos}
}

// scanQuotedSheetName scans 'Sheet Name'! and returns a SheetName token
func (l *Lexer) scanQuotedSheetName() Token {
	startPos := l.pos
	l.pos++ // skip opening apostrophe

	var b strings.Builder
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charApostrophe {
			if l.peek(1) == charApostrophe {
				b.WriteRune(charApostrophe)
				l.pos += 2
				continue
			}
			l.pos++
			if l.current() != charExclaim {
				l.errorf(startPos, "expected '!' after quoted sheet name")
				return Token{Type: TokenBad, Value: l.substring(startPos, l.pos), Pos: startPos}
			}
			l.pos++
			return Token{Type: TokenSheetName, Value: b.String(), Pos: startPos}
		}
		b.WriteRune(ch)
		l.pos++
	}

	l.errorf(startPos, "unclosed quoted sheet name")
	return Token{Type: TokenBad, Value: l.substring(startPos, l.pos), Pos: startPos}
}

// scanIdentifierOrAddress scans a run of identifier characters and decides
// what it is by re-parsing the lexeme against the address grammar
func (l *Lexer) scanIdentifierOrAddress() Token {
	startPos := l.pos
	for l.pos < len(l.runes) && l.isIdentifierPart(l.current()) {
		l.pos++
	}
	value := l.substring(startPos, l.pos)

	// sheet prefix
	if l.current() == charExclaim && !strings.Contains(value, "$") {
		l.pos++
		return Token{Type: TokenSheetName, Value: value, Pos: startPos}
	}

	upper := strings.ToUpper(value)
	if (upper == "TRUE" || upper == "FALSE") && l.peekPastWhitespace() != charLParen {
		return Token{Type: TokenLogical, Value: upper, Pos: startPos}
	}

	if addr, ok := parseAddress(value); ok {
		if addr.Kind == AddressCell || strings.HasPrefix(value, "$") {
			return Token{Type: TokenAddress, Value: value, Pos: startPos, Address: addr}
		}
	}

	if strings.Contains(value, "$") {
		l.errorf(startPos, "invalid address %q", value)
		return Token{Type: TokenBad, Value: value, Pos: startPos}
	}
	return Token{Type: TokenIdentifier, Value: value, Pos: startPos}
}

func (l *Lexer) peekPastWhitespace() rune {
	for i := l.pos; i < len(l.runes); i++ {
		if !l.isWhitespace(l.runes[i]) {
			return l.runes[i]
		}
	}
	return charNull
}
