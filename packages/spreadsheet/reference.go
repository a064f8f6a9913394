package spreadsheet

import (
	"strconv"
	"strings"
	"unicode"
)

// Excel grid limits
const (
	MaxRows    = 1048576
	MaxColumns = 16384 // XFD
)

// AddressKind distinguishes the three endpoint shapes a reference can have
type AddressKind uint8

const (
	AddressCell   AddressKind = 0 // A1
	AddressRow    AddressKind = 1 // 1 as in 1:3
	AddressColumn AddressKind = 2 // A as in A:C
)

// Address is one endpoint of a reference. Row and Col are 0-based; a row
// address ignores Col and a column address ignores Row.
type Address struct {
	Kind     AddressKind
	Row      int
	Col      int
	RowFixed bool
	ColFixed bool
}

func (a Address) String() string {
	var b strings.Builder
	if a.Kind != AddressRow {
		if a.ColFixed {
			b.WriteByte('$')
		}
		b.WriteString(ColumnName(a.Col))
	}
	if a.Kind != AddressColumn {
		if a.RowFixed {
			b.WriteByte('$')
		}
		b.WriteString(strconv.Itoa(a.Row + 1))
	}
	return b.String()
}

// ReferenceKind tags the variant held by a Reference
type ReferenceKind uint8

const (
	ReferenceCell  ReferenceKind = 0
	ReferenceRange ReferenceKind = 1
	ReferenceNamed ReferenceKind = 2
)

// Reference is a cell, range (cell, row or column pairs) or named
// reference found in a formula. Its region is always derived from Start and
// End; SetRegion is the only way shifting code changes it.
type Reference struct {
	Kind      ReferenceKind
	SheetName string
	Name      string
	Start     Address
	End       Address
	Invalid   bool
}

// NewCellReference creates a reference to a single cell
func NewCellReference(sheetName string, addr Address) *Reference {
	addr.Kind = AddressCell
	return &Reference{
		Kind:      ReferenceCell,
		SheetName: sheetName,
		Start:     addr,
		End:       addr,
	}
}

// NewRangeReference creates a range between two endpoints of the same kind.
// endpoints are normalized so Start is the top-left corner.
func NewRangeReference(sheetName string, start, end Address) *Reference {
	if start.Row > end.Row {
		start.Row, end.Row = end.Row, start.Row
		start.RowFixed, end.RowFixed = end.RowFixed, start.RowFixed
	}
	if start.Col > end.Col {
		start.Col, end.Col = end.Col, start.Col
		start.ColFixed, end.ColFixed = end.ColFixed, start.ColFixed
	}
	return &Reference{
		Kind:      ReferenceRange,
		SheetName: sheetName,
		Start:     start,
		End:       end,
	}
}

// NewNamedReference creates a reference to a workbook name
func NewNamedReference(name string) *Reference {
	return &Reference{
		Kind: ReferenceNamed,
		Name: name,
	}
}

// Clone returns an independent copy of the reference
func (r *Reference) Clone() *Reference {
	c := *r
	return &c
}

// IsArea reports whether the reference covers grid cells, ie is not a name
func (r *Reference) IsArea() bool {
	return r.Kind != ReferenceNamed
}

// Region returns the bounding region of the reference. names have no region
// and return the zero Region.
func (r *Reference) Region() Region {
	switch r.Kind {
	case ReferenceCell:
		return CellRegion(r.Start.Row, r.Start.Col)
	case ReferenceRange:
		switch r.Start.Kind {
		case AddressRow:
			return RowRegion(r.Start.Row, r.End.Row)
		case AddressColumn:
			return ColumnRegion(r.Start.Col, r.End.Col)
		default:
			return Region{Top: r.Start.Row, Bottom: r.End.Row, Left: r.Start.Col, Right: r.End.Col}
		}
	}
	return Region{}
}

// SetRegion rewrites the reference coordinates so that Region() returns
// region. only the axes the reference actually carries are taken from it.
func (r *Reference) SetRegion(region Region) {
	switch r.Kind {
	case ReferenceCell:
		r.Start.Row, r.Start.Col = region.Top, region.Left
		r.End = r.Start
	case ReferenceRange:
		if r.Start.Kind != AddressColumn {
			r.Start.Row, r.End.Row = region.Top, region.Bottom
		}
		if r.Start.Kind != AddressRow {
			r.Start.Col, r.End.Col = region.Left, region.Right
		}
	}
}

// Shift returns a copy moved by dRow rows and dCol columns the way a copied
// formula moves: fixed ($) axes stay put. the copy is marked invalid when
// any coordinate leaves the grid.
func (r *Reference) Shift(dRow, dCol int) *Reference {
	c := r.Clone()
	if c.Kind == ReferenceNamed {
		return c
	}
	shift := func(a *Address) {
		if a.Kind != AddressColumn && !a.RowFixed {
			a.Row += dRow
			if a.Row < 0 || a.Row >= MaxRows {
				c.Invalid = true
			}
		}
		if a.Kind != AddressRow && !a.ColFixed {
			a.Col += dCol
			if a.Col < 0 || a.Col >= MaxColumns {
				c.Invalid = true
			}
		}
	}
	shift(&c.Start)
	if c.Kind == ReferenceCell {
		c.End = c.Start
	} else {
		shift(&c.End)
	}
	return c
}

// InsertRowColAt adjusts the reference for count rows or columns inserted
// before index on its sheet. it reports whether the reference changed.
func (r *Reference) InsertRowColAt(axis Axis, index, count int) bool {
	if r.Kind == ReferenceNamed || r.Invalid {
		return false
	}
	before := r.Region()
	after := before.insertAt(axis, index, count)
	if after == before {
		return false
	}
	r.SetRegion(after)
	return true
}

// RemoveRowColAt adjusts the reference for count rows or columns removed
// at index. a reference entirely inside the removed band becomes invalid.
func (r *Reference) RemoveRowColAt(axis Axis, index, count int) bool {
	if r.Kind == ReferenceNamed || r.Invalid {
		return false
	}
	before := r.Region()
	after, ok := before.removeAt(axis, index, count)
	if !ok {
		r.Invalid = true
		return true
	}
	if after == before {
		return false
	}
	r.SetRegion(after)
	return true
}

// ToAddressText renders the reference in A1 notation
func (r *Reference) ToAddressText() string {
	if r.Kind == ReferenceNamed {
		return r.Name
	}
	prefix := ""
	if r.SheetName != "" {
		prefix = QuoteSheetName(r.SheetName) + "!"
	}
	if r.Invalid {
		return prefix + "#REF!"
	}
	if r.Kind == ReferenceCell {
		return prefix + r.Start.String()
	}
	return prefix + r.Start.String() + ":" + r.End.String()
}

func (r *Reference) String() string {
	return r.ToAddressText()
}

// QuoteSheetName wraps a sheet name in single quotes when it would not lex
// as a bare identifier
func QuoteSheetName(name string) string {
	needsQuote := name == ""
	for i, ch := range name {
		if !(unicode.IsLetter(ch) || ch == '_' || (i > 0 && (unicode.IsDigit(ch) || ch == '.'))) {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		if _, ok := parseAddress(name); ok {
			needsQuote = true
		}
	}
	if !needsQuote {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ColumnName converts a 0-based column index to letters (0 -> A, 26 -> AA)
func ColumnName(col int) string {
	var buf [8]byte
	i := len(buf)
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		i--
		buf[i] = byte('A' + (n-1)%26)
	}
	return string(buf[i:])
}

// ColumnIndex converts column letters to a 0-based index. letters are
// case-insensitive; ok is false past XFD.
func ColumnIndex(letters string) (int, bool) {
	if letters == "" || len(letters) > 3 {
		return 0, false
	}
	col := 0
	for _, ch := range letters {
		ch = unicode.ToUpper(ch)
		if ch < 'A' || ch > 'Z' {
			return 0, false
		}
		col = col*26 + int(ch-'A'+1)
	}
	if col > MaxColumns {
		return 0, false
	}
	return col - 1, true
}

// parseAddress parses an address lexeme: A1, $A$1, $A, A, $1 or 1. the kind
// of the result tells which shape matched.
func parseAddress(text string) (Address, bool) {
	var addr Address
	pos := 0
	if pos < len(text) && text[pos] == '$' {
		addr.ColFixed = true
		pos++
	}
	letterStart := pos
	for pos < len(text) && isASCIILetter(text[pos]) {
		pos++
	}
	letters := text[letterStart:pos]
	rowFixed := false
	if pos < len(text) && text[pos] == '$' {
		rowFixed = true
		pos++
	}
	digitStart := pos
	for pos < len(text) && text[pos] >= '0' && text[pos] <= '9' {
		pos++
	}
	digits := text[digitStart:pos]
	if pos != len(text) {
		return Address{}, false
	}

	switch {
	case letters != "" && digits != "":
		col, ok := ColumnIndex(letters)
		if !ok {
			return Address{}, false
		}
		row, ok := parseRowNumber(digits)
		if !ok {
			return Address{}, false
		}
		addr.Kind = AddressCell
		addr.Row, addr.Col, addr.RowFixed = row, col, rowFixed
	case letters != "":
		if rowFixed {
			return Address{}, false
		}
		col, ok := ColumnIndex(letters)
		if !ok {
			return Address{}, false
		}
		addr.Kind = AddressColumn
		addr.Col = col
	case digits != "":
		// a leading $ was consumed as the column marker; it belongs to the row
		if rowFixed {
			return Address{}, false
		}
		row, ok := parseRowNumber(digits)
		if !ok {
			return Address{}, false
		}
		addr.Kind = AddressRow
		addr.Row, addr.RowFixed, addr.ColFixed = row, addr.ColFixed, false
	default:
		return Address{}, false
	}
	return addr, true
}

func parseRowNumber(digits string) (int, bool) {
	if len(digits) > 7 || digits[0] == '0' {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > MaxRows {
		return 0, false
	}
	return n - 1, true
}

func isASCIILetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
