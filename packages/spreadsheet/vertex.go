package spreadsheet

import (
	"strconv"
	"strings"
)

// VertexKind distinguishes formulas living in a cell from named formulas
type VertexKind uint8

const (
	VertexCell  VertexKind = 0
	VertexNamed VertexKind = 1
)

// FormulaVertex is a dependency graph node owning one formula. cell vertices
// are keyed '{sheet}'!{A1}, named vertices by their upper-cased name.
// SheetName of a named vertex is the sheet its unqualified references
// resolve against.
type FormulaVertex struct {
	Kind      VertexKind
	SheetName string
	Row       int
	Col       int
	Name      string
	Formula   *SyntaxTree
	key       string
}

// NewCellVertex creates a vertex for the formula at row, col on sheetName
func NewCellVertex(sheetName string, row, col int, formula *SyntaxTree) *FormulaVertex {
	v := &FormulaVertex{
		Kind:      VertexCell,
		SheetName: sheetName,
		Row:       row,
		Col:       col,
		Formula:   formula,
	}
	v.UpdateKey()
	return v
}

// NewNamedVertex creates a vertex for a named formula
func NewNamedVertex(name, scopeSheet string, formula *SyntaxTree) *FormulaVertex {
	v := &FormulaVertex{
		Kind:      VertexNamed,
		SheetName: scopeSheet,
		Name:      name,
		Formula:   formula,
	}
	v.UpdateKey()
	return v
}

func cellKey(sheetName string, row, col int) string {
	return "'" + sheetName + "'!" + ColumnName(col) + strconv.Itoa(row+1)
}

func nameKey(name string) string {
	return strings.ToUpper(name)
}

func (v *FormulaVertex) Key() string {
	return v.key
}

func (v *FormulaVertex) UpdateKey() {
	if v.Kind == VertexNamed {
		v.key = nameKey(v.Name)
		return
	}
	v.key = cellKey(v.SheetName, v.Row, v.Col)
}

// Region returns the cell a cell vertex occupies
func (v *FormulaVertex) Region() Region {
	return CellRegion(v.Row, v.Col)
}

func (v *FormulaVertex) String() string {
	return v.key
}

// position returns the coordinate of the vertex along axis
func (v *FormulaVertex) position(axis Axis) int {
	if axis == AxisColumn {
		return v.Col
	}
	return v.Row
}

func (v *FormulaVertex) setPosition(axis Axis, pos int) {
	if axis == AxisColumn {
		v.Col = pos
	} else {
		v.Row = pos
	}
}
