package spreadsheet

import (
	"iter"
	"sort"
)

// CellRange is a lazily read rectangular view of a worksheet. open-ended
// regions are clipped to the sheet's used area.
type CellRange struct {
	sheet  *Worksheet
	region Region
	empty  bool
}

// NewCellRange creates a range over region of sheet. a nil sheet reads as
// all empty cells.
func NewCellRange(sheet *Worksheet, region Region) CellRange {
	r := CellRange{sheet: sheet, region: region}
	if region.Bottom != MaxIndex && region.Right != MaxIndex {
		return r
	}
	used, ok := Region{}, false
	if sheet != nil {
		used, ok = sheet.UsedRegion()
	}
	if !ok {
		r.empty = true
		return r
	}
	if r.region.Bottom == MaxIndex {
		r.region.Bottom = used.Bottom
	}
	if r.region.Right == MaxIndex {
		r.region.Right = used.Right
	}
	r.empty = r.region.Bottom < r.region.Top || r.region.Right < r.region.Left
	return r
}

// Region returns the clipped region
func (r CellRange) Region() Region {
	return r.region
}

func (r CellRange) value(row, col int) CellValue {
	if r.sheet == nil {
		return EmptyValue()
	}
	if cell := r.sheet.GetCell(row, col); cell != nil {
		return cell.Value
	}
	return EmptyValue()
}

// IterateValues yields every value in row-major order, empty cells included
func (r CellRange) IterateValues() iter.Seq[CellValue] {
	return func(yield func(CellValue) bool) {
		if r.empty {
			return
		}
		for row := r.region.Top; row <= r.region.Bottom; row++ {
			for col := r.region.Left; col <= r.region.Right; col++ {
				if !yield(r.value(row, col)) {
					return
				}
			}
		}
	}
}

// Rows materializes the range as a 2-D slice
func (r CellRange) Rows() [][]CellValue {
	if r.empty {
		return [][]CellValue{}
	}
	width := r.region.Columns()
	rows := make([][]CellValue, 0, r.region.Rows())
	values := make([]CellValue, 0, width)
	for v := range r.IterateValues() {
		values = append(values, v)
		if len(values) == width {
			rows = append(rows, values)
			values = make([]CellValue, 0, width)
		}
	}
	return rows
}

// NameTable holds workbook-level variables. names are case-insensitive;
// the spelling of the first definition is kept.
type NameTable struct {
	names  map[string]string
	values map[string]CellValue
}

// NewNameTable creates a new name table
func NewNameTable() *NameTable {
	return &NameTable{
		names:  make(map[string]string),
		values: make(map[string]CellValue),
	}
}

// Define sets a variable, returning the previous value if there was one
func (nt *NameTable) Define(name string, value CellValue) (CellValue, bool) {
	key := nameKey(name)
	previous, existed := nt.values[key]
	if !existed {
		nt.names[key] = name
	}
	nt.values[key] = value
	return previous, existed
}

// Undefine removes a variable. it reports whether the name was defined.
func (nt *NameTable) Undefine(name string) bool {
	key := nameKey(name)
	if _, exists := nt.values[key]; !exists {
		return false
	}
	delete(nt.values, key)
	delete(nt.names, key)
	return true
}

func (nt *NameTable) Get(name string) (CellValue, bool) {
	value, exists := nt.values[nameKey(name)]
	return value, exists
}

func (nt *NameTable) Contains(name string) bool {
	_, exists := nt.values[nameKey(name)]
	return exists
}

// Names returns the defined names in sorted order
func (nt *NameTable) Names() []string {
	out := make([]string, 0, len(nt.names))
	for _, name := range nt.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
