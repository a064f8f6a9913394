package spreadsheet

import (
	"fmt"
	"math"
)

// MaxIndex marks an open-ended region bound, as used by whole-row and
// whole-column references
const MaxIndex = math.MaxInt32

// Axis selects rows or columns for structural edits
type Axis uint8

const (
	AxisRow    Axis = 0
	AxisColumn Axis = 1
)

func (a Axis) String() string {
	if a == AxisColumn {
		return "column"
	}
	return "row"
}

// Region is an axis-aligned rectangle of 0-based, inclusive row and column
// indices. Bottom or Right may be MaxIndex for open-ended regions.
type Region struct {
	Top    int
	Bottom int
	Left   int
	Right  int
}

// CellRegion returns the 1x1 region covering a single cell
func CellRegion(row, col int) Region {
	return Region{Top: row, Bottom: row, Left: col, Right: col}
}

// RowRegion returns the region covering whole rows top..bottom
func RowRegion(top, bottom int) Region {
	return Region{Top: top, Bottom: bottom, Left: 0, Right: MaxIndex}
}

// ColumnRegion returns the region covering whole columns left..right
func ColumnRegion(left, right int) Region {
	return Region{Top: 0, Bottom: MaxIndex, Left: left, Right: right}
}

func (r Region) Intersects(other Region) bool {
	return r.Top <= other.Bottom && other.Top <= r.Bottom &&
		r.Left <= other.Right && other.Left <= r.Right
}

// Contains reports whether other lies entirely inside r
func (r Region) Contains(other Region) bool {
	return r.Top <= other.Top && other.Bottom <= r.Bottom &&
		r.Left <= other.Left && other.Right <= r.Right
}

func (r Region) ContainsCell(row, col int) bool {
	return r.Top <= row && row <= r.Bottom && r.Left <= col && col <= r.Right
}

func (r Region) Rows() int {
	return r.Bottom - r.Top + 1
}

func (r Region) Columns() int {
	return r.Right - r.Left + 1
}

func (r Region) Area() int64 {
	return int64(r.Rows()) * int64(r.Columns())
}

func (r Region) IsSingleCell() bool {
	return r.Top == r.Bottom && r.Left == r.Right
}

func (r Region) String() string {
	bound := func(n int) string {
		if n == MaxIndex {
			return "*"
		}
		return fmt.Sprint(n)
	}
	return fmt.Sprintf("[%d..%s, %d..%s]", r.Top, bound(r.Bottom), r.Left, bound(r.Right))
}

func (r Region) span(axis Axis) (int, int) {
	if axis == AxisColumn {
		return r.Left, r.Right
	}
	return r.Top, r.Bottom
}

func (r Region) withSpan(axis Axis, lo, hi int) Region {
	if axis == AxisColumn {
		r.Left, r.Right = lo, hi
	} else {
		r.Top, r.Bottom = lo, hi
	}
	return r
}

// insertAt returns the region after count rows or columns are inserted
// before index. regions starting at or after index move; regions spanning
// index grow. open-ended bounds stay open.
func (r Region) insertAt(axis Axis, index, count int) Region {
	lo, hi := r.span(axis)
	if lo == 0 && hi == MaxIndex {
		return r
	}
	if lo >= index {
		lo += count
		if hi != MaxIndex {
			hi += count
		}
	} else if hi >= index && hi != MaxIndex {
		hi += count
	}
	return r.withSpan(axis, lo, hi)
}

// removeAt returns the region after count rows or columns starting at index
// are removed. ok is false when the region lies entirely inside the removed
// band.
func (r Region) removeAt(axis Axis, index, count int) (Region, bool) {
	lo, hi := r.span(axis)
	end := index + count - 1
	if hi < index || (lo == 0 && hi == MaxIndex) {
		return r, true
	}
	if lo > end {
		lo -= count
		if hi != MaxIndex {
			hi -= count
		}
		return r.withSpan(axis, lo, hi), true
	}
	if lo >= index && hi <= end {
		return r, false
	}
	newLo := lo
	if lo >= index {
		newLo = index
	}
	newHi := index - 1
	if hi == MaxIndex {
		newHi = MaxIndex
	} else if hi > end {
		newHi = hi - count
	}
	return r.withSpan(axis, newLo, newHi), true
}
