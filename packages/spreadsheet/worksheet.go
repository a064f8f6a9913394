package spreadsheet

import (
	"iter"
	"sort"
	"strconv"
	"strings"
)

// WorksheetTable manages worksheets by name. lookups are case-insensitive
// while the name a sheet was created with is preserved.
type WorksheetTable struct {
	byKey map[string]*Worksheet
	order []*Worksheet
}

// NewWorksheetTable creates a new worksheet table
func NewWorksheetTable() *WorksheetTable {
	return &WorksheetTable{
		byKey: make(map[string]*Worksheet),
	}
}

// Define adds a worksheet, returning the existing one when the name is taken
func (wt *WorksheetTable) Define(name string) (*Worksheet, bool) {
	key := sheetKey(name)
	if ws, exists := wt.byKey[key]; exists {
		return ws, false
	}
	ws := NewWorksheet(name)
	wt.byKey[key] = ws
	wt.order = append(wt.order, ws)
	return ws, true
}

// Get returns the worksheet with the given name
func (wt *WorksheetTable) Get(name string) (*Worksheet, bool) {
	ws, exists := wt.byKey[sheetKey(name)]
	return ws, exists
}

func (wt *WorksheetTable) Contains(name string) bool {
	_, exists := wt.byKey[sheetKey(name)]
	return exists
}

// Names returns worksheet names in creation order
func (wt *WorksheetTable) Names() []string {
	names := make([]string, len(wt.order))
	for i, ws := range wt.order {
		names[i] = ws.Name
	}
	return names
}

func (wt *WorksheetTable) Count() int {
	return len(wt.order)
}

// ChunkKey represents the key for indexing chunks in Worksheet
type ChunkKey struct {
	ChunkRow int
	ChunkCol int
}

const (
	ChunkRows = 256                   // rows per chunk - power of 2 for efficient modulo
	ChunkCols = 256                   // columns per chunk - matches typical viewport size
	ChunkSize = ChunkRows * ChunkCols // 65536 cells per chunk
)

// Cell is one stored cell: a constant, or a formula with its last result
type Cell struct {
	Row     int
	Col     int
	Value   CellValue
	Formula *SyntaxTree
}

func (c *Cell) HasFormula() bool {
	return c.Formula != nil
}

// Chunk holds the occupied cells of a 256x256 block, indexed column-first
type Chunk struct {
	cells map[int]*Cell
}

// Worksheet provides sparse cell storage partitioned into 256x256 chunks so
// range reads only visit occupied blocks
type Worksheet struct {
	Name   string
	chunks map[ChunkKey]*Chunk
	count  int
}

// NewWorksheet creates a new worksheet
func NewWorksheet(name string) *Worksheet {
	return &Worksheet{
		Name:   name,
		chunks: make(map[ChunkKey]*Chunk),
	}
}

func chunkOf(row, col int) (ChunkKey, int) {
	key := ChunkKey{ChunkRow: row / ChunkRows, ChunkCol: col / ChunkCols}
	// column-first indexing for better cache locality
	idx := (col%ChunkCols)*ChunkRows + row%ChunkRows
	return key, idx
}

// GetCell returns the cell at row, col or nil when it is empty
func (w *Worksheet) GetCell(row, col int) *Cell {
	key, idx := chunkOf(row, col)
	chunk, exists := w.chunks[key]
	if !exists {
		return nil
	}
	return chunk.cells[idx]
}

// SetCell stores cell at its position, replacing what was there
func (w *Worksheet) SetCell(cell *Cell) {
	key, idx := chunkOf(cell.Row, cell.Col)
	chunk, exists := w.chunks[key]
	if !exists {
		chunk = &Chunk{cells: make(map[int]*Cell)}
		w.chunks[key] = chunk
	}
	if _, occupied := chunk.cells[idx]; !occupied {
		w.count++
	}
	chunk.cells[idx] = cell
}

// RemoveCell empties row, col and returns the removed cell
func (w *Worksheet) RemoveCell(row, col int) *Cell {
	key, idx := chunkOf(row, col)
	chunk, exists := w.chunks[key]
	if !exists {
		return nil
	}
	cell, occupied := chunk.cells[idx]
	if !occupied {
		return nil
	}
	delete(chunk.cells, idx)
	w.count--
	if len(chunk.cells) == 0 {
		delete(w.chunks, key)
	}
	return cell
}

// Len returns the number of occupied cells
func (w *Worksheet) Len() int {
	return w.count
}

// UsedRegion returns the smallest region holding every occupied cell. ok is
// false for an empty sheet.
func (w *Worksheet) UsedRegion() (Region, bool) {
	if w.count == 0 {
		return Region{}, false
	}
	used := Region{Top: MaxIndex, Bottom: -1, Left: MaxIndex, Right: -1}
	for cell := range w.Cells() {
		used.Top = min(used.Top, cell.Row)
		used.Bottom = max(used.Bottom, cell.Row)
		used.Left = min(used.Left, cell.Col)
		used.Right = max(used.Right, cell.Col)
	}
	return used, true
}

// Cells iterates over every occupied cell in no particular order
func (w *Worksheet) Cells() iter.Seq[*Cell] {
	return func(yield func(*Cell) bool) {
		for _, chunk := range w.chunks {
			for _, cell := range chunk.cells {
				if !yield(cell) {
					return
				}
			}
		}
	}
}

// CellsIn iterates over the occupied cells inside region, visiting only the
// chunks that overlap it
func (w *Worksheet) CellsIn(region Region) iter.Seq[*Cell] {
	return func(yield func(*Cell) bool) {
		for key, chunk := range w.chunks {
			chunkRegion := Region{
				Top:    key.ChunkRow * ChunkRows,
				Bottom: key.ChunkRow*ChunkRows + ChunkRows - 1,
				Left:   key.ChunkCol * ChunkCols,
				Right:  key.ChunkCol*ChunkCols + ChunkCols - 1,
			}
			if !chunkRegion.Intersects(region) {
				continue
			}
			for _, cell := range chunk.cells {
				if region.ContainsCell(cell.Row, cell.Col) && !yield(cell) {
					return
				}
			}
		}
	}
}

// worksheetRestore records the cells a structural edit dropped
type worksheetRestore struct {
	removed []*Cell
}

// shiftCells moves every cell at or after index along axis by delta
func (w *Worksheet) shiftCells(axis Axis, index, delta int) {
	var moving []*Cell
	for cell := range w.Cells() {
		if pos := cellPosition(cell, axis); pos >= index {
			moving = append(moving, cell)
		}
	}
	// move far cells first so nothing is overwritten
	sort.Slice(moving, func(i, j int) bool {
		pi, pj := cellPosition(moving[i], axis), cellPosition(moving[j], axis)
		if delta > 0 {
			return pi > pj
		}
		return pi < pj
	})
	for _, cell := range moving {
		w.RemoveCell(cell.Row, cell.Col)
		if axis == AxisColumn {
			cell.Col += delta
		} else {
			cell.Row += delta
		}
		w.SetCell(cell)
	}
}

func cellPosition(cell *Cell, axis Axis) int {
	if axis == AxisColumn {
		return cell.Col
	}
	return cell.Row
}

// InsertRowColAt opens count empty rows or columns before index
func (w *Worksheet) InsertRowColAt(axis Axis, index, count int) worksheetRestore {
	w.shiftCells(axis, index, count)
	return worksheetRestore{}
}

// RemoveRowColAt drops the cells in count rows or columns at index and
// closes the gap
func (w *Worksheet) RemoveRowColAt(axis Axis, index, count int) worksheetRestore {
	var restore worksheetRestore
	for cell := range w.CellsIn(band(axis, index, index+count-1)) {
		restore.removed = append(restore.removed, cell)
	}
	for _, cell := range restore.removed {
		w.RemoveCell(cell.Row, cell.Col)
	}
	w.shiftCells(axis, index+count, -count)
	return restore
}

// String lists occupied cells in row-major order, for debugging
func (w *Worksheet) String() string {
	var cells []*Cell
	for cell := range w.Cells() {
		cells = append(cells, cell)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
	var b strings.Builder
	for _, cell := range cells {
		b.WriteString(ColumnName(cell.Col))
		b.WriteString(strconv.Itoa(cell.Row + 1))
		b.WriteString(": ")
		b.WriteString(cell.Value.String())
		b.WriteByte('\n')
	}
	return b.String()
}
