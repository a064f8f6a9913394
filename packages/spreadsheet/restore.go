package spreadsheet

// ReferenceRestoreData records a reference's state before a structural edit
// rewrote it
type ReferenceRestoreData struct {
	Reference    *Reference
	PriorRegion  Region
	PriorInvalid bool
}

// formulaChange records the formula a vertex held before it was set or
// cleared. a nil previous means there was no formula.
type formulaChange struct {
	kind      VertexKind
	sheetName string
	row       int
	col       int
	name      string
	previous  *SyntaxTree
}

type vertexMove struct {
	vertex *FormulaVertex
	before int
}

// detachedVertex is a formula vertex dropped by a row or column removal,
// kept with its index entries so Restore can reattach the same vertex
type detachedVertex struct {
	vertex     *FormulaVertex
	formulas   []RegionEntry[*FormulaVertex]
	references map[string][]RegionEntry[*FormulaVertex]
}

// structuralEdit describes one row or column insert or removal
type structuralEdit struct {
	sheetName string
	axis      Axis
	index     int
	count     int
	insert    bool
}

// FormulaEngineRestoreData captures everything a DependencyManager operation
// changed so that Restore can undo it. it is consumed once.
type FormulaEngineRestoreData struct {
	changes         []formulaChange
	references      []ReferenceRestoreData
	moves           []vertexMove
	detached        []detachedVertex
	axis            Axis
	referenceStores map[string]RegionRestoreData[*FormulaVertex]
	formulaStores   map[string]RegionRestoreData[*FormulaVertex]
	edit            *structuralEdit
}

// References returns the reference rewrites recorded by a structural edit
func (d *FormulaEngineRestoreData) References() []ReferenceRestoreData {
	return d.references
}

// MovedVertices returns the number of formula vertices a structural edit
// shifted
func (d *FormulaEngineRestoreData) MovedVertices() int {
	return len(d.moves)
}

// FormulaChanges returns the number of formulas set or cleared by the
// operation, including formulas dropped by a removal
func (d *FormulaEngineRestoreData) FormulaChanges() int {
	return len(d.changes) + len(d.detached)
}
