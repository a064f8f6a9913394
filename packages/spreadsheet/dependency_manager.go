package spreadsheet

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// DependencyManager derives graph edges from formula references and keeps
// the graph, the reverse region index and the references themselves
// consistent under formula edits and structural edits
type DependencyManager struct {
	graph *DependencyGraph[*FormulaVertex]

	// referenced sheet -> regions referenced by formula vertices
	references map[string]*RegionDataStore[*FormulaVertex]

	// sheet -> cells holding formulas
	formulas map[string]*RegionDataStore[*FormulaVertex]

	// name key -> named formula vertex
	names map[string]*FormulaVertex

	// name key -> vertices whose formula references the name
	nameReferences map[string]map[*FormulaVertex]struct{}

	logger *slog.Logger
}

// NewDependencyManager creates an empty manager. a nil logger discards output.
func NewDependencyManager(logger *slog.Logger) *DependencyManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DependencyManager{
		graph:          NewDependencyGraph(func(v *FormulaVertex) bool { return v.Formula != nil }),
		references:     make(map[string]*RegionDataStore[*FormulaVertex]),
		formulas:       make(map[string]*RegionDataStore[*FormulaVertex]),
		names:          make(map[string]*FormulaVertex),
		nameReferences: make(map[string]map[*FormulaVertex]struct{}),
		logger:         logger,
	}
}

// Graph exposes the dependency graph for read-only queries
func (m *DependencyManager) Graph() *DependencyGraph[*FormulaVertex] {
	return m.graph
}

func sheetKey(sheetName string) string {
	return strings.ToUpper(sheetName)
}

func (m *DependencyManager) referenceStore(sheetName string) *RegionDataStore[*FormulaVertex] {
	key := sheetKey(sheetName)
	store, exists := m.references[key]
	if !exists {
		store = NewRegionDataStore[*FormulaVertex]()
		m.references[key] = store
	}
	return store
}

func (m *DependencyManager) formulaStore(sheetName string) *RegionDataStore[*FormulaVertex] {
	key := sheetKey(sheetName)
	store, exists := m.formulas[key]
	if !exists {
		store = NewRegionDataStore[*FormulaVertex]()
		m.formulas[key] = store
	}
	return store
}

// targetSheet returns the sheet a reference in v's formula points at
func targetSheet(v *FormulaVertex, ref *Reference) string {
	if ref.SheetName != "" {
		return ref.SheetName
	}
	return v.SheetName
}

// Vertex returns the formula vertex at a cell
func (m *DependencyManager) Vertex(sheetName string, row, col int) (*FormulaVertex, bool) {
	return m.graph.Vertex(cellKey(sheetName, row, col))
}

// NamedVertex returns the vertex of a named formula
func (m *DependencyManager) NamedVertex(name string) (*FormulaVertex, bool) {
	v, exists := m.names[nameKey(name)]
	return v, exists
}

// SetFormula installs formula at a cell, replacing any formula already there
func (m *DependencyManager) SetFormula(sheetName string, row, col int, formula *SyntaxTree) *FormulaEngineRestoreData {
	change := formulaChange{kind: VertexCell, sheetName: sheetName, row: row, col: col}

	if v, exists := m.Vertex(sheetName, row, col); exists {
		change.previous = v.Formula
		m.removeReferences(v)
		v.Formula = formula
		m.UpdateReferences(v, formula.References)
	} else {
		v := NewCellVertex(sheetName, row, col, formula)
		m.graph.AddVertex(v)
		m.formulaStore(sheetName).Add(v.Region(), v)
		m.UpdateReferences(v, formula.References)
	}

	m.logger.Debug("formula set",
		slog.String("sheet", sheetName),
		slog.String("cell", ColumnName(col)+fmt.Sprint(row+1)),
		slog.Int("references", len(formula.References)))
	return &FormulaEngineRestoreData{changes: []formulaChange{change}}
}

// ClearFormula removes the formula at a cell together with every edge and
// index entry derived from it
func (m *DependencyManager) ClearFormula(sheetName string, row, col int) *FormulaEngineRestoreData {
	v, exists := m.Vertex(sheetName, row, col)
	if !exists {
		return &FormulaEngineRestoreData{}
	}
	change := formulaChange{kind: VertexCell, sheetName: sheetName, row: row, col: col, previous: v.Formula}

	m.removeReferences(v)
	m.formulaStore(sheetName).Clear(v)
	m.graph.RemoveVertex(v, true)

	m.logger.Debug("formula cleared",
		slog.String("sheet", sheetName),
		slog.String("cell", ColumnName(col)+fmt.Sprint(row+1)))
	return &FormulaEngineRestoreData{changes: []formulaChange{change}}
}

// SetNamedFormula installs a workbook-level named formula. unqualified
// references inside it resolve against scopeSheet.
func (m *DependencyManager) SetNamedFormula(name, scopeSheet string, formula *SyntaxTree) *FormulaEngineRestoreData {
	key := nameKey(name)
	change := formulaChange{kind: VertexNamed, name: name, sheetName: scopeSheet}

	if v, exists := m.names[key]; exists {
		change.previous = v.Formula
		m.removeReferences(v)
		v.Formula = formula
		v.SheetName = scopeSheet
		m.UpdateReferences(v, formula.References)
	} else {
		v := NewNamedVertex(name, scopeSheet, formula)
		m.names[key] = v
		m.graph.AddVertex(v)
		m.UpdateReferences(v, formula.References)
	}

	m.logger.Debug("named formula set", slog.String("name", name))
	return &FormulaEngineRestoreData{changes: []formulaChange{change}}
}

// ClearNamedFormula removes a named formula
func (m *DependencyManager) ClearNamedFormula(name string) *FormulaEngineRestoreData {
	key := nameKey(name)
	v, exists := m.names[key]
	if !exists {
		return &FormulaEngineRestoreData{}
	}
	change := formulaChange{kind: VertexNamed, name: v.Name, sheetName: v.SheetName, previous: v.Formula}

	m.removeReferences(v)
	delete(m.names, key)
	m.graph.RemoveVertex(v, true)

	m.logger.Debug("named formula cleared", slog.String("name", name))
	return &FormulaEngineRestoreData{changes: []formulaChange{change}}
}

// UpdateReferences links v to everything its references cover and records
// it in the reverse index. it also links v to formulas already waiting on
// v's cell or name. calling it again with the same references changes
// nothing.
func (m *DependencyManager) UpdateReferences(v *FormulaVertex, references []*Reference) {
	m.linkPrecedents(v, references, true)
	m.linkDependents(v)
}

// linkPrecedents adds edges from everything references cover to v and
// subscribes v to the names it uses. index also files the referenced
// regions in the reverse index.
func (m *DependencyManager) linkPrecedents(v *FormulaVertex, references []*Reference, index bool) {
	for _, ref := range references {
		if ref.Kind == ReferenceNamed {
			key := nameKey(ref.Name)
			waiting, exists := m.nameReferences[key]
			if !exists {
				waiting = make(map[*FormulaVertex]struct{})
				m.nameReferences[key] = waiting
			}
			waiting[v] = struct{}{}
			if named, exists := m.names[key]; exists {
				m.graph.AddEdge(named, v)
			}
			continue
		}
		if ref.Invalid {
			continue
		}

		sheet := targetSheet(v, ref)
		region := ref.Region()
		for _, precedent := range m.formulaStore(sheet).GetData(region) {
			m.graph.AddEdge(precedent, v)
		}
		if index {
			m.referenceStore(sheet).Add(region, v)
		}
	}
}

// linkDependents adds edges from v to every vertex already referencing it
func (m *DependencyManager) linkDependents(v *FormulaVertex) {
	if v.Kind == VertexNamed {
		for dependent := range m.nameReferences[v.Key()] {
			m.graph.AddEdge(v, dependent)
		}
		return
	}
	for _, dependent := range m.referenceStore(v.SheetName).GetData(v.Region()) {
		m.graph.AddEdge(v, dependent)
	}
}

// removeReferences tears down what UpdateReferences built for v's current
// formula: precedent edges, reverse index entries and name subscriptions.
// edges to v's dependents stay.
func (m *DependencyManager) removeReferences(v *FormulaVertex) {
	for _, precedent := range m.graph.Prec(v) {
		if precedent == v {
			continue
		}
		m.graph.RemoveEdge(precedent, v, false, false)
	}
	// a self reference is an edge in both directions
	m.graph.RemoveEdge(v, v, false, false)

	for _, store := range m.references {
		store.Clear(v)
	}
	if v.Formula == nil {
		return
	}
	for _, ref := range v.Formula.References {
		if ref.Kind != ReferenceNamed {
			continue
		}
		key := nameKey(ref.Name)
		if waiting, exists := m.nameReferences[key]; exists {
			delete(waiting, v)
			if len(waiting) == 0 {
				delete(m.nameReferences, key)
			}
		}
	}
}

// GetDependents returns the formula vertices whose references intersect
// region on sheetName
func (m *DependencyManager) GetDependents(sheetName string, region Region) []*FormulaVertex {
	store, exists := m.references[sheetKey(sheetName)]
	if !exists {
		return nil
	}
	return store.GetData(region)
}

// GetNameDependents returns the vertices referencing name
func (m *DependencyManager) GetNameDependents(name string) []*FormulaVertex {
	waiting := m.nameReferences[nameKey(name)]
	out := make([]*FormulaVertex, 0, len(waiting))
	for v := range waiting {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// IsReferenced reports whether any formula references part of region on
// sheetName. hosts use it to skip recalculation for unrelated edits.
func (m *DependencyManager) IsReferenced(sheetName string, region Region) bool {
	store, exists := m.references[sheetKey(sheetName)]
	return exists && store.Any(region)
}

// IsCellReferenced is IsReferenced for a single cell
func (m *DependencyManager) IsCellReferenced(sheetName string, row, col int) bool {
	return m.IsReferenced(sheetName, CellRegion(row, col))
}

// DependencyInfo describes one vertex for diagnostics
type DependencyInfo struct {
	Key        string
	Formula    string
	Precedents []string
	Dependents []string
	Regions    []string
}

// GetDependencyInfo describes the formula at a cell. ok is false when the
// cell holds no formula.
func (m *DependencyManager) GetDependencyInfo(sheetName string, row, col int) (DependencyInfo, bool) {
	v, exists := m.Vertex(sheetName, row, col)
	if !exists {
		return DependencyInfo{}, false
	}
	return m.describe(v), true
}

// GetNamedDependencyInfo describes a named formula
func (m *DependencyManager) GetNamedDependencyInfo(name string) (DependencyInfo, bool) {
	v, exists := m.names[nameKey(name)]
	if !exists {
		return DependencyInfo{}, false
	}
	return m.describe(v), true
}

// AllDependencyInfo describes every vertex, ordered by key
func (m *DependencyManager) AllDependencyInfo() []DependencyInfo {
	vertices := m.graph.V()
	out := make([]DependencyInfo, len(vertices))
	for i, v := range vertices {
		out[i] = m.describe(v)
	}
	return out
}

func (m *DependencyManager) describe(v *FormulaVertex) DependencyInfo {
	info := DependencyInfo{Key: v.Key()}
	if v.Formula != nil {
		info.Formula = v.Formula.ToExpressionText()
		for _, ref := range v.Formula.References {
			if ref.Kind == ReferenceNamed || ref.Invalid {
				info.Regions = append(info.Regions, ref.ToAddressText())
				continue
			}
			info.Regions = append(info.Regions, QuoteSheetName(targetSheet(v, ref))+"!"+ref.Region().String())
		}
	}
	for _, p := range m.graph.Prec(v) {
		info.Precedents = append(info.Precedents, p.Key())
	}
	for _, d := range m.graph.Adj(v) {
		info.Dependents = append(info.Dependents, d.Key())
	}
	return info
}

// band returns the region from index to the end of the sheet along axis
func band(axis Axis, from, to int) Region {
	if axis == AxisColumn {
		return Region{Top: 0, Bottom: MaxIndex, Left: from, Right: to}
	}
	return Region{Top: from, Bottom: to, Left: 0, Right: MaxIndex}
}

// InsertRowColAt inserts count rows or columns before index on sheetName
func (m *DependencyManager) InsertRowColAt(sheetName string, index, count int, axis Axis) *FormulaEngineRestoreData {
	restore := &FormulaEngineRestoreData{
		axis: axis,
		edit: &structuralEdit{sheetName: sheetName, axis: axis, index: index, count: count, insert: true},
	}
	if count <= 0 {
		return restore
	}

	affected := band(axis, index, MaxIndex)
	m.rewriteReferences(restore, sheetName, affected, func(ref *Reference) bool {
		return ref.InsertRowColAt(axis, index, count)
	})

	// bottom-up so a moved vertex never lands on one not yet moved
	moving := m.formulaStore(sheetName).GetData(affected)
	sort.Slice(moving, func(i, j int) bool { return moving[i].position(axis) > moving[j].position(axis) })
	for _, v := range moving {
		m.moveVertex(restore, v, axis, v.position(axis)+count)
	}

	m.rebaseStores(restore, sheetName, func(s *RegionDataStore[*FormulaVertex]) RegionRestoreData[*FormulaVertex] {
		return s.InsertRowColAt(axis, index, count)
	})

	m.logger.Debug("inserted",
		slog.String("sheet", sheetName),
		slog.String("axis", axis.String()),
		slog.Int("index", index),
		slog.Int("count", count),
		slog.Int("moved", len(restore.moves)),
		slog.Int("rewritten", len(restore.references)))
	return restore
}

// RemoveRowColAt removes count rows or columns starting at index on
// sheetName. formulas living in the removed band are cleared.
func (m *DependencyManager) RemoveRowColAt(sheetName string, index, count int, axis Axis) *FormulaEngineRestoreData {
	restore := &FormulaEngineRestoreData{
		axis: axis,
		edit: &structuralEdit{sheetName: sheetName, axis: axis, index: index, count: count},
	}
	if count <= 0 {
		return restore
	}
	end := index + count - 1

	removed := m.formulaStore(sheetName).GetData(band(axis, index, end))
	for _, v := range removed {
		restore.detached = append(restore.detached, m.detach(v))
	}

	m.rewriteReferences(restore, sheetName, band(axis, index, MaxIndex), func(ref *Reference) bool {
		return ref.RemoveRowColAt(axis, index, count)
	})

	// top-down so a moved vertex never lands on one not yet moved
	moving := m.formulaStore(sheetName).GetData(band(axis, end+1, MaxIndex))
	sort.Slice(moving, func(i, j int) bool { return moving[i].position(axis) < moving[j].position(axis) })
	for _, v := range moving {
		m.moveVertex(restore, v, axis, v.position(axis)-count)
	}

	m.rebaseStores(restore, sheetName, func(s *RegionDataStore[*FormulaVertex]) RegionRestoreData[*FormulaVertex] {
		return s.RemoveRowColAt(axis, index, count)
	})

	m.logger.Debug("removed",
		slog.String("sheet", sheetName),
		slog.String("axis", axis.String()),
		slog.Int("index", index),
		slog.Int("count", count),
		slog.Int("cleared", len(restore.detached)),
		slog.Int("moved", len(restore.moves)),
		slog.Int("rewritten", len(restore.references)))
	return restore
}

// rewriteReferences applies edit to every reference that points into
// affected on sheetName, recording the prior state of those that change
func (m *DependencyManager) rewriteReferences(restore *FormulaEngineRestoreData, sheetName string, affected Region, edit func(*Reference) bool) {
	target := sheetKey(sheetName)
	for _, v := range m.GetDependents(sheetName, affected) {
		for _, ref := range v.Formula.References {
			if ref.Kind == ReferenceNamed || sheetKey(targetSheet(v, ref)) != target {
				continue
			}
			prior := ReferenceRestoreData{Reference: ref, PriorRegion: ref.Region(), PriorInvalid: ref.Invalid}
			if edit(ref) {
				restore.references = append(restore.references, prior)
			}
		}
	}
}

// detach drops a formula vertex caught in a removed band, recording its
// index entries so reattach can restore them under the same ids
func (m *DependencyManager) detach(v *FormulaVertex) detachedVertex {
	d := detachedVertex{
		vertex:     v,
		formulas:   m.formulaStore(v.SheetName).EntriesOf(v),
		references: make(map[string][]RegionEntry[*FormulaVertex]),
	}
	for key, store := range m.references {
		if entries := store.EntriesOf(v); len(entries) > 0 {
			d.references[key] = entries
		}
	}

	m.removeReferences(v)
	m.formulaStore(v.SheetName).Clear(v)
	m.graph.RemoveVertex(v, true)
	return d
}

// reattach undoes detach. stores must already be back in the state they
// had when the vertex was detached.
func (m *DependencyManager) reattach(d detachedVertex) {
	v := d.vertex
	m.graph.AddVertex(v)
	for _, e := range d.formulas {
		m.formulaStore(v.SheetName).Reinsert(e)
	}
	for key, entries := range d.references {
		store, exists := m.references[key]
		if !exists {
			store = NewRegionDataStore[*FormulaVertex]()
			m.references[key] = store
		}
		for _, e := range entries {
			store.Reinsert(e)
		}
	}
	m.linkPrecedents(v, v.Formula.References, false)
	m.linkDependents(v)
}

func (m *DependencyManager) moveVertex(restore *FormulaEngineRestoreData, v *FormulaVertex, axis Axis, pos int) {
	if !m.graph.HasVertex(v.Key()) {
		panic(fmt.Sprintf("spreadsheet: vertex %s is not registered", v.Key()))
	}
	restore.moves = append(restore.moves, vertexMove{vertex: v, before: v.position(axis)})
	v.setPosition(axis, pos)
	m.graph.RefreshKey(v)
}

func (m *DependencyManager) rebaseStores(restore *FormulaEngineRestoreData, sheetName string, rebase func(*RegionDataStore[*FormulaVertex]) RegionRestoreData[*FormulaVertex]) {
	restore.referenceStores = map[string]RegionRestoreData[*FormulaVertex]{}
	restore.formulaStores = map[string]RegionRestoreData[*FormulaVertex]{}
	key := sheetKey(sheetName)
	if store, exists := m.references[key]; exists {
		restore.referenceStores[key] = rebase(store)
	}
	if store, exists := m.formulas[key]; exists {
		restore.formulaStores[key] = rebase(store)
	}
}

// Restore undoes the operation that produced data, replaying its steps in
// reverse order
func (m *DependencyManager) Restore(data *FormulaEngineRestoreData) {
	if data == nil {
		return
	}

	for key, d := range data.formulaStores {
		m.formulas[key].Restore(d)
	}
	for key, d := range data.referenceStores {
		m.references[key].Restore(d)
	}

	for i := len(data.moves) - 1; i >= 0; i-- {
		move := data.moves[i]
		if !m.graph.HasVertex(move.vertex.Key()) {
			panic(fmt.Sprintf("spreadsheet: vertex %s is not registered", move.vertex.Key()))
		}
		move.vertex.setPosition(data.axis, move.before)
		m.graph.RefreshKey(move.vertex)
	}

	for i := len(data.references) - 1; i >= 0; i-- {
		r := data.references[i]
		r.Reference.SetRegion(r.PriorRegion)
		r.Reference.Invalid = r.PriorInvalid
	}

	for i := len(data.changes) - 1; i >= 0; i-- {
		c := data.changes[i]
		switch {
		case c.kind == VertexNamed && c.previous == nil:
			m.ClearNamedFormula(c.name)
		case c.kind == VertexNamed:
			m.SetNamedFormula(c.name, c.sheetName, c.previous)
		case c.previous == nil:
			m.ClearFormula(c.sheetName, c.row, c.col)
		default:
			m.SetFormula(c.sheetName, c.row, c.col, c.previous)
		}
	}

	for i := len(data.detached) - 1; i >= 0; i-- {
		m.reattach(data.detached[i])
	}

	if data.edit != nil {
		m.logger.Debug("structural edit restored",
			slog.String("sheet", data.edit.sheetName),
			slog.String("axis", data.edit.axis.String()),
			slog.Int("index", data.edit.index),
			slog.Int("count", data.edit.count),
			slog.Bool("insert", data.edit.insert))
	}
}

// CalculationOrder returns formula vertices in evaluation order and those
// caught in circular references
func (m *DependencyManager) CalculationOrder() (order []*FormulaVertex, cycles []*FormulaVertex) {
	order, cycles = m.graph.GetCalculationOrder()
	if len(cycles) > 0 {
		keys := make([]string, len(cycles))
		for i, v := range cycles {
			keys[i] = v.Key()
		}
		m.logger.Warn("circular references", slog.Any("vertices", keys))
	}
	return order, cycles
}
