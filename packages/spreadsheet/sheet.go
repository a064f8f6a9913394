package spreadsheet

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// codes that make no sense for an in-process workbook (unauthenticated,
// permission denied) are skipped.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates the caller passed malformed input, such as
	// address text that does not parse.
	InvalidArgument AppErrorCode = 3

	// NotFound means a worksheet or name was not found.
	NotFound AppErrorCode = 5

	// AlreadyExists means an attempt to create a worksheet failed because one
	// already exists.
	AlreadyExists AppErrorCode = 6

	// FailedPrecondition indicates the workbook is not in a state required
	// for the operation, e.g. an unqualified address with no sheets.
	FailedPrecondition AppErrorCode = 9

	// OutOfRange means a row or column index lies outside the grid.
	OutOfRange AppErrorCode = 11

	// Internal errors. Means some invariant of the workbook has been broken.
	Internal AppErrorCode = 13
)

// AppError represents errors at the application level (not
// spreadsheet formula errors)
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WorkbookOption configures a Workbook
type WorkbookOption func(*Workbook)

// WithSeparators sets the separators formulas are written with
func WithSeparators(settings SeparatorSettings) WorkbookOption {
	return func(wb *Workbook) {
		wb.separators = settings
	}
}

// WithLogger sets the logger used by the workbook and its dependency manager
func WithLogger(logger *slog.Logger) WorkbookOption {
	return func(wb *Workbook) {
		wb.logger = logger
	}
}

// WithClock sets the clock NOW and TODAY read
func WithClock(clock Clock) WorkbookOption {
	return func(wb *Workbook) {
		wb.clock = clock
	}
}

// WithRandom sets the generator RAND draws from
func WithRandom(random RandomGenerator) WorkbookOption {
	return func(wb *Workbook) {
		wb.random = random
	}
}

// WithFunctions replaces the built-in function registry
func WithFunctions(functions *FunctionRegistry) WorkbookOption {
	return func(wb *Workbook) {
		wb.functions = functions
	}
}

// Workbook combines worksheet storage, parsing, dependency tracking and
// evaluation. formulas are recalculated by Calculate, never on write.
type Workbook struct {
	sheets      *WorksheetTable
	variables   *NameTable
	namedValues map[string]CellValue
	manager     *DependencyManager
	evaluator   *Evaluator
	functions   *FunctionRegistry
	separators  SeparatorSettings
	clock       Clock
	random      RandomGenerator
	logger      *slog.Logger

	// vertices awaiting recalculation
	dirty map[*FormulaVertex]struct{}
}

// NewWorkbook creates a workbook with no sheets
func NewWorkbook(opts ...WorkbookOption) *Workbook {
	wb := &Workbook{
		sheets:      NewWorksheetTable(),
		variables:   NewNameTable(),
		namedValues: make(map[string]CellValue),
		separators:  DefaultSeparatorSettings(),
		dirty:       make(map[*FormulaVertex]struct{}),
	}
	for _, opt := range opts {
		opt(wb)
	}
	if wb.logger == nil {
		wb.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if wb.functions == nil {
		wb.functions = NewDefaultFunctionRegistry()
	}
	wb.manager = NewDependencyManager(wb.logger)
	wb.evaluator = NewEvaluator(wb.clock, wb.random)
	return wb
}

// Manager exposes the dependency manager for diagnostics
func (wb *Workbook) Manager() *DependencyManager {
	return wb.manager
}

func (wb *Workbook) Functions() *FunctionRegistry {
	return wb.functions
}

func (wb *Workbook) Separators() SeparatorSettings {
	return wb.separators
}

// AddSheet adds an empty worksheet
func (wb *Workbook) AddSheet(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewApplicationError(InvalidArgument, "Worksheet name is empty")
	}
	if _, created := wb.sheets.Define(name); !created {
		return NewApplicationError(AlreadyExists, "Worksheet already exists")
	}
	// formulas referencing the sheet before it existed now resolve
	wb.touch(name, Region{Top: 0, Bottom: MaxIndex, Left: 0, Right: MaxIndex})
	return nil
}

// Sheet returns the worksheet with the given name
func (wb *Workbook) Sheet(name string) (*Worksheet, bool) {
	return wb.sheets.Get(name)
}

// Sheets returns sheet names in creation order
func (wb *Workbook) Sheets() []string {
	return wb.sheets.Names()
}

// CellAddress is a resolved host address
type CellAddress struct {
	Sheet string
	Row   int
	Col   int
}

func (a CellAddress) String() string {
	return QuoteSheetName(a.Sheet) + "!" + ColumnName(a.Col) + strconv.Itoa(a.Row+1)
}

// ParseAddress resolves text such as B2, Sheet1!B2 or 'My Sheet'!$B$2.
// unqualified addresses refer to the first sheet.
func (wb *Workbook) ParseAddress(text string) (CellAddress, error) {
	text = strings.TrimSpace(text)
	sheetName, cellText := "", text
	if bang := strings.LastIndexByte(text, '!'); bang >= 0 {
		sheetName, cellText = UnquoteSheetName(text[:bang]), text[bang+1:]
		if sheetName == "" {
			return CellAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid address: %s", text))
		}
	}

	addr, ok := parseAddress(cellText)
	if !ok || addr.Kind != AddressCell {
		return CellAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid address: %s", text))
	}

	if sheetName == "" {
		names := wb.sheets.Names()
		if len(names) == 0 {
			return CellAddress{}, NewApplicationError(FailedPrecondition, "Workbook has no worksheets")
		}
		sheetName = names[0]
	}
	ws, exists := wb.sheets.Get(sheetName)
	if !exists {
		return CellAddress{}, NewApplicationError(NotFound, fmt.Sprintf("Worksheet not found: %s", sheetName))
	}
	return CellAddress{Sheet: ws.Name, Row: addr.Row, Col: addr.Col}, nil
}

// UnquoteSheetName strips the quotes of a 'quoted' sheet name and undoubles
// embedded quotes. unquoted names are returned as is.
func UnquoteSheetName(text string) string {
	if len(text) >= 2 && text[0] == '\'' && text[len(text)-1] == '\'' {
		return strings.ReplaceAll(text[1:len(text)-1], "''", "'")
	}
	return text
}

// SetCell writes content to a cell. content starting with = is a formula;
// anything else is parsed as a literal.
func (wb *Workbook) SetCell(address, content string) error {
	if strings.HasPrefix(content, "=") {
		return wb.SetFormula(address, content)
	}
	if content == "" {
		return wb.ClearCell(address)
	}
	return wb.SetValue(address, wb.ParseLiteral(content))
}

// ParseLiteral reads cell input that is not a formula: numbers in the
// workbook's decimal notation, TRUE/FALSE, error literals, otherwise text
func (wb *Workbook) ParseLiteral(content string) CellValue {
	trimmed := strings.TrimSpace(content)
	numeric := trimmed
	if wb.separators.DecimalSeparator != '.' {
		numeric = strings.ReplaceAll(numeric, string(wb.separators.DecimalSeparator), ".")
	}
	if n, ok := parseNumberText(numeric); ok {
		return NumberValue(n)
	}
	switch strings.ToUpper(trimmed) {
	case "TRUE":
		return LogicalValue(true)
	case "FALSE":
		return LogicalValue(false)
	}
	if kind, ok := ParseErrorKind(strings.ToUpper(trimmed)); ok {
		return ErrorValue(kind, "")
	}
	return TextValue(content)
}

// SetValue writes a constant, replacing any formula at the cell
func (wb *Workbook) SetValue(address string, value CellValue) error {
	addr, err := wb.ParseAddress(address)
	if err != nil {
		return err
	}
	ws, _ := wb.sheets.Get(addr.Sheet)
	if existing := ws.GetCell(addr.Row, addr.Col); existing != nil && existing.HasFormula() {
		wb.manager.ClearFormula(addr.Sheet, addr.Row, addr.Col)
	}
	ws.SetCell(&Cell{Row: addr.Row, Col: addr.Col, Value: value})
	wb.touch(addr.Sheet, CellRegion(addr.Row, addr.Col))
	return nil
}

// SetFormula parses formula and installs it at a cell. a formula that does
// not parse is still stored and evaluates to #N/A.
func (wb *Workbook) SetFormula(address, formula string) error {
	addr, err := wb.ParseAddress(address)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(formula, "=") {
		formula = "=" + formula
	}
	tree := ParseFormula(formula, wb.separators)
	if tree.HasErrors() {
		wb.logger.Debug("formula has errors",
			slog.String("cell", addr.String()),
			slog.Any("errors", tree.Errors))
	}

	ws, _ := wb.sheets.Get(addr.Sheet)
	wb.manager.SetFormula(addr.Sheet, addr.Row, addr.Col, tree)
	ws.SetCell(&Cell{Row: addr.Row, Col: addr.Col, Formula: tree})

	if v, exists := wb.manager.Vertex(addr.Sheet, addr.Row, addr.Col); exists {
		wb.markDirty(v)
	}
	wb.touch(addr.Sheet, CellRegion(addr.Row, addr.Col))
	return nil
}

// ClearCell empties a cell, dropping its formula if it has one
func (wb *Workbook) ClearCell(address string) error {
	addr, err := wb.ParseAddress(address)
	if err != nil {
		return err
	}
	ws, _ := wb.sheets.Get(addr.Sheet)
	cell := ws.RemoveCell(addr.Row, addr.Col)
	if cell == nil {
		return nil
	}
	if cell.HasFormula() {
		wb.manager.ClearFormula(addr.Sheet, addr.Row, addr.Col)
	}
	wb.touch(addr.Sheet, CellRegion(addr.Row, addr.Col))
	return nil
}

// Get returns the value of a cell as of the last Calculate
func (wb *Workbook) Get(address string) (CellValue, error) {
	addr, err := wb.ParseAddress(address)
	if err != nil {
		return CellValue{}, err
	}
	ws, _ := wb.sheets.Get(addr.Sheet)
	if cell := ws.GetCell(addr.Row, addr.Col); cell != nil {
		return cell.Value, nil
	}
	return EmptyValue(), nil
}

// GetFormula returns the formula text at a cell, "" for constants
func (wb *Workbook) GetFormula(address string) (string, error) {
	addr, err := wb.ParseAddress(address)
	if err != nil {
		return "", err
	}
	ws, _ := wb.sheets.Get(addr.Sheet)
	if cell := ws.GetCell(addr.Row, addr.Col); cell != nil && cell.HasFormula() {
		return cell.Formula.ToExpressionText(), nil
	}
	return "", nil
}

// SetVariable defines a workbook-level constant formulas can use by name
func (wb *Workbook) SetVariable(name string, value CellValue) {
	wb.variables.Define(name, value)
	wb.touchName(name)
}

// RemoveVariable drops a variable; formulas using it become #NAME?
func (wb *Workbook) RemoveVariable(name string) bool {
	if !wb.variables.Undefine(name) {
		return false
	}
	wb.touchName(name)
	return true
}

// Variables returns the names of the defined variables
func (wb *Workbook) Variables() []string {
	return wb.variables.Names()
}

// SetNamedFormula defines a name computed from a formula. unqualified
// references inside it resolve against scopeSheet.
func (wb *Workbook) SetNamedFormula(name, scopeSheet, formula string) error {
	ws, exists := wb.sheets.Get(scopeSheet)
	if !exists {
		return NewApplicationError(NotFound, fmt.Sprintf("Worksheet not found: %s", scopeSheet))
	}
	if !strings.HasPrefix(formula, "=") {
		formula = "=" + formula
	}
	tree := ParseFormula(formula, wb.separators)
	wb.manager.SetNamedFormula(name, ws.Name, tree)
	if v, exists := wb.manager.NamedVertex(name); exists {
		wb.markDirty(v)
	}
	return nil
}

// ClearNamedFormula removes a named formula
func (wb *Workbook) ClearNamedFormula(name string) {
	wb.touchName(name)
	wb.manager.ClearNamedFormula(name)
	delete(wb.namedValues, nameKey(name))
}

// touch marks every formula reading region on sheetName for recalculation
func (wb *Workbook) touch(sheetName string, region Region) {
	for _, v := range wb.manager.GetDependents(sheetName, region) {
		wb.markDirty(v)
	}
}

func (wb *Workbook) touchName(name string) {
	for _, v := range wb.manager.GetNameDependents(name) {
		wb.markDirty(v)
	}
	if v, exists := wb.manager.NamedVertex(name); exists {
		wb.markDirty(v)
	}
}

// markDirty queues v and everything downstream of it
func (wb *Workbook) markDirty(v *FormulaVertex) {
	wb.dirty[v] = struct{}{}
	for _, d := range wb.manager.Graph().Dependents(v) {
		wb.dirty[d] = struct{}{}
	}
}

func (wb *Workbook) markAllDirty() {
	for _, v := range wb.manager.Graph().V() {
		wb.dirty[v] = struct{}{}
	}
}

// WorkbookRestoreData undoes one structural edit when passed to Restore
type WorkbookRestoreData struct {
	engine    *FormulaEngineRestoreData
	sheetName string
	axis      Axis
	index     int
	count     int
	insert    bool
	sheetData worksheetRestore
}

// Engine returns the dependency manager's part of the restore data
func (d *WorkbookRestoreData) Engine() *FormulaEngineRestoreData {
	return d.engine
}

func (wb *Workbook) structuralEdit(sheetName string, axis Axis, index, count int, insert bool) (*WorkbookRestoreData, error) {
	ws, exists := wb.sheets.Get(sheetName)
	if !exists {
		return nil, NewApplicationError(NotFound, fmt.Sprintf("Worksheet not found: %s", sheetName))
	}
	if count <= 0 {
		return nil, NewApplicationError(InvalidArgument, "Count must be positive")
	}
	limit := MaxRows
	if axis == AxisColumn {
		limit = MaxColumns
	}
	if index < 0 || index+count > limit {
		return nil, NewApplicationError(OutOfRange, fmt.Sprintf("%s %d out of range", axis, index))
	}

	data := &WorkbookRestoreData{sheetName: ws.Name, axis: axis, index: index, count: count, insert: insert}
	if insert {
		data.engine = wb.manager.InsertRowColAt(ws.Name, index, count, axis)
		data.sheetData = ws.InsertRowColAt(axis, index, count)
	} else {
		data.engine = wb.manager.RemoveRowColAt(ws.Name, index, count, axis)
		data.sheetData = ws.RemoveRowColAt(axis, index, count)
	}
	wb.markAllDirty()
	return data, nil
}

// InsertRows inserts count empty rows before the 0-based row index
func (wb *Workbook) InsertRows(sheetName string, index, count int) (*WorkbookRestoreData, error) {
	return wb.structuralEdit(sheetName, AxisRow, index, count, true)
}

// InsertColumns inserts count empty columns before the 0-based column index
func (wb *Workbook) InsertColumns(sheetName string, index, count int) (*WorkbookRestoreData, error) {
	return wb.structuralEdit(sheetName, AxisColumn, index, count, true)
}

// RemoveRows removes count rows starting at the 0-based row index
func (wb *Workbook) RemoveRows(sheetName string, index, count int) (*WorkbookRestoreData, error) {
	return wb.structuralEdit(sheetName, AxisRow, index, count, false)
}

// RemoveColumns removes count columns starting at the 0-based column index
func (wb *Workbook) RemoveColumns(sheetName string, index, count int) (*WorkbookRestoreData, error) {
	return wb.structuralEdit(sheetName, AxisColumn, index, count, false)
}

// Restore undoes a structural edit. edits must be restored in the reverse
// order they were made.
func (wb *Workbook) Restore(data *WorkbookRestoreData) error {
	if data == nil {
		return nil
	}
	ws, exists := wb.sheets.Get(data.sheetName)
	if !exists {
		return NewApplicationError(NotFound, fmt.Sprintf("Worksheet not found: %s", data.sheetName))
	}
	if data.insert {
		ws.RemoveRowColAt(data.axis, data.index, data.count)
	} else {
		ws.InsertRowColAt(data.axis, data.index, data.count)
		for _, cell := range data.sheetData.removed {
			ws.SetCell(cell)
		}
	}
	wb.manager.Restore(data.engine)
	wb.markAllDirty()
	wb.logger.Debug("restored",
		slog.String("sheet", data.sheetName),
		slog.String("axis", data.axis.String()),
		slog.Int("index", data.index),
		slog.Int("count", data.count))
	return nil
}

// Calculate recalculates every dirty formula and every formula calling a
// volatile function, in dependency order. formulas on a cycle get #REF!.
func (wb *Workbook) Calculate() error {
	order, cycles := wb.manager.CalculationOrder()

	for _, v := range order {
		if v.Formula.IsVolatile(wb.functions) {
			wb.markDirty(v)
		}
	}

	circular := ErrorValue(ErrorKindInvalidReference, "Circular reference detected")
	for _, v := range cycles {
		if err := wb.store(v, circular); err != nil {
			return err
		}
	}

	evaluated := 0
	for _, v := range order {
		if _, dirty := wb.dirty[v]; !dirty {
			continue
		}
		env := &sheetEnvironment{workbook: wb, sheetName: v.SheetName}
		if err := wb.store(v, wb.evaluator.Evaluate(v.Formula, env)); err != nil {
			return err
		}
		evaluated++
	}
	clear(wb.dirty)

	wb.logger.Debug("calculated",
		slog.Int("formulas", len(order)+len(cycles)),
		slog.Int("evaluated", evaluated),
		slog.Int("circular", len(cycles)))
	return nil
}

func (wb *Workbook) store(v *FormulaVertex, value CellValue) error {
	if v.Kind == VertexNamed {
		wb.namedValues[v.Key()] = value
		return nil
	}
	ws, exists := wb.sheets.Get(v.SheetName)
	if !exists {
		return NewApplicationError(Internal, fmt.Sprintf("Formula %s lives on a missing worksheet", v.Key()))
	}
	cell := ws.GetCell(v.Row, v.Col)
	if cell == nil || cell.Formula != v.Formula {
		return NewApplicationError(Internal, fmt.Sprintf("Formula %s is out of sync with its cell", v.Key()))
	}
	cell.Value = value
	return nil
}

// Evaluate computes formula against the current values without storing it.
// unqualified references resolve against sheetName.
func (wb *Workbook) Evaluate(sheetName, formula string) (CellValue, *SyntaxTree) {
	if !strings.HasPrefix(formula, "=") {
		formula = "=" + formula
	}
	tree := ParseFormula(formula, wb.separators)
	env := &sheetEnvironment{workbook: wb, sheetName: sheetName}
	return wb.evaluator.Evaluate(tree, env), tree
}

// DependencyInfo describes the formula at address
func (wb *Workbook) DependencyInfo(address string) (DependencyInfo, bool, error) {
	addr, err := wb.ParseAddress(address)
	if err != nil {
		return DependencyInfo{}, false, err
	}
	info, ok := wb.manager.GetDependencyInfo(addr.Sheet, addr.Row, addr.Col)
	return info, ok, nil
}

// AllDependencyInfo describes every formula in the workbook
func (wb *Workbook) AllDependencyInfo() []DependencyInfo {
	return wb.manager.AllDependencyInfo()
}

// sheetEnvironment is the Environment seen by a formula living on sheetName
type sheetEnvironment struct {
	workbook  *Workbook
	sheetName string
}

var _ Environment = (*sheetEnvironment)(nil)

func (e *sheetEnvironment) resolve(sheetName string) (*Worksheet, bool) {
	if sheetName == "" {
		sheetName = e.sheetName
	}
	return e.workbook.sheets.Get(sheetName)
}

func (e *sheetEnvironment) GetCellValue(sheetName string, row, col int) CellValue {
	ws, exists := e.resolve(sheetName)
	if !exists {
		return ErrorValue(ErrorKindInvalidReference, "Worksheet not found")
	}
	if cell := ws.GetCell(row, col); cell != nil {
		return cell.Value
	}
	return EmptyValue()
}

func (e *sheetEnvironment) GetRangeValues(ref *Reference) [][]CellValue {
	ws, exists := e.resolve(ref.SheetName)
	if !exists {
		return [][]CellValue{{ErrorValue(ErrorKindInvalidReference, "Worksheet not found")}}
	}
	return NewCellRange(ws, ref.Region()).Rows()
}

func (e *sheetEnvironment) VariableExists(name string) bool {
	if _, exists := e.workbook.manager.NamedVertex(name); exists {
		return true
	}
	return e.workbook.variables.Contains(name)
}

// GetVariable prefers a named formula's last result over a constant
func (e *sheetEnvironment) GetVariable(name string) CellValue {
	if _, exists := e.workbook.manager.NamedVertex(name); exists {
		if value, computed := e.workbook.namedValues[nameKey(name)]; computed {
			return value
		}
		return EmptyValue()
	}
	value, _ := e.workbook.variables.Get(name)
	return value
}

func (e *sheetEnvironment) FunctionExists(name string) bool {
	return e.workbook.functions.Exists(name)
}

func (e *sheetEnvironment) GetFunctionDefinition(name string) *FunctionDefinition {
	return e.workbook.functions.Get(name)
}
