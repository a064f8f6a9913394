package spreadsheet

import (
	"math/rand/v2"
	"sort"
	"strings"
	"time"
)

// Environment supplies everything outside the formula itself: cell and range
// values, workbook variables and the function registry. sheetName "" means
// the sheet of the formula being evaluated.
type Environment interface {
	GetCellValue(sheetName string, row, col int) CellValue
	GetRangeValues(ref *Reference) [][]CellValue
	VariableExists(name string) bool
	GetVariable(name string) CellValue
	FunctionExists(name string) bool
	GetFunctionDefinition(name string) *FunctionDefinition
}

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// NewSeededRandomGenerator returns a deterministic generator owned by one
// workbook
func NewSeededRandomGenerator(seed uint64) RandomGenerator {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// CallContext is handed to every function call
type CallContext struct {
	Clock       Clock
	Random      RandomGenerator
	Environment Environment
}

// ParameterType is the shape an argument is converted to before the call
type ParameterType int

const (
	ParamAny ParameterType = iota
	ParamNumber
	ParamText
	ParamLogical
	ParamDate
	ParamArray
	ParamValues // referenced cells as an array, direct values as is
	ParamNumberSequence
	ParamLogicalSequence
)

type ParameterDefinition struct {
	Name        string
	Type        ParameterType
	Optional    bool
	IsRepeating bool
}

// FunctionDefinition describes a callable function. Call receives arguments
// already converted to the declared parameter types.
type FunctionDefinition struct {
	Name          string
	Parameters    []ParameterDefinition
	AcceptsErrors bool
	IsVolatile    bool
	Call          func(ctx *CallContext, args []CellValue) CellValue
}

// MinArity is the number of required, non-repeating parameters
func (f *FunctionDefinition) MinArity() int {
	n := 0
	for _, p := range f.Parameters {
		if !p.Optional && !p.IsRepeating {
			n++
		}
	}
	return n
}

// MaxArity is the parameter count, or -1 when the last parameter repeats
func (f *FunctionDefinition) MaxArity() int {
	if len(f.Parameters) > 0 && f.Parameters[len(f.Parameters)-1].IsRepeating {
		return -1
	}
	return len(f.Parameters)
}

// parameterFor returns the definition governing argument i
func (f *FunctionDefinition) parameterFor(i int) ParameterDefinition {
	if i < len(f.Parameters) {
		return f.Parameters[i]
	}
	if len(f.Parameters) > 0 {
		return f.Parameters[len(f.Parameters)-1]
	}
	return ParameterDefinition{Type: ParamAny}
}

// FunctionRegistry maps upper-cased names to definitions
type FunctionRegistry struct {
	functions map[string]*FunctionDefinition
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]*FunctionDefinition),
	}
}

// NewDefaultFunctionRegistry returns a registry holding every built-in
func NewDefaultFunctionRegistry() *FunctionRegistry {
	r := NewFunctionRegistry()
	registerBuiltins(r)
	registerMatrixBuiltins(r)
	return r
}

// Register adds or replaces a function
func (r *FunctionRegistry) Register(def *FunctionDefinition) {
	def.Name = strings.ToUpper(def.Name)
	r.functions[def.Name] = def
}

func (r *FunctionRegistry) Get(name string) *FunctionDefinition {
	if r == nil {
		return nil
	}
	return r.functions[strings.ToUpper(name)]
}

func (r *FunctionRegistry) Exists(name string) bool {
	return r.Get(name) != nil
}

// Names returns the registered names in sorted order
func (r *FunctionRegistry) Names() []string {
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
