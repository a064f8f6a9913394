package spreadsheet

import (
	"math"
	"strings"
	"testing"
)

// mapEnvironment serves cells of a single sheet from a map keyed by address
type mapEnvironment struct {
	cells     map[string]CellValue
	variables map[string]CellValue
	functions *FunctionRegistry
}

func newMapEnvironment() *mapEnvironment {
	return &mapEnvironment{
		cells:     make(map[string]CellValue),
		variables: make(map[string]CellValue),
		functions: NewDefaultFunctionRegistry(),
	}
}

func (e *mapEnvironment) GetCellValue(_ string, row, col int) CellValue {
	return e.cells[ColumnName(col)+formatNumber(float64(row+1))]
}

func (e *mapEnvironment) GetRangeValues(ref *Reference) [][]CellValue {
	region := ref.Region()
	rows := make([][]CellValue, region.Rows())
	for i := range rows {
		rows[i] = make([]CellValue, region.Columns())
		for j := range rows[i] {
			rows[i][j] = e.GetCellValue(ref.SheetName, region.Top+i, region.Left+j)
		}
	}
	return rows
}

func (e *mapEnvironment) VariableExists(name string) bool {
	_, ok := e.variables[strings.ToUpper(name)]
	return ok
}

func (e *mapEnvironment) GetVariable(name string) CellValue {
	return e.variables[strings.ToUpper(name)]
}

func (e *mapEnvironment) FunctionExists(name string) bool {
	return e.functions.Exists(name)
}

func (e *mapEnvironment) GetFunctionDefinition(name string) *FunctionDefinition {
	return e.functions.Get(name)
}

func evaluate(env Environment, formula string) CellValue {
	return NewEvaluator(nil, nil).Evaluate(parseFormula(formula), env)
}

func TestEvaluatorScalars(t *testing.T) {
	env := newMapEnvironment()
	env.cells["A1"] = NumberValue(2)
	env.cells["A2"] = NumberValue(3)
	env.cells["B1"] = TextValue("x")
	env.variables["RATE"] = NumberValue(0.5)

	tests := []struct {
		formula  string
		expected CellValue
	}{
		{"=1+2*3", NumberValue(7)},
		{"=-2^2", NumberValue(4)},
		{"=2^3^2", NumberValue(64)},
		{"=1&2*3", NumberValue(36)},
		{`="a"&1`, TextValue("a1")},
		{"=A1*A2", NumberValue(6)},
		{"=SUM(A1:A2)", NumberValue(5)},
		{"=A1:A1+1", NumberValue(3)},
		{"=C9+1", NumberValue(1)},
		{"=Rate*2", NumberValue(1)},
		{"=50%", NumberValue(0.5)},
		{"=!TRUE", LogicalValue(false)},
		{`="abc"="ABC"`, LogicalValue(true)},
		{`=1<"a"`, LogicalValue(true)},
		{`="a"<TRUE`, LogicalValue(true)},
		{"=C9=0", LogicalValue(true)},
		{`=IF(A1>1,"big","small")`, TextValue("big")},
		{`=IF(A1>5,"big")`, LogicalValue(false)},
		{`=IFERROR(1/0,"oops")`, TextValue("oops")},
		{"=ISERROR(B1+1)", LogicalValue(true)},
		{"=MOD(-3,2)", NumberValue(1)},
		{"=ROUND(3.14159,2)", NumberValue(3.14)},
		{"=CEILING(4.2,2)", NumberValue(6)},
		{`=LEN("héllo")`, NumberValue(5)},
		{`=TRIM("  a   b ")`, TextValue("a b")},
		{"=MEDIAN(4,1,3,2)", NumberValue(2.5)},
		{"=MODE(1,2,2,3,3)", NumberValue(2)},
		{`=COUNT(1,"2","x",TRUE)`, NumberValue(3)},
		{"=AND(A1:A2)", LogicalValue(true)},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			got := evaluate(env, tt.formula)
			if tt.expected.Type == CellValueNumber && got.Type == CellValueNumber {
				if math.Abs(got.Number()-tt.expected.Number()) > 1e-9 {
					t.Errorf("%s = %v, want %v", tt.formula, got, tt.expected)
				}
				return
			}
			if !got.Equal(tt.expected) {
				t.Errorf("%s = %v (%s), want %v (%s)", tt.formula, got, got.Type, tt.expected, tt.expected.Type)
			}
		})
	}
}

func TestEvaluatorErrors(t *testing.T) {
	env := newMapEnvironment()
	env.cells["A1"] = NumberValue(1)
	env.cells["A2"] = ErrorValue(ErrorKindDivideByZero, "")
	env.cells["B1"] = TextValue("x")

	tests := []struct {
		formula string
		kind    ErrorKind
	}{
		{"=1/0", ErrorKindDivideByZero},
		{"=A2+1", ErrorKindDivideByZero},
		{"=SUM(A1:A2)", ErrorKindDivideByZero},
		{"=B1+1", ErrorKindInvalidValue},
		{"=A1:A2+1", ErrorKindInvalidValue},
		{"=Missing", ErrorKindInvalidName},
		{"=NOPE(1)", ErrorKindInvalidName},
		{"=ABS()", ErrorKindNotApplicable},
		{"=ABS(1,2)", ErrorKindNotApplicable},
		{"=SUM(", ErrorKindNotApplicable},
		{"=#REF!+1", ErrorKindInvalidReference},
		{"=1+#N/A", ErrorKindNotApplicable},
		{"=SQRT(-1)", ErrorKindInvalidNumber},
		{"=0^0", ErrorKindInvalidNumber},
		{"=AVERAGE(B1:B2)", ErrorKindDivideByZero},
		{`=IF("maybe",1,2)`, ErrorKindInvalidValue},
		{"=MODE(1,2,3)", ErrorKindNotApplicable},
		{`=ABS("NaN")`, ErrorKindInvalidValue},
		{`=SQRT("-Infinity")`, ErrorKindInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			got := evaluate(env, tt.formula)
			if !got.IsError() || got.ErrorKind() != tt.kind {
				t.Errorf("%s = %v, want %s", tt.formula, got, tt.kind)
			}
		})
	}
}

func TestEvaluatorRangeResult(t *testing.T) {
	env := newMapEnvironment()
	env.cells["A1"] = NumberValue(1)
	env.cells["B2"] = TextValue("z")

	got := evaluate(env, "=A1:B2")
	expected := ArrayValue([][]CellValue{
		{NumberValue(1), EmptyValue()},
		{EmptyValue(), TextValue("z")},
	})
	if !got.Equal(expected) {
		t.Errorf("=A1:B2 = %v, want %v", got, expected)
	}

	if got := evaluate(env, "=A1"); !got.Equal(NumberValue(1)) {
		t.Errorf("=A1 = %v, want 1", got)
	}
}

func TestEvaluatorCustomFunction(t *testing.T) {
	env := newMapEnvironment()
	env.functions.Register(&FunctionDefinition{
		Name:       "double",
		Parameters: []ParameterDefinition{param("number", ParamNumber)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			return NumberValue(args[0].Number() * 2)
		},
	})
	if got := evaluate(env, `=DOUBLE("21")`); !got.Equal(NumberValue(42)) {
		t.Errorf("DOUBLE(\"21\") = %v, want 42", got)
	}
	if got := evaluate(env, `=DOUBLE("x")`); got.ErrorKind() != ErrorKindInvalidValue {
		t.Errorf("DOUBLE(\"x\") = %v, want #VALUE!", got)
	}
}

func assertMatrix(t *testing.T, got CellValue, expected [][]float64) {
	t.Helper()
	if got.Type != CellValueArray {
		t.Fatalf("got %v (%s), want an array", got, got.Type)
	}
	rows := got.Array()
	if len(rows) != len(expected) {
		t.Fatalf("got %d rows, want %d", len(rows), len(expected))
	}
	for i := range expected {
		if len(rows[i]) != len(expected[i]) {
			t.Fatalf("row %d has %d columns, want %d", i, len(rows[i]), len(expected[i]))
		}
		for j, want := range expected[i] {
			if math.Abs(rows[i][j].Number()-want) > 1e-9 {
				t.Errorf("element (%d,%d) = %v, want %v", i, j, rows[i][j], want)
			}
		}
	}
}

func TestMatrixFunctions(t *testing.T) {
	env := newMapEnvironment()
	env.cells["A1"] = NumberValue(1)
	env.cells["B1"] = NumberValue(2)
	env.cells["A2"] = NumberValue(3)
	env.cells["B2"] = NumberValue(4)

	t.Run("MMULT", func(t *testing.T) {
		assertMatrix(t, evaluate(env, "=MMULT(A1:B2,{5;6})"), [][]float64{{17}, {39}})
		assertMatrix(t, evaluate(env, "=MMULT({1,2,3},{1;1;1})"), [][]float64{{6}})
	})

	t.Run("MMULT shape mismatch", func(t *testing.T) {
		if got := evaluate(env, "=MMULT({1,2},{1,2})"); got.ErrorKind() != ErrorKindInvalidValue {
			t.Errorf("MMULT({1,2},{1,2}) = %v, want #VALUE!", got)
		}
		if got := evaluate(env, `=MMULT({1,"a"},{1;2})`); got.ErrorKind() != ErrorKindInvalidValue {
			t.Errorf("MMULT with text = %v, want #VALUE!", got)
		}
	})

	t.Run("MDETERM", func(t *testing.T) {
		got := evaluate(env, "=MDETERM(A1:B2)")
		if math.Abs(got.Number()-(-2)) > 1e-9 {
			t.Errorf("MDETERM = %v, want -2", got)
		}
		if got := evaluate(env, "=MDETERM({1,2,3})"); got.ErrorKind() != ErrorKindInvalidValue {
			t.Errorf("MDETERM of a row = %v, want #VALUE!", got)
		}
	})

	t.Run("MINVERSE", func(t *testing.T) {
		assertMatrix(t, evaluate(env, "=MINVERSE({4,7;2,6})"), [][]float64{{0.6, -0.7}, {-0.2, 0.4}})
		if got := evaluate(env, "=MINVERSE({1,2;2,4})"); got.ErrorKind() != ErrorKindInvalidNumber {
			t.Errorf("MINVERSE of a singular matrix = %v, want #NUM!", got)
		}
	})

	t.Run("TRANSPOSE", func(t *testing.T) {
		assertMatrix(t, evaluate(env, "=TRANSPOSE({1,2,3})"), [][]float64{{1}, {2}, {3}})
		assertMatrix(t, evaluate(env, "=TRANSPOSE(A1:B2)"), [][]float64{{1, 3}, {2, 4}})
	})

	t.Run("Scalar argument is a 1x1 array", func(t *testing.T) {
		assertMatrix(t, evaluate(env, "=MMULT(2,3)"), [][]float64{{6}})
	})
}
