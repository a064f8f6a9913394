package spreadsheet

import (
	"math"
	"testing"
	"time"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

// sequenceRandom returns its values in order, cycling
type sequenceRandom struct {
	values []float64
	next   int
}

func (r *sequenceRandom) Float64() float64 {
	v := r.values[r.next%len(r.values)]
	r.next++
	return v
}

type WorkbookTestCase struct {
	t        *testing.T
	name     string
	workbook *Workbook
	restores []*WorkbookRestoreData
	err      error
	skipped  bool
}

func NewWorkbookTestCase(t *testing.T, name string, opts ...WorkbookOption) *WorkbookTestCase {
	tc := &WorkbookTestCase{
		t:        t,
		name:     name,
		workbook: NewWorkbook(opts...),
	}
	return tc.AddSheet("Sheet1")
}

func (tc *WorkbookTestCase) Skip(reason string) *WorkbookTestCase {
	if !tc.skipped {
		tc.t.Skipf("%s: %s", tc.name, reason)
		tc.skipped = true
	}
	return tc
}

func (tc *WorkbookTestCase) Set(address, content string) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.SetCell(address, content)
	if tc.err != nil {
		tc.t.Errorf("%s: SetCell(%s) failed: %v", tc.name, address, tc.err)
	}
	return tc
}

func (tc *WorkbookTestCase) Clear(address string) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.ClearCell(address)
	if tc.err != nil {
		tc.t.Errorf("%s: ClearCell(%s) failed: %v", tc.name, address, tc.err)
	}
	return tc
}

func (tc *WorkbookTestCase) AddSheet(name string) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.AddSheet(name)
	return tc
}

func (tc *WorkbookTestCase) SetVariable(name string, value CellValue) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.workbook.SetVariable(name, value)
	return tc
}

func (tc *WorkbookTestCase) RemoveVariable(name string) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	if !tc.workbook.RemoveVariable(name) {
		tc.t.Errorf("%s: RemoveVariable(%s) found nothing to remove", tc.name, name)
	}
	return tc
}

func (tc *WorkbookTestCase) SetNamedFormula(name, formula string) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.SetNamedFormula(name, "Sheet1", formula)
	return tc
}

func (tc *WorkbookTestCase) structural(edit func() (*WorkbookRestoreData, error)) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	data, err := edit()
	tc.err = err
	if data != nil {
		tc.restores = append(tc.restores, data)
	}
	return tc
}

func (tc *WorkbookTestCase) InsertRows(sheet string, index, count int) *WorkbookTestCase {
	return tc.structural(func() (*WorkbookRestoreData, error) {
		return tc.workbook.InsertRows(sheet, index, count)
	})
}

func (tc *WorkbookTestCase) InsertColumns(sheet string, index, count int) *WorkbookTestCase {
	return tc.structural(func() (*WorkbookRestoreData, error) {
		return tc.workbook.InsertColumns(sheet, index, count)
	})
}

func (tc *WorkbookTestCase) RemoveRows(sheet string, index, count int) *WorkbookTestCase {
	return tc.structural(func() (*WorkbookRestoreData, error) {
		return tc.workbook.RemoveRows(sheet, index, count)
	})
}

func (tc *WorkbookTestCase) RemoveColumns(sheet string, index, count int) *WorkbookTestCase {
	return tc.structural(func() (*WorkbookRestoreData, error) {
		return tc.workbook.RemoveColumns(sheet, index, count)
	})
}

// Restore undoes the most recent structural edit
func (tc *WorkbookTestCase) Restore() *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	if len(tc.restores) == 0 {
		tc.t.Errorf("%s: nothing to restore", tc.name)
		return tc
	}
	last := tc.restores[len(tc.restores)-1]
	tc.restores = tc.restores[:len(tc.restores)-1]
	tc.err = tc.workbook.Restore(last)
	return tc
}

func (tc *WorkbookTestCase) Run() *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.Calculate()
	if tc.err != nil {
		tc.t.Errorf("%s: Calculate() failed: %v", tc.name, tc.err)
	}
	return tc
}

func (tc *WorkbookTestCase) get(address string) (CellValue, bool) {
	actual, err := tc.workbook.Get(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return CellValue{}, false
	}
	return actual, true
}

func (tc *WorkbookTestCase) AssertCellEq(address string, expected any) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, ok := tc.get(address)
	if !ok {
		return tc
	}

	switch exp := expected.(type) {
	case float64:
		if !actual.IsNumeric() || math.Abs(actual.Number()-exp) > 1e-10 {
			tc.t.Errorf("%s: Cell %s = %v (%s), want %v", tc.name, address, actual, actual.Type, exp)
		}
	case int:
		if !actual.IsNumeric() || math.Abs(actual.Number()-float64(exp)) > 1e-10 {
			tc.t.Errorf("%s: Cell %s = %v (%s), want %v", tc.name, address, actual, actual.Type, exp)
		}
	case string:
		if actual.Type != CellValueText || actual.Text() != exp {
			tc.t.Errorf("%s: Cell %s = %v (%s), want %q", tc.name, address, actual, actual.Type, exp)
		}
	case bool:
		if actual.Type != CellValueLogical || actual.Logical() != exp {
			tc.t.Errorf("%s: Cell %s = %v (%s), want %v", tc.name, address, actual, actual.Type, exp)
		}
	case CellValue:
		if !actual.Equal(exp) {
			tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, exp)
		}
	default:
		tc.t.Fatalf("%s: unsupported expectation %T", tc.name, expected)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertCellEmpty(address string) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, ok := tc.get(address)
	if ok && !actual.IsEmpty() {
		tc.t.Errorf("%s: Cell %s = %v, want empty", tc.name, address, actual)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertCellErr(address string, kind ErrorKind) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, ok := tc.get(address)
	if !ok {
		return tc
	}
	if !actual.IsError() || actual.ErrorKind() != kind {
		tc.t.Errorf("%s: Cell %s = %v, want error %v", tc.name, address, actual, kind)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertCellFn(address string, fn func(value CellValue, t *testing.T)) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	if actual, ok := tc.get(address); ok {
		fn(actual, tc.t)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertFormula(address, expected string) *WorkbookTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, err := tc.workbook.GetFormula(address)
	if err != nil {
		tc.t.Errorf("%s: GetFormula(%s) failed: %v", tc.name, address, err)
		return tc
	}
	if actual != expected {
		tc.t.Errorf("%s: Formula at %s = %q, want %q", tc.name, address, actual, expected)
	}
	return tc
}

func (tc *WorkbookTestCase) ExpectAppError(expectedCode AppErrorCode) *WorkbookTestCase {
	if tc.skipped {
		return tc
	}
	if tc.err == nil {
		tc.t.Errorf("%s: Expected error with code %v, but got no error", tc.name, expectedCode)
		return tc
	}
	if appErr, ok := tc.err.(*AppError); ok {
		if appErr.Code != expectedCode {
			tc.t.Errorf("%s: Got error code %v, want %v", tc.name, appErr.Code, expectedCode)
		}
	} else {
		tc.t.Errorf("%s: Got error %v, want AppError with code %v", tc.name, tc.err, expectedCode)
	}
	tc.err = nil
	return tc
}

func (tc *WorkbookTestCase) End() {
}

func TestLexingAndParsing(t *testing.T) {
	t.Run("ValidFormulas", func(t *testing.T) {
		NewWorkbookTestCase(t, "Basic arithmetic").
			Set("Sheet1!A1", "=1+2").
			Run().
			AssertCellEq("Sheet1!A1", 3).
			End()

		NewWorkbookTestCase(t, "Cell reference").
			Set("Sheet1!A1", "10").
			Set("Sheet1!A2", "=A1").
			Run().
			AssertCellEq("Sheet1!A2", 10).
			End()

		NewWorkbookTestCase(t, "Function call").
			Set("Sheet1!A1", "5").
			Set("Sheet1!A2", "10").
			Set("Sheet1!A3", "=SUM(A1:A2)").
			Run().
			AssertCellEq("Sheet1!A3", 15).
			End()

		NewWorkbookTestCase(t, "String literal").
			Set("Sheet1!A1", `="hello"`).
			Run().
			AssertCellEq("Sheet1!A1", "hello").
			End()

		NewWorkbookTestCase(t, "Boolean literal").
			Set("Sheet1!A1", "=TRUE").
			Set("Sheet1!A2", "=false").
			Run().
			AssertCellEq("Sheet1!A1", true).
			AssertCellEq("Sheet1!A2", false).
			End()

		NewWorkbookTestCase(t, "Worksheet reference").
			AddSheet("Sheet2").
			Set("Sheet2!A1", "42").
			Set("Sheet1!A1", "=Sheet2!A1").
			Run().
			AssertCellEq("Sheet1!A1", 42).
			End()

		NewWorkbookTestCase(t, "Multiple unary plus operator").
			Set("Sheet1!A1", "=1++2").
			Set("Sheet1!A2", "=1++++++3").
			Set("Sheet1!A3", "=++++1++++++4").
			Run().
			AssertCellEq("Sheet1!A1", 3).
			AssertCellEq("Sheet1!A2", 4).
			AssertCellEq("Sheet1!A3", 5).
			End()
	})

	t.Run("InvalidFormulas", func(t *testing.T) {
		for _, formula := range []string{"=", "=SUM(", "=A1:", `="hello`, "=1+", "=(1"} {
			NewWorkbookTestCase(t, formula).
				Set("Sheet1!B1", formula).
				Run().
				AssertCellErr("Sheet1!B1", ErrorKindNotApplicable).
				End()
		}
	})
}

func TestBasicTypes(t *testing.T) {
	t.Run("Numbers", func(t *testing.T) {
		NewWorkbookTestCase(t, "Integer").
			Set("A1", "42").
			Run().
			AssertCellEq("A1", 42).
			End()

		NewWorkbookTestCase(t, "Float").
			Set("A1", "3.14159").
			Run().
			AssertCellEq("A1", 3.14159).
			End()

		NewWorkbookTestCase(t, "Negative").
			Set("A1", "-123.45").
			Run().
			AssertCellEq("A1", -123.45).
			End()

		NewWorkbookTestCase(t, "Scientific notation").
			Set("A1", "=1.23E5").
			Run().
			AssertCellEq("A1", 123000.0).
			End()

		NewWorkbookTestCase(t, "Decimal comma", WithSeparators(EuropeanSeparatorSettings())).
			Set("A1", "1,5").
			Set("A2", "=SUM(A1;2,5)").
			Run().
			AssertCellEq("A1", 1.5).
			AssertCellEq("A2", 4).
			End()

		NewWorkbookTestCase(t, "Number-like text stays text").
			Set("A1", "Inf").
			Set("A2", "NaN").
			Set("A3", "0x10").
			Set("B1", `=ABS("inf")`).
			Set("B2", `=1+"0x1p3"`).
			Run().
			AssertCellEq("A1", "Inf").
			AssertCellEq("A2", "NaN").
			AssertCellEq("A3", "0x10").
			AssertCellErr("B1", ErrorKindInvalidValue).
			AssertCellErr("B2", ErrorKindInvalidValue).
			End()
	})

	t.Run("Booleans", func(t *testing.T) {
		NewWorkbookTestCase(t, "Literal").
			Set("A1", "TRUE").
			Set("A2", "false").
			Run().
			AssertCellEq("A1", true).
			AssertCellEq("A2", false).
			End()
	})

	t.Run("Strings", func(t *testing.T) {
		NewWorkbookTestCase(t, "Simple string").
			Set("A1", "Hello World").
			Run().
			AssertCellEq("A1", "Hello World").
			End()

		NewWorkbookTestCase(t, "Quote escape").
			Set("A1", `="say ""hi"""`).
			Run().
			AssertCellEq("A1", `say "hi"`).
			End()
	})

	t.Run("Errors", func(t *testing.T) {
		NewWorkbookTestCase(t, "Error literal input").
			Set("A1", "#N/A").
			Set("A2", "=#DIV/0!").
			Run().
			AssertCellErr("A1", ErrorKindNotApplicable).
			AssertCellErr("A2", ErrorKindDivideByZero).
			End()
	})

	t.Run("Empty", func(t *testing.T) {
		NewWorkbookTestCase(t, "Empty cell").
			Run().
			AssertCellEmpty("A1").
			End()

		NewWorkbookTestCase(t, "Cleared cell").
			Set("A1", "10").
			Run().
			Clear("A1").
			Run().
			AssertCellEmpty("A1").
			End()

		NewWorkbookTestCase(t, "Reference to empty cell").
			Set("A1", "=B1").
			Run().
			AssertCellEq("A1", EmptyValue()).
			End()
	})
}

func TestBinaryOperators(t *testing.T) {
	cases := []struct {
		formula  string
		expected any
	}{
		{"=2+3", 5},
		{"=10-4", 6},
		{"=3*4", 12},
		{"=10/4", 2.5},
		{"=2^3", 8},
		{"=2+3*4", 14},
		{"=(2+3)*4", 20},
		{"=-2^2", 4},
		{"=2^3^2", 64},
		{"=10-2-3", 5},
		{"=50%", 0.5},
		{"=200*10%", 20},
		{`="a"&"b"`, "ab"},
		{"=1&2", "12"},
		{"=1+2&3", 24},
		{`="3"+4`, 7},
		{"=TRUE+1", 2},
		{"=1<2", true},
		{"=2>=3", false},
		{"=1<>1", false},
		{`="a"="A"`, true},
		{`="b">"a"`, true},
		{`=1<"a"`, true},
		{`="z"<TRUE`, true},
		{"=!TRUE", false},
		{"=-(-3)", 3},
	}
	for _, c := range cases {
		t.Run(c.formula, func(t *testing.T) {
			NewWorkbookTestCase(t, c.formula).
				Set("A1", c.formula).
				Run().
				AssertCellEq("A1", c.expected).
				End()
		})
	}

	t.Run("Errors", func(t *testing.T) {
		NewWorkbookTestCase(t, "Division by zero").
			Set("A1", "=1/0").
			Set("A2", "=1/B1").
			Set("A3", `="a"*2`).
			Set("A4", "=0^0").
			Set("A5", "=#REF!+1/0").
			Run().
			AssertCellErr("A1", ErrorKindDivideByZero).
			AssertCellErr("A2", ErrorKindDivideByZero).
			AssertCellErr("A3", ErrorKindInvalidValue).
			AssertCellErr("A4", ErrorKindInvalidNumber).
			AssertCellErr("A5", ErrorKindInvalidReference).
			End()
	})

	t.Run("EmptyOperands", func(t *testing.T) {
		NewWorkbookTestCase(t, "Empty compares as zero or empty text").
			Set("A1", "=B1=0").
			Set("A2", `=B1=""`).
			Set("A3", "=B1+1").
			Run().
			AssertCellEq("A1", true).
			AssertCellEq("A2", true).
			AssertCellEq("A3", 1).
			End()
	})

	t.Run("RangeAsScalar", func(t *testing.T) {
		NewWorkbookTestCase(t, "No implicit intersection").
			Set("A1", "1").
			Set("A2", "2").
			Set("B1", "=A1:A2+1").
			Run().
			AssertCellErr("B1", ErrorKindInvalidValue).
			End()
	})
}

func TestAggregationFunctions(t *testing.T) {
	base := func(t *testing.T, name string) *WorkbookTestCase {
		return NewWorkbookTestCase(t, name).
			Set("A1", "1").
			Set("A2", "2").
			Set("A3", "3").
			Set("A4", "x").
			Set("A5", "TRUE")
	}

	cases := []struct {
		formula  string
		expected any
	}{
		{"=SUM(A1:A5)", 6},
		{"=SUM(A1,A2,10)", 13},
		{"=SUM(A1:A3,{4,5})", 15},
		{"=AVERAGE(A1:A5)", 2},
		{"=COUNT(A1:A5)", 3},
		{`=COUNT(1,"x",TRUE)`, 2},
		{"=COUNTA(A1:A6)", 5},
		{"=MAX(A1:A5)", 3},
		{"=MIN(A1:A5)", 1},
		{"=MAX(C1:C3)", 0},
		{"=MEDIAN(A1:A3)", 2},
		{"=MEDIAN(1,2,3,4)", 2.5},
		{"=MODE(1,2,2,3,3)", 2},
		{"=SUM(A:A)", 6},
		{"=SUM(2:2)", 2},
		{"=SUM(A4)", 0},
		{"=SUM(A1,A4)", 1},
		{"=SUM(A5)", 0},
		{`=SUM("3",TRUE)`, 4},
		{"=COUNT(A4)", 0},
		{"=COUNT(A5)", 0},
		{"=COUNTA(A4,A6)", 1},
		{"=MAX(A1,A4)", 1},
	}
	for _, c := range cases {
		t.Run(c.formula, func(t *testing.T) {
			base(t, c.formula).
				Set("B1", c.formula).
				Run().
				AssertCellEq("B1", c.expected).
				End()
		})
	}

	t.Run("Errors", func(t *testing.T) {
		base(t, "Aggregate errors").
			Set("C1", "=1/0").
			Set("B1", "=AVERAGE(D1:D3)").
			Set("B2", "=SUM(A1:A3,C1)").
			Set("B3", `=SUM("abc")`).
			Set("B4", "=MEDIAN(D1:D3)").
			Set("B5", "=MODE(1,2,3)").
			Set("B6", "=COUNT(C1,A1)").
			Run().
			AssertCellErr("B1", ErrorKindDivideByZero).
			AssertCellErr("B2", ErrorKindDivideByZero).
			AssertCellErr("B3", ErrorKindInvalidValue).
			AssertCellErr("B4", ErrorKindInvalidNumber).
			AssertCellErr("B5", ErrorKindNotApplicable).
			AssertCellEq("B6", 1).
			End()
	})
}

func TestLogicalFunctions(t *testing.T) {
	cases := []struct {
		formula  string
		expected any
	}{
		{`=IF(A1>1,"big","small")`, "big"},
		{`=IF(A1>5,"big","small")`, "small"},
		{"=IF(FALSE,1)", false},
		{"=IF(TRUE,1,1/0)", 1},
		{"=IF(A1,A1*2,0)", 4},
		{`=IFERROR(1/0,"oops")`, "oops"},
		{"=IFERROR(5,0)", 5},
		{"=ISERROR(1/0)", true},
		{"=ISERROR(1)", false},
		{"=AND(TRUE,FALSE)", false},
		{"=AND(A1:A2)", true},
		{"=OR(FALSE,TRUE)", true},
		{"=OR(0,0)", false},
		{"=NOT(TRUE)", false},
		{"=NOT(0)", true},
		{"=AND(A1,A3)", true},
		{"=OR(A3,A2)", true},
	}
	for _, c := range cases {
		t.Run(c.formula, func(t *testing.T) {
			NewWorkbookTestCase(t, c.formula).
				Set("A1", "2").
				Set("A2", "1").
				Set("A3", "x").
				Set("B1", c.formula).
				Run().
				AssertCellEq("B1", c.expected).
				End()
		})
	}

	NewWorkbookTestCase(t, "IF propagates the chosen branch error").
		Set("B1", "=IF(TRUE,1/0,1)").
		Set("B2", `=IF("maybe",1,2)`).
		Set("B3", "=AND(C1:C2)").
		Set("C3", "x").
		Set("B4", "=AND(C3)").
		Run().
		AssertCellErr("B1", ErrorKindDivideByZero).
		AssertCellErr("B2", ErrorKindInvalidValue).
		AssertCellErr("B3", ErrorKindInvalidValue).
		AssertCellErr("B4", ErrorKindInvalidValue).
		End()
}

func TestTextFunctions(t *testing.T) {
	cases := []struct {
		formula  string
		expected any
	}{
		{`=CONCATENATE("a",1,TRUE)`, "a1TRUE"},
		{`=LEN("hello")`, 5},
		{`=LEN("héllo")`, 5},
		{`=UPPER("abc")`, "ABC"},
		{`=LOWER("ABC")`, "abc"},
		{`=TRIM("  a   b ")`, "a b"},
		{`=LEN(A1)`, 3},
	}
	for _, c := range cases {
		t.Run(c.formula, func(t *testing.T) {
			NewWorkbookTestCase(t, c.formula).
				Set("A1", "123").
				Set("B1", c.formula).
				Run().
				AssertCellEq("B1", c.expected).
				End()
		})
	}
}

func TestMathFunctions(t *testing.T) {
	cases := []struct {
		formula  string
		expected any
	}{
		{"=ABS(-3)", 3},
		{"=SQRT(16)", 4},
		{"=ROUND(3.14159,2)", 3.14},
		{"=ROUND(2.5)", 3},
		{"=FLOOR(7,2)", 6},
		{"=CEILING(7,2)", 8},
		{"=CEILING(4.2)", 5},
		{"=POWER(2,10)", 1024},
		{"=MOD(7,3)", 1},
		{"=MOD(-3,2)", 1},
		{"=MOD(3,-2)", -1},
		{"=PI()", math.Pi},
		{`=ABS("-2")`, 2},
	}
	for _, c := range cases {
		t.Run(c.formula, func(t *testing.T) {
			NewWorkbookTestCase(t, c.formula).
				Set("A1", c.formula).
				Run().
				AssertCellEq("A1", c.expected).
				End()
		})
	}

	NewWorkbookTestCase(t, "Math errors").
		Set("A1", "=SQRT(-1)").
		Set("A2", "=FLOOR(7,0)").
		Set("A3", "=MOD(1,0)").
		Set("A4", "=POWER(0,0)").
		Set("A5", `=ABS("x")`).
		Run().
		AssertCellErr("A1", ErrorKindInvalidNumber).
		AssertCellErr("A2", ErrorKindDivideByZero).
		AssertCellErr("A3", ErrorKindDivideByZero).
		AssertCellErr("A4", ErrorKindInvalidNumber).
		AssertCellErr("A5", ErrorKindInvalidValue).
		End()
}

func TestDateFunctions(t *testing.T) {
	NewWorkbookTestCase(t, "DATE").
		Set("A1", "=DATE(2024,1,15)").
		Set("A2", "=DATE(2024,13,1)").
		Set("A3", "=DATE(2024,1,15)+1").
		Set("A4", "=DATE(124,1,1)").
		Run().
		AssertCellFn("A1", func(value CellValue, t *testing.T) {
			if value.Type != CellValueDate || value.Number() != 45306 {
				t.Errorf("DATE(2024,1,15) = %v (%s), want date serial 45306", value, value.Type)
			}
		}).
		AssertCellEq("A2", 45658).
		AssertCellEq("A3", 45307).
		AssertCellFn("A4", func(value CellValue, t *testing.T) {
			if value.Date().Year() != 2024 {
				t.Errorf("DATE(124,1,1) = %v, want year 2024", value)
			}
		}).
		End()
}

func TestVolatileFunctions(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

	NewWorkbookTestCase(t, "NOW and TODAY", WithClock(fixedClock{now: now})).
		Set("A1", "=NOW()").
		Set("A2", "=TODAY()").
		Run().
		AssertCellFn("A1", func(value CellValue, t *testing.T) {
			if value.Type != CellValueDate || !value.Date().Equal(now) {
				t.Errorf("NOW() = %v, want %v", value, now)
			}
		}).
		AssertCellEq("A2", DateValue(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))).
		End()

	random := &sequenceRandom{values: []float64{0.25, 0.75}}
	NewWorkbookTestCase(t, "RAND recalculates every pass", WithRandom(random)).
		Set("A1", "=RAND()").
		Set("A2", "=A1*4").
		Run().
		AssertCellEq("A1", 0.25).
		AssertCellEq("A2", 1).
		Run().
		AssertCellEq("A1", 0.75).
		AssertCellEq("A2", 3).
		End()

	NewWorkbookTestCase(t, "Seeded RAND", WithRandom(NewSeededRandomGenerator(7))).
		Set("A1", "=RAND()").
		Run().
		AssertCellFn("A1", func(value CellValue, t *testing.T) {
			if n := value.Number(); n < 0 || n >= 1 {
				t.Errorf("RAND() = %v, want a number in [0,1)", value)
			}
		}).
		End()
}

func TestCellReferences(t *testing.T) {
	NewWorkbookTestCase(t, "Reference forms").
		AddSheet("My Sheet").
		Set("'My Sheet'!A1", "7").
		Set("A1", "42").
		Set("B1", "=$A$1").
		Set("B2", "='My Sheet'!A1*2").
		Set("B3", "=SUM('My Sheet'!A1:A3)").
		Set("B4", "=a1").
		Run().
		AssertCellEq("B1", 42).
		AssertCellEq("B2", 14).
		AssertCellEq("B3", 7).
		AssertCellEq("B4", 42).
		End()

	NewWorkbookTestCase(t, "Range result is an array").
		Set("A1", "1").
		Set("A2", "2").
		Set("B1", "=A1:A2").
		Set("B2", "=TRANSPOSE(A1:A2)").
		Run().
		AssertCellEq("B1", ArrayValue([][]CellValue{{NumberValue(1)}, {NumberValue(2)}})).
		AssertCellEq("B2", ArrayValue([][]CellValue{{NumberValue(1), NumberValue(2)}})).
		End()

	NewWorkbookTestCase(t, "Unknown targets").
		Set("A1", "=Nope!A1").
		Set("A2", "=FOO(1)").
		Set("A3", "=undefined_name").
		Set("A4", "=ABS(1,2)").
		Set("A5", "=ABS()").
		Run().
		AssertCellErr("A1", ErrorKindInvalidReference).
		AssertCellErr("A2", ErrorKindInvalidName).
		AssertCellErr("A3", ErrorKindInvalidName).
		AssertCellErr("A4", ErrorKindNotApplicable).
		AssertCellErr("A5", ErrorKindNotApplicable).
		End()

	NewWorkbookTestCase(t, "Sheet added after the formula").
		Set("A1", "=Later!A1+1").
		Run().
		AssertCellErr("A1", ErrorKindInvalidReference).
		AddSheet("Later").
		Set("Later!A1", "4").
		Run().
		AssertCellEq("A1", 5).
		End()
}

func TestUpdateAndRecalculation(t *testing.T) {
	NewWorkbookTestCase(t, "Chain").
		Set("A1", "1").
		Set("B1", "=A1*2").
		Set("C1", "=B1+1").
		Run().
		AssertCellEq("B1", 2).
		AssertCellEq("C1", 3).
		Set("A1", "5").
		Run().
		AssertCellEq("B1", 10).
		AssertCellEq("C1", 11).
		Clear("A1").
		Run().
		AssertCellEq("B1", 0).
		AssertCellEq("C1", 1).
		End()

	NewWorkbookTestCase(t, "Formula replaced by a constant").
		Set("A1", "1").
		Set("B1", "=A1*2").
		Set("C1", "=B1+1").
		Run().
		Set("B1", "7").
		Run().
		AssertCellEq("C1", 8).
		AssertFormula("B1", "").
		End()

	NewWorkbookTestCase(t, "Range dependency").
		Set("A1", "1").
		Set("A2", "2").
		Set("B1", "=SUM(A1:A10)").
		Run().
		AssertCellEq("B1", 3).
		Set("A10", "100").
		Run().
		AssertCellEq("B1", 103).
		End()

	NewWorkbookTestCase(t, "Formula order independent of insertion order").
		Set("C1", "=B1+1").
		Set("B1", "=A1+1").
		Set("A1", "1").
		Run().
		AssertCellEq("C1", 3).
		End()
}

func TestCircularReferences(t *testing.T) {
	NewWorkbookTestCase(t, "Two cell cycle").
		Set("A1", "=B1").
		Set("B1", "=A1").
		Set("C1", "=A1+1").
		Run().
		AssertCellErr("A1", ErrorKindInvalidReference).
		AssertCellErr("B1", ErrorKindInvalidReference).
		AssertCellErr("C1", ErrorKindInvalidReference).
		Set("B1", "1").
		Run().
		AssertCellEq("A1", 1).
		AssertCellEq("C1", 2).
		End()

	NewWorkbookTestCase(t, "Self reference").
		Set("A1", "=A1+1").
		Set("B1", "=SUM(B1:B2)").
		Run().
		AssertCellErr("A1", ErrorKindInvalidReference).
		AssertCellErr("B1", ErrorKindInvalidReference).
		End()
}

func TestVariablesAndNamedFormulas(t *testing.T) {
	NewWorkbookTestCase(t, "Variables").
		SetVariable("TaxRate", NumberValue(0.2)).
		Set("A1", "100").
		Set("B1", "=A1*TaxRate").
		Set("B2", "=A1*taxrate").
		Run().
		AssertCellEq("B1", 20).
		AssertCellEq("B2", 20).
		SetVariable("TAXRATE", NumberValue(0.5)).
		Run().
		AssertCellEq("B1", 50).
		RemoveVariable("TaxRate").
		Run().
		AssertCellErr("B1", ErrorKindInvalidName).
		End()

	NewWorkbookTestCase(t, "Named formula").
		Set("A1", "1").
		Set("A2", "2").
		Set("A3", "3").
		SetNamedFormula("Total", "=SUM(A1:A3)").
		Set("B1", "=Total*2").
		Run().
		AssertCellEq("B1", 12).
		Set("A2", "20").
		Run().
		AssertCellEq("B1", 48).
		End()

	NewWorkbookTestCase(t, "Named formula defined after use").
		Set("A1", "5").
		Set("B1", "=Double+1").
		Run().
		AssertCellErr("B1", ErrorKindInvalidName).
		SetNamedFormula("Double", "=A1*2").
		Run().
		AssertCellEq("B1", 11).
		End()
}

func TestStructuralEdits(t *testing.T) {
	NewWorkbookTestCase(t, "Insert row moves formula and reference").
		Set("A1", "1").
		Set("B2", "=A1").
		Run().
		InsertRows("Sheet1", 0, 1).
		Run().
		AssertFormula("B3", "=A2").
		AssertCellEq("B3", 1).
		AssertCellEmpty("B2").
		Restore().
		Run().
		AssertFormula("B2", "=A1").
		AssertCellEq("B2", 1).
		AssertCellEmpty("B3").
		End()

	NewWorkbookTestCase(t, "Insert row inside a range grows it").
		Set("A1", "1").
		Set("A2", "2").
		Set("A3", "3").
		Set("B1", "=SUM(A1:A3)").
		InsertRows("Sheet1", 1, 1).
		Set("A2", "10").
		Run().
		AssertFormula("B1", "=SUM(A1:A4)").
		AssertCellEq("B1", 16).
		End()

	NewWorkbookTestCase(t, "Remove rows shrinks a range").
		Set("A1", "1").
		Set("A2", "2").
		Set("A3", "3").
		Set("A4", "4").
		Set("A5", "5").
		Set("B1", "=SUM(A1:A5)").
		RemoveRows("Sheet1", 1, 2).
		Run().
		AssertFormula("B1", "=SUM(A1:A3)").
		AssertCellEq("B1", 10).
		Restore().
		Run().
		AssertFormula("B1", "=SUM(A1:A5)").
		AssertCellEq("B1", 15).
		End()

	NewWorkbookTestCase(t, "Removing a referenced row invalidates the reference").
		Set("A1", "1").
		Set("A2", "2").
		Set("B3", "=A1+A2").
		RemoveRows("Sheet1", 0, 1).
		Run().
		AssertFormula("B2", "=#REF!+A1").
		AssertCellErr("B2", ErrorKindInvalidReference).
		Restore().
		Run().
		AssertFormula("B3", "=A1+A2").
		AssertCellEq("B3", 3).
		End()

	NewWorkbookTestCase(t, "Removing a formula row").
		Set("A1", "1").
		Set("A2", "=A1*2").
		Set("A3", "=A2+1").
		Run().
		RemoveRows("Sheet1", 1, 1).
		Run().
		AssertFormula("A2", "=#REF!+1").
		AssertCellErr("A2", ErrorKindInvalidReference).
		Restore().
		Run().
		AssertFormula("A2", "=A1*2").
		AssertCellEq("A2", 2).
		AssertCellEq("A3", 3).
		End()

	NewWorkbookTestCase(t, "Columns").
		Set("A1", "1").
		Set("B1", "2").
		Set("C1", "=A1+B1").
		InsertColumns("Sheet1", 1, 2).
		Run().
		AssertFormula("E1", "=A1+D1").
		AssertCellEq("E1", 3).
		Restore().
		RemoveColumns("Sheet1", 0, 1).
		Run().
		AssertFormula("B1", "=#REF!+A1").
		Restore().
		Run().
		AssertFormula("C1", "=A1+B1").
		AssertCellEq("C1", 3).
		End()

	NewWorkbookTestCase(t, "Other sheets are untouched").
		AddSheet("Sheet2").
		Set("Sheet2!A1", "5").
		Set("A1", "=Sheet2!A1").
		InsertRows("Sheet1", 0, 1).
		Run().
		AssertFormula("A2", "=Sheet2!A1").
		AssertCellEq("A2", 5).
		End()

	NewWorkbookTestCase(t, "Nested restores").
		Set("A1", "1").
		Set("C3", "=A1").
		InsertRows("Sheet1", 0, 2).
		InsertColumns("Sheet1", 0, 1).
		Run().
		AssertFormula("D5", "=B3").
		Restore().
		Restore().
		Run().
		AssertFormula("C3", "=A1").
		AssertCellEq("C3", 1).
		End()
}

func TestApplicationErrors(t *testing.T) {
	NewWorkbookTestCase(t, "Duplicate sheet").
		AddSheet("sheet1").
		ExpectAppError(AlreadyExists).
		End()

	NewWorkbookTestCase(t, "Unknown sheet").
		InsertRows("Nope", 0, 1).
		ExpectAppError(NotFound).
		RemoveRows("Sheet1", -1, 1).
		ExpectAppError(OutOfRange).
		InsertColumns("Sheet1", 0, 0).
		ExpectAppError(InvalidArgument).
		End()

	wb := NewWorkbook()
	if _, err := wb.Get("A1"); err == nil {
		t.Errorf("Get on a workbook without sheets should fail")
	} else if appErr, ok := err.(*AppError); !ok || appErr.Code != FailedPrecondition {
		t.Errorf("Get error = %v, want FailedPrecondition", err)
	}

	wb.AddSheet("Sheet1")
	for _, address := range []string{"A0", "1A", "Sheet1!", "!A1", "A1:B2", "XFE1"} {
		if _, err := wb.Get(address); err == nil {
			t.Errorf("Get(%q) should fail", address)
		}
	}
	if _, err := wb.Get("Nope!A1"); err == nil {
		t.Errorf("Get on an unknown sheet should fail")
	} else if appErr, ok := err.(*AppError); !ok || appErr.Code != NotFound {
		t.Errorf("Get error = %v, want NotFound", err)
	}
}

func TestDependencyInfo(t *testing.T) {
	wb := NewWorkbook()
	wb.AddSheet("Sheet1")
	wb.SetCell("A1", "1")
	wb.SetCell("C1", "=A1")
	wb.SetCell("B1", "=C1*2")

	info, ok, err := wb.DependencyInfo("B1")
	if err != nil || !ok {
		t.Fatalf("DependencyInfo(B1) = %v, %v", ok, err)
	}
	if info.Formula != "=C1*2" {
		t.Errorf("Formula = %q, want =C1*2", info.Formula)
	}
	if len(info.Precedents) != 1 || info.Precedents[0] != "'Sheet1'!C1" {
		t.Errorf("Precedents = %v, want ['Sheet1'!C1]", info.Precedents)
	}

	info, _, _ = wb.DependencyInfo("C1")
	if len(info.Dependents) != 1 || info.Dependents[0] != "'Sheet1'!B1" {
		t.Errorf("Dependents = %v, want ['Sheet1'!B1]", info.Dependents)
	}

	if _, ok, _ := wb.DependencyInfo("A1"); ok {
		t.Errorf("A1 holds a constant and should have no dependency info")
	}
	if got := len(wb.AllDependencyInfo()); got != 2 {
		t.Errorf("AllDependencyInfo has %d entries, want 2", got)
	}
}

func TestEvaluateWithoutStoring(t *testing.T) {
	wb := NewWorkbook()
	wb.AddSheet("Sheet1")
	wb.SetCell("A1", "4")
	wb.Calculate()

	value, tree := wb.Evaluate("Sheet1", "SQRT(A1)+1")
	if tree.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", tree.Errors)
	}
	if value.Number() != 3 {
		t.Errorf("Evaluate = %v, want 3", value)
	}
	if wb.Manager().Graph().E() != 0 || len(wb.Manager().Graph().V()) != 0 {
		t.Errorf("Evaluate should not register the formula")
	}
}
