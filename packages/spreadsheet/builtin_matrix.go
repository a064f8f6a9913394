package spreadsheet

import (
	"math"

	matrix "github.com/skelterjohn/go.matrix"
)

// toDense converts an Array value to a dense matrix. every element must be
// numeric.
func toDense(value CellValue) (*matrix.DenseMatrix, CellValue) {
	rows := value.Array()
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrorValue(ErrorKindInvalidValue, "empty array")
	}
	data := make([][]float64, len(rows))
	for i, row := range rows {
		data[i] = make([]float64, len(row))
		for j, cell := range row {
			if cell.IsError() {
				return nil, cell
			}
			if !cell.IsNumeric() {
				return nil, ErrorValue(ErrorKindInvalidValue, "array contains a non-numeric value")
			}
			data[i][j] = cell.Number()
		}
	}
	return matrix.MakeDenseMatrixStacked(data), CellValue{}
}

func fromMatrix(m matrix.MatrixRO) CellValue {
	out := make([][]CellValue, m.Rows())
	for i := range out {
		out[i] = make([]CellValue, m.Cols())
		for j := range out[i] {
			v := m.Get(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return ErrorValue(ErrorKindInvalidNumber, "result is not a finite number")
			}
			out[i][j] = NumberValue(v)
		}
	}
	return ArrayValue(out)
}

func registerMatrixBuiltins(r *FunctionRegistry) {
	r.Register(&FunctionDefinition{
		Name:       "MMULT",
		Parameters: []ParameterDefinition{param("array1", ParamArray), param("array2", ParamArray)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			a, errValue := toDense(args[0])
			if a == nil {
				return errValue
			}
			b, errValue := toDense(args[1])
			if b == nil {
				return errValue
			}
			if a.Cols() != b.Rows() {
				return ErrorValue(ErrorKindInvalidValue, "MMULT: column count of array1 must equal row count of array2")
			}
			product, err := a.Times(b)
			if err != nil {
				return ErrorValue(ErrorKindInvalidValue, err.Error())
			}
			return fromMatrix(product)
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "MDETERM",
		Parameters: []ParameterDefinition{param("array", ParamArray)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			m, errValue := toDense(args[0])
			if m == nil {
				return errValue
			}
			if m.Rows() != m.Cols() {
				return ErrorValue(ErrorKindInvalidValue, "MDETERM requires a square array")
			}
			return finite(m.Det())
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "MINVERSE",
		Parameters: []ParameterDefinition{param("array", ParamArray)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			m, errValue := toDense(args[0])
			if m == nil {
				return errValue
			}
			if m.Rows() != m.Cols() {
				return ErrorValue(ErrorKindInvalidValue, "MINVERSE requires a square array")
			}
			if math.Abs(m.Det()) < 1e-12 {
				return ErrorValue(ErrorKindInvalidNumber, "MINVERSE: matrix is singular")
			}
			inverse, err := m.Inverse()
			if err != nil {
				return ErrorValue(ErrorKindInvalidNumber, err.Error())
			}
			return fromMatrix(inverse)
		},
	})
}
