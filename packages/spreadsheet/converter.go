package spreadsheet

import (
	"fmt"
)

// ParameterConverter maps raw argument values to the shape a parameter
// declares, pulling referenced ranges from the environment as needed
type ParameterConverter struct{}

// Convert converts one argument. the result is either a value of the
// requested shape or an error value.
func (c *ParameterConverter) Convert(value CellValue, param ParameterDefinition, env Environment) CellValue {
	switch param.Type {
	case ParamNumber:
		v := scalarize(value, env)
		if v.IsError() {
			return v
		}
		num, ok := v.CoerceNumber()
		if !ok {
			return ErrorValue(ErrorKindInvalidValue, fmt.Sprintf("%s: expected a number", param.Name))
		}
		return NumberValue(num)

	case ParamText:
		v := scalarize(value, env)
		if v.IsError() {
			return v
		}
		text, ok := v.CoerceText()
		if !ok {
			return ErrorValue(ErrorKindInvalidValue, fmt.Sprintf("%s: expected text", param.Name))
		}
		return TextValue(text)

	case ParamLogical:
		v := scalarize(value, env)
		if v.IsError() {
			return v
		}
		b, ok := v.CoerceLogical()
		if !ok {
			return ErrorValue(ErrorKindInvalidValue, fmt.Sprintf("%s: expected a logical", param.Name))
		}
		return LogicalValue(b)

	case ParamDate:
		v := scalarize(value, env)
		if v.IsError() {
			return v
		}
		t, ok := v.CoerceDate()
		if !ok {
			return ErrorValue(ErrorKindInvalidValue, fmt.Sprintf("%s: expected a date", param.Name))
		}
		return DateValue(t)

	case ParamArray:
		v := dereference(value, env)
		switch v.Type {
		case CellValueArray, CellValueError:
			return v
		}
		return ArrayValue([][]CellValue{{v}})

	case ParamValues:
		return dereferenceAll(value, env)

	case ParamNumberSequence:
		return c.numberSequence(value, env)

	case ParamLogicalSequence:
		return c.logicalSequence(value, env)
	}

	return dereference(value, env)
}

// numberSequence flattens value into numbers. referenced cells and arrays
// keep only numbers; a directly passed scalar is coerced.
func (c *ParameterConverter) numberSequence(value CellValue, env Environment) CellValue {
	v := dereferenceAll(value, env)
	switch v.Type {
	case CellValueError:
		return v
	case CellValueArray:
		out := []CellValue{}
		for _, row := range v.Array() {
			for _, cell := range row {
				switch {
				case cell.IsError():
					return cell
				case cell.IsNumeric():
					out = append(out, NumberValue(cell.Number()))
				}
			}
		}
		return SequenceValue(out)
	}
	num, ok := v.CoerceNumber()
	if !ok {
		return ErrorValue(ErrorKindInvalidValue, "expected a number")
	}
	return SequenceValue([]CellValue{NumberValue(num)})
}

// logicalSequence flattens value into logicals. numbers read from
// references count as logicals; text and empty cells are skipped.
func (c *ParameterConverter) logicalSequence(value CellValue, env Environment) CellValue {
	v := dereferenceAll(value, env)
	switch v.Type {
	case CellValueError:
		return v
	case CellValueArray:
		out := []CellValue{}
		for _, row := range v.Array() {
			for _, cell := range row {
				switch {
				case cell.IsError():
					return cell
				case cell.Type == CellValueLogical:
					out = append(out, cell)
				case cell.IsNumeric():
					out = append(out, LogicalValue(cell.Number() != 0))
				}
			}
		}
		return SequenceValue(out)
	}
	b, ok := v.CoerceLogical()
	if !ok {
		return ErrorValue(ErrorKindInvalidValue, "expected a logical")
	}
	return SequenceValue([]CellValue{LogicalValue(b)})
}

// dereference resolves a reference value: a cell becomes its value and a
// range becomes a 2-D array. other values pass through.
func dereference(value CellValue, env Environment) CellValue {
	if value.Type != CellValueReference {
		return value
	}
	ref := value.Reference()
	if ref == nil || ref.Invalid {
		return ErrorValue(ErrorKindInvalidReference, "invalid reference")
	}
	if ref.Kind == ReferenceCell {
		return env.GetCellValue(ref.SheetName, ref.Start.Row, ref.Start.Col)
	}
	return ArrayValue(env.GetRangeValues(ref))
}

// dereferenceAll is dereference with a single referenced cell wrapped as a
// 1x1 array, so it is filtered the same way a range is
func dereferenceAll(value CellValue, env Environment) CellValue {
	v := dereference(value, env)
	if value.Type != CellValueReference {
		return v
	}
	switch v.Type {
	case CellValueArray, CellValueError:
		return v
	}
	return ArrayValue([][]CellValue{{v}})
}

// scalarize reduces a value to a single cell value. references and arrays
// covering more than one cell are not intersected and yield #VALUE!.
func scalarize(value CellValue, env Environment) CellValue {
	switch value.Type {
	case CellValueReference:
		ref := value.Reference()
		if ref == nil || ref.Invalid {
			return ErrorValue(ErrorKindInvalidReference, "invalid reference")
		}
		region := ref.Region()
		if ref.Kind == ReferenceRange && !region.IsSingleCell() {
			return ErrorValue(ErrorKindInvalidValue, "range used where a single value is expected")
		}
		return env.GetCellValue(ref.SheetName, region.Top, region.Left)
	case CellValueArray:
		rows := value.Array()
		if len(rows) == 1 && len(rows[0]) == 1 {
			return rows[0][0]
		}
		return ErrorValue(ErrorKindInvalidValue, "array used where a single value is expected")
	case CellValueSequence:
		if seq := value.Sequence(); len(seq) == 1 {
			return seq[0]
		}
		return ErrorValue(ErrorKindInvalidValue, "sequence used where a single value is expected")
	}
	return value
}
