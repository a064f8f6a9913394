package spreadsheet

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

func param(name string, t ParameterType) ParameterDefinition {
	return ParameterDefinition{Name: name, Type: t}
}

func optional(name string, t ParameterType) ParameterDefinition {
	return ParameterDefinition{Name: name, Type: t, Optional: true}
}

func repeating(name string, t ParameterType) ParameterDefinition {
	return ParameterDefinition{Name: name, Type: t, Optional: true, IsRepeating: true}
}

// numberFunction registers a function of one Number parameter
func numberFunction(r *FunctionRegistry, name string, fn func(float64) CellValue) {
	r.Register(&FunctionDefinition{
		Name:       name,
		Parameters: []ParameterDefinition{param("number", ParamNumber)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			return fn(args[0].Number())
		},
	})
}

// textFunction registers a function of one Text parameter
func textFunction(r *FunctionRegistry, name string, fn func(string) CellValue) {
	r.Register(&FunctionDefinition{
		Name:       name,
		Parameters: []ParameterDefinition{param("text", ParamText)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			return fn(args[0].Text())
		},
	})
}

// numberSequenceParams is the (number1, [number2, ...]) signature
func numberSequenceParams() []ParameterDefinition {
	return []ParameterDefinition{
		param("number1", ParamNumberSequence),
		repeating("number2", ParamNumberSequence),
	}
}

// collectNumbers flattens converted NumberSequence arguments
func collectNumbers(args []CellValue) []float64 {
	values := []float64{}
	for _, arg := range args {
		for _, v := range arg.Sequence() {
			values = append(values, v.Number())
		}
	}
	return values
}

func collectLogicals(args []CellValue) []bool {
	values := []bool{}
	for _, arg := range args {
		for _, v := range arg.Sequence() {
			values = append(values, v.Logical())
		}
	}
	return values
}

func finite(n float64) CellValue {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return ErrorValue(ErrorKindInvalidNumber, "result is not a finite number")
	}
	return NumberValue(n)
}

func registerBuiltins(r *FunctionRegistry) {
	registerAggregates(r)
	registerLogical(r)
	registerText(r)
	registerMath(r)
	registerDate(r)
	registerLookup(r)
}

func registerAggregates(r *FunctionRegistry) {
	r.Register(&FunctionDefinition{
		Name:       "SUM",
		Parameters: numberSequenceParams(),
		Call: func(_ *CallContext, args []CellValue) CellValue {
			sum := 0.0
			for _, n := range collectNumbers(args) {
				sum += n
			}
			return finite(sum)
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "AVERAGE",
		Parameters: numberSequenceParams(),
		Call: func(_ *CallContext, args []CellValue) CellValue {
			values := collectNumbers(args)
			if len(values) == 0 {
				return ErrorValue(ErrorKindDivideByZero, "AVERAGE has no numeric values")
			}
			sum := 0.0
			for _, n := range values {
				sum += n
			}
			return finite(sum / float64(len(values)))
		},
	})

	r.Register(&FunctionDefinition{
		Name:          "COUNT",
		Parameters:    []ParameterDefinition{param("value1", ParamValues), repeating("value2", ParamValues)},
		AcceptsErrors: true,
		Call: func(_ *CallContext, args []CellValue) CellValue {
			count := 0
			for _, arg := range args {
				switch arg.Type {
				case CellValueArray:
					for _, row := range arg.Array() {
						for _, cell := range row {
							if cell.IsNumeric() {
								count++
							}
						}
					}
				case CellValueError, CellValueEmpty:
				default:
					if _, ok := arg.CoerceNumber(); ok {
						count++
					}
				}
			}
			return NumberValue(float64(count))
		},
	})

	r.Register(&FunctionDefinition{
		Name:          "COUNTA",
		Parameters:    []ParameterDefinition{param("value1", ParamValues), repeating("value2", ParamValues)},
		AcceptsErrors: true,
		Call: func(_ *CallContext, args []CellValue) CellValue {
			count := 0
			for _, arg := range args {
				if arg.Type == CellValueArray {
					for _, row := range arg.Array() {
						for _, cell := range row {
							if !cell.IsEmpty() {
								count++
							}
						}
					}
				} else if !arg.IsEmpty() {
					count++
				}
			}
			return NumberValue(float64(count))
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "MAX",
		Parameters: numberSequenceParams(),
		Call: func(_ *CallContext, args []CellValue) CellValue {
			values := collectNumbers(args)
			if len(values) == 0 {
				return NumberValue(0)
			}
			result := values[0]
			for _, n := range values[1:] {
				result = math.Max(result, n)
			}
			return NumberValue(result)
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "MIN",
		Parameters: numberSequenceParams(),
		Call: func(_ *CallContext, args []CellValue) CellValue {
			values := collectNumbers(args)
			if len(values) == 0 {
				return NumberValue(0)
			}
			result := values[0]
			for _, n := range values[1:] {
				result = math.Min(result, n)
			}
			return NumberValue(result)
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "MEDIAN",
		Parameters: numberSequenceParams(),
		Call: func(_ *CallContext, args []CellValue) CellValue {
			values := collectNumbers(args)
			if len(values) == 0 {
				return ErrorValue(ErrorKindInvalidNumber, "MEDIAN has no numeric values")
			}
			sort.Float64s(values)
			mid := len(values) / 2
			if len(values)%2 == 0 {
				// even count: average of two middle values
				return NumberValue((values[mid-1] + values[mid]) / 2)
			}
			return NumberValue(values[mid])
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "MODE",
		Parameters: numberSequenceParams(),
		Call: func(_ *CallContext, args []CellValue) CellValue {
			frequency := make(map[float64]int)
			for _, n := range collectNumbers(args) {
				frequency[n]++
			}
			best, bestCount := 0.0, 1
			for value, count := range frequency {
				// smallest value wins ties, as Excel does
				if count > bestCount || (count == bestCount && count > 1 && value < best) {
					best, bestCount = value, count
				}
			}
			if bestCount < 2 {
				return ErrorValue(ErrorKindNotApplicable, "MODE: no value appears more than once")
			}
			return NumberValue(best)
		},
	})
}

func registerLogical(r *FunctionRegistry) {
	r.Register(&FunctionDefinition{
		Name: "IF",
		Parameters: []ParameterDefinition{
			param("logical_test", ParamAny),
			param("value_if_true", ParamAny),
			optional("value_if_false", ParamAny),
		},
		// only the condition and the chosen branch may propagate errors
		AcceptsErrors: true,
		Call: func(ctx *CallContext, args []CellValue) CellValue {
			cond := scalarize(args[0], ctx.Environment)
			if cond.IsError() {
				return cond
			}
			b, ok := cond.CoerceLogical()
			if !ok {
				return ErrorValue(ErrorKindInvalidValue, "IF condition is not a logical")
			}
			if b {
				return args[1]
			}
			if len(args) > 2 {
				return args[2]
			}
			return LogicalValue(false)
		},
	})

	r.Register(&FunctionDefinition{
		Name:          "IFERROR",
		Parameters:    []ParameterDefinition{param("value", ParamAny), param("value_if_error", ParamAny)},
		AcceptsErrors: true,
		Call: func(_ *CallContext, args []CellValue) CellValue {
			if args[0].IsError() {
				return args[1]
			}
			return args[0]
		},
	})

	r.Register(&FunctionDefinition{
		Name:          "ISERROR",
		Parameters:    []ParameterDefinition{param("value", ParamAny)},
		AcceptsErrors: true,
		Call: func(_ *CallContext, args []CellValue) CellValue {
			return LogicalValue(args[0].IsError())
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "AND",
		Parameters: []ParameterDefinition{param("logical1", ParamLogicalSequence), repeating("logical2", ParamLogicalSequence)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			values := collectLogicals(args)
			if len(values) == 0 {
				return ErrorValue(ErrorKindInvalidValue, "AND has no logical values")
			}
			for _, b := range values {
				if !b {
					return LogicalValue(false)
				}
			}
			return LogicalValue(true)
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "OR",
		Parameters: []ParameterDefinition{param("logical1", ParamLogicalSequence), repeating("logical2", ParamLogicalSequence)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			values := collectLogicals(args)
			if len(values) == 0 {
				return ErrorValue(ErrorKindInvalidValue, "OR has no logical values")
			}
			for _, b := range values {
				if b {
					return LogicalValue(true)
				}
			}
			return LogicalValue(false)
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "NOT",
		Parameters: []ParameterDefinition{param("logical", ParamLogical)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			return LogicalValue(!args[0].Logical())
		},
	})
}

func registerText(r *FunctionRegistry) {
	r.Register(&FunctionDefinition{
		Name:       "CONCATENATE",
		Parameters: []ParameterDefinition{param("text1", ParamText), repeating("text2", ParamText)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			var b strings.Builder
			for _, arg := range args {
				b.WriteString(arg.Text())
			}
			return TextValue(b.String())
		},
	})

	textFunction(r, "LEN", func(s string) CellValue {
		return NumberValue(float64(len([]rune(s))))
	})
	textFunction(r, "UPPER", func(s string) CellValue {
		return TextValue(strings.ToUpper(s))
	})
	textFunction(r, "LOWER", func(s string) CellValue {
		return TextValue(strings.ToLower(s))
	})
	textFunction(r, "TRIM", func(s string) CellValue {
		return TextValue(strings.Join(strings.Fields(s), " "))
	})
}

func registerMath(r *FunctionRegistry) {
	numberFunction(r, "ABS", func(n float64) CellValue {
		return NumberValue(math.Abs(n))
	})
	numberFunction(r, "SQRT", func(n float64) CellValue {
		if n < 0 {
			return ErrorValue(ErrorKindInvalidNumber, "SQRT requires a non-negative argument")
		}
		return NumberValue(math.Sqrt(n))
	})

	r.Register(&FunctionDefinition{
		Name:       "ROUND",
		Parameters: []ParameterDefinition{param("number", ParamNumber), optional("num_digits", ParamNumber)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			places := 0.0
			if len(args) > 1 {
				places = math.Trunc(args[1].Number())
			}
			multiplier := math.Pow(10, places)
			return finite(math.Round(args[0].Number()*multiplier) / multiplier)
		},
	})

	rounder := func(name string, fn func(float64) float64) {
		r.Register(&FunctionDefinition{
			Name:       name,
			Parameters: []ParameterDefinition{param("number", ParamNumber), optional("significance", ParamNumber)},
			Call: func(_ *CallContext, args []CellValue) CellValue {
				significance := 1.0
				if len(args) > 1 {
					significance = args[1].Number()
				}
				if significance == 0 {
					return ErrorValue(ErrorKindDivideByZero, fmt.Sprintf("%s significance is zero", name))
				}
				return finite(fn(args[0].Number()/significance) * significance)
			},
		})
	}
	rounder("FLOOR", math.Floor)
	rounder("CEILING", math.Ceil)

	r.Register(&FunctionDefinition{
		Name:       "POWER",
		Parameters: []ParameterDefinition{param("number", ParamNumber), param("power", ParamNumber)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			base, exp := args[0].Number(), args[1].Number()
			if base == 0 && exp == 0 {
				return ErrorValue(ErrorKindInvalidNumber, "0^0 is undefined")
			}
			return finite(math.Pow(base, exp))
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "MOD",
		Parameters: []ParameterDefinition{param("number", ParamNumber), param("divisor", ParamNumber)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			n, d := args[0].Number(), args[1].Number()
			if d == 0 {
				return ErrorValue(ErrorKindDivideByZero, "Division by zero")
			}
			// result takes the sign of the divisor
			return finite(n - d*math.Floor(n/d))
		},
	})

	r.Register(&FunctionDefinition{
		Name: "PI",
		Call: func(_ *CallContext, _ []CellValue) CellValue {
			return NumberValue(math.Pi)
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "RAND",
		IsVolatile: true,
		Call: func(ctx *CallContext, _ []CellValue) CellValue {
			return NumberValue(ctx.Random.Float64())
		},
	})
}

func registerDate(r *FunctionRegistry) {
	r.Register(&FunctionDefinition{
		Name:       "NOW",
		IsVolatile: true,
		Call: func(ctx *CallContext, _ []CellValue) CellValue {
			return DateValue(ctx.Clock.Now().UTC())
		},
	})

	r.Register(&FunctionDefinition{
		Name:       "TODAY",
		IsVolatile: true,
		Call: func(ctx *CallContext, _ []CellValue) CellValue {
			now := ctx.Clock.Now()
			return DateValue(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
		},
	})

	r.Register(&FunctionDefinition{
		Name: "DATE",
		Parameters: []ParameterDefinition{
			param("year", ParamNumber),
			param("month", ParamNumber),
			param("day", ParamNumber),
		},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			year := int(args[0].Number())
			if year < 0 || year > 9999 {
				return ErrorValue(ErrorKindInvalidNumber, "DATE year out of range")
			}
			if year < 1900 {
				year += 1900
			}
			// time.Date normalizes month and day overflow the way Excel does
			return DateValue(time.Date(year, time.Month(int(args[1].Number())), int(args[2].Number()), 0, 0, 0, 0, time.UTC))
		},
	})
}

func registerLookup(r *FunctionRegistry) {
	r.Register(&FunctionDefinition{
		Name:       "TRANSPOSE",
		Parameters: []ParameterDefinition{param("array", ParamArray)},
		Call: func(_ *CallContext, args []CellValue) CellValue {
			rows := args[0].Array()
			if len(rows) == 0 {
				return args[0]
			}
			out := make([][]CellValue, len(rows[0]))
			for j := range out {
				out[j] = make([]CellValue, len(rows))
				for i := range rows {
					out[j][i] = rows[i][j]
				}
			}
			return ArrayValue(out)
		},
	})
}
