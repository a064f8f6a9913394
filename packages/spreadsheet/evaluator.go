package spreadsheet

import (
	"fmt"
)

// Evaluator walks a SyntaxTree against an Environment. it holds no
// per-evaluation state, so one evaluator can serve many nested or
// independent evaluations over the same environment.
type Evaluator struct {
	clock     Clock
	random    RandomGenerator
	converter ParameterConverter
}

// NewEvaluator creates an evaluator. nil clock or random fall back to the
// wall clock and the default generator.
func NewEvaluator(clock Clock, random RandomGenerator) *Evaluator {
	if clock == nil {
		clock = &WallClock{}
	}
	if random == nil {
		random = &DefaultRandomGenerator{}
	}
	return &Evaluator{
		clock:  clock,
		random: random,
	}
}

// Evaluate computes the value of a parsed formula. trees with parse errors
// evaluate to #N/A. a top-level cell reference yields the cell's value and a
// range yields a 2-D array.
func (e *Evaluator) Evaluate(tree *SyntaxTree, env Environment) CellValue {
	if tree == nil || tree.Root == nil || tree.HasErrors() {
		return ErrorValue(ErrorKindNotApplicable, "formula has errors")
	}
	return dereference(e.evaluate(tree.Root, env), env)
}

// evaluate returns references unresolved; operators and parameter
// conversion decide how much of a referenced range to read.
func (e *Evaluator) evaluate(node Expression, env Environment) CellValue {
	switch n := node.(type) {
	case *Literal:
		return n.Value

	case *Parenthesized:
		return e.evaluate(n.Inner, env)

	case *ReferenceExpr:
		return ReferenceValue(n.Ref)

	case *Name:
		if !env.VariableExists(n.Ref.Name) {
			return ErrorValue(ErrorKindInvalidName, fmt.Sprintf("Unknown name: %s", n.Ref.Name))
		}
		return env.GetVariable(n.Ref.Name)

	case *ArrayConstant:
		rows := make([][]CellValue, len(n.Rows))
		for i, row := range n.Rows {
			rows[i] = make([]CellValue, len(row))
			for j, item := range row {
				rows[i][j] = item.Value
			}
		}
		return ArrayValue(rows)

	case *Unary:
		operand := scalarize(e.evaluate(n.Operand, env), env)
		return evaluateUnary(n.Op, operand)

	case *Binary:
		left := scalarize(e.evaluate(n.Left, env), env)
		right := scalarize(e.evaluate(n.Right, env), env)
		return evaluateBinary(n.Op, left, right)

	case *FunctionCall:
		return e.call(n, env)
	}

	return ErrorValue(ErrorKindNotApplicable, "unknown expression")
}

func (e *Evaluator) call(n *FunctionCall, env Environment) CellValue {
	if !env.FunctionExists(n.Name) {
		return ErrorValue(ErrorKindInvalidName, fmt.Sprintf("Unknown function: %s", n.Name))
	}
	def := env.GetFunctionDefinition(n.Name)
	if def == nil {
		return ErrorValue(ErrorKindInvalidName, fmt.Sprintf("Unknown function: %s", n.Name))
	}

	count := len(n.Args)
	if count < def.MinArity() || (def.MaxArity() >= 0 && count > def.MaxArity()) {
		return ErrorValue(ErrorKindNotApplicable, fmt.Sprintf("%s: wrong number of arguments", def.Name))
	}

	args := make([]CellValue, count)
	for i, arg := range n.Args {
		raw := e.evaluate(arg, env)
		value := e.converter.Convert(raw, def.parameterFor(i), env)
		if value.IsError() && !def.AcceptsErrors {
			return value
		}
		args[i] = value
	}

	ctx := &CallContext{
		Clock:       e.clock,
		Random:      e.random,
		Environment: env,
	}
	return def.Call(ctx, args)
}
