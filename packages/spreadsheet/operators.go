package spreadsheet

import (
	"math"
	"strings"
)

// evaluateUnary applies a unary operator to an already scalar operand
func evaluateUnary(op UnaryOp, operand CellValue) CellValue {
	if operand.IsError() {
		return operand
	}
	switch op {
	case UnaryOpPlus:
		return operand
	case UnaryOpNot:
		b, ok := operand.CoerceLogical()
		if !ok {
			return ErrorValue(ErrorKindInvalidValue, "operand of ! is not a logical")
		}
		return LogicalValue(!b)
	}

	num, ok := operand.CoerceNumber()
	if !ok {
		return ErrorValue(ErrorKindInvalidValue, "operand of "+op.String()+" is not a number")
	}
	if op == UnaryOpPercent {
		return NumberValue(num / 100)
	}
	return NumberValue(-num)
}

// evaluateBinary applies a binary operator to already scalar operands.
// errors propagate untouched, the left operand first.
func evaluateBinary(op BinaryOp, left, right CellValue) CellValue {
	if left.IsError() {
		return left
	}
	if right.IsError() {
		return right
	}

	switch op {
	case BinOpConcat:
		l, ok1 := left.CoerceText()
		r, ok2 := right.CoerceText()
		if !ok1 || !ok2 {
			return ErrorValue(ErrorKindInvalidValue, "operands of & must be text")
		}
		return TextValue(l + r)

	case BinOpEqual, BinOpNotEqual, BinOpLess, BinOpLessEqual, BinOpGreater, BinOpGreaterEqual:
		return compareOperands(op, left, right)
	}

	return arithmetic(op, left, right)
}

func arithmetic(op BinaryOp, left, right CellValue) CellValue {
	l, ok1 := left.CoerceNumber()
	r, ok2 := right.CoerceNumber()
	if !ok1 || !ok2 {
		return ErrorValue(ErrorKindInvalidValue, "operands of "+op.String()+" must be numbers")
	}

	var result float64
	switch op {
	case BinOpAdd:
		result = l + r
	case BinOpSubtract:
		result = l - r
	case BinOpMultiply:
		result = l * r
	case BinOpDivide:
		if r == 0 {
			return ErrorValue(ErrorKindDivideByZero, "Division by zero")
		}
		result = l / r
	case BinOpPower:
		if l == 0 && r == 0 {
			return ErrorValue(ErrorKindInvalidNumber, "0^0 is undefined")
		}
		result = math.Pow(l, r)
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return ErrorValue(ErrorKindInvalidNumber, "result is not a finite number")
	}
	return NumberValue(result)
}

// comparison rank of each type: numbers < text < logicals
func typeRank(v CellValue) int {
	switch v.Type {
	case CellValueText:
		return 1
	case CellValueLogical:
		return 2
	}
	return 0
}

// compareValues orders two scalars. an empty operand takes the zero value
// of the other operand's type.
func compareValues(left, right CellValue) int {
	if left.IsEmpty() {
		left = zeroLike(right)
	}
	if right.IsEmpty() {
		right = zeroLike(left)
	}

	lr, rr := typeRank(left), typeRank(right)
	if lr != rr {
		return lr - rr
	}

	switch left.Type {
	case CellValueText:
		return strings.Compare(strings.ToLower(left.Text()), strings.ToLower(right.Text()))
	case CellValueLogical:
		l, r := left.Logical(), right.Logical()
		switch {
		case l == r:
			return 0
		case !l:
			return -1
		}
		return 1
	}

	l, _ := left.CoerceNumber()
	r, _ := right.CoerceNumber()
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}

func zeroLike(v CellValue) CellValue {
	switch v.Type {
	case CellValueText:
		return TextValue("")
	case CellValueLogical:
		return LogicalValue(false)
	}
	return NumberValue(0)
}

func compareOperands(op BinaryOp, left, right CellValue) CellValue {
	c := compareValues(left, right)
	var result bool
	switch op {
	case BinOpEqual:
		result = c == 0
	case BinOpNotEqual:
		result = c != 0
	case BinOpLess:
		result = c < 0
	case BinOpLessEqual:
		result = c <= 0
	case BinOpGreater:
		result = c > 0
	case BinOpGreaterEqual:
		result = c >= 0
	}
	return LogicalValue(result)
}
