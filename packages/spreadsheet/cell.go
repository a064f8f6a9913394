package spreadsheet

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrorKind represents standard spreadsheet error codes following
// Excel conventions
type ErrorKind uint8

const (
	ErrorKindNull             ErrorKind = 1 // #NULL! - no cells in common between ranges
	ErrorKindDivideByZero     ErrorKind = 2 // #DIV/0! - division by zero
	ErrorKindInvalidValue     ErrorKind = 3 // #VALUE! - wrong type of argument or operand
	ErrorKindInvalidReference ErrorKind = 4 // #REF! - invalid cell reference
	ErrorKindInvalidName      ErrorKind = 5 // #NAME? - unrecognized function or name
	ErrorKindInvalidNumber    ErrorKind = 6 // #NUM! - number too large or small to be represented
	ErrorKindNotApplicable    ErrorKind = 7 // #N/A - value not available
)

// ErrorKindText maps error kinds to their string representations
var ErrorKindText = map[ErrorKind]string{
	ErrorKindNull:             "#NULL!",
	ErrorKindDivideByZero:     "#DIV/0!",
	ErrorKindInvalidValue:     "#VALUE!",
	ErrorKindInvalidReference: "#REF!",
	ErrorKindInvalidName:      "#NAME?",
	ErrorKindInvalidNumber:    "#NUM!",
	ErrorKindNotApplicable:    "#N/A",
}

// ParseErrorKind returns the error kind for an error literal such as "#REF!".
// matching is case-insensitive.
func ParseErrorKind(text string) (ErrorKind, bool) {
	upper := strings.ToUpper(text)
	for kind, literal := range ErrorKindText {
		if literal == upper {
			return kind, true
		}
	}
	return 0, false
}

func (k ErrorKind) String() string {
	if text, ok := ErrorKindText[k]; ok {
		return text
	}
	return "#ERROR!"
}

// FormulaError preserves the error kind for display in cells
type FormulaError struct {
	Kind    ErrorKind
	Message string
}

func (e *FormulaError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func NewFormulaError(kind ErrorKind, message string) *FormulaError {
	if message == "" {
		message = kind.String()
	}
	return &FormulaError{
		Kind:    kind,
		Message: message,
	}
}

// CellValueType tags the variant held by a CellValue
type CellValueType uint8

const (
	CellValueEmpty     CellValueType = 0
	CellValueNumber    CellValueType = 1
	CellValueText      CellValueType = 2
	CellValueLogical   CellValueType = 3
	CellValueDate      CellValueType = 4
	CellValueArray     CellValueType = 5
	CellValueReference CellValueType = 6
	CellValueError     CellValueType = 7
	CellValueSequence  CellValueType = 8
)

var cellValueTypeNames = [...]string{
	"empty", "number", "text", "logical", "date", "array", "reference", "error", "sequence",
}

func (t CellValueType) String() string {
	if int(t) < len(cellValueTypeNames) {
		return cellValueTypeNames[t]
	}
	return "unknown"
}

// CellValue is a tagged spreadsheet value. only the field matching Type is
// meaningful; the zero value is Empty.
type CellValue struct {
	Type CellValueType

	number    float64
	text      string
	logical   bool
	date      time.Time
	array     [][]CellValue
	reference *Reference
	err       *FormulaError
	sequence  []CellValue
}

// Excel date/time constants
const (
	// excel epoch: December 30, 1899 00:00:00 UTC in Unix milliseconds.
	// excel incorrectly treats 1900 as a leap year; serials before March 1900
	// are off by one and we don't correct for it.
	ExcelEpochMs = -2209161600000
	MsPerDay     = 86400000
)

func EmptyValue() CellValue {
	return CellValue{}
}

func NumberValue(n float64) CellValue {
	return CellValue{Type: CellValueNumber, number: n}
}

func TextValue(s string) CellValue {
	return CellValue{Type: CellValueText, text: s}
}

func LogicalValue(b bool) CellValue {
	return CellValue{Type: CellValueLogical, logical: b}
}

func DateValue(t time.Time) CellValue {
	return CellValue{Type: CellValueDate, date: t}
}

// ArrayValue wraps a rectangular block of values. nested arrays are flattened
// to their top-left element so an array never holds another array.
func ArrayValue(rows [][]CellValue) CellValue {
	for _, row := range rows {
		for j, v := range row {
			if v.Type == CellValueArray {
				row[j] = v.firstElement()
			}
		}
	}
	return CellValue{Type: CellValueArray, array: rows}
}

func ReferenceValue(ref *Reference) CellValue {
	return CellValue{Type: CellValueReference, reference: ref}
}

func ErrorValue(kind ErrorKind, message string) CellValue {
	return CellValue{Type: CellValueError, err: NewFormulaError(kind, message)}
}

func ErrorFrom(err *FormulaError) CellValue {
	return CellValue{Type: CellValueError, err: err}
}

func SequenceValue(values []CellValue) CellValue {
	return CellValue{Type: CellValueSequence, sequence: values}
}

func (v CellValue) IsEmpty() bool {
	return v.Type == CellValueEmpty
}

func (v CellValue) IsError() bool {
	return v.Type == CellValueError
}

// IsNumeric reports whether the value is a number or a date serial
func (v CellValue) IsNumeric() bool {
	return v.Type == CellValueNumber || v.Type == CellValueDate
}

func (v CellValue) Number() float64 {
	if v.Type == CellValueDate {
		return DateToSerial(v.date)
	}
	return v.number
}

func (v CellValue) Text() string {
	return v.text
}

func (v CellValue) Logical() bool {
	return v.logical
}

func (v CellValue) Date() time.Time {
	return v.date
}

func (v CellValue) Array() [][]CellValue {
	return v.array
}

func (v CellValue) Reference() *Reference {
	return v.reference
}

func (v CellValue) Err() *FormulaError {
	return v.err
}

func (v CellValue) Sequence() []CellValue {
	return v.sequence
}

// ErrorKind returns the error kind, or zero when the value is not an error
func (v CellValue) ErrorKind() ErrorKind {
	if v.err == nil {
		return 0
	}
	return v.err.Kind
}

func (v CellValue) firstElement() CellValue {
	if v.Type != CellValueArray {
		return v
	}
	if len(v.array) == 0 || len(v.array[0]) == 0 {
		return EmptyValue()
	}
	return v.array[0][0]
}

// CoerceNumber converts the value to a number following spreadsheet rules:
// empty is 0, logicals are 1/0, numeric text is parsed, dates become serials.
func (v CellValue) CoerceNumber() (float64, bool) {
	switch v.Type {
	case CellValueEmpty:
		return 0, true
	case CellValueNumber:
		return v.number, true
	case CellValueDate:
		return DateToSerial(v.date), true
	case CellValueLogical:
		if v.logical {
			return 1, true
		}
		return 0, true
	case CellValueText:
		trimmed := strings.TrimSpace(v.text)
		if trimmed == "" {
			return 0, false
		}
		return parseNumberText(trimmed)
	case CellValueArray:
		if len(v.array) == 1 && len(v.array[0]) == 1 {
			return v.array[0][0].CoerceNumber()
		}
	}
	return 0, false
}

// parseNumberText parses decimal number text. hex floats, NaN and
// infinities are not numbers to a spreadsheet.
func parseNumberText(text string) (float64, bool) {
	if strings.ContainsAny(text, "xX_") {
		return 0, false
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// CoerceText converts the value to its text form
func (v CellValue) CoerceText() (string, bool) {
	switch v.Type {
	case CellValueEmpty:
		return "", true
	case CellValueText:
		return v.text, true
	case CellValueNumber:
		return formatNumber(v.number), true
	case CellValueDate:
		return formatNumber(DateToSerial(v.date)), true
	case CellValueLogical:
		if v.logical {
			return "TRUE", true
		}
		return "FALSE", true
	case CellValueArray:
		if len(v.array) == 1 && len(v.array[0]) == 1 {
			return v.array[0][0].CoerceText()
		}
	}
	return "", false
}

// CoerceLogical converts the value to a logical. numbers are true when
// non-zero; text must read TRUE or FALSE.
func (v CellValue) CoerceLogical() (bool, bool) {
	switch v.Type {
	case CellValueEmpty:
		return false, true
	case CellValueLogical:
		return v.logical, true
	case CellValueNumber:
		return v.number != 0, true
	case CellValueDate:
		return DateToSerial(v.date) != 0, true
	case CellValueText:
		switch strings.ToUpper(strings.TrimSpace(v.text)) {
		case "TRUE":
			return true, true
		case "FALSE":
			return false, true
		}
	case CellValueArray:
		if len(v.array) == 1 && len(v.array[0]) == 1 {
			return v.array[0][0].CoerceLogical()
		}
	}
	return false, false
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"1/2/2006",
	"1/2/2006 15:04",
	"2 Jan 2006",
}

// CoerceDate converts the value to a date. numbers are read as serials.
func (v CellValue) CoerceDate() (time.Time, bool) {
	switch v.Type {
	case CellValueDate:
		return v.date, true
	case CellValueNumber:
		return SerialToDate(v.number), true
	case CellValueEmpty:
		return SerialToDate(0), true
	case CellValueText:
		trimmed := strings.TrimSpace(v.text)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t, true
			}
		}
		if num, ok := parseNumberText(trimmed); ok {
			return SerialToDate(num), true
		}
	}
	return time.Time{}, false
}

// DateToSerial converts a time to an Excel serial number (days since the
// Excel epoch, fractional for the time of day)
func DateToSerial(t time.Time) float64 {
	return float64(t.UnixMilli()-ExcelEpochMs) / MsPerDay
}

// SerialToDate converts an Excel serial number to a UTC time
func SerialToDate(serial float64) time.Time {
	ms := int64(math.Round(serial*MsPerDay)) + ExcelEpochMs
	return time.UnixMilli(ms).UTC()
}

// String renders the value the way a cell would display it
func (v CellValue) String() string {
	switch v.Type {
	case CellValueError:
		return v.err.Kind.String()
	case CellValueDate:
		if v.date.Hour() == 0 && v.date.Minute() == 0 && v.date.Second() == 0 {
			return v.date.Format("2006-01-02")
		}
		return v.date.Format("2006-01-02 15:04:05")
	case CellValueArray:
		var b strings.Builder
		b.WriteByte('{')
		for i, row := range v.array {
			if i > 0 {
				b.WriteByte(';')
			}
			for j, cell := range row {
				if j > 0 {
					b.WriteByte(',')
				}
				b.WriteString(cell.literalText())
			}
		}
		b.WriteByte('}')
		return b.String()
	case CellValueSequence:
		parts := make([]string, len(v.sequence))
		for i, item := range v.sequence {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case CellValueReference:
		if v.reference == nil {
			return "#REF!"
		}
		return v.reference.ToAddressText()
	}
	text, _ := v.CoerceText()
	return text
}

// literalText renders the value the way it would be written in a formula
func (v CellValue) literalText() string {
	if v.Type == CellValueText {
		return `"` + strings.ReplaceAll(v.text, `"`, `""`) + `"`
	}
	return v.String()
}

// Equal reports whether two values hold the same variant and content
func (v CellValue) Equal(other CellValue) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case CellValueEmpty:
		return true
	case CellValueNumber:
		return v.number == other.number
	case CellValueText:
		return v.text == other.text
	case CellValueLogical:
		return v.logical == other.logical
	case CellValueDate:
		return v.date.Equal(other.date)
	case CellValueError:
		return v.err.Kind == other.err.Kind
	case CellValueReference:
		return v.reference.ToAddressText() == other.reference.ToAddressText()
	case CellValueArray:
		if len(v.array) != len(other.array) {
			return false
		}
		for i := range v.array {
			if len(v.array[i]) != len(other.array[i]) {
				return false
			}
			for j := range v.array[i] {
				if !v.array[i][j].Equal(other.array[i][j]) {
					return false
				}
			}
		}
		return true
	case CellValueSequence:
		if len(v.sequence) != len(other.sequence) {
			return false
		}
		for i := range v.sequence {
			if !v.sequence[i].Equal(other.sequence[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// formatNumber formats a number without unnecessary decimals
func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', 15, 64)
}
