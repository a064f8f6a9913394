package spreadsheet

import (
	"sort"
	"strings"

	"github.com/xuri/efp"
)

// ReferenceComparison lines up the references our parser finds in a formula
// with the range operands the efp Excel tokenizer reports. both sides are
// canonicalized: upper case, no $ markers, sheet names quoted the same way.
type ReferenceComparison struct {
	Ours    []string
	Excel   []string
	Missing []string // reported by efp only
	Extra   []string // reported by our parser only
}

// Agrees reports whether both tokenizers found the same references
func (c ReferenceComparison) Agrees() bool {
	return len(c.Missing) == 0 && len(c.Extra) == 0
}

// CompareWithExcelTokenizer parses text with default separators and with
// efp, and compares the references each one finds
func CompareWithExcelTokenizer(text string) ReferenceComparison {
	var cmp ReferenceComparison

	tree := ParseFormula(text, DefaultSeparatorSettings())
	for _, ref := range tree.References {
		cmp.Ours = append(cmp.Ours, canonicalReferenceText(ref.ToAddressText()))
	}

	ps := efp.ExcelParser()
	for _, token := range ps.Parse(text) {
		if token.TType != efp.TokenTypeOperand || token.TSubType != efp.TokenSubTypeRange {
			continue
		}
		cmp.Excel = append(cmp.Excel, canonicalReferenceText(token.TValue))
	}

	cmp.Missing = difference(cmp.Excel, cmp.Ours)
	cmp.Extra = difference(cmp.Ours, cmp.Excel)
	return cmp
}

func canonicalReferenceText(text string) string {
	text = strings.ReplaceAll(text, "$", "")
	bang := strings.LastIndexByte(text, '!')
	if bang < 0 {
		return strings.ToUpper(text)
	}
	sheet := UnquoteSheetName(text[:bang])
	return QuoteSheetName(strings.ToUpper(sheet)) + "!" + strings.ToUpper(text[bang+1:])
}

// difference returns the elements of a not in b, as a multiset, sorted
func difference(a, b []string) []string {
	counts := make(map[string]int, len(b))
	for _, s := range b {
		counts[s]++
	}
	var out []string
	for _, s := range a {
		if counts[s] > 0 {
			counts[s]--
			continue
		}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
