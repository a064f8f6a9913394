package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

// scriptEntry is one "ADDRESS = CONTENT" line of a sheet script
type scriptEntry struct {
	Line    int
	Address string
	Content string
}

// parseScript reads a sheet script. blank lines and lines starting with #
// are skipped; content starting with = is a formula.
func parseScript(r io.Reader) ([]scriptEntry, error) {
	var entries []scriptEntry
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		entry, ok := parseAssignment(text)
		if !ok {
			return nil, spreadsheet.NewApplicationError(spreadsheet.InvalidArgument,
				fmt.Sprintf("line %d: expected ADDRESS = CONTENT, got %q", line, text))
		}
		entry.Line = line
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// parseAssignment splits "A1 = content" at the first =
func parseAssignment(text string) (scriptEntry, bool) {
	address, content, ok := strings.Cut(text, "=")
	address = strings.TrimSpace(address)
	if !ok || address == "" {
		return scriptEntry{}, false
	}
	return scriptEntry{Address: address, Content: strings.TrimSpace(content)}, true
}

// ensureSheet adds the sheet named by a qualified address when the workbook
// does not have it yet
func ensureSheet(wb *spreadsheet.Workbook, address string) error {
	bang := strings.LastIndexByte(address, '!')
	if bang < 0 {
		return nil
	}
	name := spreadsheet.UnquoteSheetName(strings.TrimSpace(address[:bang]))
	if _, exists := wb.Sheet(name); exists {
		return nil
	}
	return wb.AddSheet(name)
}

// applyScript writes every entry into wb, creating sheets on first use
func applyScript(wb *spreadsheet.Workbook, entries []scriptEntry) error {
	for _, e := range entries {
		if err := ensureSheet(wb, e.Address); err != nil {
			return fmt.Errorf("line %d: %w", e.Line, err)
		}
		if err := wb.SetCell(e.Address, e.Content); err != nil {
			return fmt.Errorf("line %d: %w", e.Line, err)
		}
	}
	return nil
}

// loadScript builds and calculates a workbook from the script at path
func (o *options) loadScript(path string) (*spreadsheet.Workbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := parseScript(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	wb, err := o.newWorkbook()
	if err != nil {
		return nil, err
	}
	if err := applyScript(wb, entries); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := wb.Calculate(); err != nil {
		return nil, err
	}
	return wb, nil
}

// sortedCells returns the occupied cells of a sheet in row-major order
func sortedCells(ws *spreadsheet.Worksheet) []*spreadsheet.Cell {
	cells := slices.Collect(ws.Cells())
	slices.SortFunc(cells, func(a, b *spreadsheet.Cell) int {
		if a.Row != b.Row {
			return a.Row - b.Row
		}
		return a.Col - b.Col
	})
	return cells
}

// printValues writes every cell of every sheet with its value and formula.
// it returns the number of cells holding an error.
func printValues(w io.Writer, wb *spreadsheet.Workbook) int {
	failed := 0
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range wb.Sheets() {
		ws, _ := wb.Sheet(name)
		for _, cell := range sortedCells(ws) {
			addr := spreadsheet.CellAddress{Sheet: name, Row: cell.Row, Col: cell.Col}
			formula := ""
			if cell.HasFormula() {
				formula = cell.Formula.ToExpressionText()
			}
			if cell.Value.IsError() {
				failed++
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", addr, cell.Value, formula)
		}
	}
	tw.Flush()
	return failed
}
