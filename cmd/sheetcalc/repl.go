package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

const historyFile = ".sheetcalc_history"

const replHelp = `  A1 = 42          set a cell (content starting with = is a formula)
  =SUM(A1:A3)      evaluate a formula on the current sheet
  :sheet NAME      switch to a sheet, creating it if needed
  :show            print every cell
  :deps A1         show what a formula reads and what reads it
  :insert-rows 3 [COUNT]   :remove-rows 3 [COUNT]
  :insert-cols C [COUNT]   :remove-cols C [COUNT]
  :undo            undo the last row or column edit (cell edits clear this)
  :load FILE       apply a sheet script
  :quit`

// session is an interactive workbook. it has no terminal dependency so
// tests can drive it line by line.
type session struct {
	opts     *options
	wb       *spreadsheet.Workbook
	sheet    string
	restores []*spreadsheet.WorkbookRestoreData
}

func newSession(opts *options) (*session, error) {
	wb, err := opts.newWorkbook()
	if err != nil {
		return nil, err
	}
	return &session{opts: opts, wb: wb, sheet: opts.sheet}, nil
}

// qualify prefixes an unqualified address with the current sheet
func (s *session) qualify(address string) string {
	if strings.Contains(address, "!") {
		return address
	}
	return spreadsheet.QuoteSheetName(s.sheet) + "!" + address
}

// exec runs one line and reports whether the session should end
func (s *session) exec(line string, out io.Writer) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, ":") {
		return s.command(strings.Fields(line[1:]), out)
	}

	if entry, ok := parseAssignment(line); ok {
		assigned, err := s.assign(entry, out)
		if assigned || err != nil {
			return false, err
		}
	}

	value, tree := s.wb.Evaluate(s.sheet, line)
	if tree.HasErrors() {
		return false, spreadsheet.NewApplicationError(spreadsheet.InvalidArgument, strings.Join(tree.Errors, "; "))
	}
	fmt.Fprintln(out, value)
	return false, nil
}

// assign handles "ADDRESS = CONTENT". it reports false when the left side is
// not an address, so the line is evaluated as an expression instead.
func (s *session) assign(entry scriptEntry, out io.Writer) (bool, error) {
	address := s.qualify(entry.Address)
	_, err := s.wb.ParseAddress(address)
	var appErr *spreadsheet.AppError
	switch {
	case errors.As(err, &appErr) && appErr.Code == spreadsheet.InvalidArgument:
		return false, nil
	case errors.As(err, &appErr) && appErr.Code == spreadsheet.NotFound:
		if err := ensureSheet(s.wb, address); err != nil {
			return true, err
		}
	case err != nil:
		return true, err
	}

	if err := s.wb.SetCell(address, entry.Content); err != nil {
		return true, err
	}
	s.forgetUndo()
	if err := s.wb.Calculate(); err != nil {
		return true, err
	}
	value, err := s.wb.Get(address)
	if err != nil {
		return true, err
	}
	fmt.Fprintf(out, "%s = %s\n", entry.Address, value)
	return true, nil
}

// forgetUndo drops the structural edit history. restore data only undoes
// an edit when nothing else changed the sheet since.
func (s *session) forgetUndo() {
	s.restores = s.restores[:0]
}

func (s *session) command(fields []string, out io.Writer) (bool, error) {
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "quit", "q", "exit":
		return true, nil

	case "help", "?":
		fmt.Fprintln(out, replHelp)

	case "sheet":
		if len(args) != 1 {
			fmt.Fprintln(out, s.sheet)
			return false, nil
		}
		if _, exists := s.wb.Sheet(args[0]); !exists {
			if err := s.wb.AddSheet(args[0]); err != nil {
				return false, err
			}
		}
		ws, _ := s.wb.Sheet(args[0])
		s.sheet = ws.Name

	case "show":
		printValues(out, s.wb)

	case "deps":
		if len(args) != 1 {
			return false, usageError(":deps ADDRESS")
		}
		info, ok, err := s.wb.DependencyInfo(s.qualify(args[0]))
		if err != nil {
			return false, err
		}
		if !ok {
			fmt.Fprintf(out, "%s holds no formula\n", args[0])
			return false, nil
		}
		printDependencyInfo(out, info)

	case "insert-rows", "remove-rows", "insert-cols", "remove-cols":
		return false, s.structural(name, args, out)

	case "undo":
		if len(s.restores) == 0 {
			fmt.Fprintln(out, "nothing to undo")
			return false, nil
		}
		last := s.restores[len(s.restores)-1]
		s.restores = s.restores[:len(s.restores)-1]
		if err := s.wb.Restore(last); err != nil {
			return false, err
		}
		return false, s.wb.Calculate()

	case "load":
		if len(args) != 1 {
			return false, usageError(":load FILE")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return false, err
		}
		defer f.Close()
		entries, err := parseScript(f)
		if err != nil {
			return false, err
		}
		for i := range entries {
			entries[i].Address = s.qualify(entries[i].Address)
		}
		err = applyScript(s.wb, entries)
		s.forgetUndo()
		if err != nil {
			return false, err
		}
		if err := s.wb.Calculate(); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "loaded %d cells\n", len(entries))

	default:
		return false, usageError(":help")
	}
	return false, nil
}

// structural runs one of the row/column edits. rows are given 1-based and
// columns by letter, as they are displayed.
func (s *session) structural(name string, args []string, out io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError(":" + name + " INDEX [COUNT]")
	}
	count := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return usageError(":" + name + " INDEX [COUNT]")
		}
		count = n
	}

	var index int
	if strings.HasSuffix(name, "-rows") {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return spreadsheet.NewApplicationError(spreadsheet.InvalidArgument, fmt.Sprintf("bad row number %q", args[0]))
		}
		index = n - 1
	} else {
		col, ok := spreadsheet.ColumnIndex(args[0])
		if !ok {
			return spreadsheet.NewApplicationError(spreadsheet.InvalidArgument, fmt.Sprintf("bad column %q", args[0]))
		}
		index = col
	}

	edits := map[string]func(string, int, int) (*spreadsheet.WorkbookRestoreData, error){
		"insert-rows": s.wb.InsertRows,
		"remove-rows": s.wb.RemoveRows,
		"insert-cols": s.wb.InsertColumns,
		"remove-cols": s.wb.RemoveColumns,
	}
	restore, err := edits[name](s.sheet, index, count)
	if err != nil {
		return err
	}
	s.restores = append(s.restores, restore)
	if err := s.wb.Calculate(); err != nil {
		return err
	}

	engine := restore.Engine()
	fmt.Fprintf(out, "moved %d formulas, rewrote %d references, dropped %d formulas\n",
		engine.MovedVertices(), len(engine.References()), engine.FormulaChanges())
	return nil
}

func usageError(usage string) error {
	return spreadsheet.NewApplicationError(spreadsheet.InvalidArgument, "usage: "+usage)
}

// functionCompleter completes the function name being typed at the end of
// the line
func functionCompleter(names []string) liner.Completer {
	return func(line string) []string {
		start := strings.LastIndexFunc(line, func(r rune) bool {
			return !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '_')
		}) + 1
		prefix := strings.ToUpper(line[start:])
		if prefix == "" {
			return nil
		}
		var out []string
		for _, name := range names {
			if strings.HasPrefix(name, prefix) {
				out = append(out, line[:start]+name+"(")
			}
		}
		return out
	}
}

func newReplCmd(opts *options) *cobra.Command {
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Edit and evaluate a workbook interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(opts)
			if err != nil {
				return err
			}

			ln := liner.NewLiner()
			defer ln.Close()
			ln.SetCtrlCAborts(true)
			ln.SetCompleter(functionCompleter(s.wb.Functions().Names()))

			if !noHistory {
				home, _ := os.UserHomeDir()
				histPath := filepath.Join(home, historyFile)
				if f, err := os.Open(histPath); err == nil {
					_, _ = ln.ReadHistory(f)
					_ = f.Close()
				}
				defer func() {
					if f, err := os.Create(histPath); err == nil {
						_, _ = ln.WriteHistory(f)
						_ = f.Close()
					}
				}()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "sheetcalc: type :help for commands")
			for {
				line, err := ln.Prompt(s.sheet + "> ")
				if errors.Is(err, liner.ErrPromptAborted) {
					continue
				}
				if errors.Is(err, io.EOF) {
					fmt.Fprintln(out)
					return nil
				}
				if err != nil {
					return err
				}

				quit, err := s.exec(line, out)
				if strings.TrimSpace(line) != "" {
					ln.AppendHistory(line)
				}
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				}
				if quit {
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not read or write ~/"+historyFile)
	return cmd
}
