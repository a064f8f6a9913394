package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

// exitCodeError carries a process exit code out of a command
type exitCodeError struct {
	code int
	err  error
}

func (e exitCodeError) Error() string {
	if e.err == nil {
		return "command failed"
	}
	return e.err.Error()
}

func (e exitCodeError) ExitCode() int {
	if e.code <= 0 {
		return 1
	}
	return e.code
}

func (e exitCodeError) Unwrap() error {
	return e.err
}

// options are the persistent flags shared by every subcommand
type options struct {
	verbose  bool
	european bool
	sheet    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "sheetcalc",
		Short:         "Evaluate spreadsheet formulas and inspect their dependencies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")
	cmd.PersistentFlags().BoolVar(&opts.european, "sep-eu", false, "use ; between arguments and , as decimal separator")
	cmd.PersistentFlags().StringVar(&opts.sheet, "sheet", "Sheet1", "name of the default sheet")

	cmd.AddCommand(
		newEvalCmd(opts),
		newTokensCmd(opts),
		newDepsCmd(opts),
		newCalcCmd(opts),
		newReplCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

func (o *options) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *options) separators() spreadsheet.SeparatorSettings {
	if o.european {
		return spreadsheet.EuropeanSeparatorSettings()
	}
	return spreadsheet.DefaultSeparatorSettings()
}

// newWorkbook returns an empty workbook holding the default sheet
func (o *options) newWorkbook() (*spreadsheet.Workbook, error) {
	wb := spreadsheet.NewWorkbook(
		spreadsheet.WithSeparators(o.separators()),
		spreadsheet.WithLogger(o.logger()),
	)
	if err := wb.AddSheet(o.sheet); err != nil {
		return nil, err
	}
	return wb, nil
}
