package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

func newEvalCmd(opts *options) *cobra.Command {
	var assignments []string

	cmd := &cobra.Command{
		Use:   "eval FORMULA",
		Short: "Evaluate one formula against cells given with --set",
		Example: `  sheetcalc eval "=SUM(A1:A3)*2" --set A1=1 --set A2=2 --set A3==A1+A2
  sheetcalc --sep-eu eval "=ROUND(2,345;2)"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := opts.newWorkbook()
			if err != nil {
				return err
			}

			entries := make([]scriptEntry, 0, len(assignments))
			for i, text := range assignments {
				entry, ok := parseAssignment(text)
				if !ok {
					return spreadsheet.NewApplicationError(spreadsheet.InvalidArgument,
						fmt.Sprintf("--set %q: expected ADDRESS=CONTENT", text))
				}
				entry.Line = i + 1
				entries = append(entries, entry)
			}
			if err := applyScript(wb, entries); err != nil {
				return err
			}
			if err := wb.Calculate(); err != nil {
				return err
			}

			value, tree := wb.Evaluate(opts.sheet, args[0])
			for _, msg := range tree.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), "parse:", msg)
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&assignments, "set", nil, "cell assignment ADDRESS=CONTENT, repeatable")
	return cmd
}
