package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCalcCmd(opts *options) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "calc FILE",
		Short: "Calculate a sheet script and print every cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := opts.loadScript(args[0])
			if err != nil {
				return err
			}
			failed := printValues(cmd.OutOrStdout(), wb)
			if strict && failed > 0 {
				return exitCodeError{code: 3, err: fmt.Errorf("%d cells hold errors", failed)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "exit with status 3 when any cell holds an error")
	return cmd
}
