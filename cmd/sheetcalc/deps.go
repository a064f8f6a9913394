package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

func newDepsCmd(opts *options) *cobra.Command {
	var order bool

	cmd := &cobra.Command{
		Use:   "deps FILE [ADDRESS]",
		Short: "Show the dependency graph of a sheet script",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := opts.loadScript(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 2 {
				info, ok, err := wb.DependencyInfo(args[1])
				if err != nil {
					return err
				}
				if !ok {
					return spreadsheet.NewApplicationError(spreadsheet.NotFound,
						fmt.Sprintf("no formula at %s", args[1]))
				}
				printDependencyInfo(out, info)
				return nil
			}

			for _, info := range wb.AllDependencyInfo() {
				printDependencyInfo(out, info)
			}

			if order {
				calc, cycles := wb.Manager().CalculationOrder()
				fmt.Fprintf(out, "order: %s\n", strings.Join(vertexKeys(calc), " "))
				if len(cycles) > 0 {
					fmt.Fprintf(out, "circular: %s\n", strings.Join(vertexKeys(cycles), " "))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&order, "order", false, "also print the calculation order and circular formulas")
	return cmd
}

func printDependencyInfo(w io.Writer, info spreadsheet.DependencyInfo) {
	fmt.Fprintf(w, "%s %s\n", info.Key, info.Formula)
	if len(info.Regions) > 0 {
		fmt.Fprintf(w, "  reads:      %s\n", strings.Join(info.Regions, " "))
	}
	if len(info.Precedents) > 0 {
		fmt.Fprintf(w, "  precedents: %s\n", strings.Join(info.Precedents, " "))
	}
	if len(info.Dependents) > 0 {
		fmt.Fprintf(w, "  dependents: %s\n", strings.Join(info.Dependents, " "))
	}
}

func vertexKeys(vertices []*spreadsheet.FormulaVertex) []string {
	keys := make([]string, len(vertices))
	for i, v := range vertices {
		keys[i] = v.Key()
	}
	return keys
}
