package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

func newTokensCmd(opts *options) *cobra.Command {
	var excel bool
	var whitespace bool

	cmd := &cobra.Command{
		Use:   "tokens FORMULA",
		Short: "Print the tokens of a formula",
		Long: `Print the tokens of a formula. With --excel the references found by the
parser are compared with those reported by an Excel-compatible tokenizer;
the command fails when they disagree.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			tokens, lexErrors := spreadsheet.Lex(args[0], spreadsheet.LexOptions{
				Separators:         opts.separators(),
				PreserveWhitespace: whitespace,
			})

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, tok := range tokens {
				fmt.Fprintf(tw, "%d\t%s\t%q\n", tok.Pos, tok.Type, tok.Value)
			}
			tw.Flush()
			for _, msg := range lexErrors {
				fmt.Fprintln(cmd.ErrOrStderr(), "lex:", msg)
			}

			if !excel {
				return nil
			}
			cmp := spreadsheet.CompareWithExcelTokenizer(args[0])
			fmt.Fprintf(out, "ours:  %s\n", strings.Join(cmp.Ours, " "))
			fmt.Fprintf(out, "excel: %s\n", strings.Join(cmp.Excel, " "))
			if cmp.Agrees() {
				return nil
			}
			return exitCodeError{
				code: 3,
				err:  fmt.Errorf("references differ: missing %v, extra %v", cmp.Missing, cmp.Extra),
			}
		},
	}

	cmd.Flags().BoolVar(&excel, "excel", false, "compare references with the efp Excel tokenizer")
	cmd.Flags().BoolVar(&whitespace, "whitespace", false, "keep whitespace tokens")
	return cmd
}
