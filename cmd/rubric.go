package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/signalnine/autograder/internal/rubric"
	"github.com/spf13/cobra"
)

var flagRubricFormat string

func newRubricCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rubric <file>",
		Short: "Parse a rubric and print its criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rubric.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch flagRubricFormat {
			case "text":
				_, err := fmt.Fprint(out, r.String())
				return err
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			case "table":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSECTION\tMAX\tRULES\tDESCRIPTION")
				for _, c := range r.Criteria() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Section,
						rubric.FormatPoints(c.MaxDeduction), len(c.Rules), c.Description)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(out, "\nTotal points: %s, largest possible deduction: %s\n",
					rubric.FormatPoints(r.TotalPoints), rubric.FormatPoints(r.MaxTotalDeduction()))
				return nil
			default:
				return fmt.Errorf("unknown rubric format %q (want table, text or json)", flagRubricFormat)
			}
		},
	}
	cmd.Flags().StringVar(&flagRubricFormat, "format", "table", "output format (table, text, json)")
	return cmd
}
