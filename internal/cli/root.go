package cli

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the sieve command tree.
func NewRootCmd(ver string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sieve",
		Short:         "Chunked metric aggregation over perturbed samples",
		Version:       ver,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newRunCmd(), newPlanCmd(), newInspectCmd())
	return cmd
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// renderValues prints one row per example. scores adds the unperturbed
// score column when non-nil.
func renderValues(w io.Writer, values []float32, nSamples int, scores []float64) {
	header := []string{"EXAMPLE", "VALUE", "PER SAMPLE"}
	if scores != nil {
		header = append(header, "SCORE")
	}
	table := newTable(w, header)
	for i, v := range values {
		per := ""
		if nSamples > 0 {
			per = strconv.FormatFloat(float64(v)/float64(nSamples), 'g', 6, 64)
		}
		row := []string{strconv.Itoa(i), strconv.FormatFloat(float64(v), 'g', 6, 32), per}
		if scores != nil {
			row = append(row, strconv.FormatFloat(scores[i], 'g', 6, 64))
		}
		table.Append(row)
	}
	table.Render()
}
