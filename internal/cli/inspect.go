package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-sieve/internal/arrowio"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print a result file written by run --output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := arrowio.ReadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "n_samples=%d chunk_width=%d aggregation=%s device=%s\n",
				res.NSamples, res.ChunkWidth, res.Aggregation, res.Device)
			per := 0
			if res.Aggregation == "sum" {
				per = res.NSamples
			}
			renderValues(cmd.OutOrStdout(), res.Values, per, nil)
			return nil
		},
	}
}
