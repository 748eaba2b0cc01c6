package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-sieve/internal/batching"
	"github.com/23skdu/longbow-sieve/internal/logger"
)

func newPlanCmd() *cobra.Command {
	var (
		bsz, nSamples, limit int
		logLevel             string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show how samples would be split into sub-batches",
		Example: `  # 2 examples, 10 samples each, at most 5 examples per metric call
  sieve plan --batch-size 2 --n-samples 10 --max-examples-per-batch 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bsz < 1 {
				return fmt.Errorf("batch-size must be positive, got %d", bsz)
			}
			var limitPtr *int
			if cmd.Flags().Changed("max-examples-per-batch") {
				limitPtr = &limit
			}
			log := logger.New(cmd.ErrOrStderr(), logLevel, "console")

			width := 0
			if nSamples >= 1 {
				width = batching.ResolveChunkWidth(bsz, nSamples, limitPtr, log)
			}
			widths, err := batching.Plan(nSamples, width)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "chunk width: %d samples per example (%d examples per call)\n", width, width*bsz)
			fmt.Fprintf(cmd.OutOrStdout(), "iterations: %d\n", len(widths))
			table := newTable(cmd.OutOrStdout(), []string{"STEP", "WIDTH", "EXAMPLES", "COVERED"})
			covered := 0
			for i, w := range widths {
				covered += w
				table.Append([]string{strconv.Itoa(i), strconv.Itoa(w), strconv.Itoa(w * bsz), strconv.Itoa(covered)})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&bsz, "batch-size", 1, "number of original examples")
	cmd.Flags().IntVar(&nSamples, "n-samples", 1, "perturbed samples per example")
	cmd.Flags().IntVar(&limit, "max-examples-per-batch", 0, "cap on examples per metric call")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	return cmd
}
