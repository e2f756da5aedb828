package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/V4T54L/aep-ledger/internal/usecase"
)

func newMergeCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "merge OUTPUT INPUT...",
		Short: "Merge ledger files into one deduplicated, time-ordered file",
		Long: "Merge reads the input files (current files or .gz archives) in order, keeps the first\n" +
			"event seen for each id, sorts by ts and writes OUTPUT. An OUTPUT ending in .gz is\n" +
			"gzip compressed. Missing or truncated inputs are reported and skipped.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			inputs := make([]string, 0, len(args)-1)
			for _, in := range args[1:] {
				abs, err := filepath.Abs(in)
				if err != nil {
					return err
				}
				inputs = append(inputs, abs)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Merging ledger files into: %s\n", output)
			uc := usecase.NewMergeEventsUseCase(e.reader(), e.logger, nil)
			report, err := uc.Merge(cmd.Context(), inputs, output)
			for _, in := range report.Inputs {
				switch {
				case in.Skipped:
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: skipping input %s: %v\n", in.Path, in.Err)
				case in.Truncated:
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s is truncated, merged %d decodable events\n", in.Path, in.Read)
					fmt.Fprintf(out, "  %s: read %d events, added %d new unique events\n", filepath.Base(in.Path), in.Read, in.Added)
				default:
					fmt.Fprintf(out, "  %s: read %d events, added %d new unique events\n", filepath.Base(in.Path), in.Read, in.Added)
				}
			}
			if err != nil {
				return fmt.Errorf("writing merged output to %s: %w", output, err)
			}
			if report.WithoutID > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %d events without an id were kept as is\n", report.WithoutID)
			}
			fmt.Fprintf(out, "Successfully merged %d events to %s (%d duplicates dropped)\n", report.Written, output, report.Duplicates)
			return nil
		},
	}
}
