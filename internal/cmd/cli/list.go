package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/V4T54L/aep-ledger/internal/usecase"
)

func newListCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ledger files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc := usecase.NewInspectLedgerUseCase(e.enumerator(), e.reader(), e.logger)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Listing files for ledger: '%s' in directory: %s\n", e.cfg.LedgerName, e.cfg.LedgerBasePath)

			files, err := uc.List()
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(out, "No ledger files found.")
				return nil
			}
			for _, f := range files {
				status := "archived"
				if f.Current {
					status = "current"
				}
				fmt.Fprintf(out, "  - %s (%s) (Size: %d bytes)\n", f.Name, status, f.Size)
			}
			return nil
		},
	}
}
