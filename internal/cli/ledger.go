package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dicom-deidentify/internal/ledger"
)

func (a *app) newLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Maintain audit ledgers",
	}

	merge := &cobra.Command{
		Use:   "merge <ledger>",
		Short: "Move entries from side files into the ledger",
		Long: `When a writer cannot lock the ledger in time it appends its entry to a side file
named <ledger>_<writer>. Merge appends the entries of every side file to the ledger
and removes the side files. Run it when no batch is writing to the ledger.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := ledger.New(args[0], ledger.WithTimeout(a.v.GetDuration("lock-timeout")))
			if err != nil {
				return err
			}
			n, err := l.Merge(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %s entries into %s\n", humanize.Comma(int64(n)), l.Path())
			return err
		},
	}
	merge.Flags().Duration("lock-timeout", 5*time.Second, "how long to wait for the ledger lock")

	cmd.AddCommand(merge)
	return cmd
}
