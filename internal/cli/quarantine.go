package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/slaythrax/clamui-sub000/internal/config"
)

const summaryRounding = 10 * time.Millisecond

func quarantineDBPath() string {
	return filepath.Join(config.QuarantineDir(), "quarantine.db")
}

func quarantineVaultPath() string {
	return filepath.Join(config.QuarantineDir(), "vault")
}

func newQuarantineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Manage quarantined files",
	}
	cmd.AddCommand(newQuarantineListCmd())
	cmd.AddCommand(newQuarantineRestoreCmd())
	cmd.AddCommand(newQuarantineRmCmd())
	return cmd
}

func newQuarantineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List quarantined files",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := openQuarantine()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Quarantine is empty.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tQUARANTINED\tSIGNATURE\tORIGINAL PATH")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.ID,
					e.QuarantinedAt.Local().Format("2006-01-02 15:04"),
					e.Signature,
					e.OriginalPath,
				)
			}
			return w.Flush()
		},
	}
}

func newQuarantineRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a quarantined file to its original location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := openQuarantine()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Restore(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("restored %s\n", args[0])
			return nil
		},
	}
}

func newQuarantineRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Permanently delete a quarantined file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := openQuarantine()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
