package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slaythrax/clamui-sub000/internal/config"
	"github.com/slaythrax/clamui-sub000/internal/logging"
	"github.com/slaythrax/clamui-sub000/internal/updater"
)

func newUpdateCmd() *cobra.Command {
	var mirror string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download the latest virus definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(settingsPath())
			if err != nil {
				return err
			}
			if mirror == "" {
				mirror = settings.Updater.Mirror
			}

			ctx, cancel := signalContext()
			defer cancel()

			u := updater.New(updater.Options{
				Mirror:  mirror,
				DestDir: config.DefinitionsDir(),
				Logger:  logging.New("updater"),
			})
			if err := u.Update(ctx); err != nil {
				return err
			}
			fmt.Println("Definitions are up to date.")
			return nil
		},
	}

	cmd.Flags().StringVar(&mirror, "mirror", "", "Override the definitions mirror URL")
	return cmd
}
