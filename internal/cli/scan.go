package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slaythrax/clamui-sub000/internal/config"
	"github.com/slaythrax/clamui-sub000/internal/logging"
	"github.com/slaythrax/clamui-sub000/internal/progress"
	"github.com/slaythrax/clamui-sub000/internal/quarantine"
	"github.com/slaythrax/clamui-sub000/internal/scanner"
)

// ErrThreatsFound maps to exit status 1 so scripts can branch on the scan
// outcome. Deferred cleanup still runs, unlike a direct exit.
var ErrThreatsFound = errors.New("threats found")

func newScanCmd() *cobra.Command {
	var (
		profileID    string
		noQuarantine bool
	)

	cmd := &cobra.Command{
		Use:   "scan [path...]",
		Short: "Scan paths or a profile for threats",
		Long: `Scan the given paths, or the paths of a scan profile when none are given.
Infected files are moved to the quarantine unless --no-quarantine is set.

Exit status is 0 for a clean scan, 1 when threats were found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(settingsPath())
			if err != nil {
				return err
			}

			paths := args
			id := profileID
			if len(paths) == 0 {
				profile, ok := settings.ProfileByID(profileID)
				if !ok {
					if profile, ok = settings.Current(); !ok {
						return fmt.Errorf("no paths given and no profile configured")
					}
				}
				id = profile.ID
				paths = profile.Paths
			}

			ctx, cancel := signalContext()
			defer cancel()

			s := scanner.New(scanner.Options{
				BinPath:  settings.Scanner.BinPath,
				Logger:   logging.New("scanner"),
				Progress: progress.NewCLIProgress(),
			})

			summary, err := s.Scan(ctx, id, paths)
			if err != nil {
				return err
			}

			fmt.Printf("Scanned %d files in %s\n",
				summary.FilesScanned, summary.Duration.Round(summaryRounding))

			if len(summary.Findings) == 0 {
				fmt.Println("No threats found.")
				return nil
			}

			for _, f := range summary.Findings {
				fmt.Printf("THREAT  %s  (%s)\n", f.Path, f.Signature)
			}

			if !noQuarantine {
				store, err := openQuarantine()
				if err != nil {
					return err
				}
				defer store.Close()
				for _, f := range summary.Findings {
					entry, err := store.Add(ctx, f.Path, f.Signature)
					if err != nil {
						fmt.Fprintf(os.Stderr, "failed to quarantine %s: %v\n", f.Path, err)
						continue
					}
					fmt.Printf("quarantined %s as %s\n", f.Path, entry.ID)
				}
			}

			return ErrThreatsFound
		},
	}

	cmd.Flags().StringVarP(&profileID, "profile", "p", "", "Scan profile to use when no paths are given")
	cmd.Flags().BoolVar(&noQuarantine, "no-quarantine", false, "Report threats without quarantining them")
	return cmd
}

func openQuarantine() (*quarantine.Store, error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, err
	}
	return quarantine.Open(
		quarantineDBPath(),
		quarantineVaultPath(),
		logging.New("quarantine"),
		nil,
	)
}
