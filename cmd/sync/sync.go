package sync

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zielen-io/zielen/cmd/util"
)

// New creates a new `sync` command.
func New() *cobra.Command {
	var profileDir string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single reconciliation cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, cleanup, err := util.LoadSyncer(profileDir)
			if err != nil {
				return err
			}
			defer cleanup()

			plan, err := engine.RunOnce(context.Background())
			if err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"fetched": len(plan.ToFetch),
				"evicted": len(plan.ToEvict),
				"pushed":  len(plan.ToPush),
			}).Info("Sync complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&profileDir, "profile", "", "Path to the profile directory")
	cmd.MarkFlagRequired("profile")
	return cmd
}
