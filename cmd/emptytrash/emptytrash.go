package emptytrash

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zielen-io/zielen/cmd/util"
)

// New creates a new `empty-trash` command.
func New() *cobra.Command {
	var profileDir string
	cmd := &cobra.Command{
		Use:   "empty-trash",
		Short: "Permanently remove remote files marked for deletion",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, cleanup, err := util.LoadSyncer(profileDir)
			if err != nil {
				return err
			}
			defer cleanup()

			purged, err := engine.EmptyTrash()
			if err != nil {
				return err
			}
			log.WithField("purged", purged).Info("Emptied remote trash")
			return nil
		},
	}
	cmd.Flags().StringVar(&profileDir, "profile", "", "Path to the profile directory")
	cmd.MarkFlagRequired("profile")
	return cmd
}
