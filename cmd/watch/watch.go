package watch

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zielen-io/zielen/cmd/util"
	"github.com/zielen-io/zielen/pkg/fswatch"
)

// New creates a new `watch` command.
func New() *cobra.Command {
	var profileDir string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run reconciliation cycles continuously",
		Long: "Run reconciliation cycles continuously, triggered by local " +
			"filesystem changes, the profile's poll interval, or SIGHUP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, p, cleanup, err := util.LoadSyncer(profileDir)
			if err != nil {
				return err
			}
			defer cleanup()

			trigger, stopWatcher, err := fswatch.Watch(p.Config.LocalDir)
			if err != nil {
				log.WithError(err).Warn(
					"Failed to watch local files; relying on polling only")
				trigger = make(chan struct{})
			} else {
				defer stopWatcher()
			}

			// SIGHUP forces a cycle without waiting for the poll ticker.
			go func() {
				hups := make(chan os.Signal, 1)
				signal.Notify(hups, syscall.SIGHUP)
				for range hups {
					select {
					case trigger <- struct{}{}:
					default:
					}
				}
			}()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() {
				signals := make(chan os.Signal, 1)
				signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
				<-signals
				log.Info("Shutting down after the current cycle")
				cancel()
			}()

			if err := engine.Watch(ctx, trigger); err != context.Canceled {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profileDir, "profile", "", "Path to the profile directory")
	cmd.MarkFlagRequired("profile")
	return cmd
}
