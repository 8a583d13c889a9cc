package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zielen-io/zielen/cmd/emptytrash"
	syncCmd "github.com/zielen-io/zielen/cmd/sync"
	"github.com/zielen-io/zielen/cmd/util"
	"github.com/zielen-io/zielen/cmd/version"
	"github.com/zielen-io/zielen/cmd/watch"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info
// and above.
const verboseLogKey = "ZIELEN_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "zielen",
		Short:        "Keep the most relevant part of a remote directory mirrored locally",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		emptytrash.New(),
		syncCmd.New(),
		version.New(),
		watch.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
