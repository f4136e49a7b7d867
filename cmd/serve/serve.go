// Package serve implements the command that runs the HTTP API and the job
// scheduler.
package serve

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/relister/cmd/common"
	"github.com/jonesrussell/north-cloud/relister/internal/bootstrap"
)

// Command returns the serve command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job scheduler",
		Long: `Run the relister service: the cron scheduler triggers every job with a
schedule and the HTTP API exposes manual runs, intake and health.
Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return bootstrap.Start(common.Options())
		},
	}
}
