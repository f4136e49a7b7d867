// Package cmd implements the command-line interface for relister.
// It provides the root command and subcommands for running the service and
// operating on listings, jobs, the release queue and offers.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/relister/cmd/common"
	"github.com/jonesrussell/north-cloud/relister/cmd/jobs"
	"github.com/jonesrussell/north-cloud/relister/cmd/listings"
	"github.com/jonesrussell/north-cloud/relister/cmd/migrate"
	"github.com/jonesrussell/north-cloud/relister/cmd/offers"
	"github.com/jonesrussell/north-cloud/relister/cmd/profit"
	"github.com/jonesrussell/north-cloud/relister/cmd/queue"
	"github.com/jonesrussell/north-cloud/relister/cmd/serve"
)

const envPrefix = "RELISTER"

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relister",
		Short: "Listing lifecycle automation engine",
		Long: `relister keeps marketplace listings selling: it flags stale listings,
recreates them, reprices on a ladder, sends and triages offers, releases
new listings in traffic surges and marks down what will not sell.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd.Root())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().String(common.KeyConfig, "", "config file (default is ./config.yml when present)")
	rootCmd.PersistentFlags().Bool(common.KeyDebug, false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relister version %s\n", common.Version)
		},
	})

	rootCmd.AddCommand(
		serve.Command(),
		jobs.Command(),
		queue.Command(),
		offers.Command(),
		listings.Command(),
		profit.Command(),
		migrate.Command(),
	)
	return rootCmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel one-shot
// commands; serve handles its own shutdown.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// initConfig binds flags and RELISTER_* environment variables to viper.
// Flags win over the environment.
func initConfig(root *cobra.Command) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	for _, key := range []string{common.KeyConfig, common.KeyDebug} {
		if err := viper.BindPFlag(key, root.PersistentFlags().Lookup(key)); err != nil {
			return fmt.Errorf("failed to bind %s flag: %w", key, err)
		}
	}
	return nil
}
