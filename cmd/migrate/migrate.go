// Package migrate implements the database migration commands.
package migrate

import (
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/relister/cmd/common"
	"github.com/jonesrussell/north-cloud/relister/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
)

// Command returns the migrate command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the embedded PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(upCommand(), downCommand(), versionCommand())
	return cmd
}

// withDatabase connects without the automatic migration that serve runs.
func withDatabase(fn func(db *sqlx.DB, log logger.Logger) error) error {
	cfg, err := bootstrap.LoadConfig(common.ConfigPath(), viper.GetBool(common.KeyDebug))
	if err != nil {
		return err
	}
	log, err := bootstrap.CreateLogger(cfg, common.Version)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := bootstrap.ConnectDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db, log)
}

func upCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDatabase(func(db *sqlx.DB, log logger.Logger) error {
				return database.MigrateUp(db.DB, log)
			})
		},
	}
}

func downCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid steps %q", args[0])
				}
				steps = n
			}
			return withDatabase(func(db *sqlx.DB, log logger.Logger) error {
				return database.MigrateDown(db.DB, steps, log)
			})
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(func(db *sqlx.DB, _ logger.Logger) error {
				version, dirty, err := database.MigrationVersion(db.DB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	}
}
