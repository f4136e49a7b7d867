// Package queue implements the smart queue commands.
package queue

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/relister/cmd/common"
	"github.com/jonesrussell/north-cloud/relister/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/smartqueue"
)

// Command returns the queue command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the release queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(addCommand(), statusCommand(), cancelCommand())
	return cmd
}

func addCommand() *cobra.Command {
	var (
		priority  int
		window    string
		notBefore string
	)

	cmd := &cobra.Command{
		Use:   "add <listing-id>",
		Short: "Queue a draft listing for release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := smartqueue.EnqueueRequest{
				ListingID: args[0],
				Priority:  priority,
				Window:    window,
			}
			if notBefore != "" {
				at, err := time.Parse(time.RFC3339, notBefore)
				if err != nil {
					return fmt.Errorf("invalid --not-before: %w", err)
				}
				req.NotBefore = &at
			}

			return common.WithApp(cmd, func(app *bootstrap.App) error {
				entry, err := app.Services.Queue.Enqueue(cmd.Context(), req)
				if err != nil {
					return err
				}
				renderEntry(cmd, entry)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "Higher priorities release first")
	cmd.Flags().StringVar(&window, "window", domain.WindowAny, "Release window: surge or any")
	cmd.Flags().StringVar(&notBefore, "not-before", "", "Earliest release time (RFC3339)")
	return cmd
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counts and the surge window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.WithApp(cmd, func(app *bootstrap.App) error {
				stats, err := app.Services.Queue.Status(cmd.Context())
				if err != nil {
					return err
				}

				t := common.NewTable(cmd)
				t.AppendHeader(table.Row{"Pending", "Released Today", "Failed", "Total", "Surge Active", "Surge Window"})
				t.AppendRow(table.Row{
					stats.Pending,
					stats.ReleasedToday,
					stats.Failed,
					stats.Total,
					stats.SurgeActive,
					app.Services.Queue.Window().String(),
				})
				t.Render()
				return nil
			})
		},
	}
}

func cancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <entry-id>",
		Short: "Cancel a pending entry and return its listing to draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.WithApp(cmd, func(app *bootstrap.App) error {
				entry, err := app.Services.Queue.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				renderEntry(cmd, entry)
				return nil
			})
		},
	}
}

func renderEntry(cmd *cobra.Command, e *domain.QueueEntry) {
	t := common.NewTable(cmd)
	t.AppendHeader(table.Row{"Entry", "Listing", "Priority", "Window", "Status", "Scheduled"})
	t.AppendRow(table.Row{e.ID, e.ListingID, e.Priority, e.Window, e.Status, common.FormatTime(&e.ScheduledAt)})
	t.Render()
}
