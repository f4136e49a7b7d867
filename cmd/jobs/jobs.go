// Package jobs implements the commands that list, run and audit lifecycle
// jobs.
package jobs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/relister/cmd/common"
	"github.com/jonesrussell/north-cloud/relister/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
)

const defaultHistoryLimit = 20

// Command returns the jobs command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List, run and audit lifecycle jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(listCommand(), runCommand(), historyCommand())
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered jobs and their schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.WithApp(cmd, func(app *bootstrap.App) error {
				t := common.NewTable(cmd)
				t.AppendHeader(table.Row{"Job", "Schedule"})
				for _, e := range app.Services.Registry.List() {
					schedule := e.Schedule
					if schedule == "" {
						schedule = "manual"
					}
					t.AppendRow(table.Row{e.Job.Name(), schedule})
				}
				t.Render()
				return nil
			})
		},
	}
}

func runCommand() *cobra.Command {
	var (
		dryRun  bool
		asJSON  bool
		details bool
	)

	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Run a job once",
		Long: `Run a registered job immediately. With --dry-run every decision is
computed and reported but nothing is written and no marketplace mutation
is sent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.WithApp(cmd, func(app *bootstrap.App) error {
				result, rec, err := app.Services.Runner.Run(cmd.Context(), args[0], orchestrator.RunOptions{
					DryRun:  dryRun,
					Trigger: domain.TriggerManual,
				})
				if result != nil {
					if asJSON {
						if printErr := common.PrintJSON(cmd.OutOrStdout(), result); printErr != nil {
							return printErr
						}
					} else {
						renderResult(cmd, result, rec, details)
					}
				}
				if err != nil {
					return fmt.Errorf("job %s: %w", args[0], err)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report decisions without writing anything")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&details, "details", false, "Print one row per listing")
	return cmd
}

func renderResult(cmd *cobra.Command, result *orchestrator.Result, rec *domain.JobExecutionRecord, details bool) {
	t := common.NewTable(cmd)
	t.SetTitle(result.Job)
	t.AppendHeader(table.Row{"Dry Run", "Scanned", "Succeeded", "Skipped", "Errored", "Actions"})
	t.AppendRow(table.Row{
		result.DryRun,
		result.Scanned,
		result.Succeeded,
		result.Skipped,
		result.Errored,
		formatActions(result.Actions),
	})
	if rec != nil {
		t.AppendFooter(table.Row{"Status", rec.Status, "Duration", fmt.Sprintf("%dms", rec.DurationMs)})
	}
	t.Render()

	if !details || len(result.Details) == 0 {
		return
	}

	d := common.NewTable(cmd)
	d.AppendHeader(table.Row{"Listing", "Outcome", "Action", "Reason", "Error"})
	for _, detail := range result.Details {
		d.AppendRow(table.Row{detail.ListingID, detail.Outcome, detail.Action, detail.Reason, detail.Error})
	}
	d.Render()
}

func formatActions(actions map[string]int) string {
	if len(actions) == 0 {
		return "-"
	}
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, actions[name]))
	}
	return strings.Join(parts, " ")
}

func historyCommand() *cobra.Command {
	var (
		job   string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent job executions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.WithApp(cmd, func(app *bootstrap.App) error {
				records, err := app.Storage.Executions.List(cmd.Context(), job, limit, 0)
				if err != nil {
					return err
				}

				t := common.NewTable(cmd)
				t.AppendHeader(table.Row{
					"Started", "Job", "Trigger", "Dry Run", "Status", "Touched", "OK", "Skipped", "Errored",
				})
				for _, r := range records {
					t.AppendRow(table.Row{
						common.FormatTime(&r.StartedAt),
						r.JobName,
						r.Trigger,
						r.DryRun,
						r.Status,
						r.ListingsTouched,
						r.Succeeded,
						r.Skipped,
						r.Errored,
					})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "Only show executions of this job")
	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "Maximum number of executions")
	return cmd
}
