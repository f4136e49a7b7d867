// Package listings implements listing intake and external confirmation
// commands.
package listings

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/relister/cmd/common"
	"github.com/jonesrussell/north-cloud/relister/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
)

// Command returns the listings command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Create listings and record marketplace outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		addCommand(),
		listCommand(),
		transitionCommand("publish", "Create the marketplace item for a draft", (*listing.Service).Publish),
		transitionCommand("sold", "Record a sale confirmed by the marketplace", (*listing.Service).MarkSold),
		transitionCommand("end", "End the listing and its marketplace item", (*listing.Service).End),
		historyCommand(),
	)
	return cmd
}

func addCommand() *cobra.Command {
	var (
		in                        listing.Input
		purchase, shipping, price string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a draft listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if in.PurchasePrice, err = parseMoney("purchase", purchase); err != nil {
				return err
			}
			if in.ShippingCost, err = parseMoney("shipping", shipping); err != nil {
				return err
			}
			if in.ListPrice, err = parseMoney("price", price); err != nil {
				return err
			}

			return common.WithApp(cmd, func(app *bootstrap.App) error {
				l, createErr := app.Services.Listings.Create(cmd.Context(), in)
				if createErr != nil {
					return createErr
				}
				renderListings(cmd, []*domain.Listing{l})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.SKU, "sku", "", "Seller SKU")
	cmd.Flags().StringVar(&in.Title, "title", "", "Listing title")
	cmd.Flags().StringVar(&in.Category, "category", "", "Category, used by the disposal policy")
	cmd.Flags().StringSliceVar(&in.PhotoURLs, "photo", nil, "Photo URL; repeat for more photos")
	cmd.Flags().StringVar(&purchase, "purchase", "0", "Purchase price")
	cmd.Flags().StringVar(&shipping, "shipping", "0", "Shipping cost")
	cmd.Flags().StringVar(&price, "price", "", "List price")
	_ = cmd.MarkFlagRequired("sku")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func parseMoney(flag, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", flag, value, err)
	}
	return d, nil
}

func listCommand() *cobra.Command {
	var (
		statuses []string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List listings, optionally by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := database.ListingFilter{Limit: limit}
			for _, s := range statuses {
				status := domain.ListingStatus(strings.TrimSpace(s))
				if !status.Valid() {
					return fmt.Errorf("unknown status %q", s)
				}
				filter.Statuses = append(filter.Statuses, status)
			}

			return common.WithApp(cmd, func(app *bootstrap.App) error {
				listings, err := app.Services.Listings.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				renderListings(cmd, listings)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (draft, queued, active, zombie, purgatory, sold, ended)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of listings; 0 for all")
	return cmd
}

type transitionFunc func(s *listing.Service, ctx context.Context, id string) (*domain.Listing, error)

func transitionCommand(use, short string, fn transitionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <listing-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.WithApp(cmd, func(app *bootstrap.App) error {
				l, err := fn(app.Services.Listings, cmd.Context(), args[0])
				if err != nil {
					return err
				}
				renderListings(cmd, []*domain.Listing{l})
				return nil
			})
		},
	}
}

func historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <listing-id>",
		Short: "Show zombie detections, resurrections and relists of a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.WithApp(cmd, func(app *bootstrap.App) error {
				records, err := app.Services.Listings.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				t := common.NewTable(cmd)
				t.AppendHeader(table.Row{"When", "Action", "Cycle", "Days", "Views", "Old External ID", "New External ID"})
				for _, r := range records {
					t.AppendRow(table.Row{
						common.FormatTime(&r.CreatedAt),
						r.Action,
						r.CycleNumber,
						r.DaysActive,
						r.Views,
						r.OldExternalID,
						r.NewExternalID,
					})
				}
				t.Render()
				return nil
			})
		},
	}
}

func renderListings(cmd *cobra.Command, listings []*domain.Listing) {
	t := common.NewTable(cmd)
	t.AppendHeader(table.Row{"ID", "SKU", "Title", "Status", "Price", "Views", "Days", "Zombie Cycles", "External ID"})
	for _, l := range listings {
		t.AppendRow(table.Row{
			l.ID,
			l.SKU,
			l.Title,
			l.Status,
			l.ListPrice.StringFixed(2),
			l.TotalViews,
			l.DaysActive,
			l.ZombieCycleCount,
			l.ExternalID,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(listings)})
	t.Render()
}
