// Package offers implements the offer commands.
package offers

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/relister/cmd/common"
	"github.com/jonesrussell/north-cloud/relister/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
)

// Command returns the offers command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offers",
		Short: "Triage incoming offers and show offer history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(incomingCommand(), historyCommand())
	return cmd
}

func incomingCommand() *cobra.Command {
	var (
		buyer  string
		amount string
	)

	cmd := &cobra.Command{
		Use:   "incoming <listing-id> <offer-id>",
		Short: "Accept, counter or reject a buyer's offer",
		Long: `Triage an incoming offer. Without --amount the offer is fetched from the
marketplace. Repeating an offer id that was already decided prints the
stored decision without contacting the marketplace.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in *marketplace.IncomingOffer
			if amount != "" {
				value, err := decimal.NewFromString(amount)
				if err != nil {
					return fmt.Errorf("invalid --amount: %w", err)
				}
				in = &marketplace.IncomingOffer{BuyerID: buyer, Amount: value}
			}

			return common.WithApp(cmd, func(app *bootstrap.App) error {
				rec, replayed, err := app.Services.Offers.HandleIncoming(cmd.Context(), args[0], args[1], in)
				if err != nil {
					return err
				}
				if replayed {
					fmt.Fprintln(cmd.OutOrStdout(), "Offer already decided, showing stored decision")
				}
				renderOffers(cmd, []*domain.OfferRecord{rec})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&buyer, "buyer", "", "Buyer id")
	cmd.Flags().StringVar(&amount, "amount", "", "Offer amount; fetched from the marketplace when empty")
	return cmd
}

func historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <listing-id>",
		Short: "Show offers recorded for a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.WithApp(cmd, func(app *bootstrap.App) error {
				records, err := app.Services.Offers.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				renderOffers(cmd, records)
				return nil
			})
		},
	}
}

func renderOffers(cmd *cobra.Command, records []*domain.OfferRecord) {
	t := common.NewTable(cmd)
	t.AppendHeader(table.Row{"Offer", "Direction", "Buyer", "Price", "Counter", "Discount %", "Outcome", "Cooldown Until"})
	for _, r := range records {
		counter := "-"
		if r.CounterPrice != nil {
			counter = r.CounterPrice.StringFixed(2)
		}
		t.AppendRow(table.Row{
			r.OfferID,
			r.Direction,
			r.BuyerID,
			r.Price.StringFixed(2),
			counter,
			r.DiscountPercent.String(),
			r.Outcome,
			common.FormatTime(r.CooldownUntil),
		})
	}
	t.Render()
}
