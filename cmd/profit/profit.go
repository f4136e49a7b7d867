// Package profit implements the profit floor calculator command.
package profit

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/relister/cmd/common"
	"github.com/jonesrussell/north-cloud/relister/internal/bootstrap"
	internalprofit "github.com/jonesrussell/north-cloud/relister/internal/profit"
)

// Command returns the profit command for use in the root command.
func Command() *cobra.Command {
	var purchase, shipping, price string

	cmd := &cobra.Command{
		Use:   "profit",
		Short: "Compute the minimum viable price for a cost basis",
		Long: `Compute the lowest list price that still covers purchase and shipping
cost plus marketplace fees and the configured minimum profit. With --price
the net profit at that price is shown as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig(common.ConfigPath(), viper.GetBool(common.KeyDebug))
			if err != nil {
				return err
			}
			model, err := internalprofit.NewModel(cfg.Fees.Rates())
			if err != nil {
				return err
			}

			p, err := decimal.NewFromString(purchase)
			if err != nil {
				return fmt.Errorf("invalid --purchase: %w", err)
			}
			s, err := decimal.NewFromString(shipping)
			if err != nil {
				return fmt.Errorf("invalid --shipping: %w", err)
			}

			floor, err := model.MinimumViablePrice(p, s)
			if err != nil {
				return err
			}

			t := common.NewTable(cmd)
			t.AppendHeader(table.Row{"Purchase", "Shipping", "Fee Rate", "Floor", "Price", "Net Profit", "Meets Floor"})
			row := table.Row{p.StringFixed(2), s.StringFixed(2), model.Rates().Total().String(), floor.StringFixed(2)}
			if price == "" {
				row = append(row, "-", "-", "-")
			} else {
				listPrice, parseErr := decimal.NewFromString(price)
				if parseErr != nil {
					return fmt.Errorf("invalid --price: %w", parseErr)
				}
				row = append(row,
					listPrice.StringFixed(2),
					model.NetProfit(listPrice, p, s).StringFixed(2),
					model.MeetsFloor(listPrice, p, s),
				)
			}
			t.AppendRow(row)
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&purchase, "purchase", "", "Purchase price")
	cmd.Flags().StringVar(&shipping, "shipping", "0", "Shipping cost")
	cmd.Flags().StringVar(&price, "price", "", "Candidate list price")
	_ = cmd.MarkFlagRequired("purchase")
	return cmd
}
