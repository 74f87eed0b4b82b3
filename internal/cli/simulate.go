package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"stock-alerts/internal/app"
)

var (
	simulateSymbol    string
	simulatePrevClose string
	simulateOpen      string
	simulateCurrent   string
	simulateThreshold string
	simulateTo        string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Evaluate a synthetic gap and deliver the alert if it fires",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{Symbol: simulateSymbol, To: simulateTo}

		fields := []struct {
			flag string
			raw  string
			dst  *decimal.Decimal
		}{
			{"prev-close", simulatePrevClose, &opts.PrevClose},
			{"open", simulateOpen, &opts.Open},
			{"current", simulateCurrent, &opts.Current},
			{"threshold", simulateThreshold, &opts.Threshold},
		}
		for _, f := range fields {
			if f.raw == "" {
				continue
			}
			d, err := decimal.NewFromString(f.raw)
			if err != nil {
				return fmt.Errorf("invalid --%s value: %w", f.flag, err)
			}
			*f.dst = d
		}

		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "TCS", "Symbol shown in the alert")
	simulateCmd.Flags().StringVar(&simulatePrevClose, "prev-close", "", "Previous session close")
	simulateCmd.Flags().StringVar(&simulateOpen, "open", "", "Session open")
	simulateCmd.Flags().StringVar(&simulateCurrent, "current", "", "Current price (defaults to open)")
	simulateCmd.Flags().StringVar(&simulateThreshold, "threshold", "-8", "Signed threshold percent")
	simulateCmd.Flags().StringVar(&simulateTo, "to", "", "Recipient address")
}
