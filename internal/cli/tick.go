package cli

import (
	"github.com/spf13/cobra"

	"stock-alerts/internal/app"
)

var tickForce bool

var tickCmd = &cobra.Command{
	Use:       "tick <snapshot|gap|window>",
	Short:     "Execute one monitor tick now and print its report",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"snapshot", "gap", "window"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Tick(cmd.Context(), app.TickOptions{Tick: args[0], Force: tickForce})
	},
}

func init() {
	tickCmd.Flags().BoolVar(&tickForce, "force", false, "Ignore market hours and the gap check window")
}
