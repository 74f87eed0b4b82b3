package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var chatFrom string

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message through the command layer and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Chat(cmd.Context(), chatFrom, strings.Join(args, " "))
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatFrom, "from", "", "Sender phone number")
}
