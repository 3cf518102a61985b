package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyUser string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display recent conversions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyUser == "" {
			return fmt.Errorf("--user must not be empty")
		}
		return getApp().History(cmd.Context(), historyUser)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyUser, "user", "local", "User whose history to display")
}
