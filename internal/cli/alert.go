package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bitcurrency-bot/internal/app"
)

var alertUser string

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage standing price alerts",
}

var alertAddCmd = &cobra.Command{
	Use:   "add <from> <to> <target>",
	Short: "Notify once when the pair's rate drops to the target or below",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertUser == "" {
			return fmt.Errorf("--user must not be empty")
		}

		opts := app.AlertOptions{
			UserID: alertUser,
			From:   args[0],
			To:     args[1],
			Target: args[2],
		}

		return getApp().CreateAlert(cmd.Context(), opts)
	},
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertUser == "" {
			return fmt.Errorf("--user must not be empty")
		}
		return getApp().ListAlerts(cmd.Context(), alertUser)
	},
}

func init() {
	alertCmd.PersistentFlags().StringVar(&alertUser, "user", "local", "User owning the alerts")
	alertCmd.AddCommand(alertAddCmd)
	alertCmd.AddCommand(alertListCmd)
}
