package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bitcurrency-bot/internal/app"
)

var convertUser string

var convertCmd = &cobra.Command{
	Use:   "convert <amount> <from> <to>",
	Short: "Convert an amount between two currencies",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if convertUser == "" {
			return fmt.Errorf("--user must not be empty")
		}

		opts := app.ConvertOptions{
			UserID: convertUser,
			Amount: args[0],
			From:   args[1],
			To:     args[2],
		}

		return getApp().Convert(cmd.Context(), opts)
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertUser, "user", "local", "User the request is charged to")
}
