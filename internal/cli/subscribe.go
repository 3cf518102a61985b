package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var subscribeUser string

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Open a subscription invoice for unlimited conversions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if subscribeUser == "" {
			return fmt.Errorf("--user must not be empty")
		}
		return getApp().Subscribe(cmd.Context(), subscribeUser)
	},
}

func init() {
	subscribeCmd.Flags().StringVar(&subscribeUser, "user", "local", "User the subscription is for")
}
