package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsUser string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display aggregate usage statistics (admin only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsUser == "" {
			return fmt.Errorf("--user must not be empty")
		}
		return getApp().Stats(cmd.Context(), statsUser)
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsUser, "user", "local", "Requesting user; must be an admin")
}
