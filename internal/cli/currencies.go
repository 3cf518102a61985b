package cli

import (
	"github.com/spf13/cobra"
)

var currenciesCmd = &cobra.Command{
	Use:   "currencies",
	Short: "List supported currency symbols",
	Run: func(cmd *cobra.Command, args []string) {
		getApp().Currencies()
	},
}
