package app

import (
	"context"
	"fmt"
	"os"

	"bitcurrency-bot/internal/currency"
)

// Subscribe opens a subscription invoice and prints the payment link. The
// invoice poller grants the subscription once the gateway confirms.
func (a *App) Subscribe(ctx context.Context, userID string) error {
	comps, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer comps.close()

	invoice, err := comps.service.Subscribe(ctx, userID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "invoice %d created for %s %s\n", invoice.ID, invoice.Amount, invoice.Asset)
	fmt.Fprintf(os.Stdout, "pay here: %s\n", invoice.PayURL)
	return nil
}

// Currencies prints every supported symbol.
func (a *App) Currencies() {
	for _, symbol := range currency.Symbols() {
		fmt.Fprintln(os.Stdout, symbol)
	}
}
