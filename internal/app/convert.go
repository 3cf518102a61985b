package app

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"bitcurrency-bot/internal/quota"
)

// ConvertOptions configure a one-shot conversion.
type ConvertOptions struct {
	UserID string
	From   string
	To     string
	Amount string
}

// Convert performs one conversion and prints the result.
func (a *App) Convert(ctx context.Context, opts ConvertOptions) error {
	amount, err := decimal.NewFromString(opts.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q", opts.Amount)
	}

	comps, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer comps.close()

	result, err := comps.service.Convert(ctx, opts.UserID, opts.From, opts.To, amount)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s %s = %s %s\n",
		result.From.Format(result.Amount), result.From.Code,
		result.Formatted, result.To.Code)
	fmt.Fprintf(os.Stdout, "rate: %s (%s)\n", result.Quote.Rate.String(), result.Quote.Source())
	if result.Remaining == quota.Unlimited {
		fmt.Fprintln(os.Stdout, "requests remaining today: unlimited")
	} else {
		fmt.Fprintf(os.Stdout, "requests remaining today: %s\n", result.Remaining)
	}
	return nil
}
