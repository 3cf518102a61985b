package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// AlertOptions configure alert creation.
type AlertOptions struct {
	UserID string
	From   string
	To     string
	Target string
}

// CreateAlert registers a standing price alert.
func (a *App) CreateAlert(ctx context.Context, opts AlertOptions) error {
	target, err := decimal.NewFromString(opts.Target)
	if err != nil {
		return fmt.Errorf("invalid target %q", opts.Target)
	}

	comps, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer comps.close()

	rec, err := comps.service.CreateAlert(ctx, opts.UserID, opts.From, opts.To, target)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "alert created: notify when %s → %s drops to %s\n",
		rec.From, rec.To, rec.Target.String())
	return nil
}

// ListAlerts prints the user's standing alerts.
func (a *App) ListAlerts(ctx context.Context, userID string) error {
	comps, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer comps.close()

	records, err := comps.service.Alerts(ctx, userID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tFrom\tTo\tTarget\tFired")
	for _, rec := range records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%v\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.From, rec.To, rec.Target.String(), rec.Fired)
	}
	writer.Flush()
	return nil
}
