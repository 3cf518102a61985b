package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// History prints the user's recent conversions, most recent first.
func (a *App) History(ctx context.Context, userID string) error {
	comps, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer comps.close()

	entries, err := comps.service.History(ctx, userID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no conversions yet")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tFrom\tTo\tAmount\tResult")
	for _, entry := range entries {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			entry.Time.UTC().Format(time.RFC3339),
			entry.From, entry.To,
			entry.Amount.String(), entry.Result.String())
	}
	writer.Flush()
	return nil
}
