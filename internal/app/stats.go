package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
)

// Stats prints the aggregate usage snapshot. The user must be in the admin
// allow-list.
func (a *App) Stats(ctx context.Context, userID string) error {
	comps, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer comps.close()

	snapshot, err := comps.service.Stats(ctx, userID)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "total requests:\t%d\n", snapshot.TotalRequests)
	fmt.Fprintf(writer, "unique users:\t%d\n", len(snapshot.Users))
	fmt.Fprintf(writer, "subscriptions:\t%d\n", snapshot.Subscriptions)
	fmt.Fprintf(writer, "revenue (USDT):\t%s\n", snapshot.Revenue.String())

	labels := make([]string, 0, len(snapshot.RequestTypes))
	for label := range snapshot.RequestTypes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(writer, "requests (%s):\t%d\n", label, snapshot.RequestTypes[label])
	}
	writer.Flush()
	return nil
}
