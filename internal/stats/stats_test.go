package stats

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bitcurrency-bot/internal/storage"
)

func testCounters(t *testing.T) *Counters {
	t.Helper()
	store, err := storage.OpenBunt(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewCounters(store, Options{}, zerolog.Nop())
}

func TestReadEmpty(t *testing.T) {
	c := testCounters(t)
	snapshot, err := c.Read(context.Background())
	require.NoError(t, err)
	require.Zero(t, snapshot.TotalRequests)
	require.Empty(t, snapshot.RequestTypes)
	require.True(t, snapshot.Revenue.IsZero())
}

func TestRecordRequestAccumulates(t *testing.T) {
	c := testCounters(t)
	ctx := context.Background()

	require.NoError(t, c.RecordRequest(ctx, "u1", "usd_to_btc"))
	require.NoError(t, c.RecordRequest(ctx, "u1", "usd_to_btc"))
	require.NoError(t, c.RecordRequest(ctx, "u2", "alert_create"))

	snapshot, err := c.Read(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, snapshot.TotalRequests)
	require.EqualValues(t, 2, snapshot.RequestTypes["usd_to_btc"])
	require.EqualValues(t, 1, snapshot.RequestTypes["alert_create"])
	require.Len(t, snapshot.Users, 2)
}

func TestRecordSubscriptionRevenue(t *testing.T) {
	c := testCounters(t)
	ctx := context.Background()

	require.NoError(t, c.RecordSubscription(ctx, decimal.NewFromInt(5)))
	require.NoError(t, c.RecordSubscription(ctx, decimal.NewFromInt(5)))

	snapshot, err := c.Read(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, snapshot.Subscriptions)
	require.True(t, snapshot.Revenue.Equal(decimal.NewFromInt(10)))
}
