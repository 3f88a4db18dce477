package paper

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-exec/pkg/exchanges/common"
)

func spotMarket() common.Market {
	return common.Market{
		ID: "FIL-USDT", Type: common.InstrumentSpot, Base: "FIL", Quote: "USDT",
		PriceTick: decimal.RequireFromString("0.001"), AmountStep: decimal.RequireFromString("0.0001"),
	}
}

func TestLimitOrderFillsOnFetch(t *testing.T) {
	ctx := context.Background()
	g := New(Config{FeeRate: 0.01}, nil, nil)
	g.AddMarket(spotMarket())

	h, err := g.CreateOrder(ctx, common.OrderRequest{
		Instrument: "FIL-USDT", Type: common.InstrumentSpot, Side: common.SideBuy, Kind: common.KindLimit,
		Size: decimal.NewFromInt(10), Price: decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	assert.Equal(t, common.RemoteOpen, h.Status)

	snap, err := g.FetchOrder(ctx, "FIL-USDT", h.ID)
	require.NoError(t, err)
	assert.Equal(t, common.RemoteClosed, snap.Status)
	assert.Equal(t, 10.0, snap.Filled)
	assert.Equal(t, 5.0, snap.Average)
	assert.InDelta(t, 0.1, snap.Fee.Cost, 1e-12)
	assert.Equal(t, "FIL", snap.Fee.Currency)

	pos, err := g.FetchPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, 10.0, pos[0].Size)
}

func TestMarketOrderWaitsForMark(t *testing.T) {
	ctx := context.Background()
	g := New(Config{}, nil, nil)
	h, err := g.CreateOrder(ctx, common.OrderRequest{
		Instrument: "FIL-USDT", Side: common.SideSell, Kind: common.KindMarket, Size: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	snap, err := g.FetchOrder(ctx, "FIL-USDT", h.ID)
	require.NoError(t, err)
	assert.Equal(t, common.RemoteOpen, snap.Status)

	g.SetMark("FIL-USDT", 4.2)
	snap, err = g.FetchOrder(ctx, "FIL-USDT", h.ID)
	require.NoError(t, err)
	assert.Equal(t, common.RemoteClosed, snap.Status)
	assert.Equal(t, 4.2, snap.Average)
}

func TestManualFillsAndScriptedFailures(t *testing.T) {
	ctx := context.Background()
	g := New(Config{ManualFills: true}, nil, nil)
	boom := errors.New("boom")
	g.Fail("fetch_order", boom)

	h, err := g.CreateOrder(ctx, common.OrderRequest{
		Instrument: "X", Side: common.SideBuy, Kind: common.KindLimit,
		Size: decimal.NewFromInt(1), Price: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	_, err = g.FetchOrder(ctx, "X", h.ID)
	assert.ErrorIs(t, err, boom)

	snap, err := g.FetchOrder(ctx, "X", h.ID)
	require.NoError(t, err)
	assert.Equal(t, common.RemoteOpen, snap.Status)

	require.NoError(t, g.CancelOrder(ctx, "X", h.ID))
	snap, err = g.FetchOrder(ctx, "X", h.ID)
	require.NoError(t, err)
	assert.Equal(t, common.RemoteCanceled, snap.Status)
	assert.Error(t, g.CancelOrder(ctx, "X", h.ID))
}

func TestRejectsStopKinds(t *testing.T) {
	g := New(Config{}, nil, nil)
	_, err := g.CreateOrder(context.Background(), common.OrderRequest{
		Instrument: "X", Side: common.SideBuy, Kind: common.KindStop, Size: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, common.ErrUnsupportedKind)
}

func TestPriceLimitBandAroundMark(t *testing.T) {
	g := New(Config{LimitBand: 0.1}, nil, nil)
	lim, err := g.FetchPriceLimits(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, common.PriceLimit{}, lim)

	g.SetMark("X", 10)
	lim, err = g.FetchPriceLimits(context.Background(), "X")
	require.NoError(t, err)
	assert.InDelta(t, 11, lim.Buy, 1e-9)
	assert.InDelta(t, 9, lim.Sell, 1e-9)
}
