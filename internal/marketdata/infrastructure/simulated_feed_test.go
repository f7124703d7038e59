package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/optionsvenue/internal/marketdata/domain"
)

func TestSimulatedFeed_RandomWalk(t *testing.T) {
	feed := NewSimulatedFeed(map[string]decimal.Decimal{
		"ETH": decimal.NewFromInt(2000),
	})
	ctx := context.Background()

	quote, err := feed.GetSpotPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, "ETH", quote.Symbol)
	assert.True(t, quote.Price.IsPositive())
	assert.True(t, quote.Confidence.IsPositive())

	// 每次读取游走幅度不超过 ±0.2%
	low := decimal.NewFromFloat(1996)
	high := decimal.NewFromFloat(2004)
	assert.True(t, quote.Price.GreaterThanOrEqual(low), "price %s below walk band", quote.Price)
	assert.True(t, quote.Price.LessThanOrEqual(high), "price %s above walk band", quote.Price)
}

func TestSimulatedFeed_UnknownSymbol(t *testing.T) {
	feed := NewSimulatedFeed(nil)
	_, err := feed.GetSpotPrice(context.Background(), "DOGE")
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)
}

func TestSimulatedFeed_CancelledContext(t *testing.T) {
	feed := NewSimulatedFeed(map[string]decimal.Decimal{"ETH": decimal.NewFromInt(2000)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := feed.GetSpotPrice(ctx, "ETH")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestSimulatedFeed_SetPrice(t *testing.T) {
	feed := NewSimulatedFeed(map[string]decimal.Decimal{"ETH": decimal.NewFromInt(2000)})
	feed.SetPrice("ETH", decimal.NewFromInt(3000))

	quote, err := feed.GetSpotPrice(context.Background(), "ETH")
	require.NoError(t, err)
	diff := quote.Price.Sub(decimal.NewFromInt(3000)).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromInt(10)))
}

func TestSpotQuote_IsStale(t *testing.T) {
	now := time.Now()
	quote := &domain.SpotQuote{PublishTime: now.Add(-time.Minute)}
	assert.True(t, quote.IsStale(30*time.Second, now))
	assert.False(t, quote.IsStale(2*time.Minute, now))
}
