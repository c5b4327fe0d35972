package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"gungnir/internal/lob"
)

// --- Setup & Helpers --------------------------------------------------------

func placeLimit(t *testing.T, m *MatchingEngine, id lob.Oid, side lob.Side, price lob.Price, volume lob.Volume) {
	t.Helper()
	order := lob.NewLimitOrder(id, side, lob.Timestamp(id), price, volume)
	assert.NoError(t, m.PlaceOrder(order))
}

func placeMarket(t *testing.T, m *MatchingEngine, id lob.Oid, side lob.Side, volume lob.Volume) {
	t.Helper()
	order := lob.NewMarketOrder(id, side, lob.Timestamp(id), volume)
	assert.NoError(t, m.PlaceOrder(order))
}

// --- Tests ------------------------------------------------------------------

func TestMatchingEngine_SubmissionGuards(t *testing.T) {
	m := NewMatchingEngine()
	m.SetPriceBounds(10.0, 100.0)

	// Limit without a price.
	err := m.PlaceOrder(lob.Order{ID: 1, Side: lob.Buy, Kind: lob.Limit, Volume: 10})
	assert.ErrorIs(t, err, ErrMissingPrice)

	err = m.PlaceOrder(lob.NewLimitOrder(2, lob.Buy, 2, 9.99, 10))
	assert.ErrorIs(t, err, ErrOrderPriceTooLow)

	err = m.PlaceOrder(lob.NewLimitOrder(3, lob.Buy, 3, 100.01, 10))
	assert.ErrorIs(t, err, ErrOrderPriceTooHigh)

	// Bounds are inclusive.
	assert.NoError(t, m.PlaceOrder(lob.NewLimitOrder(4, lob.Buy, 4, 10.0, 10)))
	assert.NoError(t, m.PlaceOrder(lob.NewLimitOrder(5, lob.Sell, 5, 100.0, 10)))

	// Market orders carry no price and bypass the price guards.
	assert.NoError(t, m.PlaceOrder(lob.NewMarketOrder(6, lob.Sell, 6, 5)))
}

func TestMatchingEngine_Tick_CrossingLimit(t *testing.T) {
	m := NewMatchingEngine()
	placeLimit(t, m, 1, lob.Sell, 21.0, 100)
	placeLimit(t, m, 3, lob.Buy, 22.0, 50)

	marketFills, fills := m.Tick()
	assert.Empty(t, marketFills)
	assert.Len(t, fills, 1)
	assert.Equal(t, lob.Oid(3), fills[0].BuyOrderID)
	assert.Equal(t, lob.Oid(1), fills[0].SellOrderID)
	assert.Equal(t, lob.Volume(50), fills[0].Volume)

	// The book rests uncrossed.
	_, ok := m.Book().BestBid()
	assert.False(t, ok)
	ask, ok := m.Book().BestAsk()
	assert.True(t, ok)
	assert.Equal(t, lob.Price(21.0), ask)

	// A further tick is a no-op.
	marketFills, fills = m.Tick()
	assert.Empty(t, marketFills)
	assert.Empty(t, fills)
}

func TestMatchingEngine_Tick_MarketSweep(t *testing.T) {
	m := NewMatchingEngine()
	placeLimit(t, m, 1, lob.Sell, 21.0453, 100)
	placeLimit(t, m, 2, lob.Sell, 21.0454, 50)
	placeMarket(t, m, 3, lob.Buy, 150)
	assert.True(t, m.HasMarketOrders())

	marketFills, fills := m.Tick()
	assert.Empty(t, fills)
	assert.Len(t, marketFills, 2)
	assert.Equal(t, lob.Oid(1), marketFills[0].OrderID)
	assert.Equal(t, lob.Price(21.0453), marketFills[0].OrderPrice)
	assert.Equal(t, lob.Volume(100), marketFills[0].FilledVolume)
	assert.Equal(t, lob.Oid(2), marketFills[1].OrderID)
	assert.Equal(t, lob.Price(21.0454), marketFills[1].OrderPrice)
	assert.Equal(t, lob.Volume(50), marketFills[1].FilledVolume)

	assert.False(t, m.HasMarketOrders())
	assert.Equal(t, 0, m.Book().OpenOrders())
}

func TestMatchingEngine_Tick_MarketResidualDiscarded(t *testing.T) {
	m := NewMatchingEngine()
	placeLimit(t, m, 1, lob.Sell, 21.0, 100)
	placeMarket(t, m, 2, lob.Buy, 150)

	marketFills, _ := m.Tick()
	assert.Len(t, marketFills, 1)
	assert.Equal(t, lob.Volume(100), marketFills[0].FilledVolume)

	// The unfilled 50 is not parked; the queue is clear.
	assert.False(t, m.HasMarketOrders())
	_, ok := m.Book().BestAsk()
	assert.False(t, ok)
}

func TestMatchingEngine_Tick_MarketOrdersDrainFIFO(t *testing.T) {
	m := NewMatchingEngine()
	placeLimit(t, m, 1, lob.Sell, 21.0, 10)
	placeLimit(t, m, 2, lob.Sell, 22.0, 10)
	placeMarket(t, m, 3, lob.Buy, 10)
	placeMarket(t, m, 4, lob.Buy, 10)

	marketFills, _ := m.Tick()
	assert.Len(t, marketFills, 2)
	// First queued market order takes the better level.
	assert.Equal(t, lob.Oid(3), marketFills[0].MarketOrderID)
	assert.Equal(t, lob.Price(21.0), marketFills[0].OrderPrice)
	assert.Equal(t, lob.Oid(4), marketFills[1].MarketOrderID)
	assert.Equal(t, lob.Price(22.0), marketFills[1].OrderPrice)
}

func TestMatchingEngine_Tick_MarketAgainstEmptyBook(t *testing.T) {
	m := NewMatchingEngine()
	placeMarket(t, m, 1, lob.Buy, 10)

	marketFills, fills := m.Tick()
	assert.Empty(t, marketFills)
	assert.Empty(t, fills)
	assert.False(t, m.HasMarketOrders())
}

func TestMatchingEngine_CancelOrder(t *testing.T) {
	m := NewMatchingEngine()
	placeLimit(t, m, 1, lob.Buy, 10.0, 10)

	report, err := m.CancelOrder(1)
	assert.NoError(t, err)
	assert.Equal(t, lob.Oid(1), report.OrderID)

	_, err = m.CancelOrder(1)
	var notFound lob.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestMatchingEngine_MultiLevelCrossSettlesToRest(t *testing.T) {
	m := NewMatchingEngine()
	placeLimit(t, m, 1, lob.Sell, 100.0, 100)
	placeLimit(t, m, 2, lob.Sell, 100.0, 90)
	placeLimit(t, m, 3, lob.Sell, 101.0, 20)
	placeLimit(t, m, 4, lob.Buy, 103.0, 120)

	_, fills := m.Tick()
	assert.Len(t, fills, 2)
	assert.Equal(t, lob.Oid(1), fills[0].SellOrderID)
	assert.Equal(t, lob.Volume(100), fills[0].Volume)
	assert.Equal(t, lob.Oid(2), fills[1].SellOrderID)
	assert.Equal(t, lob.Volume(20), fills[1].Volume)

	// Non-crossing at rest: the 100.0 level keeps 70, the buy is spent.
	volume, ok := m.Book().VolumeAtLimit(100.0, lob.Sell)
	assert.True(t, ok)
	assert.Equal(t, lob.Volume(70), volume)
	bid, ok := m.Book().BestBid()
	assert.False(t, ok, "buy fully filled, no bid should rest", bid)
}
