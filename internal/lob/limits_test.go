package lob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func resting(id Oid, side Side, price Price, volume Volume) *LimitOrder {
	return &LimitOrder{ID: id, Side: side, Timestamp: Timestamp(id), Price: price, Volume: volume}
}

func TestLimits_AddOrder_TracksBest(t *testing.T) {
	bids := newLimits(Buy)

	bids.addOrder(resting(1, Buy, 10.0, 5))
	price, ok := bids.BestPrice()
	assert.True(t, ok)
	assert.Equal(t, Price(10.0), price)

	// A higher bid takes over as best.
	bids.addOrder(resting(2, Buy, 11.0, 5))
	price, _ = bids.BestPrice()
	assert.Equal(t, Price(11.0), price)

	// A lower bid does not.
	bids.addOrder(resting(3, Buy, 9.0, 5))
	price, _ = bids.BestPrice()
	assert.Equal(t, Price(11.0), price)

	asks := newLimits(Sell)
	asks.addOrder(resting(4, Sell, 10.0, 5))
	asks.addOrder(resting(5, Sell, 9.0, 5))
	asks.addOrder(resting(6, Sell, 12.0, 5))
	price, _ = asks.BestPrice()
	assert.Equal(t, Price(9.0), price)
}

func TestLimits_AddOrder_SamePriceKeepsFIFO(t *testing.T) {
	bids := newLimits(Buy)
	bids.addOrder(resting(1, Buy, 10.0, 5))
	bids.addOrder(resting(2, Buy, 10.0, 7))

	assert.Equal(t, 1, bids.levels.len(), "same price shares one level")
	level := bids.levels.get(bids.levelMap[Price(10.0)])
	assert.Equal(t, []Oid{1, 2}, level.orders)
	assert.Equal(t, Volume(12), level.totalVolume)
}

func TestLimits_CancelOrder_RetiresDrainedLevel(t *testing.T) {
	bids := newLimits(Buy)
	order := resting(1, Buy, 10.0, 5)
	bids.addOrder(order)
	index := bids.levelMap[Price(10.0)]

	bids.cancelOrder(order)

	_, active := bids.levelMap[Price(10.0)]
	assert.False(t, active)
	assert.Equal(t, index, bids.removed[Price(10.0)])
	_, ok := bids.Best()
	assert.False(t, ok, "best cleared when its level drains")

	// The id stays queued; pruning is the matcher's job.
	assert.Equal(t, []Oid{1}, bids.levels.get(index).orders)
}

func TestLimits_RecomputeBest_SkipsDrainedLevels(t *testing.T) {
	bids := newLimits(Buy)
	top := resting(1, Buy, 11.0, 5)
	bids.addOrder(top)
	bids.addOrder(resting(2, Buy, 10.0, 5))
	bids.addOrder(resting(3, Buy, 9.0, 5))

	bids.cancelOrder(top)
	bids.recomputeBest()

	price, ok := bids.BestPrice()
	assert.True(t, ok)
	assert.Equal(t, Price(10.0), price)
}

func TestLimits_Revival_ReusesArenaSlot(t *testing.T) {
	asks := newLimits(Sell)
	first := resting(1, Sell, 30.0, 5)
	asks.addOrder(first)
	index := asks.levelMap[Price(30.0)]
	asks.cancelOrder(first)

	asks.addOrder(resting(2, Sell, 30.0, 7))

	assert.Equal(t, index, asks.levelMap[Price(30.0)])
	assert.Equal(t, 1, asks.levels.len())
	_, retired := asks.removed[Price(30.0)]
	assert.False(t, retired)

	price, ok := asks.BestPrice()
	assert.True(t, ok)
	assert.Equal(t, Price(30.0), price)
}

func TestLevelArena_IndicesAreStable(t *testing.T) {
	arena := levelArena{}
	a := arena.push(newLevel(1.0))
	b := arena.push(newLevel(2.0))
	c := arena.push(newLevel(3.0))

	assert.Equal(t, LevelIndex(0), a)
	assert.Equal(t, LevelIndex(1), b)
	assert.Equal(t, LevelIndex(2), c)
	assert.Equal(t, Price(2.0), arena.get(b).price)
	assert.Nil(t, arena.get(LevelIndex(99)))
}
