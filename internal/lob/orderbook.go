// Package lob implements a price-time priority limit order book.
//
// The book keeps outstanding bids and asks ranked by price, FIFO within a
// price, and produces fills when the spread is crossed. Cancellation is
// O(1): a cancelled order's id stays in its level queue and is pruned the
// next time a matching walk reaches it. The book is not synchronised; all
// mutation must be serialised by the caller.
package lob

// OrderBook is the two-sided book plus the order map used for O(1)
// cancellation lookup.
type OrderBook struct {
	// Bid side of the book, open offers to buy.
	bids Limits
	// Ask side of the book, open offers to sell.
	asks Limits
	// Resting limit orders by id.
	orders map[Oid]*LimitOrder
	// Difference between the best ask and best bid, when both quote.
	spread *Spread
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:   newLimits(Buy),
		asks:   newLimits(Sell),
		orders: make(map[Oid]*LimitOrder),
	}
}

// AddOrder rests a limit order on its side of the book. Crossing is not
// triggered here; the driver runs FindAndFillBestOrders afterwards.
func (b *OrderBook) AddOrder(order LimitOrder) {
	resting := order
	switch resting.Side {
	case Buy:
		b.bids.addOrder(&resting)
	case Sell:
		b.asks.addOrder(&resting)
	}
	b.orders[resting.ID] = &resting
	b.updateSpread()
}

// CancelOrder removes a resting order. The level queue is left alone; only
// the order map entry and the level volume are settled, which is what makes
// cancellation constant time. Cancelling an id the book no longer holds,
// including a second cancel of the same id, reports NotFound.
func (b *OrderBook) CancelOrder(id Oid) (CancellationReport, error) {
	order, ok := b.orders[id]
	if !ok {
		return CancellationReport{}, NotFoundError{OrderID: id}
	}
	delete(b.orders, id)
	switch order.Side {
	case Buy:
		b.bids.cancelOrder(order)
	case Sell:
		b.asks.cancelOrder(order)
	}
	return CancellationReport{OrderID: id, Status: Cancelled}, nil
}

// BestBid is the highest resting buy price.
func (b *OrderBook) BestBid() (Price, bool) {
	return b.bids.BestPrice()
}

// BestAsk is the lowest resting sell price.
func (b *OrderBook) BestAsk() (Price, bool) {
	return b.asks.BestPrice()
}

func (b *OrderBook) BestBidVolume() (Volume, bool) {
	return b.bestVolume(&b.bids)
}

func (b *OrderBook) BestAskVolume() (Volume, bool) {
	return b.bestVolume(&b.asks)
}

func (b *OrderBook) bestVolume(side *Limits) (Volume, bool) {
	index, ok := side.Best()
	if !ok {
		return 0, false
	}
	return side.levels.get(index).totalVolume, true
}

// VolumeAtLimit reports the open volume resting at a price on a side.
func (b *OrderBook) VolumeAtLimit(price Price, side Side) (Volume, bool) {
	switch side {
	case Buy:
		return b.bids.volumeAt(price)
	case Sell:
		return b.asks.volumeAt(price)
	}
	return 0, false
}

// Spread is best ask minus best bid, undefined when a side is empty.
func (b *OrderBook) Spread() (Spread, bool) {
	b.updateSpread()
	if b.spread == nil {
		return 0, false
	}
	return *b.spread, true
}

// OpenOrders is the number of resting orders held by the book.
func (b *OrderBook) OpenOrders() int {
	return len(b.orders)
}

// UpdateBests recomputes any invalidated best pointer, including one left
// aimed at a drained level. Exposed for the driver's recovery path after
// ErrLevelHasNoValidOrders.
func (b *OrderBook) UpdateBests() {
	b.bids.ensureBest()
	b.asks.ensureBest()
	b.updateSpread()
}

func (b *OrderBook) updateSpread() {
	bid, bidOk := b.bids.BestPrice()
	ask, askOk := b.asks.BestPrice()
	if bidOk && askOk {
		spread := Spread(float64(ask) - float64(bid))
		b.spread = &spread
	} else {
		b.spread = nil
	}
}

// FindAndFillBestOrders matches the heads of the two best levels and
// produces at most one Fill. The driver calls it repeatedly until it
// reports ErrNoOrderToMatch. ErrLevelHasNoValidOrders means a best pointer
// went stale; recompute bests and retry.
func (b *OrderBook) FindAndFillBestOrders() (Fill, error) {
	bidIndex, ok := b.bids.Best()
	if !ok {
		return Fill{}, ErrNoOrderToMatch
	}
	askIndex, ok := b.asks.Best()
	if !ok {
		return Fill{}, ErrNoOrderToMatch
	}
	bidLevel := b.bids.levels.get(bidIndex)
	askLevel := b.asks.levels.get(askIndex)

	// Every path that drains a level retires it and clears the pointer, so
	// this only fires when a best pointer was left aimed at a drained level.
	if bidLevel.totalVolume.IsZero() || askLevel.totalVolume.IsZero() {
		return Fill{}, ErrLevelHasNoValidOrders
	}

	// Cannot match a buy priced below the best sell.
	if bidLevel.price.Less(askLevel.price) {
		return Fill{}, ErrNoOrderToMatch
	}

	buy := b.liveFront(bidLevel)
	sell := b.liveFront(askLevel)

	volume := buy.Remaining().Min(sell.Remaining())
	fill := Fill{
		BuyOrderID:     buy.ID,
		SellOrderID:    sell.ID,
		BuyOrderPrice:  buy.Price,
		SellOrderPrice: sell.Price,
		Volume:         volume,
	}

	b.applyFill(bidLevel, buy, volume)
	b.applyFill(askLevel, sell, volume)

	// Both levels can drain in the same step when remainings were equal.
	// Retiring clears the side's best; the next Best read recomputes it.
	if bidLevel.totalVolume.IsZero() {
		b.bids.retire(bidLevel)
	}
	if askLevel.totalVolume.IsZero() {
		b.asks.retire(askLevel)
	}
	b.updateSpread()

	return fill, nil
}

// liveFront resolves the level's head to a live order, pruning ids whose
// orders were lazily cancelled. This is the only place queue entries are
// removed for any reason other than a full fill of the head.
func (b *OrderBook) liveFront(level *Level) *LimitOrder {
	for {
		id, ok := level.front()
		if !ok {
			// The level claims volume but queues no live order.
			corrupted("level %s holds volume %d with no orders", level.price, level.totalVolume)
		}
		order, ok := b.orders[id]
		if !ok {
			// Cancelled earlier; removal was postponed until this walk.
			level.popFront()
			continue
		}
		return order
	}
}

// applyFill advances an order's filled volume and settles its level. A
// fully filled order leaves both the queue and the order map.
func (b *OrderBook) applyFill(level *Level, order *LimitOrder, volume Volume) {
	order.fill(volume)
	level.reduceVolume(volume)
	if order.Remaining().IsZero() {
		level.popFront()
		delete(b.orders, order.ID)
	}
}

// FillMarketOrder consumes the head of the best opposing level and
// produces one FillAtMarket. A market order larger than the head order is
// filled across repeated calls by the driver; when the opposing side runs
// out the call reports ErrNoOrderToMatch and any residual is the caller's
// to discard.
func (b *OrderBook) FillMarketOrder(order *Order) (FillAtMarket, error) {
	var opposing *Limits
	switch order.Side {
	case Buy:
		opposing = &b.asks
	case Sell:
		opposing = &b.bids
	}

	index, ok := opposing.Best()
	if !ok {
		return FillAtMarket{}, ErrNoOrderToMatch
	}
	level := opposing.levels.get(index)
	if level.totalVolume.IsZero() {
		return FillAtMarket{}, ErrLevelHasNoValidOrders
	}

	limitOrder := b.liveFront(level)
	volume := limitOrder.Remaining().Min(order.Volume)
	fill := FillAtMarket{
		MarketOrderID: order.ID,
		OrderID:       limitOrder.ID,
		OrderPrice:    limitOrder.Price,
		FilledVolume:  volume,
	}

	b.applyFill(level, limitOrder, volume)

	if level.totalVolume.IsZero() {
		opposing.retire(level)
		opposing.recomputeBest()
	}
	b.updateSpread()

	return fill, nil
}
