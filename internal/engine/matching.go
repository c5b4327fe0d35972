package engine

import (
	"errors"
	"math"

	"gungnir/internal/lob"
)

var (
	ErrOrderPriceTooLow  = errors.New("order price is too low")
	ErrOrderPriceTooHigh = errors.New("order price is too high")
	ErrMissingPrice      = errors.New("limit order price is required")
)

// MatchingEngine sequences orders onto a single book. Limit orders rest
// immediately; market orders queue in arrival order and are drained on the
// next tick, before the crossed book is worked off. The engine owns the
// book exclusively and must be driven from one goroutine.
type MatchingEngine struct {
	book *lob.OrderBook

	// Submission guards. Limit orders priced outside these bounds are
	// rejected before they reach the book.
	minPrice lob.Price
	maxPrice lob.Price

	// Market orders to be matched first in, first out.
	marketOrders []lob.Order
}

func NewMatchingEngine() *MatchingEngine {
	return &MatchingEngine{
		book:     lob.NewOrderBook(),
		minPrice: lob.Price(-math.MaxFloat64),
		maxPrice: lob.Price(math.MaxFloat64),
	}
}

// SetPriceBounds installs the [min, max] guard applied to limit orders.
func (m *MatchingEngine) SetPriceBounds(min, max lob.Price) {
	m.minPrice = min
	m.maxPrice = max
}

// Book exposes the underlying order book for queries.
func (m *MatchingEngine) Book() *lob.OrderBook {
	return m.book
}

// PlaceOrder validates and accepts an order. Limit orders rest on the
// book; market orders join the FIFO for the next tick. Matching itself
// happens in Tick.
func (m *MatchingEngine) PlaceOrder(order lob.Order) error {
	if order.Kind == lob.Limit {
		if order.Price == nil {
			return ErrMissingPrice
		}
		if order.Price.Less(m.minPrice) {
			return ErrOrderPriceTooLow
		}
		if m.maxPrice.Less(*order.Price) {
			return ErrOrderPriceTooHigh
		}
		resting, err := order.Limit()
		if err != nil {
			return err
		}
		m.book.AddOrder(resting)
		return nil
	}
	m.marketOrders = append(m.marketOrders, order)
	return nil
}

// CancelOrder forwards a cancellation to the book.
func (m *MatchingEngine) CancelOrder(id lob.Oid) (lob.CancellationReport, error) {
	return m.book.CancelOrder(id)
}

// HasMarketOrders reports whether market orders await the next tick.
func (m *MatchingEngine) HasMarketOrders() bool {
	return len(m.marketOrders) > 0
}

// Tick drains the market-order FIFO and then works the crossed book until
// it rests uncrossed. Returns the fills produced, market fills first.
func (m *MatchingEngine) Tick() ([]lob.FillAtMarket, []lob.Fill) {
	marketFills := m.drainMarketOrders()
	fills := m.matchCross()
	return marketFills, fills
}

// drainMarketOrders consumes queued market orders against the best
// opposing level, one resting order per book call. A market order that
// outlives the opposing side's liquidity is discarded; parking the
// residual is a policy decision that belongs to the submitter.
func (m *MatchingEngine) drainMarketOrders() []lob.FillAtMarket {
	var fills []lob.FillAtMarket
	for len(m.marketOrders) > 0 {
		order := m.marketOrders[0]
		m.marketOrders = m.marketOrders[1:]

		for !order.Volume.IsZero() {
			fill, err := m.book.FillMarketOrder(&order)
			if errors.Is(err, lob.ErrLevelHasNoValidOrders) {
				m.book.UpdateBests()
				continue
			}
			if err != nil {
				// Opposing side exhausted; drop the residual.
				break
			}
			order.Volume = order.Volume.Sub(fill.FilledVolume)
			fills = append(fills, fill)
		}
	}
	return fills
}

// matchCross runs the crossing algorithm to a fixed point.
func (m *MatchingEngine) matchCross() []lob.Fill {
	var fills []lob.Fill
	for {
		fill, err := m.book.FindAndFillBestOrders()
		if errors.Is(err, lob.ErrLevelHasNoValidOrders) {
			// A best pointer was left aimed at a drained level; refresh
			// and retry.
			m.book.UpdateBests()
			continue
		}
		if err != nil {
			return fills
		}
		fills = append(fills, fill)
	}
}
