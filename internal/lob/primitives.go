package lob

import (
	"fmt"
	"math"
	"time"
)

// Oid identifies an order for the lifetime of a book. Uniqueness is the
// submitter's responsibility.
type Oid uint64

func (id Oid) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// Timestamp is milliseconds since the Unix epoch. We do not care about the
// accuracy of the timestamp, just its relativity to other timestamps.
type Timestamp uint64

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "unknown"
}

// Opposite returns the side a taker order consumes liquidity from.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type Kind int

const (
	// Market orders are instructions to buy or sell immediately. Execution
	// is guaranteed only if liquidity exists; the execution price is not.
	Market Kind = iota
	// Limit orders are an order to buy or sell at a specified price or
	// better. Limit orders may rest on the book until filled.
	Limit
)

// Price is a price point on the book. Ordering goes through the IEEE-754
// bit pattern with the sign bit folded (see key), so that every bit pattern
// has a deterministic total order that agrees with numeric ordering on
// finite prices. Map-key equality is Go's float equality. NaN is not a
// valid price.
type Price float64

func (p Price) Bits() uint64 {
	return math.Float64bits(float64(p))
}

// key folds the sign bit so that unsigned comparison of the result agrees
// with numeric ordering across the full finite range, negatives included.
func (p Price) key() uint64 {
	bits := p.Bits()
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | 1<<63
}

// Less is the total order used everywhere a price comparison is made.
func (p Price) Less(other Price) bool {
	return p.key() < other.key()
}

func (p Price) String() string {
	return fmt.Sprintf("%g", float64(p))
}

// Spread is best ask minus best bid, defined only when both sides quote.
type Spread float64

// Volume is a non-negative order quantity. Subtracting more than is held
// breaks a caller contract and corrupts the book.
type Volume uint64

func (v Volume) IsZero() bool {
	return v == 0
}

func (v Volume) Add(other Volume) Volume {
	return v + other
}

func (v Volume) Sub(other Volume) Volume {
	if other > v {
		corrupted("volume underflow: %d - %d", v, other)
	}
	return v - other
}

func (v Volume) Min(other Volume) Volume {
	if other < v {
		return other
	}
	return v
}

// Order is the submitter-facing order. Price is nil for market orders and
// must be set for limit orders.
type Order struct {
	ID        Oid
	Side      Side
	Kind      Kind
	Price     *Price
	Volume    Volume
	Timestamp Timestamp
}

func NewLimitOrder(id Oid, side Side, ts Timestamp, price Price, volume Volume) Order {
	return Order{
		ID:        id,
		Side:      side,
		Kind:      Limit,
		Price:     &price,
		Volume:    volume,
		Timestamp: ts,
	}
}

func NewMarketOrder(id Oid, side Side, ts Timestamp, volume Volume) Order {
	return Order{
		ID:        id,
		Side:      side,
		Kind:      Market,
		Volume:    volume,
		Timestamp: ts,
	}
}

// Limit converts a submitter order into its resting form. Only priced limit
// orders can rest on the book.
func (o *Order) Limit() (LimitOrder, error) {
	if o.Kind != Limit {
		return LimitOrder{}, ErrNotALimitOrder
	}
	if o.Price == nil {
		return LimitOrder{}, ErrMissingPrice
	}
	return LimitOrder{
		ID:        o.ID,
		Side:      o.Side,
		Timestamp: o.Timestamp,
		Price:     *o.Price,
		Volume:    o.Volume,
	}, nil
}

// LimitOrder is the resting form of an order held in the book's order map.
// FilledVolume only ever grows, and never past Volume.
type LimitOrder struct {
	ID           Oid
	Side         Side
	Timestamp    Timestamp
	Price        Price
	Volume       Volume
	FilledVolume Volume
}

// Remaining is the volume still open to match.
func (o *LimitOrder) Remaining() Volume {
	return o.Volume.Sub(o.FilledVolume)
}

func (o *LimitOrder) fill(volume Volume) {
	o.FilledVolume = o.FilledVolume.Add(volume)
	if o.Volume < o.FilledVolume {
		corrupted("order %s filled %d past volume %d", o.ID, o.FilledVolume, o.Volume)
	}
}

// Fill is one match between the best buy and best sell order. Both prices
// are reported; consumers wanting a single trade price conventionally take
// the resting (older) side's.
type Fill struct {
	BuyOrderID     Oid
	SellOrderID    Oid
	BuyOrderPrice  Price
	SellOrderPrice Price
	Volume         Volume
}

// FillAtMarket is one match between a market order and a resting limit
// order at the best opposing level.
type FillAtMarket struct {
	MarketOrderID Oid
	OrderID       Oid
	OrderPrice    Price
	FilledVolume  Volume
}
