package engine

import (
	"errors"

	"github.com/rs/zerolog/log"

	"gungnir/internal/lob"
	"gungnir/internal/telemetry"
)

type AssetType int

// TODO: Flesh these out more, if we care.

const (
	Equities AssetType = iota
)

var ErrUnknownAsset = errors.New("unknown asset type")

// Reporter consumes the fills produced by a tick, typically to fan
// execution reports out to the counterparties.
type Reporter interface {
	ReportFill(asset AssetType, fill lob.Fill)
	ReportFillAtMarket(asset AssetType, fill lob.FillAtMarket)
}

// Engine fronts one matching engine per supported asset and settles the
// book after every accepted message, so the book is never left crossed
// between messages.
type Engine struct {
	engines  map[AssetType]*MatchingEngine
	reporter Reporter
}

func New(supportedAssets ...AssetType) *Engine {
	engine := &Engine{
		engines: make(map[AssetType]*MatchingEngine),
	}
	for _, assetType := range supportedAssets {
		engine.engines[assetType] = NewMatchingEngine()
	}
	return engine
}

// SetReporter installs the fill consumer. Set before the first order.
func (e *Engine) SetReporter(reporter Reporter) {
	e.reporter = reporter
}

// Matching returns the per-asset matching engine, for queries.
func (e *Engine) Matching(assetType AssetType) (*MatchingEngine, bool) {
	m, ok := e.engines[assetType]
	return m, ok
}

// PlaceOrder accepts an order and immediately runs a tick, reporting any
// fills it produced.
func (e *Engine) PlaceOrder(assetType AssetType, order lob.Order) error {
	m, ok := e.engines[assetType]
	if !ok {
		return ErrUnknownAsset
	}
	if err := m.PlaceOrder(order); err != nil {
		telemetry.OrdersRejected.WithLabelValues(rejectionReason(err)).Inc()
		return err
	}
	telemetry.OrdersTotal.WithLabelValues(kindLabel(order.Kind), order.Side.String()).Inc()

	marketFills, fills := m.Tick()
	for _, fill := range marketFills {
		telemetry.FillsTotal.Inc()
		telemetry.VolumeFilled.Add(float64(fill.FilledVolume))
		if e.reporter != nil {
			e.reporter.ReportFillAtMarket(assetType, fill)
		}
	}
	for _, fill := range fills {
		telemetry.FillsTotal.Inc()
		telemetry.VolumeFilled.Add(float64(fill.Volume))
		if e.reporter != nil {
			e.reporter.ReportFill(assetType, fill)
		}
	}
	e.observeDepth(m)
	return nil
}

// CancelOrder cancels a resting order by id.
func (e *Engine) CancelOrder(assetType AssetType, id lob.Oid) (lob.CancellationReport, error) {
	m, ok := e.engines[assetType]
	if !ok {
		return lob.CancellationReport{}, ErrUnknownAsset
	}
	report, err := m.CancelOrder(id)
	if err != nil {
		telemetry.CancelsTotal.WithLabelValues("not_found").Inc()
		return report, err
	}
	telemetry.CancelsTotal.WithLabelValues("cancelled").Inc()
	e.observeDepth(m)
	return report, nil
}

// LogBook writes a top-of-book summary for every asset.
func (e *Engine) LogBook() {
	for assetType, m := range e.engines {
		book := m.Book()
		event := log.Info().Int("asset", int(assetType)).Int("openOrders", book.OpenOrders())
		if bid, ok := book.BestBid(); ok {
			event = event.Float64("bestBid", float64(bid))
		}
		if ask, ok := book.BestAsk(); ok {
			event = event.Float64("bestAsk", float64(ask))
		}
		if spread, ok := book.Spread(); ok {
			event = event.Float64("spread", float64(spread))
		}
		event.Msg("book")
	}
}

func (e *Engine) observeDepth(m *MatchingEngine) {
	book := m.Book()
	bidVolume, _ := book.BestBidVolume()
	askVolume, _ := book.BestAskVolume()
	telemetry.BestVolume.WithLabelValues(lob.Buy.String()).Set(float64(bidVolume))
	telemetry.BestVolume.WithLabelValues(lob.Sell.String()).Set(float64(askVolume))
}

func kindLabel(kind lob.Kind) string {
	if kind == lob.Market {
		return "market"
	}
	return "limit"
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingPrice):
		return "missing_price"
	case errors.Is(err, ErrOrderPriceTooLow):
		return "price_too_low"
	case errors.Is(err, ErrOrderPriceTooHigh):
		return "price_too_high"
	}
	return "other"
}
