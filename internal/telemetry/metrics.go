package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts submitted orders by kind and side.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_orders_total",
			Help: "Total number of orders accepted by kind and side",
		},
		[]string{"kind", "side"},
	)

	// OrdersRejected counts orders refused by the submission guards.
	OrdersRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_orders_rejected_total",
			Help: "Total number of orders rejected by reason",
		},
		[]string{"reason"},
	)

	// CancelsTotal counts cancellation requests by outcome.
	CancelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_cancels_total",
			Help: "Total number of cancellation requests by outcome",
		},
		[]string{"outcome"},
	)

	// FillsTotal counts produced fills.
	FillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exchange_fills_total",
			Help: "Total number of fills produced by the matching loop",
		},
	)

	// VolumeFilled accumulates matched volume.
	VolumeFilled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exchange_volume_filled_total",
			Help: "Total volume matched across all fills",
		},
	)

	// BestVolume tracks the volume resting at the best level per side.
	BestVolume = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exchange_best_level_volume",
			Help: "Volume resting at the best level",
		},
		[]string{"side"},
	)
)
