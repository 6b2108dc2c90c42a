package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics aggregates the counters exported by the market module.
type MarketMetrics struct {
	offersAdded          prometheus.Counter
	offersResolved       *prometheus.CounterVec
	listingsCreated      prometheus.Counter
	listingsCancelled    prometheus.Counter
	settlementLegs       prometheus.Counter
	settlementsCompleted prometheus.Counter
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the process-wide market metrics registry, initialising and
// registering the collectors on first use.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			offersAdded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_offers_added_total",
				Help: "Count of offers accepted into a listing ledger.",
			}),
			offersResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_offers_resolved_total",
				Help: "Count of offers leaving a ledger by outcome.",
			}, []string{"outcome"}),
			listingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_listings_created_total",
				Help: "Count of assets moved into custody and listed.",
			}),
			listingsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_listings_cancelled_total",
				Help: "Count of listings cancelled and returned to owners.",
			}),
			settlementLegs: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_settlement_legs_total",
				Help: "Count of asset legs delivered into escrow.",
			}),
			settlementsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_settlements_completed_total",
				Help: "Count of settlements reaching final custody release.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.offersAdded,
			marketRegistry.offersResolved,
			marketRegistry.listingsCreated,
			marketRegistry.listingsCancelled,
			marketRegistry.settlementLegs,
			marketRegistry.settlementsCompleted,
		)
	})
	return marketRegistry
}

// ObserveOfferAdded records an offer entering a ledger.
func (m *MarketMetrics) ObserveOfferAdded() {
	if m == nil {
		return
	}
	m.offersAdded.Inc()
}

// ObserveOfferResolved records an offer leaving a ledger with the supplied
// outcome label.
func (m *MarketMetrics) ObserveOfferResolved(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.offersResolved.WithLabelValues(outcome).Inc()
}

// ObserveListed records a new listing.
func (m *MarketMetrics) ObserveListed() {
	if m == nil {
		return
	}
	m.listingsCreated.Inc()
}

// ObserveUnlisted records a cancelled listing.
func (m *MarketMetrics) ObserveUnlisted() {
	if m == nil {
		return
	}
	m.listingsCancelled.Inc()
}

// ObserveSettlementLeg records a delivered asset leg.
func (m *MarketMetrics) ObserveSettlementLeg() {
	if m == nil {
		return
	}
	m.settlementLegs.Inc()
}

// ObserveSettlementCompleted records a settlement reaching its terminal
// release.
func (m *MarketMetrics) ObserveSettlementCompleted() {
	if m == nil {
		return
	}
	m.settlementsCompleted.Inc()
}
