package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exchange groups the counters the trading core emits.
type Exchange struct {
	TradesExecuted    *prometheus.CounterVec
	TradeVolume       *prometheus.CounterVec
	FeesCollected     prometheus.Counter
	SettlementCredits prometheus.Counter
	MarketsResolved   prometheus.Counter
}

// NewExchange registers the exchange metric family on the given registerer.
// Pass prometheus.DefaultRegisterer in main; tests can pass a fresh registry.
func NewExchange(reg prometheus.Registerer) *Exchange {
	factory := promauto.With(reg)
	return &Exchange{
		TradesExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openbook",
			Name:      "trades_executed_total",
			Help:      "Trades executed, labeled by type and side.",
		}, []string{"type", "side"}),
		TradeVolume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openbook",
			Name:      "trade_volume_total",
			Help:      "Money that changed hands through trades, labeled by type.",
		}, []string{"type"}),
		FeesCollected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "openbook",
			Name:      "fees_collected_total",
			Help:      "Cumulative trading fees collected by the platform.",
		}),
		SettlementCredits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "openbook",
			Name:      "settlement_credits_total",
			Help:      "Cumulative payouts credited to winning positions.",
		}),
		MarketsResolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "openbook",
			Name:      "markets_resolved_total",
			Help:      "Markets moved to the resolved state.",
		}),
	}
}
