package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BountyMetrics records escrow ledger and coordinator activity for the
// Prometheus scrape endpoint.
type BountyMetrics struct {
	Funded          prometheus.Counter
	Claims          *prometheus.CounterVec
	Payouts         prometheus.Counter
	Rejections      prometheus.Counter
	Refunds         prometheus.Counter
	ScriptErrors    prometheus.Counter
	OpenBounties    prometheus.Gauge
	CallbackLatency prometheus.Histogram
}

var (
	bountyMetricsOnce sync.Once
	bountyRegistry    *BountyMetrics
)

// Metrics returns the lazily-initialised bounty metrics registry. The
// collectors register against the default Prometheus registry exactly once.
func Metrics() *BountyMetrics {
	bountyMetricsOnce.Do(func() {
		bountyRegistry = &BountyMetrics{
			Funded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gitbounty",
				Subsystem: "ledger",
				Name:      "funded_total",
				Help:      "Total bounties funded.",
			}),
			Claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gitbounty",
				Subsystem: "ledger",
				Name:      "claims_total",
				Help:      "Total claim attempts segmented by outcome.",
			}, []string{"outcome"}),
			Payouts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gitbounty",
				Subsystem: "ledger",
				Name:      "payouts_total",
				Help:      "Total bounties paid out to verified claimants.",
			}),
			Rejections: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gitbounty",
				Subsystem: "ledger",
				Name:      "rejections_total",
				Help:      "Total claims rejected by verification.",
			}),
			Refunds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gitbounty",
				Subsystem: "ledger",
				Name:      "refunds_total",
				Help:      "Total bounties refunded to their issuer after the timelock.",
			}),
			ScriptErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gitbounty",
				Subsystem: "oracle",
				Name:      "script_errors_total",
				Help:      "Total callbacks carrying an oracle-side script error.",
			}),
			OpenBounties: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "gitbounty",
				Subsystem: "ledger",
				Name:      "open_bounties",
				Help:      "Bounties currently claimable.",
			}),
			CallbackLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "gitbounty",
				Subsystem: "oracle",
				Name:      "callback_latency_seconds",
				Help:      "Time between claim dispatch and oracle callback.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			}),
		}
		prometheus.MustRegister(
			bountyRegistry.Funded,
			bountyRegistry.Claims,
			bountyRegistry.Payouts,
			bountyRegistry.Rejections,
			bountyRegistry.Refunds,
			bountyRegistry.ScriptErrors,
			bountyRegistry.OpenBounties,
			bountyRegistry.CallbackLatency,
		)
	})
	return bountyRegistry
}
