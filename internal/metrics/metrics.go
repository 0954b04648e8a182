// Package metrics wraps the Prometheus collectors of the raffle daemon: operation outcomes and
// latency, value and token flow derived from raffle events, tracker progress and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
)

const namespace = "homechance"

// Collector owns its registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	ticketsSold       *prometheus.CounterVec
	valueMoved        *prometheus.CounterVec
	tokensMinted      *prometheus.CounterVec
	rafflesClosed     *prometheus.CounterVec

	trackerEvents     prometheus.Counter
	trackerMismatches prometheus.Counter
	trackerTouch      prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "raffle",
			Name:      "operations_total",
			Help:      "Total number of raffle operations by result code.",
		},
		[]string{"operation", "code"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "raffle",
			Name:      "operation_duration_seconds",
			Help:      "Duration of raffle operations including persistence.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	c.ticketsSold = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "raffle",
			Name:      "tickets_sold_total",
			Help:      "Total number of tickets sold by payment channel.",
		},
		[]string{"channel"},
	)

	c.valueMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "raffle",
			Name:      "value_total",
			Help:      "Value reported by raffle events in the smallest currency unit.",
		},
		[]string{"kind"},
	)

	c.tokensMinted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "raffle",
			Name:      "tokens_minted_total",
			Help:      "Fractional ownership units minted.",
		},
		[]string{"recipient"},
	)

	c.rafflesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "raffle",
			Name:      "closed_total",
			Help:      "Total number of closed raffles by outcome.",
		},
		[]string{"outcome"},
	)

	c.trackerEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "events_total",
			Help:      "Events folded into holder statuses.",
		},
	)

	c.trackerMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "escrow_mismatches_total",
			Help:      "Escrow audits whose balance differed from the raffle ledger.",
		},
	)

	c.trackerTouch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "touched_sequence",
			Help:      "Sequence of the last event folded by the tracker.",
		},
	)

	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	c.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	c.registry.MustRegister(
		c.operations,
		c.operationDuration,
		c.ticketsSold,
		c.valueMoved,
		c.tokensMinted,
		c.rafflesClosed,
		c.trackerEvents,
		c.trackerMismatches,
		c.trackerTouch,
		c.httpRequests,
		c.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordOperation counts an operation under its raffle error code, "ok" on success.
func (c *Collector) RecordOperation(operation string, duration time.Duration, err error) {
	code := "ok"
	if err != nil {
		code = raffle.Code(err)
	}
	c.operations.WithLabelValues(operation, code).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEvent updates the flow counters from a committed raffle event.
func (c *Collector) RecordEvent(event raffle.Event) {
	switch e := event.(type) {
	case *raffle.TicketPurchased:
		c.ticketsSold.WithLabelValues(string(e.Channel)).Add(float64(e.Tickets))
		c.valueMoved.WithLabelValues("ticket_sales").Add(float64(e.Cost))
	case *raffle.RaffleClosed:
		outcome := "partial"
		if e.FullSale {
			outcome = "full"
		}
		c.rafflesClosed.WithLabelValues(outcome).Inc()
	case *raffle.HolderProcessed:
		if e.RefundedAmount != nil {
			c.valueMoved.WithLabelValues("refund").Add(float64(*e.RefundedAmount))
		}
		if e.OwedAmount != nil {
			c.valueMoved.WithLabelValues("refund_owed").Add(float64(*e.OwedAmount))
		}
		if e.TokensMinted != nil {
			c.tokensMinted.WithLabelValues("holder").Add(float64(*e.TokensMinted))
		}
	case *raffle.PayoutProcessed:
		c.valueMoved.WithLabelValues("seller_payout").Add(float64(e.SellerPayout))
		c.valueMoved.WithLabelValues("platform_revenue").Add(float64(e.PlatformRevenue))
		c.valueMoved.WithLabelValues("charity_contribution").Add(float64(e.CharityContribution))
		if e.SellerTokensMinted != nil {
			c.tokensMinted.WithLabelValues("seller").Add(float64(*e.SellerTokensMinted))
		}
	}
}

func (c *Collector) RecordTrackerPass(processed int, touch int64) {
	c.trackerEvents.Add(float64(processed))
	if touch > 0 {
		c.trackerTouch.Set(float64(touch))
	}
}

func (c *Collector) RecordEscrowMismatch() {
	c.trackerMismatches.Inc()
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
