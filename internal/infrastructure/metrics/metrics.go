package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles Prometheus collectors for the scraper service.
// All methods are safe on a nil receiver, so metrics can be switched off.
type Metrics struct {
	Registry              *prometheus.Registry
	SearchesTotal         *prometheus.CounterVec
	SearchDuration        *prometheus.HistogramVec
	CardsAcceptedTotal    prometheus.Counter
	CardsDiscardedTotal   *prometheus.CounterVec
	BrowserContextsActive prometheus.Gauge
	DetailRequestsTotal   *prometheus.CounterVec
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	searches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ozonscraper_searches_total",
			Help: "Total searches by outcome.",
		},
		[]string{"outcome"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ozonscraper_search_duration_seconds",
			Help:    "End-to-end search latency, browser included.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 15, 20, 30, 60},
		},
		[]string{"outcome"},
	)
	accepted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ozonscraper_cards_accepted_total",
			Help: "Total listing cards turned into product records.",
		},
	)
	discarded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ozonscraper_cards_discarded_total",
			Help: "Total listing cards dropped, by reason.",
		},
		[]string{"reason"},
	)
	contexts := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ozonscraper_browser_contexts_active",
			Help: "Browsing contexts currently open.",
		},
	)
	details := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ozonscraper_detail_requests_total",
			Help: "Product detail lookups by status.",
		},
		[]string{"status"},
	)
	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ozonscraper_http_requests_total",
			Help: "Inbound HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ozonscraper_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		searches, searchDuration, accepted, discarded, contexts, details, httpRequests, httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Registry:              registry,
		SearchesTotal:         searches,
		SearchDuration:        searchDuration,
		CardsAcceptedTotal:    accepted,
		CardsDiscardedTotal:   discarded,
		BrowserContextsActive: contexts,
		DetailRequestsTotal:   details,
		HTTPRequestsTotal:     httpRequests,
		HTTPRequestDuration:   httpDuration,
	}
}

// ObserveSearch records a finished search.
func (m *Metrics) ObserveSearch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(outcome).Inc()
	m.SearchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveCards records the extraction tally of one page.
func (m *Metrics) ObserveCards(accepted int, discarded map[string]int) {
	if m == nil {
		return
	}
	m.CardsAcceptedTotal.Add(float64(accepted))
	for reason, n := range discarded {
		m.CardsDiscardedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// BrowserContextOpened increments the open contexts gauge.
func (m *Metrics) BrowserContextOpened() {
	if m == nil {
		return
	}
	m.BrowserContextsActive.Inc()
}

// BrowserContextClosed decrements the open contexts gauge.
func (m *Metrics) BrowserContextClosed() {
	if m == nil {
		return
	}
	m.BrowserContextsActive.Dec()
}

// ObserveDetailRequest counts a product detail lookup.
func (m *Metrics) ObserveDetailRequest(status string) {
	if m == nil {
		return
	}
	m.DetailRequestsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
