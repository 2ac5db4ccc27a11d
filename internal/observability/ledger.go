package observability

import "github.com/prometheus/client_golang/prometheus"

// Posting line outcomes.
const (
	PostingPosted  = "posted"
	PostingSkipped = "skipped"
	PostingFailed  = "failed"
)

// LedgerMetrics menghitung aktivitas pengiriman dan posting stok.
type LedgerMetrics struct {
	deliveries     prometheus.Counter
	allocations    prometheus.Counter
	numberRetries  prometheus.Counter
	postingLines   *prometheus.CounterVec
	duplicates prometheus.Counter
}

// NewLedgerMetrics mendaftarkan metrik domain pada registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	m := &LedgerMetrics{
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_created_total",
			Help:      "Delivery documents created.",
		}),
		allocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_allocations_total",
			Help:      "Delivery line allocations written.",
		}),
		numberRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_number_retries_total",
			Help:      "Delivery number allocations retried after a uniqueness conflict.",
		}),
		postingLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_posting_lines_total",
			Help:      "Material lines processed by the inventory poster, by outcome.",
		}, []string{"result"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_posting_duplicates_total",
			Help:      "Documents rejected because they were already posted.",
		}),
	}
	registerer.MustRegister(m.deliveries, m.allocations, m.numberRetries, m.postingLines, m.duplicates)
	return m
}

// DeliveryCreated records one delivery with the given number of allocations.
func (m *LedgerMetrics) DeliveryCreated(allocations int) {
	if m == nil {
		return
	}
	m.deliveries.Inc()
	m.allocations.Add(float64(allocations))
}

// NumberRetried records a numbering conflict retry.
func (m *LedgerMetrics) NumberRetried() {
	if m == nil {
		return
	}
	m.numberRetries.Inc()
}

// PostingLine records the outcome of one material line.
func (m *LedgerMetrics) PostingLine(result string) {
	if m == nil {
		return
	}
	m.postingLines.WithLabelValues(result).Inc()
}

// DuplicatePosting records a rejected repeat posting.
func (m *LedgerMetrics) DuplicatePosting() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}
