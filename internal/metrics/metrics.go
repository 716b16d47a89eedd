// Package metrics holds the Prometheus collectors exported by the bridge.
package metrics

import (
	"sync"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
)

// LLMBuckets covers backend chat latencies from 100ms to 2 minutes.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts inbound HTTP requests by path and status code.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_bridge_requests_total",
			Help: "Inbound HTTP requests",
		},
		[]string{"path", "status"},
	)

	// BackendRequestsTotal counts backend attempts by family, model and outcome
	// (ok or an error kind).
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_bridge_backend_requests_total",
			Help: "Backend chat attempts",
		},
		[]string{"family", "model", "outcome"},
	)

	// BackendRetriesTotal counts retries issued after a transient failure.
	BackendRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_bridge_backend_retries_total",
			Help: "Backend retries after transient errors",
		},
		[]string{"family"},
	)

	// BackendLatency records the duration of a single backend attempt.
	BackendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_bridge_backend_latency_seconds",
			Help:    "Backend attempt latency",
			Buckets: LLMBuckets,
		},
		[]string{"family", "model"},
	)

	// TokensTotal counts tokens reported in backend usage, by direction.
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_bridge_tokens_total",
			Help: "Tokens reported by backends",
		},
		[]string{"family", "model", "direction"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		BackendRequestsTotal,
		BackendRetriesTotal,
		BackendLatency,
		TokensTotal,
	)
}

const (
	// MaxModelLabels bounds the distinct model label values per process.
	MaxModelLabels = 64
	// OtherModel replaces model identifiers past the bound or unfit as labels.
	OtherModel = "other"

	maxModelLabelLen = 128
)

var modelLabels = newLabelSet(MaxModelLabels)

// ModelLabel returns model as a metric label value. The first MaxModelLabels
// distinct models keep their name; later ones, and empty, overlong or
// non-UTF-8 identifiers, are folded into OtherModel.
func ModelLabel(model string) string {
	return modelLabels.label(model)
}

type labelSet struct {
	mu    sync.Mutex
	limit int
	seen  map[string]struct{}
}

func newLabelSet(limit int) *labelSet {
	return &labelSet{limit: limit, seen: make(map[string]struct{})}
}

func (s *labelSet) label(value string) string {
	if value == "" || len(value) > maxModelLabelLen || !utf8.ValidString(value) {
		return OtherModel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[value]; ok {
		return value
	}
	if len(s.seen) >= s.limit {
		return OtherModel
	}
	s.seen[value] = struct{}{}

	return value
}
