package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the verification workflow's Prometheus counters.
type Metrics struct {
	Submissions        prometheus.Counter
	Approvals          prometheus.Counter
	Rejections         prometheus.Counter
	DuplicatesDetected prometheus.Counter
	DisputesReported   prometheus.Counter
	IndexLookups       prometheus.Counter
	IndexHits          prometheus.Counter
}

// New creates and registers all verification metrics.
func New() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteledger_verification_submissions_total",
			Help: "Total number of identity verification submissions",
		}),
		Approvals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteledger_verification_approvals_total",
			Help: "Total number of approved verifications",
		}),
		Rejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteledger_verification_rejections_total",
			Help: "Total number of rejected verifications",
		}),
		DuplicatesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteledger_duplicate_ids_detected_total",
			Help: "Submissions blocked because the national ID belongs to another account",
		}),
		DisputesReported: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteledger_fraud_disputes_reported_total",
			Help: "Total number of fraud disputes filed",
		}),
		IndexLookups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteledger_national_id_index_lookups_total",
			Help: "National ID lookups answered by the Redis index or the store",
		}),
		IndexHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteledger_national_id_index_hits_total",
			Help: "National ID lookups answered by the Redis index",
		}),
	}
}
