package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ledger's Prometheus counters.
type Metrics struct {
	OwnersAdded         prometheus.Counter
	PercentageChanges   prometheus.Counter
	RolesAssigned       prometheus.Counter
	InvariantRejections prometheus.Counter
}

// New creates and registers all ledger metrics.
func New() *Metrics {
	return &Metrics{
		OwnersAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteledger_owners_added_total",
			Help: "Total number of ownership stakes granted",
		}),
		PercentageChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteledger_ownership_changes_total",
			Help: "Total number of ownership percentage changes",
		}),
		RolesAssigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteledger_roles_assigned_total",
			Help: "Total number of company roles assigned",
		}),
		InvariantRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteledger_ownership_invariant_rejections_total",
			Help: "Writes rejected because total ownership would exceed 100%",
		}),
	}
}
