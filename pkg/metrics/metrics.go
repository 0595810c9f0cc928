// Package metrics holds the Prometheus collectors for the curation pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Classifications counts routing decisions by route
	// (wizard, help, channel, watch, mention, reply, ignore, admin).
	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nunti_classifications_total",
			Help: "Inbound messages by classification route.",
		},
		[]string{"route"},
	)

	// Records counts registry record operations by kind (share|reply|delete)
	// and result (ok|error).
	Records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nunti_records_total",
			Help: "Registry record operations by kind and result.",
		},
		[]string{"kind", "result"},
	)

	IdempotentHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nunti_idempotent_hits_total",
			Help: "Record creations skipped because the message was already mapped.",
		},
	)

	WizardSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nunti_wizard_steps_total",
			Help: "Admin wizard inputs by wizard, state and result.",
		},
		[]string{"wizard", "state", "result"},
	)
)

func init() {
	prometheus.MustRegister(Classifications, Records, IdempotentHits, WizardSteps)
}
