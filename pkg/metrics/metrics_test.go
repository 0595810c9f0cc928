package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRegistered(t *testing.T) {
	Classifications.WithLabelValues("reply").Inc()
	Records.WithLabelValues("share", "ok").Inc()
	IdempotentHits.Inc()
	WizardSteps.WithLabelValues("share", "START", "ok").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	seen := map[string]bool{}
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "nunti_") {
			seen[f.GetName()] = true
		}
	}
	for _, name := range []string{
		"nunti_classifications_total",
		"nunti_records_total",
		"nunti_idempotent_hits_total",
		"nunti_wizard_steps_total",
	} {
		if !seen[name] {
			t.Errorf("%s not registered", name)
		}
	}
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(Records.WithLabelValues("reply", "error"))
	Records.WithLabelValues("reply", "error").Inc()
	if got := testutil.ToFloat64(Records.WithLabelValues("reply", "error")); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}
}
