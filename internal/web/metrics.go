package web

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels sync runs that applied their whole plan.
	OutcomeSuccess = "success"
	// OutcomeError labels runs where the fetch, listing, or any applied
	// operation failed.
	OutcomeError = "error"
)

var (
	syncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mbtacal",
			Name:      "sync_runs_total",
			Help:      "Total number of sync runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	syncOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mbtacal",
			Name:      "sync_operations_total",
			Help:      "Calendar operations planned, partitioned by kind.",
		},
		[]string{"op"},
	)

	activeAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mbtacal",
			Name:      "active_alerts",
			Help:      "Active alerts on the monitored lines at the last sync.",
		},
	)
)

// RegisterMetrics attaches the mbtacal collectors to reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		syncRunsTotal,
		syncOperationsTotal,
		activeAlerts,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSync records one sync run's outcome, plan size, and alert count.
func ObserveSync(outcome string, created, updated, deleted, alerts int) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	syncRunsTotal.WithLabelValues(outcome).Inc()
	syncOperationsTotal.WithLabelValues("create").Add(float64(created))
	syncOperationsTotal.WithLabelValues("update").Add(float64(updated))
	syncOperationsTotal.WithLabelValues("delete").Add(float64(deleted))
	activeAlerts.Set(float64(alerts))
}
