// Package metrics provides Prometheus counters for anonymization batches.
//
// Batches are short-lived, so instead of a scrape endpoint the registry is
// written once at the end of a run in the node_exporter textfile format:
//
//	deid_records_total{result="success|failed|skipped"}
//	deid_field_warnings_total{kind="..."}
//	deid_ledger_fragmented_total
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric of this package.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Records counts processed records by result.
var Records = factory.NewCounterVec(prometheus.CounterOpts{
	Name: "deid_records_total",
	Help: "Records processed, by result.",
}, []string{"result"})

// FieldWarnings counts recovered field-level problems by kind.
var FieldWarnings = factory.NewCounterVec(prometheus.CounterOpts{
	Name: "deid_field_warnings_total",
	Help: "Field values blanked or left unshifted, by kind.",
}, []string{"kind"})

// LedgerFragmented counts audit entries written to a side file.
var LedgerFragmented = factory.NewCounter(prometheus.CounterOpts{
	Name: "deid_ledger_fragmented_total",
	Help: "Audit entries written to a side file after a ledger lock timeout.",
})

// WriteTextfile writes the registry to path for the textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
