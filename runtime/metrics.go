package runtime

import "github.com/prometheus/client_golang/prometheus"

// metrics are the ambient counters the runtime exposes for operational
// visibility (spec.md §4.5 names no metrics explicitly; these mirror the
// quantities aistore's own transport/ and dsort/ packages track — bytes
// moved and units of work completed).
var (
	bytesRedirected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dash",
		Subsystem: "runtime",
		Name:      "redirected_bytes_total",
		Help:      "Bytes copied by redirection workers, by stream kind.",
	}, []string{"kind"})

	nodesSpawned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dash",
		Subsystem: "runtime",
		Name:      "nodes_spawned_total",
		Help:      "Cmd nodes spawned as child processes.",
	})

	subprogramsShipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dash",
		Subsystem: "runtime",
		Name:      "subprograms_shipped_total",
		Help:      "Sub-programs shipped to a server via ProgramExecution.",
	})
)

func init() {
	prometheus.MustRegister(bytesRedirected, nodesSpawned, subprogramsShipped)
}
