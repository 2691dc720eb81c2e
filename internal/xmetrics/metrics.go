// Package xmetrics instruments the group core with Prometheus
// collectors: queue depth (pending + in-progress), per-collective
// counts and latencies, and rendezvous round-trip time. The collectors
// are registered against a package-level registry callers can mount
// wherever their process already serves HTTP.
package xmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the collector registry collgroup metrics register into.
// It is kept separate from prometheus.DefaultRegisterer so embedding
// applications can choose whether and where to expose it.
var Registry = prometheus.NewRegistry()

var (
	// QueueDepth reports the instantaneous pending+in-progress size of
	// one group's work queue, labeled by group id.
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "collgroup",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Pending plus in-progress work items currently held by the group's work queue.",
	}, []string{"group"})

	// CollectiveTotal counts completed collective invocations by kind
	// and outcome.
	CollectiveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collgroup",
		Subsystem: "collective",
		Name:      "total",
		Help:      "Completed collective invocations.",
	}, []string{"group", "op", "outcome"})

	// CollectiveDuration observes wall-clock run() duration per
	// collective kind.
	CollectiveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "collgroup",
		Subsystem: "collective",
		Name:      "duration_seconds",
		Help:      "Time spent executing a collective's run() on the worker thread.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"group", "op"})

	// RendezvousLatency observes the time spent in store.Wait during
	// fullmesh connect.
	RendezvousLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "collgroup",
		Subsystem: "rendezvous",
		Name:      "wait_seconds",
		Help:      "Time spent blocked on the rendezvous store while establishing fullmesh connectivity.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"group"})
)

func init() {
	Registry.MustRegister(QueueDepth, CollectiveTotal, CollectiveDuration, RendezvousLatency)
}
