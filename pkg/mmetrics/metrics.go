// Package mmetrics declares MikuDB's Prometheus series and a Collector
// that snapshots engine state into them, mirroring the teacher's
// pkg/metrics/metrics.go (package-level prometheus.Gauge/Counter/GaugeVec
// vars registered in init, plus a promhttp.Handler) and
// pkg/metrics/collector.go (a ticker-driven background snapshot loop).
// Metrics are purely observational; no engine invariant depends on them.
package mmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mikudb_documents_total",
			Help: "Approximate document count per collection",
		},
		[]string{"collection"},
	)

	WALLSN = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mikudb_wal_lsn",
			Help: "Current write-ahead log sequence number",
		},
	)

	IndexEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mikudb_index_entries_total",
			Help: "Approximate entry count per index",
		},
		[]string{"index"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mikudb_active_sessions",
			Help: "Number of currently registered sessions",
		},
	)

	ActiveTransactions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mikudb_active_transactions",
			Help: "Number of sessions currently holding an in-progress transaction",
		},
	)

	CursorsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mikudb_cursors_open",
			Help: "Number of currently open result cursors",
		},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mikudb_queries_total",
			Help: "Total statements executed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mikudb_query_duration_seconds",
			Help:    "Statement execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	RecoveryTransactionsReplayed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mikudb_recovery_transactions_replayed",
			Help: "Transactions replayed by the most recent recovery pass",
		},
	)
)

func init() {
	prometheus.MustRegister(DocumentsTotal)
	prometheus.MustRegister(WALLSN)
	prometheus.MustRegister(IndexEntriesTotal)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(ActiveTransactions)
	prometheus.MustRegister(CursorsOpen)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(RecoveryTransactionsReplayed)
}

// Handler serves the registered metrics in the Prometheus text exposition
// format, for the CLI entrypoint to mount.
func Handler() http.Handler {
	return promhttp.Handler()
}
