package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_documents_indexed_total",
			Help: "Total number of listing documents written to the search index",
		},
		[]string{"operation"},
	)

	bulkFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_bulk_failures_total",
			Help: "Total number of documents rejected during bulk indexing",
		},
	)

	reindexDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_reindex_duration_seconds",
			Help:    "Duration of full reindex sweeps in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_query_duration_seconds",
			Help:    "Duration of search and suggest queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "outcome"},
	)
)
