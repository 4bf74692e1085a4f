package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "marketplace_kafka"

var consumerLabels = []string{"topic", "consumer_group"}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
	}, labels)
}

var (
	consumerMessagesProcessed = counter("consumer_messages_processed_total",
		"Messages handled successfully.", consumerLabels...)
	consumerMessagesFailed = counter("consumer_messages_failed_total",
		"Messages that failed every retry.", consumerLabels...)
	consumerProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "consumer_processing_duration_seconds",
		Help:      "Time spent handling one message, retries included.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, consumerLabels)

	producerMessagesPublished = counter("producer_messages_published_total",
		"Messages written by producers.", "topic")
	producerPublishErrors = counter("producer_publish_errors_total",
		"Failed producer writes.", "topic")

	deadLettered = counter("dlq_messages_total",
		"Messages forwarded to a dead-letter topic.", "original_topic", "consumer_group", "result")
)
