package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Publish outcomes. An encode failure never reaches the brokers.
const (
	outcomePublished    = "published"
	outcomeWriteFailed  = "write_failed"
	outcomeEncodeFailed = "encode_failed"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_events_published_total",
			Help: "Event envelopes handed to Kafka, by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	// Writes wait for every in-sync replica, so the buckets reach further
	// than a single broker round trip.
	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_publish_duration_seconds",
			Help:    "Time until a write is acknowledged or fails",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"topic"},
	)
)
