package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_events_ingested_total",
		Help: "Total number of events accepted by the ingestion endpoint.",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_events_processed_total",
		Help: "Total number of events scored and marked processed by the worker loop.",
	})

	EventsTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_events_triggered_total",
		Help: "Total number of events whose score met the configured threshold.",
	})

	ScoringErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_scoring_errors_total",
		Help: "Total number of events whose payload could not be decoded for scoring.",
	})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sift_deliveries_total",
		Help: "Total number of notification delivery attempts, labelled by outcome.",
	}, []string{"status"})

	DeliveryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sift_delivery_queue_depth",
		Help: "Number of notifications currently awaiting retry.",
	})

	ObserversConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sift_observers_connected",
		Help: "Number of currently connected live stream observers.",
	})

	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_broadcasts_total",
		Help: "Total number of messages fanned out to live observers.",
	})
)
