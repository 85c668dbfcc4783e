package worker

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/siftwatch/sift-be/internal/metrics"
	"github.com/siftwatch/sift-be/internal/models"
	"github.com/siftwatch/sift-be/internal/notify"
	"github.com/siftwatch/sift-be/internal/services"
)

// retryBatchSize bounds how many due deliveries one scan picks up.
const retryBatchSize = 50

// RetryScheduler re-attempts failed deliveries with exponential backoff.
// It is the sole writer of delivery queue rows.
type RetryScheduler struct {
	deliveries services.DeliveryServiceProvider
	notifier   notify.Notifier

	interval    time.Duration
	maxAttempts int
	sendTimeout time.Duration

	ticker *time.Ticker
	done   chan bool
}

// NewRetryScheduler creates a scheduler scanning the queue every interval.
// Entries exceeding maxAttempts are dead-lettered: removed from the queue
// with a terminal delivery log record.
func NewRetryScheduler(deliveries services.DeliveryServiceProvider, notifier notify.Notifier, interval time.Duration, maxAttempts int) *RetryScheduler {
	return &RetryScheduler{
		deliveries:  deliveries,
		notifier:    notifier,
		interval:    interval,
		maxAttempts: maxAttempts,
		sendTimeout: 15 * time.Second,
		done:        make(chan bool),
	}
}

// Run starts the scheduler's scan loop.
func (rs *RetryScheduler) Run() {
	log.Info().Dur("interval", rs.interval).Int("max_attempts", rs.maxAttempts).Msg("Starting delivery retry scheduler...")
	rs.ticker = time.NewTicker(rs.interval)
	defer rs.ticker.Stop()

	for {
		select {
		case <-rs.done:
			log.Info().Msg("Stopping delivery retry scheduler.")
			return
		case <-rs.ticker.C:
			rs.scan()
		}
	}
}

// Stop halts the scheduler.
func (rs *RetryScheduler) Stop() {
	rs.done <- true
}

// scan retries every due queue entry once. Failures are contained per entry.
func (rs *RetryScheduler) scan() {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	due, err := rs.deliveries.FetchDue(now, retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("RetryScheduler: failed to fetch due deliveries")
		return
	}

	for _, entry := range due {
		rs.attempt(entry, now)
	}

	if depth, err := rs.deliveries.QueueDepth(); err == nil {
		metrics.DeliveryQueueDepth.Set(float64(depth))
	}
}

func (rs *RetryScheduler) attempt(entry models.DeliveryQueueEntry, now float64) {
	ctx, cancel := context.WithTimeout(context.Background(), rs.sendTimeout)
	err := rs.notifier.Send(ctx, entry.Subject, entry.Body, entry.Recipient)
	cancel()

	if err == nil {
		if err := rs.deliveries.Remove(entry.ID); err != nil {
			log.Error().Err(err).Int64("queue_id", entry.ID).Msg("RetryScheduler: failed to remove delivered entry")
		}
		rs.appendLog(entry, models.DeliveryStatusSent, "")
		metrics.Deliveries.WithLabelValues(models.DeliveryStatusSent).Inc()
		log.Info().Int64("queue_id", entry.ID).Int64("event_id", entry.EventID).Int("attempts", entry.Attempts+1).Msg("RetryScheduler: delivery succeeded")
		return
	}

	attempts := entry.Attempts + 1
	if attempts >= rs.maxAttempts {
		// Terminal failure: drop the queue row, keep the audit trail.
		if rmErr := rs.deliveries.Remove(entry.ID); rmErr != nil {
			log.Error().Err(rmErr).Int64("queue_id", entry.ID).Msg("RetryScheduler: failed to remove dead-lettered entry")
		}
		rs.appendLogWithAttempt(entry, models.DeliveryStatusDeadLetter, err.Error(), attempts)
		metrics.Deliveries.WithLabelValues(models.DeliveryStatusDeadLetter).Inc()
		log.Error().Err(err).Int64("queue_id", entry.ID).Int64("event_id", entry.EventID).Int("attempts", attempts).Msg("RetryScheduler: delivery dead-lettered")
		return
	}

	nextRetryAt := now + math.Pow(2, float64(attempts))
	if uErr := rs.deliveries.RecordFailure(entry.ID, attempts, nextRetryAt); uErr != nil {
		log.Error().Err(uErr).Int64("queue_id", entry.ID).Msg("RetryScheduler: failed to record delivery failure")
	}
	rs.appendLogWithAttempt(entry, models.DeliveryStatusFailed, err.Error(), attempts)
	metrics.Deliveries.WithLabelValues(models.DeliveryStatusFailed).Inc()
	log.Warn().Err(err).Int64("queue_id", entry.ID).Int("attempts", attempts).Float64("next_retry_at", nextRetryAt).Msg("RetryScheduler: delivery failed, backing off")
}

func (rs *RetryScheduler) appendLog(entry models.DeliveryQueueEntry, status, errMsg string) {
	rs.appendLogWithAttempt(entry, status, errMsg, entry.Attempts+1)
}

func (rs *RetryScheduler) appendLogWithAttempt(entry models.DeliveryQueueEntry, status, errMsg string, attempt int) {
	if err := rs.deliveries.AppendLog(models.DeliveryLogEntry{
		EventID:   entry.EventID,
		Recipient: entry.Recipient,
		Status:    status,
		Error:     errMsg,
		Attempt:   attempt,
	}); err != nil {
		log.Error().Err(err).Int64("queue_id", entry.ID).Msg("RetryScheduler: failed to append delivery log")
	}
}
