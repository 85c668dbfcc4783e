package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/siftwatch/sift-be/internal/metrics"
	"github.com/siftwatch/sift-be/internal/models"
	"github.com/siftwatch/sift-be/internal/notify"
	"github.com/siftwatch/sift-be/internal/services"
)

// immediateAttempts bounds the synchronous tries before a delivery degrades
// to the durable retry queue.
const immediateAttempts = 3

// Dispatcher turns a triggered event into a notification attempt plus an
// action record. Failed deliveries are never dropped; they land in the
// retry queue.
type Dispatcher struct {
	notifier   notify.Notifier
	actions    services.ActionServiceProvider
	deliveries services.DeliveryServiceProvider

	recipient   string
	sendTimeout time.Duration
	retryPause  time.Duration
}

// NewDispatcher creates a dispatcher delivering alerts to recipient.
func NewDispatcher(notifier notify.Notifier, actions services.ActionServiceProvider, deliveries services.DeliveryServiceProvider, recipient string) *Dispatcher {
	return &Dispatcher{
		notifier:    notifier,
		actions:     actions,
		deliveries:  deliveries,
		recipient:   recipient,
		sendTimeout: 15 * time.Second,
		retryPause:  500 * time.Millisecond,
	}
}

// Dispatch attempts delivery for a triggered event and records the outcome.
// Runs on its own goroutine; every path here is contained to this event.
func (d *Dispatcher) Dispatch(event models.Event, score float64) {
	subject, body := renderAlert(event, score)

	details := models.ActionDetails{
		Recipient: d.recipient,
		Score:     score,
	}

	if err := d.sendWithRetries(event.ID, subject, body); err != nil {
		details.Status = "queued_for_retry"
		details.Error = err.Error()
		if _, qErr := d.deliveries.Enqueue(models.DeliveryQueueEntry{
			EventID:   event.ID,
			Subject:   subject,
			Body:      body,
			Recipient: d.recipient,
		}); qErr != nil {
			log.Error().Err(qErr).Int64("event_id", event.ID).Msg("Dispatcher: failed to enqueue delivery for retry")
			details.Status = "failed"
		}
		d.updateQueueDepth()
	} else {
		details.Status = "sent"
	}

	if _, err := d.actions.CreateAction(event.ID, "email_alert", details); err != nil {
		log.Error().Err(err).Int64("event_id", event.ID).Msg("Dispatcher: failed to record action")
	}
}

// sendWithRetries makes the bounded synchronous attempts, appending one
// delivery log entry for the overall outcome.
func (d *Dispatcher) sendWithRetries(eventID int64, subject, body string) error {
	var lastErr error
	for attempt := 1; attempt <= immediateAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		err := d.notifier.Send(ctx, subject, body, d.recipient)
		cancel()

		if err == nil {
			metrics.Deliveries.WithLabelValues(models.DeliveryStatusSent).Inc()
			d.appendLog(eventID, models.DeliveryStatusSent, "", attempt)
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Int64("event_id", eventID).Int("attempt", attempt).Msg("Dispatcher: delivery attempt failed")
		if attempt < immediateAttempts {
			time.Sleep(d.retryPause)
		}
	}

	metrics.Deliveries.WithLabelValues(models.DeliveryStatusFailed).Inc()
	d.appendLog(eventID, models.DeliveryStatusFailed, lastErr.Error(), immediateAttempts)
	return lastErr
}

func (d *Dispatcher) appendLog(eventID int64, status, errMsg string, attempt int) {
	if err := d.deliveries.AppendLog(models.DeliveryLogEntry{
		EventID:   eventID,
		Recipient: d.recipient,
		Status:    status,
		Error:     errMsg,
		Attempt:   attempt,
	}); err != nil {
		log.Error().Err(err).Int64("event_id", eventID).Msg("Dispatcher: failed to append delivery log")
	}
}

func (d *Dispatcher) updateQueueDepth() {
	if depth, err := d.deliveries.QueueDepth(); err == nil {
		metrics.DeliveryQueueDepth.Set(float64(depth))
	}
}

// renderAlert builds the notification subject and body for a triggered event.
func renderAlert(event models.Event, score float64) (subject, body string) {
	subject = fmt.Sprintf("[sift] %s scored %.2f", event.Action, score)

	payload := "{}"
	if event.Payload != nil {
		if data, err := json.MarshalIndent(event.Payload, "", "  "); err == nil {
			payload = string(data)
		}
	}
	user := event.User
	if user == "" {
		user = "unknown"
	}
	body = fmt.Sprintf(
		"Event #%d triggered an alert.\n\nAction: %s\nUser: %s\nScore: %.2f\nTimestamp: %.3f\n\nPayload:\n%s\n",
		event.ID, event.Action, user, score, event.Timestamp, payload,
	)
	return subject, body
}
