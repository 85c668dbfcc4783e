package worker

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/siftwatch/sift-be/internal/metrics"
	"github.com/siftwatch/sift-be/internal/models"
	"github.com/siftwatch/sift-be/internal/rules"
	"github.com/siftwatch/sift-be/internal/scoring"
	"github.com/siftwatch/sift-be/internal/services"
)

// Worker drains unprocessed events, scores them, and hands triggered events
// to the dispatcher. Exactly one instance runs per process (see Supervisor);
// it is the sole writer of the processed flag.
type Worker struct {
	events     services.EventServiceProvider
	rules      *rules.Store
	dispatcher *Dispatcher

	interval  time.Duration
	batchSize int

	ticker *time.Ticker
	done   chan bool
}

// NewWorker creates a new worker loop.
func NewWorker(events services.EventServiceProvider, ruleStore *rules.Store, dispatcher *Dispatcher, interval time.Duration, batchSize int) *Worker {
	return &Worker{
		events:     events,
		rules:      ruleStore,
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  batchSize,
		done:       make(chan bool),
	}
}

// Run starts the polling loop. It alternates between idle ticks and draining
// bursts: a full batch means more work is likely waiting, so the next fetch
// happens immediately instead of after the poll interval.
func (w *Worker) Run() {
	log.Info().Dur("interval", w.interval).Int("batch_size", w.batchSize).Msg("Starting event worker loop...")
	w.ticker = time.NewTicker(w.interval)
	defer w.ticker.Stop()

	// Drain once immediately on start
	w.drain()

	for {
		select {
		case <-w.done:
			log.Info().Msg("Stopping event worker loop.")
			return
		case <-w.ticker.C:
			w.drain()
		}
	}
}

// Stop halts the loop after the in-flight drain cycle finishes.
func (w *Worker) Stop() {
	w.done <- true
}

func (w *Worker) drain() {
	for {
		batch, err := w.events.FetchUnprocessed(w.batchSize)
		if err != nil {
			log.Error().Err(err).Msg("Worker: failed to fetch unprocessed events")
			return
		}
		if len(batch) == 0 {
			return
		}

		cfg := w.rules.Current()
		for _, event := range batch {
			if err := w.processEvent(event, cfg); err != nil {
				// If the processed flag cannot be written, refetching would
				// hand the same rows back and dispatch duplicate alerts.
				// Back off until the next tick.
				return
			}
		}

		if len(batch) < w.batchSize {
			return
		}
	}
}

// processEvent scores one event, dispatches the alert when triggered, and
// always marks the event processed. A malformed event must never block the
// queue, so scoring failures only log; a MarkProcessed failure is returned
// so the drain cycle stops instead of re-reading the row.
func (w *Worker) processEvent(event models.Event, cfg models.RuleConfig) error {
	score, err := w.scoreEvent(event, cfg)
	if err != nil {
		log.Warn().Err(err).Int64("event_id", event.ID).Str("action", event.Action).Msg("Worker: scoring failed, event skipped")
		metrics.ScoringErrors.Inc()
	} else if scoring.ShouldTrigger(score, cfg) {
		metrics.EventsTriggered.Inc()
		// Hand off on a separate goroutine so one slow delivery cannot
		// stall the polling loop.
		go w.dispatcher.Dispatch(event, score)
	}

	if err := w.events.MarkProcessed(event.ID); err != nil {
		log.Error().Err(err).Int64("event_id", event.ID).Msg("Worker: failed to mark event processed")
		return err
	}
	metrics.EventsProcessed.Inc()
	return nil
}

// scoreEvent wraps the pure scoring function with a panic guard so a payload
// shape the engine has never seen degrades to a logged error instead of
// taking down the loop.
func (w *Worker) scoreEvent(event models.Event, cfg models.RuleConfig) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring panic: %v", r)
		}
	}()
	return scoring.Score(event.Action, event.Payload, cfg), nil
}
