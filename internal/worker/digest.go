package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/siftwatch/sift-be/internal/notify"
	"github.com/siftwatch/sift-be/internal/rules"
	"github.com/siftwatch/sift-be/internal/services"
)

// DigestScheduler periodically emails a summary of recent activity. The
// schedule is a standard cron expression taken from the rules document
// (digest_cron), falling back to the static configuration.
type DigestScheduler struct {
	actions   services.ActionServiceProvider
	notifier  notify.Notifier
	rules     *rules.Store
	recipient string
	fallback  string // cron expression used when the rules document has none

	ticker *time.Ticker
	done   chan bool

	lastDigest time.Time
	nextRun    time.Time
	lastExpr   string
}

// NewDigestScheduler creates a digest scheduler. It is a no-op until a cron
// expression is configured.
func NewDigestScheduler(actions services.ActionServiceProvider, notifier notify.Notifier, ruleStore *rules.Store, recipient, fallbackCron string) *DigestScheduler {
	return &DigestScheduler{
		actions:    actions,
		notifier:   notifier,
		rules:      ruleStore,
		recipient:  recipient,
		fallback:   fallbackCron,
		done:       make(chan bool),
		lastDigest: time.Now(),
	}
}

// Run starts the digest check loop. The tick is coarse; cron resolution is
// one minute anyway.
func (ds *DigestScheduler) Run() {
	log.Info().Msg("Starting digest scheduler...")
	ds.ticker = time.NewTicker(30 * time.Second)
	defer ds.ticker.Stop()

	for {
		select {
		case <-ds.done:
			log.Info().Msg("Stopping digest scheduler.")
			return
		case <-ds.ticker.C:
			ds.checkAndSend()
		}
	}
}

// Stop halts the scheduler.
func (ds *DigestScheduler) Stop() {
	ds.done <- true
}

func (ds *DigestScheduler) checkAndSend() {
	expr := ds.rules.Current().DigestCron
	if expr == "" {
		expr = ds.fallback
	}
	if expr == "" {
		return
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		log.Warn().Err(err).Str("cron", expr).Msg("DigestScheduler: invalid cron expression")
		return
	}

	now := time.Now()
	// Recompute the next run when starting up or when the expression changed.
	if ds.nextRun.IsZero() || expr != ds.lastExpr {
		ds.nextRun = schedule.Next(now)
		ds.lastExpr = expr
		return
	}
	if now.Before(ds.nextRun) {
		return
	}
	ds.nextRun = schedule.Next(now)

	ds.sendDigest(now)
}

func (ds *DigestScheduler) sendDigest(now time.Time) {
	since := float64(ds.lastDigest.UnixNano()) / float64(time.Second)
	total, triggered, err := ds.actions.CountSince(since)
	if err != nil {
		log.Error().Err(err).Msg("DigestScheduler: failed to summarize activity")
		return
	}

	subject := fmt.Sprintf("[sift] activity digest: %d events, %d alerts", total, triggered)
	body := fmt.Sprintf(
		"Since %s:\n\nEvents ingested: %d\nAlerts triggered: %d\n",
		ds.lastDigest.Format(time.RFC3339), total, triggered,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := ds.notifier.Send(ctx, subject, body, ds.recipient); err != nil {
		log.Warn().Err(err).Msg("DigestScheduler: failed to send digest")
		return
	}
	ds.lastDigest = now
	log.Info().Int("events", total).Int("alerts", triggered).Msg("DigestScheduler: digest sent")
}
