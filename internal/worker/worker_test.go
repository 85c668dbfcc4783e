package worker

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftwatch/sift-be/internal/database"
	"github.com/siftwatch/sift-be/internal/models"
	"github.com/siftwatch/sift-be/internal/rules"
	"github.com/siftwatch/sift-be/internal/services"
)

// fakeNotifier fails the first failures sends, then succeeds.
type fakeNotifier struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *fakeNotifier) Send(_ context.Context, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	db         *sql.DB
	events     *services.EventService
	actions    *services.ActionService
	deliveries *services.DeliveryService
	rules      *rules.Store
	notifier   *fakeNotifier
	worker     *Worker
}

func newTestEnv(t *testing.T, failures int) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := database.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	ruleStore := rules.NewStore(filepath.Join(dir, "rules.json"), 0.8)
	_, err = ruleStore.Load()
	require.NoError(t, err)

	env := &testEnv{
		db:         db,
		events:     services.NewEventService(db, nil),
		actions:    services.NewActionService(db, nil),
		deliveries: services.NewDeliveryService(db),
		rules:      ruleStore,
		notifier:   &fakeNotifier{failures: failures},
	}
	dispatcher := NewDispatcher(env.notifier, env.actions, env.deliveries, "ops@example.com")
	dispatcher.retryPause = time.Millisecond
	env.worker = NewWorker(env.events, ruleStore, dispatcher, time.Second, 50)
	return env
}

func TestWorkerTriggersHighScoringEvent(t *testing.T) {
	env := newTestEnv(t, 0)

	id, err := env.events.InsertEvent("alice", "lead_hot", map[string]any{}, 100)
	require.NoError(t, err)

	env.worker.drain()

	// The event is marked processed synchronously.
	unprocessed, err := env.events.FetchUnprocessed(10)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)

	// The dispatch runs on its own goroutine; wait for the action record.
	require.Eventually(t, func() bool {
		records, err := env.actions.GetRecentActions(10)
		return err == nil && len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)

	records, err := env.actions.GetRecentActions(10)
	require.NoError(t, err)
	assert.Equal(t, id, records[0].EventID)
	assert.Equal(t, "email_alert", records[0].ActionType)
	assert.Equal(t, "sent", records[0].Details.Status)
	assert.InDelta(t, 0.95, records[0].Details.Score, 1e-9)
}

func TestWorkerIgnoresLowScoringEvent(t *testing.T) {
	env := newTestEnv(t, 0)

	_, err := env.events.InsertEvent("", "login", nil, 100)
	require.NoError(t, err)

	env.worker.drain()

	unprocessed, err := env.events.FetchUnprocessed(10)
	require.NoError(t, err)
	assert.Empty(t, unprocessed, "low-scoring events are still marked processed")

	// Give a stray dispatch a moment to show up; none should.
	time.Sleep(50 * time.Millisecond)
	records, err := env.actions.GetRecentActions(10)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, env.notifier.callCount())
}

func TestWorkerProcessesEachEventOnce(t *testing.T) {
	env := newTestEnv(t, 0)

	_, err := env.events.InsertEvent("", "lead_hot", nil, 100)
	require.NoError(t, err)

	env.worker.drain()
	env.worker.drain()

	require.Eventually(t, func() bool {
		records, err := env.actions.GetRecentActions(10)
		return err == nil && len(records) > 0
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	records, err := env.actions.GetRecentActions(10)
	require.NoError(t, err)
	assert.Len(t, records, 1, "a second drain must not re-score the event")
}

func TestWorkerQueuesFailedDelivery(t *testing.T) {
	// Fail more than the immediate attempts so delivery degrades to the queue.
	env := newTestEnv(t, immediateAttempts+1)

	id, err := env.events.InsertEvent("", "lead_hot", nil, 100)
	require.NoError(t, err)

	env.worker.drain()

	require.Eventually(t, func() bool {
		records, err := env.actions.GetRecentActions(10)
		return err == nil && len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)

	records, err := env.actions.GetRecentActions(10)
	require.NoError(t, err)
	assert.Equal(t, "queued_for_retry", records[0].Details.Status)
	assert.NotEmpty(t, records[0].Details.Error)

	queue, err := env.deliveries.PendingQueue(10)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, id, queue[0].EventID)

	logEntries, err := env.deliveries.RecentLog(10)
	require.NoError(t, err)
	require.Len(t, logEntries, 1)
	assert.Equal(t, models.DeliveryStatusFailed, logEntries[0].Status)

	// The event itself is processed regardless of the delivery outcome.
	unprocessed, err := env.events.FetchUnprocessed(10)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)
}

func TestWorkerMarksMalformedEventProcessed(t *testing.T) {
	env := newTestEnv(t, 0)

	// Bypass the service to store a payload the JSON decoder cannot parse.
	_, err := env.db.Exec(
		"INSERT INTO events (user, action, payload_json, timestamp, processed) VALUES (NULL, 'api_error', '{not json', 100, 0)")
	require.NoError(t, err)

	env.worker.drain()

	unprocessed, err := env.events.FetchUnprocessed(10)
	require.NoError(t, err)
	assert.Empty(t, unprocessed, "a malformed event must not block the queue")
}

// stuckEventStore always hands back the same full batch and refuses to mark
// anything processed.
type stuckEventStore struct {
	batch   []models.Event
	fetches int
	marks   int
}

func (s *stuckEventStore) InsertEvent(string, string, map[string]any, float64) (int64, error) {
	return 0, nil
}

func (s *stuckEventStore) FetchUnprocessed(int) ([]models.Event, error) {
	s.fetches++
	return s.batch, nil
}

func (s *stuckEventStore) MarkProcessed(int64) error {
	s.marks++
	return errors.New("disk full")
}

func (s *stuckEventStore) GetRecentEvents(int) ([]models.Event, error) {
	return s.batch, nil
}

func TestWorkerStopsDrainWhenMarkProcessedFails(t *testing.T) {
	env := newTestEnv(t, 0)

	store := &stuckEventStore{batch: []models.Event{{ID: 1, Action: "login", Timestamp: 100}}}
	env.worker.events = store
	env.worker.batchSize = 1 // every fetch reads as a full batch

	env.worker.drain()

	assert.Equal(t, 1, store.fetches, "a failed mark must end the drain cycle, not refetch the same rows")
	assert.Equal(t, 1, store.marks)
}

func TestWorkerRespectsThresholdChanges(t *testing.T) {
	env := newTestEnv(t, 0)
	require.NoError(t, env.rules.Save(models.RuleConfig{ScoreThreshold: 0.05}))

	_, err := env.events.InsertEvent("", "login", nil, 100)
	require.NoError(t, err)

	env.worker.drain()

	require.Eventually(t, func() bool {
		records, err := env.actions.GetRecentActions(10)
		return err == nil && len(records) == 1
	}, 2*time.Second, 10*time.Millisecond, "login scores 0.1, above the lowered threshold")
}
