package handlers_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftwatch/sift-be/internal/api"
	"github.com/siftwatch/sift-be/internal/database"
	"github.com/siftwatch/sift-be/internal/models"
	"github.com/siftwatch/sift-be/internal/rules"
	"github.com/siftwatch/sift-be/internal/services"
	ws "github.com/siftwatch/sift-be/internal/websocket"
)

type apiEnv struct {
	router  http.Handler
	db      *sql.DB
	events  *services.EventService
	actions *services.ActionService
	rules   *rules.Store
	hub     *ws.Hub
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := database.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	ruleStore := rules.NewStore(filepath.Join(dir, "rules.json"), 0.8)
	_, err = ruleStore.Load()
	require.NoError(t, err)

	hub := ws.NewHub()
	go hub.Run()

	events := services.NewEventService(db, hub)
	actions := services.NewActionService(db, hub)
	deliveries := services.NewDeliveryService(db)

	return &apiEnv{
		router:  api.NewRouter(hub, events, actions, deliveries, ruleStore),
		db:      db,
		events:  events,
		actions: actions,
		rules:   ruleStore,
		hub:     hub,
	}
}

func (e *apiEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestIngestEvent(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/events",
		`{"user":"alice","action":"lead_hot","payload":{"value":5},"timestamp":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, 1.0, resp["event_id"])

	events, err := env.events.GetRecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "lead_hot", events[0].Action)
}

func TestIngestEventRejectsMissingAction(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/events", `{"user":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/events", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	events, err := env.events.GetRecentEvents(10)
	require.NoError(t, err)
	assert.Empty(t, events, "invalid events never enter the store")
}

func TestRulesRoundTrip(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/rules", `{"score_threshold": 0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg models.RuleConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 0.5, cfg.ScoreThreshold)
}

func TestRulesUpdateRejectsBadThreshold(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/rules", `{"score_threshold": 2.0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The active document is unchanged.
	assert.Equal(t, 0.8, env.rules.Current().ScoreThreshold)
}

func TestGetIntel(t *testing.T) {
	env := newAPIEnv(t)

	_, err := env.events.InsertEvent("alice", "login", nil, 100)
	require.NoError(t, err)
	_, err = env.actions.CreateAction(1, "email_alert", models.ActionDetails{Status: "sent", Score: 0.95})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/v1/intel?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events  []models.Event        `json:"events"`
		Actions []models.ActionRecord `json:"actions"`
		Rules   models.RuleConfig     `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 1)
	assert.Len(t, resp.Actions, 1)
	assert.Equal(t, 0.8, resp.Rules.ScoreThreshold)
}

func TestGetIntelEmpty(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/intel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"events":[]`)
	assert.Contains(t, rec.Body.String(), `"actions":[]`)
}

func TestGetDeliveriesEmpty(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/deliveries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queue":[]`)
	assert.Contains(t, rec.Body.String(), `"log":[]`)
}

func TestHealthz(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Greater(t, resp["ts"].(float64), 0.0)
}

func TestStreamReceivesIngestedEvents(t *testing.T) {
	env := newAPIEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub a beat to register the observer before broadcasting.
	time.Sleep(50 * time.Millisecond)

	rec := env.do(t, http.MethodPost, "/api/v1/events", `{"action":"lead_hot","timestamp":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ws.StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)

	payload, ok := msg.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "lead_hot", payload["action"])
}
