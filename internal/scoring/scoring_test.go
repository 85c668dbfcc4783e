package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siftwatch/sift-be/internal/models"
)

func defaultCfg() models.RuleConfig {
	return models.DefaultRuleConfig(0.8)
}

func TestScoreBaseTable(t *testing.T) {
	tests := []struct {
		action string
		want   float64
	}{
		{"lead_hot", 0.95},
		{"signup", 0.7},
		{"payment_failed", 0.6},
		{"api_error", 0.4},
		{"login", 0.1},
		{"something_unknown", 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.action, nil, defaultCfg()), 1e-9)
		})
	}
}

func TestScoreValueBoost(t *testing.T) {
	// api_error base 0.4 plus the capped log boost.
	got := Score("api_error", map[string]any{"value": 100.0}, defaultCfg())
	want := 0.4 + math.Min(0.25, math.Log1p(100)/10)
	assert.InDelta(t, want, got, 1e-9)
	assert.Less(t, got, 0.8, "value boost alone must not cross the default threshold")

	// Small values stay under the cap.
	got = Score("api_error", map[string]any{"value": 2.0}, defaultCfg())
	assert.InDelta(t, 0.4+math.Log1p(2)/10, got, 1e-9)
}

func TestScorePayloadBoosts(t *testing.T) {
	cfg := defaultCfg()

	assert.InDelta(t, 0.35, Score("unknown", map[string]any{"priority": "high"}, cfg), 1e-9)
	assert.InDelta(t, 0.40, Score("unknown", map[string]any{"suspected": true}, cfg), 1e-9)
	assert.InDelta(t, 0.2, Score("unknown", map[string]any{"suspected": false}, cfg), 1e-9)

	// occurrences boost is capped at 0.25 and requires more than one.
	assert.InDelta(t, 0.30, Score("unknown", map[string]any{"occurrences": 2}, cfg), 1e-9)
	assert.InDelta(t, 0.45, Score("unknown", map[string]any{"occurrences": 50}, cfg), 1e-9)
	assert.InDelta(t, 0.2, Score("unknown", map[string]any{"occurrences": 1}, cfg), 1e-9)
}

func TestScoreClampedToOne(t *testing.T) {
	payload := map[string]any{
		"value":       1e9,
		"priority":    "high",
		"suspected":   true,
		"occurrences": 100,
	}
	assert.Equal(t, 1.0, Score("lead_hot", payload, defaultCfg()))
}

func TestScoreBoundsForArbitraryPayloads(t *testing.T) {
	payloads := []map[string]any{
		nil,
		{},
		{"value": "not a number"},
		{"value": -500.0},
		{"priority": 42, "suspected": "yes", "occurrences": []int{1, 2}},
		{"value": map[string]any{"nested": true}},
	}
	for _, payload := range payloads {
		for _, action := range []string{"lead_hot", "login", ""} {
			score := Score(action, payload, defaultCfg())
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	payload := map[string]any{"value": 7.5, "priority": "high"}
	first := Score("signup", payload, defaultCfg())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score("signup", payload, defaultCfg()))
	}
}

func TestScoreStringAndJSONNumberValues(t *testing.T) {
	cfg := defaultCfg()
	fromString := Score("api_error", map[string]any{"value": "100"}, cfg)
	fromFloat := Score("api_error", map[string]any{"value": 100.0}, cfg)
	assert.Equal(t, fromFloat, fromString)
}

func TestScoreBaseOverrides(t *testing.T) {
	cfg := defaultCfg()
	cfg.BaseScores = map[string]float64{"login": 0.9, "custom_signal": 0.5}

	assert.InDelta(t, 0.9, Score("login", nil, cfg), 1e-9)
	assert.InDelta(t, 0.5, Score("custom_signal", nil, cfg), 1e-9)
	// Untouched entries still come from the built-in table.
	assert.InDelta(t, 0.95, Score("lead_hot", nil, cfg), 1e-9)
}

func TestShouldTrigger(t *testing.T) {
	cfg := defaultCfg()
	assert.True(t, ShouldTrigger(0.95, cfg))
	assert.True(t, ShouldTrigger(0.8, cfg), "threshold is inclusive")
	assert.False(t, ShouldTrigger(0.79, cfg))

	cfg.ScoreThreshold = 0.5
	assert.True(t, ShouldTrigger(0.6, cfg))
}
