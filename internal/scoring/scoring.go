package scoring

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/siftwatch/sift-be/internal/models"
)

// defaultBaseScore is used for action types absent from the base table.
const defaultBaseScore = 0.2

// baseScores maps known action types to their starting score. Entries in
// RuleConfig.BaseScores override these per deployment.
var baseScores = map[string]float64{
	"lead_hot":       0.95,
	"signup":         0.7,
	"payment_failed": 0.6,
	"api_error":      0.4,
	"login":          0.1,
}

// Score maps an event to a heuristic importance score in [0, 1]. It is
// deterministic and side-effect free for any payload shape.
func Score(action string, payload map[string]any, cfg models.RuleConfig) float64 {
	score := baseScore(action, cfg)

	if v, ok := numberField(payload, "value"); ok && v > 0 {
		score += math.Min(0.25, math.Log1p(v)/10)
	}
	if s, ok := stringField(payload, "priority"); ok && s == "high" {
		score += 0.15
	}
	if b, ok := boolField(payload, "suspected"); ok && b {
		score += 0.20
	}
	if n, ok := numberField(payload, "occurrences"); ok && n > 1 {
		score += math.Min(0.25, n*0.05)
	}

	return clamp(score)
}

// ShouldTrigger reports whether a score warrants an action.
func ShouldTrigger(score float64, cfg models.RuleConfig) bool {
	return score >= cfg.ScoreThreshold
}

func baseScore(action string, cfg models.RuleConfig) float64 {
	if cfg.BaseScores != nil {
		if s, ok := cfg.BaseScores[action]; ok {
			return s
		}
	}
	if s, ok := baseScores[action]; ok {
		return s
	}
	return defaultBaseScore
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// numberField extracts a numeric payload field. Payloads arrive through JSON
// decoding and the store round-trip, so numbers may show up as float64,
// json.Number, int, or numeric strings.
func numberField(payload map[string]any, key string) (float64, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringField(payload map[string]any, key string) (string, bool) {
	if payload == nil {
		return "", false
	}
	s, ok := payload[key].(string)
	return s, ok
}

func boolField(payload map[string]any, key string) (bool, bool) {
	if payload == nil {
		return false, false
	}
	switch v := payload[key].(type) {
	case bool:
		return v, true
	case string:
		return v == "true", true
	default:
		return false, false
	}
}
