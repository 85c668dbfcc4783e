package models

// RuleConfigVersion is the current schema version of the rules document.
// Bump it together with a migration in rules.Store when fields change shape.
const RuleConfigVersion = 1

// RuleConfig is the persisted document controlling scoring and triggering.
// It is replaced wholesale on update; handlers and the worker loop never
// mutate individual fields of a shared copy.
type RuleConfig struct {
	Version        int                `json:"version"`
	ScoreThreshold float64            `json:"score_threshold"`
	BaseScores     map[string]float64 `json:"base_scores,omitempty"` // per-action overrides
	DigestCron     string             `json:"digest_cron,omitempty"`
}

// DefaultRuleConfig returns the document written on first startup.
func DefaultRuleConfig(threshold float64) RuleConfig {
	return RuleConfig{
		Version:        RuleConfigVersion,
		ScoreThreshold: threshold,
	}
}
