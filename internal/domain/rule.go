package domain

// RuleConfig defines an operator-supplied detection rule.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate against the signal
	Expression string `json:"expression"`

	// Signal types the rule applies to; empty means all
	Signals []SignalType `json:"signals,omitempty"`

	// Score added to the rules category when the expression holds
	Score float64 `json:"score"`

	// Finding text attached when the rule fires
	Finding string `json:"finding"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleResult is the output of a custom rule evaluation.
type RuleResult struct {
	RuleID    string  `json:"ruleId"`
	Matched   bool    `json:"matched"`
	Score     float64 `json:"score"`
	Finding   string  `json:"finding,omitempty"`
	Err       string  `json:"err,omitempty"`
	ProcessMs int64   `json:"processMs"`
}
