package domain

// RiskLevel is the banded classification of a combined score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels for comparison. Unknown levels rank lowest.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return 0
}

// ActionType is the autonomous response chosen for a scored signal.
type ActionType string

const (
	ActionAllow            ActionType = "allow"
	ActionMonitor          ActionType = "monitor"
	ActionWarn             ActionType = "warn"
	ActionConfirm          ActionType = "require_confirmation"
	ActionBlock            ActionType = "block"
	ActionAbortTransaction ActionType = "abort_transaction"
	ActionRedirect         ActionType = "redirect_to_warning"
	ActionDisableControls  ActionType = "disable_payment_controls"
)
