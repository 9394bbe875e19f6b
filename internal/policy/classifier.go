// Package policy maps risk scores to risk levels and risk levels to
// autonomous actions. All transitions are stateless; thresholds are
// passed in so the learning store can tune them.
package policy

import "github.com/opensource-finance/kestrel/internal/domain"

// Threshold tuning bounds. The medium threshold tunes within [65,75]
// on a 40 base plus accumulated adjustments; high within [95,105].
const (
	mediumCeiling = 75
	mediumFloor   = 65
	highCeiling   = 105
	highFloor     = 95

	tuneStep = 5

	fpRateHigh = 0.15
	fpRateLow  = 0.05
)

// DefaultThresholds returns the base risk-band cutoffs.
func DefaultThresholds() domain.Thresholds {
	return domain.Thresholds{Medium: 40, High: 70, Critical: 100}
}

// Cap bounds a combined score to [0,100].
func Cap(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Classify maps a capped score to a risk level.
func Classify(score float64, t domain.Thresholds) domain.RiskLevel {
	s := Cap(score)
	switch {
	case s < t.Medium:
		return domain.RiskLow
	case s < t.High:
		return domain.RiskMedium
	case s < t.Critical:
		return domain.RiskHigh
	}
	return domain.RiskCritical
}

// Tune adjusts the medium and high thresholds from the observed
// false-positive rate: too many false positives raises both by 5, a
// very low rate lowers them by 5. Results stay within fixed bounds.
func Tune(t domain.Thresholds, falsePositiveRate float64) domain.Thresholds {
	switch {
	case falsePositiveRate > fpRateHigh:
		t.Medium = minf(t.Medium+tuneStep, mediumCeiling)
		t.High = minf(t.High+tuneStep, highCeiling)
	case falsePositiveRate < fpRateLow:
		t.Medium = maxf(t.Medium-tuneStep, mediumFloor)
		t.High = maxf(t.High-tuneStep, highFloor)
	}
	return t
}

// DetermineAction selects the autonomous action for a classified
// signal. The precedence at HIGH and CRITICAL is deliberate: a UPI
// collect request aborts before any platform handling, chrome
// redirects before the generic block.
func DetermineAction(level domain.RiskLevel, platform domain.Platform, signal domain.SignalType, intentType string) domain.ActionType {
	switch level {
	case domain.RiskLow:
		return domain.ActionMonitor

	case domain.RiskMedium:
		if isPaymentSignal(signal) {
			return domain.ActionConfirm
		}
		return domain.ActionWarn

	case domain.RiskHigh, domain.RiskCritical:
		switch {
		case signal == domain.SignalUPI && intentType == domain.IntentCollect:
			return domain.ActionAbortTransaction
		case platform == domain.PlatformChrome:
			return domain.ActionRedirect
		default:
			return domain.ActionBlock
		}
	}
	return domain.ActionAllow
}

func isPaymentSignal(signal domain.SignalType) bool {
	switch signal {
	case domain.SignalUPI, domain.SignalTransaction:
		return true
	}
	return false
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
