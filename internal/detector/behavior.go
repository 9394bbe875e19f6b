package detector

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BehaviorAnalyzer scores transaction-history and device-security
// anomalies. All inputs are pre-computed facts supplied by the caller.
type BehaviorAnalyzer struct{}

// NewBehaviorAnalyzer creates a behavior analyzer.
func NewBehaviorAnalyzer() *BehaviorAnalyzer {
	return &BehaviorAnalyzer{}
}

// AnalyzeTransaction scores transaction behavior against the user's
// history with the payee.
func (a *BehaviorAnalyzer) AnalyzeTransaction(amount float64, hints *domain.BehaviorHints) domain.DetectorResult {
	res := domain.DetectorResult{Category: domain.CategoryBehavioral}
	if hints == nil {
		return res
	}

	if hints.NewPayee && amount > 5000 {
		res.Score += 35
		res.Findings = append(res.Findings, "first payment to this payee with a high amount")
	} else if hints.NewPayee {
		res.Score += 15
		res.Findings = append(res.Findings, "new payee")
	}

	if hints.UnusualAmount {
		if hints.TypicalAmount > 0 && amount > hints.TypicalAmount*3 {
			res.Score += 40
			res.Findings = append(res.Findings,
				fmt.Sprintf("amount over 3x typical (%.2f)", hints.TypicalAmount))
		} else {
			res.Score += 25
			res.Findings = append(res.Findings, "unusual transaction amount")
		}
	}

	if hints.UnusualTime {
		res.Score += 20
		res.Findings = append(res.Findings, "transaction at unusual time")
	}

	if hints.Velocity > 5 {
		res.Score += 30
		res.Findings = append(res.Findings,
			fmt.Sprintf("high transaction velocity: %d in the last hour", hints.Velocity))
	} else if hints.Velocity > 3 {
		res.Score += 15
		res.Findings = append(res.Findings,
			fmt.Sprintf("moderate transaction velocity: %d in the last hour", hints.Velocity))
	}

	return res
}

// AnalyzeDevice scores device-security indicators. These layer on top
// of the transaction score because device compromise raises risk
// regardless of the payment itself.
func (a *BehaviorAnalyzer) AnalyzeDevice(hints *domain.DeviceHints) domain.DetectorResult {
	res := domain.DetectorResult{Category: domain.CategoryBehavioral}
	if hints == nil {
		return res
	}

	if hints.SIMChangedRecently {
		res.Score += 40
		res.Findings = append(res.Findings, "SIM card changed recently, possible SIM swap fraud")
	}
	if len(hints.ScreenSharingApps) > 0 {
		res.Score += 50
		res.Findings = append(res.Findings,
			"screen sharing apps detected: "+strings.Join(hints.ScreenSharingApps, ", "))
	}
	if hints.NewDevice {
		res.Score += 20
		res.Findings = append(res.Findings, "new device detected")
	}

	return res
}
