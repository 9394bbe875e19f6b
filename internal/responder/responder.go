// Package responder converts classified decisions into platform
// execution steps and UI presentation metadata.
package responder

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var levelColors = map[domain.RiskLevel]string{
	domain.RiskLow:      "#4CAF50",
	domain.RiskMedium:   "#FF9800",
	domain.RiskHigh:     "#F44336",
	domain.RiskCritical: "#D32F2F",
}

var actionIcons = map[domain.ActionType]string{
	domain.ActionAllow:            "check",
	domain.ActionMonitor:          "eye",
	domain.ActionWarn:             "warning",
	domain.ActionConfirm:          "warning",
	domain.ActionBlock:            "stop",
	domain.ActionAbortTransaction: "stop",
	domain.ActionRedirect:         "stop",
	domain.ActionDisableControls:  "forbidden",
}

var levelPriorities = map[domain.RiskLevel]string{
	domain.RiskLow:      "low",
	domain.RiskMedium:   "default",
	domain.RiskHigh:     "high",
	domain.RiskCritical: "max",
}

// Blocker is the live blocked-entity set. The learning store provides
// it so all adaptive state shares one synchronization domain.
type Blocker interface {
	Block(entity string)
	Unblock(entity string)
	IsBlocked(entity string) bool
}

// Responder builds action bundles and maintains block-set membership
// through the shared Blocker.
type Responder struct {
	blocker Blocker
}

// New creates a responder backed by the given block set.
func New(blocker Blocker) *Responder {
	return &Responder{blocker: blocker}
}

// Respond assembles the full action bundle for one classified signal
// and records blocking side effects.
func (r *Responder) Respond(action domain.ActionType, level domain.RiskLevel, req *domain.AnalysisRequest, findings []string) *domain.ActionBundle {
	bundle := &domain.ActionBundle{
		Action:          action,
		Level:           level,
		Reason:          reasonFor(action, level),
		Recommendations: recommendationsFor(level, req.Signal),
		UI:              uiFor(action, level),
	}

	switch req.Platform {
	case domain.PlatformChrome:
		bundle.Instructions = r.chromeInstructions(action, req)
	case domain.PlatformAndroid:
		bundle.Instructions = r.androidInstructions(action, req)
	default:
		bundle.Instructions = r.genericInstructions(action)
	}

	// Device-security warnings layer on independent of the primary action.
	if device := req.Device(); device != nil {
		bundle.Instructions = append(bundle.Instructions, deviceInstructions(device)...)
	}

	if isBlockingAction(action) {
		if entity, _ := req.Entity(); entity != "" {
			r.blocker.Block(entity)
		}
	}

	return bundle
}

// IsBlocked reports whether an entity is currently blocked.
func (r *Responder) IsBlocked(entity string) bool {
	return r.blocker.IsBlocked(entity)
}

// Unblock lifts a block, typically after safe feedback.
func (r *Responder) Unblock(entity string) {
	r.blocker.Unblock(entity)
}

func (r *Responder) chromeInstructions(action domain.ActionType, req *domain.AnalysisRequest) []domain.Instruction {
	entity, _ := req.Entity()
	var steps []domain.Instruction

	switch action {
	case domain.ActionBlock, domain.ActionRedirect:
		steps = append(steps, domain.Instruction{
			Op:     "block_navigation",
			Target: entity,
			Params: map[string]string{
				"redirect_to": "chrome://warning-page",
				"message":     "this website has been blocked for your safety",
			},
		})
		if req.Signal == domain.SignalQR {
			steps = append(steps, domain.Instruction{
				Op:     "block_qr_usage",
				Params: map[string]string{"message": "fraudulent QR code detected, scanning blocked"},
			})
		}
		if req.URL != nil && req.URL.Redirects != nil && req.URL.Redirects.Suspicious {
			steps = append(steps, domain.Instruction{
				Op:     "stop_redirect",
				Params: map[string]string{"message": "suspicious redirect chain blocked"},
			})
		}

	case domain.ActionWarn, domain.ActionConfirm:
		severity := "warning"
		if action == domain.ActionConfirm {
			severity = "confirm"
		}
		steps = append(steps, domain.Instruction{
			Op: "show_popup",
			Params: map[string]string{
				"severity": severity,
				"title":    "security warning",
			},
		})

	case domain.ActionMonitor:
		steps = append(steps, domain.Instruction{
			Op:     "silent_monitor",
			Params: map[string]string{"track": "true"},
		})
	}

	return steps
}

func (r *Responder) androidInstructions(action domain.ActionType, req *domain.AnalysisRequest) []domain.Instruction {
	var steps []domain.Instruction

	switch action {
	case domain.ActionAbortTransaction:
		steps = append(steps, domain.Instruction{
			Op:     "abort_transaction",
			Params: map[string]string{"message": "payment blocked, fraud detected"},
		})
		if req.IntentType() != "" {
			steps = append(steps, domain.Instruction{
				Op:     "block_upi_intent",
				Params: map[string]string{"message": "fraudulent UPI request blocked"},
			})
		}

	case domain.ActionBlock:
		switch req.Signal {
		case domain.SignalSMS:
			steps = append(steps, domain.Instruction{
				Op:     "block_sms_links",
				Params: map[string]string{"disable_click": "true"},
			})
		case domain.SignalUPI, domain.SignalTransaction:
			steps = append(steps, domain.Instruction{
				Op:     "disable_pay_button",
				Params: map[string]string{"message": "payment blocked for your safety"},
			})
		default:
			steps = append(steps, domain.Instruction{Op: "show_alert",
				Params: map[string]string{"severity": "high"}})
		}

	case domain.ActionWarn, domain.ActionConfirm:
		severity := "medium"
		if action == domain.ActionConfirm {
			severity = "high"
		}
		steps = append(steps, domain.Instruction{
			Op: "show_alert",
			Params: map[string]string{
				"severity": severity,
				"title":    "fraud warning",
			},
		})

	case domain.ActionDisableControls:
		steps = append(steps, domain.Instruction{
			Op:     "disable_pay_button",
			Params: map[string]string{"message": "payment controls disabled"},
		})

	case domain.ActionMonitor:
		steps = append(steps, domain.Instruction{
			Op:     "silent_monitor",
			Params: map[string]string{"log": "true"},
		})
	}

	return steps
}

func (r *Responder) genericInstructions(action domain.ActionType) []domain.Instruction {
	switch action {
	case domain.ActionMonitor, domain.ActionAllow:
		return []domain.Instruction{{Op: "silent_monitor"}}
	default:
		return []domain.Instruction{{Op: "show_alert", Params: map[string]string{
			"severity": "high",
		}}}
	}
}

func deviceInstructions(device *domain.DeviceHints) []domain.Instruction {
	var steps []domain.Instruction
	if len(device.ScreenSharingApps) > 0 {
		steps = append(steps, domain.Instruction{
			Op: "warn_screen_sharing",
			Params: map[string]string{
				"apps":    strings.Join(device.ScreenSharingApps, ","),
				"message": "screen sharing apps detected, do not share your screen with unknown contacts",
			},
		})
	}
	if device.SIMChangedRecently {
		steps = append(steps, domain.Instruction{
			Op:     "sim_change_alert",
			Params: map[string]string{"message": "your SIM was recently changed, be cautious with financial transactions"},
		})
	}
	return steps
}

func uiFor(action domain.ActionType, level domain.RiskLevel) domain.UIInstructions {
	ui := domain.UIInstructions{
		Color:       colorFor(level),
		Icon:        iconFor(action),
		Title:       titleFor(action),
		Priority:    priorityFor(level),
		Vibrate:     level == domain.RiskHigh || level == domain.RiskCritical,
		Sound:       level == domain.RiskCritical,
		FullScreen:  level == domain.RiskCritical,
		RequiresAck: requiresAck(action),
	}
	if action == domain.ActionMonitor {
		ui.AutoDismissMS = 3000
	}
	return ui
}

func colorFor(level domain.RiskLevel) string {
	if c, ok := levelColors[level]; ok {
		return c
	}
	return "#757575"
}

func iconFor(action domain.ActionType) string {
	if i, ok := actionIcons[action]; ok {
		return i
	}
	return "warning"
}

func priorityFor(level domain.RiskLevel) string {
	if p, ok := levelPriorities[level]; ok {
		return p
	}
	return "default"
}

func requiresAck(action domain.ActionType) bool {
	switch action {
	case domain.ActionConfirm, domain.ActionWarn, domain.ActionBlock:
		return true
	}
	return false
}

func isBlockingAction(action domain.ActionType) bool {
	switch action {
	case domain.ActionBlock, domain.ActionAbortTransaction, domain.ActionRedirect:
		return true
	}
	return false
}

func titleFor(action domain.ActionType) string {
	switch action {
	case domain.ActionBlock, domain.ActionRedirect:
		return "blocked for your safety"
	case domain.ActionAbortTransaction:
		return "transaction aborted"
	case domain.ActionConfirm:
		return "confirm before proceeding"
	case domain.ActionWarn:
		return "fraud warning"
	case domain.ActionDisableControls:
		return "payment controls disabled"
	default:
		return "monitoring"
	}
}

func reasonFor(action domain.ActionType, level domain.RiskLevel) string {
	return fmt.Sprintf("%s risk, action %s", level, action)
}

func recommendationsFor(level domain.RiskLevel, signal domain.SignalType) []string {
	if level == domain.RiskLow {
		return []string{"no immediate threat detected, stay vigilant"}
	}

	recs := []string{"do not proceed until you have verified this is legitimate"}

	switch signal {
	case domain.SignalURL:
		recs = append(recs,
			"do not enter passwords, OTPs or card details on this page",
			"check the address bar for the official domain before continuing")
	case domain.SignalSMS:
		recs = append(recs,
			"do not click links in this message",
			"contact the organization through its official app or website instead")
	case domain.SignalUPI, domain.SignalTransaction:
		recs = append(recs,
			"confirm the recipient's identity through a separate channel",
			"remember that receiving money never requires entering your UPI PIN")
	case domain.SignalQR:
		recs = append(recs,
			"only scan QR codes from sources you trust",
			"check the payee name shown before approving any payment")
	}

	if level == domain.RiskHigh || level == domain.RiskCritical {
		recs = append(recs, "report this to your bank and the cybercrime portal")
	}
	return recs
}
