package rules

import "github.com/opensource-finance/kestrel/internal/domain"

// BuiltinRules returns the default rule set loaded at startup before any
// operator-defined rules are read from the database. Operators can
// disable them individually by saving a config with the same ID and
// Enabled = false.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "builtin-collect-new-device",
			Name:        "Collect request on new device",
			Description: "Collect requests arriving on a newly enrolled device are a common account-takeover pattern",
			Version:     "1",
			Expression:  `intent_type == "collect" && new_device`,
			Signals:     []domain.SignalType{domain.SignalUPI, domain.SignalTransaction, domain.SignalSMS},
			Score:       20,
			Finding:     "Collect request on a newly enrolled device",
			Enabled:     true,
		},
		{
			ID:          "builtin-sim-change-payment",
			Name:        "Payment after SIM change",
			Description: "Payments shortly after a SIM change suggest SIM-swap fraud",
			Version:     "1",
			Expression:  `sim_changed && amount > 0.0`,
			Signals:     []domain.SignalType{domain.SignalUPI, domain.SignalTransaction},
			Score:       25,
			Finding:     "Payment initiated shortly after SIM change",
			Enabled:     true,
		},
		{
			ID:          "builtin-high-velocity-new-payee",
			Name:        "Rapid payments to a new payee",
			Description: "Several payments in quick succession to a never-seen payee",
			Version:     "1",
			Expression:  `new_payee && velocity > 3`,
			Signals:     []domain.SignalType{domain.SignalUPI, domain.SignalTransaction},
			Score:       20,
			Finding:     "Rapid repeat payments to an unfamiliar payee",
			Enabled:     true,
		},
	}
}
