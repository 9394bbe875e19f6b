package rules

import (
	"context"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "test-rule-001",
		Name:       "Test Rule",
		Expression: "amount > 100.0",
		Score:      10,
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "invalid-rule",
		Name:       "Invalid Rule",
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestValidateRuleDoesNotLoad(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "validate-only",
		Expression: "amount > 0.0",
		Enabled:    true,
	}

	if err := engine.ValidateRule(rule); err != nil {
		t.Fatalf("ValidateRule failed: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("ValidateRule should not load the rule, got %d loaded", engine.RulesCount())
	}

	bad := &domain.RuleConfig{ID: "bad", Expression: "&&&&"}
	if err := engine.ValidateRule(bad); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestRejectsNonScalarExpression(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "string-rule",
		Expression: `"just a string"`,
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err == nil {
		t.Error("expected error for expression returning string")
	}
}

func TestEvaluateAll(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rules := []*domain.RuleConfig{
		{
			ID:         "high-collect",
			Name:       "High collect amount",
			Expression: `intent_type == "collect" && amount > 50000.0`,
			Signals:    []domain.SignalType{domain.SignalUPI, domain.SignalTransaction},
			Score:      35,
			Finding:    "Very high amount collect request",
			Enabled:    true,
		},
		{
			ID:         "otp-mention",
			Name:       "OTP mention in note",
			Expression: `note.contains("otp")`,
			Score:      15,
			Finding:    "Transaction note mentions OTP",
			Enabled:    true,
		},
	}

	if err := engine.LoadRules(rules); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	req := &domain.AnalysisRequest{
		Signal:   domain.SignalTransaction,
		Platform: domain.PlatformAndroid,
		Transaction: &domain.TransactionEvidence{
			Amount:       60000,
			RecipientUPI: "merchant@paytm",
			Note:         "Share OTP to confirm",
			IntentType:   domain.IntentCollect,
		},
	}

	results := engine.EvaluateAll(context.Background(), req)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	byID := make(map[string]domain.RuleResult)
	for _, r := range results {
		byID[r.RuleID] = r
	}

	if r := byID["high-collect"]; !r.Matched || r.Score != 35 {
		t.Errorf("high-collect: expected match with score 35, got matched=%v score=%.0f", r.Matched, r.Score)
	}
	if r := byID["otp-mention"]; !r.Matched {
		t.Errorf("otp-mention: expected match on lowercased note")
	}
}

func TestEvaluateAllSignalFilter(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "sms-only",
		Expression: `message.contains("lottery")`,
		Signals:    []domain.SignalType{domain.SignalSMS},
		Score:      20,
		Enabled:    true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}

	urlReq := &domain.AnalysisRequest{
		Signal: domain.SignalURL,
		URL:    &domain.URLEvidence{URL: "https://example.com"},
	}

	if results := engine.EvaluateAll(context.Background(), urlReq); len(results) != 0 {
		t.Errorf("expected no results for non-matching signal, got %d", len(results))
	}

	smsReq := &domain.AnalysisRequest{
		Signal: domain.SignalSMS,
		SMS:    &domain.SMSEvidence{Message: "You won the LOTTERY"},
	}

	results := engine.EvaluateAll(context.Background(), smsReq)
	if len(results) != 1 || !results[0].Matched {
		t.Fatalf("expected 1 matched result, got %v", results)
	}
}

func TestEvaluateNoMatch(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "big-amount",
		Expression: "amount > 100000.0",
		Score:      30,
		Enabled:    true,
	}
	engine.LoadRule(rule)

	req := &domain.AnalysisRequest{
		Signal:      domain.SignalTransaction,
		Transaction: &domain.TransactionEvidence{Amount: 500, RecipientUPI: "shop@ybl"},
	}

	results := engine.EvaluateAll(context.Background(), req)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Matched {
		t.Error("expected no match for small amount")
	}
	if results[0].Score != 0 {
		t.Errorf("unmatched rule should carry zero score, got %.0f", results[0].Score)
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{ID: "old", Expression: "amount > 0.0", Enabled: true})

	newRules := []*domain.RuleConfig{
		{ID: "new-1", Expression: "velocity > 5", Enabled: true},
		{ID: "new-2", Expression: "new_device", Enabled: true},
		{ID: "disabled", Expression: "amount > 0.0", Enabled: false},
	}

	if err := engine.ReloadRules(newRules); err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}

	if engine.RulesCount() != 2 {
		t.Errorf("expected 2 rules after reload, got %d", engine.RulesCount())
	}

	loaded := engine.GetLoadedRules()
	for _, cfg := range loaded {
		if cfg.ID == "old" || cfg.ID == "disabled" {
			t.Errorf("unexpected rule still loaded: %s", cfg.ID)
		}
	}
}

func TestBuiltinRulesCompile(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("builtin rules failed to compile: %v", err)
	}
	if engine.RulesCount() == 0 {
		t.Error("expected builtin rules to be loaded")
	}
}

func TestBuiltinSIMChangeRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	req := &domain.AnalysisRequest{
		Signal: domain.SignalTransaction,
		Transaction: &domain.TransactionEvidence{
			Amount:       2000,
			RecipientUPI: "someone@ybl",
			Device:       &domain.DeviceHints{SIMChangedRecently: true},
		},
	}

	results := engine.EvaluateAll(context.Background(), req)

	var simMatched bool
	for _, r := range results {
		if r.RuleID == "builtin-sim-change-payment" && r.Matched {
			simMatched = true
		}
	}
	if !simMatched {
		t.Error("expected SIM change rule to match")
	}
}
