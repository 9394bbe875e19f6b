// Package rules provides the CEL-Go based custom rule engine. Operator
// rules contribute extra score to the rules detection category on top of
// the built-in pattern analyzers.
package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine is the CEL-based custom rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment exposing the signal evidence
	env, err := cel.NewEnv(
		cel.Variable("signal", cel.StringType),
		cel.Variable("platform", cel.StringType),
		cel.Variable("entity", cel.StringType),
		cel.Variable("message", cel.StringType),
		cel.Variable("sender", cel.StringType),
		cel.Variable("url", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("intent_type", cel.StringType),
		cel.Variable("payee", cel.StringType),
		cel.Variable("note", cel.StringType),
		cel.Variable("velocity", cel.IntType),
		cel.Variable("new_payee", cel.BoolType),
		cel.Variable("new_device", cel.BoolType),
		cel.Variable("sim_changed", cel.BoolType),
		cel.Variable("qr_data", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateAll evaluates all loaded rules applicable to the signal in
// parallel. A rule that errors reports the error in its result rather
// than failing the batch.
func (e *Engine) EvaluateAll(ctx context.Context, req *domain.AnalysisRequest) []domain.RuleResult {
	e.mu.RLock()
	applicable := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		if appliesTo(rule.Config, req.Signal) {
			applicable = append(applicable, rule)
		}
	}
	e.mu.RUnlock()

	if len(applicable) == 0 {
		return nil
	}

	activation := buildActivation(req)

	results := make([]domain.RuleResult, len(applicable))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range applicable {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	return results
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) domain.RuleResult {
	start := time.Now()

	result := domain.RuleResult{
		RuleID: rule.Config.ID,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	if matched(out) {
		result.Matched = true
		result.Score = rule.Config.Score
		result.Finding = rule.Config.Finding
		if result.Finding == "" {
			result.Finding = fmt.Sprintf("Custom rule matched: %s", rule.Config.Name)
		}
	}

	result.ProcessMs = time.Since(start).Milliseconds()
	return result
}

// matched converts a CEL value to a match decision.
func matched(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) > 0
	case types.Int:
		return int64(v) > 0
	default:
		return false
	}
}

// appliesTo reports whether a rule applies to the given signal type.
// An empty signal list means the rule applies to every signal.
func appliesTo(cfg *domain.RuleConfig, signal domain.SignalType) bool {
	if len(cfg.Signals) == 0 {
		return true
	}
	for _, s := range cfg.Signals {
		if s == signal {
			return true
		}
	}
	return false
}

// buildActivation flattens the request evidence into CEL variables.
// Fields absent from the signal type default to zero values so every
// expression can evaluate against every signal.
func buildActivation(req *domain.AnalysisRequest) map[string]any {
	entity, _ := req.Entity()

	activation := map[string]any{
		"signal":      string(req.Signal),
		"platform":    string(req.Platform),
		"entity":      entity,
		"message":     "",
		"sender":      "",
		"url":         "",
		"amount":      0.0,
		"intent_type": req.IntentType(),
		"payee":       "",
		"note":        "",
		"velocity":    int64(0),
		"new_payee":   false,
		"new_device":  false,
		"sim_changed": false,
		"qr_data":     "",
	}

	if req.URL != nil {
		activation["url"] = req.URL.URL
	}

	if req.SMS != nil {
		activation["message"] = strings.ToLower(req.SMS.Message)
		activation["sender"] = req.SMS.Sender
		if req.SMS.Intent != nil {
			activation["amount"] = req.SMS.Intent.Amount
			activation["payee"] = req.SMS.Intent.PayeeAddress
		}
	}

	if req.Transaction != nil {
		activation["amount"] = req.Transaction.Amount
		activation["payee"] = req.Transaction.RecipientUPI
		activation["note"] = strings.ToLower(req.Transaction.Note)
		if req.Transaction.Behavior != nil {
			activation["velocity"] = int64(req.Transaction.Behavior.Velocity)
			activation["new_payee"] = req.Transaction.Behavior.NewPayee
		}
	}

	if req.QR != nil {
		activation["qr_data"] = req.QR.Data
	}

	if dev := req.Device(); dev != nil {
		activation["new_device"] = dev.NewDevice
		activation["sim_changed"] = dev.SIMChangedRecently
	}

	return activation
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
