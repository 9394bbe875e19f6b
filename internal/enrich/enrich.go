// Package enrich provides an optional LLM-backed second opinion on
// textual signals. Its score folds into the rules category; a failed or
// disabled enrichment contributes nothing and never blocks scoring.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/opensource-finance/kestrel/internal/domain"
)

const systemPrompt = `You are a fraud analyst for Indian digital payments (UPI, SMS phishing, QR scams).
Given a signal, respond with ONLY a JSON object:
{"risk_score": <0-100>, "indicators": ["<short finding>", ...], "detail": "<one sentence>"}
Score 0 means clearly benign, 100 means certain fraud. List at most 5 indicators.`

// Analyzer produces an advisory assessment for a signal. Implementations
// must degrade to a zero assessment on any failure.
type Analyzer interface {
	Enrich(ctx context.Context, req *domain.AnalysisRequest) domain.DetectorResult
}

// Disabled is the no-op analyzer used when enrichment is turned off.
type Disabled struct{}

// Enrich returns a zero assessment.
func (Disabled) Enrich(ctx context.Context, req *domain.AnalysisRequest) domain.DetectorResult {
	return domain.DetectorResult{Category: domain.CategoryRules}
}

// Client calls the Anthropic API for signal enrichment.
type Client struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an analyzer from configuration. Disabled or unconfigured
// enrichment yields the no-op analyzer.
func New(cfg domain.EnrichmentConfig, logger *slog.Logger) Analyzer {
	if !cfg.Enabled || cfg.APIKey == "" {
		return Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}

	return &Client{
		client:  anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

type verdict struct {
	RiskScore  float64  `json:"risk_score"`
	Indicators []string `json:"indicators"`
	Detail     string   `json:"detail"`
}

// Enrich scores the signal via the LLM. Any error degrades to a zero
// assessment so the pipeline never waits on or fails from enrichment.
func (c *Client) Enrich(ctx context.Context, req *domain.AnalysisRequest) domain.DetectorResult {
	zero := domain.DetectorResult{Category: domain.CategoryRules}

	prompt := buildPrompt(req)
	if prompt == "" {
		return zero
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		c.logger.Warn("enrichment call failed", "error", err)
		return zero
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		c.logger.Warn("enrichment response had no text content")
		return zero
	}

	v, err := parseVerdict(text)
	if err != nil {
		c.logger.Warn("enrichment response unparseable", "error", err)
		return zero
	}

	if v.RiskScore < 0 {
		v.RiskScore = 0
	}
	if v.RiskScore > 100 {
		v.RiskScore = 100
	}

	findings := make([]string, 0, len(v.Indicators))
	for _, ind := range v.Indicators {
		if ind = strings.TrimSpace(ind); ind != "" {
			findings = append(findings, "Content analysis: "+ind)
		}
	}

	return domain.DetectorResult{
		Category: domain.CategoryRules,
		Score:    v.RiskScore,
		Findings: findings,
	}
}

// parseVerdict extracts the JSON object from the model response, which
// may be wrapped in prose or a code fence.
func parseVerdict(text string) (*verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var v verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("failed to parse verdict: %w", err)
	}
	return &v, nil
}

// buildPrompt renders the signal evidence as analyst input.
func buildPrompt(req *domain.AnalysisRequest) string {
	var b strings.Builder

	switch req.Signal {
	case domain.SignalSMS:
		if req.SMS == nil || req.SMS.Message == "" {
			return ""
		}
		fmt.Fprintf(&b, "SMS from %q:\n%s", req.SMS.Sender, req.SMS.Message)

	case domain.SignalURL:
		if req.URL == nil || req.URL.URL == "" {
			return ""
		}
		fmt.Fprintf(&b, "URL: %s", req.URL.URL)
		if req.URL.Domain != nil && req.URL.Domain.CreationHint != "" {
			fmt.Fprintf(&b, "\nDomain registered: %s", req.URL.Domain.CreationHint)
		}

	case domain.SignalUPI, domain.SignalTransaction:
		if req.Transaction == nil {
			return ""
		}
		fmt.Fprintf(&b, "UPI %s of %.2f INR to %s", req.Transaction.IntentType, req.Transaction.Amount, req.Transaction.RecipientUPI)
		if req.Transaction.Note != "" {
			fmt.Fprintf(&b, "\nNote: %s", req.Transaction.Note)
		}

	case domain.SignalQR:
		if req.QR == nil || req.QR.Data == "" {
			return ""
		}
		fmt.Fprintf(&b, "Scanned QR payload:\n%s", req.QR.Data)

	default:
		return ""
	}

	return b.String()
}
