package pipeline

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/learning"
	"github.com/opensource-finance/kestrel/internal/payee"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/responder"
	"github.com/opensource-finance/kestrel/internal/rules"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "pipeline-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	store := learning.NewStore(3, nil) // low report threshold for tests

	engine, err := rules.NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	return New(Deps{
		Store:     store,
		Responder: responder.New(store),
		Rules:     engine,
		Payees:    payee.NewService(repo, lru, nil),
		Repo:      repo,
		Cache:     lru,
	})
}

func hasFindingContaining(findings []string, substr string) bool {
	for _, f := range findings {
		if strings.Contains(strings.ToLower(f), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

func TestAnalyzePhishingSMS(t *testing.T) {
	p := newTestPipeline(t)

	req := &domain.AnalysisRequest{
		Signal:   domain.SignalSMS,
		Platform: domain.PlatformAndroid,
		UserID:   "user-001",
		SMS: &domain.SMSEvidence{
			Message: "Your account will be blocked. Verify now: bit.ly/xyz",
			Sender:  "VK-REWARD",
		},
	}

	resp, err := p.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	// rules 85 (keyword 40 + sender 25 + url 20) at 0.5, nlp 45 at 0.3
	if resp.Score != 56 {
		t.Errorf("expected score 56, got %.1f", resp.Score)
	}
	if resp.Level != domain.RiskMedium {
		t.Errorf("expected medium risk, got %s", resp.Level)
	}
	if resp.Action == nil || resp.Action.Action != domain.ActionWarn {
		t.Errorf("expected warn action for medium-risk SMS, got %+v", resp.Action)
	}
	if resp.AnalysisID == "" {
		t.Error("expected analysis ID")
	}
	if !hasFindingContaining(resp.Findings, "verify now") {
		t.Errorf("expected keyword finding, got %v", resp.Findings)
	}
}

func TestAnalyzeBenignSMS(t *testing.T) {
	p := newTestPipeline(t)

	req := &domain.AnalysisRequest{
		Signal:   domain.SignalSMS,
		Platform: domain.PlatformAndroid,
		SMS: &domain.SMSEvidence{
			Message: "Hi, are we still meeting for lunch tomorrow?",
			Sender:  "+919876543210",
		},
	}

	resp, err := p.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if resp.Score != 0 {
		t.Errorf("expected score 0 for benign SMS, got %.1f", resp.Score)
	}
	if resp.Level != domain.RiskLow {
		t.Errorf("expected low risk, got %s", resp.Level)
	}
	if resp.Action.Action != domain.ActionMonitor {
		t.Errorf("expected monitor action, got %s", resp.Action.Action)
	}
}

func TestAnalyzeSuspiciousURL(t *testing.T) {
	p := newTestPipeline(t)

	sslValid := false
	req := &domain.AnalysisRequest{
		Signal:   domain.SignalURL,
		Platform: domain.PlatformChrome,
		URL: &domain.URLEvidence{
			URL: "http://paytim.xyz/login",
			Domain: &domain.DomainHints{
				CreationHint: "3 days ago",
				SSLValid:     &sslValid,
			},
		},
	}

	resp, err := p.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if resp.Level != domain.RiskMedium {
		t.Errorf("expected medium risk for typosquat on fresh domain, got %s (score %.1f)", resp.Level, resp.Score)
	}
	if resp.Action.Action != domain.ActionWarn {
		t.Errorf("expected warn action on chrome for medium risk, got %s", resp.Action.Action)
	}
	if !hasFindingContaining(resp.Findings, "paytm") {
		t.Errorf("expected typosquat finding naming paytm, got %v", resp.Findings)
	}
}

func TestAnalyzePhishingPageCritical(t *testing.T) {
	p := newTestPipeline(t)

	sslValid := false
	req := &domain.AnalysisRequest{
		Signal:   domain.SignalURL,
		Platform: domain.PlatformChrome,
		URL: &domain.URLEvidence{
			URL: "http://paytim.xyz/login",
			Domain: &domain.DomainHints{
				CreationHint: "3 days ago",
				SSLValid:     &sslValid,
			},
			HTML: &domain.HTMLHints{
				HasPaymentForms:   true,
				HasPasswordFields: true,
				HasOTPFields:      true,
			},
			Redirects: &domain.RedirectHints{
				Count:      5,
				Suspicious: true,
				Domains:    []string{"a.example", "b.example", "c.example"},
			},
		},
	}

	resp, err := p.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if resp.Score != 100 {
		t.Errorf("expected capped score 100, got %.1f", resp.Score)
	}
	if resp.Level != domain.RiskCritical {
		t.Errorf("expected critical risk, got %s", resp.Level)
	}
	if resp.Action.Action != domain.ActionRedirect {
		t.Errorf("expected redirect action on chrome, got %s", resp.Action.Action)
	}
}

func TestAnalyzeCollectTransaction(t *testing.T) {
	p := newTestPipeline(t)

	req := &domain.AnalysisRequest{
		Signal:   domain.SignalUPI,
		Platform: domain.PlatformAndroid,
		UserID:   "user-001",
		Transaction: &domain.TransactionEvidence{
			Amount:       60000,
			RecipientUPI: "test@paytm",
			IntentType:   domain.IntentCollect,
			Device:       &domain.DeviceHints{SIMChangedRecently: true},
		},
	}

	resp, err := p.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if resp.Level.Rank() < domain.RiskHigh.Rank() {
		t.Errorf("expected at least high risk, got %s (score %.1f)", resp.Level, resp.Score)
	}
	if resp.Action.Action != domain.ActionAbortTransaction {
		t.Errorf("expected abort for high-risk collect on android, got %s", resp.Action.Action)
	}
}

func TestAnalyzeCollectQR(t *testing.T) {
	p := newTestPipeline(t)

	req := &domain.AnalysisRequest{
		Signal:   domain.SignalQR,
		Platform: domain.PlatformAndroid,
		QR: &domain.QREvidence{
			Data: "upi://pay?pa=9876543210@paytm&am=25000&mode=02",
		},
	}

	resp, err := p.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if resp.Level.Rank() < domain.RiskMedium.Rank() {
		t.Errorf("expected at least medium risk for collect QR, got %s (score %.1f)", resp.Level, resp.Score)
	}
	if !hasFindingContaining(resp.Findings, "collect") {
		t.Errorf("expected collect-request finding, got %v", resp.Findings)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *domain.AnalysisRequest
	}{
		{"UnknownSignal", &domain.AnalysisRequest{Signal: "voice"}},
		{"MissingSMSEvidence", &domain.AnalysisRequest{Signal: domain.SignalSMS}},
		{"MissingURLEvidence", &domain.AnalysisRequest{Signal: domain.SignalURL, URL: &domain.URLEvidence{}}},
		{"MissingTransactionEvidence", &domain.AnalysisRequest{Signal: domain.SignalUPI}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Analyze(ctx, tt.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestWhitelistLowersScore(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	req := &domain.AnalysisRequest{
		Signal:   domain.SignalSMS,
		Platform: domain.PlatformAndroid,
		UserID:   "user-001",
		SMS: &domain.SMSEvidence{
			Message: "Your account will be blocked. Verify now: bit.ly/xyz",
			Sender:  "VK-REWARD",
		},
	}

	first, err := p.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	// User marks the flagged sender as safe.
	_, err = p.Feedback(ctx, domain.FeedbackEvent{
		AnalysisID:    first.AnalysisID,
		UserID:        "user-001",
		Verdict:       domain.VerdictSafe,
		Entity:        "VK-REWARD",
		EntityType:    domain.EntitySenders,
		OriginalScore: first.Score,
	})
	if err != nil {
		t.Fatalf("Feedback failed: %v", err)
	}

	second, err := p.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("second Analyze failed: %v", err)
	}

	// The feedback both whitelists the sender (-50) and trims the
	// rules/nlp weights, so the rerun scores far lower.
	if second.Score > first.Score-45 {
		t.Errorf("whitelisted sender should score much lower: first %.1f, second %.1f", first.Score, second.Score)
	}
	if !hasFindingContaining(second.Findings, "whitelisted") {
		t.Errorf("expected whitelist finding, got %v", second.Findings)
	}
}

func TestBlacklistRaisesScore(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	req := &domain.AnalysisRequest{
		Signal:   domain.SignalUPI,
		Platform: domain.PlatformAndroid,
		UserID:   "user-001",
		Transaction: &domain.TransactionEvidence{
			Amount:       100,
			RecipientUPI: "innocent-looking@okaxis",
		},
	}

	first, err := p.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	_, err = p.Feedback(ctx, domain.FeedbackEvent{
		UserID:        "user-001",
		Verdict:       domain.VerdictFraud,
		Entity:        "innocent-looking@okaxis",
		EntityType:    domain.EntityUPIIDs,
		OriginalScore: first.Score,
	})
	if err != nil {
		t.Fatalf("Feedback failed: %v", err)
	}

	second, err := p.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("second Analyze failed: %v", err)
	}

	if second.Score < first.Score+50 {
		t.Errorf("blacklisted entity should score much higher: first %.1f, second %.1f", first.Score, second.Score)
	}
	if !hasFindingContaining(second.Findings, "blacklist") {
		t.Errorf("expected blacklist finding, got %v", second.Findings)
	}
}

func TestFeedbackRejectsUnknownVerdict(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.Feedback(context.Background(), domain.FeedbackEvent{
		UserID:  "user-001",
		Verdict: "maybe",
		Entity:  "someone@ybl",
	})
	if err == nil {
		t.Error("expected error for unknown verdict")
	}
}

func TestReportThresholdBlacklists(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	report := domain.FraudReport{
		Entity:     "fraudster@paytm",
		EntityType: domain.EntityUPIIDs,
		UserID:     "user-001",
		Category:   "payment_fraud",
		AmountLost: 2000,
	}

	// Threshold is 3 in the test pipeline.
	for i := 0; i < 2; i++ {
		outcome, err := p.Report(ctx, report)
		if err != nil {
			t.Fatalf("Report failed: %v", err)
		}
		if outcome.Blacklisted {
			t.Fatalf("should not blacklist at %d reports", outcome.ReportCount)
		}
	}

	outcome, err := p.Report(ctx, report)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if !outcome.AutoBlacklist {
		t.Error("expected auto-blacklist at threshold")
	}

	// Subsequent reports count but do not re-trigger the auto-blacklist.
	outcome, err = p.Report(ctx, report)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if outcome.AutoBlacklist {
		t.Error("auto-blacklist should fire only once")
	}
	if outcome.ReportCount != 4 {
		t.Errorf("expected report count 4, got %d", outcome.ReportCount)
	}
}

func TestReportRejectsUnknownEntityType(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.Report(context.Background(), domain.FraudReport{
		Entity:     "x",
		EntityType: "emails",
		UserID:     "user-001",
	})
	if err == nil {
		t.Error("expected error for unknown entity type")
	}
}

func TestAnalysisPersisted(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	req := &domain.AnalysisRequest{
		Signal:   domain.SignalURL,
		Platform: domain.PlatformChrome,
		UserID:   "user-keeper",
		URL:      &domain.URLEvidence{URL: "https://example.com"},
	}

	resp, err := p.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	history, err := p.History(ctx, "user-keeper", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 analysis in history, got %d", len(history))
	}
	if history[0].ID != resp.AnalysisID {
		t.Errorf("history ID mismatch: %s vs %s", history[0].ID, resp.AnalysisID)
	}
}

func TestCustomRuleContributes(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	err := p.rules.LoadRule(&domain.RuleConfig{
		ID:         "note-gift",
		Expression: `note.contains("gift")`,
		Signals:    []domain.SignalType{domain.SignalUPI, domain.SignalTransaction},
		Score:      30,
		Finding:    "Gift-scam wording in note",
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}

	base := &domain.AnalysisRequest{
		Signal:   domain.SignalUPI,
		Platform: domain.PlatformAndroid,
		Transaction: &domain.TransactionEvidence{
			Amount:       500,
			RecipientUPI: "shop@okaxis",
		},
	}
	withNote := &domain.AnalysisRequest{
		Signal:   domain.SignalUPI,
		Platform: domain.PlatformAndroid,
		Transaction: &domain.TransactionEvidence{
			Amount:       500,
			RecipientUPI: "shop@okaxis",
			Note:         "claim your gift",
		},
	}

	baseResp, err := p.Analyze(ctx, base)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	noteResp, err := p.Analyze(ctx, withNote)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if noteResp.Score <= baseResp.Score {
		t.Errorf("custom rule should raise score: %.1f vs %.1f", baseResp.Score, noteResp.Score)
	}
	if !hasFindingContaining(noteResp.Findings, "gift-scam") {
		t.Errorf("expected custom rule finding, got %v", noteResp.Findings)
	}
}

func TestCachedAssessmentForURL(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	req := &domain.AnalysisRequest{
		Signal:   domain.SignalURL,
		Platform: domain.PlatformChrome,
		URL:      &domain.URLEvidence{URL: "http://192.168.1.50/pay"},
	}

	resp, err := p.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	cached := p.CachedAssessment(ctx, "http://192.168.1.50/pay")
	if cached == nil {
		t.Fatal("expected cached assessment for URL signal")
	}
	if cached.Score != resp.Score {
		t.Errorf("cached score %.1f does not match response %.1f", cached.Score, resp.Score)
	}
}
