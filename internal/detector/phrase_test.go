package detector

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestPhraseAnalyzerScoresKnownPhrase(t *testing.T) {
	a := NewPhraseAnalyzer()

	res, confidence := a.Analyze("Dear customer, your account will be blocked today")
	// 0.9 confidence phrase contributes 45
	if res.Score < 45 {
		t.Errorf("score = %.1f, want >= 45", res.Score)
	}
	if confidence != 0.9 {
		t.Errorf("max confidence = %.2f, want 0.90", confidence)
	}
}

func TestPhraseAnalyzerFearSentiment(t *testing.T) {
	a := NewPhraseAnalyzer()

	// two fear words, no phrase from the table
	res, _ := a.Analyze("urgent: your card is blocked")
	if res.Score != 30 {
		t.Errorf("fear sentiment = %.1f, want 30", res.Score)
	}

	// a single fear word does not trigger the bonus
	res, _ = a.Analyze("urgent delivery update")
	if res.Score != 0 {
		t.Errorf("single fear word = %.1f, want 0", res.Score)
	}
}

func TestPhraseAnalyzerCapsAtHundred(t *testing.T) {
	a := NewPhraseAnalyzer()
	text := "account will be blocked. verify your account. claim your prize. " +
		"urgent verification required. suspended due to kyc update required"
	res, _ := a.Analyze(text)
	if res.Score != 100 {
		t.Errorf("score = %.1f, want capped at 100", res.Score)
	}
}

func TestPhraseAnalyzerEmptyText(t *testing.T) {
	a := NewPhraseAnalyzer()
	res, confidence := a.Analyze("")
	if res.Score != 0 || confidence != 0 {
		t.Errorf("empty text scored %.1f / %.2f", res.Score, confidence)
	}
}

func TestExtractEntities(t *testing.T) {
	a := NewPhraseAnalyzer()
	entities := a.ExtractEntities("Pay 9876543210@ybl or visit https://evil.example now, call 9876501234")

	if len(entities[domain.EntityURLs]) == 0 {
		t.Error("expected a URL entity")
	}
	if len(entities[domain.EntityUPIIDs]) == 0 {
		t.Error("expected a UPI entity")
	}
	if len(entities[domain.EntityPhoneNumbers]) == 0 {
		t.Error("expected a phone number entity")
	}
}
