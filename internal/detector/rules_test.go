package detector

import (
	"strings"
	"testing"
)

func TestAnalyzeTextScoresFraudSMS(t *testing.T) {
	m := NewRuleMatcher()

	res := m.AnalyzeText("Your account will be blocked. Verify now: bit.ly/xyz", "VK-REWARD")

	// "verify now" keyword (40) + sender pattern (25) + URL presence (20)
	if res.Score < 85 {
		t.Errorf("expected score >= 85, got %.1f", res.Score)
	}
	if len(res.Findings) == 0 {
		t.Fatal("expected findings")
	}

	foundKeyword := false
	for _, f := range res.Findings {
		if strings.Contains(f, "verify now") {
			foundKeyword = true
		}
	}
	if !foundKeyword {
		t.Errorf("expected a keyword finding, got %v", res.Findings)
	}
}

func TestAnalyzeTextEmptyMessage(t *testing.T) {
	m := NewRuleMatcher()
	res := m.AnalyzeText("", "VK-REWARD")
	if res.Score != 0 || len(res.Findings) != 0 {
		t.Errorf("empty message should score zero, got %.1f %v", res.Score, res.Findings)
	}
}

func TestAnalyzeTextBenignMessage(t *testing.T) {
	m := NewRuleMatcher()
	res := m.AnalyzeText("Lunch at 1pm?", "")
	if res.Score != 0 {
		t.Errorf("benign message should score zero, got %.1f: %v", res.Score, res.Findings)
	}
}

func TestAnalyzeURLShortenerAndTLD(t *testing.T) {
	m := NewRuleMatcher()

	res := m.AnalyzeURL("http://bit.ly/win")
	// shortener (20) + non-HTTPS (25)
	if res.Score < 45 {
		t.Errorf("expected score >= 45, got %.1f", res.Score)
	}

	res = m.AnalyzeURL("https://paytm-secure.xyz")
	found := false
	for _, f := range res.Findings {
		if strings.Contains(f, "top-level domain") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected suspicious TLD finding, got %v", res.Findings)
	}
}

func TestAnalyzeURLIPHost(t *testing.T) {
	m := NewRuleMatcher()
	res := m.AnalyzeURL("http://192.168.4.12/login")
	if res.Score < 30 {
		t.Errorf("IP-literal host should contribute at least 30, got %.1f", res.Score)
	}
}

func TestAnalyzeIntentCollectAndAmountTiers(t *testing.T) {
	m := NewRuleMatcher()

	res := m.AnalyzeIntent("collect", 0)
	if res.Score != 40 {
		t.Errorf("collect intent = %.1f, want 40", res.Score)
	}

	res = m.AnalyzeIntent("pay", 20000)
	if res.Score != 25 {
		t.Errorf("amount 20000 = %.1f, want 25", res.Score)
	}

	// both tiers apply above 50000
	res = m.AnalyzeIntent("collect", 60000)
	if res.Score != 100 {
		t.Errorf("collect + 60000 = %.1f, want 100", res.Score)
	}
}

func TestExtractURLsBareDomains(t *testing.T) {
	urls := ExtractURLs("Claim at bit.ly/xyz before midnight")
	if len(urls) != 1 || urls[0] != "http://bit.ly/xyz" {
		t.Errorf("unexpected URLs: %v", urls)
	}
}

func TestExtractUPIIDsFiltersEmails(t *testing.T) {
	upis := ExtractUPIIDs("Pay 9876543210@paytm or write to help@example.com")
	if len(upis) != 1 || upis[0] != "9876543210@paytm" {
		t.Errorf("unexpected UPI IDs: %v", upis)
	}
}
