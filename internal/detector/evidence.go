package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Supplementary evidence scoring. Page content, redirect chains and
// UPI address shapes all feed the rules category alongside the keyword
// tables.

var (
	personalUPIPattern = regexp.MustCompile(`^\d{10}@`)
	upiFraudPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`\d{10}@paytm`),
		regexp.MustCompile(`[a-z]+\d+@`),
		regexp.MustCompile(`test@`),
		regexp.MustCompile(`demo@`),
		regexp.MustCompile(`fake@`),
	}
	qrAmountPattern = regexp.MustCompile(`am=([\d.]+)`)
	qrPayeePattern  = regexp.MustCompile(`pa=([^&]+)`)
)

var knownUPIProviders = []string{
	"paytm", "phonepe", "googlepay", "okhdfcbank", "okicici", "okaxis", "sbi", "ybl",
}

// AnalyzeHTML scores pre-extracted page content observations.
func (m *RuleMatcher) AnalyzeHTML(hints *domain.HTMLHints) domain.DetectorResult {
	res := domain.DetectorResult{Category: domain.CategoryRules}
	if hints == nil {
		return res
	}

	if hints.HasPaymentForms {
		res.Score += 20
		res.Findings = append(res.Findings, "page contains a payment form")
	}
	if hints.HasPasswordFields {
		res.Score += 15
		res.Findings = append(res.Findings, "page contains password input fields")
	}
	if hints.HasOTPFields {
		res.Score += 25
		res.Findings = append(res.Findings, "page requests OTP/PIN")
	}
	if hints.ExternalScripts > 10 {
		res.Score += 15
		res.Findings = append(res.Findings,
			fmt.Sprintf("many external scripts loaded (%d)", hints.ExternalScripts))
	}
	if n := len(hints.SuspiciousPatterns); n > 0 {
		res.Score += float64(n) * 10
		for i, p := range hints.SuspiciousPatterns {
			if i == 3 {
				break
			}
			res.Findings = append(res.Findings, "suspicious HTML: "+p)
		}
	}

	if res.Score > 100 {
		res.Score = 100
	}
	return res
}

// AnalyzeRedirects scores an observed redirect chain.
func (m *RuleMatcher) AnalyzeRedirects(hints *domain.RedirectHints) domain.DetectorResult {
	res := domain.DetectorResult{Category: domain.CategoryRules}
	if hints == nil {
		return res
	}

	if hints.Count > 3 {
		res.Score += 30
		res.Findings = append(res.Findings,
			fmt.Sprintf("many redirects (%d), potential cloaking", hints.Count))
	} else if hints.Count > 1 {
		res.Score += 15
		res.Findings = append(res.Findings, fmt.Sprintf("multiple redirects (%d)", hints.Count))
	}

	if hints.Suspicious {
		res.Score += 25
		res.Findings = append(res.Findings, "suspicious redirect pattern")
	}

	unique := make(map[string]struct{})
	for _, d := range hints.Domains {
		unique[strings.ToLower(d)] = struct{}{}
	}
	if len(unique) > 2 {
		res.Score += 20
		res.Findings = append(res.Findings,
			fmt.Sprintf("redirects through %d different domains", len(unique)))
	}

	return res
}

// AnalyzeRecipient scores the shape of a UPI address and its
// relationship to the displayed name.
func (m *RuleMatcher) AnalyzeRecipient(upi, name, note string) domain.DetectorResult {
	res := domain.DetectorResult{Category: domain.CategoryRules}
	if upi == "" {
		return res
	}
	lower := strings.ToLower(upi)

	if personalUPIPattern.MatchString(lower) {
		res.Score += 15
		res.Findings = append(res.Findings, "personal mobile number UPI, not a merchant")
	}
	for _, p := range upiFraudPatterns {
		if p.MatchString(lower) {
			res.Score += 25
			res.Findings = append(res.Findings, "suspicious UPI ID pattern")
			break
		}
	}

	if name != "" {
		prefix := strings.ToLower(strings.Split(upi, "@")[0])
		match := false
		for _, part := range strings.Fields(strings.ToLower(name)) {
			if len(part) > 2 && strings.Contains(prefix, part) {
				match = true
				break
			}
		}
		providerHosted := strings.Contains(lower, "paytm") ||
			strings.Contains(lower, "phonepe") || strings.Contains(lower, "googlepay")
		if !match && !providerHosted {
			res.Score += 15
			res.Findings = append(res.Findings, "recipient name does not match UPI ID")
		}
	}

	if note != "" {
		noteLower := strings.ToLower(note)
		for _, w := range []string{"urgent", "help", "emergency", "prize", "refund"} {
			if strings.Contains(noteLower, w) {
				res.Score += 15
				res.Findings = append(res.Findings, "suspicious transaction note")
				break
			}
		}
	}

	if provider := providerOf(upi); provider != "" && !knownProvider(provider) {
		res.Score += 10
		res.Findings = append(res.Findings, "unknown UPI provider")
	}

	return res
}

// AnalyzeQR scores a raw QR payload. UPI intents get collect-request
// and amount checks; URL payloads are scored with the URL rules at a
// reduced weight.
func (m *RuleMatcher) AnalyzeQR(data string) (domain.DetectorResult, *domain.UPIIntent) {
	res := domain.DetectorResult{Category: domain.CategoryRules}
	if data == "" {
		return res, nil
	}
	lower := strings.ToLower(data)

	switch {
	case strings.HasPrefix(lower, "upi://") || strings.Contains(lower, "upi:"):
		intent := &domain.UPIIntent{Raw: data, IntentType: domain.IntentPay}

		if IsCollectRequest(data) {
			intent.IntentType = domain.IntentCollect
			res.Score += 70
			res.Findings = append(res.Findings,
				"collect request QR: approving it deducts money from your account")
		}
		if am := qrAmountPattern.FindStringSubmatch(lower); am != nil {
			var amount float64
			fmt.Sscanf(am[1], "%f", &amount)
			intent.Amount = amount
			if amount > 10000 {
				res.Score += 20
				res.Findings = append(res.Findings, fmt.Sprintf("high amount in QR: %.2f", amount))
			}
		}
		if pa := qrPayeePattern.FindStringSubmatch(lower); pa != nil {
			intent.PayeeAddress = pa[1]
			if personalUPIPattern.MatchString(pa[1]) {
				res.Score += 15
				res.Findings = append(res.Findings, "personal phone number UPI in QR")
			}
		}
		return res, intent

	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		urlRes := m.AnalyzeURL(data)
		res.Score += urlRes.Score * 0.8
		for _, f := range urlRes.Findings {
			res.Findings = append(res.Findings, "QR URL: "+f)
		}
	}

	for _, w := range []string{"verify", "urgent", "claim", "prize"} {
		if strings.Contains(lower, w) {
			res.Score += 15
			res.Findings = append(res.Findings, "suspicious keywords in QR payload")
			break
		}
	}

	return res, nil
}

// IsCollectRequest reports whether a UPI payload is a collect request.
// UPI mode 02 is the collect variant.
func IsCollectRequest(data string) bool {
	lower := strings.ToLower(data)
	return strings.Contains(lower, "collect") ||
		strings.Contains(lower, "mode=02") ||
		strings.Contains(lower, "mode=collect")
}

func providerOf(upi string) string {
	if i := strings.LastIndex(upi, "@"); i >= 0 {
		return strings.ToLower(upi[i+1:])
	}
	return ""
}

func knownProvider(provider string) bool {
	for _, p := range knownUPIProviders {
		if strings.Contains(provider, p) {
			return true
		}
	}
	return false
}
