// Package detector provides the independent risk analyzers. Each
// analyzer converts one category of evidence into a bounded score plus
// human-readable indicators, never returns an error, and performs no
// I/O. Malformed evidence yields a zero score.
package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// smsKeywordWeights maps fraud keywords to their risk contribution.
var smsKeywordWeights = map[string]float64{
	// High risk
	"account blocked":        40,
	"suspended":              40,
	"verify now":             40,
	"urgent action":          40,
	"click here immediately": 40,
	"confirm your identity":  40,
	"update kyc":             40,
	"refund pending":         40,
	"claim your prize":       40,
	"won lottery":            40,

	// Medium risk
	"verify account":  25,
	"update details":  25,
	"confirm payment": 25,
	"link expired":    25,
	"last chance":     25,
	"act now":         25,
	"limited time":    25,

	// Low risk
	"click here": 15,
	"free gift":  15,
	"congratulations": 15,
}

var urlPatternWeights = []struct {
	re     *regexp.Regexp
	weight float64
	label  string
}{
	{regexp.MustCompile(`bit\.ly`), 20, "URL shortener"},
	{regexp.MustCompile(`tinyurl\.com`), 20, "URL shortener"},
	{regexp.MustCompile(`goo\.gl`), 20, "URL shortener"},
	{regexp.MustCompile(`t\.co/`), 15, "URL shortener"},
	{regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`), 30, "IP address used as host"},
	{regexp.MustCompile(`(?i)login|signin|verify|secure|account|update`), 20, "suspicious words in URL"},
}

var suspiciousTLDs = []string{".tk", ".ml", ".ga", ".cf", ".xyz", ".top", ".work", ".click", ".loan"}

var (
	urgencyWords = []string{"urgent", "immediately", "now", "asap", "hurry", "quick"}

	senderIDPattern    = regexp.MustCompile(`^[A-Z]{2}-[A-Z]+$`)
	urlInTextPattern   = regexp.MustCompile(`http[s]?://[^\s]+`)
	bareDomainPattern  = regexp.MustCompile(`\b(?:www\.)?[a-zA-Z0-9-]+\.[a-zA-Z]{2,}(?:/[^\s]*)?`)
	upiIDPattern       = regexp.MustCompile(`[\w.-]+@[\w.-]+\b`)
	phoneNumberPattern = regexp.MustCompile(`\b(?:\+91|91)?[6-9]\d{9}\b`)
)

// RuleMatcher scans text, URLs and payment intents against fixed
// keyword and pattern weight tables. Score is the sum of matched
// weights, uncapped at this stage.
type RuleMatcher struct{}

// NewRuleMatcher creates a rule matcher.
func NewRuleMatcher() *RuleMatcher {
	return &RuleMatcher{}
}

// AnalyzeText scores an SMS or free-text message.
func (m *RuleMatcher) AnalyzeText(message, sender string) domain.DetectorResult {
	res := domain.DetectorResult{Category: domain.CategoryRules}
	if message == "" {
		return res
	}
	lower := strings.ToLower(message)

	for keyword, weight := range smsKeywordWeights {
		if strings.Contains(lower, keyword) {
			res.Score += weight
			res.Findings = append(res.Findings, fmt.Sprintf("fraud keyword: %q", keyword))
		}
	}

	urgency := 0
	for _, w := range urgencyWords {
		if strings.Contains(lower, w) {
			urgency++
		}
	}
	if urgency >= 2 {
		res.Score += 30
		res.Findings = append(res.Findings, "multiple urgency words")
	}

	if sender != "" && senderIDPattern.MatchString(sender) {
		res.Score += 25
		res.Findings = append(res.Findings, "suspicious sender ID pattern")
	}

	if urls := ExtractURLs(message); len(urls) > 0 {
		res.Score += 20
		res.Findings = append(res.Findings, fmt.Sprintf("contains %d URL(s)", len(urls)))
	}
	if upis := ExtractUPIIDs(message); len(upis) > 0 {
		res.Score += 15
		res.Findings = append(res.Findings, "contains UPI ID(s)")
	}

	return res
}

// AnalyzeURL scores a URL string against the pattern weight tables.
func (m *RuleMatcher) AnalyzeURL(rawURL string) domain.DetectorResult {
	res := domain.DetectorResult{Category: domain.CategoryRules}
	if rawURL == "" {
		return res
	}

	for _, p := range urlPatternWeights {
		if p.re.MatchString(rawURL) {
			res.Score += p.weight
			res.Findings = append(res.Findings, "suspicious URL pattern: "+p.label)
		}
	}

	if !strings.HasPrefix(rawURL, "https://") {
		res.Score += 25
		res.Findings = append(res.Findings, "not using HTTPS")
	}

	host := HostOf(rawURL)
	if n := strings.Count(host, "."); n > 3 {
		res.Score += 20
		res.Findings = append(res.Findings, fmt.Sprintf("excessive subdomains: %d", n))
	}
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			res.Score += 35
			res.Findings = append(res.Findings, "suspicious top-level domain")
			break
		}
	}

	return res
}

// AnalyzeIntent scores a UPI payment intent. Collect requests pull
// money from the user and score far higher than pay intents.
func (m *RuleMatcher) AnalyzeIntent(intentType string, amount float64) domain.DetectorResult {
	res := domain.DetectorResult{Category: domain.CategoryRules}

	if intentType == domain.IntentCollect || intentType == "upi_collect" {
		res.Score += 40
		res.Findings = append(res.Findings, "UPI collect request (money leaves your account)")
	}
	if amount > 10000 {
		res.Score += 25
		res.Findings = append(res.Findings, fmt.Sprintf("high amount: %.2f", amount))
	}
	if amount > 50000 {
		res.Score += 35
		res.Findings = append(res.Findings, fmt.Sprintf("very high amount: %.2f", amount))
	}

	return res
}

// HostOf extracts the host portion of a URL without parsing errors;
// malformed input returns the input up to the first slash.
func HostOf(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[i+2:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// ExtractURLs pulls URLs out of free text, including bare domains
// written without a scheme (bit.ly/xyz).
func ExtractURLs(text string) []string {
	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	for _, u := range urlInTextPattern.FindAllString(text, -1) {
		add(u)
	}
	for _, u := range bareDomainPattern.FindAllString(text, -1) {
		if !strings.HasPrefix(u, "http") {
			add("http://" + u)
		}
	}
	return urls
}

// ExtractUPIIDs pulls UPI addresses out of free text, filtering out
// strings that look like email addresses.
func ExtractUPIIDs(text string) []string {
	var upis []string
	for _, candidate := range upiIDPattern.FindAllString(text, -1) {
		lower := strings.ToLower(candidate)
		if strings.Contains(lower, ".com") || strings.Contains(lower, ".in") ||
			strings.Contains(lower, ".org") || strings.Contains(lower, ".net") {
			continue
		}
		upis = append(upis, candidate)
	}
	return upis
}

// ExtractPhoneNumbers pulls Indian mobile numbers out of free text.
func ExtractPhoneNumbers(text string) []string {
	return phoneNumberPattern.FindAllString(text, -1)
}
