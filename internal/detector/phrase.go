package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// fraudPhrases maps known fraud phrasings to a confidence in [0,1].
// Each match contributes confidence*50 to the phrase score.
var fraudPhrases = map[string]float64{
	"account will be blocked":            0.9,
	"verify your account":                0.8,
	"congratulations you have won":       0.9,
	"claim your prize":                   0.85,
	"urgent verification required":       0.9,
	"kyc update required":                0.85,
	"refund will be processed":           0.8,
	"suspended due to":                   0.9,
	"click to verify":                    0.85,
	"confirm your details":               0.8,
	"unauthorized transaction detected":  0.7,
	"update your information":            0.75,
}

var fearWords = []string{"urgent", "immediately", "blocked", "suspended", "expired", "limited"}

var amountPattern = regexp.MustCompile(`₹?\s*(\d+(?:,\d+)*(?:\.\d{2})?)`)

// PhraseAnalyzer matches text against a fraud-phrase table with
// per-phrase confidence and a simple fear-sentiment heuristic.
type PhraseAnalyzer struct{}

// NewPhraseAnalyzer creates a phrase analyzer.
func NewPhraseAnalyzer() *PhraseAnalyzer {
	return &PhraseAnalyzer{}
}

// Analyze scores text and returns the result plus the maximum phrase
// confidence seen.
func (a *PhraseAnalyzer) Analyze(text string) (domain.DetectorResult, float64) {
	res := domain.DetectorResult{Category: domain.CategoryNLP}
	if text == "" {
		return res, 0
	}
	lower := strings.ToLower(text)

	maxConfidence := 0.0
	for phrase, confidence := range fraudPhrases {
		if strings.Contains(lower, phrase) {
			res.Score += confidence * 50
			res.Findings = append(res.Findings, fmt.Sprintf("fraud phrase: %q", phrase))
			if confidence > maxConfidence {
				maxConfidence = confidence
			}
		}
	}

	fearCount := 0
	for _, w := range fearWords {
		if strings.Contains(lower, w) {
			fearCount++
		}
	}
	if fearCount >= 2 {
		res.Score += 30
		res.Findings = append(res.Findings, fmt.Sprintf("high fear sentiment (%d fear words)", fearCount))
	}

	if res.Score > 100 {
		res.Score = 100
	}
	return res, maxConfidence
}

// ExtractEntities pulls URLs, phone numbers, UPI IDs and amounts out
// of free text, keyed by entity class.
func (a *PhraseAnalyzer) ExtractEntities(text string) domain.ExtractedEntities {
	entities := domain.ExtractedEntities{}
	if urls := ExtractURLs(text); len(urls) > 0 {
		entities[domain.EntityURLs] = urls
	}
	if phones := ExtractPhoneNumbers(text); len(phones) > 0 {
		entities[domain.EntityPhoneNumbers] = phones
	}
	if upis := ExtractUPIIDs(text); len(upis) > 0 {
		entities[domain.EntityUPIIDs] = upis
	}
	return entities
}

// ExtractAmounts pulls numeric amounts out of free text.
func (a *PhraseAnalyzer) ExtractAmounts(text string) []string {
	var amounts []string
	for _, m := range amountPattern.FindAllStringSubmatch(text, -1) {
		amounts = append(amounts, strings.ReplaceAll(m[1], ",", ""))
	}
	return amounts
}
