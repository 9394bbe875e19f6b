package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// legitimateDomains are the brand domains typosquatters imitate.
var legitimateDomains = []string{
	"google.com", "facebook.com", "amazon.com", "paytm.com",
	"phonepe.com", "gpay.app", "bharatpe.com", "cred.club",
	"axis.com", "icicibank.com", "hdfcbank.com", "sbi.co.in",
	"irctc.co.in", "gov.in", "nic.in",
}

// confusables maps ASCII letters to lookalike code points used in
// homograph attacks (Cyrillic and accented Latin variants).
var confusables = map[rune][]rune{
	'a': {'а', 'ạ', 'ă', 'ā'},
	'e': {'е', 'ē', 'ė', 'ę'},
	'o': {'о', 'ọ', 'ō', 'ő'},
	'p': {'р', 'ṗ'},
	'c': {'с', 'ċ', 'ć'},
	'x': {'х', 'ẋ'},
	'y': {'у', 'ȳ', 'ý'},
	'i': {'і', 'ı', 'ị'},
	'm': {'м', 'ṁ'},
	'n': {'п', 'ń', 'ň'},
}

var monthsAgoPattern = regexp.MustCompile(`(\d+)\s+months?`)

// DomainAnalyzer detects typosquatting, homograph attacks and
// suspiciously young domains.
type DomainAnalyzer struct {
	references []string
}

// NewDomainAnalyzer creates a domain analyzer with the built-in
// reference list.
func NewDomainAnalyzer() *DomainAnalyzer {
	return &DomainAnalyzer{references: legitimateDomains}
}

// Analyze scores a domain name plus optional registration hints.
func (a *DomainAnalyzer) Analyze(host string, hints *domain.DomainHints) domain.DetectorResult {
	res := domain.DetectorResult{Category: domain.CategoryDomain}
	if host == "" {
		return res
	}

	score, match, similarity := a.CheckTyposquatting(host)
	if score > 0 {
		res.Score += score
		res.Findings = append(res.Findings,
			fmt.Sprintf("possible typosquatting of %s (similarity %.2f)", match, similarity))
	}

	if HasHomographAttack(host) {
		res.Score += 45
		res.Findings = append(res.Findings, "homograph attack: lookalike characters in domain")
	}

	if hints != nil {
		ageScore, ageFindings := a.scoreAge(hints.CreationHint)
		res.Score += ageScore
		res.Findings = append(res.Findings, ageFindings...)

		if hints.SSLValid != nil && !*hints.SSLValid {
			res.Score += 30
			res.Findings = append(res.Findings, "invalid or expired SSL certificate")
		}
	}

	return res
}

// CheckTyposquatting compares the host's base name against the
// reference brand list. Similarity strictly between 0.70 and 0.95
// scales linearly from 40 to 90; at or above 0.95 with a non-identical
// name it scores a fixed 60. Identical names never flag.
func (a *DomainAnalyzer) CheckTyposquatting(host string) (float64, string, float64) {
	base := baseName(host)
	if base == "" {
		return 0, "", 0
	}

	bestMatch := ""
	highest := 0.0
	for _, legit := range a.references {
		sim := similarityRatio(base, baseName(legit))
		if sim > highest {
			highest = sim
			bestMatch = legit
		}
	}

	switch {
	case highest > 0.70 && highest < 0.95:
		return 40 + (highest-0.70)*200, bestMatch, highest
	case highest >= 0.95 && base != baseName(bestMatch):
		return 60, bestMatch, highest
	}
	return 0, bestMatch, highest
}

func (a *DomainAnalyzer) scoreAge(hint string) (float64, []string) {
	if hint == "" {
		return 0, nil
	}
	lower := strings.ToLower(hint)
	switch {
	case strings.Contains(lower, "days ago") || strings.Contains(lower, "day ago"):
		return 50, []string{"domain created very recently (days old)"}
	case strings.Contains(lower, "month") && !strings.Contains(lower, "months"):
		return 40, []string{"domain created less than a month ago"}
	case strings.Contains(lower, "months ago"):
		if m := monthsAgoPattern.FindStringSubmatch(lower); m != nil {
			months := 0
			fmt.Sscanf(m[1], "%d", &months)
			if months < 6 {
				return 30, []string{"domain created recently (" + hint + ")"}
			}
		}
	}
	return 0, nil
}

// HasHomographAttack reports whether a domain contains confusable
// lookalike characters or mixes ASCII with non-ASCII code points.
func HasHomographAttack(host string) bool {
	hasASCII, hasUnicode := false, false
	for _, r := range host {
		if r < 128 {
			hasASCII = true
		} else {
			hasUnicode = true
		}
		for _, lookalikes := range confusables {
			for _, l := range lookalikes {
				if r == l {
					return true
				}
			}
		}
	}
	return hasASCII && hasUnicode
}

// baseName strips the www prefix and TLD, leaving the registrable name.
func baseName(host string) string {
	h := strings.ToLower(strings.TrimPrefix(host, "www."))
	if i := strings.Index(h, "."); i >= 0 {
		h = h[:i]
	}
	return h
}

// similarityRatio is 1 - normalized Levenshtein distance.
func similarityRatio(s1, s2 string) float64 {
	maxLen := len([]rune(s1))
	if l := len([]rune(s2)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(s1, s2))/float64(maxLen)
}

// levenshtein computes the edit distance between two strings.
func levenshtein(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) < len(r2) {
		r1, r2 = r2, r1
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, c1 := range r1 {
		curr[0] = i + 1
		for j, c2 := range r2 {
			cost := 0
			if c1 != c2 {
				cost = 1
			}
			ins := prev[j+1] + 1
			del := curr[j] + 1
			sub := prev[j] + cost
			m := ins
			if del < m {
				m = del
			}
			if sub < m {
				m = sub
			}
			curr[j+1] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}
