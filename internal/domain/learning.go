package domain

import "time"

// LearningState is the full adaptive state snapshot: weight deltas,
// tunable thresholds, reputation lists, report tallies and the
// confusion-matrix counters. The learning store owns the live copy;
// this struct is the serialization form used for persistence.
type LearningState struct {
	WeightDeltas map[Category]float64          `json:"weightDeltas"`
	Thresholds   Thresholds                    `json:"thresholds"`
	Whitelist    map[EntityType][]string       `json:"whitelist"`
	Blacklist    map[EntityType][]string       `json:"blacklist"`
	Reports      map[EntityType]map[string]int `json:"reports"`
	Blocked      []string                      `json:"blocked"`
	Metrics      LearningMetrics               `json:"metrics"`
	UpdatedAt    time.Time                     `json:"updatedAt"`
}

// Thresholds are the score cutoffs between risk bands. A score below
// Medium is low risk; at or above Critical is critical.
type Thresholds struct {
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// LearningMetrics holds the confusion-matrix counters. "Flagged" means
// the original score reached the medium threshold.
type LearningMetrics struct {
	TotalFeedback  int `json:"totalFeedback"`
	SafeFeedback   int `json:"safeFeedback"`
	FraudFeedback  int `json:"fraudFeedback"`
	UnsureFeedback int `json:"unsureFeedback"`

	TruePositives  int `json:"truePositives"`  // user said fraud, we flagged
	TrueNegatives  int `json:"trueNegatives"`  // user said safe, we did not flag
	FalsePositives int `json:"falsePositives"` // user said safe, we flagged
	FalseNegatives int `json:"falseNegatives"` // user said fraud, we did not flag

	TotalAmountLost float64 `json:"totalAmountLost"`
}

// FalsePositiveRate is FP over all positives.
func (m LearningMetrics) FalsePositiveRate() float64 {
	positives := m.FalsePositives + m.TruePositives
	if positives == 0 {
		return 0
	}
	return float64(m.FalsePositives) / float64(positives)
}

// FalseNegativeRate is FN over all negatives.
func (m LearningMetrics) FalseNegativeRate() float64 {
	negatives := m.FalseNegatives + m.TrueNegatives
	if negatives == 0 {
		return 0
	}
	return float64(m.FalseNegatives) / float64(negatives)
}

// Accuracy is correct classifications over all feedback.
func (m LearningMetrics) Accuracy() float64 {
	if m.TotalFeedback == 0 {
		return 0
	}
	return float64(m.TruePositives+m.TrueNegatives) / float64(m.TotalFeedback)
}

// MetricsReport is the derived, read-only metrics view served to
// operators.
type MetricsReport struct {
	LearningMetrics
	FalsePositiveRateValue float64                `json:"falsePositiveRate"`
	FalseNegativeRateValue float64                `json:"falseNegativeRate"`
	AccuracyValue          float64                `json:"accuracy"`
	WhitelistSizes         map[EntityType]int     `json:"whitelistSizes"`
	BlacklistSizes         map[EntityType]int     `json:"blacklistSizes"`
	TotalReports           int                    `json:"totalReports"`
	ReportedEntities       int                    `json:"reportedEntities"`
	WeightDeltas           map[Category]float64   `json:"weightDeltas"`
	Thresholds             Thresholds             `json:"thresholds"`
}
