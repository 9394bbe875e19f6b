package domain

import "time"

// Category is a detector family. Each category's score is weighted
// independently when combining.
type Category string

const (
	CategoryRules      Category = "rules"
	CategoryNLP        Category = "nlp"
	CategoryDomain     Category = "domain"
	CategoryBehavioral Category = "behavioral"
)

// DetectorResult is one detector's verdict on a signal.
type DetectorResult struct {
	Category Category `json:"category"`
	Score    float64  `json:"score"` // 0..100
	Findings []string `json:"findings,omitempty"`
}

// ExtractedEntities are the identifiers pulled out of a signal during
// analysis, keyed by entity class.
type ExtractedEntities map[EntityType][]string

// CombinedAssessment is the weighted aggregate of all detector results
// for one signal, after reputation adjustment.
type CombinedAssessment struct {
	Score       float64           `json:"score"` // 0..100
	Level       RiskLevel         `json:"level"`
	Findings    []string          `json:"findings,omitempty"`
	Categories  map[Category]float64 `json:"categories,omitempty"`
	Entities    ExtractedEntities `json:"entities,omitempty"`
	Whitelisted bool              `json:"whitelisted,omitempty"`
	Blacklisted bool              `json:"blacklisted,omitempty"`
}

// Analysis is the persisted record of one scored signal.
type Analysis struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Signal    SignalType `json:"signal"`
	Platform  Platform   `json:"platform"`
	Entity    string     `json:"entity,omitempty"`
	Score     float64    `json:"score"`
	Level     RiskLevel  `json:"level"`
	Action    ActionType `json:"action"`
	Findings  []string   `json:"findings,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// AnalysisResponse is the wire response for an analyze call.
type AnalysisResponse struct {
	AnalysisID string        `json:"analysisId"`
	Score      float64       `json:"score"`
	Level      RiskLevel     `json:"level"`
	Findings   []string      `json:"findings,omitempty"`
	Action     *ActionBundle `json:"action"`
}
