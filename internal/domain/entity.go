package domain

import "time"

// EntityType classifies an identifier tracked by the learning store.
type EntityType string

const (
	EntityURLs         EntityType = "urls"
	EntityDomains      EntityType = "domains"
	EntityUPIIDs       EntityType = "upi_ids"
	EntitySenders      EntityType = "senders"
	EntityPhoneNumbers EntityType = "phone_numbers"
)

// Valid reports whether t is a known entity class.
func (t EntityType) Valid() bool {
	switch t {
	case EntityURLs, EntityDomains, EntityUPIIDs, EntitySenders, EntityPhoneNumbers:
		return true
	}
	return false
}

// Verdict is a user's judgment of a past analysis.
type Verdict string

const (
	VerdictSafe   Verdict = "safe"
	VerdictFraud  Verdict = "fraud"
	VerdictUnsure Verdict = "unsure"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	return v == VerdictSafe || v == VerdictFraud || v == VerdictUnsure
}

// FeedbackEvent is user feedback on a completed analysis.
type FeedbackEvent struct {
	AnalysisID string     `json:"analysisId"`
	UserID     string     `json:"userId"`
	Verdict       Verdict    `json:"verdict"`
	Entity        string     `json:"entity,omitempty"`
	EntityType    EntityType `json:"entityType,omitempty"`
	OriginalScore float64    `json:"originalScore"`
	Comment       string     `json:"comment,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// FraudReport is a community report against an entity.
type FraudReport struct {
	ID         string     `json:"id"`
	Entity     string     `json:"entity"`
	EntityType EntityType `json:"entityType"`
	UserID     string     `json:"userId"`
	Category   string     `json:"category,omitempty"`
	Details    string     `json:"details,omitempty"`
	AmountLost float64    `json:"amountLost,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
