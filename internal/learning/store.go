// Package learning holds the adaptive memory of the scoring pipeline:
// whitelist and blacklist sets, confusion-matrix counters, detector
// weight deltas, the fraud-report ledger and the blocked-entity set.
// All mutable state lives behind a single mutex so concurrent feedback
// and report submissions cannot lose updates.
package learning

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
)

// Score adjustments applied by reputation lists. Blacklist has
// absolute precedence: it recomputes from the original score, wiping
// any whitelist discount.
const (
	whitelistDiscount = 50
	blacklistPenalty  = 60
)

// FeedbackOutcome reports what a feedback event changed.
type FeedbackOutcome struct {
	Whitelisted     bool
	Blacklisted     bool
	LearningApplied bool
	Message         string
}

// ReportOutcome reports the effect of one fraud report.
type ReportOutcome struct {
	ReportCount   int
	Threshold     int
	Blacklisted   bool
	AutoBlacklist bool // true only on the report that crossed the threshold
	Message       string
}

// Store is the single synchronization domain for all adaptive state.
type Store struct {
	mu sync.Mutex

	whitelist map[domain.EntityType]map[string]struct{}
	blacklist map[domain.EntityType]map[string]struct{}
	reports   map[domain.EntityType]map[string]int
	blocked   map[string]struct{}

	weightDeltas map[domain.Category]float64
	thresholds   domain.Thresholds
	metrics      domain.LearningMetrics

	feedbackLog []domain.FeedbackEvent

	reportThreshold int
	logger          *slog.Logger
}

// NewStore creates an empty learning store.
func NewStore(reportThreshold int, logger *slog.Logger) *Store {
	if reportThreshold <= 0 {
		reportThreshold = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		whitelist:       make(map[domain.EntityType]map[string]struct{}),
		blacklist:       make(map[domain.EntityType]map[string]struct{}),
		reports:         make(map[domain.EntityType]map[string]int),
		blocked:         make(map[string]struct{}),
		weightDeltas:    make(map[domain.Category]float64),
		thresholds:      policy.DefaultThresholds(),
		reportThreshold: reportThreshold,
		logger:          logger,
	}
}

// RecordFeedback applies one feedback event: reputation-list mutation,
// confusion-matrix update and weight-delta adjustment.
func (s *Store) RecordFeedback(ev domain.FeedbackEvent) (FeedbackOutcome, error) {
	if !ev.EntityType.Valid() {
		return FeedbackOutcome{}, fmt.Errorf("%w: entity type %q", domain.ErrInvalidEntityType, ev.EntityType)
	}
	if !ev.Verdict.Valid() {
		return FeedbackOutcome{}, fmt.Errorf("%w: verdict %q", domain.ErrInvalidVerdict, ev.Verdict)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := FeedbackOutcome{}
	s.metrics.TotalFeedback++

	originalScore := ev.OriginalScore
	wasFlagged := originalScore >= s.thresholds.Medium

	switch ev.Verdict {
	case domain.VerdictSafe:
		s.metrics.SafeFeedback++
		s.addLocked(s.whitelist, ev.EntityType, ev.Entity)
		out.Whitelisted = true
		out.Message = "added to whitelist"

		// a safe verdict also lifts any active block
		delete(s.blocked, ev.Entity)

		if wasFlagged {
			s.metrics.FalsePositives++
			s.adjustForFalsePositiveLocked(originalScore)
			out.LearningApplied = true
		} else {
			s.metrics.TrueNegatives++
		}

	case domain.VerdictFraud:
		s.metrics.FraudFeedback++
		s.addLocked(s.blacklist, ev.EntityType, ev.Entity)
		out.Blacklisted = true
		out.Message = "added to blacklist"

		if wasFlagged {
			s.metrics.TruePositives++
		} else {
			s.metrics.FalseNegatives++
			s.adjustForFalseNegativeLocked(originalScore)
			out.LearningApplied = true
		}

	case domain.VerdictUnsure:
		s.metrics.UnsureFeedback++
		out.Message = "feedback recorded"
	}

	s.feedbackLog = append(s.feedbackLog, ev)

	s.logger.Info("feedback recorded",
		"entity", ev.Entity,
		"entity_type", string(ev.EntityType),
		"verdict", string(ev.Verdict),
		"learning_applied", out.LearningApplied,
	)
	return out, nil
}

// AdjustScore applies reputation-list adjustments to an original
// score. Whitelist subtracts 50 (floored at 0); blacklist overrides
// any whitelist discount and recomputes min(100, original+60) from the
// unadjusted score.
func (s *Store) AdjustScore(entity string, entityType domain.EntityType, original float64) (float64, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	adjusted := original
	var reasons []string

	if s.containsLocked(s.whitelist, entityType, entity) {
		adjusted = original - whitelistDiscount
		if adjusted < 0 {
			adjusted = 0
		}
		reasons = append(reasons, "whitelisted based on user feedback")
	}
	if s.containsLocked(s.blacklist, entityType, entity) {
		adjusted = original + blacklistPenalty
		if adjusted > 100 {
			adjusted = 100
		}
		reasons = append(reasons, "blacklisted based on user feedback")
	}
	return adjusted, reasons
}

// ReportFraud appends one community report. Crossing the threshold
// auto-blacklists the entity exactly once; later reports leave the
// blacklist unchanged.
func (s *Store) ReportFraud(report domain.FraudReport, amountLost float64) (ReportOutcome, error) {
	if !report.EntityType.Valid() {
		return ReportOutcome{}, fmt.Errorf("%w: entity type %q", domain.ErrInvalidEntityType, report.EntityType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byEntity, ok := s.reports[report.EntityType]
	if !ok {
		byEntity = make(map[string]int)
		s.reports[report.EntityType] = byEntity
	}
	byEntity[report.Entity]++
	count := byEntity[report.Entity]
	s.metrics.TotalAmountLost += amountLost

	out := ReportOutcome{
		ReportCount: count,
		Threshold:   s.reportThreshold,
		Message:     fmt.Sprintf("fraud report recorded, total reports: %d", count),
	}

	if count >= s.reportThreshold {
		out.Blacklisted = true
		if !s.containsLocked(s.blacklist, report.EntityType, report.Entity) {
			s.addLocked(s.blacklist, report.EntityType, report.Entity)
			out.AutoBlacklist = true
			out.Message = fmt.Sprintf("entity auto-blacklisted after %d fraud reports", count)
			s.logger.Warn("entity auto-blacklisted",
				"entity", report.Entity,
				"entity_type", string(report.EntityType),
				"reports", count,
			)
		} else {
			out.Message = fmt.Sprintf("entity already blacklisted, total reports: %d", count)
		}
	}
	return out, nil
}

// IsWhitelisted reports whitelist membership.
func (s *Store) IsWhitelisted(entity string, entityType domain.EntityType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containsLocked(s.whitelist, entityType, entity)
}

// IsBlacklisted reports blacklist membership.
func (s *Store) IsBlacklisted(entity string, entityType domain.EntityType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containsLocked(s.blacklist, entityType, entity)
}

// Block adds an entity to the live blocked set.
func (s *Store) Block(entity string) {
	s.mu.Lock()
	s.blocked[entity] = struct{}{}
	s.mu.Unlock()
}

// Unblock removes an entity from the live blocked set.
func (s *Store) Unblock(entity string) {
	s.mu.Lock()
	delete(s.blocked, entity)
	s.mu.Unlock()
}

// IsBlocked reports blocked-set membership.
func (s *Store) IsBlocked(entity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocked[entity]
	return ok
}

// WeightDeltas returns a copy of the accumulated per-category deltas.
func (s *Store) WeightDeltas() map[domain.Category]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Category]float64, len(s.weightDeltas))
	for k, v := range s.weightDeltas {
		out[k] = v
	}
	return out
}

// Thresholds returns the current risk-band cutoffs.
func (s *Store) Thresholds() domain.Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thresholds
}

// TuneThresholds recomputes the band cutoffs from the observed
// false-positive rate and returns the result.
func (s *Store) TuneThresholds() domain.Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = policy.Tune(s.thresholds, s.metrics.FalsePositiveRate())
	return s.thresholds
}

// ReportCount returns the ledger count for one entity.
func (s *Store) ReportCount(entity string, entityType domain.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[entityType][entity]
}

// Metrics returns the derived metrics view.
func (s *Store) Metrics() domain.MetricsReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := domain.MetricsReport{
		LearningMetrics:        s.metrics,
		FalsePositiveRateValue: s.metrics.FalsePositiveRate(),
		FalseNegativeRateValue: s.metrics.FalseNegativeRate(),
		AccuracyValue:          s.metrics.Accuracy(),
		WhitelistSizes:         make(map[domain.EntityType]int),
		BlacklistSizes:         make(map[domain.EntityType]int),
		WeightDeltas:           make(map[domain.Category]float64),
		Thresholds:             s.thresholds,
	}
	for t, set := range s.whitelist {
		report.WhitelistSizes[t] = len(set)
	}
	for t, set := range s.blacklist {
		report.BlacklistSizes[t] = len(set)
	}
	for c, d := range s.weightDeltas {
		report.WeightDeltas[c] = d
	}
	for _, byEntity := range s.reports {
		report.ReportedEntities += len(byEntity)
		for _, n := range byEntity {
			report.TotalReports += n
		}
	}
	return report
}

// FeedbackHistory returns the most recent feedback events, optionally
// filtered by entity type and user.
func (s *Store) FeedbackHistory(limit int, entityType domain.EntityType, userID string) []domain.FeedbackEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.FeedbackEvent
	for _, ev := range s.feedbackLog {
		if entityType != "" && ev.EntityType != entityType {
			continue
		}
		if userID != "" && ev.UserID != userID {
			continue
		}
		out = append(out, ev)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Snapshot serializes the full adaptive state for persistence.
func (s *Store) Snapshot() *domain.LearningState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := &domain.LearningState{
		WeightDeltas: make(map[domain.Category]float64, len(s.weightDeltas)),
		Thresholds:   s.thresholds,
		Whitelist:    make(map[domain.EntityType][]string),
		Blacklist:    make(map[domain.EntityType][]string),
		Reports:      make(map[domain.EntityType]map[string]int),
		Metrics:      s.metrics,
		UpdatedAt:    time.Now().UTC(),
	}
	for c, d := range s.weightDeltas {
		state.WeightDeltas[c] = d
	}
	for t, set := range s.whitelist {
		state.Whitelist[t] = sortedKeys(set)
	}
	for t, set := range s.blacklist {
		state.Blacklist[t] = sortedKeys(set)
	}
	for t, byEntity := range s.reports {
		m := make(map[string]int, len(byEntity))
		for e, n := range byEntity {
			m[e] = n
		}
		state.Reports[t] = m
	}
	state.Blocked = sortedKeys(s.blocked)
	return state
}

// Restore replaces the adaptive state with a persisted snapshot.
func (s *Store) Restore(state *domain.LearningState) {
	if state == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.weightDeltas = make(map[domain.Category]float64, len(state.WeightDeltas))
	for c, d := range state.WeightDeltas {
		s.weightDeltas[c] = d
	}
	if state.Thresholds != (domain.Thresholds{}) {
		s.thresholds = state.Thresholds
	}
	s.whitelist = make(map[domain.EntityType]map[string]struct{})
	for t, entities := range state.Whitelist {
		for _, e := range entities {
			s.addLocked(s.whitelist, t, e)
		}
	}
	s.blacklist = make(map[domain.EntityType]map[string]struct{})
	for t, entities := range state.Blacklist {
		for _, e := range entities {
			s.addLocked(s.blacklist, t, e)
		}
	}
	s.reports = make(map[domain.EntityType]map[string]int)
	for t, byEntity := range state.Reports {
		m := make(map[string]int, len(byEntity))
		for e, n := range byEntity {
			m[e] = n
		}
		s.reports[t] = m
	}
	s.blocked = make(map[string]struct{}, len(state.Blocked))
	for _, e := range state.Blocked {
		s.blocked[e] = struct{}{}
	}
	s.metrics = state.Metrics
}

// Weight-delta steps. False positives loosen, false negatives tighten;
// the magnitude depends on how far off the original score was.
func (s *Store) adjustForFalsePositiveLocked(score float64) {
	const step = 0.01
	switch {
	case score >= s.thresholds.High:
		s.weightDeltas[domain.CategoryNLP] -= step
		s.weightDeltas[domain.CategoryRules] -= step
	case score >= s.thresholds.Medium:
		s.weightDeltas[domain.CategoryRules] -= step * 2
	}
}

func (s *Store) adjustForFalseNegativeLocked(score float64) {
	const step = 0.01
	switch {
	case score < 20:
		s.weightDeltas[domain.CategoryNLP] += step * 2
		s.weightDeltas[domain.CategoryRules] += step * 2
		s.weightDeltas[domain.CategoryBehavioral] += step
	case score < s.thresholds.Medium:
		s.weightDeltas[domain.CategoryNLP] += step
		s.weightDeltas[domain.CategoryRules] += step
	}
}

func (s *Store) addLocked(lists map[domain.EntityType]map[string]struct{}, t domain.EntityType, entity string) {
	set, ok := lists[t]
	if !ok {
		set = make(map[string]struct{})
		lists[t] = set
	}
	set[entity] = struct{}{}
}

func (s *Store) containsLocked(lists map[domain.EntityType]map[string]struct{}, t domain.EntityType, entity string) bool {
	set, ok := lists[t]
	if !ok {
		return false
	}
	_, ok = set[entity]
	return ok
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
