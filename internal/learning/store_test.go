package learning

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestStore() *Store {
	return NewStore(50, nil)
}

func TestAdjustScoreWhitelist(t *testing.T) {
	s := newTestStore()
	s.RecordFeedback(domain.FeedbackEvent{
		Entity:     "good.example",
		EntityType: domain.EntityDomains,
		Verdict:    domain.VerdictSafe,
		UserID:     "u1",
	})

	adjusted, reasons := s.AdjustScore("good.example", domain.EntityDomains, 50)
	if adjusted != 0 {
		t.Errorf("whitelisted adjust(50) = %.1f, want 0", adjusted)
	}
	if len(reasons) != 1 {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestBlacklistOverridesWhitelist(t *testing.T) {
	s := newTestStore()
	entity := "shady.example"

	s.RecordFeedback(domain.FeedbackEvent{
		Entity: entity, EntityType: domain.EntityDomains,
		Verdict: domain.VerdictSafe, UserID: "u1",
	})
	s.RecordFeedback(domain.FeedbackEvent{
		Entity: entity, EntityType: domain.EntityDomains,
		Verdict: domain.VerdictFraud, UserID: "u2", OriginalScore: 80,
	})

	// blacklist recomputes from the original, not the whitelist-discounted score
	adjusted, _ := s.AdjustScore(entity, domain.EntityDomains, 50)
	if adjusted != 100 {
		t.Errorf("adjust(50) with both lists = %.1f, want min(100, 50+60) = 100", adjusted)
	}
}

func TestAdjustScoreUnlistedEntity(t *testing.T) {
	s := newTestStore()
	adjusted, reasons := s.AdjustScore("unknown.example", domain.EntityDomains, 42.5)
	if adjusted != 42.5 || reasons != nil {
		t.Errorf("unlisted adjust = %.1f %v", adjusted, reasons)
	}
}

func TestReportFraudThreshold(t *testing.T) {
	s := newTestStore()
	report := domain.FraudReport{
		Entity:     "9876543210@paytm",
		EntityType: domain.EntityUPIIDs,
		UserID:     "reporter",
	}

	for i := 1; i <= 49; i++ {
		out, err := s.ReportFraud(report, 0)
		if err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
		if out.Blacklisted {
			t.Fatalf("report %d blacklisted before the threshold", i)
		}
	}

	out, _ := s.ReportFraud(report, 0)
	if !out.Blacklisted || !out.AutoBlacklist {
		t.Errorf("report 50: blacklisted=%v auto=%v, want both true", out.Blacklisted, out.AutoBlacklist)
	}
	if out.ReportCount != 50 {
		t.Errorf("report count = %d, want 50", out.ReportCount)
	}

	// the 51st report is idempotent
	out, _ = s.ReportFraud(report, 0)
	if !out.Blacklisted || out.AutoBlacklist {
		t.Errorf("report 51: blacklisted=%v auto=%v, want true/false", out.Blacklisted, out.AutoBlacklist)
	}
}

func TestReportFraudUnknownEntityType(t *testing.T) {
	s := newTestStore()
	_, err := s.ReportFraud(domain.FraudReport{
		Entity: "x", EntityType: "emails", UserID: "u",
	}, 0)
	if !errors.Is(err, domain.ErrInvalidEntityType) {
		t.Errorf("err = %v, want ErrInvalidEntityType", err)
	}
	if s.ReportCount("x", "emails") != 0 {
		t.Error("rejected report mutated the ledger")
	}
}

func TestFeedbackUnknownVerdict(t *testing.T) {
	s := newTestStore()
	_, err := s.RecordFeedback(domain.FeedbackEvent{
		Entity: "x", EntityType: domain.EntityURLs, Verdict: "maybe", UserID: "u",
	})
	if !errors.Is(err, domain.ErrInvalidVerdict) {
		t.Errorf("err = %v, want ErrInvalidVerdict", err)
	}
}

func TestWeightDeltasFalsePositive(t *testing.T) {
	s := newTestStore()

	// flagged high, user says safe: nlp and rules loosen by 0.01
	s.RecordFeedback(domain.FeedbackEvent{
		Entity: "a.example", EntityType: domain.EntityDomains,
		Verdict: domain.VerdictSafe, UserID: "u", OriginalScore: 80,
	})
	d := s.WeightDeltas()
	if d[domain.CategoryNLP] != -0.01 || d[domain.CategoryRules] != -0.01 {
		t.Errorf("high-score false positive deltas = %v", d)
	}

	// flagged medium: rules loosen by 0.02
	s2 := newTestStore()
	s2.RecordFeedback(domain.FeedbackEvent{
		Entity: "b.example", EntityType: domain.EntityDomains,
		Verdict: domain.VerdictSafe, UserID: "u", OriginalScore: 50,
	})
	d = s2.WeightDeltas()
	if d[domain.CategoryRules] != -0.02 {
		t.Errorf("medium-score false positive deltas = %v", d)
	}
}

func TestWeightDeltasFalseNegative(t *testing.T) {
	s := newTestStore()

	// missed fraud at a very low score: nlp/rules tighten 0.02, behavioral 0.01
	s.RecordFeedback(domain.FeedbackEvent{
		Entity: "scam.example", EntityType: domain.EntityDomains,
		Verdict: domain.VerdictFraud, UserID: "u", OriginalScore: 10,
	})
	d := s.WeightDeltas()
	if d[domain.CategoryNLP] != 0.02 || d[domain.CategoryRules] != 0.02 || d[domain.CategoryBehavioral] != 0.01 {
		t.Errorf("low-score false negative deltas = %v", d)
	}

	// missed fraud in the 20..40 band: nlp/rules tighten 0.01
	s2 := newTestStore()
	s2.RecordFeedback(domain.FeedbackEvent{
		Entity: "scam2.example", EntityType: domain.EntityDomains,
		Verdict: domain.VerdictFraud, UserID: "u", OriginalScore: 30,
	})
	d = s2.WeightDeltas()
	if d[domain.CategoryNLP] != 0.01 || d[domain.CategoryRules] != 0.01 {
		t.Errorf("mid-score false negative deltas = %v", d)
	}
}

func TestConfusionMatrixCounters(t *testing.T) {
	s := newTestStore()

	cases := []struct {
		verdict domain.Verdict
		score   float64
	}{
		{domain.VerdictFraud, 80}, // TP
		{domain.VerdictFraud, 10}, // FN
		{domain.VerdictSafe, 80},  // FP
		{domain.VerdictSafe, 10},  // TN
		{domain.VerdictUnsure, 50},
	}
	for i, c := range cases {
		s.RecordFeedback(domain.FeedbackEvent{
			Entity:        fmt.Sprintf("e%d", i),
			EntityType:    domain.EntityURLs,
			Verdict:       c.verdict,
			UserID:        "u",
			OriginalScore: c.score,
		})
	}

	m := s.Metrics()
	if m.TruePositives != 1 || m.FalseNegatives != 1 || m.FalsePositives != 1 || m.TrueNegatives != 1 {
		t.Errorf("confusion matrix = TP:%d TN:%d FP:%d FN:%d",
			m.TruePositives, m.TrueNegatives, m.FalsePositives, m.FalseNegatives)
	}
	if m.TotalFeedback != 5 || m.UnsureFeedback != 1 {
		t.Errorf("totals = %d/%d", m.TotalFeedback, m.UnsureFeedback)
	}
	if m.FalsePositiveRateValue != 0.5 {
		t.Errorf("fp rate = %.2f, want 0.50", m.FalsePositiveRateValue)
	}
	if m.AccuracyValue != 0.4 {
		t.Errorf("accuracy = %.2f, want 0.40", m.AccuracyValue)
	}
}

func TestSafeFeedbackUnblocks(t *testing.T) {
	s := newTestStore()
	s.Block("blocked.example")
	if !s.IsBlocked("blocked.example") {
		t.Fatal("entity not blocked")
	}

	s.RecordFeedback(domain.FeedbackEvent{
		Entity: "blocked.example", EntityType: domain.EntityDomains,
		Verdict: domain.VerdictSafe, UserID: "u",
	})
	if s.IsBlocked("blocked.example") {
		t.Error("safe verdict did not lift the block")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := newTestStore()
	s.RecordFeedback(domain.FeedbackEvent{
		Entity: "good.example", EntityType: domain.EntityDomains,
		Verdict: domain.VerdictSafe, UserID: "u", OriginalScore: 80,
	})
	s.RecordFeedback(domain.FeedbackEvent{
		Entity: "bad.example", EntityType: domain.EntityDomains,
		Verdict: domain.VerdictFraud, UserID: "u", OriginalScore: 10,
	})
	s.ReportFraud(domain.FraudReport{
		Entity: "1234567890@upi", EntityType: domain.EntityUPIIDs, UserID: "u",
	}, 2500)
	s.Block("bad.example")

	snap := s.Snapshot()

	restored := newTestStore()
	restored.Restore(snap)

	origAdj, _ := s.AdjustScore("bad.example", domain.EntityDomains, 50)
	restAdj, _ := restored.AdjustScore("bad.example", domain.EntityDomains, 50)
	if origAdj != restAdj {
		t.Errorf("adjust differs after restore: %.1f vs %.1f", origAdj, restAdj)
	}
	if !reflect.DeepEqual(s.WeightDeltas(), restored.WeightDeltas()) {
		t.Errorf("weight deltas differ: %v vs %v", s.WeightDeltas(), restored.WeightDeltas())
	}
	if !restored.IsBlocked("bad.example") {
		t.Error("blocked set lost in round trip")
	}
	if restored.ReportCount("1234567890@upi", domain.EntityUPIIDs) != 1 {
		t.Error("report ledger lost in round trip")
	}
	if restored.Metrics().TotalAmountLost != 2500 {
		t.Error("amount lost counter lost in round trip")
	}
}

func TestTuneThresholds(t *testing.T) {
	s := newTestStore()

	// four false positives against one true positive pushes the rate over 0.15
	for i := 0; i < 4; i++ {
		s.RecordFeedback(domain.FeedbackEvent{
			Entity: fmt.Sprintf("fp%d", i), EntityType: domain.EntityURLs,
			Verdict: domain.VerdictSafe, UserID: "u", OriginalScore: 80,
		})
	}
	s.RecordFeedback(domain.FeedbackEvent{
		Entity: "tp", EntityType: domain.EntityURLs,
		Verdict: domain.VerdictFraud, UserID: "u", OriginalScore: 80,
	})

	th := s.TuneThresholds()
	if th.Medium != 45 || th.High != 75 {
		t.Errorf("tuned thresholds = %+v, want medium 45 high 75", th)
	}
}
