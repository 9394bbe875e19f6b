// Package pipeline orchestrates signal analysis: detection, weighted
// combination, learning adjustments, classification and response.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/detector"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/enrich"
	"github.com/opensource-finance/kestrel/internal/learning"
	"github.com/opensource-finance/kestrel/internal/payee"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/responder"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// How much of the enrichment verdict folds into the rules category.
const enrichWeight = 0.3

// TTL for cached URL assessments.
const assessmentTTL = 5 * time.Minute

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Store     *learning.Store
	Responder *responder.Responder
	Rules     *rules.Engine
	Enricher  enrich.Analyzer
	Payees    *payee.Service
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Logger    *slog.Logger

	// MaxConcurrent bounds in-flight analyses. Zero means 64.
	MaxConcurrent int
}

// Pipeline runs the full scoring flow for one signal.
type Pipeline struct {
	matcher  *detector.RuleMatcher
	phrases  *detector.PhraseAnalyzer
	domains  *detector.DomainAnalyzer
	behavior *detector.BehaviorAnalyzer

	store     *learning.Store
	responder *responder.Responder
	rules     *rules.Engine
	enricher  enrich.Analyzer
	payees    *payee.Service
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	logger    *slog.Logger
	tracer    trace.Tracer
	sem       chan struct{}
}

// New creates an analysis pipeline.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Enricher == nil {
		deps.Enricher = enrich.Disabled{}
	}
	maxConcurrent := deps.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 64
	}

	return &Pipeline{
		matcher:   detector.NewRuleMatcher(),
		phrases:   detector.NewPhraseAnalyzer(),
		domains:   detector.NewDomainAnalyzer(),
		behavior:  detector.NewBehaviorAnalyzer(),
		store:     deps.Store,
		responder: deps.Responder,
		rules:     deps.Rules,
		enricher:  deps.Enricher,
		payees:    deps.Payees,
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		logger:    deps.Logger,
		tracer:    otel.Tracer("kestrel/pipeline"),
		sem:       make(chan struct{}, maxConcurrent),
	}
}

// Analyze scores one signal end to end and returns the decision.
func (p *Pipeline) Analyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.AnalysisResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.analyze",
		trace.WithAttributes(
			attribute.String("signal", string(req.Signal)),
			attribute.String("platform", string(req.Platform)),
		),
	)
	defer span.End()

	start := time.Now()
	entity, entityType := req.Entity()

	categories, findings := p.detect(ctx, req)

	// Operator-defined CEL rules add to the rules category.
	if p.rules != nil {
		for _, rr := range p.rules.EvaluateAll(ctx, req) {
			if rr.Err != "" {
				p.logger.Warn("custom rule error", "rule_id", rr.RuleID, "error", rr.Err)
				continue
			}
			if rr.Matched {
				categories[domain.CategoryRules] += rr.Score
				findings = append(findings, rr.Finding)
			}
		}
	}

	// LLM enrichment is advisory and folds in at reduced weight.
	if enriched := p.enricher.Enrich(ctx, req); enriched.Score > 0 {
		categories[domain.CategoryRules] += enriched.Score * enrichWeight
		findings = append(findings, enriched.Findings...)
	}

	combiner := scoring.NewCombiner()
	combiner.ApplyDeltas(p.store.WeightDeltas())
	raw := combiner.Combine(categories)

	adjusted, adjustFindings := p.store.AdjustScore(entity, entityType, raw)
	findings = append(findings, adjustFindings...)

	score := policy.Cap(adjusted)
	level := policy.Classify(score, p.store.Thresholds())
	action := policy.DetermineAction(level, req.Platform, req.Signal, req.IntentType())

	bundle := p.responder.Respond(action, level, req, findings)

	analysis := &domain.Analysis{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Signal:    req.Signal,
		Platform:  req.Platform,
		Entity:    entity,
		Score:     score,
		Level:     level,
		Action:    action,
		Findings:  findings,
		CreatedAt: time.Now().UTC(),
	}

	if p.repo != nil {
		if err := p.repo.SaveAnalysis(ctx, analysis); err != nil {
			p.logger.Error("failed to persist analysis", "analysis_id", analysis.ID, "error", err)
		}
	}

	p.recordPayee(ctx, req)
	p.cacheAssessment(ctx, req, entity, score, level, findings, categories)
	p.publish(ctx, analysis)

	p.logger.Info("signal analyzed",
		"analysis_id", analysis.ID,
		"signal", string(req.Signal),
		"score", score,
		"level", string(level),
		"action", string(action),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &domain.AnalysisResponse{
		AnalysisID: analysis.ID,
		Score:      score,
		Level:      level,
		Findings:   findings,
		Action:     bundle,
	}, nil
}

// detect runs the built-in analyzers for the signal type. Detectors never
// fail; missing or malformed evidence simply scores zero.
func (p *Pipeline) detect(ctx context.Context, req *domain.AnalysisRequest) (map[domain.Category]float64, []string) {
	categories := map[domain.Category]float64{
		domain.CategoryRules:      0,
		domain.CategoryNLP:        0,
		domain.CategoryDomain:     0,
		domain.CategoryBehavioral: 0,
	}
	var findings []string

	add := func(res domain.DetectorResult) {
		categories[res.Category] += res.Score
		findings = append(findings, res.Findings...)
	}

	switch req.Signal {
	case domain.SignalURL:
		ev := req.URL
		add(p.matcher.AnalyzeURL(ev.URL))
		add(p.domains.Analyze(detector.HostOf(ev.URL), ev.Domain))
		if ev.HTML != nil {
			add(p.matcher.AnalyzeHTML(ev.HTML))
		}
		if ev.Redirects != nil {
			add(p.matcher.AnalyzeRedirects(ev.Redirects))
		}

	case domain.SignalSMS:
		ev := req.SMS
		add(p.matcher.AnalyzeText(ev.Message, ev.Sender))

		nlp, _ := p.phrases.Analyze(ev.Message)
		add(nlp)

		// Any URL embedded in the message gets domain checks too.
		for _, u := range detector.ExtractURLs(ev.Message) {
			add(p.domains.Analyze(detector.HostOf(u), nil))
			break
		}

		if ev.Intent != nil {
			add(p.matcher.AnalyzeIntent(ev.Intent.IntentType, ev.Intent.Amount))
		}
		if ev.Device != nil {
			add(p.behavior.AnalyzeDevice(ev.Device))
		}

	case domain.SignalUPI, domain.SignalTransaction:
		ev := req.Transaction
		add(p.matcher.AnalyzeRecipient(ev.RecipientUPI, ev.RecipientName, ev.Note))
		add(p.matcher.AnalyzeIntent(ev.IntentType, ev.Amount))

		nlp, _ := p.phrases.Analyze(ev.Note)
		add(nlp)

		hints := ev.Behavior
		if p.payees != nil && req.UserID != "" && ev.RecipientUPI != "" {
			observed, err := p.payees.Observe(ctx, req.UserID, ev.RecipientUPI, ev.Amount, time.Now(), ev.Behavior)
			if err == nil {
				hints = observed
			}
		}
		add(p.behavior.AnalyzeTransaction(ev.Amount, hints))
		if ev.Device != nil {
			add(p.behavior.AnalyzeDevice(ev.Device))
		}

	case domain.SignalQR:
		ev := req.QR
		qrRes, _ := p.matcher.AnalyzeQR(ev.Data)
		add(qrRes)

		nlp, _ := p.phrases.Analyze(ev.Data)
		add(nlp)

		if ev.Device != nil {
			add(p.behavior.AnalyzeDevice(ev.Device))
		}
	}

	return categories, findings
}

// recordPayee appends outgoing payments to the user's payee history.
func (p *Pipeline) recordPayee(ctx context.Context, req *domain.AnalysisRequest) {
	if p.payees == nil || req.Transaction == nil || req.UserID == "" {
		return
	}
	ev := req.Transaction
	if ev.RecipientUPI == "" || ev.IntentType == domain.IntentCollect {
		return
	}
	if err := p.payees.Record(ctx, req.UserID, ev.RecipientUPI, ev.Amount, time.Now().UTC()); err != nil {
		p.logger.Warn("failed to record payee transaction", "error", err)
	}
}

// cacheAssessment stores URL assessments for repeat lookups. Other
// signals are not cached: their entity (sender, UPI ID) does not capture
// the full evidence.
func (p *Pipeline) cacheAssessment(ctx context.Context, req *domain.AnalysisRequest, entity string, score float64, level domain.RiskLevel, findings []string, categories map[domain.Category]float64) {
	if p.cache == nil || entity == "" {
		return
	}
	if req.Signal != domain.SignalURL {
		return
	}

	assessment := &domain.CombinedAssessment{
		Score:      score,
		Level:      level,
		Findings:   findings,
		Categories: categories,
	}
	if err := cache.SetAssessment(ctx, p.cache, entity, assessment, assessmentTTL); err != nil {
		p.logger.Warn("failed to cache assessment", "error", err)
	}
}

// CachedAssessment returns a previously cached URL assessment, or nil.
func (p *Pipeline) CachedAssessment(ctx context.Context, entity string) *domain.CombinedAssessment {
	if p.cache == nil || entity == "" {
		return nil
	}
	assessment, err := cache.GetAssessment(ctx, p.cache, entity)
	if err != nil {
		p.logger.Warn("assessment cache read failed", "error", err)
		return nil
	}
	return assessment
}

// publish emits analysis events. Bus failures are logged, never fatal.
func (p *Pipeline) publish(ctx context.Context, analysis *domain.Analysis) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(analysis)
	if err != nil {
		return
	}

	if err := p.bus.Publish(ctx, domain.TopicSignalAnalyzed, payload); err != nil {
		p.logger.Warn("failed to publish analysis event", "error", err)
	}

	if analysis.Level == domain.RiskHigh || analysis.Level == domain.RiskCritical {
		if err := p.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			p.logger.Warn("failed to publish alert event", "error", err)
		}
	}
}

// Feedback records a user verdict on a prior analysis and applies the
// learning updates.
func (p *Pipeline) Feedback(ctx context.Context, ev domain.FeedbackEvent) (learning.FeedbackOutcome, error) {
	if !ev.Verdict.Valid() {
		return learning.FeedbackOutcome{}, fmt.Errorf("%w: %q", domain.ErrInvalidVerdict, ev.Verdict)
	}

	// Fill entity facts from the referenced analysis when omitted.
	if ev.Entity == "" && ev.AnalysisID != "" && p.repo != nil {
		if analysis, err := p.repo.GetAnalysis(ctx, ev.AnalysisID); err == nil {
			ev.Entity = analysis.Entity
			ev.EntityType = entityTypeFor(analysis.Signal)
			if ev.OriginalScore == 0 {
				ev.OriginalScore = analysis.Score
			}
		}
	}

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	outcome, err := p.store.RecordFeedback(ev)
	if err != nil {
		return outcome, err
	}

	if p.bus != nil {
		if payload, err := json.Marshal(ev); err == nil {
			if err := p.bus.Publish(ctx, domain.TopicFeedbackReceived, payload); err != nil {
				p.logger.Warn("failed to publish feedback event", "error", err)
			}
		}
		if outcome.Blacklisted {
			p.publishBlacklisted(ctx, ev.Entity, ev.EntityType, "user feedback")
		}
	}

	return outcome, nil
}

// Report records a community fraud report against an entity.
func (p *Pipeline) Report(ctx context.Context, report domain.FraudReport) (learning.ReportOutcome, error) {
	if report.Entity == "" {
		return learning.ReportOutcome{}, fmt.Errorf("%w: entity is required", domain.ErrInvalidEntityType)
	}
	if !report.EntityType.Valid() {
		return learning.ReportOutcome{}, fmt.Errorf("%w: %q", domain.ErrInvalidEntityType, report.EntityType)
	}

	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	outcome, err := p.store.ReportFraud(report, report.AmountLost)
	if err != nil {
		return outcome, err
	}

	if p.repo != nil {
		if err := p.repo.SaveReport(ctx, &report); err != nil {
			p.logger.Error("failed to persist fraud report", "report_id", report.ID, "error", err)
		}
	}

	if outcome.AutoBlacklist {
		p.publishBlacklisted(ctx, report.Entity, report.EntityType, "community reports")
	}

	return outcome, nil
}

func (p *Pipeline) publishBlacklisted(ctx context.Context, entity string, entityType domain.EntityType, reason string) {
	if p.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"entity":     entity,
		"entityType": string(entityType),
		"reason":     reason,
	})
	if err := p.bus.Publish(ctx, domain.TopicEntityBlacklisted, payload); err != nil {
		p.logger.Warn("failed to publish blacklist event", "error", err)
	}
}

// Metrics returns the learning engine's current metrics view.
func (p *Pipeline) Metrics() domain.MetricsReport {
	return p.store.Metrics()
}

// FeedbackHistory returns recent feedback events, optionally filtered
// by entity type and user.
func (p *Pipeline) FeedbackHistory(limit int, entityType domain.EntityType, userID string) []domain.FeedbackEvent {
	return p.store.FeedbackHistory(limit, entityType, userID)
}

// History returns the user's recent analyses.
func (p *Pipeline) History(ctx context.Context, userID string, limit int) ([]*domain.Analysis, error) {
	if p.repo == nil {
		return nil, nil
	}
	return p.repo.ListAnalyses(ctx, userID, limit)
}

// validate checks the request shape: known signal, matching evidence.
func validate(req *domain.AnalysisRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", domain.ErrInvalidSignal)
	}

	switch req.Signal {
	case domain.SignalURL:
		if req.URL == nil || req.URL.URL == "" {
			return fmt.Errorf("%w: url evidence is required", domain.ErrInvalidSignal)
		}
	case domain.SignalSMS:
		if req.SMS == nil || req.SMS.Message == "" {
			return fmt.Errorf("%w: sms evidence is required", domain.ErrInvalidSignal)
		}
	case domain.SignalUPI, domain.SignalTransaction:
		if req.Transaction == nil || req.Transaction.RecipientUPI == "" {
			return fmt.Errorf("%w: transaction evidence is required", domain.ErrInvalidSignal)
		}
	case domain.SignalQR:
		if req.QR == nil || req.QR.Data == "" {
			return fmt.Errorf("%w: qr evidence is required", domain.ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidSignal, req.Signal)
	}

	if req.Platform == "" {
		req.Platform = domain.PlatformUnknown
	}

	return nil
}

// entityTypeFor maps a signal type to the entity classification its
// scored identifier belongs to.
func entityTypeFor(signal domain.SignalType) domain.EntityType {
	switch signal {
	case domain.SignalURL, domain.SignalQR:
		return domain.EntityURLs
	case domain.SignalSMS:
		return domain.EntitySenders
	case domain.SignalUPI, domain.SignalTransaction:
		return domain.EntityUPIIDs
	}
	return ""
}
