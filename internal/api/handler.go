package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	pipeline *pipeline.Pipeline
	repo     domain.Repository
	cache    domain.Cache
	engine   *rules.Engine
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(p *pipeline.Pipeline, repo domain.Repository, cache domain.Cache, engine *rules.Engine, version string) *Handler {
	return &Handler{
		pipeline: p,
		repo:     repo,
		cache:    cache,
		engine:   engine,
		version:  version,
	}
}

// AnalyzeURLRequest is the request body for POST /api/v1/analyze/url.
type AnalyzeURLRequest struct {
	URL       string                `json:"url"`
	Platform  string                `json:"platform,omitempty"`
	UserID    string                `json:"userId,omitempty"`
	Domain    *domain.DomainHints   `json:"domainDetails,omitempty"`
	HTML      *domain.HTMLHints     `json:"htmlContent,omitempty"`
	Redirects *domain.RedirectHints `json:"redirectChain,omitempty"`
}

// AnalyzeSMSRequest is the request body for POST /api/v1/analyze/sms.
type AnalyzeSMSRequest struct {
	Message  string              `json:"message"`
	Sender   string              `json:"sender,omitempty"`
	Platform string              `json:"platform,omitempty"`
	UserID   string              `json:"userId,omitempty"`
	Device   *domain.DeviceHints `json:"deviceInfo,omitempty"`
	Intent   *domain.UPIIntent   `json:"upiIntent,omitempty"`
}

// AnalyzeTransactionRequest is the request body for POST /api/v1/analyze/transaction.
type AnalyzeTransactionRequest struct {
	Amount        float64               `json:"amount"`
	RecipientUPI  string                `json:"recipientUpi"`
	RecipientName string                `json:"recipientName,omitempty"`
	Note          string                `json:"note,omitempty"`
	IntentType    string                `json:"intentType,omitempty"`
	Platform      string                `json:"platform,omitempty"`
	UserID        string                `json:"userId,omitempty"`
	Behavior      *domain.BehaviorHints `json:"behavior,omitempty"`
	Device        *domain.DeviceHints   `json:"deviceInfo,omitempty"`
}

// AnalyzeQRRequest is the request body for POST /api/v1/analyze/qr.
type AnalyzeQRRequest struct {
	Data     string              `json:"data"`
	Platform string              `json:"platform,omitempty"`
	UserID   string              `json:"userId,omitempty"`
	Device   *domain.DeviceHints `json:"deviceInfo,omitempty"`
}

// AnalyzeURL handles POST /api/v1/analyze/url.
func (h *Handler) AnalyzeURL(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "url is required",
		})
		return
	}

	h.analyze(w, r, &domain.AnalysisRequest{
		Signal:   domain.SignalURL,
		Platform: domain.Platform(req.Platform),
		UserID:   h.userID(r, req.UserID),
		URL: &domain.URLEvidence{
			URL:       req.URL,
			Domain:    req.Domain,
			HTML:      req.HTML,
			Redirects: req.Redirects,
		},
	})
}

// AnalyzeSMS handles POST /api/v1/analyze/sms.
func (h *Handler) AnalyzeSMS(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "message is required",
		})
		return
	}

	h.analyze(w, r, &domain.AnalysisRequest{
		Signal:   domain.SignalSMS,
		Platform: domain.Platform(req.Platform),
		UserID:   h.userID(r, req.UserID),
		SMS: &domain.SMSEvidence{
			Message: req.Message,
			Sender:  req.Sender,
			Device:  req.Device,
			Intent:  req.Intent,
		},
	})
}

// AnalyzeTransaction handles POST /api/v1/analyze/transaction.
func (h *Handler) AnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.RecipientUPI == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "recipientUpi is required",
		})
		return
	}
	if req.Amount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must not be negative",
		})
		return
	}

	h.analyze(w, r, &domain.AnalysisRequest{
		Signal:   domain.SignalTransaction,
		Platform: domain.Platform(req.Platform),
		UserID:   h.userID(r, req.UserID),
		Transaction: &domain.TransactionEvidence{
			Amount:        req.Amount,
			RecipientUPI:  req.RecipientUPI,
			RecipientName: req.RecipientName,
			Note:          req.Note,
			IntentType:    req.IntentType,
			Behavior:      req.Behavior,
			Device:        req.Device,
		},
	})
}

// AnalyzeQR handles POST /api/v1/analyze/qr.
func (h *Handler) AnalyzeQR(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Data == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "data is required",
		})
		return
	}

	h.analyze(w, r, &domain.AnalysisRequest{
		Signal:   domain.SignalQR,
		Platform: domain.Platform(req.Platform),
		UserID:   h.userID(r, req.UserID),
		QR: &domain.QREvidence{
			Data:   req.Data,
			Device: req.Device,
		},
	})
}

// analyze runs a built request through the scoring pipeline and writes
// the assessment.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request, req *domain.AnalysisRequest) {
	resp, err := h.pipeline.Analyze(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignal) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("analysis failed", "signal", req.Signal, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// userID resolves the caller identity: the request body wins, then the
// X-User-ID header.
func (h *Handler) userID(r *http.Request, bodyID string) string {
	if bodyID != "" {
		return bodyID
	}
	return GetUserID(r.Context())
}

// CheckURL handles GET /api/v1/check. It serves the cached assessment
// for a previously analyzed URL without re-running the detectors.
func (h *Handler) CheckURL(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "url query parameter is required",
		})
		return
	}

	assessment := h.pipeline.CachedAssessment(r.Context(), url)
	if assessment == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no cached assessment for url",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// Feedback handles POST /api/v1/feedback. It records a user verdict on
// a prior analysis and feeds the adaptive learning loop.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var ev domain.FeedbackEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if ev.UserID == "" {
		ev.UserID = GetUserID(r.Context())
	}

	outcome, err := h.pipeline.Feedback(r.Context(), ev)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidVerdict) || errors.Is(err, domain.ErrInvalidEntityType) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("feedback failed", "analysis_id", ev.AnalysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to record feedback",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"whitelisted":     outcome.Whitelisted,
		"blacklisted":     outcome.Blacklisted,
		"learningApplied": outcome.LearningApplied,
		"message":         outcome.Message,
	})
}

// CreateReport handles POST /api/v1/reports. It files a community fraud
// report against an entity and may trigger an auto-blacklist.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var report domain.FraudReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if report.UserID == "" {
		report.UserID = GetUserID(r.Context())
	}

	outcome, err := h.pipeline.Report(r.Context(), report)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEntityType) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("fraud report failed", "entity", report.Entity, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to record report",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"reportCount":   outcome.ReportCount,
		"threshold":     outcome.Threshold,
		"blacklisted":   outcome.Blacklisted,
		"autoBlacklist": outcome.AutoBlacklist,
		"message":       outcome.Message,
	})
}

// ListReports handles GET /api/v1/reports. It returns the stored fraud
// reports against one entity.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	entity := r.URL.Query().Get("entity")
	entityType := domain.EntityType(r.URL.Query().Get("entityType"))

	if entity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entity query parameter is required",
		})
		return
	}
	if !entityType.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entityType query parameter is invalid",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	reports, err := h.repo.ListReports(r.Context(), entity, entityType)
	if err != nil {
		slog.Error("failed to list reports", "entity", entity, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list reports",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

// LearningMetrics handles GET /api/v1/learning/metrics.
func (h *Handler) LearningMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Metrics())
}

// LearningFeedback handles GET /api/v1/learning/feedback. It returns
// recent feedback events, optionally filtered by entity type and user.
func (h *Handler) LearningFeedback(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50)
	entityType := domain.EntityType(r.URL.Query().Get("entityType"))
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = GetUserID(r.Context())
	}

	events := h.pipeline.FeedbackHistory(limit, entityType, userID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"feedback": events,
		"count":    len(events),
	})
}

// History handles GET /api/v1/history. It returns the caller's recent
// analyses, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = GetUserID(r.Context())
	}
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "user identity is required (X-User-ID header or userId query parameter)",
		})
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), 50)

	analyses, err := h.pipeline.History(r.Context(), userID, limit)
	if err != nil {
		slog.Error("failed to list history", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list history",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// GetAnalysis handles GET /api/v1/analyses/{id}.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysisID := chi.URLParam(r, "id")

	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	analysis, err := h.repo.GetAnalysis(r.Context(), analysisID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "analysis not found",
			})
			return
		}
		slog.Error("failed to get analysis", "id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get analysis",
		})
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Expression  string              `json:"expression"`
	Signals     []domain.SignalType `json:"signals,omitempty"`
	Score       float64             `json:"score"`
	Finding     string              `json:"finding,omitempty"`
	Enabled     bool                `json:"enabled"`
}

// CreateRule creates a new rule, loads it into the engine, and saves it
// to the database.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1",
		Expression:  req.Expression,
		Signals:     req.Signals,
		Score:       req.Score,
		Finding:     req.Finding,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule": ruleConfig,
	})
}

// DeleteRule soft-deletes a rule and reloads the engine without it.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteRuleConfig(ctx, ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	if err := h.reloadEngine(ctx); err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	}

	slog.Info("rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rule deleted and engine reloaded",
	})
}

// ReloadRules reloads builtin plus database rules into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.reloadEngine(r.Context()); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	count := h.engine.RulesCount()
	slog.Info("rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// reloadEngine swaps the engine's rule set for the builtins plus the
// enabled rules currently in the database.
func (h *Handler) reloadEngine(ctx context.Context) error {
	dbRules, err := h.repo.ListRuleConfigs(ctx)
	if err != nil {
		return err
	}
	return h.engine.ReloadRules(append(rules.BuiltinRules(), dbRules...))
}

func parseLimit(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
