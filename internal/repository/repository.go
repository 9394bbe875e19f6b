// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveLearningState stores the learning state document. The table holds a
// single row that is replaced on every save.
func (r *SQLRepository) SaveLearningState(ctx context.Context, state *domain.LearningState) error {
	if state == nil {
		return fmt.Errorf("%w: state is required", ErrInvalidInput)
	}

	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal learning state: %w", err)
	}

	query := `
		INSERT INTO learning_state (id, state, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), string(doc), time.Now().UTC())
	return err
}

// LoadLearningState retrieves the persisted learning state.
func (r *SQLRepository) LoadLearningState(ctx context.Context) (*domain.LearningState, error) {
	query := `SELECT state FROM learning_state WHERE id = 1`

	var doc string
	err := r.db.QueryRowContext(ctx, query).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var state domain.LearningState
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		return nil, fmt.Errorf("failed to parse learning state: %w", err)
	}

	return &state, nil
}

// SaveAnalysis stores a scored signal record.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, a *domain.Analysis) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: analysis id is required", ErrInvalidInput)
	}

	findings, _ := json.Marshal(a.Findings)

	query := `
		INSERT INTO analyses (
			id, user_id, signal, platform, entity,
			score, level, action, findings, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.UserID, a.Signal, a.Platform, a.Entity,
		a.Score, a.Level, a.Action, string(findings), a.CreatedAt,
	)
	return err
}

// GetAnalysis retrieves an analysis by ID.
func (r *SQLRepository) GetAnalysis(ctx context.Context, id string) (*domain.Analysis, error) {
	query := `
		SELECT id, user_id, signal, platform, entity,
			   score, level, action, findings, created_at
		FROM analyses
		WHERE id = ?
	`

	var a domain.Analysis
	var findings string

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&a.ID, &a.UserID, &a.Signal, &a.Platform, &a.Entity,
		&a.Score, &a.Level, &a.Action, &findings, &a.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if findings != "" {
		json.Unmarshal([]byte(findings), &a.Findings)
	}

	return &a, nil
}

// ListAnalyses retrieves the most recent analyses for a user.
func (r *SQLRepository) ListAnalyses(ctx context.Context, userID string, limit int) ([]*domain.Analysis, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, signal, platform, entity,
			   score, level, action, findings, created_at
		FROM analyses
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		var findings string

		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Signal, &a.Platform, &a.Entity,
			&a.Score, &a.Level, &a.Action, &findings, &a.CreatedAt,
		); err != nil {
			return nil, err
		}

		if findings != "" {
			json.Unmarshal([]byte(findings), &a.Findings)
		}

		analyses = append(analyses, &a)
	}

	return analyses, rows.Err()
}

// SaveReport stores a community fraud report.
func (r *SQLRepository) SaveReport(ctx context.Context, report *domain.FraudReport) error {
	if report == nil || report.Entity == "" {
		return fmt.Errorf("%w: report entity is required", ErrInvalidInput)
	}
	if !report.EntityType.Valid() {
		return fmt.Errorf("%w: entity type %q", domain.ErrInvalidEntityType, report.EntityType)
	}

	query := `
		INSERT INTO fraud_reports (
			id, entity, entity_type, user_id, category, details, amount_lost, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		report.ID, report.Entity, report.EntityType, report.UserID,
		report.Category, report.Details, report.AmountLost, report.CreatedAt,
	)
	return err
}

// ListReports retrieves all fraud reports against an entity.
func (r *SQLRepository) ListReports(ctx context.Context, entity string, entityType domain.EntityType) ([]*domain.FraudReport, error) {
	if entity == "" {
		return nil, fmt.Errorf("%w: entity is required", ErrInvalidInput)
	}

	query := `
		SELECT id, entity, entity_type, user_id, category, details, amount_lost, created_at
		FROM fraud_reports
		WHERE entity = ? AND entity_type = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), entity, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.FraudReport
	for rows.Next() {
		var rep domain.FraudReport

		if err := rows.Scan(
			&rep.ID, &rep.Entity, &rep.EntityType, &rep.UserID,
			&rep.Category, &rep.Details, &rep.AmountLost, &rep.CreatedAt,
		); err != nil {
			return nil, err
		}

		reports = append(reports, &rep)
	}

	return reports, rows.Err()
}

// RecordPayeeTransaction appends one transaction to the user's payee history.
func (r *SQLRepository) RecordPayeeTransaction(ctx context.Context, userID, payee string, amount float64, at time.Time) error {
	if userID == "" || payee == "" {
		return fmt.Errorf("%w: userID and payee are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO payee_history (user_id, payee, amount, transacted_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), userID, payee, amount, at)
	return err
}

// GetPayeeStats aggregates a user's history with one payee. A payee with no
// history returns zero-count stats rather than ErrNotFound.
func (r *SQLRepository) GetPayeeStats(ctx context.Context, userID, payee string) (*domain.PayeeStats, error) {
	if userID == "" || payee == "" {
		return nil, fmt.Errorf("%w: userID and payee are required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*),
			   COALESCE(SUM(amount), 0),
			   COALESCE(AVG(amount), 0),
			   COALESCE(MAX(amount), 0)
		FROM payee_history
		WHERE user_id = ? AND payee = ?
	`

	stats := &domain.PayeeStats{
		UserID: userID,
		Payee:  payee,
	}

	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, payee).Scan(
		&stats.Count, &stats.TotalAmount, &stats.AverageAmount, &stats.MaxAmount,
	)
	if err != nil {
		return nil, err
	}
	if stats.Count == 0 {
		return stats, nil
	}

	// Aggregate MIN/MAX over a timestamp column loses the column type on
	// SQLite, so read the endpoints off the column directly.
	firstQuery := `
		SELECT transacted_at FROM payee_history
		WHERE user_id = ? AND payee = ?
		ORDER BY transacted_at ASC
		LIMIT 1
	`
	if err := r.db.QueryRowContext(ctx, r.rebind(firstQuery), userID, payee).Scan(&stats.FirstSeen); err != nil {
		return nil, err
	}

	lastQuery := `
		SELECT transacted_at FROM payee_history
		WHERE user_id = ? AND payee = ?
		ORDER BY transacted_at DESC
		LIMIT 1
	`
	if err := r.db.QueryRowContext(ctx, r.rebind(lastQuery), userID, payee).Scan(&stats.LastSeen); err != nil {
		return nil, err
	}

	return stats, nil
}

// SaveRuleConfig stores a custom rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}
	if rule.Version == "" {
		rule.Version = "1"
	}

	signals, _ := json.Marshal(rule.Signals)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, version, expression, signals, score, finding, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			signals = excluded.signals,
			score = excluded.score,
			finding = excluded.finding,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Version,
		rule.Expression, string(signals), rule.Score, rule.Finding, enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, signals, score, finding, enabled
		FROM rule_configs
		WHERE id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var signals string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Version,
		&cfg.Expression, &signals, &cfg.Score, &cfg.Finding, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	if signals != "" {
		json.Unmarshal([]byte(signals), &cfg.Signals)
	}

	return &cfg, nil
}

// ListRuleConfigs retrieves all enabled rule configurations.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, signals, score, finding, enabled
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var signals string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Version,
			&cfg.Expression, &signals, &cfg.Score, &cfg.Finding, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		if signals != "" {
			json.Unmarshal([]byte(signals), &cfg.Signals)
		}
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// DeleteRuleConfig soft-deletes a rule by setting enabled = 0.
func (r *SQLRepository) DeleteRuleConfig(ctx context.Context, ruleID string) error {
	query := `
		UPDATE rule_configs
		SET enabled = 0, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
