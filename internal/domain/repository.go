package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Learning state persistence
	SaveLearningState(ctx context.Context, state *LearningState) error
	LoadLearningState(ctx context.Context) (*LearningState, error)

	// Analysis history
	SaveAnalysis(ctx context.Context, a *Analysis) error
	GetAnalysis(ctx context.Context, id string) (*Analysis, error)
	ListAnalyses(ctx context.Context, userID string, limit int) ([]*Analysis, error)

	// Fraud reports
	SaveReport(ctx context.Context, report *FraudReport) error
	ListReports(ctx context.Context, entity string, entityType EntityType) ([]*FraudReport, error)

	// Payee transaction history
	RecordPayeeTransaction(ctx context.Context, userID, payee string, amount float64, at time.Time) error
	GetPayeeStats(ctx context.Context, userID, payee string) (*PayeeStats, error)

	// Custom rule configuration
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)
	DeleteRuleConfig(ctx context.Context, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// PayeeStats summarizes a user's transaction history with one payee.
type PayeeStats struct {
	UserID        string    `json:"userId"`
	Payee         string    `json:"payee"`
	Count         int       `json:"count"`
	TotalAmount   float64   `json:"totalAmount"`
	AverageAmount float64   `json:"averageAmount"`
	MaxAmount     float64   `json:"maxAmount"`
	FirstSeen     time.Time `json:"firstSeen"`
	LastSeen      time.Time `json:"lastSeen"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
