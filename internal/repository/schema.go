package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaLearningState = `
CREATE TABLE IF NOT EXISTS learning_state (
    id INTEGER PRIMARY KEY,
    state TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    signal TEXT NOT NULL,
    platform TEXT NOT NULL,
    entity TEXT,
    score REAL NOT NULL,
    level TEXT NOT NULL,
    action TEXT NOT NULL,
    findings TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_user ON analyses(user_id);
CREATE INDEX IF NOT EXISTS idx_analyses_entity ON analyses(entity);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
`

const schemaFraudReports = `
CREATE TABLE IF NOT EXISTS fraud_reports (
    id TEXT PRIMARY KEY,
    entity TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    user_id TEXT NOT NULL,
    category TEXT,
    details TEXT,
    amount_lost REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_reports_entity ON fraud_reports(entity, entity_type);
CREATE INDEX IF NOT EXISTS idx_fraud_reports_user ON fraud_reports(user_id);
`

const schemaPayeeHistory = `
CREATE TABLE IF NOT EXISTS payee_history (
    user_id TEXT NOT NULL,
    payee TEXT NOT NULL,
    amount REAL NOT NULL,
    transacted_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payee_history_pair ON payee_history(user_id, payee);
CREATE INDEX IF NOT EXISTS idx_payee_history_time ON payee_history(user_id, transacted_at);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    signals TEXT,
    score REAL NOT NULL DEFAULT 0,
    finding TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaLearningState,
		schemaAnalyses,
		schemaFraudReports,
		schemaPayeeHistory,
		schemaRuleConfigs,
	}
}
