package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaGrades = `
CREATE TABLE IF NOT EXISTS grades (
    id INTEGER PRIMARY KEY,
    class_id TEXT NOT NULL,
    student_id TEXT NOT NULL,
    student_name TEXT NOT NULL,
    subject TEXT NOT NULL,
    teacher TEXT NOT NULL,
    assignment TEXT,
    date TIMESTAMP NOT NULL,
    score REAL NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_grades_class ON grades(class_id);
CREATE INDEX IF NOT EXISTS idx_grades_student ON grades(class_id, student_id);
CREATE INDEX IF NOT EXISTS idx_grades_date ON grades(class_id, date);
`

const schemaBehaviorEvents = `
CREATE TABLE IF NOT EXISTS behavior_events (
    id TEXT PRIMARY KEY,
    class_id TEXT NOT NULL,
    student_id TEXT NOT NULL,
    student_name TEXT NOT NULL,
    date TIMESTAMP NOT NULL,
    type TEXT NOT NULL,
    category TEXT NOT NULL,
    teacher TEXT,
    subject TEXT,
    lesson_number INTEGER,
    justification TEXT,
    comment TEXT,
    is_absence INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_behavior_class ON behavior_events(class_id);
CREATE INDEX IF NOT EXISTS idx_behavior_student ON behavior_events(class_id, student_id);
CREATE INDEX IF NOT EXISTS idx_behavior_absence ON behavior_events(class_id, student_id, is_absence, date);
`

const schemaProfiles = `
CREATE TABLE IF NOT EXISTS profiles (
    class_id TEXT NOT NULL,
    student_id TEXT NOT NULL,
    student_name TEXT NOT NULL,
    profile TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (class_id, student_id)
);

CREATE INDEX IF NOT EXISTS idx_profiles_class ON profiles(class_id);
`

const schemaAlertRules = `
CREATE TABLE IF NOT EXISTS alert_rules (
    id TEXT NOT NULL,
    class_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, class_id, version)
);

CREATE INDEX IF NOT EXISTS idx_alert_rules_class ON alert_rules(class_id);
CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(class_id, enabled);
`

// schemaAlertPatterns defines the alert_patterns table.
// Patterns group multiple rules with weights to score named intervention
// shapes like chronic absenteeism.
const schemaAlertPatterns = `
CREATE TABLE IF NOT EXISTS alert_patterns (
    id TEXT NOT NULL,
    class_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    rules TEXT NOT NULL,
    alert_threshold REAL NOT NULL DEFAULT 0.6,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, class_id)
);

CREATE INDEX IF NOT EXISTS idx_alert_patterns_class ON alert_patterns(class_id);
CREATE INDEX IF NOT EXISTS idx_alert_patterns_enabled ON alert_patterns(class_id, enabled);
`

const schemaFlags = `
CREATE TABLE IF NOT EXISTS flags (
    id TEXT PRIMARY KEY,
    class_id TEXT NOT NULL,
    student_id TEXT NOT NULL,
    status TEXT NOT NULL,
    score REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    rule_results TEXT NOT NULL,
    pattern_results TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flags_class ON flags(class_id);
CREATE INDEX IF NOT EXISTS idx_flags_student ON flags(class_id, student_id);
CREATE INDEX IF NOT EXISTS idx_flags_status ON flags(class_id, status);
CREATE INDEX IF NOT EXISTS idx_flags_timestamp ON flags(class_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaGrades,
		schemaBehaviorEvents,
		schemaProfiles,
		schemaAlertRules,
		schemaAlertPatterns,
		schemaFlags,
	}
}
