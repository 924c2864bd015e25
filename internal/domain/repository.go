package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require classID for strict per-class isolation.
type Repository interface {
	// Raw record operations
	SaveGrade(ctx context.Context, classID string, grade *Grade) error
	SaveBehaviorEvent(ctx context.Context, classID string, event *BehaviorEvent) error
	GetStudentRecords(ctx context.Context, classID string, studentID string) (*RawStudent, error)
	ListStudentRecords(ctx context.Context, classID string) ([]*RawStudent, error)
	CountAbsences(ctx context.Context, classID string, studentID string, since time.Time) (int64, error)

	// Derived profile snapshots
	SaveProfile(ctx context.Context, classID string, student *Student) error
	GetProfile(ctx context.Context, classID string, studentID string) (*Student, error)

	// Alert rule configuration operations
	SaveAlertRule(ctx context.Context, classID string, rule *AlertRule) error
	GetAlertRule(ctx context.Context, classID string, ruleID string) (*AlertRule, error)
	ListAlertRules(ctx context.Context, classID string) ([]*AlertRule, error)

	// Intervention pattern configuration operations
	SaveAlertPattern(ctx context.Context, classID string, pattern *AlertPattern) error
	GetAlertPattern(ctx context.Context, classID string, patternID string) (*AlertPattern, error)
	ListAlertPatterns(ctx context.Context, classID string) ([]*AlertPattern, error)
	DeleteAlertPattern(ctx context.Context, classID string, patternID string) error

	// Flag decisions
	SaveFlag(ctx context.Context, classID string, flag *Flag) error
	GetFlag(ctx context.Context, classID string, flagID string) (*Flag, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
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
