package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require classID for strict per-class isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, classID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, classID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, classID string, key string) error

	// GetProfile retrieves a cached derived profile summary.
	GetProfile(ctx context.Context, classID string, studentID string) (*ProfileCache, error)

	// SetProfile caches the derived profile summary for a student.
	SetProfile(ctx context.Context, classID string, studentID string, data *ProfileCache, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for record ingest rate tracking.
	IncrementCounter(ctx context.Context, classID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ProfileCache holds the cached summary of a derived student profile.
type ProfileCache struct {
	StudentID     string  `json:"studentId"`
	AverageScore  float64 `json:"avgScore"`
	RiskScore     float64 `json:"riskScore"`
	RiskLevel     string  `json:"riskLevel"`
	GradeTrend    string  `json:"gradeTrend"`
	BehaviorTrend string  `json:"behaviorTrend"`
	NegativeCount int     `json:"negativeCount"`
	PositiveCount int     `json:"positiveCount"`
	ComputedAt    string  `json:"computedAt"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
