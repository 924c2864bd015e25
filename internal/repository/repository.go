// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-edu/kestrel/internal/classify"
	"github.com/opensource-edu/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db         *sql.DB
	driver     string
	classifier classify.EventClassifier
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
		db:         db,
		driver:     cfg.Driver,
		classifier: classify.NewKeywordClassifier(),
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

// SaveGrade stores a grade record with class isolation.
func (r *SQLRepository) SaveGrade(ctx context.Context, classID string, grade *domain.Grade) error {
	if classID == "" {
		return fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO grades (
			class_id, student_id, student_name, subject, teacher,
			assignment, date, score, weight, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		classID, grade.StudentID, grade.StudentName,
		grade.Subject, grade.Teacher, grade.Assignment,
		grade.Date, grade.Score, grade.Weight,
		time.Now().UTC(),
	)
	return err
}

// SaveBehaviorEvent stores a behavior event with class isolation.
// The absence classification is resolved once at write time so absence
// counting stays a plain indexed query.
func (r *SQLRepository) SaveBehaviorEvent(ctx context.Context, classID string, event *domain.BehaviorEvent) error {
	if classID == "" {
		return fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	isAbsence := 0
	if event.Category == domain.CategoryNegative && r.classifier.IsAbsence(*event) {
		isAbsence = 1
	}

	query := `
		INSERT INTO behavior_events (
			id, class_id, student_id, student_name, date, type, category,
			teacher, subject, lesson_number, justification, comment,
			is_absence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		event.ID, classID, event.StudentID, event.StudentName,
		event.Date, event.Type, string(event.Category),
		event.Teacher, event.Subject, event.LessonNumber,
		event.Justification, event.Comment,
		isAbsence, time.Now().UTC(),
	)
	return err
}

// GetStudentRecords retrieves all raw records for one student.
func (r *SQLRepository) GetStudentRecords(ctx context.Context, classID string, studentID string) (*domain.RawStudent, error) {
	if classID == "" {
		return nil, fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	raw := &domain.RawStudent{ID: studentID}

	gradeQuery := `
		SELECT student_id, student_name, subject, teacher, assignment, date, score, weight
		FROM grades
		WHERE class_id = ? AND student_id = ?
		ORDER BY date
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(gradeQuery), classID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var g domain.Grade
		if err := rows.Scan(
			&g.StudentID, &g.StudentName, &g.Subject, &g.Teacher,
			&g.Assignment, &g.Date, &g.Score, &g.Weight,
		); err != nil {
			return nil, err
		}
		raw.Name = g.StudentName
		raw.Grades = append(raw.Grades, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	events, err := r.studentEvents(ctx, classID, studentID)
	if err != nil {
		return nil, err
	}
	raw.BehaviorEvents = events
	if raw.Name == "" && len(events) > 0 {
		raw.Name = events[0].StudentName
	}

	if len(raw.Grades) == 0 && len(raw.BehaviorEvents) == 0 {
		return nil, ErrNotFound
	}

	return raw, nil
}

func (r *SQLRepository) studentEvents(ctx context.Context, classID, studentID string) ([]domain.BehaviorEvent, error) {
	query := `
		SELECT id, student_id, student_name, date, type, category,
			   teacher, subject, lesson_number, justification, comment
		FROM behavior_events
		WHERE class_id = ? AND student_id = ?
		ORDER BY date
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), classID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.BehaviorEvent
	for rows.Next() {
		var e domain.BehaviorEvent
		var category string
		if err := rows.Scan(
			&e.ID, &e.StudentID, &e.StudentName, &e.Date, &e.Type, &category,
			&e.Teacher, &e.Subject, &e.LessonNumber, &e.Justification, &e.Comment,
		); err != nil {
			return nil, err
		}
		e.Category = domain.Category(category)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListStudentRecords retrieves raw records for every student in a class.
func (r *SQLRepository) ListStudentRecords(ctx context.Context, classID string) ([]*domain.RawStudent, error) {
	if classID == "" {
		return nil, fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	byStudent := make(map[string]*domain.RawStudent)
	var order []string

	lookup := func(id, name string) *domain.RawStudent {
		raw, ok := byStudent[id]
		if !ok {
			raw = &domain.RawStudent{ID: id}
			byStudent[id] = raw
			order = append(order, id)
		}
		if raw.Name == "" {
			raw.Name = name
		}
		return raw
	}

	gradeQuery := `
		SELECT student_id, student_name, subject, teacher, assignment, date, score, weight
		FROM grades
		WHERE class_id = ?
		ORDER BY student_id, date
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(gradeQuery), classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var g domain.Grade
		if err := rows.Scan(
			&g.StudentID, &g.StudentName, &g.Subject, &g.Teacher,
			&g.Assignment, &g.Date, &g.Score, &g.Weight,
		); err != nil {
			return nil, err
		}
		raw := lookup(g.StudentID, g.StudentName)
		raw.Grades = append(raw.Grades, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	eventQuery := `
		SELECT id, student_id, student_name, date, type, category,
			   teacher, subject, lesson_number, justification, comment
		FROM behavior_events
		WHERE class_id = ?
		ORDER BY student_id, date
	`
	eventRows, err := r.db.QueryContext(ctx, r.rebind(eventQuery), classID)
	if err != nil {
		return nil, err
	}
	defer eventRows.Close()

	for eventRows.Next() {
		var e domain.BehaviorEvent
		var category string
		if err := eventRows.Scan(
			&e.ID, &e.StudentID, &e.StudentName, &e.Date, &e.Type, &category,
			&e.Teacher, &e.Subject, &e.LessonNumber, &e.Justification, &e.Comment,
		); err != nil {
			return nil, err
		}
		e.Category = domain.Category(category)
		raw := lookup(e.StudentID, e.StudentName)
		raw.BehaviorEvents = append(raw.BehaviorEvents, e)
	}
	if err := eventRows.Err(); err != nil {
		return nil, err
	}

	students := make([]*domain.RawStudent, 0, len(order))
	for _, id := range order {
		students = append(students, byStudent[id])
	}
	return students, nil
}

// CountAbsences counts a student's absence events since the given time.
func (r *SQLRepository) CountAbsences(ctx context.Context, classID string, studentID string, since time.Time) (int64, error) {
	if classID == "" {
		return 0, fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM behavior_events
		WHERE class_id = ? AND student_id = ? AND is_absence = 1 AND date >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), classID, studentID, since).Scan(&count)
	return count, err
}

// SaveProfile stores a derived profile snapshot with class isolation.
func (r *SQLRepository) SaveProfile(ctx context.Context, classID string, student *domain.Student) error {
	if classID == "" {
		return fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	profile, err := json.Marshal(student)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	query := `
		INSERT INTO profiles (class_id, student_id, student_name, profile, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(class_id, student_id) DO UPDATE SET
			student_name = excluded.student_name,
			profile = excluded.profile,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		classID, student.ID, student.Name, string(profile), time.Now().UTC(),
	)
	return err
}

// GetProfile retrieves the latest derived profile snapshot.
func (r *SQLRepository) GetProfile(ctx context.Context, classID string, studentID string) (*domain.Student, error) {
	if classID == "" {
		return nil, fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	query := `
		SELECT profile FROM profiles
		WHERE class_id = ? AND student_id = ?
	`

	var profile string
	err := r.db.QueryRowContext(ctx, r.rebind(query), classID, studentID).Scan(&profile)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var student domain.Student
	if err := json.Unmarshal([]byte(profile), &student); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	return &student, nil
}

// SaveAlertRule stores an alert rule configuration with class isolation.
func (r *SQLRepository) SaveAlertRule(ctx context.Context, classID string, rule *domain.AlertRule) error {
	if classID == "" {
		return fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO alert_rules (
			id, class_id, name, description, version, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, class_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, classID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), rule.Weight, enabled,
		now, now,
	)
	return err
}

// GetAlertRule retrieves an alert rule configuration with class isolation.
func (r *SQLRepository) GetAlertRule(ctx context.Context, classID string, ruleID string) (*domain.AlertRule, error) {
	if classID == "" {
		return nil, fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, class_id, name, description, version, expression, bands, weight, enabled
		FROM alert_rules
		WHERE class_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.AlertRule
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), classID, ruleID).Scan(
		&cfg.ID, &cfg.ClassID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &bands, &cfg.Weight, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &cfg.Bands)

	return &cfg, nil
}

// ListAlertRules retrieves all active alert rules for a class.
func (r *SQLRepository) ListAlertRules(ctx context.Context, classID string) ([]*domain.AlertRule, error) {
	if classID == "" {
		return nil, fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, class_id, name, description, version, expression, bands, weight, enabled
		FROM alert_rules
		WHERE class_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.AlertRule
	for rows.Next() {
		var cfg domain.AlertRule
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.ClassID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &bands, &cfg.Weight, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// SaveAlertPattern stores an intervention pattern with class isolation.
func (r *SQLRepository) SaveAlertPattern(ctx context.Context, classID string, pattern *domain.AlertPattern) error {
	if classID == "" {
		return fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	rules, _ := json.Marshal(pattern.Rules)

	enabled := 0
	if pattern.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO alert_patterns (
			id, class_id, name, description, rules, alert_threshold, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, class_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			rules = excluded.rules,
			alert_threshold = excluded.alert_threshold,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		pattern.ID, classID, pattern.Name, pattern.Description,
		string(rules), pattern.AlertThreshold, enabled,
		now, now,
	)
	return err
}

// GetAlertPattern retrieves an intervention pattern with class isolation.
func (r *SQLRepository) GetAlertPattern(ctx context.Context, classID string, patternID string) (*domain.AlertPattern, error) {
	if classID == "" {
		return nil, fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, class_id, name, description, rules, alert_threshold, enabled
		FROM alert_patterns
		WHERE class_id = ? AND id = ? AND enabled = 1
	`

	var p domain.AlertPattern
	var rules string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), classID, patternID).Scan(
		&p.ID, &p.ClassID, &p.Name, &p.Description,
		&rules, &p.AlertThreshold, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(rules), &p.Rules); err != nil {
		return nil, fmt.Errorf("failed to parse pattern rules: %w", err)
	}

	return &p, nil
}

// ListAlertPatterns retrieves all active intervention patterns for a class.
func (r *SQLRepository) ListAlertPatterns(ctx context.Context, classID string) ([]*domain.AlertPattern, error) {
	if classID == "" {
		return nil, fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, class_id, name, description, rules, alert_threshold, enabled
		FROM alert_patterns
		WHERE class_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []*domain.AlertPattern
	for rows.Next() {
		var p domain.AlertPattern
		var rules string
		var enabled int

		if err := rows.Scan(
			&p.ID, &p.ClassID, &p.Name, &p.Description,
			&rules, &p.AlertThreshold, &enabled,
		); err != nil {
			return nil, err
		}

		p.Enabled = enabled == 1
		if err := json.Unmarshal([]byte(rules), &p.Rules); err != nil {
			return nil, fmt.Errorf("failed to parse pattern rules for %s: %w", p.ID, err)
		}
		patterns = append(patterns, &p)
	}

	return patterns, rows.Err()
}

// DeleteAlertPattern soft-deletes a pattern by setting enabled = 0.
func (r *SQLRepository) DeleteAlertPattern(ctx context.Context, classID string, patternID string) error {
	if classID == "" {
		return fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	query := `
		UPDATE alert_patterns
		SET enabled = 0, updated_at = ?
		WHERE class_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), classID, patternID)
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

// SaveFlag stores a flag decision with class isolation.
func (r *SQLRepository) SaveFlag(ctx context.Context, classID string, flag *domain.Flag) error {
	if classID == "" {
		return fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	ruleResults, _ := json.Marshal(flag.RuleResults)
	patternResults, _ := json.Marshal(flag.PatternResults)
	metadata, _ := json.Marshal(flag.Metadata)

	query := `
		INSERT INTO flags (
			id, class_id, student_id, status, score, timestamp,
			rule_results, pattern_results, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		flag.ID, classID, flag.StudentID, flag.Status, flag.Score, flag.Timestamp,
		string(ruleResults), string(patternResults), string(metadata),
	)
	return err
}

// GetFlag retrieves a flag decision by ID with class isolation.
func (r *SQLRepository) GetFlag(ctx context.Context, classID string, flagID string) (*domain.Flag, error) {
	if classID == "" {
		return nil, fmt.Errorf("%w: classID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, class_id, student_id, status, score, timestamp,
			   rule_results, pattern_results, metadata
		FROM flags
		WHERE class_id = ? AND id = ?
	`

	var flag domain.Flag
	var ruleResults, patternResults, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), classID, flagID).Scan(
		&flag.ID, &flag.ClassID, &flag.StudentID, &flag.Status, &flag.Score, &flag.Timestamp,
		&ruleResults, &patternResults, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(ruleResults), &flag.RuleResults)
	json.Unmarshal([]byte(patternResults), &flag.PatternResults)
	json.Unmarshal([]byte(metadata), &flag.Metadata)

	return &flag, nil
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

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
