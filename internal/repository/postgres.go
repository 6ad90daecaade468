package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/kinloop/kinloop/internal/insight"
	"github.com/kinloop/kinloop/internal/stats"
	_ "github.com/lib/pq"
)

type PostgresFamilyRepository struct {
	db *sql.DB
}

func NewPostgresFamilyRepository(connectionString string) (*PostgresFamilyRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresFamilyRepository{db: db}, nil
}

func (r *PostgresFamilyRepository) GetFamilyActivity(ctx context.Context, familyID string) (*FamilyActivity, error) {
	activity := &FamilyActivity{}

	var err error
	if activity.Tasks, err = r.getTasks(ctx, familyID); err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	if activity.Events, err = r.getEvents(ctx, familyID); err != nil {
		return nil, fmt.Errorf("failed to load task events: %w", err)
	}
	if activity.Redemptions, err = r.getRedemptions(ctx, familyID); err != nil {
		return nil, fmt.Errorf("failed to load redemptions: %w", err)
	}
	if activity.Children, err = r.getChildren(ctx, familyID); err != nil {
		return nil, fmt.Errorf("failed to load children: %w", err)
	}
	if activity.OutcomeLinks, err = r.getOutcomeLinks(ctx, familyID); err != nil {
		return nil, fmt.Errorf("failed to load outcome links: %w", err)
	}
	if activity.ActiveOutcomeCount, err = r.getActiveOutcomeCount(ctx, familyID); err != nil {
		return nil, fmt.Errorf("failed to count active outcomes: %w", err)
	}

	return activity, nil
}

func (r *PostgresFamilyRepository) getTasks(ctx context.Context, familyID string) ([]stats.TaskRecord, error) {
	query := `
		SELECT t.id, t.child_id, t.status, t.reward_minutes, t.created_at
		FROM assigned_tasks t
		JOIN children c ON c.id = t.child_id
		WHERE t.family_id = $1 AND c.deleted_at IS NULL
		ORDER BY t.created_at
	`
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var tasks []stats.TaskRecord
	for rows.Next() {
		var t stats.TaskRecord
		if err := rows.Scan(&t.ID, &t.ChildID, &t.Status, &t.RewardMinutes, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *PostgresFamilyRepository) getEvents(ctx context.Context, familyID string) ([]stats.TaskEventRecord, error) {
	query := `
		SELECT e.assigned_task_id, e.event_type, e.created_at
		FROM task_events e
		JOIN assigned_tasks t ON t.id = e.assigned_task_id
		WHERE t.family_id = $1
		ORDER BY e.created_at
	`
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var events []stats.TaskEventRecord
	for rows.Next() {
		var e stats.TaskEventRecord
		if err := rows.Scan(&e.AssignedTaskID, &e.EventType, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PostgresFamilyRepository) getRedemptions(ctx context.Context, familyID string) ([]stats.RedemptionRecord, error) {
	query := `
		SELECT rd.child_id, rd.minutes_spent, rd.created_at
		FROM redemptions rd
		JOIN children c ON c.id = rd.child_id
		WHERE rd.family_id = $1 AND c.deleted_at IS NULL
		ORDER BY rd.created_at
	`
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var redemptions []stats.RedemptionRecord
	for rows.Next() {
		var rd stats.RedemptionRecord
		if err := rows.Scan(&rd.ChildID, &rd.MinutesSpent, &rd.CreatedAt); err != nil {
			return nil, err
		}
		redemptions = append(redemptions, rd)
	}
	return redemptions, rows.Err()
}

func (r *PostgresFamilyRepository) getChildren(ctx context.Context, familyID string) ([]stats.ChildSummary, error) {
	query := `
		SELECT id, name
		FROM children
		WHERE family_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var children []stats.ChildSummary
	for rows.Next() {
		var c stats.ChildSummary
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return children, rows.Err()
}

func (r *PostgresFamilyRepository) getOutcomeLinks(ctx context.Context, familyID string) ([]stats.OutcomeLink, error) {
	query := `
		SELECT l.assigned_task_id, l.outcome_id
		FROM task_outcome_links l
		JOIN assigned_tasks t ON t.id = l.assigned_task_id
		WHERE t.family_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var links []stats.OutcomeLink
	for rows.Next() {
		var l stats.OutcomeLink
		if err := rows.Scan(&l.AssignedTaskID, &l.OutcomeID); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *PostgresFamilyRepository) getActiveOutcomeCount(ctx context.Context, familyID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM outcomes
		WHERE family_id = $1 AND archived_at IS NULL
	`, familyID).Scan(&count)
	return count, err
}

func (r *PostgresFamilyRepository) SaveInsight(ctx context.Context, rec *InsightRecord) (bool, error) {
	query := `
		INSERT INTO family_insights (
			family_id, scope, week_start,
			title, observation, diagnosis, recommendation, expected_result, next_check,
			impact_score, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (family_id, scope, week_start) DO NOTHING
	`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(
		ctx,
		query,
		rec.FamilyID,
		rec.Scope,
		rec.WeekStart,
		rec.Insight.Title,
		rec.Insight.Observation,
		rec.Insight.Diagnosis,
		rec.Insight.Recommendation,
		rec.Insight.ExpectedResult,
		rec.Insight.NextCheck,
		rec.Insight.ImpactScore,
		createdAt,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PostgresFamilyRepository) GetInsight(ctx context.Context, familyID, scope string, weekStart time.Time) (*InsightRecord, error) {
	query := `
		SELECT family_id, scope, week_start,
		       title, observation, diagnosis, recommendation, expected_result, next_check,
		       impact_score, created_at
		FROM family_insights
		WHERE family_id = $1 AND scope = $2 AND week_start = $3
	`

	rec := &InsightRecord{Insight: insight.Insight{}}
	err := r.db.QueryRowContext(ctx, query, familyID, scope, weekStart).Scan(
		&rec.FamilyID,
		&rec.Scope,
		&rec.WeekStart,
		&rec.Insight.Title,
		&rec.Insight.Observation,
		&rec.Insight.Diagnosis,
		&rec.Insight.Recommendation,
		&rec.Insight.ExpectedResult,
		&rec.Insight.NextCheck,
		&rec.Insight.ImpactScore,
		&rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *PostgresFamilyRepository) InsightExists(ctx context.Context, familyID, scope string, weekStart time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM family_insights
			WHERE family_id = $1 AND scope = $2 AND week_start = $3
		)
	`, familyID, scope, weekStart).Scan(&exists)
	return exists, err
}

func (r *PostgresFamilyRepository) Close() error {
	return r.db.Close()
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		log.Printf("failed to close rows: %v", err)
	}
}
