// Package repository provides PostgreSQL persistence for family activity
// records and computed insights.
package repository

import (
	"context"
	"time"

	"github.com/kinloop/kinloop/internal/insight"
	"github.com/kinloop/kinloop/internal/stats"
)

// FamilyActivity is one family's raw activity, already scoped to the family
// and excluding soft-deleted children, ready to feed the aggregator.
type FamilyActivity struct {
	Tasks              []stats.TaskRecord
	Events             []stats.TaskEventRecord
	Redemptions        []stats.RedemptionRecord
	Children           []stats.ChildSummary
	OutcomeLinks       []stats.OutcomeLink
	ActiveOutcomeCount int
}

// ScopeFamily marks an insight computed over the whole roster; a per-child
// insight uses the child's id as scope.
const ScopeFamily = "family"

// InsightRecord is a stored insight keyed by (family, scope, week start).
type InsightRecord struct {
	FamilyID  string          `json:"family_id"`
	Scope     string          `json:"scope"`
	WeekStart time.Time       `json:"week_start"`
	Insight   insight.Insight `json:"insight"`
	CreatedAt time.Time       `json:"created_at"`
}

type FamilyRepository interface {
	GetFamilyActivity(ctx context.Context, familyID string) (*FamilyActivity, error)
	// SaveInsight stores a computed insight. It reports false without error
	// when an insight for the same key already exists; this conflict check is
	// the single point of deduplication for recomputation.
	SaveInsight(ctx context.Context, rec *InsightRecord) (bool, error)
	GetInsight(ctx context.Context, familyID, scope string, weekStart time.Time) (*InsightRecord, error)
	InsightExists(ctx context.Context, familyID, scope string, weekStart time.Time) (bool, error)
	Close() error
}
