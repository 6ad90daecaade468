// Package handlers provides job handlers for the worker.
// Each handler implements the business logic for a specific job type
// and can be registered with the worker to process jobs from the queue.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kinloop/kinloop/internal/insight"
	"github.com/kinloop/kinloop/internal/metrics"
	"github.com/kinloop/kinloop/internal/queue"
	"github.com/kinloop/kinloop/internal/repository"
	"github.com/kinloop/kinloop/internal/stats"
	"github.com/kinloop/kinloop/internal/timewindow"
)

type InsightPayload struct {
	FamilyID string `json:"family_id"`
	Range    string `json:"range"`
	ChildID  string `json:"child_id"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

type InsightComputer struct {
	repo repository.FamilyRepository
	now  func() time.Time
}

func NewInsightComputer(repo repository.FamilyRepository) *InsightComputer {
	return &InsightComputer{repo: repo, now: time.Now}
}

func (ic *InsightComputer) ComputeInsightHandler(ctx context.Context, job *queue.Job) error {
	payload, err := parseInsightPayload(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	now := ic.now()
	start := time.Now()

	activity, err := ic.repo.GetFamilyActivity(ctx, payload.FamilyID)
	if err != nil {
		return fmt.Errorf("failed to load family activity: %w", err)
	}

	pair := timewindow.Resolve(timewindow.ParseRangeKind(payload.Range), parseCustomRange(payload), now)

	snap := stats.Aggregate(stats.Input{
		Tasks:              activity.Tasks,
		Events:             activity.Events,
		Redemptions:        activity.Redemptions,
		Children:           activity.Children,
		OutcomeLinks:       activity.OutcomeLinks,
		ActiveOutcomeCount: activity.ActiveOutcomeCount,
		ChildFilter:        payload.ChildID,
	}, pair, now)

	ins := insight.Synthesize(snap, activity.Children)
	if insight.NeedsSanitizationAny(ins) {
		log.Printf("[Job %s] Identifier survived sanitization, substituting generic insight", job.ID)
		metrics.RecordSanitizerLeak()
		ins = insight.Generic()
	}

	scope := repository.ScopeFamily
	if payload.ChildID != "" {
		scope = payload.ChildID
	}

	inserted, err := ic.repo.SaveInsight(ctx, &repository.InsightRecord{
		FamilyID:  payload.FamilyID,
		Scope:     scope,
		WeekStart: timewindow.StartOfWeek(now),
		Insight:   ins,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to save insight: %w", err)
	}
	if !inserted {
		log.Printf("[Job %s] Insight for family %s already exists, skipping", job.ID, payload.FamilyID)
		return nil
	}

	metrics.RecordInsightComputed(insight.RuleName(snap), time.Since(start))
	log.Printf("[Job %s] Insight computed for family %s (rule: %s)", job.ID, payload.FamilyID, insight.RuleName(snap))
	return nil
}

func parseInsightPayload(payload map[string]any) (*InsightPayload, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var ip InsightPayload
	if err := json.Unmarshal(data, &ip); err != nil {
		return nil, err
	}

	if ip.FamilyID == "" {
		return nil, errors.New("missing required field: family_id")
	}

	return &ip, nil
}

// parseCustomRange returns nil unless both bounds parse; the resolver falls
// back to the current week for incomplete custom ranges anyway.
func parseCustomRange(payload *InsightPayload) *timewindow.CustomRange {
	if payload.Start == "" || payload.End == "" {
		return nil
	}

	start, err := time.Parse("2006-01-02", payload.Start)
	if err != nil {
		return nil
	}
	end, err := time.Parse("2006-01-02", payload.End)
	if err != nil {
		return nil
	}

	return &timewindow.CustomRange{Start: &start, End: &end}
}
