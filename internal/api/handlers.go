// Package api exposes the HTTP surface for family metrics and insights.
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kinloop/kinloop/internal/dashboard"
	"github.com/kinloop/kinloop/internal/httputil"
	"github.com/kinloop/kinloop/internal/insight"
	"github.com/kinloop/kinloop/internal/metrics"
	"github.com/kinloop/kinloop/internal/queue"
	"github.com/kinloop/kinloop/internal/repository"
	"github.com/kinloop/kinloop/internal/stats"
	"github.com/kinloop/kinloop/internal/timewindow"
)

type API struct {
	repo  repository.FamilyRepository
	queue *queue.Queue
	mux   *http.ServeMux
	now   func() time.Time
}

type RecomputeRequest struct {
	Range   string `json:"range"`
	ChildID string `json:"child_id"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// InsightResponse wraps an insight with its week key and whether it was
// served from storage or computed for this request.
type InsightResponse struct {
	FamilyID  string          `json:"family_id"`
	Scope     string          `json:"scope"`
	WeekStart time.Time       `json:"week_start"`
	Insight   insight.Insight `json:"insight"`
	Stored    bool            `json:"stored"`
}

func NewAPI(repo repository.FamilyRepository, q *queue.Queue) *API {
	api := &API{
		repo:  repo,
		queue: q,
		mux:   http.NewServeMux(),
		now:   time.Now,
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/api/families/", a.handleFamilies)
	a.mux.HandleFunc("/api/jobs", a.listJobs)
	a.mux.HandleFunc("/api/jobs/", a.handleJobByID)

	dash := dashboard.NewDashboard(a.queue)
	a.mux.HandleFunc("/api/jobs/stats", dash.GetStats)
	a.mux.HandleFunc("/api/jobs/history", dash.GetRecentJobs)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) handleFamilies(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/families/")
	familyID, op, _ := strings.Cut(rest, "/")
	if familyID == "" {
		httputil.WriteJSONError(w, "Family ID is required", http.StatusBadRequest)
		return
	}

	switch {
	case op == "metrics" && r.Method == http.MethodGet:
		a.getMetrics(w, r, familyID)
	case op == "insight" && r.Method == http.MethodGet:
		a.getInsight(w, r, familyID)
	case op == "insight/recompute" && r.Method == http.MethodPost:
		a.recomputeInsight(w, r, familyID)
	case op == "metrics" || op == "insight" || op == "insight/recompute":
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		httputil.WriteJSONError(w, "Not found", http.StatusNotFound)
	}
}

func (a *API) getMetrics(w http.ResponseWriter, r *http.Request, familyID string) {
	q := r.URL.Query()
	now := a.now()

	activity, err := a.repo.GetFamilyActivity(r.Context(), familyID)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	pair := timewindow.Resolve(
		timewindow.ParseRangeKind(q.Get("range")),
		customRangeFromQuery(q.Get("start"), q.Get("end")),
		now,
	)

	snap := stats.Aggregate(stats.Input{
		Tasks:              activity.Tasks,
		Events:             activity.Events,
		Redemptions:        activity.Redemptions,
		Children:           activity.Children,
		OutcomeLinks:       activity.OutcomeLinks,
		ActiveOutcomeCount: activity.ActiveOutcomeCount,
		ChildFilter:        q.Get("child_id"),
	}, pair, now)

	httputil.WriteJSON(w, http.StatusOK, snap)
}

// getInsight serves the stored insight for the current week, computing one on
// the fly when nothing is stored yet. On-the-fly results are not persisted;
// persistence goes through the recompute job.
func (a *API) getInsight(w http.ResponseWriter, r *http.Request, familyID string) {
	now := a.now()
	weekStart := timewindow.StartOfWeek(now)

	scope := repository.ScopeFamily
	if childID := r.URL.Query().Get("child_id"); childID != "" {
		scope = childID
	}

	rec, err := a.repo.GetInsight(r.Context(), familyID, scope, weekStart)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec != nil {
		httputil.WriteJSON(w, http.StatusOK, InsightResponse{
			FamilyID:  rec.FamilyID,
			Scope:     rec.Scope,
			WeekStart: rec.WeekStart,
			Insight:   rec.Insight,
			Stored:    true,
		})
		return
	}

	activity, err := a.repo.GetFamilyActivity(r.Context(), familyID)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	childFilter := ""
	if scope != repository.ScopeFamily {
		childFilter = scope
	}

	pair := timewindow.Resolve(timewindow.ThisWeek, nil, now)
	snap := stats.Aggregate(stats.Input{
		Tasks:              activity.Tasks,
		Events:             activity.Events,
		Redemptions:        activity.Redemptions,
		Children:           activity.Children,
		OutcomeLinks:       activity.OutcomeLinks,
		ActiveOutcomeCount: activity.ActiveOutcomeCount,
		ChildFilter:        childFilter,
	}, pair, now)

	ins := insight.Synthesize(snap, activity.Children)
	if insight.NeedsSanitizationAny(ins) {
		metrics.RecordSanitizerLeak()
		ins = insight.Generic()
	}

	httputil.WriteJSON(w, http.StatusOK, InsightResponse{
		FamilyID:  familyID,
		Scope:     scope,
		WeekStart: weekStart,
		Insight:   ins,
		Stored:    false,
	})
}

func (a *API) recomputeInsight(w http.ResponseWriter, r *http.Request, familyID string) {
	var req RecomputeRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	}

	payload := map[string]any{"family_id": familyID}
	if req.Range != "" {
		payload["range"] = req.Range
	}
	if req.ChildID != "" {
		payload["child_id"] = req.ChildID
	}
	if req.Start != "" {
		payload["start"] = req.Start
	}
	if req.End != "" {
		payload["end"] = req.End
	}

	job := queue.NewJob(queue.JobComputeInsight, payload, queue.PriorityHigh)
	if err := a.queue.Enqueue(job); err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	metrics.RecordJobEnqueued(job.Type, job.Priority)

	httputil.WriteJSON(w, http.StatusAccepted, job)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs, err := a.queue.GetAllJobs()
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, jobs)
}

func (a *API) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" {
		httputil.WriteJSONError(w, "Job ID is required", http.StatusBadRequest)
		return
	}

	job, err := a.queue.GetJob(jobID)
	if err != nil {
		httputil.WriteJSONError(w, "Job not found", http.StatusNotFound)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, job)
}

func customRangeFromQuery(start, end string) *timewindow.CustomRange {
	if start == "" || end == "" {
		return nil
	}

	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return nil
	}

	return &timewindow.CustomRange{Start: &s, End: &e}
}
