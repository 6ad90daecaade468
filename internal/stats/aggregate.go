package stats

import (
	"math"
	"time"

	"github.com/kinloop/kinloop/internal/timewindow"
)

const (
	// Tasks created at or after this hour count toward the evening subset.
	eveningHourBoundary = 17

	defaultDailyGoal = 1

	// Approvals later than this after completion no longer count as on time.
	onTimeLatencyLimitMinutes = 24 * 60

	dailySeriesDays = 7
)

// KPIDelta is a period-over-period comparison of one metric.
type KPIDelta struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	Delta    float64 `json:"delta"`
	DeltaPct int     `json:"delta_pct"`
	Trend    Trend   `json:"trend"`
}

// WindowStats holds the raw counts and rates for one window.
type WindowStats struct {
	AssignedCount   int     `json:"assigned_count"`
	CompletedCount  int     `json:"completed_count"`
	CompletionRate  float64 `json:"completion_rate"`
	MinutesEarned   int     `json:"minutes_earned"`
	MinutesRedeemed int     `json:"minutes_redeemed"`
}

// ChildSnapshot holds one child's windowed stats plus the trailing-week
// activity signals, which follow "now" rather than the selected window.
type ChildSnapshot struct {
	ChildID               string      `json:"child_id"`
	Name                  string      `json:"name"`
	Current               WindowStats `json:"current"`
	Previous              WindowStats `json:"previous"`
	ConsistencyDaysActive int         `json:"consistency_days_active"`
	ConsistencyBand       Band        `json:"consistency_band"`
	MomentumDelta         int         `json:"momentum_delta"`
	Momentum              Momentum    `json:"momentum"`
}

// DayStat is one point of the charting series.
type DayStat struct {
	Date            string `json:"date"`
	TasksCompleted  int    `json:"tasks_completed"`
	MinutesEarned   int    `json:"minutes_earned"`
	MinutesRedeemed int    `json:"minutes_redeemed"`
	MetGoal         bool   `json:"met_goal"`
}

// Snapshot is the aggregated view of one family (or one child) over a window
// pair. It is immutable once produced and safe to serialize.
type Snapshot struct {
	Window   timewindow.Pair `json:"window"`
	Current  WindowStats     `json:"current"`
	Previous WindowStats     `json:"previous"`

	CompletedDelta       KPIDelta `json:"completed_delta"`
	CompletionRateDelta  KPIDelta `json:"completion_rate_delta"`
	MinutesEarnedDelta   KPIDelta `json:"minutes_earned_delta"`
	MinutesRedeemedDelta KPIDelta `json:"minutes_redeemed_delta"`

	ApprovalsCount            int     `json:"approvals_count"`
	ApprovalLatencyAvgMinutes float64 `json:"approval_latency_avg_minutes"`
	OnTimeRate                float64 `json:"on_time_rate"`
	EveningSlumpScore         float64 `json:"evening_slump_score"`
	MissingOutcomeRate        float64 `json:"missing_outcome_rate"`

	TopContributingChildID   string `json:"top_contributing_child_id,omitempty"`
	TopContributingChildName string `json:"top_contributing_child_name,omitempty"`

	Children []ChildSnapshot `json:"children"`
	Daily    []DayStat       `json:"daily"`
}

// Aggregate computes a snapshot for one family over the given window pair.
// now anchors the trailing-week consistency and momentum signals, which are
// independent of the selected window.
func Aggregate(in Input, pair timewindow.Pair, now time.Time) *Snapshot {
	tasks := in.Tasks
	redemptions := in.Redemptions
	children := in.Children
	if in.ChildFilter != "" {
		tasks = filterTasksByChild(tasks, in.ChildFilter)
		redemptions = filterRedemptionsByChild(redemptions, in.ChildFilter)
		children = filterChildren(children, in.ChildFilter)
	}

	snap := &Snapshot{
		Window:   pair,
		Current:  windowStats(tasks, redemptions, pair.Current),
		Previous: windowStats(tasks, redemptions, pair.Previous),
	}

	snap.CompletedDelta = kpiDelta(float64(snap.Current.CompletedCount), float64(snap.Previous.CompletedCount))
	snap.CompletionRateDelta = kpiDelta(snap.Current.CompletionRate, snap.Previous.CompletionRate)
	snap.MinutesEarnedDelta = kpiDelta(float64(snap.Current.MinutesEarned), float64(snap.Previous.MinutesEarned))
	snap.MinutesRedeemedDelta = kpiDelta(float64(snap.Current.MinutesRedeemed), float64(snap.Previous.MinutesRedeemed))

	snap.ApprovalsCount, snap.ApprovalLatencyAvgMinutes, snap.OnTimeRate = approvalLatency(tasks, in.Events, pair.Current)
	snap.EveningSlumpScore = eveningSlump(tasks, pair.Current)
	snap.MissingOutcomeRate = missingOutcomeRate(tasks, in.OutcomeLinks, in.ActiveOutcomeCount, pair.Current)

	snap.Children = childSnapshots(children, tasks, redemptions, pair, now)
	snap.TopContributingChildID, snap.TopContributingChildName = topContributor(children, tasks, pair.Current)

	goal := in.DailyGoal
	if goal <= 0 {
		goal = defaultDailyGoal
	}
	snap.Daily = dailySeries(tasks, redemptions, pair.Current.End, goal)

	return snap
}

func windowStats(tasks []TaskRecord, redemptions []RedemptionRecord, w timewindow.Window) WindowStats {
	var s WindowStats
	for _, t := range tasks {
		if !w.Contains(t.CreatedAt) {
			continue
		}
		s.AssignedCount++
		if t.Status == StatusApproved {
			s.CompletedCount++
			s.MinutesEarned += t.RewardMinutes
		}
	}
	for _, r := range redemptions {
		if w.Contains(r.CreatedAt) {
			s.MinutesRedeemed += r.MinutesSpent
		}
	}
	s.CompletionRate = safeRate(s.CompletedCount, s.AssignedCount)
	return s
}

func kpiDelta(current, previous float64) KPIDelta {
	delta := current - previous
	var pct int
	switch {
	case previous > 0:
		pct = int(math.Round(100 * delta / previous))
	case current > 0:
		pct = 100
	}
	return KPIDelta{
		Current:  current,
		Previous: previous,
		Delta:    delta,
		DeltaPct: pct,
		Trend:    KPITrend(delta),
	}
}

// approvalLatency pairs each task's completed and approved events inside the
// window. Non-positive gaps are discarded as clock-skew noise.
func approvalLatency(tasks []TaskRecord, events []TaskEventRecord, w timewindow.Window) (approvals int, avgMinutes, onTimeRate float64) {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	completedAt := make(map[string]time.Time)
	approvedAt := make(map[string]time.Time)
	for _, e := range events {
		if !known[e.AssignedTaskID] || !w.Contains(e.CreatedAt) {
			continue
		}
		switch e.EventType {
		case EventCompleted:
			if prev, ok := completedAt[e.AssignedTaskID]; !ok || e.CreatedAt.Before(prev) {
				completedAt[e.AssignedTaskID] = e.CreatedAt
			}
		case EventApproved:
			if prev, ok := approvedAt[e.AssignedTaskID]; !ok || e.CreatedAt.Before(prev) {
				approvedAt[e.AssignedTaskID] = e.CreatedAt
			}
		}
	}

	approvals = len(approvedAt)

	var total float64
	var pairs, onTime int
	for taskID, approved := range approvedAt {
		completed, ok := completedAt[taskID]
		if !ok {
			continue
		}
		latency := approved.Sub(completed).Minutes()
		if latency <= 0 {
			continue
		}
		total += latency
		pairs++
		if latency <= onTimeLatencyLimitMinutes {
			onTime++
		}
	}

	if pairs == 0 {
		return approvals, 0, 0
	}
	return approvals, total / float64(pairs), safeRate(onTime, pairs)
}

// eveningSlump measures the completion-rate drop for tasks created at or after
// the evening boundary versus earlier in the day. Zero when either subset is
// empty, since a one-sided day proves nothing.
func eveningSlump(tasks []TaskRecord, w timewindow.Window) float64 {
	var morningTotal, morningDone, eveningTotal, eveningDone int
	for _, t := range tasks {
		if !w.Contains(t.CreatedAt) {
			continue
		}
		done := t.Status == StatusApproved
		if t.CreatedAt.Hour() < eveningHourBoundary {
			morningTotal++
			if done {
				morningDone++
			}
		} else {
			eveningTotal++
			if done {
				eveningDone++
			}
		}
	}

	if morningTotal == 0 || eveningTotal == 0 {
		return 0
	}

	morningRate := safeRate(morningDone, morningTotal)
	eveningRate := safeRate(eveningDone, eveningTotal)
	return clamp(100*(morningRate-eveningRate), 0, 100)
}

func missingOutcomeRate(tasks []TaskRecord, links []OutcomeLink, activeOutcomes int, w timewindow.Window) float64 {
	if activeOutcomes == 0 {
		return 0
	}

	linked := make(map[string]bool, len(links))
	for _, l := range links {
		linked[l.AssignedTaskID] = true
	}

	var total, missing int
	for _, t := range tasks {
		if !w.Contains(t.CreatedAt) {
			continue
		}
		total++
		if !linked[t.ID] {
			missing++
		}
	}
	return safeRate(missing, total)
}

func childSnapshots(children []ChildSummary, tasks []TaskRecord, redemptions []RedemptionRecord, pair timewindow.Pair, now time.Time) []ChildSnapshot {
	trailing := timewindow.Window{
		Start: timewindow.StartOfDay(now.AddDate(0, 0, -6)),
		End:   now,
	}
	prior := timewindow.Window{
		Start: trailing.Start.AddDate(0, 0, -7),
		End:   trailing.Start.Add(-time.Millisecond),
	}

	snaps := make([]ChildSnapshot, 0, len(children))
	for _, c := range children {
		childTasks := filterTasksByChild(tasks, c.ID)
		childRedemptions := filterRedemptionsByChild(redemptions, c.ID)

		activeDays := make(map[string]bool)
		var trailingApproved, priorApproved int
		for _, t := range childTasks {
			if t.Status != StatusApproved {
				continue
			}
			if trailing.Contains(t.CreatedAt) {
				trailingApproved++
				activeDays[t.CreatedAt.Format("2006-01-02")] = true
			} else if prior.Contains(t.CreatedAt) {
				priorApproved++
			}
		}

		momentum := trailingApproved - priorApproved
		snaps = append(snaps, ChildSnapshot{
			ChildID:               c.ID,
			Name:                  c.Name,
			Current:               windowStats(childTasks, childRedemptions, pair.Current),
			Previous:              windowStats(childTasks, childRedemptions, pair.Previous),
			ConsistencyDaysActive: len(activeDays),
			ConsistencyBand:       ConsistencyBand(len(activeDays)),
			MomentumDelta:         momentum,
			Momentum:              MomentumLabel(momentum),
		})
	}
	return snaps
}

// topContributor picks the child with the most approved tasks in the window.
// Roster order breaks ties; no contributor is reported when nothing was approved.
func topContributor(children []ChildSummary, tasks []TaskRecord, w timewindow.Window) (id, name string) {
	approved := make(map[string]int)
	for _, t := range tasks {
		if t.Status == StatusApproved && w.Contains(t.CreatedAt) {
			approved[t.ChildID]++
		}
	}

	best := 0
	for _, c := range children {
		if approved[c.ID] > best {
			best = approved[c.ID]
			id = c.ID
			name = c.Name
		}
	}
	return id, name
}

func dailySeries(tasks []TaskRecord, redemptions []RedemptionRecord, seriesEnd time.Time, goal int) []DayStat {
	series := make([]DayStat, 0, dailySeriesDays)
	for i := dailySeriesDays - 1; i >= 0; i-- {
		day := seriesEnd.AddDate(0, 0, -i)
		w := timewindow.Window{
			Start: timewindow.StartOfDay(day),
			End:   timewindow.EndOfDay(day),
		}

		stat := DayStat{Date: w.Start.Format("2006-01-02")}
		for _, t := range tasks {
			if !w.Contains(t.CreatedAt) || t.Status != StatusApproved {
				continue
			}
			stat.TasksCompleted++
			stat.MinutesEarned += t.RewardMinutes
		}
		for _, r := range redemptions {
			if w.Contains(r.CreatedAt) {
				stat.MinutesRedeemed += r.MinutesSpent
			}
		}
		stat.MetGoal = stat.TasksCompleted >= goal
		series = append(series, stat)
	}
	return series
}

func filterTasksByChild(tasks []TaskRecord, childID string) []TaskRecord {
	out := make([]TaskRecord, 0, len(tasks))
	for _, t := range tasks {
		if t.ChildID == childID {
			out = append(out, t)
		}
	}
	return out
}

func filterRedemptionsByChild(redemptions []RedemptionRecord, childID string) []RedemptionRecord {
	out := make([]RedemptionRecord, 0, len(redemptions))
	for _, r := range redemptions {
		if r.ChildID == childID {
			out = append(out, r)
		}
	}
	return out
}

func filterChildren(children []ChildSummary, childID string) []ChildSummary {
	out := make([]ChildSummary, 0, 1)
	for _, c := range children {
		if c.ID == childID {
			out = append(out, c)
		}
	}
	return out
}

func safeRate(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
