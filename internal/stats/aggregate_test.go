package stats

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/kinloop/kinloop/internal/timewindow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday, January 14th 2026, 15:30 UTC. The this_week pair is
// current [Jan 11 00:00, now] and previous [Jan 4 00:00, Jan 10 23:59:59.999].
var testNow = time.Date(2026, time.January, 14, 15, 30, 0, 0, time.UTC)

func testPair() timewindow.Pair {
	return timewindow.Resolve(timewindow.ThisWeek, nil, testNow)
}

func at(day, hour int) time.Time {
	return time.Date(2026, time.January, day, hour, 0, 0, 0, time.UTC)
}

func approvedTask(id, childID string, createdAt time.Time, rewardMinutes int) TaskRecord {
	return TaskRecord{ID: id, ChildID: childID, Status: StatusApproved, RewardMinutes: rewardMinutes, CreatedAt: createdAt}
}

func activeTask(id, childID string, createdAt time.Time, rewardMinutes int) TaskRecord {
	return TaskRecord{ID: id, ChildID: childID, Status: StatusActive, RewardMinutes: rewardMinutes, CreatedAt: createdAt}
}

func TestAggregate_Empty(t *testing.T) {
	snap := Aggregate(Input{}, testPair(), testNow)

	assert.Equal(t, 0, snap.Current.AssignedCount)
	assert.Equal(t, 0.0, snap.Current.CompletionRate)
	assert.Equal(t, 0.0, snap.ApprovalLatencyAvgMinutes)
	assert.Equal(t, 0.0, snap.OnTimeRate)
	assert.Equal(t, 0.0, snap.EveningSlumpScore)
	assert.Equal(t, 0.0, snap.MissingOutcomeRate)
	assert.Empty(t, snap.TopContributingChildID)
	assert.Empty(t, snap.Children)

	require.Len(t, snap.Daily, 7)
	for _, d := range snap.Daily {
		assert.Zero(t, d.TasksCompleted)
		assert.False(t, d.MetGoal)
	}
}

func TestAggregate_WindowStats(t *testing.T) {
	in := Input{
		Tasks: []TaskRecord{
			approvedTask("t1", "c1", at(12, 10), 30),
			activeTask("t2", "c1", at(13, 9), 20),
			approvedTask("t3", "c1", at(5, 10), 15),
			approvedTask("t4", "c1", time.Date(2025, time.December, 1, 10, 0, 0, 0, time.UTC), 45),
		},
		Redemptions: []RedemptionRecord{
			{ChildID: "c1", MinutesSpent: 25, CreatedAt: at(12, 16)},
			{ChildID: "c1", MinutesSpent: 10, CreatedAt: at(6, 16)},
		},
	}

	snap := Aggregate(in, testPair(), testNow)

	assert.Equal(t, 2, snap.Current.AssignedCount)
	assert.Equal(t, 1, snap.Current.CompletedCount)
	assert.Equal(t, 0.5, snap.Current.CompletionRate)
	assert.Equal(t, 30, snap.Current.MinutesEarned)
	assert.Equal(t, 25, snap.Current.MinutesRedeemed)

	assert.Equal(t, 1, snap.Previous.AssignedCount)
	assert.Equal(t, 1, snap.Previous.CompletedCount)
	assert.Equal(t, 1.0, snap.Previous.CompletionRate)
	assert.Equal(t, 15, snap.Previous.MinutesEarned)
	assert.Equal(t, 10, snap.Previous.MinutesRedeemed)

	assert.Equal(t, TrendFlat, snap.CompletedDelta.Trend)
	assert.Equal(t, 0, snap.CompletedDelta.DeltaPct)
	assert.Equal(t, TrendDown, snap.CompletionRateDelta.Trend)
	assert.Equal(t, -50, snap.CompletionRateDelta.DeltaPct)
	assert.Equal(t, TrendUp, snap.MinutesEarnedDelta.Trend)
	assert.Equal(t, 100, snap.MinutesEarnedDelta.DeltaPct)
}

func TestKPIDelta(t *testing.T) {
	tests := []struct {
		name        string
		current     float64
		previous    float64
		expectedPct int
		expected    Trend
	}{
		{name: "growth from zero", current: 5, previous: 0, expectedPct: 100, expected: TrendUp},
		{name: "both zero", current: 0, previous: 0, expectedPct: 0, expected: TrendFlat},
		{name: "fifty percent up", current: 3, previous: 2, expectedPct: 50, expected: TrendUp},
		{name: "two thirds down rounds away from zero", current: 1, previous: 3, expectedPct: -67, expected: TrendDown},
		{name: "collapse to zero", current: 0, previous: 4, expectedPct: -100, expected: TrendDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := kpiDelta(tt.current, tt.previous)
			assert.Equal(t, tt.expectedPct, d.DeltaPct)
			assert.Equal(t, tt.expected, d.Trend)
			assert.Equal(t, tt.current-tt.previous, d.Delta)
		})
	}
}

func TestAggregate_ApprovalLatency(t *testing.T) {
	in := Input{
		Tasks: []TaskRecord{
			approvedTask("t1", "c1", at(12, 8), 10),
			approvedTask("t2", "c1", at(12, 8), 10),
			approvedTask("t3", "c1", at(13, 8), 10),
		},
		Events: []TaskEventRecord{
			{AssignedTaskID: "t1", EventType: EventCompleted, CreatedAt: at(12, 10)},
			{AssignedTaskID: "t1", EventType: EventApproved, CreatedAt: at(12, 11).Add(30 * time.Minute)},
			// Approved before completed: clock skew, pair discarded.
			{AssignedTaskID: "t2", EventType: EventCompleted, CreatedAt: at(12, 9)},
			{AssignedTaskID: "t2", EventType: EventApproved, CreatedAt: at(12, 8)},
			// Approved with no completed event: counted as approval, no pair.
			{AssignedTaskID: "t3", EventType: EventApproved, CreatedAt: at(13, 9)},
			// Unknown task and out-of-window events are ignored.
			{AssignedTaskID: "ghost", EventType: EventApproved, CreatedAt: at(12, 12)},
			{AssignedTaskID: "t1", EventType: EventApproved, CreatedAt: at(2, 12)},
		},
	}

	snap := Aggregate(in, testPair(), testNow)

	assert.Equal(t, 3, snap.ApprovalsCount)
	assert.InDelta(t, 90.0, snap.ApprovalLatencyAvgMinutes, 0.001)
	assert.Equal(t, 1.0, snap.OnTimeRate)
}

func TestAggregate_ApprovalLatency_SlowApproval(t *testing.T) {
	in := Input{
		Tasks: []TaskRecord{
			approvedTask("t1", "c1", at(11, 8), 10),
			approvedTask("t2", "c1", at(11, 8), 10),
		},
		Events: []TaskEventRecord{
			{AssignedTaskID: "t1", EventType: EventCompleted, CreatedAt: at(11, 10)},
			{AssignedTaskID: "t1", EventType: EventApproved, CreatedAt: at(11, 11)},
			// Two days later: well past the on-time limit.
			{AssignedTaskID: "t2", EventType: EventCompleted, CreatedAt: at(11, 10)},
			{AssignedTaskID: "t2", EventType: EventApproved, CreatedAt: at(13, 10)},
		},
	}

	snap := Aggregate(in, testPair(), testNow)

	assert.Equal(t, 2, snap.ApprovalsCount)
	assert.InDelta(t, (60.0+2880.0)/2, snap.ApprovalLatencyAvgMinutes, 0.001)
	assert.Equal(t, 0.5, snap.OnTimeRate)
}

func TestAggregate_EveningSlump(t *testing.T) {
	tests := []struct {
		name     string
		tasks    []TaskRecord
		expected float64
	}{
		{
			name: "morning outperforms evening",
			tasks: []TaskRecord{
				approvedTask("m1", "c1", at(12, 9), 10),
				approvedTask("m2", "c1", at(12, 10), 10),
				approvedTask("e1", "c1", at(12, 18), 10),
				activeTask("e2", "c1", at(12, 19), 10),
			},
			expected: 50,
		},
		{
			name: "evening outperforms morning clamps to zero",
			tasks: []TaskRecord{
				activeTask("m1", "c1", at(12, 9), 10),
				approvedTask("e1", "c1", at(12, 18), 10),
			},
			expected: 0,
		},
		{
			name: "no evening tasks",
			tasks: []TaskRecord{
				approvedTask("m1", "c1", at(12, 9), 10),
			},
			expected: 0,
		},
		{
			name: "no morning tasks",
			tasks: []TaskRecord{
				activeTask("e1", "c1", at(12, 20), 10),
			},
			expected: 0,
		},
		{
			name: "boundary hour counts as evening",
			tasks: []TaskRecord{
				approvedTask("m1", "c1", at(12, 16), 10),
				activeTask("e1", "c1", at(12, 17), 10),
			},
			expected: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Aggregate(Input{Tasks: tt.tasks}, testPair(), testNow)
			assert.Equal(t, tt.expected, snap.EveningSlumpScore)
		})
	}
}

func TestAggregate_MissingOutcomeRate(t *testing.T) {
	tasks := []TaskRecord{
		approvedTask("t1", "c1", at(12, 10), 10),
		approvedTask("t2", "c1", at(12, 11), 10),
		activeTask("t3", "c1", at(13, 10), 10),
		activeTask("t4", "c1", at(13, 11), 10),
	}

	t.Run("partially linked", func(t *testing.T) {
		in := Input{
			Tasks:              tasks,
			OutcomeLinks:       []OutcomeLink{{AssignedTaskID: "t1", OutcomeID: "o1"}},
			ActiveOutcomeCount: 2,
		}
		snap := Aggregate(in, testPair(), testNow)
		assert.Equal(t, 0.75, snap.MissingOutcomeRate)
	})

	t.Run("no active outcomes defined", func(t *testing.T) {
		in := Input{Tasks: tasks, ActiveOutcomeCount: 0}
		snap := Aggregate(in, testPair(), testNow)
		assert.Equal(t, 0.0, snap.MissingOutcomeRate)
	})

	t.Run("no tasks in window", func(t *testing.T) {
		in := Input{ActiveOutcomeCount: 3}
		snap := Aggregate(in, testPair(), testNow)
		assert.Equal(t, 0.0, snap.MissingOutcomeRate)
	})
}

func TestAggregate_ChildConsistencyAndMomentum(t *testing.T) {
	// Trailing week is Jan 8 00:00 through now; the prior week Jan 1 to Jan 7.
	in := Input{
		Children: []ChildSummary{{ID: "c1", Name: "Maya"}},
		Tasks: []TaskRecord{
			approvedTask("t1", "c1", at(14, 9), 10),
			approvedTask("t2", "c1", at(13, 9), 10),
			approvedTask("t3", "c1", at(12, 9), 10),
			approvedTask("t4", "c1", at(12, 18), 10),
			approvedTask("t5", "c1", at(3, 9), 10),
			activeTask("t6", "c1", at(10, 9), 10),
		},
	}

	snap := Aggregate(in, testPair(), testNow)

	require.Len(t, snap.Children, 1)
	c := snap.Children[0]
	assert.Equal(t, "Maya", c.Name)
	assert.Equal(t, 3, c.ConsistencyDaysActive)
	assert.Equal(t, BandYellow, c.ConsistencyBand)
	assert.Equal(t, 3, c.MomentumDelta)
	assert.Equal(t, MomentumImproving, c.Momentum)
}

func TestAggregate_TopContributor(t *testing.T) {
	children := []ChildSummary{{ID: "c1", Name: "Maya"}, {ID: "c2", Name: "Leo"}}

	t.Run("highest approved count wins", func(t *testing.T) {
		in := Input{
			Children: children,
			Tasks: []TaskRecord{
				approvedTask("t1", "c1", at(12, 9), 10),
				approvedTask("t2", "c2", at(12, 10), 10),
				approvedTask("t3", "c2", at(13, 10), 10),
			},
		}
		snap := Aggregate(in, testPair(), testNow)
		assert.Equal(t, "c2", snap.TopContributingChildID)
		assert.Equal(t, "Leo", snap.TopContributingChildName)
	})

	t.Run("nothing approved means no contributor", func(t *testing.T) {
		in := Input{
			Children: children,
			Tasks:    []TaskRecord{activeTask("t1", "c1", at(12, 9), 10)},
		}
		snap := Aggregate(in, testPair(), testNow)
		assert.Empty(t, snap.TopContributingChildID)
		assert.Empty(t, snap.TopContributingChildName)
	})
}

func TestAggregate_DailySeries(t *testing.T) {
	in := Input{
		Tasks: []TaskRecord{
			approvedTask("t1", "c1", at(14, 10), 30),
			approvedTask("t2", "c1", at(14, 11), 20),
			approvedTask("t3", "c1", at(12, 10), 10),
			activeTask("t4", "c1", at(13, 10), 10),
		},
		Redemptions: []RedemptionRecord{
			{ChildID: "c1", MinutesSpent: 15, CreatedAt: at(12, 17)},
		},
	}

	snap := Aggregate(in, testPair(), testNow)

	require.Len(t, snap.Daily, 7)
	assert.Equal(t, "2026-01-08", snap.Daily[0].Date)
	assert.Equal(t, "2026-01-14", snap.Daily[6].Date)

	last := snap.Daily[6]
	assert.Equal(t, 2, last.TasksCompleted)
	assert.Equal(t, 50, last.MinutesEarned)
	assert.True(t, last.MetGoal)

	jan12 := snap.Daily[4]
	assert.Equal(t, 1, jan12.TasksCompleted)
	assert.Equal(t, 15, jan12.MinutesRedeemed)
	assert.True(t, jan12.MetGoal)

	jan13 := snap.Daily[5]
	assert.Equal(t, 0, jan13.TasksCompleted)
	assert.False(t, jan13.MetGoal)
}

func TestAggregate_DailySeries_CustomGoal(t *testing.T) {
	in := Input{
		Tasks:     []TaskRecord{approvedTask("t1", "c1", at(14, 10), 30)},
		DailyGoal: 2,
	}

	snap := Aggregate(in, testPair(), testNow)
	assert.False(t, snap.Daily[6].MetGoal)
}

func TestAggregate_ChildFilter(t *testing.T) {
	in := Input{
		Children: []ChildSummary{{ID: "c1", Name: "Maya"}, {ID: "c2", Name: "Leo"}},
		Tasks: []TaskRecord{
			approvedTask("t1", "c1", at(12, 9), 30),
			approvedTask("t2", "c2", at(12, 10), 40),
		},
		Redemptions: []RedemptionRecord{
			{ChildID: "c1", MinutesSpent: 5, CreatedAt: at(12, 17)},
			{ChildID: "c2", MinutesSpent: 50, CreatedAt: at(12, 18)},
		},
		ChildFilter: "c1",
	}

	snap := Aggregate(in, testPair(), testNow)

	assert.Equal(t, 1, snap.Current.AssignedCount)
	assert.Equal(t, 30, snap.Current.MinutesEarned)
	assert.Equal(t, 5, snap.Current.MinutesRedeemed)
	require.Len(t, snap.Children, 1)
	assert.Equal(t, "c1", snap.Children[0].ChildID)
	assert.Equal(t, "c1", snap.TopContributingChildID)
}

func TestAggregate_RateBounds(t *testing.T) {
	in := Input{
		Children: []ChildSummary{{ID: "c1", Name: "Maya"}},
		Tasks: []TaskRecord{
			approvedTask("t1", "c1", at(12, 9), 10),
			activeTask("t2", "c1", at(12, 19), 10),
			TaskRecord{ID: "t3", ChildID: "c1", Status: StatusRejected, CreatedAt: at(13, 9)},
		},
		Events: []TaskEventRecord{
			{AssignedTaskID: "t1", EventType: EventCompleted, CreatedAt: at(12, 10)},
			{AssignedTaskID: "t1", EventType: EventApproved, CreatedAt: at(12, 12)},
		},
		OutcomeLinks:       []OutcomeLink{{AssignedTaskID: "t1", OutcomeID: "o1"}},
		ActiveOutcomeCount: 1,
	}

	snap := Aggregate(in, testPair(), testNow)

	for name, rate := range map[string]float64{
		"completionRate":     snap.Current.CompletionRate,
		"prevCompletionRate": snap.Previous.CompletionRate,
		"missingOutcomeRate": snap.MissingOutcomeRate,
		"onTimeRate":         snap.OnTimeRate,
	} {
		assert.False(t, math.IsNaN(rate), name)
		assert.GreaterOrEqual(t, rate, 0.0, name)
		assert.LessOrEqual(t, rate, 1.0, name)
	}
	assert.GreaterOrEqual(t, snap.EveningSlumpScore, 0.0)
	assert.LessOrEqual(t, snap.EveningSlumpScore, 100.0)
}

func TestAggregate_Idempotent(t *testing.T) {
	in := Input{
		Children: []ChildSummary{{ID: "c1", Name: "Maya"}, {ID: "c2", Name: "Leo"}},
		Tasks: []TaskRecord{
			approvedTask("t1", "c1", at(12, 9), 30),
			approvedTask("t2", "c2", at(13, 18), 20),
			activeTask("t3", "c1", at(14, 10), 10),
			approvedTask("t4", "c2", at(6, 9), 25),
		},
		Events: []TaskEventRecord{
			{AssignedTaskID: "t1", EventType: EventCompleted, CreatedAt: at(12, 10)},
			{AssignedTaskID: "t1", EventType: EventApproved, CreatedAt: at(12, 13)},
		},
		Redemptions:        []RedemptionRecord{{ChildID: "c1", MinutesSpent: 15, CreatedAt: at(13, 17)}},
		OutcomeLinks:       []OutcomeLink{{AssignedTaskID: "t1", OutcomeID: "o1"}},
		ActiveOutcomeCount: 2,
	}

	first := Aggregate(in, testPair(), testNow)
	second := Aggregate(in, testPair(), testNow)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
}
