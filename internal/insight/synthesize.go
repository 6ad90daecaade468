// Package insight synthesizes one coaching insight from a metrics snapshot
// and sanitizes generated text before it reaches any user-facing surface.
package insight

import (
	"fmt"
	"math"

	"github.com/kinloop/kinloop/internal/stats"
)

// Insight is one coaching recommendation derived from a snapshot. All text
// fields are sanitized before the value leaves this package.
type Insight struct {
	Title          string `json:"title"`
	Observation    string `json:"observation"`
	Diagnosis      string `json:"diagnosis"`
	Recommendation string `json:"recommendation"`
	ExpectedResult string `json:"expected_result"`
	NextCheck      string `json:"next_check"`
	ImpactScore    int    `json:"impact_score"`
}

type rule struct {
	name    string
	matches func(*stats.Snapshot) bool
	build   func(*stats.Snapshot) Insight
}

// Rules are evaluated in order and the first match wins; the ordering is a
// product decision, not an optimization. The final rule always matches, so
// every snapshot yields exactly one insight.
var rules = []rule{
	{
		name: "tracking_clarity",
		matches: func(s *stats.Snapshot) bool {
			return s.MissingOutcomeRate > 0.30
		},
		build: buildTrackingClarity,
	},
	{
		name: "approval_latency",
		matches: func(s *stats.Snapshot) bool {
			return s.ApprovalLatencyAvgMinutes > 60 && s.ApprovalsCount > 0
		},
		build: buildApprovalLatency,
	},
	{
		name: "evening_slump",
		matches: func(s *stats.Snapshot) bool {
			return s.EveningSlumpScore > 30
		},
		build: buildEveningSlump,
	},
	{
		name: "low_completion",
		matches: func(s *stats.Snapshot) bool {
			return s.Current.CompletionRate < 0.60 && s.Current.AssignedCount > 0
		},
		build: buildLowCompletion,
	},
	{
		name:    "positive_reinforcement",
		matches: func(s *stats.Snapshot) bool { return true },
		build:   buildPositive,
	},
}

// Synthesize produces exactly one insight for a family-level snapshot.
// The roster resolves any child identifier that slips into generated text.
func Synthesize(snap *stats.Snapshot, roster []stats.ChildSummary) Insight {
	for _, r := range rules {
		if r.matches(snap) {
			ins := r.build(snap)
			ins.ImpactScore = clampScore(ins.ImpactScore)
			return sanitizeInsight(ins, roster)
		}
	}
	// Unreachable: the default rule always matches.
	return sanitizeInsight(buildPositive(snap), roster)
}

// RuleName reports which rule Synthesize would fire for a snapshot,
// for instrumentation and logging.
func RuleName(snap *stats.Snapshot) string {
	for _, r := range rules {
		if r.matches(snap) {
			return r.name
		}
	}
	return rules[len(rules)-1].name
}

// Generic is the safe boilerplate callers substitute when sanitization
// cannot fully clean a generated insight.
func Generic() Insight {
	return Insight{
		Title:          "Keep Tracking Together",
		Observation:    "Your family logged task activity this period.",
		Diagnosis:      "There is not enough clean signal to single out one pattern yet.",
		Recommendation: "Continue assigning and approving tasks so trends become clearer.",
		ExpectedResult: "A more specific recommendation once another week of activity lands.",
		NextCheck:      "Check back after the coming week.",
		ImpactScore:    10,
	}
}

func buildTrackingClarity(s *stats.Snapshot) Insight {
	pct := roundPct(s.MissingOutcomeRate)
	return Insight{
		Title:       "Improve Tracking Clarity",
		Observation: fmt.Sprintf("%d%% of tasks this period are not linked to any behavior outcome.", pct),
		Diagnosis:   "Unlinked tasks make it hard to tell which behaviors are actually changing.",
		Recommendation: fmt.Sprintf(
			"Link more tasks to the outcomes you care about when assigning them; start with the %d%% currently untracked.", pct),
		ExpectedResult: "Outcome progress will reflect real effort instead of gaps.",
		NextCheck:      "Review the missing-outcome rate again next week.",
		ImpactScore:    int(math.Round(150 * s.MissingOutcomeRate)),
	}
}

func buildApprovalLatency(s *stats.Snapshot) Insight {
	hours := s.ApprovalLatencyAvgMinutes / 60
	return Insight{
		Title: "Speed Up Approvals",
		Observation: fmt.Sprintf(
			"Completed tasks waited %.1f hours on average before approval across %d approvals.",
			hours, s.ApprovalsCount),
		Diagnosis:      "Long waits between finishing a task and seeing it approved weaken the reward link.",
		Recommendation: "Review pending approvals daily, ideally the same evening, so kids see results quickly.",
		ExpectedResult: fmt.Sprintf("Average approval time drops below an hour from the current %.1f hours.", hours),
		NextCheck:      "Check the approval latency trend in seven days.",
		ImpactScore:    int(math.Round(s.ApprovalLatencyAvgMinutes / 10)),
	}
}

func buildEveningSlump(s *stats.Snapshot) Insight {
	return Insight{
		Title: "Rework the Evening Schedule",
		Observation: fmt.Sprintf(
			"Tasks assigned in the evening are completed far less often; the slump score is %d out of 100.",
			int(math.Round(s.EveningSlumpScore))),
		Diagnosis:      "Energy and attention drop late in the day, so evening tasks stall.",
		Recommendation: "Move demanding tasks out of the evening, or swap in shorter ones after dinner.",
		ExpectedResult: "Evening completion catches up with the rest of the day.",
		NextCheck:      "Compare morning and evening completion again next week.",
		ImpactScore:    int(math.Round(s.EveningSlumpScore)),
	}
}

func buildLowCompletion(s *stats.Snapshot) Insight {
	pct := roundPct(s.Current.CompletionRate)
	ins := Insight{
		Title: "Build Momentum",
		Observation: fmt.Sprintf("Only %d%% of the %d assigned tasks were completed this period.",
			pct, s.Current.AssignedCount),
		Diagnosis:      "A low completion rate usually means tasks feel too big or too frequent right now.",
		Recommendation: "Assign fewer, smaller tasks for a week to rebuild a completion habit.",
		ExpectedResult: fmt.Sprintf("Completion climbs from %d%% toward a steady majority of tasks done.", pct),
		NextCheck:      "Revisit the completion rate after the next full week.",
		ImpactScore:    int(math.Round(100 * (1 - s.Current.CompletionRate))),
	}
	return ins
}

func buildPositive(s *stats.Snapshot) Insight {
	pct := roundPct(s.Current.CompletionRate)
	who := "your family"
	if s.TopContributingChildName != "" {
		who = s.TopContributingChildName
	} else if s.TopContributingChildID != "" {
		who = s.TopContributingChildID
	}
	return Insight{
		Title: "Great Work This Week",
		Observation: fmt.Sprintf("%d%% of assigned tasks were completed, with %s leading the way.",
			pct, who),
		Diagnosis:      "The current routine is working and rewards are landing on time.",
		Recommendation: "Continue the current routine and celebrate the streak together.",
		ExpectedResult: "Consistency holds and the habit keeps reinforcing itself.",
		NextCheck:      "Glance at the weekly recap next Sunday.",
		ImpactScore:    int(math.Round(50 * s.Current.CompletionRate)),
	}
}

func sanitizeInsight(ins Insight, roster []stats.ChildSummary) Insight {
	ins.Title = Sanitize(ins.Title, roster)
	ins.Observation = Sanitize(ins.Observation, roster)
	ins.Diagnosis = Sanitize(ins.Diagnosis, roster)
	ins.Recommendation = Sanitize(ins.Recommendation, roster)
	ins.ExpectedResult = Sanitize(ins.ExpectedResult, roster)
	ins.NextCheck = Sanitize(ins.NextCheck, roster)
	return ins
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func roundPct(rate float64) int {
	return int(math.Round(rate * 100))
}
