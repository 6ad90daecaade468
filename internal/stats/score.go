package stats

type Band string

const (
	BandGreen  Band = "green"
	BandYellow Band = "yellow"
	BandRed    Band = "red"
)

type Momentum string

const (
	MomentumImproving Momentum = "improving"
	MomentumDeclining Momentum = "declining"
	MomentumStable    Momentum = "stable"
)

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// The thresholds below are product constants, not configuration.

// ConsistencyBand classifies a child's distinct active days over the
// trailing seven days.
func ConsistencyBand(daysActive int) Band {
	switch {
	case daysActive >= 5:
		return BandGreen
	case daysActive >= 2:
		return BandYellow
	default:
		return BandRed
	}
}

// MomentumLabel classifies the trailing-week vs prior-week completed count delta.
func MomentumLabel(delta int) Momentum {
	switch {
	case delta > 0:
		return MomentumImproving
	case delta < 0:
		return MomentumDeclining
	default:
		return MomentumStable
	}
}

// KPITrend classifies the sign of a period-over-period delta.
func KPITrend(delta float64) Trend {
	switch {
	case delta > 0:
		return TrendUp
	case delta < 0:
		return TrendDown
	default:
		return TrendFlat
	}
}
