package conversion

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/playgive/playgive-api/internal/pkg/money"
)

// Flag weights. Tunable in spirit but fixed here: the score is only compared
// against the configured hold threshold.
var flagScores = map[string]int{
	FlagHighEarnings:    30,
	FlagHighMultiplier:  25,
	FlagLongSession:     20,
	FlagOffHours:        10,
	FlagRapidSuccession: 25,
}

// EngineConfig holds the conversion and fraud-heuristic tunables.
type EngineConfig struct {
	BaseRatePerMinute decimal.Decimal
	Multipliers       map[string]decimal.Decimal
	MaxDuration       time.Duration
	LongSession       time.Duration
	EarningsCeiling   decimal.Decimal
	MaxMultiplier     decimal.Decimal
	OffHoursStart     int // local hour, inclusive
	OffHoursEnd       int // local hour, exclusive
}

// Engine converts activity durations into credit amounts. Pure computation:
// no storage, no clock reads beyond the request's own timestamps.
type Engine struct {
	cfg EngineConfig
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Multipliers == nil {
		cfg.Multipliers = DefaultMultipliers()
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 24 * time.Hour
	}
	if cfg.LongSession <= 0 {
		cfg.LongSession = 8 * time.Hour
	}
	return &Engine{cfg: cfg}
}

var (
	one         = decimal.NewFromInt(1)
	msPerMinute = decimal.NewFromInt(60_000)
)

func rapid(gap time.Duration, last *time.Time, at time.Time) bool {
	return gap > 0 && last != nil && at.Sub(*last) < gap
}

// Convert computes credits and the fraud assessment for one session.
//
// Credits = round2(duration_minutes * base_rate * total_multiplier), where
// total_multiplier starts at 1.0 and each active tag adds (value - 1.0).
// All arithmetic stays at full decimal precision; the single rounding step
// happens last.
func (e *Engine) Convert(req ConvertRequest, rapidGap time.Duration) (Conversion, error) {
	if req.DurationMS <= 0 {
		// Zero or negative duration earns nothing and creates no transaction.
		return Conversion{Credits: money.Zero(), TotalMultiplier: one}, nil
	}
	duration := time.Duration(req.DurationMS) * time.Millisecond
	if duration > e.cfg.MaxDuration {
		return Conversion{}, ErrDurationTooLong
	}

	at := req.At
	if at.IsZero() {
		at = time.Now()
	}

	minutes := decimal.NewFromInt(req.DurationMS).Div(msPerMinute)
	base := minutes.Mul(e.cfg.BaseRatePerMinute)

	total := one
	var applied []string
	for _, tag := range req.Tags {
		value, ok := e.cfg.Multipliers[tag]
		if !ok {
			continue
		}
		total = total.Add(value.Sub(one))
		applied = append(applied, tag)
	}

	credits := money.FromDecimal(base.Mul(total)).Round()

	assessment := FraudAssessment{}
	addFlag := func(flag string) {
		assessment.Flags = append(assessment.Flags, flag)
		assessment.Score += flagScores[flag]
	}

	if !e.cfg.EarningsCeiling.IsZero() && credits.Decimal().GreaterThan(e.cfg.EarningsCeiling) {
		addFlag(FlagHighEarnings)
	}
	if !e.cfg.MaxMultiplier.IsZero() && total.GreaterThan(e.cfg.MaxMultiplier) {
		addFlag(FlagHighMultiplier)
	}
	if duration > e.cfg.LongSession {
		addFlag(FlagLongSession)
	}
	if e.offHours(at.Hour()) {
		addFlag(FlagOffHours)
	}
	if rapid(rapidGap, req.LastConversion, at) {
		addFlag(FlagRapidSuccession)
	}

	return Conversion{
		Credits:         credits,
		TotalMultiplier: total,
		AppliedTags:     applied,
		Assessment:      assessment,
	}, nil
}

func (e *Engine) offHours(hour int) bool {
	if e.cfg.OffHoursStart == e.cfg.OffHoursEnd {
		return false
	}
	if e.cfg.OffHoursStart < e.cfg.OffHoursEnd {
		return hour >= e.cfg.OffHoursStart && hour < e.cfg.OffHoursEnd
	}
	// Window wraps midnight.
	return hour >= e.cfg.OffHoursStart || hour < e.cfg.OffHoursEnd
}
