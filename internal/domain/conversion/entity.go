package conversion

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playgive/playgive-api/internal/pkg/money"
)

// Multiplier tags recognized by the engine. Tag values are configured;
// unknown tags are ignored.
const (
	TagTournament   = "tournament"
	TagChallenge    = "challenge"
	TagDailyStreak  = "daily_streak"
	TagWeekend      = "weekend"
	TagSpecialEvent = "special_event"
	TagLoyalty      = "loyalty"
	TagFirstTime    = "first_time"
)

// DefaultMultipliers is the tag table used when config supplies none.
func DefaultMultipliers() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		TagTournament:   decimal.RequireFromString("2.0"),
		TagChallenge:    decimal.RequireFromString("1.5"),
		TagDailyStreak:  decimal.RequireFromString("1.2"),
		TagWeekend:      decimal.RequireFromString("1.1"),
		TagSpecialEvent: decimal.RequireFromString("1.3"),
		TagLoyalty:      decimal.RequireFromString("1.15"),
		TagFirstTime:    decimal.RequireFromString("1.25"),
	}
}

// Fraud flags raised by the conversion heuristics. Advisory: they raise the
// risk score, and the service decides whether the score routes the credit to
// a held transaction.
const (
	FlagHighEarnings    = "high_earnings"
	FlagHighMultiplier  = "high_multiplier"
	FlagLongSession     = "long_session"
	FlagOffHours        = "off_hours"
	FlagRapidSuccession = "rapid_succession"
)

// FraudAssessment is the advisory risk verdict attached to a conversion.
type FraudAssessment struct {
	Score int      `json:"score"`
	Flags []string `json:"flags,omitempty"`
}

func (a FraudAssessment) Flagged(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// ConvertRequest is one reported activity session.
type ConvertRequest struct {
	UserID         uuid.UUID
	DurationMS     int64
	Tags           []string
	SessionID      string
	DeviceInfo     string
	At             time.Time // session end; zero means now
	LastConversion *time.Time
}

// Conversion is the computed result before it is applied to a wallet.
type Conversion struct {
	Credits         money.Money     `json:"credits"`
	TotalMultiplier decimal.Decimal `json:"total_multiplier"`
	AppliedTags     []string        `json:"applied_tags,omitempty"`
	Assessment      FraudAssessment `json:"assessment"`
}
