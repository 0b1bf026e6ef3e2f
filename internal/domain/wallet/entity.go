package wallet

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playgive/playgive-api/internal/pkg/money"
)

// TransactionType is the closed set of balance-affecting event kinds.
// Amounts are always positive; the sign of the balance delta is implied
// by the type (see IsDebit).
type TransactionType string

const (
	TransactionTypeEarned     TransactionType = "earned"
	TransactionTypeBonus      TransactionType = "bonus"
	TransactionTypeDonated    TransactionType = "donated"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
	TransactionTypeFee        TransactionType = "fee"
)

// IsDebit reports whether the type reduces the wallet balance.
func (t TransactionType) IsDebit() bool {
	return t == TransactionTypeDonated || t == TransactionTypeFee
}

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeEarned, TransactionTypeBonus, TransactionTypeDonated,
		TransactionTypeRefund, TransactionTypeAdjustment, TransactionTypeFee:
		return true
	}
	return false
}

// TransactionStatus is the closed transaction lifecycle.
// Pending -> Completed | Failed | Cancelled; Refunded only from Completed.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
	StatusRefunded  TransactionStatus = "refunded"
)

// CanTransitionTo enforces the legal status transitions.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	case StatusCompleted:
		return next == StatusRefunded
	default:
		// failed, cancelled and refunded are terminal
		return false
	}
}

// Terminal reports whether the status admits no further transition except
// Completed -> Refunded.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled || s == StatusRefunded
}

// TransactionMeta carries conversion provenance on a transaction row (JSONB).
type TransactionMeta struct {
	SessionID      string   `json:"session_id,omitempty"`
	MultiplierTags []string `json:"multiplier_tags,omitempty"`
	FraudFlags     []string `json:"fraud_flags,omitempty"`
	RiskScore      int      `json:"risk_score,omitempty"`
	DeviceInfo     string   `json:"device_info,omitempty"`
	Note           string   `json:"note,omitempty"`
}

func (m TransactionMeta) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *TransactionMeta) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = TransactionMeta{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into TransactionMeta", src)
	}
}

// Transaction is one immutable ledger row. Once the status is terminal the
// row is never rewritten; only Completed rows may later flip to Refunded.
type Transaction struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	UserID      uuid.UUID         `db:"user_id" json:"user_id"`
	RecipientID *uuid.UUID        `db:"recipient_id" json:"recipient_id,omitempty"`
	Type        TransactionType   `db:"type" json:"type"`
	Status      TransactionStatus `db:"status" json:"status"`
	Amount      money.Money       `db:"amount" json:"amount"`
	ExternalRef *string           `db:"external_ref" json:"external_ref,omitempty"`
	Metadata    TransactionMeta   `db:"metadata" json:"metadata"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	CompletedAt *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// AutoDonationPolicy is the per-wallet automatic donation configuration.
type AutoDonationPolicy struct {
	Enabled     bool        `json:"enabled"`
	Threshold   money.Money `json:"threshold"`
	Percentage  int         `json:"percentage"` // 1-100
	RecipientID uuid.UUID   `json:"recipient_id"`
}

func (p AutoDonationPolicy) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *AutoDonationPolicy) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = AutoDonationPolicy{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into AutoDonationPolicy", src)
	}
}

// Wallet is the current-balance projection for one user.
//
// Invariants: Balance = TotalEarned - TotalDonated at all times, Balance >= 0,
// and Version increases by exactly 1 per successful mutation. Credits add to
// TotalEarned, debits add to TotalDonated, so both totals are monotonic.
type Wallet struct {
	UserID       uuid.UUID          `db:"user_id" json:"user_id"`
	Balance      money.Money        `db:"balance" json:"balance"`
	TotalEarned  money.Money        `db:"total_earned" json:"total_earned"`
	TotalDonated money.Money        `db:"total_donated" json:"total_donated"`
	Version      int64              `db:"version" json:"version"`
	Active       bool               `db:"active" json:"active"`
	AutoDonation AutoDonationPolicy `db:"auto_donation" json:"auto_donation"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
}

// DonationRequest is the outcome of auto-donation policy evaluation,
// routed through the same Apply path as any other donation.
type DonationRequest struct {
	UserID      uuid.UUID   `json:"user_id"`
	RecipientID uuid.UUID   `json:"recipient_id"`
	Amount      money.Money `json:"amount"`
}
