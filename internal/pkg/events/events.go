package events

import (
	"github.com/google/uuid"

	"github.com/playgive/playgive-api/internal/pkg/money"
)

// Event names. Consumers subscribe by name; payload types below are closed.
const (
	NameCreditApplied     = "credit_applied"
	NameDonationCompleted = "donation_completed"
	NameTransactionHeld   = "transaction_held"
	NameBatchCompleted    = "batch_completed"
)

// CreditApplied is published after a credit (earned/bonus/refund/adjustment)
// lands on a wallet.
type CreditApplied struct {
	UserID        uuid.UUID
	TransactionID uuid.UUID
	Type          string
	Amount        money.Money
	Balance       money.Money
}

func (CreditApplied) EventName() string { return NameCreditApplied }

// DonationCompleted is published after a donation debit lands on a wallet.
type DonationCompleted struct {
	UserID        uuid.UUID
	RecipientID   uuid.UUID
	TransactionID uuid.UUID
	Amount        money.Money
	Balance       money.Money
}

func (DonationCompleted) EventName() string { return NameDonationCompleted }

// TransactionHeld is published when a conversion is routed to manual review.
type TransactionHeld struct {
	UserID        uuid.UUID
	TransactionID uuid.UUID
	RiskScore     int
	Flags         []string
}

func (TransactionHeld) EventName() string { return NameTransactionHeld }

// BatchCompleted is published once every item of a batch reaches a terminal state.
type BatchCompleted struct {
	BatchID    uuid.UUID
	Status     string
	Total      int
	Successful int
	Failed     int
}

func (BatchCompleted) EventName() string { return NameBatchCompleted }
