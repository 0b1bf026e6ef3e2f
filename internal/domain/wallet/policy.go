package wallet

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EvaluateAutoDonation is the auto-donation trigger: a pure function of
// wallet state. It never mutates anything; callers route the returned
// request through Service.Donate like any other donation.
func EvaluateAutoDonation(w Wallet) (DonationRequest, bool) {
	p := w.AutoDonation
	if !p.Enabled || p.RecipientID == uuid.Nil {
		return DonationRequest{}, false
	}
	if p.Percentage < 1 || p.Percentage > 100 {
		return DonationRequest{}, false
	}
	if w.Balance.Cmp(p.Threshold) < 0 {
		return DonationRequest{}, false
	}

	excess := w.Balance.Sub(p.Threshold)
	amount := excess.Mul(decimal.NewFromInt(int64(p.Percentage)).Div(hundred)).Round()
	if !amount.IsPositive() {
		return DonationRequest{}, false
	}

	return DonationRequest{
		UserID:      w.UserID,
		RecipientID: p.RecipientID,
		Amount:      amount,
	}, true
}
