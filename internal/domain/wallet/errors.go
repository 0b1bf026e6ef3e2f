package wallet

import "errors"

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidType         = errors.New("invalid transaction type")
	ErrInsufficientFunds   = errors.New("insufficient wallet balance")
	ErrConflict            = errors.New("wallet version conflict")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletInactive      = errors.New("wallet is deactivated")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("illegal transaction status transition")
	ErrUnknownRecipient    = errors.New("unknown recipient")
	ErrInvalidPolicy       = errors.New("invalid auto-donation policy")
)
