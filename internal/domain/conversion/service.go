package conversion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/playgive/playgive-api/internal/domain/wallet"
)

// Outcome is the result of processing one activity_completed event.
type Outcome struct {
	Conversion  Conversion          `json:"conversion"`
	Transaction *wallet.Transaction `json:"transaction,omitempty"`
	Held        bool                `json:"held"`
}

// Service glues the engine to the wallet ledger: it computes credits, checks
// the rapid-succession window, and routes the result either straight to the
// ledger or into a fraud hold.
type Service struct {
	engine        *Engine
	ledger        *wallet.Service
	window        Window // nil disables the rapid-succession signal
	rapidGap      time.Duration
	holdThreshold int
}

func NewService(engine *Engine, ledger *wallet.Service, window Window, rapidGap time.Duration, holdThreshold int) *Service {
	return &Service{
		engine:        engine,
		ledger:        ledger,
		window:        window,
		rapidGap:      rapidGap,
		holdThreshold: holdThreshold,
	}
}

// Process handles one reported activity session.
func (s *Service) Process(ctx context.Context, req ConvertRequest) (Outcome, error) {
	if s.window != nil && s.rapidGap > 0 {
		req.LastConversion = s.window.Last(ctx, req.UserID)
	}

	conv, err := s.engine.Convert(req, s.rapidGap)
	if err != nil {
		return Outcome{}, err
	}
	if conv.Credits.IsZero() {
		// Nothing earned: no transaction, no wallet touch.
		return Outcome{Conversion: conv}, nil
	}

	apply := wallet.ApplyRequest{
		UserID: req.UserID,
		Type:   wallet.TransactionTypeEarned,
		Amount: conv.Credits,
		Metadata: wallet.TransactionMeta{
			SessionID:      req.SessionID,
			MultiplierTags: conv.AppliedTags,
			FraudFlags:     conv.Assessment.Flags,
			RiskScore:      conv.Assessment.Score,
			DeviceInfo:     req.DeviceInfo,
		},
	}

	if s.holdThreshold > 0 && conv.Assessment.Score >= s.holdThreshold {
		txn, err := s.ledger.Hold(ctx, apply)
		if err != nil {
			return Outcome{}, fmt.Errorf("hold conversion: %w", err)
		}
		s.touchWindow(ctx, req)
		return Outcome{Conversion: conv, Transaction: &txn, Held: true}, nil
	}

	_, txn, err := s.ledger.Credit(ctx, apply)
	if err != nil {
		// The window is stamped only after a conversion lands, so a failed
		// credit does not flag the user's retry as rapid succession.
		return Outcome{}, fmt.Errorf("credit conversion: %w", err)
	}
	s.touchWindow(ctx, req)

	log.Info().
		Str("user_id", req.UserID.String()).
		Str("credits", conv.Credits.String()).
		Str("multiplier", conv.TotalMultiplier.String()).
		Int("risk_score", conv.Assessment.Score).
		Msg("activity converted")
	return Outcome{Conversion: conv, Transaction: &txn}, nil
}

func (s *Service) touchWindow(ctx context.Context, req ConvertRequest) {
	if s.window == nil || s.rapidGap <= 0 {
		return
	}
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	s.window.Touch(ctx, req.UserID, at)
}
