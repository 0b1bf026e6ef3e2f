package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/playgive/playgive-api/internal/domain/wallet"
	"github.com/playgive/playgive-api/internal/pkg/events"
)

// Config tunes the coordinator's worker pool and retry behavior.
type Config struct {
	Workers       int
	ProgressEvery int // flush the batch record every N item completions
	ItemRetryMax  int // cap on per-item re-submissions via RetryFailed
	ErrorLogSize  int
	Budget        time.Duration // 0 disables the wall-clock budget
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = 10
	}
	if c.ItemRetryMax <= 0 {
		c.ItemRetryMax = 3
	}
	if c.ErrorLogSize <= 0 {
		c.ErrorLogSize = 50
	}
	return c
}

// Coordinator runs bulk donation jobs: upfront validation, a bounded worker
// pool over the valid items, per-item failure isolation, chunked progress
// writes and cooperative cancellation.
type Coordinator struct {
	store      Store
	ledger     *wallet.Service
	recipients wallet.RecipientDirectory
	bus        *events.Bus
	audit      wallet.AuditLog
	cfg        Config

	mu      sync.Mutex
	cancels map[uuid.UUID]chan struct{}
}

func NewCoordinator(store Store, ledger *wallet.Service, recipients wallet.RecipientDirectory, bus *events.Bus, audit wallet.AuditLog, cfg Config) *Coordinator {
	return &Coordinator{
		store:      store,
		ledger:     ledger,
		recipients: recipients,
		bus:        bus,
		audit:      audit,
		cfg:        cfg.withDefaults(),
		cancels:    make(map[uuid.UUID]chan struct{}),
	}
}

// Submit records a new queued batch. Processing is started separately so the
// admin surface can return the batch id immediately.
func (c *Coordinator) Submit(ctx context.Context, requests []ItemRequest) (Operation, error) {
	if len(requests) == 0 {
		return Operation{}, ErrEmptyBatch
	}

	op := Operation{
		ID:            uuid.New(),
		OperationType: OperationTypeDonation,
		TotalItems:    len(requests),
		Status:        StatusQueued,
		ErrorLog:      NewErrorLog(c.cfg.ErrorLogSize),
		CreatedAt:     time.Now().UTC(),
	}
	items := make([]Item, 0, len(requests))
	for _, req := range requests {
		items = append(items, Item{
			ID:          uuid.New(),
			BatchID:     op.ID,
			UserID:      req.UserID,
			RecipientID: req.RecipientID,
			Amount:      req.Amount,
			Status:      ItemQueued,
		})
	}

	if err := c.store.CreateBatch(ctx, op, items); err != nil {
		return Operation{}, fmt.Errorf("create batch: %w", err)
	}

	log.Info().
		Str("batch_id", op.ID.String()).
		Int("total_items", op.TotalItems).
		Msg("batch submitted")
	return op, nil
}

// Start runs the batch on a background goroutine.
func (c *Coordinator) Start(batchID uuid.UUID) {
	go func() {
		if err := c.Run(context.Background(), batchID); err != nil {
			log.Error().Err(err).Str("batch_id", batchID.String()).Msg("batch run failed")
		}
	}()
}

// Run processes every queued item of the batch to a terminal state. It is
// synchronous; Start wraps it for the HTTP surface.
func (c *Coordinator) Run(ctx context.Context, batchID uuid.UUID) error {
	op, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if op.Status != StatusQueued {
		return ErrNotQueued
	}

	cancel := c.cancelChannel(batchID)
	defer c.dropCancelChannel(batchID)

	now := time.Now().UTC()
	op.Status = StatusProcessing
	op.StartedAt = &now
	if err := c.store.UpdateBatch(ctx, op); err != nil {
		return err
	}

	items, err := c.store.GetItems(ctx, batchID)
	if err != nil {
		return err
	}

	var run runState
	run.op = &op
	run.coordinator = c

	// Validation phase: invalid items fail immediately without consuming a
	// worker slot.
	var valid []Item
	for _, item := range items {
		if item.Status != ItemQueued {
			continue
		}
		if reason := c.validate(ctx, item); reason != "" {
			item.Status = ItemFailed
			item.LastError = &reason
			if err := c.store.UpdateItem(ctx, item); err != nil {
				return err
			}
			run.recordFailure(ctx, item, reason)
			continue
		}
		valid = append(valid, item)
	}

	var deadline time.Time
	if c.cfg.Budget > 0 {
		deadline = now.Add(c.cfg.Budget)
	}

	work := make(chan Item)
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				// Cooperative cancellation: checked between items, never
				// mid-item. In-flight donations always finish.
				if cancelled(cancel) || budgetExpired(deadline) {
					item.Status = ItemCancelled
					if err := c.store.UpdateItem(ctx, item); err != nil {
						log.Error().Err(err).Str("item_id", item.ID.String()).Msg("cancel item failed")
					}
					continue
				}
				c.processItem(ctx, &run, item)
			}
		}()
	}

	for _, item := range valid {
		work <- item
	}
	close(work)
	wg.Wait()

	return c.finish(ctx, &run, cancelled(cancel))
}

// processItem applies one donation. A failure here is isolated: it is
// recorded on the item and in the batch error log and never halts the run.
func (c *Coordinator) processItem(ctx context.Context, run *runState, item Item) {
	item.Status = ItemProcessing

	_, txn, err := c.ledger.Donate(ctx, item.UserID, item.RecipientID, item.Amount, nil)
	if err != nil {
		reason := err.Error()
		item.Status = ItemFailed
		item.LastError = &reason
		if uerr := c.store.UpdateItem(ctx, item); uerr != nil {
			log.Error().Err(uerr).Str("item_id", item.ID.String()).Msg("update failed item")
		}
		run.recordFailure(ctx, item, reason)
		return
	}

	item.Status = ItemCompleted
	item.LastError = nil
	item.TransactionID = &txn.ID
	if err := c.store.UpdateItem(ctx, item); err != nil {
		log.Error().Err(err).Str("item_id", item.ID.String()).Msg("update completed item")
	}
	run.recordSuccess(ctx)
}

func (c *Coordinator) validate(ctx context.Context, item Item) string {
	if !item.Amount.IsPositive() {
		return "amount must be positive"
	}
	ok, err := c.recipients.RecipientExists(ctx, item.RecipientID)
	if err != nil {
		return fmt.Sprintf("recipient lookup failed: %v", err)
	}
	if !ok {
		return "unknown recipient"
	}
	return ""
}

// finish recomputes the aggregate from the items (covering earlier retry
// runs as well) and writes the terminal status.
func (c *Coordinator) finish(ctx context.Context, run *runState, wasCancelled bool) error {
	items, err := c.store.GetItems(ctx, run.op.ID)
	if err != nil {
		return err
	}

	var successful, failed, cancelledItems int
	for _, item := range items {
		switch item.Status {
		case ItemCompleted:
			successful++
		case ItemFailed:
			failed++
		case ItemCancelled:
			cancelledItems++
		}
	}

	op := run.op
	op.SuccessfulItems = successful
	op.FailedItems = failed
	op.ProcessedItems = successful + failed

	switch {
	case wasCancelled || cancelledItems > 0:
		op.Status = StatusCancelled
	case successful == op.TotalItems:
		op.Status = StatusCompleted
	case successful == 0:
		op.Status = StatusFailed
	default:
		op.Status = StatusPartialSuccess
	}

	now := time.Now().UTC()
	op.CompletedAt = &now
	if err := c.store.UpdateBatch(ctx, *op); err != nil {
		return err
	}

	if c.bus != nil {
		c.bus.Publish(events.BatchCompleted{
			BatchID:    op.ID,
			Status:     string(op.Status),
			Total:      op.TotalItems,
			Successful: op.SuccessfulItems,
			Failed:     op.FailedItems,
		})
	}
	log.Info().
		Str("batch_id", op.ID.String()).
		Str("status", string(op.Status)).
		Int("successful", op.SuccessfulItems).
		Int("failed", op.FailedItems).
		Msg("batch finished")
	return nil
}

// Cancel requests cooperative cancellation. A still-queued batch is
// cancelled outright; a processing batch stops before its next item.
func (c *Coordinator) Cancel(ctx context.Context, batchID, actorID uuid.UUID) (Operation, error) {
	op, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return Operation{}, err
	}
	if op.Status.Terminal() {
		return Operation{}, ErrAlreadyTerminal
	}
	c.record(ctx, batchID, actorID, string(op.Status))

	if op.Status == StatusQueued {
		items, err := c.store.GetItems(ctx, batchID)
		if err != nil {
			return Operation{}, err
		}
		for _, item := range items {
			if item.Status != ItemQueued {
				continue
			}
			item.Status = ItemCancelled
			if err := c.store.UpdateItem(ctx, item); err != nil {
				return Operation{}, err
			}
		}
		now := time.Now().UTC()
		op.Status = StatusCancelled
		op.CompletedAt = &now
		if err := c.store.UpdateBatch(ctx, op); err != nil {
			return Operation{}, err
		}
		return op, nil
	}

	c.requestCancel(batchID)
	return op, nil
}

func (c *Coordinator) record(ctx context.Context, batchID, actorID uuid.UUID, statusAtCancel string) {
	if c.audit == nil {
		return
	}
	payload := map[string]string{
		"batch_id":         batchID.String(),
		"status_at_cancel": statusAtCancel,
	}
	if err := c.audit.Record(ctx, "batch_cancelled", actorID, payload); err != nil {
		log.Error().Err(err).Str("batch_id", batchID.String()).Msg("audit record failed")
	}
}

// RetryFailed re-queues failed items below the retry cap as a new sub-run.
// Items at the cap stay permanently failed.
func (c *Coordinator) RetryFailed(ctx context.Context, batchID uuid.UUID) (Operation, error) {
	op, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return Operation{}, err
	}
	if !op.Status.Terminal() || op.Status == StatusCancelled {
		return Operation{}, ErrNotQueued
	}

	items, err := c.store.GetItems(ctx, batchID)
	if err != nil {
		return Operation{}, err
	}

	requeued := 0
	for _, item := range items {
		if item.Status != ItemFailed || item.RetryCount >= c.cfg.ItemRetryMax {
			continue
		}
		item.Status = ItemQueued
		item.RetryCount++
		if err := c.store.UpdateItem(ctx, item); err != nil {
			return Operation{}, err
		}
		requeued++
	}
	if requeued == 0 {
		return Operation{}, ErrNothingToRetry
	}

	op.Status = StatusQueued
	op.CompletedAt = nil
	if err := c.store.UpdateBatch(ctx, op); err != nil {
		return Operation{}, err
	}

	log.Info().
		Str("batch_id", batchID.String()).
		Int("requeued", requeued).
		Msg("batch retry prepared")
	return op, nil
}

func (c *Coordinator) Status(ctx context.Context, batchID uuid.UUID) (Operation, []Item, error) {
	op, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return Operation{}, nil, err
	}
	items, err := c.store.GetItems(ctx, batchID)
	if err != nil {
		return Operation{}, nil, err
	}
	return op, items, nil
}

func (c *Coordinator) cancelChannel(batchID uuid.UUID) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.cancels[batchID]
	if !ok {
		ch = make(chan struct{})
		c.cancels[batchID] = ch
	}
	return ch
}

// requestCancel closes the batch's cancel channel exactly once.
func (c *Coordinator) requestCancel(batchID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.cancels[batchID]
	if !ok {
		ch = make(chan struct{})
		c.cancels[batchID] = ch
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func (c *Coordinator) dropCancelChannel(batchID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancels, batchID)
}

func cancelled(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func budgetExpired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

// runState tracks in-flight counters for one run and flushes them to the
// batch record every ProgressEvery completions to bound write amplification.
type runState struct {
	coordinator *Coordinator
	op          *Operation

	mu           sync.Mutex
	sinceFlush   int
	successDelta int
	failedDelta  int
}

func (r *runState) recordSuccess(ctx context.Context) {
	r.mu.Lock()
	r.successDelta++
	r.bump(ctx)
	r.mu.Unlock()
}

func (r *runState) recordFailure(ctx context.Context, item Item, reason string) {
	r.mu.Lock()
	r.failedDelta++
	r.op.ErrorLog.Append(ErrorEntry{ItemID: item.ID, Reason: reason, At: time.Now().UTC()})
	r.bump(ctx)
	r.mu.Unlock()
}

// bump is called with r.mu held.
func (r *runState) bump(ctx context.Context) {
	r.sinceFlush++
	if r.sinceFlush < r.coordinator.cfg.ProgressEvery {
		return
	}
	r.sinceFlush = 0
	op := *r.op
	op.SuccessfulItems += r.successDelta
	op.FailedItems += r.failedDelta
	op.ProcessedItems = op.SuccessfulItems + op.FailedItems
	if err := r.coordinator.store.UpdateBatch(ctx, op); err != nil {
		log.Error().Err(err).Str("batch_id", op.ID.String()).Msg("progress flush failed")
	}
}
