package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/compose"
	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/billingdesk/invoice-notifier/internal/observability"
	"github.com/billingdesk/invoice-notifier/internal/ratelimit"
	"github.com/billingdesk/invoice-notifier/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultInvoiceDelay = 3 * time.Second
	whatsappChannel     = "whatsapp"
)

// RunLock serializes dispatch runs across processes sharing the history
// store. In-process serialization is handled by the runner's own mutex.
type RunLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// DispatchRunner performs one sequential pass over the eligible invoices:
// validate, dedup, compose, send, record. Invoices are deliberately not
// processed in parallel; the gateway is rate-sensitive and the fixed
// inter-invoice delay throttles load.
type DispatchRunner struct {
	invoices repository.InvoiceRepository
	history  repository.HistoryRepository
	dedup    *DedupGuard
	composer *compose.Composer
	sender   *RetryingSender
	limiter  ratelimit.RateLimiter
	runLock  RunLock
	logger   *zap.Logger
	metrics  *observability.Metrics

	invoiceDelay time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error

	mu sync.Mutex
}

func NewDispatchRunner(
	invoices repository.InvoiceRepository,
	history repository.HistoryRepository,
	dedup *DedupGuard,
	composer *compose.Composer,
	sender *RetryingSender,
	invoiceDelay time.Duration,
	logger *zap.Logger,
) (*DispatchRunner, error) {
	if invoices == nil || history == nil || dedup == nil || composer == nil || sender == nil {
		return nil, fmt.Errorf("dispatch runner dependencies are incomplete")
	}
	if invoiceDelay < 0 {
		invoiceDelay = defaultInvoiceDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchRunner{
		invoices:     invoices,
		history:      history,
		dedup:        dedup,
		composer:     composer,
		sender:       sender,
		logger:       logger,
		invoiceDelay: invoiceDelay,
		now:          time.Now,
		sleep:        sleepWithContext,
	}, nil
}

func (r *DispatchRunner) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// SetRateLimiter installs an optional distributed throttle consulted
// before every outbound send.
func (r *DispatchRunner) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if r == nil {
		return
	}
	r.limiter = limiter
}

// SetRunLock installs an optional cross-process advisory lock.
func (r *DispatchRunner) SetRunLock(lock RunLock) {
	if r == nil {
		return
	}
	r.runLock = lock
}

// Run executes one dispatch pass and returns its counters. Only two
// failures abort a run: another run already holding the lock, and the
// invoice source being unavailable. Everything that goes wrong for a
// single invoice is recorded, counted, and survived.
func (r *DispatchRunner) Run(ctx context.Context) (*domain.DispatchRunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !r.mu.TryLock() {
		return nil, domain.ErrRunInProgress
	}
	defer r.mu.Unlock()

	if r.runLock != nil {
		acquired, err := r.runLock.Acquire(ctx)
		if err != nil {
			r.recordRunMetric("failed", 0)
			return nil, fmt.Errorf("failed to acquire dispatch run lock: %w", err)
		}
		if !acquired {
			r.recordRunMetric("rejected", 0)
			return nil, domain.ErrRunInProgress
		}
		defer func() {
			if err := r.runLock.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Error("failed to release dispatch run lock", zap.Error(err))
			}
		}()
	}

	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	logger := observability.WithContextLogger(r.logger, ctx)

	if r.metrics != nil {
		r.metrics.SetRunInFlight(true)
		defer r.metrics.SetRunInFlight(false)
	}

	start := r.now()
	logger.Info("dispatch run started")

	eligible, err := r.invoices.ListEligible(ctx)
	if err != nil {
		r.recordRunMetric("failed", r.now().Sub(start))
		return nil, fmt.Errorf("failed to list eligible invoices: %w", err)
	}

	result := &domain.DispatchRunResult{TotalEligible: len(eligible)}

	for i := range eligible {
		r.processInvoice(ctx, logger, eligible[i], result)

		if i < len(eligible)-1 && r.invoiceDelay > 0 {
			if err := r.sleep(ctx, r.invoiceDelay); err != nil {
				logger.Warn("dispatch run interrupted between invoices", zap.Error(err))
				r.recordRunMetric("interrupted", r.now().Sub(start))
				return result, err
			}
		}
	}

	logger.Info("dispatch run finished",
		zap.Int("totalEligible", result.TotalEligible),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skippedAlreadySent", result.SkippedAlreadySent),
		zap.Int("skippedInvalidData", result.SkippedInvalidData),
	)
	r.recordRunMetric("completed", r.now().Sub(start))

	return result, nil
}

func (r *DispatchRunner) processInvoice(
	ctx context.Context,
	logger *zap.Logger,
	inv domain.Invoice,
	result *domain.DispatchRunResult,
) {
	invLogger := logger.With(
		zap.String("invoiceId", inv.ID),
		zap.String("dueDate", inv.DueDate),
	)

	if err := inv.Validate(); err != nil {
		invLogger.Warn("invoice has invalid data, skipping", zap.Error(err))
		r.recordOutcome(ctx, invLogger, r.skippedRecord(inv, err))
		result.SkippedInvalidData++
		r.countInvoice(domain.OutcomeSkippedInvalidData)
		return
	}

	alreadySent, err := r.dedup.AlreadySentToday(ctx, inv.ID, inv.DueDate)
	if err != nil {
		// History store unreadable: fail closed. A missed reminder is
		// recoverable on the next run; a duplicate send is not.
		invLogger.Error("dedup check failed, failing closed and skipping send", zap.Error(err))
		result.SkippedAlreadySent++
		return
	}
	if alreadySent {
		invLogger.Info("already notified today, skipping")
		result.SkippedAlreadySent++
		return
	}

	text, err := r.composer.Compose(inv)
	if err != nil {
		invLogger.Warn("could not compose message, skipping", zap.Error(err))
		r.recordOutcome(ctx, invLogger, r.skippedRecord(inv, err))
		result.SkippedInvalidData++
		r.countInvoice(domain.OutcomeSkippedInvalidData)
		return
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, whatsappChannel); err != nil {
			// The limiter is advisory; a broken Redis must not stall the
			// run while the fixed inter-invoice delay still applies.
			invLogger.Warn("rate limiter unavailable, proceeding", zap.Error(err))
		}
	}

	sendResult := r.sender.Send(ctx, inv.CustomerPhone, text)

	record := r.newRecord(inv)
	record.Message = text
	record.Outcome = sendResult.Outcome
	record.Attempts = sendResult.Attempts
	if sendResult.Outcome == domain.OutcomeSent {
		if sendResult.ProviderMessageID != "" {
			ref := sendResult.ProviderMessageID
			record.ProviderMessageID = &ref
		}
		result.Sent++
	} else {
		detail := sendResult.FailureDetail
		record.FailureDetail = &detail
		result.Failed++
	}
	r.countInvoice(sendResult.Outcome)

	r.recordOutcome(ctx, invLogger, record)

	if sendResult.Outcome == domain.OutcomeSent {
		invLogger.Info("reminder sent", zap.Int("attempts", sendResult.Attempts))
	} else {
		invLogger.Warn("reminder failed after retries",
			zap.Int("attempts", sendResult.Attempts),
			zap.String("detail", sendResult.FailureDetail),
		)
	}
}

// recordOutcome appends the audit record. Losing one record is preferable
// to aborting the remaining sends, so write failures are logged and
// swallowed.
func (r *DispatchRunner) recordOutcome(ctx context.Context, logger *zap.Logger, record *domain.SendAttemptRecord) {
	if err := r.history.RecordAttempt(ctx, record); err != nil {
		logger.Error("failed to record send attempt", zap.Error(err))
	}
}

func (r *DispatchRunner) newRecord(inv domain.Invoice) *domain.SendAttemptRecord {
	return &domain.SendAttemptRecord{
		ID:            uuid.NewString(),
		InvoiceID:     inv.ID,
		CustomerName:  inv.CustomerName,
		CustomerPhone: inv.CustomerPhone,
		DueDate:       inv.DueDate,
		Amount:        inv.Amount,
		AttemptedAt:   r.now().UTC(),
	}
}

func (r *DispatchRunner) skippedRecord(inv domain.Invoice, cause error) *domain.SendAttemptRecord {
	record := r.newRecord(inv)
	record.Outcome = domain.OutcomeSkippedInvalidData
	detail := cause.Error()
	record.FailureDetail = &detail
	return record
}

func (r *DispatchRunner) countInvoice(outcome domain.Outcome) {
	if r.metrics == nil {
		return
	}
	r.metrics.IncInvoiceProcessed(outcome.String())
}

func (r *DispatchRunner) recordRunMetric(result string, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.IncDispatchRun(result)
	if elapsed > 0 {
		r.metrics.ObserveDispatchRunDuration(elapsed)
	}
}

// DispatchOne sends a reminder for a single invoice on demand, outside
// the scheduled pass. Manual sends deliberately bypass the dedup window:
// an operator clicking "send now" means it.
func (r *DispatchRunner) DispatchOne(ctx context.Context, invoiceID string) (*domain.SendAttemptRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	inv, err := r.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}

	text, err := r.composer.Compose(*inv)
	if err != nil {
		return nil, err
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, whatsappChannel); err != nil {
			r.logger.Warn("rate limiter unavailable, proceeding", zap.Error(err))
		}
	}

	sendResult := r.sender.Send(ctx, inv.CustomerPhone, text)

	record := r.newRecord(*inv)
	record.Message = text
	record.Outcome = sendResult.Outcome
	record.Attempts = sendResult.Attempts
	if sendResult.Outcome == domain.OutcomeSent {
		if sendResult.ProviderMessageID != "" {
			ref := sendResult.ProviderMessageID
			record.ProviderMessageID = &ref
		}
	} else {
		detail := sendResult.FailureDetail
		record.FailureDetail = &detail
	}
	r.countInvoice(sendResult.Outcome)

	if err := r.history.RecordAttempt(ctx, record); err != nil {
		r.logger.Error("failed to record send attempt",
			zap.String("invoiceId", inv.ID),
			zap.Error(err),
		)
	}

	return record, nil
}
