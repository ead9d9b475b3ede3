package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/compose"
	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/billingdesk/invoice-notifier/internal/provider"
)

func newTestRunner(t *testing.T, invoices *fakeInvoiceRepo, history *fakeHistoryRepo, channel *fakeChannel) *DispatchRunner {
	t.Helper()

	now := func() time.Time {
		return time.Date(2026, time.June, 11, 8, 0, 0, 0, time.UTC)
	}

	composer := compose.NewComposer("Empresa Teste", "5511988887777", time.UTC).WithNow(now)
	sender := NewRetryingSender(channel, 3, 0, 20*time.Second, nil)
	sender.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	dedup := NewDedupGuard(history, time.UTC).WithNow(now)

	runner, err := NewDispatchRunner(invoices, history, dedup, composer, sender, 3*time.Second, nil)
	if err != nil {
		t.Fatalf("NewDispatchRunner() error = %v", err)
	}
	runner.now = now
	runner.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return runner
}

func okChannel() *fakeChannel {
	return &fakeChannel{
		sendFn: func(ctx context.Context, phone string, text string) (*provider.SendReceipt, error) {
			return &provider.SendReceipt{StatusCode: 200}, nil
		},
	}
}

func TestDispatchRunnerSendsAllEligible(t *testing.T) {
	t.Parallel()

	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return []domain.Invoice{
				testInvoice("inv-1", "15/06/2026"),
				testInvoice("inv-2", "11/06/2026"),
				testInvoice("inv-3", "01/06/2026"),
			}, nil
		},
	}
	history := &fakeHistoryRepo{}
	channel := okChannel()

	runner := newTestRunner(t, invoices, history, channel)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Sent != 3 || result.Failed != 0 || result.SkippedAlreadySent != 0 || result.SkippedInvalidData != 0 {
		t.Fatalf("Run() = %+v, want 3 sent and nothing else", result)
	}
	if result.TotalEligible != 3 {
		t.Fatalf("Run() totalEligible = %d, want 3", result.TotalEligible)
	}
	if channel.calls != 3 {
		t.Fatalf("channel called %d times, want 3", channel.calls)
	}
	if len(history.records) != 3 {
		t.Fatalf("recorded %d attempts, want 3", len(history.records))
	}
	for _, rec := range history.records {
		if rec.Outcome != domain.OutcomeSent {
			t.Fatalf("record outcome = %v, want %v", rec.Outcome, domain.OutcomeSent)
		}
		if rec.Message == "" {
			t.Fatal("record message snapshot is empty")
		}
	}
}

func TestDispatchRunnerSkipsAlreadySentToday(t *testing.T) {
	t.Parallel()

	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return []domain.Invoice{
				testInvoice("inv-1", "15/06/2026"),
				testInvoice("inv-2", "15/06/2026"),
				testInvoice("inv-3", "15/06/2026"),
			}, nil
		},
	}
	history := &fakeHistoryRepo{
		records: []domain.SendAttemptRecord{
			{
				InvoiceID:   "inv-2",
				DueDate:     "15/06/2026",
				Outcome:     domain.OutcomeSent,
				AttemptedAt: time.Date(2026, time.June, 11, 7, 0, 0, 0, time.UTC),
			},
		},
	}
	channel := okChannel()

	runner := newTestRunner(t, invoices, history, channel)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Sent != 2 || result.SkippedAlreadySent != 1 {
		t.Fatalf("Run() = %+v, want 2 sent and 1 skippedAlreadySent", result)
	}
	if channel.calls != 2 {
		t.Fatalf("channel called %d times, want 2", channel.calls)
	}
	// Skips leave no new record; the existing one plus two sends.
	if len(history.records) != 3 {
		t.Fatalf("history has %d records, want 3", len(history.records))
	}
}

func TestDispatchRunnerSecondRunIsIdempotent(t *testing.T) {
	t.Parallel()

	eligible := []domain.Invoice{
		testInvoice("inv-1", "15/06/2026"),
		testInvoice("inv-2", "11/06/2026"),
	}
	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return eligible, nil
		},
	}
	history := &fakeHistoryRepo{}
	channel := okChannel()

	runner := newTestRunner(t, invoices, history, channel)

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if result.Sent != 0 || result.SkippedAlreadySent != 2 {
		t.Fatalf("second Run() = %+v, want everything skipped", result)
	}
	if channel.calls != 2 {
		t.Fatalf("channel called %d times across both runs, want 2", channel.calls)
	}
}

func TestDispatchRunnerRescheduledDueDateIsEligibleAgain(t *testing.T) {
	t.Parallel()

	inv := testInvoice("inv-1", "20/06/2026")
	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return []domain.Invoice{inv}, nil
		},
	}
	history := &fakeHistoryRepo{
		records: []domain.SendAttemptRecord{
			{
				InvoiceID:   "inv-1",
				DueDate:     "15/06/2026",
				Outcome:     domain.OutcomeSent,
				AttemptedAt: time.Date(2026, time.June, 11, 7, 0, 0, 0, time.UTC),
			},
		},
	}
	channel := okChannel()

	runner := newTestRunner(t, invoices, history, channel)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Sent != 1 || result.SkippedAlreadySent != 0 {
		t.Fatalf("Run() = %+v, want the rescheduled invoice sent", result)
	}
}

func TestDispatchRunnerCountsPersistentFailure(t *testing.T) {
	t.Parallel()

	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return []domain.Invoice{
				testInvoice("inv-1", "15/06/2026"),
				testInvoice("inv-2", "15/06/2026"),
				testInvoice("inv-3", "15/06/2026"),
			}, nil
		},
	}
	history := &fakeHistoryRepo{}
	channel := &fakeChannel{}
	channel.sendFn = func(ctx context.Context, phone string, text string) (*provider.SendReceipt, error) {
		return nil, &provider.ChannelError{StatusCode: 503, Message: "unavailable", Transient: true}
	}

	runner := newTestRunner(t, invoices, history, channel)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Failed != 3 || result.Sent != 0 {
		t.Fatalf("Run() = %+v, want 3 failed", result)
	}
	// 3 invoices, 3 attempts each.
	if channel.calls != 9 {
		t.Fatalf("channel called %d times, want 9", channel.calls)
	}
	for _, rec := range history.records {
		if rec.Outcome != domain.OutcomeFailed {
			t.Fatalf("record outcome = %v, want %v", rec.Outcome, domain.OutcomeFailed)
		}
		if rec.Attempts != 3 {
			t.Fatalf("record attempts = %d, want 3", rec.Attempts)
		}
		if rec.FailureDetail == nil || *rec.FailureDetail == "" {
			t.Fatal("failed record has no failure detail")
		}
	}
}

func TestDispatchRunnerSkipsInvalidInvoiceWithoutPoisoningRun(t *testing.T) {
	t.Parallel()

	broken := testInvoice("inv-2", "31/02/2026")
	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return []domain.Invoice{
				testInvoice("inv-1", "15/06/2026"),
				broken,
				testInvoice("inv-3", "15/06/2026"),
			}, nil
		},
	}
	history := &fakeHistoryRepo{}
	channel := okChannel()

	runner := newTestRunner(t, invoices, history, channel)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Sent != 2 || result.SkippedInvalidData != 1 {
		t.Fatalf("Run() = %+v, want 2 sent and 1 skippedInvalidData", result)
	}
	if channel.calls != 2 {
		t.Fatalf("channel called %d times, want 2", channel.calls)
	}

	var skipped *domain.SendAttemptRecord
	for i := range history.records {
		if history.records[i].InvoiceID == "inv-2" {
			skipped = &history.records[i]
		}
	}
	if skipped == nil {
		t.Fatal("no record written for the invalid invoice")
	}
	if skipped.Outcome != domain.OutcomeSkippedInvalidData {
		t.Fatalf("record outcome = %v, want %v", skipped.Outcome, domain.OutcomeSkippedInvalidData)
	}
}

func TestDispatchRunnerFailsClosedWhenDedupUnreadable(t *testing.T) {
	t.Parallel()

	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return []domain.Invoice{testInvoice("inv-1", "15/06/2026")}, nil
		},
	}
	history := &fakeHistoryRepo{
		hasSentSinceFn: func(ctx context.Context, invoiceID string, dueDate string, since time.Time) (bool, error) {
			return false, errors.New("connection refused")
		},
	}
	channel := okChannel()

	runner := newTestRunner(t, invoices, history, channel)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.SkippedAlreadySent != 1 || result.Sent != 0 {
		t.Fatalf("Run() = %+v, want the invoice skipped without sending", result)
	}
	if channel.calls != 0 {
		t.Fatalf("channel called %d times, want 0", channel.calls)
	}
	if len(history.records) != 0 {
		t.Fatalf("history has %d records, want 0", len(history.records))
	}
}

func TestDispatchRunnerAbortsWhenSourceUnavailable(t *testing.T) {
	t.Parallel()

	sourceErr := errors.New("database is down")
	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return nil, sourceErr
		},
	}

	runner := newTestRunner(t, invoices, &fakeHistoryRepo{}, okChannel())

	_, err := runner.Run(context.Background())
	if !errors.Is(err, sourceErr) {
		t.Fatalf("Run() error = %v, want wrapped %v", err, sourceErr)
	}
}

func TestDispatchRunnerContinuesWhenRecordWriteFails(t *testing.T) {
	t.Parallel()

	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return []domain.Invoice{
				testInvoice("inv-1", "15/06/2026"),
				testInvoice("inv-2", "15/06/2026"),
			}, nil
		},
	}
	writes := 0
	history := &fakeHistoryRepo{
		recordAttemptFn: func(ctx context.Context, record *domain.SendAttemptRecord) error {
			writes++
			if writes == 1 {
				return errors.New("disk full")
			}
			return nil
		},
	}
	channel := okChannel()

	runner := newTestRunner(t, invoices, history, channel)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Sent != 2 {
		t.Fatalf("Run() sent = %d, want 2", result.Sent)
	}
	if channel.calls != 2 {
		t.Fatalf("channel called %d times, want 2", channel.calls)
	}
}

func TestDispatchRunnerDelaysBetweenInvoicesNotAfterLast(t *testing.T) {
	t.Parallel()

	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return []domain.Invoice{
				testInvoice("inv-1", "15/06/2026"),
				testInvoice("inv-2", "15/06/2026"),
				testInvoice("inv-3", "15/06/2026"),
			}, nil
		},
	}

	runner := newTestRunner(t, invoices, &fakeHistoryRepo{}, okChannel())
	var slept []time.Duration
	runner.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(slept) != 2 {
		t.Fatalf("sleep called %d times, want 2", len(slept))
	}
	for _, d := range slept {
		if d != 3*time.Second {
			t.Fatalf("slept %v, want 3s", d)
		}
	}
}

type fakeRunLock struct {
	acquireFn func(ctx context.Context) (bool, error)
	released  int
}

func (f *fakeRunLock) Acquire(ctx context.Context) (bool, error) { return f.acquireFn(ctx) }
func (f *fakeRunLock) Release(ctx context.Context) error {
	f.released++
	return nil
}

func TestDispatchRunnerRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return nil, nil
		},
	}

	runner := newTestRunner(t, invoices, &fakeHistoryRepo{}, okChannel())
	lock := &fakeRunLock{
		acquireFn: func(ctx context.Context) (bool, error) { return false, nil },
	}
	runner.SetRunLock(lock)

	_, err := runner.Run(context.Background())
	if !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("Run() error = %v, want %v", err, domain.ErrRunInProgress)
	}
	if lock.released != 0 {
		t.Fatalf("lock released %d times after failed acquire, want 0", lock.released)
	}
}

func TestDispatchRunnerReleasesRunLock(t *testing.T) {
	t.Parallel()

	invoices := &fakeInvoiceRepo{
		listEligibleFn: func(ctx context.Context) ([]domain.Invoice, error) {
			return nil, nil
		},
	}

	runner := newTestRunner(t, invoices, &fakeHistoryRepo{}, okChannel())
	lock := &fakeRunLock{
		acquireFn: func(ctx context.Context) (bool, error) { return true, nil },
	}
	runner.SetRunLock(lock)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.TotalEligible != 0 {
		t.Fatalf("Run() totalEligible = %d, want 0", result.TotalEligible)
	}
	if lock.released != 1 {
		t.Fatalf("lock released %d times, want 1", lock.released)
	}
}

func TestDispatchOneBypassesDedup(t *testing.T) {
	t.Parallel()

	inv := testInvoice("inv-1", "15/06/2026")
	invoices := &fakeInvoiceRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Invoice, error) {
			if id != "inv-1" {
				return nil, domain.ErrNotFound
			}
			return &inv, nil
		},
	}
	history := &fakeHistoryRepo{
		records: []domain.SendAttemptRecord{
			{
				InvoiceID:   "inv-1",
				DueDate:     "15/06/2026",
				Outcome:     domain.OutcomeSent,
				AttemptedAt: time.Date(2026, time.June, 11, 7, 0, 0, 0, time.UTC),
			},
		},
	}
	channel := okChannel()

	runner := newTestRunner(t, invoices, history, channel)

	record, err := runner.DispatchOne(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("DispatchOne() error = %v", err)
	}
	if record.Outcome != domain.OutcomeSent {
		t.Fatalf("DispatchOne() outcome = %v, want %v", record.Outcome, domain.OutcomeSent)
	}
	if channel.calls != 1 {
		t.Fatalf("channel called %d times, want 1", channel.calls)
	}
	if len(history.records) != 2 {
		t.Fatalf("history has %d records, want 2", len(history.records))
	}
}

func TestDispatchOneUnknownInvoice(t *testing.T) {
	t.Parallel()

	invoices := &fakeInvoiceRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Invoice, error) {
			return nil, domain.ErrNotFound
		},
	}

	runner := newTestRunner(t, invoices, &fakeHistoryRepo{}, okChannel())

	_, err := runner.DispatchOne(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("DispatchOne() error = %v, want %v", err, domain.ErrNotFound)
	}
}
