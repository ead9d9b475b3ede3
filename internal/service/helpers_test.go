package service

import (
	"context"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/billingdesk/invoice-notifier/internal/provider"
	"github.com/billingdesk/invoice-notifier/internal/repository"
	"github.com/shopspring/decimal"
)

type fakeChannel struct {
	sendFn func(ctx context.Context, phone string, text string) (*provider.SendReceipt, error)
	calls  int
}

func (f *fakeChannel) Send(ctx context.Context, phone string, text string) (*provider.SendReceipt, error) {
	f.calls++
	return f.sendFn(ctx, phone, text)
}

type fakeInvoiceRepo struct {
	createFn       func(ctx context.Context, invoice *domain.Invoice) error
	getByIDFn      func(ctx context.Context, id string) (*domain.Invoice, error)
	listFn         func(ctx context.Context, params repository.InvoiceListParams) ([]domain.Invoice, int64, error)
	listEligibleFn func(ctx context.Context) ([]domain.Invoice, error)
	updateFn       func(ctx context.Context, invoice *domain.Invoice) error
	updateStatusFn func(ctx context.Context, id string, status domain.InvoiceStatus) error
	deleteFn       func(ctx context.Context, id string) error
}

func (f *fakeInvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	return f.createFn(ctx, invoice)
}

func (f *fakeInvoiceRepo) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	return f.getByIDFn(ctx, id)
}

func (f *fakeInvoiceRepo) List(ctx context.Context, params repository.InvoiceListParams) ([]domain.Invoice, int64, error) {
	return f.listFn(ctx, params)
}

func (f *fakeInvoiceRepo) ListEligible(ctx context.Context) ([]domain.Invoice, error) {
	return f.listEligibleFn(ctx)
}

func (f *fakeInvoiceRepo) Update(ctx context.Context, invoice *domain.Invoice) error {
	return f.updateFn(ctx, invoice)
}

func (f *fakeInvoiceRepo) UpdateStatus(ctx context.Context, id string, status domain.InvoiceStatus) error {
	return f.updateStatusFn(ctx, id, status)
}

func (f *fakeInvoiceRepo) Delete(ctx context.Context, id string) error {
	return f.deleteFn(ctx, id)
}

type fakeHistoryRepo struct {
	recordAttemptFn func(ctx context.Context, record *domain.SendAttemptRecord) error
	hasSentSinceFn  func(ctx context.Context, invoiceID string, dueDate string, since time.Time) (bool, error)
	getStatisticsFn func(ctx context.Context, todayStart time.Time) (*domain.Statistics, error)
	listFn          func(ctx context.Context, params repository.HistoryListParams) ([]domain.SendAttemptRecord, int64, error)

	records []domain.SendAttemptRecord
}

func (f *fakeHistoryRepo) RecordAttempt(ctx context.Context, record *domain.SendAttemptRecord) error {
	if f.recordAttemptFn != nil {
		if err := f.recordAttemptFn(ctx, record); err != nil {
			return err
		}
	}
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeHistoryRepo) HasSentSince(ctx context.Context, invoiceID string, dueDate string, since time.Time) (bool, error) {
	if f.hasSentSinceFn != nil {
		return f.hasSentSinceFn(ctx, invoiceID, dueDate, since)
	}
	for _, rec := range f.records {
		if rec.InvoiceID == invoiceID && rec.DueDate == dueDate &&
			rec.Outcome == domain.OutcomeSent && !rec.AttemptedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeHistoryRepo) GetStatistics(ctx context.Context, todayStart time.Time) (*domain.Statistics, error) {
	return f.getStatisticsFn(ctx, todayStart)
}

func (f *fakeHistoryRepo) List(ctx context.Context, params repository.HistoryListParams) ([]domain.SendAttemptRecord, int64, error) {
	return f.listFn(ctx, params)
}

func testInvoice(id string, dueDate string) domain.Invoice {
	return domain.Invoice{
		ID:            id,
		CustomerName:  "Maria Souza",
		CustomerPhone: "5511999990000",
		DueDate:       dueDate,
		Amount:        decimal.NewFromFloat(150.50),
		Status:        domain.InvoiceStatusPending,
	}
}
