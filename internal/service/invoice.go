package service

import (
	"context"
	"fmt"

	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/billingdesk/invoice-notifier/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService owns invoice lifecycle operations for the API. It does
// not send anything; dispatching is the DispatchRunner's job.
type InvoiceService struct {
	invoices repository.InvoiceRepository
	logger   *zap.Logger
}

func NewInvoiceService(invoices repository.InvoiceRepository, logger *zap.Logger) (*InvoiceService, error) {
	if invoices == nil {
		return nil, fmt.Errorf("invoice repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{invoices: invoices, logger: logger}, nil
}

func (s *InvoiceService) Create(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, error) {
	if invoice == nil {
		return nil, fmt.Errorf("%w: invoice is required", domain.ErrValidation)
	}
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusPending
	}
	if err := invoice.Validate(); err != nil {
		return nil, err
	}

	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, err
	}

	s.logger.Info("invoice created",
		zap.String("invoiceId", invoice.ID),
		zap.String("dueDate", invoice.DueDate),
	)
	return invoice, nil
}

func (s *InvoiceService) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: invoice id is required", domain.ErrValidation)
	}
	return s.invoices.GetByID(ctx, id)
}

func (s *InvoiceService) List(ctx context.Context, params repository.InvoiceListParams) ([]domain.Invoice, int64, error) {
	return s.invoices.List(ctx, params)
}

// Update replaces the mutable fields of an invoice. A due date change
// makes the invoice eligible for notification again; the dedup key
// includes the due date, so no history rewrite is needed.
func (s *InvoiceService) Update(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, error) {
	if invoice == nil || invoice.ID == "" {
		return nil, fmt.Errorf("%w: invoice id is required", domain.ErrValidation)
	}
	if err := invoice.Validate(); err != nil {
		return nil, err
	}

	if err := s.invoices.Update(ctx, invoice); err != nil {
		return nil, err
	}
	return s.invoices.GetByID(ctx, invoice.ID)
}

// MarkPaid transitions an invoice out of the eligible set.
func (s *InvoiceService) MarkPaid(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: invoice id is required", domain.ErrValidation)
	}
	if err := s.invoices.UpdateStatus(ctx, id, domain.InvoiceStatusPaid); err != nil {
		return err
	}
	s.logger.Info("invoice marked paid", zap.String("invoiceId", id))
	return nil
}

func (s *InvoiceService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: invoice id is required", domain.ErrValidation)
	}
	return s.invoices.Delete(ctx, id)
}
