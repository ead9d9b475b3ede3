package repository

import (
	"context"
	"errors"

	"github.com/billingdesk/invoice-notifier/internal/domain"
	"gorm.io/gorm"
)

type InvoiceListParams struct {
	Status   *domain.InvoiceStatus
	Page     int
	PageSize int
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	List(ctx context.Context, params InvoiceListParams) ([]domain.Invoice, int64, error)
	// ListEligible returns every open (pending or overdue) invoice in
	// stable order. The dispatch run is the only consumer that depends on
	// the ordering.
	ListEligible(ctx context.Context) ([]domain.Invoice, error)
	Update(ctx context.Context, invoice *domain.Invoice) error
	UpdateStatus(ctx context.Context, id string, status domain.InvoiceStatus) error
	Delete(ctx context.Context, id string) error
}

type GormInvoiceRepo struct {
	db *gorm.DB
}

func NewGormInvoiceRepo(db *gorm.DB) *GormInvoiceRepo {
	return &GormInvoiceRepo{db: db}
}

func (r *GormInvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	model := invoiceModelFromDomain(invoice)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if invoice != nil {
		*invoice = *invoiceModelToDomain(model)
	}
	return nil
}

func (r *GormInvoiceRepo) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	var model InvoiceModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return invoiceModelToDomain(&model), nil
}

func (r *GormInvoiceRepo) List(ctx context.Context, params InvoiceListParams) ([]domain.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&InvoiceModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []InvoiceModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	invoices := make([]domain.Invoice, 0, len(models))
	for i := range models {
		invoices = append(invoices, *invoiceModelToDomain(&models[i]))
	}

	return invoices, total, nil
}

func (r *GormInvoiceRepo) ListEligible(ctx context.Context) ([]domain.Invoice, error) {
	var models []InvoiceModel
	err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.InvoiceStatus{domain.InvoiceStatusPending, domain.InvoiceStatusOverdue}).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	invoices := make([]domain.Invoice, 0, len(models))
	for i := range models {
		invoices = append(invoices, *invoiceModelToDomain(&models[i]))
	}

	return invoices, nil
}

func (r *GormInvoiceRepo) Update(ctx context.Context, invoice *domain.Invoice) error {
	if invoice == nil {
		return domain.ErrValidation
	}

	model := invoiceModelFromDomain(invoice)
	result := r.db.WithContext(ctx).
		Model(&InvoiceModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"customer_name":  model.CustomerName,
			"customer_phone": model.CustomerPhone,
			"due_date":       model.DueDate,
			"amount":         model.Amount,
			"status":         model.Status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormInvoiceRepo) UpdateStatus(ctx context.Context, id string, status domain.InvoiceStatus) error {
	result := r.db.WithContext(ctx).
		Model(&InvoiceModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormInvoiceRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&InvoiceModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
