package repository

import (
	"time"

	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the invoices table.
type InvoiceModel struct {
	ID            string               `gorm:"type:uuid;primaryKey"`
	CustomerName  string               `gorm:"type:varchar(255);not null"`
	CustomerPhone string               `gorm:"type:varchar(32);not null"`
	DueDate       string               `gorm:"type:varchar(10);not null"`
	Amount        decimal.Decimal      `gorm:"type:numeric(14,2);not null"`
	Status        domain.InvoiceStatus `gorm:"type:varchar(20);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (InvoiceModel) TableName() string {
	return "invoices"
}

// SendAttemptModel is the persistence model for send_attempts. Rows are
// inserted once and never updated or deleted.
type SendAttemptModel struct {
	ID                string          `gorm:"type:uuid;primaryKey"`
	InvoiceID         string          `gorm:"type:uuid;not null"`
	CustomerName      string          `gorm:"type:varchar(255);not null"`
	CustomerPhone     string          `gorm:"type:varchar(32);not null"`
	DueDate           string          `gorm:"type:varchar(10);not null"`
	Amount            decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Message           string          `gorm:"type:text"`
	Outcome           domain.Outcome  `gorm:"type:varchar(24);not null"`
	Attempts          int             `gorm:"not null;default:0"`
	ProviderMessageID *string         `gorm:"type:varchar(255)"`
	FailureDetail     *string         `gorm:"type:text"`
	AttemptedAt       time.Time       `gorm:"type:timestamptz;not null"`
}

func (SendAttemptModel) TableName() string {
	return "send_attempts"
}

func invoiceModelFromDomain(i *domain.Invoice) *InvoiceModel {
	if i == nil {
		return nil
	}

	return &InvoiceModel{
		ID:            i.ID,
		CustomerName:  i.CustomerName,
		CustomerPhone: i.CustomerPhone,
		DueDate:       i.DueDate,
		Amount:        i.Amount,
		Status:        i.Status,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

func invoiceModelToDomain(m *InvoiceModel) *domain.Invoice {
	if m == nil {
		return nil
	}

	return &domain.Invoice{
		ID:            m.ID,
		CustomerName:  m.CustomerName,
		CustomerPhone: m.CustomerPhone,
		DueDate:       m.DueDate,
		Amount:        m.Amount,
		Status:        m.Status,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.SendAttemptRecord) *SendAttemptModel {
	if a == nil {
		return nil
	}

	return &SendAttemptModel{
		ID:                a.ID,
		InvoiceID:         a.InvoiceID,
		CustomerName:      a.CustomerName,
		CustomerPhone:     a.CustomerPhone,
		DueDate:           a.DueDate,
		Amount:            a.Amount,
		Message:           a.Message,
		Outcome:           a.Outcome,
		Attempts:          a.Attempts,
		ProviderMessageID: a.ProviderMessageID,
		FailureDetail:     a.FailureDetail,
		AttemptedAt:       a.AttemptedAt,
	}
}

func attemptModelToDomain(m *SendAttemptModel) *domain.SendAttemptRecord {
	if m == nil {
		return nil
	}

	return &domain.SendAttemptRecord{
		ID:                m.ID,
		InvoiceID:         m.InvoiceID,
		CustomerName:      m.CustomerName,
		CustomerPhone:     m.CustomerPhone,
		DueDate:           m.DueDate,
		Amount:            m.Amount,
		Message:           m.Message,
		Outcome:           m.Outcome,
		Attempts:          m.Attempts,
		ProviderMessageID: m.ProviderMessageID,
		FailureDetail:     m.FailureDetail,
		AttemptedAt:       m.AttemptedAt,
	}
}
