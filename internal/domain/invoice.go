package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DueDateLayout is the calendar-date wire format used across the system.
// Due dates carry no time component; "today" is computed in the business
// time zone, never the host's local zone.
const DueDateLayout = "02/01/2006"

// InvoiceStatus represents the collection state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "PENDING"
	InvoiceStatusOverdue  InvoiceStatus = "OVERDUE"
	InvoiceStatusPaid     InvoiceStatus = "PAID"
	InvoiceStatusCanceled InvoiceStatus = "CANCELED"
)

func (s InvoiceStatus) String() string { return string(s) }

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusOverdue, InvoiceStatusPaid, InvoiceStatusCanceled:
		return true
	}
	return false
}

// IsEligible reports whether an invoice in this status may be notified.
// Only open invoices (pending or overdue) enter a dispatch run.
func (s InvoiceStatus) IsEligible() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusOverdue
}

func ParseInvoiceStatusFromString(s string) (InvoiceStatus, error) {
	st := InvoiceStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid invoice status %q", ErrValidation, s)
	}
	return st, nil
}

// Invoice is the billing record a notification is composed from. The
// dispatch pipeline treats it as read-only input; only the CRUD surface
// mutates invoices.
type Invoice struct {
	ID            string          `gorm:"type:uuid;primaryKey"`
	CustomerName  string          `gorm:"type:varchar(255);not null"`
	CustomerPhone string          `gorm:"type:varchar(32);not null"`
	DueDate       string          `gorm:"type:varchar(10);not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Status        InvoiceStatus   `gorm:"type:varchar(20);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the fields the dispatch pipeline depends on. A failing
// invoice is skipped and counted, never fatal to a run.
func (i *Invoice) Validate() error {
	if strings.TrimSpace(i.CustomerName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if strings.TrimSpace(i.CustomerPhone) == "" {
		return fmt.Errorf("%w: customer phone is required", ErrValidation)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("%w: invalid invoice status %q", ErrValidation, i.Status)
	}
	if i.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if _, err := ParseDueDate(i.DueDate, time.UTC); err != nil {
		return err
	}
	return nil
}

// ParseDueDate parses a DD/MM/YYYY due date at midnight in loc. It wraps
// ErrInvalidDueDate so callers can map the failure to a skipped outcome.
func ParseDueDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	trimmed := strings.TrimSpace(value)
	t, err := time.ParseInLocation(DueDateLayout, trimmed, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not DD/MM/YYYY", ErrInvalidDueDate, value)
	}
	return t, nil
}
