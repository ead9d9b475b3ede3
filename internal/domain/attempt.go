package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the terminal result of one dispatch attempt for one invoice.
type Outcome string

const (
	OutcomeSent               Outcome = "SENT"
	OutcomeFailed             Outcome = "FAILED"
	OutcomeSkippedInvalidData Outcome = "SKIPPED_INVALID_DATA"
)

func (o Outcome) String() string { return string(o) }

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSent, OutcomeFailed, OutcomeSkippedInvalidData:
		return true
	}
	return false
}

func ParseOutcomeFromString(s string) (Outcome, error) {
	o := Outcome(strings.ToUpper(strings.TrimSpace(s)))
	if !o.IsValid() {
		return "", fmt.Errorf("%w: invalid outcome %q", ErrValidation, s)
	}
	return o, nil
}

// SendAttemptRecord is the append-only audit entry for a dispatch outcome.
// Invoice fields are snapshots taken at send time; the record stays valid
// even if the source invoice is later rescheduled or deleted. Records are
// the sole source of truth for dedup and statistics and are never updated.
type SendAttemptRecord struct {
	ID                string          `gorm:"type:uuid;primaryKey"`
	InvoiceID         string          `gorm:"type:uuid;not null"`
	CustomerName      string          `gorm:"type:varchar(255);not null"`
	CustomerPhone     string          `gorm:"type:varchar(32);not null"`
	DueDate           string          `gorm:"type:varchar(10);not null"`
	Amount            decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Message           string          `gorm:"type:text"`
	Outcome           Outcome         `gorm:"type:varchar(24);not null"`
	Attempts          int             `gorm:"not null;default:0"`
	ProviderMessageID *string         `gorm:"type:varchar(255)"`
	FailureDetail     *string         `gorm:"type:text"`
	AttemptedAt       time.Time       `gorm:"type:timestamptz;not null"`
}
