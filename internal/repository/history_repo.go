package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type HistoryListParams struct {
	Outcome  *domain.Outcome
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// HistoryRepository is the append-only store of send attempt records.
// Records are never updated or deleted; dedup and statistics are derived
// exclusively from them.
type HistoryRepository interface {
	RecordAttempt(ctx context.Context, record *domain.SendAttemptRecord) error
	// HasSentSince reports whether a successful send exists for the
	// (invoiceID, dueDate) dedup key at or after the given instant.
	HasSentSince(ctx context.Context, invoiceID string, dueDate string, since time.Time) (bool, error)
	GetStatistics(ctx context.Context, todayStart time.Time) (*domain.Statistics, error)
	List(ctx context.Context, params HistoryListParams) ([]domain.SendAttemptRecord, int64, error)
}

type GormHistoryRepo struct {
	db *gorm.DB
}

func NewGormHistoryRepo(db *gorm.DB) *GormHistoryRepo {
	return &GormHistoryRepo{db: db}
}

func (r *GormHistoryRepo) RecordAttempt(ctx context.Context, record *domain.SendAttemptRecord) error {
	if record == nil {
		return domain.ErrValidation
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.AttemptedAt.IsZero() {
		record.AttemptedAt = time.Now().UTC()
	}

	model := attemptModelFromDomain(record)
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormHistoryRepo) HasSentSince(ctx context.Context, invoiceID string, dueDate string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&SendAttemptModel{}).
		Where("invoice_id = ? AND due_date = ? AND outcome = ? AND attempted_at >= ?",
			invoiceID, dueDate, domain.OutcomeSent, since).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormHistoryRepo) GetStatistics(ctx context.Context, todayStart time.Time) (*domain.Statistics, error) {
	type outcomeRow struct {
		Outcome domain.Outcome `gorm:"column:outcome"`
		Count   int64          `gorm:"column:count"`
	}

	var totals []outcomeRow
	err := r.db.WithContext(ctx).
		Model(&SendAttemptModel{}).
		Select("outcome, COUNT(*) as count").
		Group("outcome").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}

	stats := &domain.Statistics{
		Totals: make([]domain.OutcomeCount, 0, len(totals)),
	}
	for _, row := range totals {
		stats.Totals = append(stats.Totals, domain.OutcomeCount{Outcome: row.Outcome, Count: row.Count})
	}

	var todayRows []outcomeRow
	err = r.db.WithContext(ctx).
		Model(&SendAttemptModel{}).
		Select("outcome, COUNT(*) as count").
		Where("attempted_at >= ?", todayStart).
		Group("outcome").
		Scan(&todayRows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range todayRows {
		switch row.Outcome {
		case domain.OutcomeSent:
			stats.SentToday = row.Count
		case domain.OutcomeFailed:
			stats.FailedToday = row.Count
		}
	}

	var last SendAttemptModel
	err = r.db.WithContext(ctx).
		Order("attempted_at DESC").
		First(&last).Error
	if err == nil {
		at := last.AttemptedAt
		stats.LastAttemptAt = &at
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return stats, nil
}

func (r *GormHistoryRepo) List(ctx context.Context, params HistoryListParams) ([]domain.SendAttemptRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&SendAttemptModel{})

	if params.Outcome != nil {
		query = query.Where("outcome = ?", *params.Outcome)
	}
	if params.From != nil {
		query = query.Where("attempted_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("attempted_at <= ?", *params.To)
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

	var models []SendAttemptModel
	err := query.
		Order("attempted_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.SendAttemptRecord, 0, len(models))
	for i := range models {
		records = append(records, *attemptModelToDomain(&models[i]))
	}

	return records, total, nil
}
