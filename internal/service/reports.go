package service

import (
	"context"
	"fmt"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/billingdesk/invoice-notifier/internal/repository"
	"github.com/shopspring/decimal"
)

// ReportService exposes the read side: attempt history, outcome
// statistics, and the dashboard snapshot. Everything is derived from the
// append-only history plus the current invoice set.
type ReportService struct {
	invoices repository.InvoiceRepository
	history  repository.HistoryRepository
	loc      *time.Location
	now      func() time.Time
}

func NewReportService(
	invoices repository.InvoiceRepository,
	history repository.HistoryRepository,
	loc *time.Location,
) (*ReportService, error) {
	if invoices == nil || history == nil {
		return nil, fmt.Errorf("report service dependencies are incomplete")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{
		invoices: invoices,
		history:  history,
		loc:      loc,
		now:      time.Now,
	}, nil
}

// WithNow overrides the clock. Test hook.
func (s *ReportService) WithNow(now func() time.Time) *ReportService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *ReportService) History(ctx context.Context, params repository.HistoryListParams) ([]domain.SendAttemptRecord, int64, error) {
	return s.history.List(ctx, params)
}

func (s *ReportService) Statistics(ctx context.Context) (*domain.Statistics, error) {
	return s.history.GetStatistics(ctx, s.todayStart())
}

// DashboardSummary counts the open invoices, splits them into overdue
// and upcoming relative to the business-local day, and sums the open
// amount.
func (s *ReportService) DashboardSummary(ctx context.Context) (*domain.DashboardSummary, error) {
	open, err := s.invoices.ListEligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open invoices: %w", err)
	}

	todayStart := s.todayStart()
	summary := &domain.DashboardSummary{
		OpenInvoices:    len(open),
		TotalOpenAmount: decimal.Zero,
	}
	for i := range open {
		summary.TotalOpenAmount = summary.TotalOpenAmount.Add(open[i].Amount)

		due, err := domain.ParseDueDate(open[i].DueDate, s.loc)
		if err != nil {
			// Unparseable due dates are surfaced by the dispatch run;
			// here they just count as neither overdue nor upcoming.
			continue
		}
		if due.Before(todayStart) {
			summary.OverdueInvoices++
		} else {
			summary.UpcomingDue++
		}
	}

	stats, err := s.history.GetStatistics(ctx, todayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt statistics: %w", err)
	}
	for _, total := range stats.Totals {
		summary.TotalAttempts += total.Count
	}
	summary.LastAttemptAt = stats.LastAttemptAt

	return summary, nil
}

func (s *ReportService) todayStart() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}
