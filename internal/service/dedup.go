package service

import (
	"context"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/repository"
)

// DedupGuard answers whether an invoice was already successfully notified
// today. The key is (invoiceId, dueDate), not invoiceId alone: a
// rescheduled invoice must be eligible again even if the old due date was
// notified. "Today" starts at midnight in the business time zone, never
// the host's local zone, so the window is stable wherever the process
// runs. The check is read-only.
type DedupGuard struct {
	history repository.HistoryRepository
	loc     *time.Location
	now     func() time.Time
}

func NewDedupGuard(history repository.HistoryRepository, loc *time.Location) *DedupGuard {
	if loc == nil {
		loc = time.UTC
	}
	return &DedupGuard{
		history: history,
		loc:     loc,
		now:     time.Now,
	}
}

// WithNow overrides the clock. Test hook.
func (g *DedupGuard) WithNow(now func() time.Time) *DedupGuard {
	if now != nil {
		g.now = now
	}
	return g
}

func (g *DedupGuard) AlreadySentToday(ctx context.Context, invoiceID string, dueDate string) (bool, error) {
	return g.history.HasSentSince(ctx, invoiceID, dueDate, g.TodayStart())
}

// TodayStart returns midnight of the current business-local day.
func (g *DedupGuard) TodayStart() time.Time {
	now := g.now().In(g.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.loc)
}
