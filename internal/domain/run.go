package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DispatchRunResult aggregates the counters of one dispatch run. It is
// transient: returned to the trigger (cron or API), never persisted.
type DispatchRunResult struct {
	Sent               int `json:"sent"`
	Failed             int `json:"failed"`
	SkippedAlreadySent int `json:"skippedAlreadySent"`
	SkippedInvalidData int `json:"skippedInvalidData"`
	TotalEligible      int `json:"totalEligible"`
}

// Processed returns how many invoices reached a terminal decision.
func (r DispatchRunResult) Processed() int {
	return r.Sent + r.Failed + r.SkippedAlreadySent + r.SkippedInvalidData
}

// OutcomeCount pairs an outcome with its record count.
type OutcomeCount struct {
	Outcome Outcome `json:"outcome"`
	Count   int64   `json:"count"`
}

// Statistics summarizes the attempt history for reporting.
type Statistics struct {
	Totals        []OutcomeCount `json:"totals"`
	SentToday     int64          `json:"sentToday"`
	FailedToday   int64          `json:"failedToday"`
	LastAttemptAt *time.Time     `json:"lastAttemptAt,omitempty"`
}

// DashboardSummary is the operator-facing snapshot: how much is open,
// how much of it is late, and when the pipeline last did anything.
type DashboardSummary struct {
	OpenInvoices    int             `json:"openInvoices"`
	OverdueInvoices int             `json:"overdueInvoices"`
	UpcomingDue     int             `json:"upcomingDue"`
	TotalOpenAmount decimal.Decimal `json:"totalOpenAmount"`
	TotalAttempts   int64           `json:"totalAttempts"`
	LastAttemptAt   *time.Time      `json:"lastAttemptAt,omitempty"`
}
