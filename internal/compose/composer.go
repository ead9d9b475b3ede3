// Package compose builds the reminder text sent to a customer for one
// invoice. Composition is pure: no clock reads besides the injected now
// function and no I/O.
package compose

import (
	"fmt"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/domain"
)

// Composer renders invoice reminders in the business's local calendar.
type Composer struct {
	companyName  string
	companyPhone string
	loc          *time.Location
	now          func() time.Time
}

func NewComposer(companyName, companyPhone string, loc *time.Location) *Composer {
	if loc == nil {
		loc = time.UTC
	}
	return &Composer{
		companyName:  companyName,
		companyPhone: companyPhone,
		loc:          loc,
		now:          time.Now,
	}
}

// WithNow overrides the clock. Test hook.
func (c *Composer) WithNow(now func() time.Time) *Composer {
	if now != nil {
		c.now = now
	}
	return c
}

// Compose returns the reminder text for an invoice, branching on how far
// the due date is from today in the business time zone. The due date
// string is echoed verbatim; only the day arithmetic parses it. Fails
// with domain.ErrInvalidDueDate on an unparsable date, never panics.
func (c *Composer) Compose(inv domain.Invoice) (string, error) {
	days, err := c.DaysUntilDue(inv.DueDate)
	if err != nil {
		return "", err
	}

	amount := FormatBRL(inv.Amount)

	switch {
	case days > 0:
		return fmt.Sprintf(
			"Olá %s, da %s! Seu boleto de %s vence em %d dia(s) (%s). Pagou? Desconsidere. Dúvidas? %s.",
			inv.CustomerName, c.companyName, amount, days, inv.DueDate, c.companyPhone,
		), nil
	case days == 0:
		return fmt.Sprintf(
			"Olá %s, da %s! Seu boleto de %s vence HOJE (%s). Evite juros! Pagou? Desconsidere. Dúvidas? %s.",
			inv.CustomerName, c.companyName, amount, inv.DueDate, c.companyPhone,
		), nil
	default:
		return fmt.Sprintf(
			"Olá %s, da %s! Notamos que seu boleto de %s (venc. %s) está em aberto há %d dia(s). Regularize sua situação. Pagou? Desconsidere. Dúvidas? %s.",
			inv.CustomerName, c.companyName, amount, inv.DueDate, -days, c.companyPhone,
		), nil
	}
}

// DaysUntilDue computes dueDate minus today at calendar-day granularity,
// both truncated to midnight in the business time zone. Rounding absorbs
// the 23h/25h days around DST transitions.
func (c *Composer) DaysUntilDue(dueDate string) (int, error) {
	due, err := domain.ParseDueDate(dueDate, c.loc)
	if err != nil {
		return 0, err
	}

	now := c.now().In(c.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)

	days := due.Sub(today).Hours() / 24
	if days >= 0 {
		return int(days + 0.5), nil
	}
	return int(days - 0.5), nil
}
