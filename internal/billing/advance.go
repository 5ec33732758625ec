package billing

import (
	"time"

	"github.com/tazhate/subsbot/internal/domain"
)

// InitialDueDate returns the soonest day on or after reference that falls on
// anchorDay of a month, clamped to the month length. anchorDay must already
// be within 1..31.
func InitialDueDate(anchorDay int, reference time.Time) time.Time {
	ref := DateOf(reference)
	due := clampedDate(ref.Year(), ref.Month(), anchorDay)
	if due.Before(ref) {
		due = clampedDate(ref.Year(), ref.Month()+1, anchorDay)
	}
	return due
}

// AdvanceOnePeriod returns the due date exactly one period after current.
// Weekly ignores anchorDay; an unknown period advances like monthly.
func AdvanceOnePeriod(current time.Time, period domain.BillingPeriod, anchorDay int) time.Time {
	cur := DateOf(current)
	switch period {
	case domain.PeriodWeekly:
		return cur.AddDate(0, 0, 7)
	case domain.PeriodYearly:
		return clampedDate(cur.Year()+1, cur.Month(), anchorDay)
	default:
		return clampedDate(cur.Year(), cur.Month()+1, anchorDay)
	}
}

// CatchUp advances current one period at a time until it is not before
// today. It returns the new date and the number of strides taken; a date
// already on or after today is returned unchanged with zero strides.
func CatchUp(current time.Time, period domain.BillingPeriod, anchorDay int, today time.Time) (time.Time, int) {
	next := DateOf(current)
	today = DateOf(today)
	strides := 0
	for next.Before(today) {
		next = AdvanceOnePeriod(next, period, anchorDay)
		strides++
	}
	return next, strides
}

// Advancement records one subscription moved forward by CatchUpAllDue.
type Advancement struct {
	Subscription *domain.Subscription
	From         time.Time
	To           time.Time
	Strides      int
}

// CatchUpAllDue computes the new due date of every active subscription whose
// next payment date is before today. Subscriptions are not modified: the
// caller persists each Advancement and updates the record on success.
func CatchUpAllDue(subs []*domain.Subscription, today time.Time) []Advancement {
	var out []Advancement
	for _, s := range subs {
		if s == nil || !s.IsActive {
			continue
		}
		from := DateOf(s.NextPaymentDate)
		to, strides := CatchUp(from, s.BillingPeriod, s.PaymentDay, today)
		if strides == 0 {
			continue
		}
		out = append(out, Advancement{Subscription: s, From: from, To: to, Strides: strides})
	}
	return out
}

// Occurrences returns n consecutive due dates starting with first.
func Occurrences(first time.Time, period domain.BillingPeriod, anchorDay, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	dates := make([]time.Time, 0, n)
	d := DateOf(first)
	for i := 0; i < n; i++ {
		dates = append(dates, d)
		d = AdvanceOnePeriod(d, period, anchorDay)
	}
	return dates
}
