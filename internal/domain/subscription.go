package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingPeriod is the recurrence unit of a subscription
type BillingPeriod string

const (
	PeriodMonthly BillingPeriod = "monthly"
	PeriodYearly  BillingPeriod = "yearly"
	PeriodWeekly  BillingPeriod = "weekly"
)

const (
	MinPaymentDay   = 1
	MaxPaymentDay   = 31
	DefaultCurrency = "RUB"
)

// BillingPeriods lists periods in the order they are offered to the user
var BillingPeriods = []BillingPeriod{PeriodMonthly, PeriodYearly, PeriodWeekly}

// ParseBillingPeriod accepts the stored value ("monthly", ...)
func ParseBillingPeriod(s string) (BillingPeriod, bool) {
	p := BillingPeriod(s)
	switch p {
	case PeriodMonthly, PeriodYearly, PeriodWeekly:
		return p, true
	}
	return "", false
}

// Label returns the adverb used in dialogs ("ежемесячно")
func (p BillingPeriod) Label() string {
	switch p {
	case PeriodMonthly:
		return "ежемесячно"
	case PeriodYearly:
		return "ежегодно"
	case PeriodWeekly:
		return "еженедельно"
	default:
		return string(p)
	}
}

// Adjective returns the form used in reminders ("ежемесячная")
func (p BillingPeriod) Adjective() string {
	switch p {
	case PeriodMonthly:
		return "ежемесячная"
	case PeriodYearly:
		return "ежегодная"
	case PeriodWeekly:
		return "еженедельная"
	default:
		return string(p)
	}
}

var (
	monthsPerYear = decimal.NewFromInt(12)
	weeksPerMonth = decimal.NewFromFloat(4.33)
	weeksPerYear  = decimal.NewFromInt(52)
)

type Subscription struct {
	ID                   int64
	UserID               int64
	Name                 string
	Price                decimal.Decimal
	Currency             string
	PaymentDay           int // nominal day of month, 1-31
	BillingPeriod        BillingPeriod
	CategoryID           *int64
	Category             *Category // populated by storage joins
	Description          string
	IsActive             bool
	NotificationsEnabled bool
	NextPaymentDate      time.Time // calendar day, 00:00 UTC
	CalendarUID          string
	CreatedAt            time.Time
}

// CategoryName returns the category name or the uncategorized placeholder
func (s *Subscription) CategoryName() string {
	if s.Category == nil || s.Category.Name == "" {
		return UncategorizedName
	}
	return s.Category.Name
}

// MonthlyCost normalizes the price to one month
func (s *Subscription) MonthlyCost() decimal.Decimal {
	switch s.BillingPeriod {
	case PeriodYearly:
		return s.Price.Div(monthsPerYear)
	case PeriodWeekly:
		return s.Price.Mul(weeksPerMonth)
	default:
		return s.Price
	}
}

// YearlyCost normalizes the price to one year
func (s *Subscription) YearlyCost() decimal.Decimal {
	switch s.BillingPeriod {
	case PeriodYearly:
		return s.Price
	case PeriodWeekly:
		return s.Price.Mul(weeksPerYear)
	default:
		return s.Price.Mul(monthsPerYear)
	}
}

// StatusEmoji marks paused subscriptions
func (s *Subscription) StatusEmoji() string {
	if !s.IsActive {
		return "⏸"
	}
	if !s.NotificationsEnabled {
		return "🔕"
	}
	return "✅"
}
