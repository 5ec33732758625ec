package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/subsbot/internal/domain"
)

func newSub(id, userID int64, next time.Time) *domain.Subscription {
	return &domain.Subscription{
		ID:                   id,
		UserID:               userID,
		Name:                 "Sub",
		Price:                decimal.NewFromInt(100),
		Currency:             "RUB",
		PaymentDay:           next.Day(),
		BillingPeriod:        domain.PeriodMonthly,
		IsActive:             true,
		NotificationsEnabled: true,
		NextPaymentDate:      next,
	}
}

func TestSelectDueExactDay(t *testing.T) {
	today := Date(2024, time.March, 10)
	user := &domain.User{ID: 1, TelegramID: 100, NotificationDays: 3}

	onDay := newSub(1, 1, AddDays(today, 3))
	early := newSub(2, 1, AddDays(today, 2))
	late := newSub(3, 1, AddDays(today, 4))

	due := SelectDue([]*domain.Subscription{onDay, early, late}, []*domain.User{user}, today)
	require.Len(t, due, 1)
	assert.Same(t, onDay, due[0].Subscription)
	assert.Same(t, user, due[0].User)
	assert.Equal(t, 3, due[0].DaysUntil)
}

func TestSelectDueExcludesPausedAndMuted(t *testing.T) {
	today := Date(2024, time.March, 10)
	user := &domain.User{ID: 1, NotificationDays: 1}

	paused := newSub(1, 1, AddDays(today, 1))
	paused.IsActive = false
	muted := newSub(2, 1, AddDays(today, 1))
	muted.NotificationsEnabled = false

	assert.Empty(t, SelectDue([]*domain.Subscription{paused, muted}, []*domain.User{user}, today))
}

func TestSelectDuePerUserLeadDays(t *testing.T) {
	today := Date(2024, time.December, 30)
	alice := &domain.User{ID: 1, NotificationDays: 3}
	bob := &domain.User{ID: 2, NotificationDays: 7}
	off := &domain.User{ID: 3, NotificationDays: 0}

	aliceSub := newSub(1, 1, Date(2025, time.January, 2))
	bobSub := newSub(2, 2, Date(2025, time.January, 2))
	bobLater := newSub(3, 2, Date(2025, time.January, 6))
	offSub := newSub(4, 3, today)
	orphan := newSub(5, 42, Date(2025, time.January, 2))

	due := SelectDue(
		[]*domain.Subscription{aliceSub, bobSub, bobLater, offSub, orphan},
		[]*domain.User{alice, bob, off},
		today,
	)
	require.Len(t, due, 2)
	assert.Same(t, aliceSub, due[0].Subscription)
	assert.Same(t, bobLater, due[1].Subscription)
	assert.Equal(t, 7, due[1].DaysUntil)
}

func TestPluralDays(t *testing.T) {
	cases := map[int]string{
		0: "дней", 1: "день", 2: "дня", 4: "дня", 5: "дней",
		11: "дней", 12: "дней", 14: "дней", 21: "день", 22: "дня", 25: "дней", 101: "день", 111: "дней",
	}
	for n, want := range cases {
		assert.Equal(t, want, PluralDays(n), "n=%d", n)
	}
}

func TestFormatReminder(t *testing.T) {
	sub := newSub(1, 1, Date(2024, time.March, 13))
	sub.Name = "Music <Pro>"
	sub.Price = decimal.RequireFromString("199.5")
	sub.Category = &domain.Category{Name: "Музыка"}

	text := FormatReminder(sub, 3)
	assert.Contains(t, text, "Music &lt;Pro&gt;")
	assert.Contains(t, text, "199.50 RUB")
	assert.Contains(t, text, "13.03.2024")
	assert.Contains(t, text, "3 дня")
	assert.Contains(t, text, "ежемесячная")
	assert.Contains(t, text, "Музыка")
}

func TestFormatReminderUncategorized(t *testing.T) {
	text := FormatReminder(newSub(1, 1, Date(2024, time.March, 11)), 1)
	assert.Contains(t, text, domain.UncategorizedName)
	assert.Contains(t, text, "1 день")
}
