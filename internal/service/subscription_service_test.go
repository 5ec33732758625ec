package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/subsbot/internal/billing"
	"github.com/tazhate/subsbot/internal/domain"
)

const testTelegramID = 42

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 12, 0, 0, 0, time.UTC) }
}

func newTestService(t *testing.T) (*SubscriptionService, *memStore, *domain.User) {
	t.Helper()
	store := newMemStore()
	svc := NewSubscriptionService(store, time.UTC, 3, discardLogger())
	svc.now = fixedClock(2024, time.March, 10)

	u, created, err := svc.GetOrCreateUser(context.Background(), testTelegramID, Profile{FirstName: "Anna"})
	require.NoError(t, err)
	require.True(t, created)
	return svc, store, u
}

func input(name string, price string, day int, period domain.BillingPeriod) SubscriptionInput {
	return SubscriptionInput{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		PaymentDay:    day,
		BillingPeriod: period,
	}
}

func TestGetOrCreateUserIsIdempotent(t *testing.T) {
	svc, _, u := newTestService(t)
	assert.Equal(t, 3, u.NotificationDays)

	again, created, err := svc.GetOrCreateUser(context.Background(), testTelegramID, Profile{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
}

func TestCreateComputesInitialDueDate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		day  int
		want time.Time
	}{
		{5, billing.Date(2024, time.April, 5)},
		{10, billing.Date(2024, time.March, 10)},
		{31, billing.Date(2024, time.March, 31)},
	}
	for _, tt := range tests {
		sub, err := svc.Create(ctx, testTelegramID, input("Music", "199", tt.day, ""))
		require.NoError(t, err)
		assert.Equal(t, tt.want, sub.NextPaymentDate, "day %d", tt.day)
		assert.Equal(t, domain.PeriodMonthly, sub.BillingPeriod)
		assert.Equal(t, domain.DefaultCurrency, sub.Currency)
		assert.True(t, sub.IsActive)
		assert.True(t, sub.NotificationsEnabled)
		assert.NotEmpty(t, sub.CalendarUID)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    SubscriptionInput
		field string
	}{
		{"day zero", input("Music", "199", 0, domain.PeriodMonthly), "PaymentDay"},
		{"day 32", input("Music", "199", 32, domain.PeriodMonthly), "PaymentDay"},
		{"zero price", input("Music", "0", 5, domain.PeriodMonthly), "Price"},
		{"negative price", input("Music", "-1", 5, domain.PeriodMonthly), "Price"},
		{"empty name", input("   ", "199", 5, domain.PeriodMonthly), "Name"},
		{"unknown period", input("Music", "199", 5, "daily"), "BillingPeriod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, testTelegramID, tt.in)
			require.Error(t, err)

			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, tt.field, verrs[0].Field())
			assert.Equal(t, fieldMessages[tt.field], ValidationMessage(err))
		})
	}
}

func TestCreateUnknownUserOrCategory(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, 999, input("Music", "199", 5, domain.PeriodMonthly))
	assert.ErrorIs(t, err, ErrUserNotFound)

	in := input("Music", "199", 5, domain.PeriodMonthly)
	missing := int64(9999)
	in.CategoryID = &missing
	_, err = svc.Create(ctx, testTelegramID, in)
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestGetChecksOwnership(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, testTelegramID, input("Music", "199", 5, domain.PeriodMonthly))
	require.NoError(t, err)

	_, _, err = svc.GetOrCreateUser(ctx, 7, Profile{})
	require.NoError(t, err)
	_, err = svc.Get(ctx, 7, sub.ID)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
	_, err = svc.Delete(ctx, 7, sub.ID)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestUpdateReschedulesOnlyWhenDayOrPeriodChanges(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, testTelegramID, input("Music", "199", 5, domain.PeriodMonthly))
	require.NoError(t, err)
	require.Equal(t, billing.Date(2024, time.April, 5), sub.NextPaymentDate)

	name := "Music Plus"
	price := decimal.RequireFromString("249.50")
	updated, err := svc.Update(ctx, testTelegramID, sub.ID, SubscriptionPatch{Name: &name, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "Music Plus", updated.Name)
	assert.True(t, updated.Price.Equal(price))
	assert.Equal(t, billing.Date(2024, time.April, 5), updated.NextPaymentDate)

	day := 20
	updated, err = svc.Update(ctx, testTelegramID, sub.ID, SubscriptionPatch{PaymentDay: &day})
	require.NoError(t, err)
	assert.Equal(t, billing.Date(2024, time.March, 20), updated.NextPaymentDate)

	bad := 32
	_, err = svc.Update(ctx, testTelegramID, sub.ID, SubscriptionPatch{PaymentDay: &bad})
	assert.Error(t, err)

	got, err := svc.Get(ctx, testTelegramID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.PaymentDay)
}

func TestUpdateKeepsConcurrentCatchUp(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, testTelegramID, input("Music", "199", 5, domain.PeriodMonthly))
	require.NoError(t, err)
	require.Equal(t, billing.Date(2024, time.April, 5), sub.NextPaymentDate)

	// catch-up commits after Update has read the row
	store.beforeUpdate = func() {
		ok, err := store.AdvanceNextPaymentDate(ctx, sub.ID, billing.Date(2024, time.April, 5), billing.Date(2024, time.May, 5))
		require.NoError(t, err)
		require.True(t, ok)
		store.beforeUpdate = nil
	}
	name := "Music Plus"
	_, err = svc.Update(ctx, testTelegramID, sub.ID, SubscriptionPatch{Name: &name})
	require.NoError(t, err)

	got, err := svc.Get(ctx, testTelegramID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Music Plus", got.Name)
	assert.Equal(t, billing.Date(2024, time.May, 5), got.NextPaymentDate)
}

func TestUpdateCategoryZeroClears(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cat := int64(2)
	in := input("Music", "199", 5, domain.PeriodMonthly)
	in.CategoryID = &cat
	sub, err := svc.Create(ctx, testTelegramID, in)
	require.NoError(t, err)
	require.NotNil(t, sub.Category)
	assert.Equal(t, domain.DefaultCategories[1], sub.CategoryName())

	none := int64(0)
	updated, err := svc.Update(ctx, testTelegramID, sub.ID, SubscriptionPatch{CategoryID: &none})
	require.NoError(t, err)
	assert.Nil(t, updated.CategoryID)
	assert.Equal(t, domain.UncategorizedName, updated.CategoryName())
}

func TestToggleResumeCatchesUp(t *testing.T) {
	svc, store, u := newTestService(t)
	ctx := context.Background()

	sub := store.seed(&domain.Subscription{
		UserID: u.ID, Name: "Video", Price: decimal.NewFromInt(100), Currency: "RUB",
		PaymentDay: 31, BillingPeriod: domain.PeriodMonthly,
		IsActive: false, NotificationsEnabled: true,
		NextPaymentDate: billing.Date(2023, time.December, 31),
	})

	resumed, err := svc.Toggle(ctx, testTelegramID, sub.ID)
	require.NoError(t, err)
	assert.True(t, resumed.IsActive)
	assert.Equal(t, billing.Date(2024, time.March, 31), resumed.NextPaymentDate)

	paused, err := svc.Toggle(ctx, testTelegramID, sub.ID)
	require.NoError(t, err)
	assert.False(t, paused.IsActive)
	assert.Equal(t, billing.Date(2024, time.March, 31), paused.NextPaymentDate)
}

func TestCatchUpAllDue(t *testing.T) {
	svc, store, u := newTestService(t)
	ctx := context.Background()

	seed := func(name string, day int, period domain.BillingPeriod, next time.Time, active bool) *domain.Subscription {
		return store.seed(&domain.Subscription{
			UserID: u.ID, Name: name, Price: decimal.NewFromInt(100), Currency: "RUB",
			PaymentDay: day, BillingPeriod: period, IsActive: active, NotificationsEnabled: true,
			NextPaymentDate: next,
		})
	}
	threeBehind := seed("three", 31, domain.PeriodMonthly, billing.Date(2023, time.December, 31), true)
	weekly := seed("weekly", 1, domain.PeriodWeekly, billing.Date(2024, time.March, 1), true)
	current := seed("current", 10, domain.PeriodMonthly, billing.Date(2024, time.March, 10), true)
	paused := seed("paused", 1, domain.PeriodMonthly, billing.Date(2023, time.January, 1), false)

	res, err := svc.CatchUpAllDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Len(t, res.Advanced, 2)

	check := func(id int64, want time.Time) {
		got, err := store.GetSubscription(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.NextPaymentDate)
	}
	// Dec 31 -> Jan 31 -> Feb 29 -> Mar 31
	check(threeBehind.ID, billing.Date(2024, time.March, 31))
	check(weekly.ID, billing.Date(2024, time.March, 15))
	check(current.ID, billing.Date(2024, time.March, 10))
	check(paused.ID, billing.Date(2023, time.January, 1))

	again, err := svc.CatchUpAllDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Checked)
	assert.Empty(t, again.Advanced)
	check(threeBehind.ID, billing.Date(2024, time.March, 31))
}

func TestCatchUpAllDueContinuesAfterFailure(t *testing.T) {
	svc, store, u := newTestService(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		sub := store.seed(&domain.Subscription{
			UserID: u.ID, Name: "s", Price: decimal.NewFromInt(1), Currency: "RUB",
			PaymentDay: 1, BillingPeriod: domain.PeriodMonthly, IsActive: true,
			NextPaymentDate: billing.Date(2024, time.February, 1),
		})
		ids = append(ids, sub.ID)
	}
	boom := errors.New("disk full")
	store.failAdvance[ids[1]] = boom

	res, err := svc.CatchUpAllDue(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, res.Advanced, 2)

	for i, id := range ids {
		got, _ := store.GetSubscription(ctx, id)
		if i == 1 {
			assert.Equal(t, billing.Date(2024, time.February, 1), got.NextPaymentDate)
			continue
		}
		assert.Equal(t, billing.Date(2024, time.April, 1), got.NextPaymentDate)
	}
}

func TestUpcomingAndTotals(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, testTelegramID, input("Music", "300", 15, domain.PeriodMonthly))
	require.NoError(t, err)
	_, err = svc.Create(ctx, testTelegramID, input("Cloud", "1200", 1, domain.PeriodYearly))
	require.NoError(t, err)
	_, err = svc.Create(ctx, testTelegramID, input("Gym", "100", 12, domain.PeriodWeekly))
	require.NoError(t, err)

	upcoming, err := svc.Upcoming(ctx, testTelegramID, 7)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "Gym", upcoming[0].Name)
	assert.Equal(t, "Music", upcoming[1].Name)

	totals, err := svc.Totals(ctx, testTelegramID)
	require.NoError(t, err)
	assert.Equal(t, 3, totals.Count)
	// 300 + 1200/12 + 100*4.33
	assert.Equal(t, "833.00", totals.Monthly.StringFixed(2))
	// 3600 + 1200 + 5200
	assert.Equal(t, "10000.00", totals.Yearly.StringFixed(2))
}

func TestSetNotificationDaysClamps(t *testing.T) {
	svc, store, u := newTestService(t)
	ctx := context.Background()

	for _, tt := range []struct{ in, want int }{{7, 7}, {-5, 0}, {90, 30}} {
		got, err := svc.SetNotificationDays(ctx, testTelegramID, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)

		stored, _ := store.GetUserByID(ctx, u.ID)
		assert.Equal(t, tt.want, stored.NotificationDays)
	}

	_, err := svc.SetNotificationDays(ctx, 999, 3)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
