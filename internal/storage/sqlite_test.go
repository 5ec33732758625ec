package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/subsbot/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *Storage, telegramID int64, days int) *domain.User {
	t.Helper()
	u := &domain.User{TelegramID: telegramID, FirstName: "Test", NotificationDays: days}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func createSub(t *testing.T, s *Storage, userID int64, name string, next time.Time) *domain.Subscription {
	t.Helper()
	sub := &domain.Subscription{
		UserID:               userID,
		Name:                 name,
		Price:                decimal.RequireFromString("399.90"),
		Currency:             domain.DefaultCurrency,
		PaymentDay:           next.Day(),
		BillingPeriod:        domain.PeriodMonthly,
		IsActive:             true,
		NotificationsEnabled: true,
		NextPaymentDate:      next,
	}
	require.NoError(t, s.CreateSubscription(context.Background(), sub))
	return sub
}

func TestNewSeedsDefaultCategoriesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// reopening must neither fail on migrations nor duplicate categories
	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	cats, err := s.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, cats, len(domain.DefaultCategories))
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	u := createUser(t, s, 1001, 3)
	assert.NotZero(t, u.ID)
	createUser(t, s, 1002, 0)

	got, err := s.GetUserByTelegramID(ctx, 1001)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, 3, got.NotificationDays)

	missing, err := s.GetUserByTelegramID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	withNotify, err := s.ListUsersWithNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, withNotify, 1)
	assert.Equal(t, int64(1001), withNotify[0].TelegramID)

	require.NoError(t, s.UpdateUserNotificationDays(ctx, u.ID, 0))
	withNotify, err = s.ListUsersWithNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, withNotify)
}

func TestSubscriptionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	u := createUser(t, s, 1, 3)

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, cats)

	sub := createSub(t, s, u.ID, "Music", day(2024, time.February, 29))
	sub.CategoryID = &cats[0].ID
	sub.CalendarUID = "uid-1"
	require.NoError(t, s.UpdateSubscription(ctx, sub))

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Music", got.Name)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("399.9")))
	assert.Equal(t, day(2024, time.February, 29), got.NextPaymentDate)
	assert.Equal(t, domain.PeriodMonthly, got.BillingPeriod)
	assert.True(t, got.IsActive)
	assert.Equal(t, "uid-1", got.CalendarUID)
	require.NotNil(t, got.Category)
	assert.Equal(t, cats[0].Name, got.CategoryName())

	require.NoError(t, s.DeleteSubscription(ctx, sub.ID))
	got, err = s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListStaleAndUpcoming(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	u := createUser(t, s, 1, 3)
	today := day(2024, time.March, 10)

	stale := createSub(t, s, u.ID, "Stale", day(2024, time.January, 5))
	createSub(t, s, u.ID, "Today", today)
	soon := createSub(t, s, u.ID, "Soon", day(2024, time.March, 20))
	paused := createSub(t, s, u.ID, "Paused", day(2024, time.January, 1))
	paused.IsActive = false
	require.NoError(t, s.UpdateSubscription(ctx, paused))

	stales, err := s.ListStaleSubscriptions(ctx, today)
	require.NoError(t, err)
	require.Len(t, stales, 1)
	assert.Equal(t, stale.ID, stales[0].ID)

	upcoming, err := s.ListUpcomingSubscriptions(ctx, u.ID, today, today.AddDate(0, 0, 14))
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "Today", upcoming[0].Name)
	assert.Equal(t, soon.ID, upcoming[1].ID)

	all, err := s.ListSubscriptionsByUser(ctx, u.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	active, err := s.ListSubscriptionsByUser(ctx, u.ID, true)
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestAdvanceNextPaymentDateComparesOldValue(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	u := createUser(t, s, 1, 3)
	sub := createSub(t, s, u.ID, "Music", day(2024, time.January, 31))

	ok, err := s.AdvanceNextPaymentDate(ctx, sub.ID, day(2024, time.January, 31), day(2024, time.February, 29))
	require.NoError(t, err)
	assert.True(t, ok)

	// second writer computed from the stale value
	ok, err = s.AdvanceNextPaymentDate(ctx, sub.ID, day(2024, time.January, 31), day(2024, time.February, 29))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.February, 29), got.NextPaymentDate)
}

func TestUpdateSubscriptionLeavesNextPaymentDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	u := createUser(t, s, 1, 3)
	sub := createSub(t, s, u.ID, "Music", day(2024, time.January, 31))

	stale, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	ok, err := s.AdvanceNextPaymentDate(ctx, sub.ID, day(2024, time.January, 31), day(2024, time.February, 29))
	require.NoError(t, err)
	require.True(t, ok)

	stale.Name = "Music Plus"
	require.NoError(t, s.UpdateSubscription(ctx, stale))

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Music Plus", got.Name)
	assert.Equal(t, day(2024, time.February, 29), got.NextPaymentDate)

	require.NoError(t, s.RescheduleSubscription(ctx, sub.ID, day(2024, time.March, 20)))
	got, err = s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.March, 20), got.NextPaymentDate)
}
