package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tazhate/subsbot/internal/billing"
	"github.com/tazhate/subsbot/internal/domain"
)

type SubscriptionService struct {
	store       Store
	timezone    *time.Location
	defaultDays int
	logger      *slog.Logger
	now         func() time.Time
}

func NewSubscriptionService(store Store, tz *time.Location, defaultNotificationDays int, logger *slog.Logger) *SubscriptionService {
	if tz == nil {
		tz = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionService{
		store:       store,
		timezone:    tz,
		defaultDays: domain.ClampNotificationDays(defaultNotificationDays),
		logger:      logger,
		now:         time.Now,
	}
}

// Today returns the current calendar day in the service timezone
func (s *SubscriptionService) Today() time.Time {
	return billing.DateOf(s.now().In(s.timezone))
}

// Profile carries the Telegram user fields stored on registration
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}

// GetOrCreateUser returns the user, registering it with default lead days
func (s *SubscriptionService) GetOrCreateUser(ctx context.Context, telegramID int64, p Profile) (*domain.User, bool, error) {
	u, err := s.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, fmt.Errorf("get user: %w", err)
	}
	if u != nil {
		return u, false, nil
	}

	u = &domain.User{
		TelegramID:       telegramID,
		Username:         p.Username,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		NotificationDays: s.defaultDays,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("registered user", "telegram_id", telegramID, "name", u.DisplayName())
	return u, true, nil
}

func (s *SubscriptionService) user(ctx context.Context, telegramID int64) (*domain.User, error) {
	u, err := s.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// User returns the registered user or ErrUserNotFound
func (s *SubscriptionService) User(ctx context.Context, telegramID int64) (*domain.User, error) {
	return s.user(ctx, telegramID)
}

func (s *SubscriptionService) checkCategory(ctx context.Context, id *int64) (*domain.Category, error) {
	if id == nil {
		return nil, nil
	}
	c, err := s.store.GetCategory(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if c == nil {
		return nil, ErrCategoryNotFound
	}
	return c, nil
}

// Create validates the input and stores a new subscription due on the next
// occurrence of its payment day
func (s *SubscriptionService) Create(ctx context.Context, telegramID int64, in SubscriptionInput) (*domain.Subscription, error) {
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	u, err := s.user(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	cat, err := s.checkCategory(ctx, in.CategoryID)
	if err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		UserID:               u.ID,
		Name:                 in.Name,
		Price:                in.Price,
		Currency:             in.Currency,
		PaymentDay:           in.PaymentDay,
		BillingPeriod:        in.BillingPeriod,
		CategoryID:           in.CategoryID,
		Category:             cat,
		Description:          in.Description,
		IsActive:             true,
		NotificationsEnabled: true,
		NextPaymentDate:      billing.InitialDueDate(in.PaymentDay, s.Today()),
		CalendarUID:          uuid.NewString(),
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	s.logger.Info("subscription created", "id", sub.ID, "user_id", u.ID, "next_payment", sub.NextPaymentDate.Format("2006-01-02"))
	return sub, nil
}

// Get returns a subscription owned by the user
func (s *SubscriptionService) Get(ctx context.Context, telegramID, id int64) (*domain.Subscription, error) {
	u, err := s.user(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil || sub.UserID != u.ID {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// List returns the user's subscriptions ordered by next payment date
func (s *SubscriptionService) List(ctx context.Context, telegramID int64, activeOnly bool) ([]*domain.Subscription, error) {
	u, err := s.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, nil
	}
	return s.store.ListSubscriptionsByUser(ctx, u.ID, activeOnly)
}

// SubscriptionPatch lists the fields to change; nil means keep. A CategoryID
// of 0 removes the category.
type SubscriptionPatch struct {
	Name                 *string
	Price                *decimal.Decimal
	PaymentDay           *int
	BillingPeriod        *domain.BillingPeriod
	CategoryID           *int64
	Description          *string
	NotificationsEnabled *bool
}

// Update applies the patch. Changing the payment day or the billing period
// recomputes the next payment date from today.
func (s *SubscriptionService) Update(ctx context.Context, telegramID, id int64, p SubscriptionPatch) (*domain.Subscription, error) {
	sub, err := s.Get(ctx, telegramID, id)
	if err != nil {
		return nil, err
	}

	in := SubscriptionInput{
		Name:          sub.Name,
		Price:         sub.Price,
		Currency:      sub.Currency,
		PaymentDay:    sub.PaymentDay,
		BillingPeriod: sub.BillingPeriod,
		CategoryID:    sub.CategoryID,
		Description:   sub.Description,
	}
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Price != nil {
		in.Price = *p.Price
	}
	if p.PaymentDay != nil {
		in.PaymentDay = *p.PaymentDay
	}
	if p.BillingPeriod != nil {
		in.BillingPeriod = *p.BillingPeriod
	}
	clearCategory := p.CategoryID != nil && *p.CategoryID == 0
	if p.CategoryID != nil {
		in.CategoryID = p.CategoryID
		if clearCategory {
			in.CategoryID = nil
		}
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	if p.CategoryID != nil {
		cat, err := s.checkCategory(ctx, in.CategoryID)
		if err != nil {
			return nil, err
		}
		sub.Category = cat
	}

	reschedule := p.PaymentDay != nil || p.BillingPeriod != nil
	sub.Name = in.Name
	sub.Price = in.Price
	sub.Currency = in.Currency
	sub.PaymentDay = in.PaymentDay
	sub.BillingPeriod = in.BillingPeriod
	sub.CategoryID = in.CategoryID
	sub.Description = in.Description
	if p.NotificationsEnabled != nil {
		sub.NotificationsEnabled = *p.NotificationsEnabled
	}
	if reschedule {
		sub.NextPaymentDate = billing.InitialDueDate(sub.PaymentDay, s.Today())
	}
	if sub.CalendarUID == "" {
		sub.CalendarUID = uuid.NewString()
	}

	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	if reschedule {
		if err := s.store.RescheduleSubscription(ctx, sub.ID, sub.NextPaymentDate); err != nil {
			return nil, fmt.Errorf("reschedule subscription: %w", err)
		}
	}
	return sub, nil
}

// Toggle pauses or resumes a subscription. A resumed subscription whose date
// went stale while paused is caught up immediately.
func (s *SubscriptionService) Toggle(ctx context.Context, telegramID, id int64) (*domain.Subscription, error) {
	sub, err := s.Get(ctx, telegramID, id)
	if err != nil {
		return nil, err
	}
	sub.IsActive = !sub.IsActive
	if sub.IsActive {
		// the row is still paused here, so catch-up cannot move it concurrently
		next, strides := billing.CatchUp(sub.NextPaymentDate, sub.BillingPeriod, sub.PaymentDay, s.Today())
		if strides > 0 {
			if err := s.store.RescheduleSubscription(ctx, sub.ID, next); err != nil {
				return nil, fmt.Errorf("reschedule subscription: %w", err)
			}
			sub.NextPaymentDate = next
		}
	}
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return sub, nil
}

// Delete removes a subscription and returns the removed record
func (s *SubscriptionService) Delete(ctx context.Context, telegramID, id int64) (*domain.Subscription, error) {
	sub, err := s.Get(ctx, telegramID, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteSubscription(ctx, id); err != nil {
		return nil, fmt.Errorf("delete subscription: %w", err)
	}
	return sub, nil
}

// Upcoming returns active subscriptions due within the next days
func (s *SubscriptionService) Upcoming(ctx context.Context, telegramID int64, days int) ([]*domain.Subscription, error) {
	u, err := s.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, nil
	}
	today := s.Today()
	return s.store.ListUpcomingSubscriptions(ctx, u.ID, today, billing.AddDays(today, days))
}

// Totals is the spending of active subscriptions normalized per month and year
type Totals struct {
	Monthly decimal.Decimal
	Yearly  decimal.Decimal
	Count   int
}

// IsZero reports whether there is nothing to pay
func (t Totals) IsZero() bool {
	return t.Monthly.IsZero() && t.Yearly.IsZero()
}

// TotalsFor sums costs of the active subscriptions in subs
func TotalsFor(subs []*domain.Subscription) Totals {
	t := Totals{Monthly: decimal.Zero, Yearly: decimal.Zero}
	for _, sub := range subs {
		if !sub.IsActive {
			continue
		}
		t.Monthly = t.Monthly.Add(sub.MonthlyCost())
		t.Yearly = t.Yearly.Add(sub.YearlyCost())
		t.Count++
	}
	t.Monthly = t.Monthly.Round(2)
	t.Yearly = t.Yearly.Round(2)
	return t
}

func (s *SubscriptionService) Totals(ctx context.Context, telegramID int64) (Totals, error) {
	subs, err := s.List(ctx, telegramID, true)
	if err != nil {
		return Totals{}, err
	}
	return TotalsFor(subs), nil
}

// SetNotificationDays stores the user's lead days clamped to 0..30
func (s *SubscriptionService) SetNotificationDays(ctx context.Context, telegramID int64, days int) (int, error) {
	u, err := s.user(ctx, telegramID)
	if err != nil {
		return 0, err
	}
	days = domain.ClampNotificationDays(days)
	if err := s.store.UpdateUserNotificationDays(ctx, u.ID, days); err != nil {
		return 0, fmt.Errorf("update notification days: %w", err)
	}
	return days, nil
}

func (s *SubscriptionService) Categories(ctx context.Context) ([]*domain.Category, error) {
	return s.store.ListCategories(ctx)
}

// CatchUpResult lists subscriptions whose next payment date was moved
type CatchUpResult struct {
	Checked  int
	Advanced []*domain.Subscription
	Skipped  int
}

// CatchUpAllDue moves every stale active subscription forward until its next
// payment date is today or later. Each subscription is written on its own with
// a compare-and-set on the previous date, so a concurrent edit wins and a
// failure on one row does not stop the rest. Running it twice on the same day
// changes nothing the second time.
func (s *SubscriptionService) CatchUpAllDue(ctx context.Context) (*CatchUpResult, error) {
	today := s.Today()
	stale, err := s.store.ListStaleSubscriptions(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("list stale subscriptions: %w", err)
	}

	result := &CatchUpResult{Checked: len(stale)}
	var errs []error
	for _, adv := range billing.CatchUpAllDue(stale, today) {
		sub := adv.Subscription
		ok, err := s.store.AdvanceNextPaymentDate(ctx, sub.ID, adv.From, adv.To)
		if err != nil {
			s.logger.Error("advance next payment date", "subscription_id", sub.ID, "error", err)
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID, err))
			continue
		}
		if !ok {
			s.logger.Warn("subscription changed during catch-up, skipped", "subscription_id", sub.ID)
			result.Skipped++
			continue
		}
		sub.NextPaymentDate = adv.To
		result.Advanced = append(result.Advanced, sub)
		s.logger.Debug("subscription advanced", "subscription_id", sub.ID,
			"from", adv.From.Format("2006-01-02"), "to", adv.To.Format("2006-01-02"), "strides", adv.Strides)
	}
	return result, errors.Join(errs...)
}
