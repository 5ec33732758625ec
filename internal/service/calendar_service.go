package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tazhate/subsbot/internal/billing"
	"github.com/tazhate/subsbot/internal/clients/caldav"
	"github.com/tazhate/subsbot/internal/domain"
)

// CalendarClient is the CalDAV surface the calendar service uses
type CalendarClient interface {
	IsConfigured() bool
	DiscoverCalendars(ctx context.Context) ([]caldav.Calendar, error)
	PutEvent(ctx context.Context, calendarPath string, event *caldav.Event) error
	DeleteEvent(ctx context.Context, calendarPath, uid string) error
}

// CalendarService mirrors next payment dates into a CalDAV calendar and
// exports upcoming payments as an .ics document
type CalendarService struct {
	client   CalendarClient
	calendar string // path or display name
	logger   *slog.Logger
	now      func() time.Time

	mu           sync.Mutex
	calendarPath string
}

// NewCalendarService creates a new calendar service. client may be nil, then
// only the .ics export works.
func NewCalendarService(client CalendarClient, calendar string, logger *slog.Logger) *CalendarService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &CalendarService{client: client, calendar: calendar, logger: logger, now: time.Now}
	if strings.HasPrefix(calendar, "/") {
		s.calendarPath = calendar
	}
	return s
}

// IsConfigured returns true if events can be pushed to CalDAV
func (s *CalendarService) IsConfigured() bool {
	return s.client != nil && s.client.IsConfigured() && s.calendar != ""
}

// resolvePath turns a calendar display name into its collection path
func (s *CalendarService) resolvePath(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calendarPath != "" {
		return s.calendarPath, nil
	}
	cals, err := s.client.DiscoverCalendars(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range cals {
		if strings.EqualFold(c.DisplayName, s.calendar) {
			s.calendarPath = c.Path
			s.logger.Info("caldav calendar resolved", "name", c.DisplayName, "path", c.Path)
			return c.Path, nil
		}
	}
	return "", fmt.Errorf("calendar %q not found", s.calendar)
}

func paymentEvent(sub *domain.Subscription, due time.Time, uid string) caldav.Event {
	desc := fmt.Sprintf("Периодичность: %s\nКатегория: %s", sub.BillingPeriod.Label(), sub.CategoryName())
	if sub.Description != "" {
		desc += "\n" + sub.Description
	}
	return caldav.Event{
		UID:         uid,
		Summary:     fmt.Sprintf("💳 %s: %s %s", sub.Name, sub.Price.StringFixed(2), sub.Currency),
		Description: desc,
		Category:    sub.CategoryName(),
		Date:        due,
	}
}

// Push writes the subscription's next payment as an all-day event. Paused
// subscriptions are removed from the calendar instead.
func (s *CalendarService) Push(ctx context.Context, sub *domain.Subscription) error {
	if !s.IsConfigured() || sub.CalendarUID == "" {
		return nil
	}
	if !sub.IsActive {
		return s.Remove(ctx, sub)
	}
	path, err := s.resolvePath(ctx)
	if err != nil {
		return fmt.Errorf("resolve calendar: %w", err)
	}
	event := paymentEvent(sub, sub.NextPaymentDate, sub.CalendarUID)
	if err := s.client.PutEvent(ctx, path, &event); err != nil {
		return fmt.Errorf("push subscription %d: %w", sub.ID, err)
	}
	return nil
}

// PushAll pushes each subscription and logs failures
func (s *CalendarService) PushAll(ctx context.Context, subs []*domain.Subscription) int {
	pushed := 0
	for _, sub := range subs {
		if err := s.Push(ctx, sub); err != nil {
			s.logger.Error("calendar push failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		pushed++
	}
	return pushed
}

// Remove deletes the subscription's event
func (s *CalendarService) Remove(ctx context.Context, sub *domain.Subscription) error {
	if !s.IsConfigured() || sub.CalendarUID == "" {
		return nil
	}
	path, err := s.resolvePath(ctx)
	if err != nil {
		return fmt.Errorf("resolve calendar: %w", err)
	}
	if err := s.client.DeleteEvent(ctx, path, sub.CalendarUID); err != nil {
		return fmt.Errorf("remove subscription %d: %w", sub.ID, err)
	}
	return nil
}

// ExportICS renders the next n payments of every active subscription
func (s *CalendarService) ExportICS(subs []*domain.Subscription, n int) ([]byte, error) {
	var events []caldav.Event
	for _, sub := range subs {
		if !sub.IsActive {
			continue
		}
		uid := sub.CalendarUID
		if uid == "" {
			uid = fmt.Sprintf("subscription-%d", sub.ID)
		}
		for _, due := range billing.Occurrences(sub.NextPaymentDate, sub.BillingPeriod, sub.PaymentDay, n) {
			events = append(events, paymentEvent(sub, due, uid+"-"+due.Format("20060102")))
		}
	}
	return caldav.Encode(caldav.BuildCalendar(events, s.now()))
}
