package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tazhate/subsbot/internal/billing"
	"github.com/tazhate/subsbot/internal/domain"
)

// Message is a text addressed to a Telegram chat
type Message struct {
	ChatID         int64
	SubscriptionID int64
	Text           string
}

type NotificationService struct {
	store    Store
	timezone *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

func NewNotificationService(store Store, tz *time.Location, logger *slog.Logger) *NotificationService {
	if tz == nil {
		tz = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{store: store, timezone: tz, logger: logger, now: time.Now}
}

func (s *NotificationService) today() time.Time {
	return billing.DateOf(s.now().In(s.timezone))
}

// DueReminders builds today's payment reminders
func (s *NotificationService) DueReminders(ctx context.Context) ([]Message, error) {
	users, err := s.store.ListUsersWithNotifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	subs, err := s.store.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	due := billing.SelectDue(subs, users, s.today())
	msgs := make([]Message, 0, len(due))
	for _, d := range due {
		msgs = append(msgs, Message{
			ChatID:         d.User.TelegramID,
			SubscriptionID: d.Subscription.ID,
			Text:           billing.FormatReminder(d.Subscription, d.DaysUntil),
		})
	}
	return msgs, nil
}

var monthNames = [...]string{
	"январь", "февраль", "март", "апрель", "май", "июнь",
	"июль", "август", "сентябрь", "октябрь", "ноябрь", "декабрь",
}

// MonthlyReports builds the spending summary for every user who pays anything
func (s *NotificationService) MonthlyReports(ctx context.Context) ([]Message, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	today := s.today()
	var msgs []Message
	for _, u := range users {
		subs, err := s.store.ListSubscriptionsByUser(ctx, u.ID, true)
		if err != nil {
			s.logger.Error("list subscriptions for report", "user_id", u.ID, "error", err)
			continue
		}
		totals := TotalsFor(subs)
		if totals.Monthly.IsZero() {
			continue
		}
		msgs = append(msgs, Message{ChatID: u.TelegramID, Text: formatMonthlyReport(totals, today)})
	}
	return msgs, nil
}

func formatMonthlyReport(t Totals, today time.Time) string {
	return fmt.Sprintf("📊 <b>Ежемесячный отчет по подпискам</b>\n\n"+
		"<b>Активных подписок:</b> %d\n"+
		"<b>Расходы за месяц:</b> %s %s\n"+
		"<b>Расходы за год:</b> %s %s\n\n"+
		"Отчет за %s %d.\n"+
		"Используйте /stats для подробной статистики.",
		t.Count,
		t.Monthly.StringFixed(2), domain.DefaultCurrency,
		t.Yearly.StringFixed(2), domain.DefaultCurrency,
		monthNames[today.Month()-1], today.Year(),
	)
}
