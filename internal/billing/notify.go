package billing

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/tazhate/subsbot/internal/domain"
)

// Due is a subscription selected for a reminder today.
type Due struct {
	Subscription *domain.Subscription
	User         *domain.User
	DaysUntil    int
}

// SelectDue returns the subscriptions whose next payment date is exactly
// today plus the owner's lead days. Only users with lead days > 0 and
// active subscriptions with notifications enabled take part.
//
// The match is on a single day, so each occurrence is reminded once as long
// as the job runs daily; a skipped run loses that reminder.
func SelectDue(subs []*domain.Subscription, users []*domain.User, today time.Time) []Due {
	byUser := make(map[int64][]*domain.Subscription)
	for _, s := range subs {
		if s == nil || !s.IsActive || !s.NotificationsEnabled {
			continue
		}
		byUser[s.UserID] = append(byUser[s.UserID], s)
	}

	today = DateOf(today)
	var out []Due
	for _, u := range users {
		if u == nil || !u.RemindersEnabled() {
			continue
		}
		notifyDate := AddDays(today, u.NotificationDays)
		for _, s := range byUser[u.ID] {
			if DateOf(s.NextPaymentDate).Equal(notifyDate) {
				out = append(out, Due{Subscription: s, User: u, DaysUntil: u.NotificationDays})
			}
		}
	}
	return out
}

// PluralDays returns the Russian word for "day" agreeing with n.
func PluralDays(n int) string {
	if n < 0 {
		n = -n
	}
	switch {
	case n%10 == 1 && n%100 != 11:
		return "день"
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 12 || n%100 > 14):
		return "дня"
	default:
		return "дней"
	}
}

// FormatReminder renders the HTML reminder text for one subscription.
func FormatReminder(s *domain.Subscription, daysUntil int) string {
	var sb strings.Builder
	sb.WriteString("🔔 <b>Напоминание о платеже</b>\n\n")
	sb.WriteString(fmt.Sprintf("<b>Подписка:</b> %s\n", html.EscapeString(s.Name)))
	sb.WriteString(fmt.Sprintf("<b>Сумма:</b> %s %s\n", s.Price.StringFixed(2), html.EscapeString(s.Currency)))
	sb.WriteString(fmt.Sprintf("<b>Дата платежа:</b> %s\n", s.NextPaymentDate.Format("02.01.2006")))
	sb.WriteString(fmt.Sprintf("<b>Осталось:</b> %d %s\n", daysUntil, PluralDays(daysUntil)))
	sb.WriteString(fmt.Sprintf("<b>Период:</b> %s\n", s.BillingPeriod.Adjective()))
	sb.WriteString(fmt.Sprintf("<b>Категория:</b> %s\n\n", html.EscapeString(s.CategoryName())))
	sb.WriteString("<i>Не забудьте оплатить вовремя!</i>")
	return sb.String()
}
