package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/tazhate/subsbot/internal/billing"
	"github.com/tazhate/subsbot/internal/domain"
)

// FormatList renders active and paused subscriptions with monthly totals
func FormatList(subs []*domain.Subscription) string {
	if len(subs) == 0 {
		return "У вас пока нет подписок.\nДобавьте первую с помощью /add или кнопки «Добавить подписку»."
	}

	var active, paused []*domain.Subscription
	for _, s := range subs {
		if s.IsActive {
			active = append(active, s)
		} else {
			paused = append(paused, s)
		}
	}

	var sb strings.Builder
	if len(active) > 0 {
		sb.WriteString("<b>Активные подписки:</b>\n\n")
		for i, s := range active {
			sb.WriteString(fmt.Sprintf("%d. <b>%s</b> (ID: <code>%d</code>)\n", i+1, html.EscapeString(s.Name), s.ID))
			sb.WriteString(fmt.Sprintf("   %s %s (%s)\n", s.Price.StringFixed(2), s.Currency, s.BillingPeriod.Label()))
			sb.WriteString(fmt.Sprintf("   Следующий платеж: %s\n", s.NextPaymentDate.Format("02.01.2006")))
			sb.WriteString(fmt.Sprintf("   Категория: %s\n", html.EscapeString(s.CategoryName())))
			sb.WriteString(fmt.Sprintf("   В месяц: %s %s\n\n", s.MonthlyCost().StringFixed(2), s.Currency))
		}
		totals := TotalsFor(active)
		sb.WriteString(fmt.Sprintf("<b>Итого в месяц: %s %s</b>\n", totals.Monthly.StringFixed(2), domain.DefaultCurrency))
		sb.WriteString(fmt.Sprintf("<b>Итого в год: %s %s</b>\n\n", totals.Yearly.StringFixed(2), domain.DefaultCurrency))
	} else {
		sb.WriteString("<b>У вас нет активных подписок</b>\n\n")
	}

	if len(paused) > 0 {
		sb.WriteString("<b>Приостановленные подписки:</b>\n\n")
		for i, s := range paused {
			sb.WriteString(fmt.Sprintf("%d. <b>%s</b> (ID: <code>%d</code>) ⏸\n", i+1, html.EscapeString(s.Name), s.ID))
			sb.WriteString(fmt.Sprintf("   %s %s (%s)\n\n", s.Price.StringFixed(2), s.Currency, s.BillingPeriod.Label()))
		}
	}

	sb.WriteString("<b>Управление:</b>\n")
	sb.WriteString("/edit ID — редактировать\n")
	sb.WriteString("/toggle ID — приостановить/возобновить\n")
	sb.WriteString("/delete ID — удалить")
	return sb.String()
}

// FormatUpcoming renders payments due in the next days
func FormatUpcoming(subs []*domain.Subscription, today time.Time, days int) string {
	if len(subs) == 0 {
		return fmt.Sprintf("В ближайшие %d %s у вас нет платежей", days, billing.PluralDays(days))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>Платежи в ближайшие %d %s:</b>\n\n", days, billing.PluralDays(days)))
	for _, s := range subs {
		left := billing.DaysBetween(today, s.NextPaymentDate)
		when := fmt.Sprintf("через %d %s", left, billing.PluralDays(left))
		if left == 0 {
			when = "сегодня"
		}
		sb.WriteString(fmt.Sprintf("<b>%s</b>\n", html.EscapeString(s.Name)))
		sb.WriteString(fmt.Sprintf("%s %s\n", s.Price.StringFixed(2), s.Currency))
		sb.WriteString(fmt.Sprintf("%s (%s)\n", s.NextPaymentDate.Format("02.01.2006"), when))
		sb.WriteString(fmt.Sprintf("%s\n\n", html.EscapeString(s.CategoryName())))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatDetails renders one subscription for /edit
func FormatDetails(s *domain.Subscription) string {
	status := "Активна"
	if !s.IsActive {
		status = "Приостановлена"
	}
	notify := "включены"
	if !s.NotificationsEnabled {
		notify = "выключены"
	}

	var sb strings.Builder
	sb.WriteString("<b>Информация о подписке</b>\n\n")
	sb.WriteString(fmt.Sprintf("ID: %d\n", s.ID))
	sb.WriteString(fmt.Sprintf("Название: %s\n", html.EscapeString(s.Name)))
	sb.WriteString(fmt.Sprintf("Стоимость: %s %s\n", s.Price.StringFixed(2), s.Currency))
	sb.WriteString(fmt.Sprintf("День платежа: %d-е число\n", s.PaymentDay))
	sb.WriteString(fmt.Sprintf("Периодичность: %s\n", s.BillingPeriod.Label()))
	sb.WriteString(fmt.Sprintf("Категория: %s\n", html.EscapeString(s.CategoryName())))
	sb.WriteString(fmt.Sprintf("Следующий платеж: %s\n", s.NextPaymentDate.Format("02.01.2006")))
	sb.WriteString(fmt.Sprintf("Статус: %s\n", status))
	sb.WriteString(fmt.Sprintf("Напоминания: %s", notify))
	return sb.String()
}

// FormatStats renders totals grouped by category
func FormatStats(subs []*domain.Subscription) string {
	totals := TotalsFor(subs)
	if totals.Count == 0 {
		return "Нет активных подписок"
	}

	var order []string
	byCategory := make(map[string][]*domain.Subscription)
	for _, s := range subs {
		if !s.IsActive {
			continue
		}
		name := s.CategoryName()
		if _, ok := byCategory[name]; !ok {
			order = append(order, name)
		}
		byCategory[name] = append(byCategory[name], s)
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Статистика</b>\n\n")
	for _, name := range order {
		t := TotalsFor(byCategory[name])
		sb.WriteString(fmt.Sprintf("<b>%s</b>: %s %s/мес (%d)\n", html.EscapeString(name), t.Monthly.StringFixed(2), domain.DefaultCurrency, t.Count))
	}
	sb.WriteString(fmt.Sprintf("\n<b>Всего в месяц:</b> %s %s\n", totals.Monthly.StringFixed(2), domain.DefaultCurrency))
	sb.WriteString(fmt.Sprintf("<b>Всего в год:</b> %s %s", totals.Yearly.StringFixed(2), domain.DefaultCurrency))
	return sb.String()
}
