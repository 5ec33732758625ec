package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/subsbot/internal/domain"
	"github.com/tazhate/subsbot/internal/service"
)

// Editable fields
const (
	fieldName     = "name"
	fieldPrice    = "price"
	fieldDay      = "day"
	fieldPeriod   = "period"
	fieldCategory = "category"
)

const nextActionText = "Что вы хотите сделать дальше?"

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if chatID, ok := updateChatID(update); ok {
		defer b.dialogs.lock(chatID)()
	}
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func updateChatID(update tgbotapi.Update) (int64, bool) {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.Chat.ID, true
	}
	return 0, false
}

func profileOf(from *tgbotapi.User) service.Profile {
	return service.Profile{Username: from.UserName, FirstName: from.FirstName, LastName: from.LastName}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	if !b.cfg.IsAllowedUser(msg.From.ID) {
		b.reply(chatID, "⛔ Доступ запрещён", nil)
		return
	}

	user, _, err := b.subs.GetOrCreateUser(ctx, msg.From.ID, profileOf(msg.From))
	if err != nil {
		b.logger.Error("get user", "telegram_id", msg.From.ID, "error", err)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if text == btnCancel {
		b.cmdCancel(chatID)
		return
	}

	if msg.IsCommand() {
		cmd := msg.Command()
		if cmd != "cancel" {
			b.dialogs.clear(chatID)
		}
		b.handleCommand(ctx, msg, user, cmd, strings.TrimSpace(msg.CommandArguments()))
		return
	}

	if cmd, ok := buttonCommands[text]; ok {
		b.dialogs.clear(chatID)
		b.handleCommand(ctx, msg, user, cmd, "")
		return
	}

	if d, ok := b.dialogs.get(chatID); ok {
		b.handleDialog(ctx, chatID, user, d, text)
		return
	}

	b.reply(chatID, "Не понимаю 🤔 Выберите действие в меню или /help", mainKeyboard())
}

func (b *Bot) handleDialog(ctx context.Context, chatID int64, user *domain.User, d dialog, text string) {
	switch d.Step {
	case stepAddName:
		name, err := parseName(text)
		if err != nil {
			b.reply(chatID, err.Error(), nil)
			return
		}
		d.Input.Name = name
		d.Step = stepAddPrice
		b.dialogs.set(chatID, d)
		b.reply(chatID, fmt.Sprintf("Название: <b>%s</b>\n\nТеперь введите стоимость подписки (число, например: 399 или 1999.50):",
			html.EscapeString(name)), nil)

	case stepAddPrice:
		price, err := parsePrice(text)
		if err != nil {
			b.reply(chatID, err.Error(), nil)
			return
		}
		d.Input.Price = price
		d.Step = stepAddDay
		b.dialogs.set(chatID, d)
		b.reply(chatID, fmt.Sprintf("Стоимость: <b>%s %s</b>\n\nВведите день месяца для оплаты (число от 1 до 31):",
			price.StringFixed(2), domain.DefaultCurrency), nil)

	case stepAddDay:
		day, err := parseDay(text)
		if err != nil {
			b.reply(chatID, err.Error(), nil)
			return
		}
		d.Input.PaymentDay = day
		d.Step = stepAddPeriod
		b.dialogs.set(chatID, d)
		b.reply(chatID, fmt.Sprintf("День платежа: <b>%d-е число</b>\n\nВыберите периодичность оплаты:", day), periodKeyboard("period"))

	case stepAddPeriod, stepAddCategory:
		b.reply(chatID, "Выберите вариант кнопкой выше или нажмите «Отмена»", nil)

	case stepEditValue:
		if b.applyEdit(ctx, chatID, user.TelegramID, d.SubscriptionID, d.Field, text) {
			b.dialogs.clear(chatID)
		}
	}
}

// applyEdit parses value for field and saves it. It returns false when the
// value was rejected and the user should try again.
func (b *Bot) applyEdit(ctx context.Context, chatID, tgID, id int64, field, value string) bool {
	var patch service.SubscriptionPatch
	switch field {
	case fieldName:
		name, err := parseName(value)
		if err != nil {
			b.reply(chatID, err.Error(), nil)
			return false
		}
		patch.Name = &name
	case fieldPrice:
		price, err := parsePrice(value)
		if err != nil {
			b.reply(chatID, err.Error(), nil)
			return false
		}
		patch.Price = &price
	case fieldDay:
		day, err := parseDay(value)
		if err != nil {
			b.reply(chatID, err.Error(), nil)
			return false
		}
		patch.PaymentDay = &day
	case fieldPeriod:
		period, ok := parsePeriod(value)
		if !ok {
			b.reply(chatID, "Неизвестная периодичность. Доступно: ежемесячно, ежегодно, еженедельно", nil)
			return false
		}
		patch.BillingPeriod = &period
	default:
		return true
	}

	sub, err := b.subs.Update(ctx, tgID, id, patch)
	if err != nil {
		b.replyError(chatID, err)
		return !isValidation(err)
	}
	b.pushCalendar(ctx, sub)
	b.reply(chatID, "✅ Подписка успешно обновлена!\n\n"+service.FormatDetails(sub), mainKeyboard())
	return true
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	if !b.cfg.IsAllowedUser(cb.From.ID) {
		b.answerCallback(cb.ID, "⛔ Доступ запрещён")
		return
	}

	user, _, err := b.subs.GetOrCreateUser(ctx, cb.From.ID, profileOf(cb.From))
	if err != nil {
		b.logger.Error("get user", "telegram_id", cb.From.ID, "error", err)
		b.answerCallback(cb.ID, "Ошибка")
		return
	}
	tgID := user.TelegramID

	action, rest, _ := strings.Cut(cb.Data, ":")
	args := strings.Split(rest, ":")
	id, _ := strconv.ParseInt(args[0], 10, 64)

	switch action {
	case "period":
		d, ok := b.dialogs.get(chatID)
		period, valid := domain.ParseBillingPeriod(rest)
		if !ok || d.Step != stepAddPeriod || !valid {
			b.answerCallback(cb.ID, "Диалог устарел, начните заново: /add")
			return
		}
		cats, err := b.subs.Categories(ctx)
		if err != nil {
			b.answerCallback(cb.ID, "Ошибка")
			b.replyError(chatID, err)
			return
		}
		d.Input.BillingPeriod = period
		d.Step = stepAddCategory
		b.dialogs.set(chatID, d)
		kb := categoryKeyboard(cats, "cat")
		b.edit(chatID, msgID, fmt.Sprintf("Периодичность: <b>%s</b>\n\nВыберите категорию подписки:", period.Label()), &kb)
		b.answerCallback(cb.ID, "")

	case "cat":
		d, ok := b.dialogs.get(chatID)
		if !ok || d.Step != stepAddCategory {
			b.answerCallback(cb.ID, "Диалог устарел, начните заново: /add")
			return
		}
		if id > 0 {
			d.Input.CategoryID = &id
		}
		sub, err := b.subs.Create(ctx, tgID, d.Input)
		b.dialogs.clear(chatID)
		if err != nil {
			b.answerCallback(cb.ID, "❌ Ошибка")
			b.reply(chatID, "Ошибка при добавлении подписки: "+b.errorText(err), mainKeyboard())
			return
		}
		b.answerCallback(cb.ID, "✅ Подписка добавлена")
		b.pushCalendar(ctx, sub)
		b.edit(chatID, msgID, "✅ <b>Подписка успешно добавлена!</b>\n\n"+service.FormatDetails(sub), nil)
		b.reply(chatID, nextActionText, mainKeyboard())

	case "view":
		sub, err := b.subs.Get(ctx, tgID, id)
		if err != nil {
			b.answerCallback(cb.ID, b.errorText(err))
			return
		}
		kb := subscriptionKeyboard(sub)
		b.reply(chatID, service.FormatDetails(sub), kb)
		b.answerCallback(cb.ID, "")

	case "toggle":
		b.answerCallback(cb.ID, "")
		b.toggle(ctx, chatID, tgID, id)

	case "mute":
		sub, err := b.subs.Get(ctx, tgID, id)
		if err != nil {
			b.answerCallback(cb.ID, b.errorText(err))
			return
		}
		enabled := !sub.NotificationsEnabled
		sub, err = b.subs.Update(ctx, tgID, id, service.SubscriptionPatch{NotificationsEnabled: &enabled})
		if err != nil {
			b.answerCallback(cb.ID, b.errorText(err))
			return
		}
		kb := subscriptionKeyboard(sub)
		b.edit(chatID, msgID, service.FormatDetails(sub), &kb)
		if enabled {
			b.answerCallback(cb.ID, "🔔 Напоминания включены")
		} else {
			b.answerCallback(cb.ID, "🔕 Напоминания выключены")
		}

	case "edit":
		sub, err := b.subs.Get(ctx, tgID, id)
		if err != nil {
			b.answerCallback(cb.ID, b.errorText(err))
			return
		}
		kb := editFieldKeyboard(sub.ID)
		b.edit(chatID, msgID, service.FormatDetails(sub)+"\n\nЧто вы хотите изменить в этой подписке?", &kb)
		b.answerCallback(cb.ID, "")

	case "editfield":
		if len(args) < 2 {
			return
		}
		b.answerCallback(cb.ID, "")
		b.startEditField(ctx, chatID, msgID, id, args[1])

	case "editperiod":
		if len(args) < 2 {
			return
		}
		period, ok := domain.ParseBillingPeriod(args[1])
		if !ok {
			return
		}
		sub, err := b.subs.Update(ctx, tgID, id, service.SubscriptionPatch{BillingPeriod: &period})
		if err != nil {
			b.answerCallback(cb.ID, b.errorText(err))
			return
		}
		b.pushCalendar(ctx, sub)
		b.edit(chatID, msgID, fmt.Sprintf("✅ Подписка успешно обновлена!\nИзменена периодичность на: %s\nСледующий платеж: %s",
			period.Label(), sub.NextPaymentDate.Format("02.01.2006")), nil)
		b.answerCallback(cb.ID, "")

	case "editcat":
		if len(args) < 2 {
			return
		}
		catID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return
		}
		sub, err := b.subs.Update(ctx, tgID, id, service.SubscriptionPatch{CategoryID: &catID})
		if err != nil {
			b.answerCallback(cb.ID, b.errorText(err))
			return
		}
		b.pushCalendar(ctx, sub)
		b.edit(chatID, msgID, fmt.Sprintf("✅ Подписка успешно обновлена!\nНовая категория: %s", html.EscapeString(sub.CategoryName())), nil)
		b.answerCallback(cb.ID, "")

	case "editcancel":
		b.dialogs.clear(chatID)
		b.edit(chatID, msgID, "Редактирование отменено", nil)
		b.answerCallback(cb.ID, "")

	case "del":
		sub, err := b.subs.Get(ctx, tgID, id)
		if err != nil {
			b.answerCallback(cb.ID, b.errorText(err))
			return
		}
		kb := confirmDeleteKeyboard(sub.ID)
		b.edit(chatID, msgID, fmt.Sprintf("Удалить подписку <b>%s</b>?", html.EscapeString(sub.Name)), &kb)
		b.answerCallback(cb.ID, "")

	case "delyes":
		sub, err := b.subs.Delete(ctx, tgID, id)
		if err != nil {
			b.answerCallback(cb.ID, b.errorText(err))
			return
		}
		if err := b.calendar.Remove(ctx, sub); err != nil {
			b.logger.Error("calendar remove failed", "subscription_id", sub.ID, "error", err)
		}
		b.edit(chatID, msgID, fmt.Sprintf("🗑 Подписка <b>%s</b> (ID:%d) удалена", html.EscapeString(sub.Name), sub.ID), nil)
		b.answerCallback(cb.ID, "Удалено")

	case "delno":
		b.edit(chatID, msgID, "Удаление отменено", nil)
		b.answerCallback(cb.ID, "")

	case "notify":
		days, err := strconv.Atoi(rest)
		if err != nil {
			return
		}
		text, err := b.setNotificationDays(ctx, tgID, days)
		if err != nil {
			b.answerCallback(cb.ID, b.errorText(err))
			return
		}
		b.edit(chatID, msgID, text, nil)
		b.answerCallback(cb.ID, "")

	case "settings":
		b.answerCallback(cb.ID, "")
		switch rest {
		case "notifications":
			b.cmdNotify(ctx, chatID, user, "")
		case "categories":
			b.cmdCategory(ctx, chatID, tgID, "")
		case "ics":
			b.cmdICS(ctx, chatID, tgID)
		}

	default:
		b.answerCallback(cb.ID, "")
	}
}

func (b *Bot) startEditField(ctx context.Context, chatID int64, msgID int, id int64, field string) {
	switch field {
	case fieldName, fieldPrice, fieldDay:
		prompts := map[string]string{
			fieldName:  "Введите новое название подписки:",
			fieldPrice: "Введите новую стоимость подписки (число, например: 399 или 1999.50):",
			fieldDay:   "Введите новый день месяца для оплаты (число от 1 до 31):",
		}
		b.dialogs.set(chatID, dialog{Step: stepEditValue, SubscriptionID: id, Field: field})
		b.edit(chatID, msgID, prompts[field], nil)
		b.reply(chatID, "Или нажмите «Отмена»", cancelKeyboard())
	case fieldPeriod:
		kb := periodKeyboard(fmt.Sprintf("editperiod:%d", id))
		b.edit(chatID, msgID, "Выберите новую периодичность оплаты:", &kb)
	case fieldCategory:
		cats, err := b.subs.Categories(ctx)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		kb := categoryKeyboard(cats, fmt.Sprintf("editcat:%d", id))
		b.edit(chatID, msgID, "Выберите новую категорию подписки:", &kb)
	}
}

func (b *Bot) toggle(ctx context.Context, chatID, tgID, id int64) {
	sub, err := b.subs.Toggle(ctx, tgID, id)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.pushCalendar(ctx, sub)

	text := fmt.Sprintf("▶️ Подписка <b>%s</b> возобновлена\nСледующий платеж: %s",
		html.EscapeString(sub.Name), sub.NextPaymentDate.Format("02.01.2006"))
	if !sub.IsActive {
		text = fmt.Sprintf("⏸ Подписка <b>%s</b> приостановлена", html.EscapeString(sub.Name))
	}
	b.reply(chatID, text, subscriptionKeyboard(sub))
}

func (b *Bot) pushCalendar(ctx context.Context, sub *domain.Subscription) {
	if err := b.calendar.Push(ctx, sub); err != nil {
		b.logger.Error("calendar push failed", "subscription_id", sub.ID, "error", err)
	}
}

func isValidation(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

// errorText is the user-facing form of a service error
func (b *Bot) errorText(err error) string {
	switch {
	case isValidation(err):
		return service.ValidationMessage(err)
	case errors.Is(err, service.ErrSubscriptionNotFound),
		errors.Is(err, service.ErrCategoryNotFound),
		errors.Is(err, service.ErrUserNotFound):
		return err.Error()
	default:
		b.logger.Error("request failed", "error", err)
		return "внутренняя ошибка, попробуйте позже"
	}
}

func (b *Bot) replyError(chatID int64, err error) {
	b.reply(chatID, "❌ "+html.EscapeString(b.errorText(err)), nil)
}
