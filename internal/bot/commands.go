package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/subsbot/internal/billing"
	"github.com/tazhate/subsbot/internal/domain"
	"github.com/tazhate/subsbot/internal/service"
)

// icsOccurrences is how many future payments per subscription /ics exports
const icsOccurrences = 12

var commandList = []struct {
	Name        string
	Description string
}{
	{"start", "🏠 Главное меню"},
	{"list", "📋 Мои подписки"},
	{"add", "➕ Добавить подписку"},
	{"upcoming", "📅 Ближайшие платежи"},
	{"stats", "📊 Статистика расходов"},
	{"notify", "🔔 Напоминания"},
	{"ics", "🗓 Экспорт в календарь"},
	{"help", "❓ Справка по командам"},
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *domain.User, cmd, args string) {
	chatID := msg.Chat.ID
	tgID := user.TelegramID

	switch cmd {
	case "start":
		b.cmdStart(chatID, user)
	case "help":
		b.cmdHelp(chatID)
	case "cancel":
		b.cmdCancel(chatID)
	case "add":
		b.cmdAdd(chatID)
	case "list":
		b.cmdList(ctx, chatID, tgID)
	case "upcoming":
		b.cmdUpcoming(ctx, chatID, tgID, args)
	case "notify":
		b.cmdNotify(ctx, chatID, user, args)
	case "settings":
		b.reply(chatID, "⚙️ <b>Настройки</b>", settingsKeyboard())
	case "category":
		b.cmdCategory(ctx, chatID, tgID, args)
	case "edit":
		b.cmdEdit(ctx, chatID, tgID, args)
	case "toggle":
		b.cmdToggle(ctx, chatID, tgID, args)
	case "delete":
		b.cmdDelete(ctx, chatID, tgID, args)
	case "stats":
		b.cmdStats(ctx, chatID, tgID)
	case "ics":
		b.cmdICS(ctx, chatID, tgID)
	default:
		b.reply(chatID, "Неизвестная команда. /help для списка команд", nil)
	}
}

func (b *Bot) cmdStart(chatID int64, user *domain.User) {
	text := fmt.Sprintf("👋 Привет, %s!\n\n"+
		"Я помогу следить за подписками: напомню о платеже заранее и посчитаю, "+
		"сколько уходит в месяц и в год.\n\n"+
		"Добавьте первую подписку кнопкой «%s» или командой /add.\n"+
		"/help — список команд",
		html.EscapeString(user.DisplayName()), btnAdd)
	b.reply(chatID, text, mainKeyboard())
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Команды:</b>

<b>Подписки</b>
/add — добавить подписку
/list — список подписок
/upcoming [дней] — ближайшие платежи
/stats — расходы по категориям

<b>Управление</b>
/edit ID — подробности и изменение
/edit ID поле значение — быстрое изменение (название, цена, день, период)
/category ID — сменить категорию
/toggle ID — приостановить/возобновить
/delete ID — удалить

<b>Настройки</b>
/notify [0-30] — за сколько дней напоминать
/ics — выгрузить платежи в календарь (.ics)
/cancel — отменить текущее действие`
	b.reply(chatID, text, mainKeyboard())
}

func (b *Bot) cmdCancel(chatID int64) {
	if !b.dialogs.clear(chatID) {
		b.reply(chatID, "Нечего отменять.", mainKeyboard())
		return
	}
	b.reply(chatID, "Действие отменено.", mainKeyboard())
}

func (b *Bot) cmdAdd(chatID int64) {
	b.dialogs.set(chatID, dialog{Step: stepAddName})
	b.reply(chatID, "<b>Новая подписка</b>\n\nВведите название подписки (например: Яндекс Плюс):", cancelKeyboard())
}

func (b *Bot) cmdList(ctx context.Context, chatID, tgID int64) {
	subs, err := b.subs.List(ctx, tgID, false)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(subs) == 0 {
		b.reply(chatID, service.FormatList(subs), mainKeyboard())
		return
	}
	b.reply(chatID, service.FormatList(subs), subscriptionPicker(subs, "view"))
}

func (b *Bot) cmdUpcoming(ctx context.Context, chatID, tgID int64, args string) {
	days := b.cfg.UpcomingDays
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 || n > 366 {
			b.reply(chatID, "Использование: /upcoming [дней от 1 до 366]", nil)
			return
		}
		days = n
	}
	subs, err := b.subs.Upcoming(ctx, tgID, days)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, service.FormatUpcoming(subs, b.subs.Today(), days), nil)
}

func (b *Bot) cmdNotify(ctx context.Context, chatID int64, user *domain.User, args string) {
	if args == "" {
		current := "выключены"
		if user.RemindersEnabled() {
			current = fmt.Sprintf("за %d %s до платежа", user.NotificationDays, billing.PluralDays(user.NotificationDays))
		}
		b.reply(chatID, fmt.Sprintf("🔔 Напоминания сейчас: <b>%s</b>\n\nЗа сколько дней напоминать?", current), notifyKeyboard())
		return
	}
	n, err := strconv.Atoi(args)
	if err != nil {
		b.reply(chatID, "Использование: /notify [дней от 0 до 30]", nil)
		return
	}
	text, err := b.setNotificationDays(ctx, user.TelegramID, n)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, text, nil)
}

func (b *Bot) setNotificationDays(ctx context.Context, tgID int64, days int) (string, error) {
	stored, err := b.subs.SetNotificationDays(ctx, tgID, days)
	if err != nil {
		return "", err
	}
	if stored == 0 {
		return "🔕 Напоминания отключены", nil
	}
	return fmt.Sprintf("🔔 Буду напоминать за %d %s до платежа", stored, billing.PluralDays(stored)), nil
}

func (b *Bot) cmdCategory(ctx context.Context, chatID, tgID int64, args string) {
	cats, err := b.subs.Categories(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if args == "" {
		var sb strings.Builder
		sb.WriteString("<b>Категории:</b>\n\n")
		for _, c := range cats {
			sb.WriteString(html.EscapeString(c.Label()) + "\n")
		}
		sb.WriteString("\nСменить категорию подписки: /category ID")
		b.reply(chatID, sb.String(), nil)
		return
	}
	id, ok := b.parseID(chatID, args, "/category ID")
	if !ok {
		return
	}
	sub, err := b.subs.Get(ctx, tgID, id)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Выберите новую категорию для <b>%s</b>:", html.EscapeString(sub.Name)),
		categoryKeyboard(cats, fmt.Sprintf("editcat:%d", sub.ID)))
}

// editFields maps the field names accepted by /edit to patch fields
var editFields = map[string]string{
	"название":      fieldName,
	"name":          fieldName,
	"цена":          fieldPrice,
	"стоимость":     fieldPrice,
	"price":         fieldPrice,
	"день":          fieldDay,
	"day":           fieldDay,
	"период":        fieldPeriod,
	"периодичность": fieldPeriod,
	"period":        fieldPeriod,
}

func (b *Bot) cmdEdit(ctx context.Context, chatID, tgID int64, args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		b.pickSubscription(ctx, chatID, tgID, "edit", "Какую подписку изменить?")
		return
	}
	id, ok := b.parseID(chatID, parts[0], "/edit ID [поле значение]")
	if !ok {
		return
	}

	if len(parts) == 1 {
		sub, err := b.subs.Get(ctx, tgID, id)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.reply(chatID, service.FormatDetails(sub)+"\n\nЧто вы хотите изменить?", editFieldKeyboard(sub.ID))
		return
	}

	if len(parts) < 3 {
		b.reply(chatID, "Использование: /edit ID поле значение\nНапример: /edit 1 цена 499", nil)
		return
	}
	field, ok := editFields[strings.ToLower(parts[1])]
	if !ok {
		b.reply(chatID, "Неизвестное поле. Доступные поля:\n- название (name)\n- цена (price)\n- день (day)\n- период (period)", nil)
		return
	}
	value := strings.Trim(strings.Join(parts[2:], " "), `"'`)
	b.applyEdit(ctx, chatID, tgID, id, field, value)
}

func (b *Bot) cmdToggle(ctx context.Context, chatID, tgID int64, args string) {
	if args == "" {
		b.pickSubscription(ctx, chatID, tgID, "toggle", "Какую подписку приостановить или возобновить?")
		return
	}
	id, ok := b.parseID(chatID, args, "/toggle ID")
	if !ok {
		return
	}
	b.toggle(ctx, chatID, tgID, id)
}

func (b *Bot) cmdDelete(ctx context.Context, chatID, tgID int64, args string) {
	if args == "" {
		b.pickSubscription(ctx, chatID, tgID, "del", "Какую подписку удалить?")
		return
	}
	id, ok := b.parseID(chatID, args, "/delete ID")
	if !ok {
		return
	}
	sub, err := b.subs.Get(ctx, tgID, id)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Удалить подписку <b>%s</b>?", html.EscapeString(sub.Name)), confirmDeleteKeyboard(sub.ID))
}

func (b *Bot) cmdStats(ctx context.Context, chatID, tgID int64) {
	subs, err := b.subs.List(ctx, tgID, true)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, service.FormatStats(subs), nil)
}

func (b *Bot) cmdICS(ctx context.Context, chatID, tgID int64) {
	subs, err := b.subs.List(ctx, tgID, true)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(subs) == 0 {
		b.reply(chatID, "Нет активных подписок для экспорта", nil)
		return
	}
	data, err := b.calendar.ExportICS(subs, icsOccurrences)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	caption := fmt.Sprintf("Платежи на %d периодов вперед. Откройте файл, чтобы добавить их в календарь.", icsOccurrences)
	if err := b.SendDocument(chatID, "subscriptions.ics", data, caption); err != nil {
		b.logger.Error("send ics", "chat_id", chatID, "error", err)
		b.reply(chatID, "❌ Не удалось отправить файл", nil)
	}
}

func (b *Bot) pickSubscription(ctx context.Context, chatID, tgID int64, action, prompt string) {
	subs, err := b.subs.List(ctx, tgID, false)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(subs) == 0 {
		b.reply(chatID, service.FormatList(subs), mainKeyboard())
		return
	}
	b.reply(chatID, prompt, subscriptionPicker(subs, action))
}

func (b *Bot) parseID(chatID int64, s, usage string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		b.reply(chatID, "Неверный ID. Используйте число\nИспользование: "+usage+"\nСписок подписок: /list", nil)
		return 0, false
	}
	return id, true
}
