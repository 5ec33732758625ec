package bot

import (
	"fmt"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/subsbot/internal/domain"
)

// Main menu button texts
const (
	btnList     = "Мои подписки"
	btnAdd      = "Добавить подписку"
	btnUpcoming = "Ближайшие платежи"
	btnSettings = "Настройки"
	btnHelp     = "Помощь"
	btnToggle   = "Приостановка/возобновление"
	btnEdit     = "Редактировать"
	btnDelete   = "Удалить"
	btnCancel   = "Отмена"
)

// buttonCommands maps main menu buttons to commands
var buttonCommands = map[string]string{
	btnList:     "list",
	btnAdd:      "add",
	btnUpcoming: "upcoming",
	btnSettings: "settings",
	btnHelp:     "help",
	btnToggle:   "toggle",
	btnEdit:     "edit",
	btnDelete:   "delete",
}

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnList), tgbotapi.NewKeyboardButton(btnAdd)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnUpcoming), tgbotapi.NewKeyboardButton(btnSettings)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnHelp), tgbotapi.NewKeyboardButton(btnToggle)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnEdit), tgbotapi.NewKeyboardButton(btnDelete)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancel)),
	)
	kb.ResizeKeyboard = true
	return kb
}

// periodKeyboard offers billing periods. prefix is "period" while adding and
// "editperiod:<id>" while editing.
func periodKeyboard(prefix string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range domain.BillingPeriods {
		label := []rune(p.Label())
		title := string(append([]rune{unicode.ToUpper(label[0])}, label[1:]...))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(title, prefix+":"+string(p)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// categoryKeyboard lists categories two per row
func categoryKeyboard(cats []*domain.Category, prefix string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, c := range cats {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(c.Label(), fmt.Sprintf("%s:%d", prefix, c.ID)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(domain.UncategorizedName, prefix+":0"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// notifyOptions are the lead days offered in settings
var notifyOptions = []struct {
	Text string
	Days int
}{
	{"Отключить", 0},
	{"1 день", 1},
	{"3 дня", 3},
	{"7 дней", 7},
}

func notifyKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(notifyOptions); i += 2 {
		var row []tgbotapi.InlineKeyboardButton
		for _, o := range notifyOptions[i:min(i+2, len(notifyOptions))] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(o.Text, fmt.Sprintf("notify:%d", o.Days)))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func settingsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔔 Уведомления", "settings:notifications")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏷 Категории", "settings:categories")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📅 Экспорт в календарь", "settings:ics")),
	)
}

// subscriptionKeyboard holds the actions for one subscription
func subscriptionKeyboard(s *domain.Subscription) tgbotapi.InlineKeyboardMarkup {
	toggle := "⏸ Приостановить"
	if !s.IsActive {
		toggle = "▶️ Возобновить"
	}
	mute := "🔕 Без напоминаний"
	if !s.NotificationsEnabled {
		mute = "🔔 С напоминаниями"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(toggle, fmt.Sprintf("toggle:%d", s.ID)),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Изменить", fmt.Sprintf("edit:%d", s.ID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mute, fmt.Sprintf("mute:%d", s.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", fmt.Sprintf("del:%d", s.ID)),
		),
	)
}

// subscriptionPicker lists subscriptions as buttons leading to action
func subscriptionPicker(subs []*domain.Subscription, action string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range subs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s %s", s.StatusEmoji(), truncate(s.Name, 30)),
				fmt.Sprintf("%s:%d", action, s.ID),
			),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func editFieldKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	field := func(text, name string) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(text, fmt.Sprintf("editfield:%d:%s", id, name))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(field("Название", fieldName), field("Цену", fieldPrice)),
		tgbotapi.NewInlineKeyboardRow(field("День платежа", fieldDay), field("Периодичность", fieldPeriod)),
		tgbotapi.NewInlineKeyboardRow(field("Категорию", fieldCategory), tgbotapi.NewInlineKeyboardButtonData("Отмена", "editcancel")),
	)
}

func confirmDeleteKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Да", fmt.Sprintf("delyes:%d", id)),
			tgbotapi.NewInlineKeyboardButtonData("Нет", fmt.Sprintf("delno:%d", id)),
		),
	)
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
