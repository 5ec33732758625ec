package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/subsbot/config"
	"github.com/tazhate/subsbot/internal/service"
)

type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.Config
	subs     *service.SubscriptionService
	calendar *service.CalendarService
	rest     *API
	dialogs  *dialogStore
	logger   *slog.Logger
	server   *http.Server
}

func New(cfg *config.Config, subs *service.SubscriptionService, calendar *service.CalendarService, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("authorized", "username", api.Self.UserName)

	bot := &Bot{
		api:      api,
		cfg:      cfg,
		subs:     subs,
		calendar: calendar,
		rest:     NewAPI(subs, calendar, cfg.OwnerTelegramID, cfg.APIUsername, cfg.APIPassword, cfg.UpcomingDays, logger),
		dialogs:  newDialogStore(),
		logger:   logger,
	}

	// Set bot commands (menu button)
	bot.setCommands()

	return bot, nil
}

func (b *Bot) setCommands() {
	commands := make([]tgbotapi.BotCommand, 0, len(commandList))
	for _, c := range commandList {
		commands = append(commands, tgbotapi.BotCommand{Command: c.Name, Description: c.Description})
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		b.logger.Warn("failed to set commands", "error", err)
	}
}

func (b *Bot) setupWebhook() error {
	webhookURL := b.cfg.WebhookURL + "/bot"

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}
	if info.LastErrorDate != 0 {
		b.logger.Warn("webhook last error", "message", info.LastErrorMessage)
	}

	b.logger.Info("webhook set", "url", webhookURL)
	return nil
}

// Start receives updates by webhook when WEBHOOK_URL is set and by long
// polling otherwise. It blocks until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	b.rest.Register(mux)

	var updates <-chan tgbotapi.Update
	if b.cfg.UseWebhook() {
		if err := b.setupWebhook(); err != nil {
			return err
		}
		ch := make(chan tgbotapi.Update, b.api.Buffer)
		mux.HandleFunc("/bot", func(w http.ResponseWriter, r *http.Request) {
			update, err := b.api.HandleUpdate(r)
			if err != nil {
				b.logger.Warn("bad webhook update", "error", err)
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ch <- *update
		})
		updates = ch
	} else {
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			b.logger.Warn("delete webhook", "error", err)
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = b.api.GetUpdatesChan(u)
		b.logger.Info("long polling started")
	}

	if b.cfg.UseWebhook() || b.cfg.APIEnabled() {
		b.server = &http.Server{
			Addr:              ":" + b.cfg.ServerPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			b.logger.Info("starting http server", "port", b.cfg.ServerPort)
			if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				b.logger.Error("http server error", "error", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	if !b.cfg.UseWebhook() {
		b.api.StopReceivingUpdates()
	}
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

// reply sends HTML text with an optional keyboard and logs failures
func (b *Bot) reply(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("send message", "chat_id", chatID, "error", err)
	}
}

// edit replaces the text and inline keyboard of a sent message
func (b *Bot) edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	var cfg tgbotapi.EditMessageTextConfig
	if markup != nil {
		cfg = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
	} else {
		cfg = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	cfg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(cfg); err != nil {
		b.logger.Error("edit message", "chat_id", chatID, "error", err)
	}
}

// SendDocument uploads an in-memory file
func (b *Bot) SendDocument(chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	_, err := b.api.Send(doc)
	return err
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Debug("answer callback", "error", err)
	}
}
