package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tazhate/subsbot/config"
	"github.com/tazhate/subsbot/internal/domain"
	"github.com/tazhate/subsbot/internal/service"
)

type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

// DueDateAdvancer moves stale next payment dates forward
type DueDateAdvancer interface {
	CatchUpAllDue(ctx context.Context) (*service.CatchUpResult, error)
}

// ReminderSource builds the messages sent by the daily and monthly jobs
type ReminderSource interface {
	DueReminders(ctx context.Context) ([]service.Message, error)
	MonthlyReports(ctx context.Context) ([]service.Message, error)
}

// CalendarPusher mirrors advanced subscriptions to the calendar
type CalendarPusher interface {
	IsConfigured() bool
	PushAll(ctx context.Context, subs []*domain.Subscription) int
}

type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	advancer DueDateAdvancer
	reminder ReminderSource
	calendar CalendarPusher
	sender   MessageSender
	logger   *slog.Logger
}

func New(cfg *config.Config, advancer DueDateAdvancer, reminder ReminderSource, calendar CalendarPusher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(cfg.Timezone),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	return &Scheduler{
		cron:     c,
		cfg:      cfg,
		advancer: advancer,
		reminder: reminder,
		calendar: calendar,
		logger:   logger,
	}
}

func (s *Scheduler) SetSender(sender MessageSender) {
	s.sender = sender
}

// dailySpec turns "HH:MM" into a cron spec; dayOfMonth "*" means every day
func dailySpec(hhmm, dayOfMonth string) (string, error) {
	h, m, err := config.ParseClock(hhmm)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d %s * *", m, h, dayOfMonth), nil
}

// Start registers the jobs, runs one catch-up for dates missed while the bot
// was down and blocks until ctx is done
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		at   string
		dom  string
		run  func(context.Context)
	}{
		{"advance due dates", s.cfg.AdvanceTime, "*", s.AdvanceDueDates},
		{"daily notifications", s.cfg.NotificationTime, "*", s.SendDailyNotifications},
		{"monthly report", s.cfg.ReportTime, "1", s.SendMonthlyReport},
	}
	for _, job := range jobs {
		spec, err := dailySpec(job.at, job.dom)
		if err != nil {
			return fmt.Errorf("%s: %w", job.name, err)
		}
		run := job.run
		if _, err := s.cron.AddFunc(spec, func() { run(ctx) }); err != nil {
			return fmt.Errorf("add %s: %w", job.name, err)
		}
	}

	s.AdvanceDueDates(ctx)

	s.cron.Start()
	s.logger.Info("scheduler started",
		"timezone", s.cfg.Timezone.String(),
		"advance", s.cfg.AdvanceTime,
		"notifications", s.cfg.NotificationTime,
		"report", s.cfg.ReportTime,
	)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn("scheduler stop timed out")
	}
	s.logger.Info("scheduler stopped")
}

// AdvanceDueDates catches up every stale subscription and pushes the new
// dates to the calendar
func (s *Scheduler) AdvanceDueDates(ctx context.Context) {
	res, err := s.advancer.CatchUpAllDue(ctx)
	if err != nil {
		s.logger.Error("catch-up finished with errors", "error", err)
	}
	if res == nil {
		return
	}
	s.logger.Info("due dates advanced", "checked", res.Checked, "advanced", len(res.Advanced), "skipped", res.Skipped)

	if s.calendar != nil && s.calendar.IsConfigured() && len(res.Advanced) > 0 {
		pushed := s.calendar.PushAll(ctx, res.Advanced)
		s.logger.Info("calendar updated", "pushed", pushed)
	}
}

// SendDailyNotifications sends today's payment reminders
func (s *Scheduler) SendDailyNotifications(ctx context.Context) {
	msgs, err := s.reminder.DueReminders(ctx)
	if err != nil {
		s.logger.Error("build reminders", "error", err)
		return
	}
	sent := s.deliver(msgs)
	s.logger.Info("reminders sent", "total", len(msgs), "sent", sent)
}

// SendMonthlyReport sends the spending summary
func (s *Scheduler) SendMonthlyReport(ctx context.Context) {
	msgs, err := s.reminder.MonthlyReports(ctx)
	if err != nil {
		s.logger.Error("build monthly reports", "error", err)
		return
	}
	sent := s.deliver(msgs)
	s.logger.Info("monthly reports sent", "total", len(msgs), "sent", sent)
}

func (s *Scheduler) deliver(msgs []service.Message) int {
	if s.sender == nil {
		return 0
	}
	sent := 0
	for _, m := range msgs {
		if err := s.sender.SendMessage(m.ChatID, m.Text); err != nil {
			s.logger.Error("send message", "chat_id", m.ChatID, "subscription_id", m.SubscriptionID, "error", err)
			continue
		}
		sent++
	}
	return sent
}
