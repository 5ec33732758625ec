package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// env mirrors the environment variables read by Load
type env struct {
	TelegramToken           string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	DatabasePath            string `mapstructure:"DATABASE_PATH"`
	Timezone                string `mapstructure:"TIMEZONE"`
	NotificationTime        string `mapstructure:"NOTIFICATION_TIME"`
	AdvanceTime             string `mapstructure:"ADVANCE_TIME"`
	ReportTime              string `mapstructure:"REPORT_TIME"`
	DefaultNotificationDays int    `mapstructure:"DEFAULT_NOTIFICATION_DAYS"`
	UpcomingDays            int    `mapstructure:"UPCOMING_DAYS"`
	WebhookURL              string `mapstructure:"WEBHOOK_URL"`
	ServerPort              string `mapstructure:"SERVER_PORT"`
	AllowedTelegramIDs      string `mapstructure:"ALLOWED_TELEGRAM_IDS"`
	OwnerTelegramID         int64  `mapstructure:"OWNER_TELEGRAM_ID"`
	APIUsername             string `mapstructure:"API_USERNAME"`
	APIPassword             string `mapstructure:"API_PASSWORD"`
	CalDAVURL               string `mapstructure:"CALDAV_URL"`
	CalDAVUsername          string `mapstructure:"CALDAV_USERNAME"`
	CalDAVPassword          string `mapstructure:"CALDAV_PASSWORD"`
	CalDAVCalendar          string `mapstructure:"CALDAV_CALENDAR"`
	LogLevel                string `mapstructure:"LOG_LEVEL"`
}

var defaults = map[string]any{
	"DATABASE_PATH":             "./data/subsbot.db",
	"TIMEZONE":                  "Europe/Moscow",
	"NOTIFICATION_TIME":         "10:00",
	"ADVANCE_TIME":              "00:00",
	"REPORT_TIME":               "09:00",
	"DEFAULT_NOTIFICATION_DAYS": 3,
	"UPCOMING_DAYS":             14,
	"SERVER_PORT":               "8080",
	"LOG_LEVEL":                 "info",
}

var keys = []string{
	"TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "TIMEZONE",
	"NOTIFICATION_TIME", "ADVANCE_TIME", "REPORT_TIME",
	"DEFAULT_NOTIFICATION_DAYS", "UPCOMING_DAYS",
	"WEBHOOK_URL", "SERVER_PORT", "ALLOWED_TELEGRAM_IDS", "OWNER_TELEGRAM_ID",
	"API_USERNAME", "API_PASSWORD",
	"CALDAV_URL", "CALDAV_USERNAME", "CALDAV_PASSWORD", "CALDAV_CALENDAR",
	"LOG_LEVEL",
}

type Config struct {
	TelegramToken           string
	DatabasePath            string
	Timezone                *time.Location
	NotificationTime        string
	AdvanceTime             string
	ReportTime              string
	DefaultNotificationDays int
	UpcomingDays            int
	WebhookURL              string // empty means long polling
	ServerPort              string
	AllowedTelegramIDs      []int64
	OwnerTelegramID         int64
	APIUsername             string
	APIPassword             string
	CalDAVURL               string
	CalDAVUsername          string
	CalDAVPassword          string
	CalDAVCalendar          string // collection path or display name
	LogLevel                slog.Level
}

// Load reads the optional .env file and then the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
	viper.AutomaticEnv()
	for _, k := range keys {
		_ = viper.BindEnv(k)
	}

	var e env
	if err := viper.Unmarshal(&e); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if e.TelegramToken == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	tz, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	for name, value := range map[string]string{
		"NOTIFICATION_TIME": e.NotificationTime,
		"ADVANCE_TIME":      e.AdvanceTime,
		"REPORT_TIME":       e.ReportTime,
	} {
		if _, _, err := ParseClock(value); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	allowed, err := parseIDs(e.AllowedTelegramIDs)
	if err != nil {
		return nil, fmt.Errorf("invalid ALLOWED_TELEGRAM_IDS: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if e.UpcomingDays <= 0 {
		return nil, errors.New("UPCOMING_DAYS must be positive")
	}

	return &Config{
		TelegramToken:           e.TelegramToken,
		DatabasePath:            e.DatabasePath,
		Timezone:                tz,
		NotificationTime:        e.NotificationTime,
		AdvanceTime:             e.AdvanceTime,
		ReportTime:              e.ReportTime,
		DefaultNotificationDays: e.DefaultNotificationDays,
		UpcomingDays:            e.UpcomingDays,
		WebhookURL:              strings.TrimRight(e.WebhookURL, "/"),
		ServerPort:              e.ServerPort,
		AllowedTelegramIDs:      allowed,
		OwnerTelegramID:         e.OwnerTelegramID,
		APIUsername:             e.APIUsername,
		APIPassword:             e.APIPassword,
		CalDAVURL:               e.CalDAVURL,
		CalDAVUsername:          e.CalDAVUsername,
		CalDAVPassword:          e.CalDAVPassword,
		CalDAVCalendar:          e.CalDAVCalendar,
		LogLevel:                level,
	}, nil
}

// ParseClock parses "HH:MM"
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// IsAllowedUser reports whether the Telegram user may use the bot. An empty
// allow list admits everyone.
func (c *Config) IsAllowedUser(telegramID int64) bool {
	if len(c.AllowedTelegramIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedTelegramIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// APIEnabled reports whether REST API credentials are set
func (c *Config) APIEnabled() bool {
	return c.APIUsername != "" && c.APIPassword != ""
}

// UseWebhook reports whether updates arrive via webhook instead of polling
func (c *Config) UseWebhook() bool {
	return c.WebhookURL != ""
}
