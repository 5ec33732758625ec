package domain

import "time"

const (
	MinNotificationDays = 0
	MaxNotificationDays = 30
)

type User struct {
	ID               int64
	TelegramID       int64
	Username         string
	FirstName        string
	LastName         string
	NotificationDays int // 0 disables reminders
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DisplayName returns "First Last", falling back to @username
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" && u.Username != "" {
		return "@" + u.Username
	}
	return name
}

// RemindersEnabled reports whether the user wants payment reminders at all
func (u *User) RemindersEnabled() bool {
	return u.NotificationDays > 0
}

// ClampNotificationDays keeps lead days within 0..30
func ClampNotificationDays(days int) int {
	if days < MinNotificationDays {
		return MinNotificationDays
	}
	if days > MaxNotificationDays {
		return MaxNotificationDays
	}
	return days
}
