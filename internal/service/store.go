package service

import (
	"context"
	"errors"
	"time"

	"github.com/tazhate/subsbot/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("пользователь не найден")
	ErrSubscriptionNotFound = errors.New("подписка не найдена")
	ErrCategoryNotFound     = errors.New("категория не найдена")
)

// Store is the persistence the services need. *storage.Storage implements it.
type Store interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	ListUsersWithNotifications(ctx context.Context) ([]*domain.User, error)
	UpdateUserNotificationDays(ctx context.Context, userID int64, days int) error

	ListCategories(ctx context.Context) ([]*domain.Category, error)
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)

	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	GetSubscription(ctx context.Context, id int64) (*domain.Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID int64, activeOnly bool) ([]*domain.Subscription, error)
	ListUpcomingSubscriptions(ctx context.Context, userID int64, from, to time.Time) ([]*domain.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]*domain.Subscription, error)
	ListStaleSubscriptions(ctx context.Context, today time.Time) ([]*domain.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *domain.Subscription) error
	RescheduleSubscription(ctx context.Context, id int64, next time.Time) error
	AdvanceNextPaymentDate(ctx context.Context, id int64, from, to time.Time) (bool, error)
	DeleteSubscription(ctx context.Context, id int64) error
}
