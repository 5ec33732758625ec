package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tazhate/subsbot/internal/domain"
)

// memStore is an in-memory Store for service tests
type memStore struct {
	mu         sync.Mutex
	users      map[int64]*domain.User
	categories map[int64]*domain.Category
	subs       map[int64]*domain.Subscription
	nextID     int64

	// beforeUpdate runs ahead of UpdateSubscription to interleave writers
	beforeUpdate func()

	failAdvance map[int64]error
}

func newMemStore() *memStore {
	s := &memStore{
		users:       make(map[int64]*domain.User),
		categories:  make(map[int64]*domain.Category),
		subs:        make(map[int64]*domain.Subscription),
		failAdvance: make(map[int64]error),
	}
	for _, name := range domain.DefaultCategories {
		s.nextID++
		s.categories[s.nextID] = &domain.Category{ID: s.nextID, Name: name, IsDefault: true}
	}
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func copySub(sub *domain.Subscription) *domain.Subscription {
	c := *sub
	return &c
}

func (s *memStore) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.id()
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *memStore) GetUserByTelegramID(_ context.Context, telegramID int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TelegramID == telegramID {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (s *memStore) ListUsers(_ context.Context) ([]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.User
	for _, u := range s.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListUsersWithNotifications(ctx context.Context) ([]*domain.User, error) {
	all, _ := s.ListUsers(ctx)
	var out []*domain.User
	for _, u := range all {
		if u.NotificationDays > 0 {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) UpdateUserNotificationDays(_ context.Context, userID int64, days int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return errors.New("no user")
	}
	u.NotificationDays = days
	return nil
}

func (s *memStore) ListCategories(_ context.Context) ([]*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Category
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetCategory(_ context.Context, id int64) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.categories[id], nil
}

func (s *memStore) CreateSubscription(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = s.id()
	s.subs[sub.ID] = copySub(sub)
	return nil
}

func (s *memStore) GetSubscription(_ context.Context, id int64) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		return copySub(sub), nil
	}
	return nil, nil
}

func (s *memStore) filter(keep func(*domain.Subscription) bool) []*domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Subscription
	for _, sub := range s.subs {
		if keep(sub) {
			out = append(out, copySub(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextPaymentDate.Equal(out[j].NextPaymentDate) {
			return out[i].NextPaymentDate.Before(out[j].NextPaymentDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *memStore) ListSubscriptionsByUser(_ context.Context, userID int64, activeOnly bool) ([]*domain.Subscription, error) {
	return s.filter(func(sub *domain.Subscription) bool {
		return sub.UserID == userID && (!activeOnly || sub.IsActive)
	}), nil
}

func (s *memStore) ListUpcomingSubscriptions(_ context.Context, userID int64, from, to time.Time) ([]*domain.Subscription, error) {
	return s.filter(func(sub *domain.Subscription) bool {
		return sub.UserID == userID && sub.IsActive &&
			!sub.NextPaymentDate.Before(from) && !sub.NextPaymentDate.After(to)
	}), nil
}

func (s *memStore) ListActiveSubscriptions(_ context.Context) ([]*domain.Subscription, error) {
	return s.filter(func(sub *domain.Subscription) bool { return sub.IsActive }), nil
}

func (s *memStore) ListStaleSubscriptions(_ context.Context, today time.Time) ([]*domain.Subscription, error) {
	return s.filter(func(sub *domain.Subscription) bool {
		return sub.IsActive && sub.NextPaymentDate.Before(today)
	}), nil
}

func (s *memStore) UpdateSubscription(_ context.Context, sub *domain.Subscription) error {
	if s.beforeUpdate != nil {
		s.beforeUpdate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.subs[sub.ID]
	if !ok {
		return errors.New("no subscription")
	}
	c := copySub(sub)
	c.NextPaymentDate = old.NextPaymentDate
	s.subs[sub.ID] = c
	return nil
}

func (s *memStore) RescheduleSubscription(_ context.Context, id int64, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return errors.New("no subscription")
	}
	sub.NextPaymentDate = next
	return nil
}

func (s *memStore) AdvanceNextPaymentDate(_ context.Context, id int64, from, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failAdvance[id]; err != nil {
		return false, err
	}
	sub, ok := s.subs[id]
	if !ok || !sub.IsActive || !sub.NextPaymentDate.Equal(from) {
		return false, nil
	}
	sub.NextPaymentDate = to
	return true, nil
}

func (s *memStore) DeleteSubscription(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	return nil
}

// seed inserts a subscription directly, bypassing validation
func (s *memStore) seed(sub *domain.Subscription) *domain.Subscription {
	_ = s.CreateSubscription(context.Background(), sub)
	return sub
}
