package bot

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tazhate/subsbot/internal/domain"
	"github.com/tazhate/subsbot/internal/service"
)

type dialogStep int

const (
	stepAddName dialogStep = iota + 1
	stepAddPrice
	stepAddDay
	stepAddPeriod
	stepAddCategory
	stepEditValue
)

// dialog is the in-progress conversation of one chat
type dialog struct {
	Step  dialogStep
	Input service.SubscriptionInput

	// edit
	SubscriptionID int64
	Field          string
}

type dialogStore struct {
	mu      sync.Mutex
	dialogs map[int64]*dialog
	chats   map[int64]*sync.Mutex
}

func newDialogStore() *dialogStore {
	return &dialogStore{
		dialogs: make(map[int64]*dialog),
		chats:   make(map[int64]*sync.Mutex),
	}
}

// lock serializes updates of one chat so a get/set pair is not interleaved
// with another message from the same chat. Call the returned func to release.
func (s *dialogStore) lock(chatID int64) func() {
	s.mu.Lock()
	m, ok := s.chats[chatID]
	if !ok {
		m = &sync.Mutex{}
		s.chats[chatID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// get returns a copy so callers never share state across updates
func (s *dialogStore) get(chatID int64) (dialog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dialogs[chatID]
	if !ok {
		return dialog{}, false
	}
	return *d, true
}

func (s *dialogStore) set(chatID int64, d dialog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogs[chatID] = &d
}

func (s *dialogStore) clear(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dialogs[chatID]
	delete(s.dialogs, chatID)
	return ok
}

var (
	errPriceFormat   = errors.New("Пожалуйста, введите число (например: 399 или 1999.50):")
	errPricePositive = errors.New("Стоимость должна быть больше 0. Введите снова:")
	errDayFormat     = errors.New("Пожалуйста, введите число от 1 до 31:")
	errDayRange      = errors.New("День должен быть от 1 до 31. Введите снова:")
	errNameLength    = errors.New("Название слишком длинное. Максимум 100 символов. Введите название снова:")
	errNameEmpty     = errors.New("Название не может быть пустым. Введите название:")
)

const maxNameLength = 100

// parsePrice accepts "399", "1999.50" and "1999,50"
func parsePrice(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	s = strings.ReplaceAll(s, " ", "")
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errPriceFormat
	}
	if !price.IsPositive() {
		return decimal.Zero, errPricePositive
	}
	return price.Round(2), nil
}

// parseDay accepts a day of month 1..31
func parseDay(s string) (int, error) {
	day, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errDayFormat
	}
	if day < domain.MinPaymentDay || day > domain.MaxPaymentDay {
		return 0, errDayRange
	}
	return day, nil
}

func parseName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errNameEmpty
	}
	if len([]rune(s)) > maxNameLength {
		return "", errNameLength
	}
	return s, nil
}

// parsePeriod accepts stored values and the Russian labels
func parsePeriod(s string) (domain.BillingPeriod, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if p, ok := domain.ParseBillingPeriod(s); ok {
		return p, true
	}
	for _, p := range domain.BillingPeriods {
		if s == p.Label() || s == p.Adjective() {
			return p, true
		}
	}
	switch s {
	case "месяц", "мес":
		return domain.PeriodMonthly, true
	case "год":
		return domain.PeriodYearly, true
	case "неделя", "нед":
		return domain.PeriodWeekly, true
	}
	return "", false
}
