package bot

import (
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/subsbot/internal/domain"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{"399", "399", nil},
		{"1999.50", "1999.5", nil},
		{"1999,50", "1999.5", nil},
		{" 1 299 ", "1299", nil},
		{"0", "", errPricePositive},
		{"-10", "", errPricePositive},
		{"abc", "", errPriceFormat},
		{"", "", errPriceFormat},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePrice(tt.in)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseDayBoundaries(t *testing.T) {
	for _, in := range []string{"1", "15", "31", " 28 "} {
		_, err := parseDay(in)
		assert.NoError(t, err, in)
	}
	for _, in := range []string{"0", "32", "-1"} {
		_, err := parseDay(in)
		assert.ErrorIs(t, err, errDayRange, in)
	}
	_, err := parseDay("пятое")
	assert.ErrorIs(t, err, errDayFormat)
}

func TestParseName(t *testing.T) {
	name, err := parseName("  Яндекс Плюс ")
	require.NoError(t, err)
	assert.Equal(t, "Яндекс Плюс", name)

	// 100 Cyrillic letters are 200 bytes but still fit
	long := make([]rune, 100)
	for i := range long {
		long[i] = 'я'
	}
	_, err = parseName(string(long))
	assert.NoError(t, err)

	_, err = parseName(string(append(long, 'я')))
	assert.ErrorIs(t, err, errNameLength)

	_, err = parseName("   ")
	assert.ErrorIs(t, err, errNameEmpty)
}

func TestParsePeriod(t *testing.T) {
	tests := map[string]domain.BillingPeriod{
		"monthly":     domain.PeriodMonthly,
		"Ежегодно":    domain.PeriodYearly,
		"еженедельно": domain.PeriodWeekly,
		"год":         domain.PeriodYearly,
	}
	for in, want := range tests {
		got, ok := parsePeriod(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := parsePeriod("daily")
	assert.False(t, ok)
}

func TestDialogStoreIsolatesChats(t *testing.T) {
	s := newDialogStore()
	s.set(1, dialog{Step: stepAddName})
	s.set(2, dialog{Step: stepAddPrice})

	d, ok := s.get(1)
	require.True(t, ok)
	assert.Equal(t, stepAddName, d.Step)

	// mutating the copy does not touch the store
	d.Step = stepAddDay
	d, _ = s.get(1)
	assert.Equal(t, stepAddName, d.Step)

	assert.True(t, s.clear(1))
	assert.False(t, s.clear(1))
	_, ok = s.get(2)
	assert.True(t, ok)
}

func TestDialogStoreConcurrentAccess(t *testing.T) {
	s := newDialogStore()
	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.set(id, dialog{Step: stepAddName})
			s.get(id)
			s.clear(id)
		}(i)
	}
	wg.Wait()
}

func TestDialogStoreLockSerializesChat(t *testing.T) {
	s := newDialogStore()
	s.set(1, dialog{Step: stepAddName})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.lock(1)
			defer unlock()
			d, _ := s.get(1)
			d.SubscriptionID++
			s.set(1, d)
		}()
	}
	wg.Wait()

	d, ok := s.get(1)
	require.True(t, ok)
	assert.Equal(t, int64(50), d.SubscriptionID)

	// other chats are not blocked by a held lock
	unlock := s.lock(1)
	defer unlock()
	release := s.lock(2)
	release()
}

func TestUpdateChatID(t *testing.T) {
	id, ok := updateChatID(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 5}}})
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)

	id, ok = updateChatID(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}},
	}})
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	_, ok = updateChatID(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{}})
	assert.False(t, ok)
}
