package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCosts(t *testing.T) {
	tests := []struct {
		period  BillingPeriod
		price   string
		monthly string
		yearly  string
	}{
		{PeriodMonthly, "299.90", "299.9", "3598.8"},
		{PeriodYearly, "1200", "100", "1200"},
		{PeriodWeekly, "100", "433", "5200"},
		{BillingPeriod("daily"), "50", "50", "600"},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			s := &Subscription{Price: decimal.RequireFromString(tt.price), BillingPeriod: tt.period}
			assert.True(t, s.MonthlyCost().Equal(decimal.RequireFromString(tt.monthly)), s.MonthlyCost().String())
			assert.True(t, s.YearlyCost().Equal(decimal.RequireFromString(tt.yearly)), s.YearlyCost().String())
		})
	}
}

func TestCategoryName(t *testing.T) {
	s := &Subscription{}
	assert.Equal(t, UncategorizedName, s.CategoryName())

	s.Category = &Category{Name: "Музыка"}
	assert.Equal(t, "Музыка", s.CategoryName())
}

func TestStatusEmoji(t *testing.T) {
	s := &Subscription{IsActive: true, NotificationsEnabled: true}
	assert.Equal(t, "✅", s.StatusEmoji())

	s.NotificationsEnabled = false
	assert.Equal(t, "🔕", s.StatusEmoji())

	s.IsActive = false
	assert.Equal(t, "⏸", s.StatusEmoji())
}

func TestParseBillingPeriod(t *testing.T) {
	p, ok := ParseBillingPeriod("yearly")
	assert.True(t, ok)
	assert.Equal(t, PeriodYearly, p)

	_, ok = ParseBillingPeriod("daily")
	assert.False(t, ok)
}

func TestClampNotificationDays(t *testing.T) {
	assert.Equal(t, 0, ClampNotificationDays(-5))
	assert.Equal(t, 7, ClampNotificationDays(7))
	assert.Equal(t, 30, ClampNotificationDays(45))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ivan Petrov", (&User{FirstName: "Ivan", LastName: "Petrov"}).DisplayName())
	assert.Equal(t, "@ivan", (&User{Username: "ivan"}).DisplayName())
	assert.Equal(t, "Ivan", (&User{FirstName: "Ivan", Username: "ivan"}).DisplayName())
}
