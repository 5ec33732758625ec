package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tazhate/subsbot/internal/domain"
)

// SubscriptionInput is what a user supplies when adding a subscription
type SubscriptionInput struct {
	Name          string               `validate:"required,max=100"`
	Price         decimal.Decimal      `validate:"gt=0"`
	Currency      string               `validate:"omitempty,max=10"`
	PaymentDay    int                  `validate:"min=1,max=31"`
	BillingPeriod domain.BillingPeriod `validate:"oneof=monthly yearly weekly"`
	CategoryID    *int64               `validate:"omitempty,gt=0"`
	Description   string               `validate:"max=500"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// fieldMessages maps struct fields to the text shown in the chat
var fieldMessages = map[string]string{
	"Name":          "Название обязательно, максимум 100 символов",
	"Price":         "Стоимость должна быть больше 0",
	"Currency":      "Код валюты слишком длинный",
	"PaymentDay":    "День должен быть от 1 до 31",
	"BillingPeriod": "Неизвестная периодичность",
	"CategoryID":    "Неверная категория",
	"Description":   "Описание слишком длинное",
}

// ValidationMessage turns a validator error into user-facing text
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if m, ok := fieldMessages[fe.Field()]; ok {
			msgs = append(msgs, m)
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "\n")
}

func (in *SubscriptionInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = domain.DefaultCurrency
	}
	if in.BillingPeriod == "" {
		in.BillingPeriod = domain.PeriodMonthly
	}
}
