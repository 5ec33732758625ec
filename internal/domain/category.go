package domain

import (
	"strings"
	"time"
)

// UncategorizedName is shown for subscriptions without a category
const UncategorizedName = "Без категории"

// DefaultCategories are seeded into an empty database
var DefaultCategories = []string{
	"Развлечения",
	"Музыка",
	"Обучение",
	"Игры",
	"Связь",
	"Дом",
	"Спорт",
	"Другое",
}

type Category struct {
	ID        int64
	Name      string
	Emoji     string
	IsDefault bool
	CreatedAt time.Time
}

// Label returns the category name prefixed with its emoji, if any
func (c *Category) Label() string {
	return strings.TrimSpace(c.Emoji + " " + c.Name)
}
