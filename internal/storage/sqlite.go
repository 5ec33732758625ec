package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tazhate/subsbot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// dateLayout is how calendar days are stored; it sorts lexically
const dateLayout = "2006-01-02"

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between the bot and the scheduler
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.seedCategories(domain.DefaultCategories); err != nil {
		return nil, fmt.Errorf("seed categories: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER UNIQUE NOT NULL,
			username TEXT DEFAULT '',
			first_name TEXT DEFAULT '',
			last_name TEXT DEFAULT '',
			notification_days INTEGER NOT NULL DEFAULT 3,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			emoji TEXT DEFAULT '',
			is_default INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			price TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'RUB',
			payment_day INTEGER NOT NULL,
			billing_period TEXT NOT NULL DEFAULT 'monthly',
			category_id INTEGER,
			description TEXT DEFAULT '',
			is_active INTEGER DEFAULT 1,
			notifications_enabled INTEGER DEFAULT 1,
			next_payment_date TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (category_id) REFERENCES categories(id) ON DELETE SET NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_user_id ON subscriptions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_next_payment ON subscriptions(next_payment_date)`,
		// Calendar sync
		`ALTER TABLE subscriptions ADD COLUMN calendar_uid TEXT DEFAULT ''`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// seedCategories fills an empty categories table
func (s *Storage) seedCategories(names []string) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range names {
		if _, err := tx.Exec(`INSERT INTO categories (name, is_default) VALUES (?, 1)`, name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(v string) (time.Time, error) {
	// tolerate values written with a time part
	if len(v) > len(dateLayout) {
		v = v[:len(dateLayout)]
	}
	return time.Parse(dateLayout, v)
}

// === Users ===

const userColumns = `id, telegram_id, username, first_name, last_name, notification_days, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.NotificationDays, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Storage) CreateUser(ctx context.Context, u *domain.User) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, first_name, last_name, notification_days) VALUES (?, ?, ?, ?, ?)`,
		u.TelegramID, u.Username, u.FirstName, u.LastName, u.NotificationDays,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	u.ID = id
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	return nil
}

func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (s *Storage) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// ListUsers returns all users
func (s *Storage) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

// ListUsersWithNotifications returns users with lead days > 0
func (s *Storage) ListUsersWithNotifications(ctx context.Context) ([]*domain.User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE notification_days > 0 ORDER BY id`)
}

func (s *Storage) queryUsers(ctx context.Context, query string, args ...any) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Storage) UpdateUserNotificationDays(ctx context.Context, userID int64, days int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET notification_days = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		days, userID,
	)
	return err
}

// === Categories ===

func (s *Storage) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(emoji, ''), is_default, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []*domain.Category
	for rows.Next() {
		c := &domain.Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Emoji, &c.IsDefault, &c.CreatedAt); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (s *Storage) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	c := &domain.Category{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(emoji, ''), is_default, created_at FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Emoji, &c.IsDefault, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// === Subscriptions ===

const subscriptionSelect = `SELECT s.id, s.user_id, s.name, s.price, s.currency, s.payment_day, s.billing_period,
		s.category_id, c.name, c.emoji, COALESCE(s.description, ''), s.is_active, s.notifications_enabled,
		s.next_payment_date, COALESCE(s.calendar_uid, ''), s.created_at
	FROM subscriptions s LEFT JOIN categories c ON c.id = s.category_id`

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	sub := &domain.Subscription{}
	var (
		categoryID    sql.NullInt64
		categoryName  sql.NullString
		categoryEmoji sql.NullString
		period        string
		nextPayment   string
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Name, &sub.Price, &sub.Currency, &sub.PaymentDay, &period,
		&categoryID, &categoryName, &categoryEmoji, &sub.Description, &sub.IsActive, &sub.NotificationsEnabled,
		&nextPayment, &sub.CalendarUID, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}

	sub.BillingPeriod = domain.BillingPeriod(period)
	if categoryID.Valid {
		id := categoryID.Int64
		sub.CategoryID = &id
		if categoryName.Valid {
			sub.Category = &domain.Category{ID: id, Name: categoryName.String, Emoji: categoryEmoji.String}
		}
	}

	sub.NextPaymentDate, err = parseDate(nextPayment)
	if err != nil {
		return nil, fmt.Errorf("subscription %d: parse next payment date %q: %w", sub.ID, nextPayment, err)
	}
	return sub, nil
}

func (s *Storage) querySubscriptions(ctx context.Context, query string, args ...any) ([]*domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Storage) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, name, price, currency, payment_day, billing_period, category_id, description, is_active, notifications_enabled, next_payment_date, calendar_uid)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.UserID, sub.Name, sub.Price, sub.Currency, sub.PaymentDay, string(sub.BillingPeriod), sub.CategoryID,
		sub.Description, sub.IsActive, sub.NotificationsEnabled, formatDate(sub.NextPaymentDate), sub.CalendarUID,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	sub.ID = id
	sub.CreatedAt = time.Now()
	return nil
}

func (s *Storage) GetSubscription(ctx context.Context, id int64) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, subscriptionSelect+` WHERE s.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

// ListSubscriptionsByUser returns a user's subscriptions ordered by next payment
func (s *Storage) ListSubscriptionsByUser(ctx context.Context, userID int64, activeOnly bool) ([]*domain.Subscription, error) {
	query := subscriptionSelect + ` WHERE s.user_id = ?`
	if activeOnly {
		query += ` AND s.is_active = 1`
	}
	query += ` ORDER BY s.next_payment_date, s.id`
	return s.querySubscriptions(ctx, query, userID)
}

// ListUpcomingSubscriptions returns active subscriptions due within [from, to]
func (s *Storage) ListUpcomingSubscriptions(ctx context.Context, userID int64, from, to time.Time) ([]*domain.Subscription, error) {
	return s.querySubscriptions(ctx,
		subscriptionSelect+` WHERE s.user_id = ? AND s.is_active = 1
			AND s.next_payment_date >= ? AND s.next_payment_date <= ?
		 ORDER BY s.next_payment_date, s.id`,
		userID, formatDate(from), formatDate(to),
	)
}

// ListActiveSubscriptions returns every active subscription of every user
func (s *Storage) ListActiveSubscriptions(ctx context.Context) ([]*domain.Subscription, error) {
	return s.querySubscriptions(ctx,
		subscriptionSelect+` WHERE s.is_active = 1 ORDER BY s.user_id, s.next_payment_date, s.id`)
}

// ListStaleSubscriptions returns active subscriptions whose next payment is before today
func (s *Storage) ListStaleSubscriptions(ctx context.Context, today time.Time) ([]*domain.Subscription, error) {
	return s.querySubscriptions(ctx,
		subscriptionSelect+` WHERE s.is_active = 1 AND s.next_payment_date < ? ORDER BY s.id`,
		formatDate(today),
	)
}

// UpdateSubscription writes the editable fields. next_payment_date is left
// alone so a concurrent catch-up is never reverted; see RescheduleSubscription.
func (s *Storage) UpdateSubscription(ctx context.Context, sub *domain.Subscription) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET name = ?, price = ?, currency = ?, payment_day = ?, billing_period = ?, category_id = ?,
			description = ?, is_active = ?, notifications_enabled = ?, calendar_uid = ?
		 WHERE id = ?`,
		sub.Name, sub.Price, sub.Currency, sub.PaymentDay, string(sub.BillingPeriod), sub.CategoryID,
		sub.Description, sub.IsActive, sub.NotificationsEnabled, sub.CalendarUID,
		sub.ID,
	)
	return err
}

// RescheduleSubscription sets the next payment date unconditionally
func (s *Storage) RescheduleSubscription(ctx context.Context, id int64, next time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET next_payment_date = ? WHERE id = ?`,
		formatDate(next), id,
	)
	return err
}

// AdvanceNextPaymentDate moves the next payment date from one day to another
// only if the row still holds from. It reports false when the row was edited,
// paused or deleted in the meantime.
func (s *Storage) AdvanceNextPaymentDate(ctx context.Context, id int64, from, to time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET next_payment_date = ?
		 WHERE id = ? AND next_payment_date = ? AND is_active = 1`,
		formatDate(to), id, formatDate(from),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Storage) DeleteSubscription(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	return err
}
