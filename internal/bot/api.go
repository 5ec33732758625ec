package bot

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tazhate/subsbot/internal/billing"
	"github.com/tazhate/subsbot/internal/domain"
	"github.com/tazhate/subsbot/internal/service"
)

// API Response types
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type SubscriptionResponse struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"name"`
	Price                string `json:"price"`
	Currency             string `json:"currency"`
	PaymentDay           int    `json:"payment_day"`
	BillingPeriod        string `json:"billing_period"`
	Category             string `json:"category"`
	CategoryID           *int64 `json:"category_id,omitempty"`
	Description          string `json:"description,omitempty"`
	IsActive             bool   `json:"is_active"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	NextPaymentDate      string `json:"next_payment_date"`
	MonthlyCost          string `json:"monthly_cost"`
	DaysUntil            *int   `json:"days_until,omitempty"`
}

type TotalsResponse struct {
	Monthly  string `json:"monthly"`
	Yearly   string `json:"yearly"`
	Currency string `json:"currency"`
	Count    int    `json:"count"`
}

type CreateSubscriptionRequest struct {
	Name          string `json:"name"`
	Price         string `json:"price"`
	Currency      string `json:"currency"`
	PaymentDay    int    `json:"payment_day"`
	BillingPeriod string `json:"billing_period"`
	CategoryID    *int64 `json:"category_id"`
	Description   string `json:"description"`
}

// API serves the owner's subscriptions over HTTP with Basic Auth
type API struct {
	subs         *service.SubscriptionService
	calendar     *service.CalendarService
	ownerID      int64
	username     string
	password     string
	upcomingDays int
	logger       *slog.Logger
}

func NewAPI(subs *service.SubscriptionService, calendar *service.CalendarService, ownerID int64, username, password string, upcomingDays int, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		subs:         subs,
		calendar:     calendar,
		ownerID:      ownerID,
		username:     username,
		password:     password,
		upcomingDays: upcomingDays,
		logger:       logger,
	}
}

// Register adds the API routes to mux. Nothing is registered without
// credentials.
func (a *API) Register(mux *http.ServeMux) {
	if a.username == "" || a.password == "" {
		return
	}
	mux.HandleFunc("/api/subscriptions", a.basicAuth(a.apiSubscriptions))
	mux.HandleFunc("/api/subscription/", a.basicAuth(a.apiSubscription))
	mux.HandleFunc("/api/upcoming", a.basicAuth(a.apiUpcoming))
	mux.HandleFunc("/api/totals", a.basicAuth(a.apiTotals))
	mux.HandleFunc("/api/categories", a.basicAuth(a.apiCategories))
	a.logger.Info("REST API enabled")
}

func (a *API) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != a.username || password != a.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="SubsBot API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

// serviceError maps service errors to HTTP statuses
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSubscriptionNotFound),
		errors.Is(err, service.ErrUserNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrCategoryNotFound):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		if msg := service.ValidationMessage(err); msg != err.Error() {
			jsonError(w, msg, http.StatusBadRequest)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *API) toResponse(s *domain.Subscription, withDays bool) SubscriptionResponse {
	resp := SubscriptionResponse{
		ID:                   s.ID,
		Name:                 s.Name,
		Price:                s.Price.StringFixed(2),
		Currency:             s.Currency,
		PaymentDay:           s.PaymentDay,
		BillingPeriod:        string(s.BillingPeriod),
		Category:             s.CategoryName(),
		CategoryID:           s.CategoryID,
		Description:          s.Description,
		IsActive:             s.IsActive,
		NotificationsEnabled: s.NotificationsEnabled,
		NextPaymentDate:      s.NextPaymentDate.Format("2006-01-02"),
		MonthlyCost:          s.MonthlyCost().StringFixed(2),
	}
	if withDays {
		d := billing.DaysBetween(a.subs.Today(), s.NextPaymentDate)
		resp.DaysUntil = &d
	}
	return resp
}

func (a *API) toResponses(subs []*domain.Subscription, withDays bool) []SubscriptionResponse {
	out := make([]SubscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, a.toResponse(s, withDays))
	}
	return out
}

// GET /api/subscriptions - list subscriptions (?active=true for active only)
// POST /api/subscriptions - create subscription
func (a *API) apiSubscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active") == "true"
		subs, err := a.subs.List(r.Context(), a.ownerID, activeOnly)
		if err != nil {
			serviceError(w, err)
			return
		}
		jsonResponse(w, http.StatusOK, a.toResponses(subs, false))

	case http.MethodPost:
		var req CreateSubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		price, err := decimal.NewFromString(strings.ReplaceAll(req.Price, ",", "."))
		if err != nil {
			jsonError(w, "Invalid price", http.StatusBadRequest)
			return
		}
		sub, err := a.subs.Create(r.Context(), a.ownerID, service.SubscriptionInput{
			Name:          req.Name,
			Price:         price,
			Currency:      req.Currency,
			PaymentDay:    req.PaymentDay,
			BillingPeriod: domain.BillingPeriod(req.BillingPeriod),
			CategoryID:    req.CategoryID,
			Description:   req.Description,
		})
		if err != nil {
			serviceError(w, err)
			return
		}
		a.push(r, sub)
		jsonResponse(w, http.StatusCreated, a.toResponse(sub, false))

	default:
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/subscription/{id}
// POST /api/subscription/{id}/toggle
// DELETE /api/subscription/{id}
func (a *API) apiSubscription(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/subscription/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		jsonError(w, "Subscription ID required", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		jsonError(w, "Invalid subscription ID", http.StatusBadRequest)
		return
	}

	if len(parts) > 1 {
		if parts[1] != "toggle" {
			jsonError(w, "Not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sub, err := a.subs.Toggle(r.Context(), a.ownerID, id)
		if err != nil {
			serviceError(w, err)
			return
		}
		a.push(r, sub)
		jsonResponse(w, http.StatusOK, a.toResponse(sub, false))
		return
	}

	switch r.Method {
	case http.MethodGet:
		sub, err := a.subs.Get(r.Context(), a.ownerID, id)
		if err != nil {
			serviceError(w, err)
			return
		}
		jsonResponse(w, http.StatusOK, a.toResponse(sub, true))

	case http.MethodDelete:
		sub, err := a.subs.Delete(r.Context(), a.ownerID, id)
		if err != nil {
			serviceError(w, err)
			return
		}
		if a.calendar != nil {
			if err := a.calendar.Remove(r.Context(), sub); err != nil {
				a.logger.Error("calendar remove failed", "subscription_id", sub.ID, "error", err)
			}
		}
		jsonResponse(w, http.StatusOK, map[string]bool{"deleted": true})

	default:
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/upcoming?days=N
func (a *API) apiUpcoming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	days := a.upcomingDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 366 {
			jsonError(w, "Invalid days", http.StatusBadRequest)
			return
		}
		days = n
	}
	subs, err := a.subs.Upcoming(r.Context(), a.ownerID, days)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, a.toResponses(subs, true))
}

// GET /api/totals
func (a *API) apiTotals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	t, err := a.subs.Totals(r.Context(), a.ownerID)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, TotalsResponse{
		Monthly:  t.Monthly.StringFixed(2),
		Yearly:   t.Yearly.StringFixed(2),
		Currency: domain.DefaultCurrency,
		Count:    t.Count,
	})
}

// GET /api/categories
func (a *API) apiCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cats, err := a.subs.Categories(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	type categoryResponse struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Emoji string `json:"emoji,omitempty"`
	}
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name, Emoji: c.Emoji})
	}
	jsonResponse(w, http.StatusOK, out)
}

func (a *API) push(r *http.Request, sub *domain.Subscription) {
	if a.calendar == nil {
		return
	}
	if err := a.calendar.Push(r.Context(), sub); err != nil {
		a.logger.Error("calendar push failed", "subscription_id", sub.ID, "error", err)
	}
}
