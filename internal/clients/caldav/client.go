package caldav

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

const productID = "-//SubsBot//Payments//RU"

// Client pushes payment events to a CalDAV calendar
type Client struct {
	baseURL  string
	username string
	password string

	mu     sync.Mutex
	client *caldav.Client
}

// NewClient creates a new CalDAV client
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
	}
}

// IsConfigured returns true if the client has a server and credentials
func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.username != "" && c.password != ""
}

// connect establishes connection to CalDAV server
func (c *Client) connect() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// DiscoverCalendars returns all calendars of the current user
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	result := make([]Calendar, 0, len(cals))
	for _, cal := range cals {
		result = append(result, Calendar{Path: cal.Path, DisplayName: cal.Name})
	}
	return result, nil
}

func eventPath(calendarPath, uid string) string {
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	return calendarPath + uid + ".ics"
}

// PutEvent creates or replaces the event with the same UID
func (c *Client) PutEvent(ctx context.Context, calendarPath string, event *Event) error {
	if calendarPath == "" {
		return fmt.Errorf("calendar path not specified")
	}
	if event.UID == "" {
		return fmt.Errorf("event UID not specified")
	}

	client, err := c.connect()
	if err != nil {
		return err
	}

	cal := BuildCalendar([]Event{*event}, time.Now())
	if _, err := client.PutCalendarObject(ctx, eventPath(calendarPath, event.UID), cal); err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

// DeleteEvent deletes an event by UID
func (c *Client) DeleteEvent(ctx context.Context, calendarPath, uid string) error {
	if calendarPath == "" {
		return fmt.Errorf("calendar path not specified")
	}

	client, err := c.connect()
	if err != nil {
		return err
	}

	if err := client.RemoveAll(ctx, eventPath(calendarPath, uid)); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// BuildCalendar converts events to one iCalendar object of all-day VEVENTs
func BuildCalendar(events []Event, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	for _, event := range events {
		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropUID, event.UID)
		vevent.Props.SetText(ical.PropSummary, event.Summary)
		if event.Description != "" {
			vevent.Props.SetText(ical.PropDescription, event.Description)
		}

		if event.Category != "" {
			vevent.Props.SetText(ical.PropCategories, event.Category)
		}
		vevent.Props.SetDate(ical.PropDateTimeStart, event.Date)
		vevent.Props.SetDate(ical.PropDateTimeEnd, event.Date.AddDate(0, 0, 1))
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())

		cal.Children = append(cal.Children, vevent.Component)
	}
	return cal
}

// Encode serializes a calendar to text/calendar bytes
func Encode(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}
