package caldav

import "time"

// Calendar is a calendar collection found on the server
type Calendar struct {
	Path        string
	DisplayName string
}

// Event is a one-day VEVENT; Date is the calendar day at 00:00 UTC
type Event struct {
	UID         string
	Summary     string
	Description string
	Category    string
	Date        time.Time
}
