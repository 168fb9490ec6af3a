package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultTimeZone is used when an event time carries no timezone.
	DefaultTimeZone = "UTC"

	// DefaultMaxResults is the page size used when a query does not set one.
	DefaultMaxResults = 10
	// MaxResultsLimit is the largest page size a query may request.
	MaxResultsLimit = 100

	maxTitleLength       = 200
	maxDescriptionLength = 1000
	maxLocationLength    = 500
)

// ValidationError reports a malformed or out-of-bounds event field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// EventDateTime is a wall-clock time paired with the IANA timezone it should be read in.
// DateTime carries no offset of its own; it is stored with time.UTC as a neutral location.
// AllDay marks a date-only value, held as midnight of that date.
type EventDateTime struct {
	DateTime time.Time
	TimeZone string
	AllDay   bool
}

// NewEventDateTime strips any location from dt and validates the timezone.
func NewEventDateTime(dt time.Time, timeZone string) (EventDateTime, error) {
	d := EventDateTime{DateTime: Naive(dt), TimeZone: timeZone}
	if err := d.Validate(); err != nil {
		return EventDateTime{}, err
	}
	return d, nil
}

// Validate checks that the timezone is set.
func (d EventDateTime) Validate() error {
	if strings.TrimSpace(d.TimeZone) == "" {
		return &ValidationError{Field: "time_zone", Message: "timezone cannot be empty"}
	}
	return nil
}

// Instant resolves the wall-clock time in its timezone. Unknown timezones fall back to UTC.
func (d EventDateTime) Instant() time.Time {
	loc, err := time.LoadLocation(d.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	t := d.DateTime
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// String formats the wall-clock value the way the calendar APIs expect it.
func (d EventDateTime) String() string {
	return d.DateTime.Format(DateTimeLayout)
}

// Date returns the calendar date of d as YYYY-MM-DD.
func (d EventDateTime) Date() string {
	return d.DateTime.Format(time.DateOnly)
}

// CalendarEvent is the backend-agnostic event representation.
// An empty ID marks an event that has not been persisted by a backend yet.
type CalendarEvent struct {
	ID          string
	Title       string
	Description string
	Location    string
	StartTime   EventDateTime
	EndTime     EventDateTime
}

// NewCalendarEvent builds an unsaved event and validates every field.
func NewCalendarEvent(title, description, location string, start, end EventDateTime) (*CalendarEvent, error) {
	e := &CalendarEvent{
		Title:       title,
		Description: description,
		Location:    location,
		StartTime:   EventDateTime{DateTime: Naive(start.DateTime), TimeZone: start.TimeZone, AllDay: start.AllDay},
		EndTime:     EventDateTime{DateTime: Naive(end.DateTime), TimeZone: end.TimeZone, AllDay: end.AllDay},
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Persisted reports whether a backend has assigned the event an id.
func (e CalendarEvent) Persisted() bool {
	return e.ID != ""
}

// Validate enforces the field bounds of an event.
func (e CalendarEvent) Validate() error {
	if n := utf8.RuneCountInString(e.Title); n < 1 || n > maxTitleLength {
		return &ValidationError{
			Field:   "title",
			Message: fmt.Sprintf("must be between 1 and %d characters, got %d", maxTitleLength, n),
		}
	}
	if n := utf8.RuneCountInString(e.Description); n > maxDescriptionLength {
		return &ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("must be at most %d characters, got %d", maxDescriptionLength, n),
		}
	}
	if n := utf8.RuneCountInString(e.Location); n > maxLocationLength {
		return &ValidationError{
			Field:   "location",
			Message: fmt.Sprintf("must be at most %d characters, got %d", maxLocationLength, n),
		}
	}
	if err := e.StartTime.Validate(); err != nil {
		return prefixField("start_time", err)
	}
	if err := e.EndTime.Validate(); err != nil {
		return prefixField("end_time", err)
	}
	return nil
}

// EventFilters narrows a list query. It never mutates backend state.
type EventFilters struct {
	StartDate   *time.Time
	EndDate     *time.Time
	SearchQuery string
	MaxResults  int
}

// DefaultEventFilters matches every event, capped at DefaultMaxResults.
func DefaultEventFilters() EventFilters {
	return EventFilters{MaxResults: DefaultMaxResults}
}

// NewEventFilters validates maxResults against [1, MaxResultsLimit].
func NewEventFilters(start, end *time.Time, searchQuery string, maxResults int) (EventFilters, error) {
	f := EventFilters{
		StartDate:   start,
		EndDate:     end,
		SearchQuery: searchQuery,
		MaxResults:  maxResults,
	}
	if err := f.Validate(); err != nil {
		return EventFilters{}, err
	}
	return f, nil
}

// Validate checks the page size bound.
func (f EventFilters) Validate() error {
	if f.MaxResults < 1 || f.MaxResults > MaxResultsLimit {
		return &ValidationError{
			Field:   "max_results",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxResultsLimit, f.MaxResults),
		}
	}
	return nil
}

func prefixField(prefix string, err error) error {
	if ve, ok := err.(*ValidationError); ok {
		return &ValidationError{Field: prefix + "." + ve.Field, Message: ve.Message}
	}
	return err
}
