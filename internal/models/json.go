package models

import (
	"encoding/json"
	"fmt"
)

type eventDateTimeJSON struct {
	DateTime string `json:"date_time"`
	TimeZone string `json:"time_zone"`
	AllDay   bool   `json:"all_day,omitempty"`
}

type eventDateTimeInput struct {
	DateTime      *string `json:"date_time"`
	DateTimeAlias *string `json:"dateTime"`
	TimeZone      *string `json:"time_zone"`
	TimeZoneAlias *string `json:"timeZone"`
	AllDay        bool    `json:"all_day"`
}

// MarshalJSON emits the wall clock without an offset.
func (d EventDateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventDateTimeJSON{
		DateTime: d.DateTime.Format(DateTimeLayout),
		TimeZone: d.TimeZone,
		AllDay:   d.AllDay,
	})
}

// UnmarshalJSON accepts both snake_case and camelCase keys.
// A missing timezone defaults to UTC; an empty one is rejected.
func (d *EventDateTime) UnmarshalJSON(data []byte) error {
	var in eventDateTimeInput
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	raw := firstSet(in.DateTime, in.DateTimeAlias)
	if raw == nil {
		return &ValidationError{Field: "date_time", Message: "is required"}
	}
	tz := DefaultTimeZone
	if v := firstSet(in.TimeZone, in.TimeZoneAlias); v != nil {
		tz = *v
	}

	t, err := ParseWireDateTime(*raw, tz)
	if err != nil {
		return &ValidationError{Field: "date_time", Message: err.Error()}
	}
	parsed, err := NewEventDateTime(t, tz)
	if err != nil {
		return err
	}
	parsed.AllDay = in.AllDay
	*d = parsed
	return nil
}

type calendarEventJSON struct {
	ID          string        `json:"id,omitempty"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Location    string        `json:"location,omitempty"`
	StartTime   EventDateTime `json:"start_time"`
	EndTime     EventDateTime `json:"end_time"`
}

type calendarEventInput struct {
	ID          string         `json:"id"`
	Title       *string        `json:"title"`
	Summary     *string        `json:"summary"`
	Description *string        `json:"description"`
	Location    *string        `json:"location"`
	StartTime   *EventDateTime `json:"start_time"`
	Start       *EventDateTime `json:"start"`
	EndTime     *EventDateTime `json:"end_time"`
	End         *EventDateTime `json:"end"`
}

// MarshalJSON omits the id of unsaved events and empty optional fields.
func (e CalendarEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(calendarEventJSON{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
	})
}

// UnmarshalJSON accepts the title/summary, start_time/start and end_time/end aliases
// and validates the result.
func (e *CalendarEvent) UnmarshalJSON(data []byte) error {
	var in calendarEventInput
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	out := CalendarEvent{ID: in.ID}
	if v := firstSet(in.Title, in.Summary); v != nil {
		out.Title = *v
	}
	if in.Description != nil {
		out.Description = *in.Description
	}
	if in.Location != nil {
		out.Location = *in.Location
	}

	start := firstSet(in.StartTime, in.Start)
	if start == nil {
		return fmt.Errorf("event: %w", &ValidationError{Field: "start_time", Message: "is required"})
	}
	end := firstSet(in.EndTime, in.End)
	if end == nil {
		return fmt.Errorf("event: %w", &ValidationError{Field: "end_time", Message: "is required"})
	}
	out.StartTime = *start
	out.EndTime = *end

	if err := out.Validate(); err != nil {
		return err
	}
	*e = out
	return nil
}

func firstSet[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
