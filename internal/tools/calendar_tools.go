package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"calbot/internal/models"
)

// AddEventInput are the arguments of add_calendar_event.
type AddEventInput struct {
	Title         string  `json:"title"`
	StartDatetime string  `json:"start_datetime"`
	EndDatetime   string  `json:"end_datetime"`
	Description   *string `json:"description,omitempty"`
	Location      *string `json:"location,omitempty"`
	Timezone      *string `json:"timezone,omitempty"`
}

// ListEventsInput are the arguments of list_calendar_events.
type ListEventsInput struct {
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
	SearchQuery *string `json:"search_query,omitempty"`
	MaxResults  *int    `json:"max_results,omitempty"`
}

// UnmarshalJSON also accepts max_results written as a whole float, e.g. 10.0.
func (in *ListEventsInput) UnmarshalJSON(data []byte) error {
	type plain ListEventsInput
	var raw struct {
		plain
		MaxResults *float64 `json:"max_results,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*in = ListEventsInput(raw.plain)
	in.MaxResults = nil
	if raw.MaxResults == nil {
		return nil
	}

	v := *raw.MaxResults
	if v != math.Trunc(v) {
		return &models.ValidationError{Field: "max_results", Message: fmt.Sprintf("must be a whole number, got %v", v)}
	}
	if math.Abs(v) > math.MaxInt32 {
		return &models.ValidationError{
			Field:   "max_results",
			Message: fmt.Sprintf("must be between 1 and %d, got %v", models.MaxResultsLimit, v),
		}
	}
	n := int(v)
	in.MaxResults = &n
	return nil
}

// EventIDInput are the arguments of get_calendar_event and delete_calendar_event.
type EventIDInput struct {
	EventID string `json:"event_id"`
}

// UpdateEventInput are the arguments of update_calendar_event. Nil fields are left unchanged.
type UpdateEventInput struct {
	EventID       string  `json:"event_id"`
	Title         *string `json:"title,omitempty"`
	StartDatetime *string `json:"start_datetime,omitempty"`
	EndDatetime   *string `json:"end_datetime,omitempty"`
	Description   *string `json:"description,omitempty"`
	Location      *string `json:"location,omitempty"`
	Timezone      *string `json:"timezone,omitempty"`
}

// AddEvent creates an event and confirms it with its title and id.
func (t *Toolset) AddEvent(ctx context.Context, in AddEventInput) string {
	return t.run(ctx, AddEventTool, in)
}

// ListEvents renders matching events as a numbered digest.
func (t *Toolset) ListEvents(ctx context.Context, in ListEventsInput) string {
	return t.run(ctx, ListEventsTool, in)
}

// GetEvent renders the full details of one event.
func (t *Toolset) GetEvent(ctx context.Context, in EventIDInput) string {
	return t.run(ctx, GetEventTool, in)
}

// UpdateEvent merges the supplied fields into the stored event.
func (t *Toolset) UpdateEvent(ctx context.Context, in UpdateEventInput) string {
	return t.run(ctx, UpdateEventTool, in)
}

// DeleteEvent removes an event.
func (t *Toolset) DeleteEvent(ctx context.Context, in EventIDInput) string {
	return t.run(ctx, DeleteEventTool, in)
}

// run routes typed calls through the same path the model uses.
func (t *Toolset) run(ctx context.Context, name string, in any) string {
	raw, err := jsonArgs(in)
	if err != nil {
		return fmt.Sprintf("Failed to encode arguments for %s: %v", name, err)
	}
	return t.Call(ctx, name, raw)
}

func (t *Toolset) addEvent(ctx context.Context, in AddEventInput) (string, error) {
	tz, err := timezoneOrDefault(in.Timezone)
	if err != nil {
		return "", err
	}
	start, err := models.ParseNaiveDateTime("start_datetime", in.StartDatetime)
	if err != nil {
		return "", err
	}
	end, err := models.ParseNaiveDateTime("end_datetime", in.EndDatetime)
	if err != nil {
		return "", err
	}

	event, err := models.NewCalendarEvent(in.Title, deref(in.Description), deref(in.Location),
		models.EventDateTime{DateTime: start, TimeZone: tz},
		models.EventDateTime{DateTime: end, TimeZone: tz})
	if err != nil {
		return "", err
	}

	created, err := t.provider.AddEvent(ctx, *event)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Event created: %s (ID: %s)", created.Title, created.ID), nil
}

func (t *Toolset) listEvents(ctx context.Context, in ListEventsInput) (string, error) {
	filters := models.DefaultEventFilters()
	if in.MaxResults != nil {
		filters.MaxResults = *in.MaxResults
	}
	filters.SearchQuery = strings.TrimSpace(deref(in.SearchQuery))

	var err error
	if filters.StartDate, err = optionalDate("start_date", in.StartDate); err != nil {
		return "", err
	}
	if filters.EndDate, err = optionalDate("end_date", in.EndDate); err != nil {
		return "", err
	}
	if err := filters.Validate(); err != nil {
		return "", err
	}

	events, err := t.provider.ListEvents(ctx, filters)
	if err != nil {
		return "", err
	}
	return formatEventList(events), nil
}

func (t *Toolset) getEvent(ctx context.Context, in EventIDInput) (string, error) {
	if err := requireID(in.EventID); err != nil {
		return "", err
	}
	event, err := t.provider.GetEvent(ctx, in.EventID)
	if err != nil {
		return "", err
	}
	return formatEventDetail(*event), nil
}

func (t *Toolset) updateEvent(ctx context.Context, in UpdateEventInput) (string, error) {
	if err := requireID(in.EventID); err != nil {
		return "", err
	}
	existing, err := t.provider.GetEvent(ctx, in.EventID)
	if err != nil {
		return "", err
	}

	event := *existing
	if v := deref(in.Title); v != "" {
		event.Title = v
	}
	if in.Description != nil {
		event.Description = *in.Description
	}
	if in.Location != nil {
		event.Location = *in.Location
	}

	startSet := deref(in.StartDatetime) != ""
	endSet := deref(in.EndDatetime) != ""
	if startSet || endSet {
		tz, err := timezoneOrDefault(in.Timezone)
		if err != nil {
			return "", err
		}
		if startSet {
			dt, err := models.ParseNaiveDateTime("start_datetime", *in.StartDatetime)
			if err != nil {
				return "", err
			}
			event.StartTime = models.EventDateTime{DateTime: dt, TimeZone: tz}
		}
		if endSet {
			dt, err := models.ParseNaiveDateTime("end_datetime", *in.EndDatetime)
			if err != nil {
				return "", err
			}
			event.EndTime = models.EventDateTime{DateTime: dt, TimeZone: tz}
		}
		// A date-only bound left in place becomes midnight of that date in the new timezone.
		for _, bound := range []*models.EventDateTime{&event.StartTime, &event.EndTime} {
			if bound.AllDay {
				*bound = models.EventDateTime{DateTime: bound.DateTime, TimeZone: tz}
			}
		}
	}
	if err := event.Validate(); err != nil {
		return "", err
	}

	updated, err := t.provider.UpdateEvent(ctx, in.EventID, event)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully updated '%s'.", updated.Title), nil
}

func (t *Toolset) deleteEvent(ctx context.Context, in EventIDInput) (string, error) {
	if err := requireID(in.EventID); err != nil {
		return "", err
	}
	if err := t.provider.DeleteEvent(ctx, in.EventID); err != nil {
		return "", err
	}
	return "Event successfully deleted from calendar.", nil
}

func timezoneOrDefault(tz *string) (string, error) {
	name := strings.TrimSpace(deref(tz))
	if name == "" {
		return models.DefaultTimeZone, nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return "", &models.ValidationError{Field: "timezone", Message: fmt.Sprintf("unknown timezone %q", name)}
	}
	return name, nil
}

func optionalDate(field string, value *string) (*time.Time, error) {
	v := strings.TrimSpace(deref(value))
	if v == "" {
		return nil, nil
	}
	t, err := models.ParseWireDateTime(v, models.DefaultTimeZone)
	if err != nil {
		return nil, &models.ValidationError{Field: field, Message: err.Error()}
	}
	return &t, nil
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &models.ValidationError{Field: "event_id", Message: "is required"}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
