package google

import (
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"calbot/internal/models"
)

const untitledEvent = "(No title)"

func toGoogleEvent(event models.CalendarEvent) *gcal.Event {
	out := &gcal.Event{}
	applyEvent(out, event)
	return out
}

// applyEvent copies the modelled fields onto a Google event. Empty description
// and location are sent explicitly so an update can clear them.
func applyEvent(dst *gcal.Event, event models.CalendarEvent) {
	dst.Summary = event.Title
	dst.Description = event.Description
	dst.Location = event.Location
	dst.Start = toGoogleTime(event.StartTime)
	dst.End = toGoogleTime(event.EndTime)
	dst.ForceSendFields = append(dst.ForceSendFields, "Description", "Location")
}

func toGoogleTime(d models.EventDateTime) *gcal.EventDateTime {
	if d.AllDay {
		return &gcal.EventDateTime{Date: d.Date()}
	}
	return &gcal.EventDateTime{
		DateTime: d.String(),
		TimeZone: d.TimeZone,
	}
}

// fromGoogleEvent maps an API event onto the model. calendarTZ is the calendar's
// own timezone, or empty when the response did not carry it.
func fromGoogleEvent(item *gcal.Event, calendarTZ string) (*models.CalendarEvent, error) {
	if item == nil {
		return nil, fmt.Errorf("empty event")
	}
	start, err := fromGoogleTime(item.Start, calendarTZ)
	if err != nil {
		return nil, fmt.Errorf("event %s start: %w", item.Id, err)
	}
	end, err := fromGoogleTime(item.End, calendarTZ)
	if err != nil {
		return nil, fmt.Errorf("event %s end: %w", item.Id, err)
	}

	title := item.Summary
	if title == "" {
		title = untitledEvent
	}

	event := &models.CalendarEvent{
		ID:          item.Id,
		Title:       title,
		Description: item.Description,
		Location:    item.Location,
		StartTime:   start,
		EndTime:     end,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

func fromGoogleTime(d *gcal.EventDateTime, calendarTZ string) (models.EventDateTime, error) {
	if d == nil {
		return models.EventDateTime{}, fmt.Errorf("missing time")
	}

	switch {
	case d.DateTime != "" && d.TimeZone != "":
		t, err := models.ParseWireDateTime(d.DateTime, d.TimeZone)
		if err != nil {
			return models.EventDateTime{}, err
		}
		return models.NewEventDateTime(t, d.TimeZone)
	case d.DateTime != "":
		if withOffset, err := time.Parse(time.RFC3339Nano, d.DateTime); err == nil {
			t, tz := offsetZone(withOffset, calendarTZ)
			return models.NewEventDateTime(t, tz)
		}
		t, err := models.ParseWireDateTime(d.DateTime, models.DefaultTimeZone)
		if err != nil {
			return models.EventDateTime{}, err
		}
		return models.NewEventDateTime(t, firstZone(calendarTZ))
	case d.Date != "":
		t, err := time.Parse(time.DateOnly, d.Date)
		if err != nil {
			return models.EventDateTime{}, err
		}
		out, err := models.NewEventDateTime(t, firstZone(d.TimeZone, calendarTZ))
		out.AllDay = err == nil
		return out, err
	default:
		return models.EventDateTime{}, fmt.Errorf("neither dateTime nor date set")
	}
}

// offsetZone names a zone for a time that arrived with only a numeric offset, keeping
// its wall clock: the calendar's zone when it has the same offset at t, else an Etc/GMT
// zone for whole-hour offsets. Other offsets are converted to UTC.
func offsetZone(t time.Time, calendarTZ string) (time.Time, string) {
	_, offset := t.Zone()
	if calendarTZ != "" {
		if loc, err := time.LoadLocation(calendarTZ); err == nil {
			if _, calOffset := t.In(loc).Zone(); calOffset == offset {
				return t, calendarTZ
			}
		}
	}
	if offset == 0 {
		return t, models.DefaultTimeZone
	}
	if offset%3600 == 0 {
		// Etc/GMT names use inverted signs: UTC-05:00 is Etc/GMT+5.
		name := fmt.Sprintf("Etc/GMT%+d", -offset/3600)
		if _, err := time.LoadLocation(name); err == nil {
			return t, name
		}
	}
	return t.UTC(), models.DefaultTimeZone
}

func firstZone(zones ...string) string {
	for _, z := range zones {
		if z != "" {
			return z
		}
	}
	return models.DefaultTimeZone
}
