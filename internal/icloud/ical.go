package icloud

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"calbot/internal/calendar"
	"calbot/internal/models"
)

const (
	icalDateTime    = "20060102T150405"
	icalDateTimeUTC = "20060102T150405Z"
	icalDate        = "20060102"

	// maxOccurrenceScan bounds how far an unbounded recurrence is walked.
	maxOccurrenceScan = 5000
)

// applyEvent writes the modelled fields onto a VEVENT.
func applyEvent(ve *ical.Component, event models.CalendarEvent, now time.Time) {
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ve.Props.Set(dateTimeProp(ical.PropDateTimeStart, event.StartTime))
	ve.Props.Set(dateTimeProp(ical.PropDateTimeEnd, event.EndTime))
	ve.Props.Del(ical.PropDuration)

	setOrDelete(ve, ical.PropDescription, event.Description)
	setOrDelete(ve, ical.PropLocation, event.Location)
}

func setOrDelete(ve *ical.Component, name, value string) {
	if value == "" {
		ve.Props.Del(name)
		return
	}
	ve.Props.SetText(name, value)
}

func dateTimeProp(name string, d models.EventDateTime) *ical.Prop {
	prop := ical.NewProp(name)
	switch {
	case d.AllDay:
		prop.Value = d.DateTime.Format(icalDate)
		prop.Params.Set(ical.ParamValue, string(ical.ValueDate))
	case d.TimeZone == "" || d.TimeZone == models.DefaultTimeZone:
		prop.Value = d.DateTime.Format(icalDateTimeUTC)
	default:
		prop.Value = d.DateTime.Format(icalDateTime)
		prop.Params.Set(ical.ParamTimezoneID, d.TimeZone)
	}
	return prop
}

func readDateTime(prop *ical.Prop) (models.EventDateTime, error) {
	value := strings.TrimSpace(prop.Value)
	tz := prop.Params.Get(ical.ParamTimezoneID)
	allDay := strings.EqualFold(prop.Params.Get(ical.ParamValue), string(ical.ValueDate)) || len(value) == len(icalDate)

	var t time.Time
	var err error
	switch {
	case allDay:
		t, err = time.Parse(icalDate, value)
	case strings.HasSuffix(value, "Z"):
		t, err = time.Parse(icalDateTimeUTC, value)
		tz = models.DefaultTimeZone
	default:
		t, err = time.Parse(icalDateTime, value)
	}
	if err != nil {
		return models.EventDateTime{}, fmt.Errorf("invalid %s %q: %w", prop.Name, value, err)
	}
	if tz == "" {
		tz = models.DefaultTimeZone
	}
	d, err := models.NewEventDateTime(t, tz)
	d.AllDay = allDay && err == nil
	return d, err
}

// addTimezones prepends a VTIMEZONE for each named zone the event's times
// reference that cal does not define yet.
func addTimezones(cal *ical.Calendar, event models.CalendarEvent) {
	defined := map[string]bool{}
	for _, child := range cal.Children {
		if child.Name != ical.CompTimezone {
			continue
		}
		if p := child.Props.Get(ical.PropTimezoneID); p != nil {
			defined[p.Value] = true
		}
	}

	for _, d := range []models.EventDateTime{event.StartTime, event.EndTime} {
		if d.AllDay || d.TimeZone == "" || d.TimeZone == models.DefaultTimeZone || defined[d.TimeZone] {
			continue
		}
		loc, err := time.LoadLocation(d.TimeZone)
		if err != nil {
			continue
		}
		cal.Children = append([]*ical.Component{timezoneComponent(d.TimeZone, loc, d.DateTime.Year())}, cal.Children...)
		defined[d.TimeZone] = true
	}
}

// timezoneComponent describes loc as one observance per offset period from the
// year before year through two years after it. The last observance stays in effect.
func timezoneComponent(tzid string, loc *time.Location, year int) *ical.Component {
	vtz := ical.NewComponent(ical.CompTimezone)
	setValue(vtz, ical.PropTimezoneID, tzid)

	until := time.Date(year+3, 1, 1, 0, 0, 0, 0, loc)
	t := time.Date(year-1, 1, 1, 0, 0, 0, 0, loc)
	_, prevOffset := t.Zone()
	for first := true; t.Before(until); first = false {
		abbrev, offset := t.Zone()
		start, end := t.ZoneBounds()

		onset := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		if !first {
			onset = start.In(time.FixedZone("", prevOffset))
		}
		kind := ical.CompTimezoneStandard
		if t.IsDST() {
			kind = ical.CompTimezoneDaylight
		}
		obs := ical.NewComponent(kind)
		setValue(obs, ical.PropDateTimeStart, onset.Format(icalDateTime))
		setValue(obs, ical.PropTimezoneOffsetFrom, formatOffset(prevOffset))
		setValue(obs, ical.PropTimezoneOffsetTo, formatOffset(offset))
		setValue(obs, ical.PropTimezoneName, abbrev)
		vtz.Children = append(vtz.Children, obs)

		if end.IsZero() {
			break
		}
		prevOffset = offset
		t = end
	}
	return vtz
}

func setValue(c *ical.Component, name, value string) {
	prop := ical.NewProp(name)
	prop.Value = value
	c.Props.Set(prop)
}

// formatOffset renders seconds east of UTC as +HHMM, or +HHMMSS when seconds remain.
func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	h, m, sec := seconds/3600, seconds%3600/60, seconds%60
	if sec != 0 {
		return fmt.Sprintf("%c%02d%02d%02d", sign, h, m, sec)
	}
	return fmt.Sprintf("%c%02d%02d", sign, h, m)
}

func findEvent(cal *ical.Calendar) (*ical.Component, error) {
	if cal == nil {
		return nil, fmt.Errorf("empty calendar object")
	}
	for _, child := range cal.Children {
		if child.Name == ical.CompEvent {
			return child, nil
		}
	}
	return nil, fmt.Errorf("no VEVENT in calendar object")
}

// fromComponent maps a VEVENT onto the event model. A missing DTEND is derived
// from DURATION, or equals DTSTART (the next day for all-day events).
func fromComponent(id string, ve *ical.Component) (*models.CalendarEvent, error) {
	startProp := ve.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return nil, fmt.Errorf("event %s has no DTSTART", id)
	}
	start, err := readDateTime(startProp)
	if err != nil {
		return nil, err
	}

	end := start
	if start.AllDay {
		end.DateTime = start.DateTime.AddDate(0, 0, 1)
	}
	if endProp := ve.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		if end, err = readDateTime(endProp); err != nil {
			return nil, err
		}
	} else if durProp := ve.Props.Get(ical.PropDuration); durProp != nil {
		dur, err := durProp.Duration()
		if err != nil {
			return nil, fmt.Errorf("invalid DURATION: %w", err)
		}
		end.DateTime = start.DateTime.Add(dur)
	}

	text := func(name string) string {
		if p := ve.Props.Get(name); p != nil {
			v, err := p.Text()
			if err == nil {
				return v
			}
			return p.Value
		}
		return ""
	}

	title := text(ical.PropSummary)
	if title == "" {
		title = "(No title)"
	}
	event := &models.CalendarEvent{
		ID:          id,
		Title:       title,
		Description: text(ical.PropDescription),
		Location:    text(ical.PropLocation),
		StartTime:   start,
		EndTime:     end,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

// expand returns the event, or its occurrences for recurring events, that match filters.
func expand(id string, ve *ical.Component, filters models.EventFilters) ([]models.CalendarEvent, error) {
	master, err := fromComponent(id, ve)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(master.StartTime.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	set, err := ve.RecurrenceSet(loc)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence: %w", err)
	}
	if set == nil {
		if calendar.Matches(*master, filters) {
			return []models.CalendarEvent{*master}, nil
		}
		return nil, nil
	}

	duration := master.EndTime.DateTime.Sub(master.StartTime.DateTime)
	var out []models.CalendarEvent
	next := set.Iterator()
	for scanned := 0; scanned < maxOccurrenceScan && len(out) < filters.MaxResults; scanned++ {
		occurrence, ok := next()
		if !ok {
			break
		}
		if filters.EndDate != nil && !occurrence.Before(*filters.EndDate) {
			break
		}
		instance := *master
		instance.StartTime.DateTime = models.Naive(occurrence.In(loc))
		instance.EndTime.DateTime = instance.StartTime.DateTime.Add(duration)
		if calendar.Matches(instance, filters) {
			out = append(out, instance)
		}
	}
	return out, nil
}
