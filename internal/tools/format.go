package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"calbot/internal/models"
)

const (
	listStartLayout  = "Monday, January 02 at 03:04 PM"
	listEndLayout    = "03:04 PM"
	detailTimeLayout = "Monday, January 02, 2006 at 03:04 PM"
	listDayLayout    = "Monday, January 02"
	detailDayLayout  = "Monday, January 02, 2006"

	descriptionPreview = 100
)

func formatEventList(events []models.CalendarEvent) string {
	if len(events) == 0 {
		return "No events found matching your criteria."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d event(s):\n\n", len(events))
	for i, ev := range events {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ev.Title)
		if ev.StartTime.AllDay {
			fmt.Fprintf(&b, "   When: %s (all day)\n", ev.StartTime.DateTime.Format(listDayLayout))
		} else {
			fmt.Fprintf(&b, "   When: %s - %s\n",
				ev.StartTime.DateTime.Format(listStartLayout),
				ev.EndTime.DateTime.Format(listEndLayout))
		}
		if ev.Location != "" {
			fmt.Fprintf(&b, "   Location: %s\n", ev.Location)
		}
		if ev.Description != "" {
			fmt.Fprintf(&b, "   Description: %s\n", preview(ev.Description, descriptionPreview))
		}
		fmt.Fprintf(&b, "   ID: %s\n\n", ev.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatEventDetail(ev models.CalendarEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", ev.Title)
	fmt.Fprintf(&b, "Start: %s\n", detailTime(ev.StartTime))
	fmt.Fprintf(&b, "End: %s\n", detailTime(ev.EndTime))
	if ev.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", ev.Location)
	}
	if ev.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", ev.Description)
	}
	fmt.Fprintf(&b, "ID: %s", ev.ID)
	return b.String()
}

func detailTime(d models.EventDateTime) string {
	if d.AllDay {
		return d.DateTime.Format(detailDayLayout) + " (all day)"
	}
	return fmt.Sprintf("%s (%s)", d.DateTime.Format(detailTimeLayout), d.TimeZone)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func jsonArgs(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
