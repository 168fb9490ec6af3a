package calendar

import (
	"context"

	"calbot/internal/models"
)

// Provider is the set of operations every calendar backend implements.
// All operations except Authenticate fail with ErrNotAuthenticated until
// Authenticate has succeeded.
type Provider interface {
	// Authenticate establishes or refreshes credentials with the backend.
	Authenticate(ctx context.Context) error
	// AddEvent persists an unsaved event and returns it with its backend id.
	AddEvent(ctx context.Context, event models.CalendarEvent) (*models.CalendarEvent, error)
	// GetEvent fetches one event by id.
	GetEvent(ctx context.Context, id string) (*models.CalendarEvent, error)
	// ListEvents returns matching events ordered by start time, at most filters.MaxResults of them.
	ListEvents(ctx context.Context, filters models.EventFilters) ([]models.CalendarEvent, error)
	// UpdateEvent replaces the stored event with id by event.
	UpdateEvent(ctx context.Context, id string, event models.CalendarEvent) (*models.CalendarEvent, error)
	// DeleteEvent removes the event with id.
	DeleteEvent(ctx context.Context, id string) error
}
