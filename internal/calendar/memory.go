package calendar

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"calbot/internal/models"
)

// MemoryProvider keeps events in process memory. It backs the console and
// MCP modes when no real calendar is configured, and the tests.
type MemoryProvider struct {
	mu            sync.RWMutex
	events        map[string]models.CalendarEvent
	authenticated bool
}

// NewMemoryProvider returns an empty, unauthenticated provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{events: make(map[string]models.CalendarEvent)}
}

func (p *MemoryProvider) Authenticate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authenticated = true
	return nil
}

func (p *MemoryProvider) AddEvent(ctx context.Context, event models.CalendarEvent) (*models.CalendarEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authenticated {
		return nil, ErrNotAuthenticated
	}
	if err := event.Validate(); err != nil {
		return nil, &OperationError{Op: "add", Err: err}
	}

	event.ID = uuid.NewString()
	p.events[event.ID] = event
	return &event, nil
}

func (p *MemoryProvider) GetEvent(ctx context.Context, id string) (*models.CalendarEvent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.authenticated {
		return nil, ErrNotAuthenticated
	}

	event, ok := p.events[id]
	if !ok {
		return nil, NotFound(id)
	}
	return &event, nil
}

func (p *MemoryProvider) ListEvents(ctx context.Context, filters models.EventFilters) ([]models.CalendarEvent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.authenticated {
		return nil, ErrNotAuthenticated
	}
	if err := filters.Validate(); err != nil {
		return nil, &OperationError{Op: "list", Err: err}
	}

	out := make([]models.CalendarEvent, 0, len(p.events))
	for _, event := range p.events {
		if Matches(event, filters) {
			out = append(out, event)
		}
	}
	SortByStart(out)

	if len(out) > filters.MaxResults {
		out = out[:filters.MaxResults]
	}
	return out, nil
}

func (p *MemoryProvider) UpdateEvent(ctx context.Context, id string, event models.CalendarEvent) (*models.CalendarEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authenticated {
		return nil, ErrNotAuthenticated
	}
	if err := event.Validate(); err != nil {
		return nil, &OperationError{Op: "update", ID: id, Err: err}
	}
	if _, ok := p.events[id]; !ok {
		return nil, NotFound(id)
	}

	event.ID = id
	p.events[id] = event
	return &event, nil
}

func (p *MemoryProvider) DeleteEvent(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authenticated {
		return ErrNotAuthenticated
	}
	if _, ok := p.events[id]; !ok {
		return NotFound(id)
	}
	delete(p.events, id)
	return nil
}

// Matches reports whether event overlaps the filter window and contains the search text.
// Filter bounds are read as UTC instants.
func Matches(event models.CalendarEvent, filters models.EventFilters) bool {
	start := event.StartTime.Instant()
	end := event.EndTime.Instant()

	if filters.StartDate != nil && !end.After(models.Naive(*filters.StartDate)) {
		return false
	}
	if filters.EndDate != nil && !start.Before(models.Naive(*filters.EndDate)) {
		return false
	}

	q := strings.ToLower(strings.TrimSpace(filters.SearchQuery))
	if q == "" {
		return true
	}
	for _, field := range []string{event.Title, event.Description, event.Location} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// SortByStart orders events by their start instant, then by title.
func SortByStart(events []models.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].StartTime.Instant(), events[j].StartTime.Instant()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return events[i].Title < events[j].Title
	})
}
