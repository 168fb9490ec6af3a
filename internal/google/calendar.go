package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"calbot/internal/calendar"
	"calbot/internal/logging"
	"calbot/internal/models"
)

// DefaultCalendarID addresses the account's primary calendar.
const DefaultCalendarID = "primary"

// CalendarClient implements calendar.Provider on top of the Google Calendar API.
type CalendarClient struct {
	logger      *slog.Logger
	credentials Credentials
	store       TokenStore
	calendarID  string
	authFlow    AuthFlow
	serviceOpts []option.ClientOption

	mu      sync.RWMutex
	service *gcal.Service
}

// Option configures a CalendarClient.
type Option func(*CalendarClient)

// WithCalendarID selects the calendar the client operates on.
func WithCalendarID(id string) Option {
	return func(c *CalendarClient) {
		if id != "" {
			c.calendarID = id
		}
	}
}

// WithAuthFlow sets the interactive consent flow used when no usable token is stored.
// Without one, Authenticate fails instead of prompting.
func WithAuthFlow(flow AuthFlow) Option {
	return func(c *CalendarClient) {
		c.authFlow = flow
	}
}

// WithServiceOptions appends options passed to the Calendar service constructor.
func WithServiceOptions(opts ...option.ClientOption) Option {
	return func(c *CalendarClient) {
		c.serviceOpts = append(c.serviceOpts, opts...)
	}
}

// NewClient creates an unauthenticated Google Calendar client. No I/O happens until Authenticate.
func NewClient(logger *slog.Logger, credentials Credentials, store TokenStore, opts ...Option) *CalendarClient {
	c := &CalendarClient{
		logger:      logging.WithComponent(logger, "google"),
		credentials: credentials,
		store:       store,
		calendarID:  DefaultCalendarID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate loads the stored token, refreshing it if needed, and falls back to
// the interactive flow when there is no usable token. Refreshed tokens are written
// back to the store.
func (c *CalendarClient) Authenticate(ctx context.Context) error {
	config, err := c.credentials.OAuthConfig()
	if err != nil {
		return fmt.Errorf("failed to get OAuth config: %w", err)
	}

	token, err := c.store.Load()
	if err != nil && !errors.Is(err, ErrNoToken) {
		c.logger.Warn("Stored token unreadable, re-authorizing", logging.Err(err))
	}

	var source oauth2.TokenSource
	if token != nil {
		source = newPersistingTokenSource(c.logger, config.TokenSource(ctx, token), c.store, token)
		if _, err := source.Token(); err != nil {
			c.logger.Warn("Stored token could not be refreshed", logging.Err(err))
			source = nil
		}
	}

	if source == nil {
		if c.authFlow == nil {
			return fmt.Errorf("no valid token in %v; run the 'auth' command first", c.store)
		}
		token, err = c.authFlow(ctx, config)
		if err != nil {
			return fmt.Errorf("authorization failed: %w", err)
		}
		if err := c.store.Save(token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		source = newPersistingTokenSource(c.logger, config.TokenSource(ctx, token), c.store, token)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, source))}, c.serviceOpts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create calendar service: %w", err)
	}

	c.mu.Lock()
	c.service = service
	c.mu.Unlock()

	c.logger.Info("Authenticated with Google Calendar", "calendarID", c.calendarID)
	return nil
}

func (c *CalendarClient) svc() (*gcal.Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.service == nil {
		return nil, calendar.ErrNotAuthenticated
	}
	return c.service, nil
}

func (c *CalendarClient) AddEvent(ctx context.Context, event models.CalendarEvent) (*models.CalendarEvent, error) {
	service, err := c.svc()
	if err != nil {
		return nil, err
	}

	created, err := service.Events.Insert(c.calendarID, toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		return nil, mapError("add", "", err)
	}
	c.logger.Info("Created event", logging.EventID(created.Id), "title", created.Summary)
	return fromGoogleEvent(created, "")
}

func (c *CalendarClient) GetEvent(ctx context.Context, id string) (*models.CalendarEvent, error) {
	service, err := c.svc()
	if err != nil {
		return nil, err
	}

	item, err := service.Events.Get(c.calendarID, id).Context(ctx).Do()
	if err != nil {
		return nil, mapError("get", id, err)
	}
	return fromGoogleEvent(item, "")
}

func (c *CalendarClient) ListEvents(ctx context.Context, filters models.EventFilters) ([]models.CalendarEvent, error) {
	service, err := c.svc()
	if err != nil {
		return nil, err
	}
	if err := filters.Validate(); err != nil {
		return nil, &calendar.OperationError{Op: "list", Err: err}
	}

	call := service.Events.List(c.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(filters.MaxResults)).
		Context(ctx)
	if filters.StartDate != nil {
		call = call.TimeMin(models.Naive(*filters.StartDate).Format(time.RFC3339))
	}
	if filters.EndDate != nil {
		call = call.TimeMax(models.Naive(*filters.EndDate).Format(time.RFC3339))
	}
	if filters.SearchQuery != "" {
		call = call.Q(filters.SearchQuery)
	}

	result, err := call.Do()
	if err != nil {
		return nil, mapError("list", "", err)
	}

	events := make([]models.CalendarEvent, 0, len(result.Items))
	for _, item := range result.Items {
		ev, err := fromGoogleEvent(item, result.TimeZone)
		if err != nil {
			c.logger.Warn("Skipping event that does not fit the event model", logging.EventID(item.Id), logging.Err(err))
			continue
		}
		events = append(events, *ev)
	}
	c.logger.Debug("Fetched events from Google Calendar", "count", len(events), "calendarID", c.calendarID)
	return events, nil
}

// UpdateEvent fetches the stored event, overwrites the modelled fields and writes it back,
// leaving fields the event model does not carry untouched.
func (c *CalendarClient) UpdateEvent(ctx context.Context, id string, event models.CalendarEvent) (*models.CalendarEvent, error) {
	service, err := c.svc()
	if err != nil {
		return nil, err
	}

	existing, err := service.Events.Get(c.calendarID, id).Context(ctx).Do()
	if err != nil {
		return nil, mapError("update", id, err)
	}
	applyEvent(existing, event)

	updated, err := service.Events.Update(c.calendarID, id, existing).Context(ctx).Do()
	if err != nil {
		return nil, mapError("update", id, err)
	}
	c.logger.Info("Updated event", logging.EventID(id))
	return fromGoogleEvent(updated, "")
}

func (c *CalendarClient) DeleteEvent(ctx context.Context, id string) error {
	service, err := c.svc()
	if err != nil {
		return err
	}

	if err := service.Events.Delete(c.calendarID, id).Context(ctx).Do(); err != nil {
		return mapError("delete", id, err)
	}
	c.logger.Info("Deleted event", logging.EventID(id))
	return nil
}

// ListCalendars returns the ids and names of every calendar the account can see.
func (c *CalendarClient) ListCalendars(ctx context.Context) (map[string]string, error) {
	service, err := c.svc()
	if err != nil {
		return nil, err
	}

	list, err := service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	calendars := make(map[string]string, len(list.Items))
	for _, item := range list.Items {
		calendars[item.Id] = item.Summary
	}
	return calendars, nil
}

func mapError(op, id string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return calendar.NotFound(id)
		case http.StatusGone:
			if op == "delete" {
				return calendar.NotFound(id)
			}
		}
	}
	return &calendar.OperationError{Op: op, ID: id, Err: err}
}
