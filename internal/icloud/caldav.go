package icloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"calbot/internal/calendar"
	"calbot/internal/logging"
	"calbot/internal/models"
)

const (
	iCloudCalDAVEndpoint = "https://caldav.icloud.com/"
	productID            = "-//calbot//EN"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "calbot/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient implements calendar.Provider against a CalDAV server, iCloud by default.
type CalDAVClient struct {
	logger       *slog.Logger
	endpoint     string
	username     string
	password     string
	calendarName string
	transport    http.RoundTripper
	now          func() time.Time

	mu           sync.RWMutex
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	calendarPath string
}

// Option configures a CalDAVClient.
type Option func(*CalDAVClient)

// WithEndpoint points the client at a CalDAV server other than iCloud.
func WithEndpoint(endpoint string) Option {
	return func(c *CalDAVClient) {
		c.endpoint = endpoint
	}
}

// WithTransport sets the base round tripper beneath the auth transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *CalDAVClient) {
		c.transport = rt
	}
}

// NewClient creates an unauthenticated CalDAV client. Calendar discovery happens in Authenticate.
func NewClient(logger *slog.Logger, username, password, calendarName string, opts ...Option) *CalDAVClient {
	c := &CalDAVClient{
		logger:       logging.WithComponent(logger, "caldav"),
		endpoint:     iCloudCalDAVEndpoint,
		username:     username,
		password:     password,
		calendarName: calendarName,
		transport:    http.DefaultTransport,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate verifies the credentials by discovering the configured calendar.
func (c *CalDAVClient) Authenticate(ctx context.Context) error {
	httpClient := &http.Client{Transport: &customTransport{
		Username:  c.username,
		Password:  c.password,
		Transport: c.transport,
	}}

	caldavClient, err := caldav.NewClient(httpClient, c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to create caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to create webdav client: %w", err)
	}

	c.logger.Info("Finding CalDAV calendar", "calendarName", c.calendarName)
	calendarPath, err := findCalendar(ctx, caldavClient, c.calendarName)
	if err != nil {
		return fmt.Errorf("could not find calendar '%s': %w", c.calendarName, err)
	}

	c.mu.Lock()
	c.caldavClient = caldavClient
	c.webdavClient = webdavClient
	c.calendarPath = calendarPath
	c.mu.Unlock()

	c.logger.Info("Successfully found CalDAV calendar", "path", calendarPath)
	return nil
}

type session struct {
	caldav       *caldav.Client
	webdav       *webdav.Client
	calendarPath string
}

func (c *CalDAVClient) session() (*session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.caldavClient == nil {
		return nil, calendar.ErrNotAuthenticated
	}
	return &session{caldav: c.caldavClient, webdav: c.webdavClient, calendarPath: c.calendarPath}, nil
}

func (s *session) objectPath(id string) string {
	return path.Join(s.calendarPath, id+".ics")
}

func (c *CalDAVClient) AddEvent(ctx context.Context, event models.CalendarEvent) (*models.CalendarEvent, error) {
	s, err := c.session()
	if err != nil {
		return nil, err
	}

	uid := GenerateUID()
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	applyEvent(ve, event, c.now())
	cal.Children = append(cal.Children, ve)
	addTimezones(cal, event)

	if err := putCalendar(ctx, s.webdav, s.objectPath(uid), cal); err != nil {
		return nil, &calendar.OperationError{Op: "add", Err: err}
	}

	c.logger.Info("Created event", logging.EventID(uid), "title", event.Title)
	event.ID = uid
	return &event, nil
}

func (c *CalDAVClient) GetEvent(ctx context.Context, id string) (*models.CalendarEvent, error) {
	s, err := c.session()
	if err != nil {
		return nil, err
	}

	obj, err := s.caldav.GetCalendarObject(ctx, s.objectPath(id))
	if err != nil {
		return nil, mapError("get", id, err)
	}
	ve, err := findEvent(obj.Data)
	if err != nil {
		return nil, &calendar.OperationError{Op: "get", ID: id, Err: err}
	}
	return fromComponent(id, ve)
}

// ListEvents runs a time-range query and expands recurring events into single
// instances. Instances keep the id of their series.
func (c *CalDAVClient) ListEvents(ctx context.Context, filters models.EventFilters) ([]models.CalendarEvent, error) {
	s, err := c.session()
	if err != nil {
		return nil, err
	}
	if err := filters.Validate(); err != nil {
		return nil, &calendar.OperationError{Op: "list", Err: err}
	}

	eventFilter := caldav.CompFilter{Name: ical.CompEvent}
	if filters.StartDate != nil {
		eventFilter.Start = models.Naive(*filters.StartDate)
	}
	if filters.EndDate != nil {
		eventFilter.End = models.Naive(*filters.EndDate)
	}
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{eventFilter},
		},
	}

	objects, err := s.caldav.QueryCalendar(ctx, s.calendarPath, query)
	if err != nil {
		return nil, mapError("list", "", err)
	}

	var events []models.CalendarEvent
	for _, obj := range objects {
		id := strings.TrimSuffix(path.Base(obj.Path), ".ics")
		ve, err := findEvent(obj.Data)
		if err != nil {
			c.logger.Warn("Skipping calendar object without event", "path", obj.Path, logging.Err(err))
			continue
		}
		instances, err := expand(id, ve, filters)
		if err != nil {
			c.logger.Warn("Skipping event that does not fit the event model", logging.EventID(id), logging.Err(err))
			continue
		}
		events = append(events, instances...)
	}

	calendar.SortByStart(events)
	if len(events) > filters.MaxResults {
		events = events[:filters.MaxResults]
	}
	c.logger.Debug("Fetched events from CalDAV", "count", len(events))
	return events, nil
}

// UpdateEvent rewrites the modelled properties of the stored object, keeping the rest.
func (c *CalDAVClient) UpdateEvent(ctx context.Context, id string, event models.CalendarEvent) (*models.CalendarEvent, error) {
	s, err := c.session()
	if err != nil {
		return nil, err
	}

	objectPath := s.objectPath(id)
	obj, err := s.caldav.GetCalendarObject(ctx, objectPath)
	if err != nil {
		return nil, mapError("update", id, err)
	}
	ve, err := findEvent(obj.Data)
	if err != nil {
		return nil, &calendar.OperationError{Op: "update", ID: id, Err: err}
	}
	applyEvent(ve, event, c.now())
	addTimezones(obj.Data, event)

	if err := putCalendar(ctx, s.webdav, objectPath, obj.Data); err != nil {
		return nil, &calendar.OperationError{Op: "update", ID: id, Err: err}
	}

	c.logger.Info("Updated event", logging.EventID(id))
	event.ID = id
	return &event, nil
}

func (c *CalDAVClient) DeleteEvent(ctx context.Context, id string) error {
	s, err := c.session()
	if err != nil {
		return err
	}

	if err := s.webdav.RemoveAll(ctx, s.objectPath(id)); err != nil {
		return mapError("delete", id, err)
	}
	c.logger.Info("Deleted event", logging.EventID(id))
	return nil
}

func putCalendar(ctx context.Context, client *webdav.Client, objectPath string, cal *ical.Calendar) error {
	writer, err := client.Create(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		writer.Close()
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to upload event: %w", err)
	}
	return nil
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func findCalendar(ctx context.Context, client *caldav.Client, name string) (string, error) {
	principalPath, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := client.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := client.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// mapError turns a 404 from the server into calendar.ErrNotFound. The webdav
// client does not export its HTTP error type, so the status is read from the message.
func mapError(op, id string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "404") || strings.Contains(msg, http.StatusText(http.StatusNotFound)) {
		return calendar.NotFound(id)
	}
	return &calendar.OperationError{Op: op, ID: id, Err: err}
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}
