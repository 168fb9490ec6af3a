package calendar

import (
	"context"
	"log/slog"
	"time"

	"calbot/internal/instrumentation"
	"calbot/internal/logging"
	"calbot/internal/models"
)

// Instrumented records metrics and debug logs for every call to the wrapped Provider.
type Instrumented struct {
	next    Provider
	backend string
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewInstrumented wraps next, labelling its measurements with backend.
func NewInstrumented(next Provider, backend string, metrics *instrumentation.Metrics, logger *slog.Logger) *Instrumented {
	return &Instrumented{
		next:    next,
		backend: backend,
		metrics: metrics,
		logger:  logging.WithComponent(logger, "calendar").With(logging.Backend(backend)),
	}
}

func (p *Instrumented) observe(ctx context.Context, op string, start time.Time, err error) {
	elapsed := time.Since(start)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	p.metrics.RecordCalendarOperation(ctx, p.backend, op, status, elapsed)
	p.logger.Debug("Calendar operation", "operation", op, logging.Status(status), "duration", elapsed, logging.Err(err))
}

func (p *Instrumented) Authenticate(ctx context.Context) (err error) {
	defer func(start time.Time) { p.observe(ctx, "authenticate", start, err) }(time.Now())
	return p.next.Authenticate(ctx)
}

func (p *Instrumented) AddEvent(ctx context.Context, event models.CalendarEvent) (_ *models.CalendarEvent, err error) {
	defer func(start time.Time) { p.observe(ctx, "add", start, err) }(time.Now())
	return p.next.AddEvent(ctx, event)
}

func (p *Instrumented) GetEvent(ctx context.Context, id string) (_ *models.CalendarEvent, err error) {
	defer func(start time.Time) { p.observe(ctx, "get", start, err) }(time.Now())
	return p.next.GetEvent(ctx, id)
}

func (p *Instrumented) ListEvents(ctx context.Context, filters models.EventFilters) (_ []models.CalendarEvent, err error) {
	defer func(start time.Time) { p.observe(ctx, "list", start, err) }(time.Now())
	return p.next.ListEvents(ctx, filters)
}

func (p *Instrumented) UpdateEvent(ctx context.Context, id string, event models.CalendarEvent) (_ *models.CalendarEvent, err error) {
	defer func(start time.Time) { p.observe(ctx, "update", start, err) }(time.Now())
	return p.next.UpdateEvent(ctx, id, event)
}

func (p *Instrumented) DeleteEvent(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { p.observe(ctx, "delete", start, err) }(time.Now())
	return p.next.DeleteEvent(ctx, id)
}
