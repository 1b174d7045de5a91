package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"boilerctl/internal/logger"
	"boilerctl/internal/models"
	"boilerctl/internal/repository"
)

const (
	// recordQueueSize bounds the async event queue; Record drops when full.
	recordQueueSize = 256
	// appendTimeout bounds one storage write during queue drain.
	appendTimeout = 5 * time.Second
)

// LogFilter selects events by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "" matches every type
}

var ErrInvalidTimeRange = errors.New("invalid time range: From must be <= To")

// EventLogService persists burner lifecycle events and serves the
// filtered history. Record never blocks, so the control loop can call
// it directly.
type EventLogService struct {
	eventRepo repository.EventRepo
	log       *logger.Logger
	queue     chan models.BoilerEvent
	clock     func() time.Time
}

func NewEventLogService(eventRepo repository.EventRepo, log *logger.Logger) *EventLogService {
	return &EventLogService{
		eventRepo: eventRepo,
		log:       log,
		queue:     make(chan models.BoilerEvent, recordQueueSize),
		clock:     time.Now,
	}
}

// Record queues one event for persistence. If the queue is full the
// event is dropped and the drop is logged.
func (s *EventLogService) Record(eventType, description string) {
	e := models.BoilerEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  s.clock().UTC(),
		Type:        normalizeEventType(eventType),
		Description: description,
	}
	select {
	case s.queue <- e:
	default:
		s.log.Warnf("event queue full, dropping %s: %s", e.Type, e.Description)
	}
}

// Run drains the record queue into storage until ctx is cancelled, then
// flushes whatever is already queued.
func (s *EventLogService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case e := <-s.queue:
			s.append(e)
		}
	}
}

func (s *EventLogService) append(e models.BoilerEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := s.eventRepo.Append(ctx, e); err != nil {
		s.log.Errorf("append %s event: %v", e.Type, err)
	}
}

func (s *EventLogService) flush() {
	for {
		select {
		case e := <-s.queue:
			s.append(e)
		default:
			return
		}
	}
}

// List returns events matching the filter, oldest first.
func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.BoilerEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, typ)
}

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", ErrInvalidTimeRange
	}

	eventType := normalizeEventType(f.Type)
	return from, to, eventType, nil
}
