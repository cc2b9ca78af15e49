package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SubmissionEvent describes one step of a session's lifecycle
type SubmissionEvent struct {
	EventType  EventType              `json:"event_type"`
	Timestamp  time.Time              `json:"timestamp"`
	SessionID  string                 `json:"session_id,omitempty"`
	Generation uint64                 `json:"generation"`
	MediaName  string                 `json:"media_name,omitempty"`
	MediaKind  string                 `json:"media_kind,omitempty"`
	MediaSize  int64                  `json:"media_size,omitempty"`
	Duration   time.Duration          `json:"duration,omitempty"`
	ErrorKind  string                 `json:"error_kind,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of submission event
type EventType string

const (
	MediaSelected       EventType = "media_selected"
	SelectionRejected   EventType = "selection_rejected"
	SubmissionStarted   EventType = "submission_started"
	SubmissionSucceeded EventType = "submission_succeeded"
	SubmissionFailed    EventType = "submission_failed"
	// SubmissionDiscarded is a response that arrived after its session moved on
	SubmissionDiscarded EventType = "submission_discarded"
	SessionReset        EventType = "session_reset"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event SubmissionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event SubmissionEvent)
}

// LoggingObserver logs submission events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles submission events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event SubmissionEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"generation": event.Generation,
	}
	if event.SessionID != "" {
		fields["session_id"] = event.SessionID
	}
	if event.MediaName != "" {
		fields["media_name"] = event.MediaName
		fields["media_kind"] = event.MediaKind
		fields["media_size"] = event.MediaSize
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.Error != "" {
		fields["error"] = event.Error
		fields["error_kind"] = event.ErrorKind
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case MediaSelected:
		entry.Info("Media selected")
	case SelectionRejected:
		entry.Warn("Media selection rejected")
	case SubmissionStarted:
		entry.Info("Analysis submitted")
	case SubmissionSucceeded:
		entry.Info("Analysis completed")
	case SubmissionFailed:
		entry.Error("Analysis failed")
	case SubmissionDiscarded:
		entry.Debug("Discarded stale analysis response")
	case SessionReset:
		entry.Debug("Session reset")
	default:
		entry.Info("Submission event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer, in subscription
// order, on the caller's goroutine. Callers must not hold locks observers
// could need.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event SubmissionEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event SubmissionEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
