// Package submission drives one session through select, submit, settle and reset.
package submission

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/logger"
	"github.com/truthvision/truthvision-go/internal/media"
	"github.com/truthvision/truthvision-go/internal/observer"
	"github.com/truthvision/truthvision-go/internal/result"
	"github.com/truthvision/truthvision-go/pkg/models"
)

// Analyzer performs a single analysis call for the selected media.
type Analyzer interface {
	Analyze(ctx context.Context, m *media.SelectedMedia) (*models.AnalysisResult, error)
}

// request is the one outstanding analysis call, if any.
type request struct {
	generation uint64
	media      *media.SelectedMedia
	cancel     context.CancelFunc
	started    time.Time
	done       chan struct{}
}

// Controller owns the session's media, result and error slots. All methods
// are safe for concurrent use.
type Controller struct {
	analyzer  Analyzer
	selection *media.Selection
	events    observer.Subject
	sessionID string

	mu         sync.Mutex
	state      State
	result     *models.AnalysisResult
	failure    *apperrors.AppError
	generation uint64
	pending    *request
}

// Option configures a Controller.
type Option func(*Controller)

// WithSessionID tags emitted events with id.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.sessionID = id }
}

// WithEvents publishes lifecycle events to subject.
func WithEvents(subject observer.Subject) Option {
	return func(c *Controller) { c.events = subject }
}

// WithSelection replaces the default empty selection.
func WithSelection(sel *media.Selection) Option {
	return func(c *Controller) {
		if sel != nil {
			c.selection = sel
		}
	}
}

// NewController creates an Idle controller that submits through analyzer.
func NewController(analyzer Analyzer, opts ...Option) *Controller {
	c := &Controller{
		analyzer:  analyzer,
		selection: media.NewSelection(),
		state:     Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the id events are tagged with.
func (c *Controller) SessionID() string { return c.sessionID }

// Select validates candidate and adopts it. Success drops any pending
// request and any held result or error, and moves to Ready. Failure leaves
// the controller unchanged.
func (c *Controller) Select(candidate media.Candidate) error {
	c.mu.Lock()
	selected, err := c.selection.Select(candidate)
	if err != nil {
		gen := c.generation
		c.mu.Unlock()

		appErr, _ := apperrors.As(err)
		event := observer.SubmissionEvent{
			EventType:  observer.SelectionRejected,
			Generation: gen,
			MediaName:  candidate.Name,
			Error:      err.Error(),
		}
		if appErr != nil {
			event.ErrorKind = string(appErr.Type)
		}
		c.publish(event)
		return err
	}

	c.invalidateLocked()
	c.state = Ready
	c.result = nil
	c.failure = nil
	gen := c.generation
	c.mu.Unlock()

	c.publish(observer.SubmissionEvent{
		EventType:  observer.MediaSelected,
		Generation: gen,
		MediaName:  selected.Name,
		MediaKind:  string(selected.Kind),
		MediaSize:  selected.Size,
	})
	return nil
}

// Submit starts the analysis of the held media and returns a channel closed
// once that request settles or is discarded. Submit does not wait for the
// response. ctx supplies values only; the request outlives it and ends on
// settle, Select or Reset.
func (c *Controller) Submit(ctx context.Context) (<-chan struct{}, error) {
	c.mu.Lock()
	if c.state == Submitting {
		c.mu.Unlock()
		return nil, apperrors.NewAlreadySubmittingError()
	}
	current := c.selection.Current()
	if current == nil {
		c.mu.Unlock()
		return nil, apperrors.NewNoFileSelectedError()
	}

	c.generation++
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	req := &request{
		generation: c.generation,
		media:      current,
		cancel:     cancel,
		started:    time.Now(),
		done:       make(chan struct{}),
	}
	c.pending = req
	c.state = Submitting
	c.result = nil
	c.failure = nil
	c.mu.Unlock()

	c.publish(observer.SubmissionEvent{
		EventType:  observer.SubmissionStarted,
		Generation: req.generation,
		MediaName:  current.Name,
		MediaKind:  string(current.Kind),
		MediaSize:  current.Size,
	})

	go c.run(reqCtx, req)
	return req.done, nil
}

// SubmitAndWait submits and blocks until the request settles. If ctx ends
// first the session is reset and a transport error is returned.
func (c *Controller) SubmitAndWait(ctx context.Context) (Snapshot, error) {
	done, err := c.Submit(ctx)
	if err != nil {
		return c.Snapshot(), err
	}

	select {
	case <-done:
	case <-ctx.Done():
		c.Reset()
		<-done
		return c.Snapshot(), apperrors.NewTransportError("The analysis request was canceled.", ctx.Err())
	}

	snap := c.Snapshot()
	c.mu.Lock()
	failure := c.failure
	c.mu.Unlock()
	if failure != nil {
		return snap, failure
	}
	return snap, nil
}

// Reset returns to Idle from any state, releasing the media, result and
// error. A pending response will be discarded when it arrives.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.invalidateLocked()
	c.selection.Clear()
	c.state = Idle
	c.result = nil
	c.failure = nil
	gen := c.generation
	c.mu.Unlock()

	c.publish(observer.SubmissionEvent{EventType: observer.SessionReset, Generation: gen})
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Preview returns the preview handle of the held media.
func (c *Controller) Preview() (*media.Preview, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.selection.Current()
	if current == nil {
		return nil, false
	}
	return current.Preview, true
}

// View derives the result view. It is recomputed on every call and is only
// available in Succeeded.
func (c *Controller) View() (*result.View, error) {
	c.mu.Lock()
	raw := c.result
	state := c.state
	c.mu.Unlock()

	if state != Succeeded || raw == nil {
		return nil, apperrors.NewNotFoundError("No analysis result is available.", nil)
	}
	return result.Interpret(raw)
}

func (c *Controller) run(ctx context.Context, req *request) {
	defer close(req.done)

	res, err := c.analyzer.Analyze(ctx, req.media)
	if err == nil {
		// A result that cannot be interpreted is never shown
		if _, verr := result.Interpret(res); verr != nil {
			res, err = nil, verr
		}
	}
	c.settle(req, res, err)
}

func (c *Controller) settle(req *request, res *models.AnalysisResult, err error) {
	elapsed := time.Since(req.started)
	event := observer.SubmissionEvent{
		Generation: req.generation,
		MediaName:  req.media.Name,
		MediaKind:  string(req.media.Kind),
		MediaSize:  req.media.Size,
		Duration:   elapsed,
	}

	c.mu.Lock()
	if c.pending != req || c.generation != req.generation {
		c.mu.Unlock()
		req.cancel()
		event.EventType = observer.SubmissionDiscarded
		c.publish(event)
		return
	}

	c.pending = nil
	if err != nil {
		failure := normalizeFailure(err)
		c.state = Failed
		c.failure = failure
		event.EventType = observer.SubmissionFailed
		event.ErrorKind = string(failure.Type)
		event.Error = failure.Message
	} else {
		c.state = Succeeded
		c.result = res
		event.EventType = observer.SubmissionSucceeded
		if res.Label != nil {
			event.Metadata = map[string]interface{}{"label": *res.Label}
		}
	}
	c.mu.Unlock()
	req.cancel()

	c.publish(event)
}

// invalidateLocked drops interest in the pending request and aborts it.
func (c *Controller) invalidateLocked() {
	if c.pending == nil {
		return
	}
	c.pending.cancel()
	c.pending = nil
	c.generation++
}

func (c *Controller) publish(event observer.SubmissionEvent) {
	if c.events == nil {
		return
	}
	event.SessionID = c.sessionID
	c.events.NotifyObservers(context.Background(), event)
}

// normalizeFailure keeps typed errors and turns anything else into a
// transport error carrying its text.
func normalizeFailure(err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		if appErr.Message == "" {
			appErr.Message = apperrors.GenericFailureMessage
		}
		return appErr
	}

	message := err.Error()
	if message == "" {
		message = apperrors.GenericFailureMessage
	}
	logger.WithFields(logrus.Fields{
		"error": err,
	}).Debug("Normalized untyped analysis failure")
	return apperrors.NewTransportError(message, err)
}
