// Package batch analyzes many media references, each in its own session.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/factory"
	"github.com/truthvision/truthvision-go/internal/logger"
	"github.com/truthvision/truthvision-go/internal/result"
	"github.com/truthvision/truthvision-go/internal/submission"
)

// Outcome is the settled analysis of one reference.
type Outcome struct {
	Ref      string
	Snapshot submission.Snapshot
	View     *result.View
	Err      error
	Duration time.Duration
}

// Failed reports whether the reference could not be analyzed.
func (o Outcome) Failed() bool { return o.Err != nil }

// Runner fetches, selects and submits each reference through its own
// controller, so one bad file never affects another.
type Runner struct {
	sources     factory.SourceFactory
	controllers factory.ControllerFactory
	workers     int
}

// NewRunner creates a runner that analyzes up to workers references at once.
func NewRunner(sources factory.SourceFactory, controllers factory.ControllerFactory, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{sources: sources, controllers: controllers, workers: workers}
}

// Run analyzes refs and returns one outcome per ref, in input order.
func (r *Runner) Run(ctx context.Context, refs []string) []Outcome {
	outcomes := make([]Outcome, len(refs))

	pool := NewWorkerPool(r.workers)
	pool.Start()
	defer pool.Close()

	for i, ref := range refs {
		pool.Submit(func() {
			outcomes[i] = r.analyze(ctx, i, ref)
		})
	}
	pool.Wait()

	return outcomes
}

func (r *Runner) analyze(ctx context.Context, index int, ref string) Outcome {
	start := time.Now()
	out := Outcome{Ref: ref}

	ctrl := r.controllers.CreateController(fmt.Sprintf("batch-%d", index+1))
	defer ctrl.Reset()

	finish := func(err error) Outcome {
		out.Err = err
		out.Snapshot = ctrl.Snapshot()
		out.Duration = time.Since(start)
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"ref":  ref,
				"kind": errorKind(err),
			}).Warn("Analysis of reference failed")
		}
		return out
	}

	if err := ctx.Err(); err != nil {
		return finish(apperrors.NewTransportError("The analysis request was canceled.", err))
	}

	src, err := r.sources.Resolve(ref)
	if err != nil {
		return finish(err)
	}
	candidate, err := src.Fetch(ctx, ref)
	if err != nil {
		return finish(err)
	}
	if candidate.Name == "" {
		candidate.Name = ref
	}
	if err := ctrl.Select(candidate); err != nil {
		return finish(err)
	}

	if _, err := ctrl.SubmitAndWait(ctx); err != nil {
		return finish(err)
	}

	view, err := ctrl.View()
	if err != nil {
		return finish(err)
	}
	out.View = view
	return finish(nil)
}

func errorKind(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		return string(appErr.Type)
	}
	return ""
}
