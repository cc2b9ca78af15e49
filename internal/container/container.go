package container

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/truthvision/truthvision-go/internal/analysis"
	"github.com/truthvision/truthvision-go/internal/batch"
	"github.com/truthvision/truthvision-go/internal/config"
	"github.com/truthvision/truthvision-go/internal/factory"
	"github.com/truthvision/truthvision-go/internal/logger"
	"github.com/truthvision/truthvision-go/internal/media"
	"github.com/truthvision/truthvision-go/internal/observer"
	"github.com/truthvision/truthvision-go/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config      *config.Config
	registry    *prometheus.Registry
	events      *observer.EventPublisher
	metrics     *observer.MetricsObserver
	client      *analysis.Client
	sources     factory.SourceFactory
	controllers factory.ControllerFactory
	sessions    *transport.SessionStore
	handler     http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	registry := prometheus.NewRegistry()
	metrics, err := observer.NewMetricsObserver(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	// Build dependency graph
	client, err := analysis.NewClient(cfg.APIBaseURL, cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis client: %w", err)
	}
	client.SetResponseHook(logResponse)

	sources, err := factory.NewSourceFactory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create media sources: %w", err)
	}

	controllers := factory.NewControllerFactory(client, events,
		media.WithPreviewHooks(logPreview("Preview acquired"), logPreview("Preview released")))
	sessions := transport.NewSessionStore(cfg.SessionTTL, controllers)
	handler := transport.NewHandler(sessions, sources, client, registry, cfg)

	return &Container{
		config:      cfg,
		registry:    registry,
		events:      events,
		metrics:     metrics,
		client:      client,
		sources:     sources,
		controllers: controllers,
		sessions:    sessions,
		handler:     handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Client returns the detection service client
func (c *Container) Client() *analysis.Client {
	return c.client
}

// Metrics returns the submission metrics observer
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}

// Registry returns the Prometheus registry the metrics are exported from
func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}

// Runner returns a batch runner sized by the configured worker count
func (c *Container) Runner() *batch.Runner {
	return batch.NewRunner(c.sources, c.controllers, c.config.Workers)
}

// Close resets every live session
func (c *Container) Close() {
	c.sessions.Close()
}

func logResponse(req *http.Request, resp *http.Response, err error, elapsed time.Duration) {
	fields := logrus.Fields{
		"method":      req.Method,
		"url":         req.URL.String(),
		"duration_ms": elapsed.Milliseconds(),
	}
	if resp != nil {
		fields["status"] = resp.StatusCode
	}
	if err != nil {
		logger.WithError(err).WithFields(fields).Debug("Detection service call failed")
		return
	}
	logger.WithFields(fields).Debug("Detection service call completed")
}

func logPreview(msg string) func(*media.Preview) {
	return func(p *media.Preview) {
		logger.WithFields(logrus.Fields{
			"preview_id":   p.ID(),
			"content_type": p.ContentType(),
		}).Debug(msg)
	}
}
