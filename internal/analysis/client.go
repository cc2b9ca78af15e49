// Package analysis talks to the remote AI-content detection service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/media"
	"github.com/truthvision/truthvision-go/internal/result"
	"github.com/truthvision/truthvision-go/pkg/models"
)

const (
	analyzePath = "/analyze"
	healthPath  = "/health"

	// FileField is the multipart part carrying the media bytes.
	FileField = "file"

	defaultUserAgent = "TruthVision-Go/1.0"
	maxResponseBytes = 1 << 20
)

// ResponseHook observes every completed call (err is the transport error, if any).
type ResponseHook func(req *http.Request, resp *http.Response, err error, elapsed time.Duration)

// Client implements the detection service contract. It performs exactly one
// request per call and never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string

	hookMu        sync.RWMutex
	afterResponse ResponseHook
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the tuned default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// NewClient creates a client for the service at baseURL. A positive timeout
// bounds each analysis call; zero leaves the call unbounded.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("analysis service base URL is required")
	}
	if timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", timeout)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: newHTTPClient(),
		timeout:    timeout,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2: true,

		// A single session talks to a single service
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Video inference can take minutes; no ResponseHeaderTimeout here.
		MaxResponseHeaderBytes: 16 << 10,
	}

	return &http.Client{
		Transport: transport,
		// Deadlines come from the request context
	}
}

// BaseURL returns the service root the client posts to.
func (c *Client) BaseURL() string { return c.baseURL }

// SetResponseHook installs an observer for completed calls.
func (c *Client) SetResponseHook(hook ResponseHook) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.afterResponse = hook
}

// Analyze uploads m and decodes the verdict. Failures are *AppError values of
// type transport, timeout, server or invalid_result_shape.
func (c *Client) Analyze(ctx context.Context, m *media.SelectedMedia) (*models.AnalysisResult, error) {
	if m == nil {
		return nil, apperrors.NewNoFileSelectedError()
	}

	body, contentType, err := encodeMultipart(m)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode upload", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, body)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build analysis request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, serverError(resp.StatusCode, payload)
	}
	return result.Decode(payload)
}

// Health checks GET /health and expects {"status":"ok"}.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, http.NoBody)
	if err != nil {
		return apperrors.NewInternalError("failed to build health request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classifyTransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return serverError(resp.StatusCode, payload)
	}

	var health models.HealthResponse
	if err := json.Unmarshal(payload, &health); err != nil || health.Status != "ok" {
		return apperrors.NewServerError(resp.StatusCode, fmt.Sprintf("service reported status %q", health.Status))
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)

	c.hookMu.RLock()
	hook := c.afterResponse
	c.hookMu.RUnlock()
	if hook != nil {
		hook(req, resp, err, time.Since(start))
	}
	return resp, err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeMultipart writes the single "file" part. The part carries the real
// media type, the service routes images and videos by it.
func encodeMultipart(m *media.SelectedMedia) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := m.Name
	if filename == "" {
		filename = "upload"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FileField, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", m.ContentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(m.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return apperrors.NewTimeoutError("The analysis request timed out.", err)
	case errors.Is(err, context.Canceled):
		return apperrors.NewTransportError("The analysis request was canceled.", err)
	}

	message := err.Error()
	if message == "" {
		message = apperrors.GenericFailureMessage
	}
	return apperrors.NewTransportError(message, err)
}

// serverError prefers the service's string "detail"; anything else falls back
// to the status line text.
func serverError(statusCode int, payload []byte) error {
	var body models.DetailResponse
	if err := json.Unmarshal(payload, &body); err == nil && len(body.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(body.Detail, &detail); err == nil && detail != "" {
			return apperrors.NewServerError(statusCode, detail)
		}
	}
	return apperrors.NewServerError(statusCode, fmt.Sprintf("Request failed with status code %d", statusCode))
}
