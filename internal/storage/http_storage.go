package storage

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/logger"
	"github.com/truthvision/truthvision-go/internal/media"
	"github.com/truthvision/truthvision-go/pkg/validation"
)

const defaultFetchAttempts = 3

// HTTPSource downloads media over http(s) with bounded retries
type HTTPSource struct {
	client    *http.Client
	validator *validation.URLValidator
	attempts  int
	backoff   time.Duration
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithFetchClient replaces the tuned default client.
func WithFetchClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if client != nil {
			s.client = client
		}
	}
}

// WithBackoff sets the base delay between attempts. Attempt n waits n*base.
func WithBackoff(base time.Duration) HTTPOption {
	return func(s *HTTPSource) { s.backoff = base }
}

// WithValidator restricts which references may be fetched.
func WithValidator(v *validation.URLValidator) HTTPOption {
	return func(s *HTTPSource) {
		if v != nil {
			s.validator = v
		}
	}
}

// NewHTTPSource creates an HTTP source whose whole fetch, retries
// included, is bounded by timeout.
func NewHTTPSource(timeout time.Duration, opts ...HTTPOption) *HTTPSource {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		// Connection pooling sized for one download at a time per worker
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	s := &HTTPSource{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		validator: validation.NewURLValidatorWithOptions(
			[]string{validation.SchemeHTTP, validation.SchemeHTTPS}, nil),
		attempts: defaultFetchAttempts,
		backoff:  time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch downloads ref. Network errors and 5xx responses are retried, 4xx
// responses fail at once.
func (s *HTTPSource) Fetch(ctx context.Context, ref string) (media.Candidate, error) {
	parsed, err := s.validator.ValidateRef(ref)
	if err != nil {
		return media.Candidate{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return media.Candidate{}, apperrors.NewValidationError("Invalid URL format", err)
	}

	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, video/*;q=0.9, */*;q=0.5")
	req.Header.Set("User-Agent", "TruthVision-Go/1.0")

	var lastErr error
	attempt := 0
	for ; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			if err := s.wait(ctx, attempt); err != nil {
				return media.Candidate{}, apperrors.NewTransportError("The media download was canceled.", err)
			}
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			logger.WithFields(logrus.Fields{
				"url":     parsed.Redacted(),
				"attempt": attempt + 1,
				"error":   err,
			}).Debug("Media download attempt failed")
			if ctx.Err() != nil {
				attempt++
				break
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			defer resp.Body.Close()
			name := baseName(parsed.Path, "download")
			candidate, err := readCandidate(resp.Body, name, resp.Header.Get("Content-Type"), resp.ContentLength)
			if err != nil {
				return media.Candidate{}, apperrors.NewTransportError(fmt.Sprintf("failed to read media body: %v", err), err)
			}
			return candidate, nil
		}
		resp.Body.Close()

		// 4xx client errors are non-retryable
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			lastErr = fmt.Errorf("client error: status code %d", resp.StatusCode)
			attempt++
			break
		}
		lastErr = fmt.Errorf("server error: status code %d", resp.StatusCode)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("unknown error")
	}
	return media.Candidate{}, apperrors.NewTransportError(
		fmt.Sprintf("failed to fetch media after %d attempts: %v", attempt, lastErr), lastErr)
}

func (s *HTTPSource) wait(ctx context.Context, attempt int) error {
	if s.backoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(attempt) * s.backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
