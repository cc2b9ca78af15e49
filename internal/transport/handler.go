package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/truthvision/truthvision-go/internal/config"
	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/factory"
	"github.com/truthvision/truthvision-go/internal/logger"
	"github.com/truthvision/truthvision-go/internal/media"
	"github.com/truthvision/truthvision-go/internal/result"
	"github.com/truthvision/truthvision-go/internal/submission"
	"github.com/truthvision/truthvision-go/pkg/models"
)

const (
	// SessionCookie carries the session id.
	SessionCookie = "tv_session"

	controllerKey = "controller"
)

// Version is reported by /health and the version command. Release builds
// override it with -ldflags "-X".
var Version = "1.0.0"

// HealthChecker probes the upstream detection service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// SessionResponse is the snapshot plus the derived view, present only in
// the succeeded state.
type SessionResponse struct {
	submission.Snapshot
	View *result.View `json:"view,omitempty"`
}

// NewHandler builds the session API router.
func NewHandler(sessions *SessionStore, sources factory.SourceFactory, upstream HealthChecker, gatherer prometheus.Gatherer, cfg *config.Config) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck(upstream))
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/session", sessionMiddleware(sessions, cfg.SessionTTL))
	api.GET("", getSession)
	api.DELETE("", resetSession)
	api.POST("/media", uploadMedia)
	api.POST("/media/remote", selectRemoteMedia(sources, cfg.SourceFetchTimeout))
	api.POST("/submit", submit)
	api.GET("/preview", preview)

	return r
}

// sessionMiddleware attaches the caller's controller, starting a new session
// when the cookie is missing or expired.
func sessionMiddleware(sessions *SessionStore, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(SessionCookie)
		ctrl, current := sessions.GetOrCreate(id)
		if current != id {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, current, int(ttl.Seconds()), "/", "", false, true)
		}
		c.Set(controllerKey, ctrl)
		c.Next()
	}
}

func controllerFrom(c *gin.Context) *submission.Controller {
	return c.MustGet(controllerKey).(*submission.Controller)
}

func getSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionResponse(controllerFrom(c)))
}

func resetSession(c *gin.Context) {
	ctrl := controllerFrom(c)
	ctrl.Reset()
	c.JSON(http.StatusOK, sessionResponse(ctrl))
}

func uploadMedia(c *gin.Context) {
	ctrl := controllerFrom(c)

	form, err := c.MultipartForm()
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, apperrors.NewFileTooLargeError(tooLarge.Limit, media.MaxVideoBytes))
		return
	}
	if err != nil {
		respondError(c, apperrors.NewValidationError("Expected a multipart form with a file field.", err))
		return
	}

	headers := form.File["file"]
	candidates := make([]media.Candidate, 0, len(headers))
	for _, fh := range headers {
		candidates = append(candidates, media.Candidate{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
		})
	}

	candidate, err := media.Single(candidates)
	if err != nil {
		respondError(c, err)
		return
	}

	// Bytes are only read for files the selection policy can accept
	if _, err := media.Validate(candidate); err == nil {
		data, err := readPart(headers[0])
		if err != nil {
			respondError(c, apperrors.NewInternalError("failed to read upload", err))
			return
		}
		candidate.Data = data
	}

	if err := ctrl.Select(candidate); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(ctrl))
}

func selectRemoteMedia(sources factory.SourceFactory, fetchTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl := controllerFrom(c)

		var req models.RemoteMediaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.NewValidationError("invalid request format", err))
			return
		}

		// Local paths are never read on behalf of remote callers
		if storageType, err := factory.StorageTypeFor(req.Ref); err != nil {
			respondError(c, err)
			return
		} else if storageType == factory.LocalStorage {
			respondError(c, apperrors.NewValidationError("Only remote references can be selected here.", nil))
			return
		}

		src, err := sources.Resolve(req.Ref)
		if err != nil {
			respondError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), fetchTimeout)
		defer cancel()

		candidate, err := src.Fetch(ctx, req.Ref)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := ctrl.Select(candidate); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sessionResponse(ctrl))
	}
}

func submit(c *gin.Context) {
	ctrl := controllerFrom(c)
	if _, err := ctrl.Submit(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	snap := ctrl.Snapshot()
	c.JSON(http.StatusAccepted, models.SubmitResponse{
		State:      snap.State.String(),
		Generation: snap.Generation,
	})
}

func preview(c *gin.Context) {
	ctrl := controllerFrom(c)
	p, ok := ctrl.Preview()
	if !ok {
		respondError(c, apperrors.NewNotFoundError("No media is selected.", nil))
		return
	}

	rs, err := p.Open()
	if err != nil {
		if errors.Is(err, media.ErrPreviewReleased) {
			respondError(c, apperrors.NewNotFoundError("The preview is no longer available.", err))
			return
		}
		respondError(c, apperrors.NewInternalError("failed to open preview", err))
		return
	}

	c.Header("Content-Type", p.ContentType())
	c.Header("Cache-Control", "private, no-store")
	c.Header("ETag", fmt.Sprintf("%q", p.ID()))
	http.ServeContent(c.Writer, c.Request, "", time.Time{}, rs)
}

func healthCheck(upstream HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "unknown"
		if upstream != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			if err := upstream.Health(ctx); err != nil {
				status = "unavailable"
				logger.WithError(err).Warn("Detection service health check failed")
			} else {
				status = "ok"
			}
		}

		c.JSON(http.StatusOK, models.ServiceHealth{
			Status:   "available",
			Version:  Version,
			Time:     time.Now().UTC().Format(time.RFC3339),
			Upstream: status,
		})
	}
}

func sessionResponse(ctrl *submission.Controller) SessionResponse {
	resp := SessionResponse{Snapshot: ctrl.Snapshot()}
	if resp.State == submission.Succeeded {
		if view, err := ctrl.View(); err == nil {
			resp.View = view
		}
	}
	return resp
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	if appErr, ok := apperrors.As(err); ok {
		return appErr.StatusCode
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := determineStatusCode(err)
	kind := ""
	if appErr, ok := apperrors.As(err); ok {
		kind = string(appErr.Type)
	}

	// Log the error with context
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"kind":        kind,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Kind:    kind,
		Message: apperrors.UserMessage(err),
	})
}
