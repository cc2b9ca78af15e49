package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthvision/truthvision-go/internal/config"
	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/factory"
	"github.com/truthvision/truthvision-go/internal/media"
	"github.com/truthvision/truthvision-go/internal/observer"
	"github.com/truthvision/truthvision-go/internal/storage"
	"github.com/truthvision/truthvision-go/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAnalyzer answers from a channel so tests control when a request settles.
type stubAnalyzer struct {
	results chan analyzeOutcome
}

type analyzeOutcome struct {
	res *models.AnalysisResult
	err error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, _ *media.SelectedMedia) (*models.AnalysisResult, error) {
	select {
	case o := <-s.results:
		return o.res, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type stubHealth struct{ err error }

func (s stubHealth) Health(context.Context) error { return s.err }

type stubSources struct {
	candidate media.Candidate
	err       error
}

func (s stubSources) CreateSource(factory.StorageType) (storage.Source, error) { return s, nil }
func (s stubSources) Resolve(string) (storage.Source, error)                   { return s, nil }

func (s stubSources) Fetch(context.Context, string) (media.Candidate, error) {
	return s.candidate, s.err
}

type testServer struct {
	handler  http.Handler
	analyzer *stubAnalyzer
	sessions *SessionStore
	cookie   *http.Cookie
}

func newTestServer(t *testing.T, sources factory.SourceFactory) *testServer {
	t.Helper()
	cfg := &config.Config{
		MaxRequestBodySize: 101 << 20,
		SessionTTL:         time.Minute,
		SourceFetchTimeout: time.Second,
	}

	registry := prometheus.NewRegistry()
	metrics, err := observer.NewMetricsObserver(registry)
	require.NoError(t, err)
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(metrics)

	analyzer := &stubAnalyzer{results: make(chan analyzeOutcome, 1)}
	sessions := NewSessionStore(cfg.SessionTTL, factory.NewControllerFactory(analyzer, publisher))
	t.Cleanup(sessions.Close)

	if sources == nil {
		sources = stubSources{}
	}
	return &testServer{
		handler:  NewHandler(sessions, sources, stubHealth{}, registry, cfg),
		analyzer: analyzer,
		sessions: sessions,
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			s.cookie = c
		}
	}
	return w
}

func (s *testServer) session(t *testing.T) SessionResponse {
	t.Helper()
	w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *testServer) upload(t *testing.T, files ...[3]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+f[0]+`"`)
		h.Set("Content-Type", f[1])
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(f[2]))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/session/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, req)
}

func (s *testServer) waitForState(t *testing.T, state string) SessionResponse {
	t.Helper()
	var resp SessionResponse
	require.Eventually(t, func() bool {
		resp = s.session(t)
		return resp.State.String() == state
	}, 2*time.Second, 10*time.Millisecond)
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSessionFlow_UploadSubmitSucceed(t *testing.T) {
	s := newTestServer(t, nil)

	initial := s.session(t)
	assert.Equal(t, "idle", initial.State.String())
	require.NotNil(t, s.cookie, "a session cookie is issued")

	w := s.upload(t, [3]string{"photo.jpg", "image/jpeg", "jpeg-bytes"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, httptest.NewRequest(http.MethodPost, "/api/session/submit", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	pending := s.session(t)
	assert.Equal(t, "submitting", pending.State.String())
	assert.True(t, pending.Panels.Loading)

	label, confidence, isAI, input := "AI-Generated", 0.97, true, models.InputTypeImage
	s.analyzer.results <- analyzeOutcome{res: &models.AnalysisResult{
		Label: &label, Confidence: &confidence, IsAI: &isAI, InputType: &input,
	}}

	done := s.waitForState(t, "succeeded")
	assert.True(t, done.Panels.Result)
	assert.False(t, done.Panels.Loading)
	require.NotNil(t, done.View)
	assert.InDelta(t, 97.0, done.View.AIProbabilityPct, 1e-9)
	assert.Equal(t, "suspicious", string(done.View.Reliability))

	w = s.do(t, httptest.NewRequest(http.MethodPost, "/api/session/submit", nil))
	assert.Equal(t, http.StatusAccepted, w.Code, "resubmitting a settled session is allowed")
	s.analyzer.results <- analyzeOutcome{err: apperrors.NewServerError(500, "model unavailable")}

	failed := s.waitForState(t, "failed")
	require.NotNil(t, failed.Error)
	assert.Equal(t, "model unavailable", failed.Error.Message)
	assert.True(t, failed.Panels.Error)
	require.NotNil(t, failed.Media, "the selection stays visible after failure")
}

func TestSubmit_Guards(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, httptest.NewRequest(http.MethodPost, "/api/session/submit", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apperrors.ErrorTypeNoFileSelected), decodeError(t, w).Kind)

	require.Equal(t, http.StatusOK, s.upload(t, [3]string{"clip.mp4", "video/mp4", "mp4"}).Code)
	require.Equal(t, http.StatusAccepted, s.do(t, httptest.NewRequest(http.MethodPost, "/api/session/submit", nil)).Code)

	w = s.do(t, httptest.NewRequest(http.MethodPost, "/api/session/submit", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apperrors.ErrorTypeAlreadySubmitting), decodeError(t, w).Kind)

	// Reset aborts the pending call
	w = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/session", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", s.session(t).State.String())
}

func TestUpload_Rejections(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.upload(t, [3]string{"doc.pdf", "application/pdf", "%PDF"})
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, string(apperrors.ErrorTypeUnsupportedType), decodeError(t, w).Kind)

	w = s.upload(t,
		[3]string{"a.jpg", "image/jpeg", "a"},
		[3]string{"b.jpg", "image/jpeg", "b"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload(t)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, "idle", s.session(t).State.String())
}

func TestUpload_OversizedImage(t *testing.T) {
	s := newTestServer(t, nil)

	big := strings.Repeat("x", int(media.MaxImageBytes)+1)
	w := s.upload(t, [3]string{"huge.png", "image/png", big})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "File size must not exceed 5MB.", decodeError(t, w).Message)
}

func TestPreview(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/session/preview", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusOK, s.upload(t, [3]string{"photo.png", "image/png", "png-bytes"}).Code)
	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/session/preview", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	body, _ := io.ReadAll(w.Body)
	assert.Equal(t, "png-bytes", string(body))

	s.do(t, httptest.NewRequest(http.MethodDelete, "/api/session", nil))
	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/session/preview", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoteMedia(t *testing.T) {
	s := newTestServer(t, stubSources{candidate: media.Candidate{
		Name: "remote.webp", ContentType: "image/webp", Size: 4, Data: []byte("webp"),
	}})

	req := httptest.NewRequest(http.MethodPost, "/api/session/media/remote",
		strings.NewReader(`{"ref":"https://media.example.com/remote.webp"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := s.session(t)
	require.NotNil(t, snap.Media)
	assert.Equal(t, "remote.webp", snap.Media.Name)

	req = httptest.NewRequest(http.MethodPost, "/api/session/media/remote", strings.NewReader(`{"ref":"/etc/passwd"}`))
	req.Header.Set("Content-Type", "application/json")
	w = s.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/session/media/remote", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = s.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoteMedia_FetchFailure(t *testing.T) {
	s := newTestServer(t, stubSources{err: apperrors.NewTransportError("failed to fetch media after 3 attempts: server error: status code 503", errors.New("503"))})

	req := httptest.NewRequest(http.MethodPost, "/api/session/media/remote",
		strings.NewReader(`{"ref":"https://media.example.com/a.png"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(t, req)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(apperrors.ErrorTypeTransport), decodeError(t, w).Kind)
}

func TestSessionsAreIsolated(t *testing.T) {
	a := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, a.upload(t, [3]string{"photo.jpg", "image/jpeg", "x"}).Code)

	b := &testServer{handler: a.handler}
	assert.Equal(t, "idle", b.session(t).State.String())
	assert.Equal(t, "ready", a.session(t).State.String())
	assert.Equal(t, 2, a.sessions.Count())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var health models.ServiceHealth
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "available", health.Status)
	assert.Equal(t, "ok", health.Upstream)

	require.Equal(t, http.StatusOK, s.upload(t, [3]string{"photo.jpg", "image/jpeg", "x"}).Code)
	w = s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `truthvision_selections_total{kind="image",result="accepted"} 1`)
}

func TestSessionStore_EvictionResetsController(t *testing.T) {
	analyzer := &stubAnalyzer{results: make(chan analyzeOutcome)}
	store := NewSessionStore(time.Minute, factory.NewControllerFactory(analyzer, nil))

	ctrl, id := store.GetOrCreate("")
	require.NotEmpty(t, id)
	require.NoError(t, ctrl.Select(media.Candidate{Name: "a.png", ContentType: "image/png", Size: 1}))
	done, err := ctrl.Submit(context.Background())
	require.NoError(t, err)

	store.Delete(id)
	<-done
	assert.Equal(t, "idle", ctrl.State().String())

	_, ok := store.Get(id)
	assert.False(t, ok)

	again, newID := store.GetOrCreate(id)
	assert.NotEqual(t, id, newID)
	assert.NotSame(t, ctrl, again)
}
