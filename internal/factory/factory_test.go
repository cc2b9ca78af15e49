package factory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthvision/truthvision-go/internal/config"
	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/media"
	"github.com/truthvision/truthvision-go/internal/observer"
	"github.com/truthvision/truthvision-go/internal/storage"
	"github.com/truthvision/truthvision-go/internal/submission"
	"github.com/truthvision/truthvision-go/pkg/models"
)

func testConfig() *config.Config {
	return &config.Config{
		SourceFetchTimeout: 5 * time.Second,
	}
}

func TestStorageTypeFor(t *testing.T) {
	tests := []struct {
		ref  string
		want StorageType
	}{
		{"/tmp/photo.jpg", LocalStorage},
		{"file:///tmp/photo.jpg", LocalStorage},
		{"clip.mp4", LocalStorage},
		{"http://example.com/a.png", HTTPStorage},
		{"HTTPS://example.com/a.png", HTTPStorage},
		{"azblob://media/clip.mp4", AzureStorage},
	}
	for _, tt := range tests {
		got, err := StorageTypeFor(tt.ref)
		require.NoError(t, err, tt.ref)
		assert.Equal(t, tt.want, got, tt.ref)
	}

	_, err := StorageTypeFor("ftp://example.com/a.png")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestSourceFactory_Resolve(t *testing.T) {
	f, err := NewSourceFactory(testConfig())
	require.NoError(t, err)

	src, err := f.Resolve("https://example.com/a.png")
	require.NoError(t, err)
	assert.IsType(t, &storage.HTTPSource{}, src)

	src, err = f.Resolve("./a.png")
	require.NoError(t, err)
	assert.IsType(t, &storage.FileSource{}, src)

	_, err = f.Resolve("azblob://media/a.png")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation), "azure is disabled without credentials")

	_, err = f.CreateSource(StorageType("s3"))
	assert.Error(t, err)
}

func TestSourceFactory_AzureConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.AzureAccountName = "truthvisionmedia"
	// base64 of "not-a-real-key"
	cfg.AzureAccountKey = "bm90LWEtcmVhbC1rZXk="

	f, err := NewSourceFactory(cfg)
	require.NoError(t, err)

	src, err := f.CreateSource(AzureStorage)
	require.NoError(t, err)
	assert.IsType(t, &storage.AzureSource{}, src)
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, *media.SelectedMedia) (*models.AnalysisResult, error) {
	label, confidence, isAI, input := "Real Image", 0.91, false, models.InputTypeImage
	return &models.AnalysisResult{Label: &label, Confidence: &confidence, IsAI: &isAI, InputType: &input}, nil
}

type sessionRecorder struct{ sessions []string }

func (r *sessionRecorder) OnEvent(_ context.Context, e observer.SubmissionEvent) {
	r.sessions = append(r.sessions, e.SessionID)
}

func (r *sessionRecorder) GetObserverName() string { return "session_recorder" }

func TestControllerFactory_CreatesIndependentSessions(t *testing.T) {
	publisher := observer.NewEventPublisher()
	rec := &sessionRecorder{}
	publisher.Subscribe(rec)

	f := NewControllerFactory(stubAnalyzer{}, publisher)
	a := f.CreateController("a")
	b := f.CreateController("b")

	require.NoError(t, a.Select(media.Candidate{Name: "x.png", ContentType: "image/png", Size: 1}))
	assert.Equal(t, submission.Ready, a.State())
	assert.Equal(t, submission.Idle, b.State())

	snap, err := a.SubmitAndWait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, submission.Succeeded, snap.State)
	assert.Equal(t, "a", snap.SessionID)

	for _, id := range rec.sessions {
		assert.Equal(t, "a", id)
	}
}
