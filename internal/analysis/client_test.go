package analysis

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/media"
)

const testBaseURL = "http://detector.test"

func setupClient(t *testing.T, timeout time.Duration) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	client, err := NewClient(testBaseURL+"/", timeout, WithHTTPClient(hc))
	require.NoError(t, err)
	return client
}

func selected(name, contentType string, data []byte) *media.SelectedMedia {
	kind, _ := media.KindOf(contentType)
	return &media.SelectedMedia{
		Name:        name,
		ContentType: contentType,
		Kind:        kind,
		Size:        int64(len(data)),
		Data:        data,
	}
}

func TestAnalyze_PostsSingleFilePart(t *testing.T) {
	client := setupClient(t, 0)

	var gotFilename, gotPartType, gotBody, gotRequestID string
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/analyze",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseMultipartForm(1<<20))
			assert.Len(t, req.MultipartForm.File, 1)
			headers := req.MultipartForm.File[FileField]
			require.Len(t, headers, 1)

			gotFilename = headers[0].Filename
			gotPartType = headers[0].Header.Get("Content-Type")
			f, err := headers[0].Open()
			require.NoError(t, err)
			defer f.Close()
			b, _ := io.ReadAll(f)
			gotBody = string(b)
			gotRequestID = req.Header.Get("X-Request-ID")

			return httpmock.NewStringResponse(http.StatusOK,
				`{"label":"AI-Generated","confidence":0.97,"is_ai":true,"input_type":"image"}`), nil
		})

	res, err := client.Analyze(context.Background(), selected(`my "photo".jpg`, "image/jpeg", []byte("jpeg-bytes")))
	require.NoError(t, err)

	assert.Equal(t, `my "photo".jpg`, gotFilename)
	assert.Equal(t, "image/jpeg", gotPartType)
	assert.Equal(t, "jpeg-bytes", gotBody)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "AI-Generated", *res.Label)
	assert.InDelta(t, 0.97, *res.Confidence, 1e-9)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestAnalyze_ServerErrorWithDetail(t *testing.T) {
	client := setupClient(t, 0)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/analyze",
		httpmock.NewStringResponder(http.StatusInternalServerError, `{"detail":"model unavailable"}`))

	_, err := client.Analyze(context.Background(), selected("a.png", "image/png", []byte("x")))
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeServer, appErr.Type)
	assert.Equal(t, "model unavailable", appErr.Message)
	assert.Equal(t, 1, httpmock.GetTotalCallCount(), "failed calls are not retried")
}

func TestAnalyze_ServerErrorWithoutUsableDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no body", ``},
		{"html", `<h1>Bad Gateway</h1>`},
		{"detail list", `{"detail":[{"loc":["body","file"],"msg":"field required"}]}`},
		{"empty detail", `{"detail":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupClient(t, 0)
			httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/analyze",
				httpmock.NewStringResponder(http.StatusBadGateway, tt.body))

			_, err := client.Analyze(context.Background(), selected("a.png", "image/png", []byte("x")))
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrorTypeServer, appErr.Type)
			assert.Equal(t, "Request failed with status code 502", appErr.Message)
		})
	}
}

func TestAnalyze_MalformedSuccessBody(t *testing.T) {
	client := setupClient(t, 0)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/analyze",
		httpmock.NewStringResponder(http.StatusOK, `{"label":"AI","is_ai":true,"input_type":"image"}`))

	res, err := client.Analyze(context.Background(), selected("a.png", "image/png", []byte("x")))
	assert.Nil(t, res)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidResultShape))
}

func TestAnalyze_TransportError(t *testing.T) {
	client := setupClient(t, 0)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/analyze",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := client.Analyze(context.Background(), selected("a.png", "image/png", []byte("x")))
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeTransport, appErr.Type)
	assert.Contains(t, appErr.Message, "connection refused")
}

func TestAnalyze_Timeout(t *testing.T) {
	client := setupClient(t, 50*time.Millisecond)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/analyze",
		func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

	_, err := client.Analyze(context.Background(), selected("a.mp4", "video/mp4", []byte("x")))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTimeout), "got %v", err)
	assert.True(t, apperrors.IsTransport(err))
}

func TestAnalyze_CanceledByCaller(t *testing.T) {
	client := setupClient(t, 0)
	started := make(chan struct{})
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/analyze",
		func(req *http.Request) (*http.Response, error) {
			close(started)
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.Analyze(ctx, selected("a.mp4", "video/mp4", []byte("x")))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTransport), "got %v", err)
}

func TestAnalyze_ResponseHook(t *testing.T) {
	client := setupClient(t, 0)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/analyze",
		httpmock.NewStringResponder(http.StatusOK, `{"label":"Real Image","confidence":0.9,"is_ai":false,"input_type":"image"}`))

	var calls int
	var status int
	client.SetResponseHook(func(req *http.Request, resp *http.Response, err error, elapsed time.Duration) {
		calls++
		if resp != nil {
			status = resp.StatusCode
		}
	})

	_, err := client.Analyze(context.Background(), selected("a.png", "image/png", []byte("x")))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, status)
}

func TestHealth(t *testing.T) {
	client := setupClient(t, 0)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/health",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`))
	assert.NoError(t, client.Health(context.Background()))

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/health",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"loading"}`))
	assert.True(t, apperrors.IsType(client.Health(context.Background()), apperrors.ErrorTypeServer))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("  ", 0)
	assert.Error(t, err)

	_, err = NewClient(testBaseURL, -time.Second)
	assert.Error(t, err)

	c, err := NewClient(testBaseURL+"///", 0)
	require.NoError(t, err)
	assert.Equal(t, testBaseURL, c.BaseURL())
}
