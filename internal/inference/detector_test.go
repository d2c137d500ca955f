package inference

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/config"
	"vigil/internal/event"
)

func TestHTTPDetectorParsesObjects(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"objects":[{"label":"person","confidence":0.92,"bbox":{"x":10,"y":20,"w":30,"h":40}}]}`)
	}))
	defer server.Close()

	d, err := NewHTTPDetector(config.Detector{URL: server.URL + "/detect", APIKey: "token-1", TimeoutSeconds: 2})
	require.NoError(t, err)
	dets, err := d.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, gotBody)
	assert.Equal(t, []event.Detection{{Label: "person", Confidence: 0.92, Box: event.Box{X: 10, Y: 20, W: 30, H: 40}}}, dets)
}

func TestHTTPDetectorRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"objects": []any{}})
	}))
	defer server.Close()

	d, err := NewHTTPDetector(config.Detector{URL: server.URL, RetryCount: 1, TimeoutSeconds: 2})
	require.NoError(t, err)
	dets, err := d.Detect(context.Background(), []byte{0xFF})
	require.NoError(t, err)
	assert.Empty(t, dets)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPDetectorClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"unsupported image"}`)
	}))
	defer server.Close()

	d, err := NewHTTPDetector(config.Detector{URL: server.URL, TimeoutSeconds: 2})
	require.NoError(t, err)
	_, err = d.Detect(context.Background(), []byte{0xFF})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image")
}

func TestHTTPDetectorHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	d, err := NewHTTPDetector(config.Detector{URL: server.URL, TimeoutSeconds: 1})
	require.NoError(t, err)
	assert.NoError(t, d.HealthCheck(context.Background()))

	server.Close()
	assert.Error(t, d.HealthCheck(context.Background()))
}

func TestNewHTTPDetectorRejectsRelativeURL(t *testing.T) {
	_, err := NewHTTPDetector(config.Detector{URL: "/detect"})
	assert.Error(t, err)
}

func TestLLMDescriberDisabled(t *testing.T) {
	assert.Nil(t, NewLLMDescriber(config.Describer{Enabled: false}))
}

func TestLLMDescriberSendsLabels(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Messages[0].Content[0].Text
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": "A person holding a package."}}}})
	}))
	defer server.Close()

	d := NewLLMDescriber(config.Describer{Enabled: true, APIKey: "k", BaseURL: server.URL, Model: "m", Prompt: "Describe."})
	require.NotNil(t, d)
	text, err := d.Describe(context.Background(), []byte{0xFF, 0xD8}, []string{"person", "package"})
	require.NoError(t, err)
	assert.Equal(t, "A person holding a package.", text)
	assert.Contains(t, prompt, "person, package")
}
