package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-gateway/internal/media"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, DefaultModel, r.FormValue("model"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "question_1_response.webm", header.Filename)
		assert.Equal(t, "webm-bytes", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  I have five years of Go.  "}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: srv.URL}, nil)
	text, err := client.Transcribe(context.Background(), &media.Audio{Data: []byte("webm-bytes")}, "question_1_response.webm")
	require.NoError(t, err)
	assert.Equal(t, "I have five years of Go.", text)
}

func TestTranscribeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"auth"}}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(Config{APIKey: "bad", BaseURL: srv.URL}, nil)
	_, err := client.Transcribe(context.Background(), &media.Audio{Data: []byte("x")}, "a.webm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key")

	assert.Empty(t, client.BestEffort(context.Background(), &media.Audio{Data: []byte("x")}, "a.webm"))
}

func TestTranscribeNotConfigured(t *testing.T) {
	_, err := NewOpenAIClient(Config{}, nil).Transcribe(context.Background(), &media.Audio{Data: []byte("x")}, "a.webm")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
