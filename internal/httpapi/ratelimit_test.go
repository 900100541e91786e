package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"interview-gateway/internal/backend"
	"interview-gateway/internal/envelope"
	"interview-gateway/internal/playback"
	"interview-gateway/internal/recording"
	"interview-gateway/internal/session"
	"interview-gateway/internal/store"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.IsAllowed("10.0.0.1"))
	assert.True(t, rl.IsAllowed("10.0.0.1"))
	assert.False(t, rl.IsAllowed("10.0.0.1"))
	assert.True(t, rl.IsAllowed("10.0.0.2"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.IsAllowed("10.0.0.1"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, rl.Prune())
	assert.Empty(t, rl.requests)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.IsAllowed("client"))
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: missing job_id", errBadRequest), http.StatusBadRequest},
		{session.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("job x: %w", store.ErrNotFound), http.StatusNotFound},
		{playback.ErrUnknownHandle, http.StatusNotFound},
		{session.ErrNotAccepting, http.StatusConflict},
		{session.ErrSessionClosed, http.StatusConflict},
		{recording.ErrConcurrentRecording, http.StatusConflict},
		{recording.ErrNoAudioCaptured, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: %w", session.ErrMediaUnavailable, errors.New("denied")), http.StatusUnprocessableEntity},
		{recording.ErrPersist, http.StatusInternalServerError},
		{&backend.StatusError{Code: 503}, http.StatusBadGateway},
		{backend.ErrUnsupportedContentType, http.StatusBadGateway},
		{fmt.Errorf("%w: two json parts", envelope.ErrDecodeFailure), http.StatusBadGateway},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
